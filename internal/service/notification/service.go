package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/domainstack/api/internal/email"
	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/internal/repository"
	apperrors "github.com/domainstack/api/pkg/errors"
	"github.com/domainstack/api/pkg/logger"
	"github.com/domainstack/api/pkg/messaging"
	"github.com/domainstack/api/pkg/metrics"
)

const (
	prefCacheTTL = 5 * time.Minute
	inAppChannel = "notifications"
)

// Service is the idempotent notification dispatcher. Every send is claimed
// by inserting the dedup row before the external delivery is attempted, so
// a race between two dispatches for the same (claim, type) resolves to at
// most one winner.
type Service struct {
	notifRepo repository.NotificationRepository
	prefRepo  repository.PreferenceRepository
	userRepo  repository.UserRepository
	mailer    email.Mailer
	broker    messaging.Broker
	prefCache *gocache.Cache
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(
	notifRepo repository.NotificationRepository,
	prefRepo repository.PreferenceRepository,
	userRepo repository.UserRepository,
	mailer email.Mailer,
	broker messaging.Broker,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		notifRepo: notifRepo,
		prefRepo:  prefRepo,
		userRepo:  userRepo,
		mailer:    mailer,
		broker:    broker,
		prefCache: gocache.New(prefCacheTTL, 2*prefCacheTTL),
		metrics:   m,
		logger:    log,
		now:       time.Now,
	}
}

// ShouldNotify resolves the per-domain override if set, then the user's
// global preference for the category. No explicit setting anywhere means
// on: silence never disables a safety-relevant alert.
func (s *Service) ShouldNotify(ctx context.Context, td *model.TrackedDomain, category model.NotificationCategory) (bool, error) {
	if td.NotificationOverrides != nil {
		if enabled, ok := td.NotificationOverrides[category]; ok {
			return enabled, nil
		}
	}

	prefs, err := s.preferences(ctx, td.UserID)
	if err != nil {
		return false, err
	}
	return prefs.Enabled(category), nil
}

func (s *Service) preferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error) {
	key := userID.String()
	if cached, ok := s.prefCache.Get(key); ok {
		return cached.(*model.NotificationPreferences), nil
	}

	prefs, err := s.prefRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, apperrors.Retryable(fmt.Errorf("failed to load notification preferences: %w", err))
	}
	s.prefCache.SetDefault(key, prefs)
	return prefs, nil
}

// InvalidatePreferences drops a user's cached preference row after an edit.
func (s *Service) InvalidatePreferences(userID uuid.UUID) {
	s.prefCache.Delete(userID.String())
}

// IdempotencyKey is the stable send key for (claim, type). The mail
// provider dedupes on it, covering the crash window between our dedup
// insert and its delivery confirmation.
func IdempotencyKey(trackedDomainID uuid.UUID, t model.NotificationType) string {
	return fmt.Sprintf("%s:%s", trackedDomainID, t)
}

// Dispatch delivers one notification at most once.
//
// The dedup row is inserted before anything leaves the process. When the
// row already exists the external message ID decides what happens: a
// confirmed ID means the send went out and this is a silent no-op, a NULL
// ID means a previous attempt claimed the row but never delivered, so the
// send is resumed under the same idempotency key. The mail provider
// dedupes on that key, which keeps the resume safe even if the first
// delivery actually made it out.
func (s *Service) Dispatch(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType, build func() email.Message) error {
	record, err := s.notifRepo.CreateNotification(ctx, trackedDomainID, t)
	if err != nil {
		return apperrors.Retryable(fmt.Errorf("failed to claim notification %s: %w", t, err))
	}
	if record == nil {
		existing, err := s.notifRepo.FindNotification(ctx, trackedDomainID, t)
		if err != nil {
			return apperrors.Retryable(fmt.Errorf("failed to load notification claim %s: %w", t, err))
		}
		if existing == nil || existing.ExternalMessageID != nil {
			s.metrics.NotificationsDedup.WithLabelValues(string(t)).Inc()
			s.logger.Debug("notification already sent",
				"tracked_domain_id", trackedDomainID.String(), "type", string(t))
			return nil
		}
		// Claimed but never confirmed: the previous send failed before
		// delivery, so pick the claim back up.
		record = existing
	}

	msg := build()
	messageID, err := s.mailer.Send(ctx, msg, IdempotencyKey(trackedDomainID, t))
	if err != nil {
		s.metrics.NotificationsFailed.WithLabelValues(string(t)).Inc()
		return fmt.Errorf("failed to send %s notification: %w", t, err)
	}

	if err := s.notifRepo.UpdateNotificationResendID(ctx, record.ID, messageID); err != nil {
		// The send already happened; losing the message ID only hurts
		// support lookups, so log and carry on.
		s.logger.Error(err, "failed to store external message id",
			"notification_id", record.ID.String())
	}

	s.publishInApp(ctx, trackedDomainID, t)
	s.metrics.NotificationsSent.WithLabelValues(string(t)).Inc()
	return nil
}

// publishInApp pushes the event onto the dashboard feed. Best effort: the
// email is the durable delivery, the feed is a convenience.
func (s *Service) publishInApp(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType) {
	if s.broker == nil {
		return
	}
	err := s.broker.Publish(ctx, inAppChannel, messaging.Message{
		Type: string(t),
		Payload: map[string]string{
			"tracked_domain_id": trackedDomainID.String(),
		},
	})
	if err != nil {
		s.logger.Warn("failed to publish in-app notification",
			"tracked_domain_id", trackedDomainID.String(), "type", string(t), "error", err.Error())
	}
}

// NotifyVerificationFailing fires the grace-period warning. Keyed only by
// (claim, type): once sent, a later failure episode will not re-send unless
// the row is cleared, which it deliberately never is on recovery.
func (s *Service) NotifyVerificationFailing(ctx context.Context, view *model.TrackedDomainView) error {
	return s.notifyVerification(ctx, view, model.NotificationVerificationFailing)
}

// NotifyVerificationRevoked fires the terminal revocation notice.
func (s *Service) NotifyVerificationRevoked(ctx context.Context, view *model.TrackedDomainView) error {
	return s.notifyVerification(ctx, view, model.NotificationVerificationRevoked)
}

func (s *Service) notifyVerification(ctx context.Context, view *model.TrackedDomainView, t model.NotificationType) error {
	ok, err := s.ShouldNotify(ctx, &view.TrackedDomain, model.CategoryVerification)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, view.UserID)
	if err != nil {
		return apperrors.Retryable(fmt.Errorf("failed to load user for notification: %w", err))
	}
	if user == nil {
		return fmt.Errorf("user %s not found for notification", view.UserID)
	}

	return s.Dispatch(ctx, view.ID, t, func() email.Message {
		if t == model.NotificationVerificationRevoked {
			return verificationRevokedMessage(user.Email, view.DomainName)
		}
		return verificationFailingMessage(user.Email, view.DomainName)
	})
}

// CheckDomainExpiry runs one domain's registration-expiry pass: detect
// renewal (clear stale dedup rows so the next cycle re-notifies), otherwise
// map days remaining to a threshold and dispatch.
func (s *Service) CheckDomainExpiry(ctx context.Context, view *model.TrackedDomainView) error {
	if view.RegistrationExpiry == nil {
		return nil
	}
	days := DaysRemaining(*view.RegistrationExpiry, s.now())

	if DomainRenewed(days) {
		if err := s.notifRepo.ClearDomainExpiryNotifications(ctx, view.ID); err != nil {
			return apperrors.Retryable(fmt.Errorf("failed to reset domain expiry notifications: %w", err))
		}
		return nil
	}

	t, ok := DomainExpiryType(days)
	if !ok {
		return nil
	}

	should, err := s.ShouldNotify(ctx, &view.TrackedDomain, model.CategoryDomainExpiry)
	if err != nil {
		return err
	}
	if !should {
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, view.UserID)
	if err != nil {
		return apperrors.Retryable(fmt.Errorf("failed to load user for notification: %w", err))
	}
	if user == nil {
		return fmt.Errorf("user %s not found for notification", view.UserID)
	}

	return s.Dispatch(ctx, view.ID, t, func() email.Message {
		return expiryMessage(user.Email, view.DomainName, t, days)
	})
}

// CheckCertificateExpiry is the certificate counterpart of
// CheckDomainExpiry, with its own threshold set.
func (s *Service) CheckCertificateExpiry(ctx context.Context, view *model.TrackedDomainView) error {
	if view.CertificateExpiry == nil {
		return nil
	}
	days := DaysRemaining(*view.CertificateExpiry, s.now())

	if CertRenewed(days) {
		if err := s.notifRepo.ClearCertificateExpiryNotifications(ctx, view.ID); err != nil {
			return apperrors.Retryable(fmt.Errorf("failed to reset certificate expiry notifications: %w", err))
		}
		return nil
	}

	t, ok := CertExpiryType(days)
	if !ok {
		return nil
	}

	should, err := s.ShouldNotify(ctx, &view.TrackedDomain, model.CategoryCertificateExpiry)
	if err != nil {
		return err
	}
	if !should {
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, view.UserID)
	if err != nil {
		return apperrors.Retryable(fmt.Errorf("failed to load user for notification: %w", err))
	}
	if user == nil {
		return fmt.Errorf("user %s not found for notification", view.UserID)
	}

	return s.Dispatch(ctx, view.ID, t, func() email.Message {
		return expiryMessage(user.Email, view.DomainName, t, days)
	})
}
