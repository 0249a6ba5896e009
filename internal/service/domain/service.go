package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/internal/repository"
	"github.com/domainstack/api/internal/verify"
	apperrors "github.com/domainstack/api/pkg/errors"
	"github.com/domainstack/api/pkg/logger"
)

// friendly error surfaced when a user-triggered check comes back negative,
// so the UI can render inline feedback instead of a crashed request.
const verificationFailedMessage = "Verification failed. Please check your setup."

// Verifier is the ownership ground-truth oracle.
type Verifier interface {
	Verify(ctx context.Context, domain, token string, method model.VerificationMethod) model.VerificationResult
	TryAll(ctx context.Context, domain, token string) model.VerificationResult
}

// Notifier delivers the lifecycle alerts the state machine fires.
type Notifier interface {
	NotifyVerificationFailing(ctx context.Context, view *model.TrackedDomainView) error
	NotifyVerificationRevoked(ctx context.Context, view *model.TrackedDomainView) error
}

type Service struct {
	repo        repository.DomainRepository
	verifier    Verifier
	notifier    Notifier
	domainLimit int
	logger      *logger.Logger
	now         func() time.Time
}

func NewService(repo repository.DomainRepository, verifier Verifier, notifier Notifier, domainLimit int, log *logger.Logger) *Service {
	if domainLimit <= 0 {
		domainLimit = 10
	}
	return &Service{
		repo:        repo,
		verifier:    verifier,
		notifier:    notifier,
		domainLimit: domainLimit,
		logger:      log,
		now:         time.Now,
	}
}

// AddDomainResult is what the dashboard needs to walk the user through
// setup.
type AddDomainResult struct {
	ID                uuid.UUID           `json:"id"`
	Domain            string              `json:"domain"`
	VerificationToken string              `json:"verification_token"`
	Instructions      verify.Instructions `json:"instructions"`
	Resumed           bool                `json:"resumed"`
}

// AddDomain starts (or resumes) tracking a domain for a user.
//
// Resubmitting an already-pending domain returns the existing claim with
// its original token: the user may already have published evidence against
// that exact value, so regenerating would strand them. Resubmitting an
// already-verified domain is a conflict.
func (s *Service) AddDomain(ctx context.Context, userID uuid.UUID, domainName string) (*AddDomainResult, error) {
	name, err := normalizeDomainName(domainName)
	if err != nil {
		return nil, apperrors.BadRequest("invalid domain name", err)
	}

	d, err := s.repo.GetOrCreateDomain(ctx, name)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	existing, err := s.repo.FindTrackedDomain(ctx, userID, d.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if existing != nil {
		if existing.Verified {
			return nil, apperrors.Conflict("you are already tracking this domain", nil)
		}
		return s.resumeResult(name, existing), nil
	}

	count, err := s.repo.CountActiveTrackedDomains(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if count >= s.domainLimit {
		return nil, apperrors.Forbidden("domain limit reached", nil)
	}

	token, err := verify.GenerateToken()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	td, err := s.repo.CreateTrackedDomain(ctx, &model.TrackedDomain{
		UserID:            userID,
		DomainID:          d.ID,
		VerificationToken: token,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if td == nil {
		// Unique-constraint collision: someone (another tab, a double
		// submit) created the claim between our check and insert. Resume
		// theirs; its token is the one evidence may exist for.
		existing, err = s.repo.FindTrackedDomain(ctx, userID, d.ID)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if existing == nil {
			return nil, apperrors.Internal(fmt.Errorf("tracked domain vanished after creation race"))
		}
		return s.resumeResult(name, existing), nil
	}

	return &AddDomainResult{
		ID:                td.ID,
		Domain:            name,
		VerificationToken: token,
		Instructions:      verify.BuildInstructions(name, token),
		Resumed:           false,
	}, nil
}

func (s *Service) resumeResult(name string, td *model.TrackedDomain) *AddDomainResult {
	return &AddDomainResult{
		ID:                td.ID,
		Domain:            name,
		VerificationToken: td.VerificationToken,
		Instructions:      verify.BuildInstructions(name, td.VerificationToken),
		Resumed:           true,
	}
}

// VerifyDomain runs a user-triggered ownership check. A nil method means
// "try everything in priority order". The result is always a value, never
// a thrown failure: negatives carry a friendly error string for the UI.
func (s *Service) VerifyDomain(ctx context.Context, userID, trackedDomainID uuid.UUID, method *model.VerificationMethod) (model.VerificationResult, error) {
	view, err := s.ownedView(ctx, userID, trackedDomainID)
	if err != nil {
		return model.VerificationResult{}, err
	}

	var result model.VerificationResult
	if method != nil {
		if !method.Valid() {
			return model.VerificationResult{}, apperrors.BadRequest("unknown verification method", nil)
		}
		result = s.verifier.Verify(ctx, view.DomainName, view.VerificationToken, *method)
	} else {
		result = s.verifier.TryAll(ctx, view.DomainName, view.VerificationToken)
	}

	if result.Verified {
		if err := s.repo.VerifyTrackedDomain(ctx, view.ID, result.Method); err != nil {
			return model.VerificationResult{}, apperrors.Internal(err)
		}
		s.logger.Info("domain verified",
			"tracked_domain_id", view.ID.String(),
			"domain", view.DomainName,
			"method", string(result.Method))
		return result, nil
	}

	if result.Error == "" {
		result.Error = verificationFailedMessage
	}
	return result, nil
}

// Instructions recomputes the setup bundle for an existing claim.
func (s *Service) Instructions(ctx context.Context, userID, trackedDomainID uuid.UUID) (verify.Instructions, error) {
	view, err := s.ownedView(ctx, userID, trackedDomainID)
	if err != nil {
		return verify.Instructions{}, err
	}
	return verify.BuildInstructions(view.DomainName, view.VerificationToken), nil
}

func (s *Service) ListDomains(ctx context.Context, userID uuid.UUID) ([]*model.TrackedDomainView, error) {
	views, err := s.repo.ListTrackedDomains(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return views, nil
}

func (s *Service) ArchiveDomain(ctx context.Context, userID, trackedDomainID uuid.UUID) error {
	if _, err := s.ownedView(ctx, userID, trackedDomainID); err != nil {
		return err
	}
	if err := s.repo.ArchiveTrackedDomain(ctx, trackedDomainID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *Service) UpdateNotificationOverrides(ctx context.Context, userID, trackedDomainID uuid.UUID, overrides model.NotificationOverrides) error {
	if _, err := s.ownedView(ctx, userID, trackedDomainID); err != nil {
		return err
	}
	if err := s.repo.UpdateNotificationOverrides(ctx, trackedDomainID, overrides); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *Service) ownedView(ctx context.Context, userID, trackedDomainID uuid.UUID) (*model.TrackedDomainView, error) {
	view, err := s.repo.FindTrackedDomainWithDomainName(ctx, trackedDomainID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if view == nil {
		return nil, apperrors.NotFound("tracked domain", nil)
	}
	if view.UserID != userID {
		return nil, apperrors.Forbidden("not your domain", nil)
	}
	return view, nil
}

// normalizeDomainName lowercases and strips the decorations users paste in
// (scheme, path, trailing dot).
func normalizeDomainName(raw string) (string, error) {
	name := strings.TrimSpace(strings.ToLower(raw))
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	if i := strings.IndexAny(name, "/?#"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSuffix(name, ".")

	if name == "" || len(name) > 253 {
		return "", fmt.Errorf("domain name %q out of range", raw)
	}
	if !strings.Contains(name, ".") {
		return "", fmt.Errorf("%q is not a registrable domain", raw)
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" || len(label) > 63 {
			return "", fmt.Errorf("domain label %q out of range", label)
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "", fmt.Errorf("domain label %q has a leading or trailing hyphen", label)
		}
		for _, r := range label {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
				return "", fmt.Errorf("domain label %q has invalid characters", label)
			}
		}
	}
	return name, nil
}
