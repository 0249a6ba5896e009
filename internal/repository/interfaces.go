package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/domainstack/api/internal/model"
)

// DomainRepository persists domains and per-user tracking claims.
type DomainRepository interface {
	GetOrCreateDomain(ctx context.Context, name string) (*model.Domain, error)
	GetDomain(ctx context.Context, id uuid.UUID) (*model.Domain, error)

	// CreateTrackedDomain inserts a claim and returns nil (no error) when
	// the (user, domain) unique constraint already holds: the caller lost a
	// creation race and must re-fetch the existing claim.
	CreateTrackedDomain(ctx context.Context, td *model.TrackedDomain) (*model.TrackedDomain, error)
	FindTrackedDomain(ctx context.Context, userID, domainID uuid.UUID) (*model.TrackedDomain, error)
	FindTrackedDomainByID(ctx context.Context, id uuid.UUID) (*model.TrackedDomain, error)
	FindTrackedDomainWithDomainName(ctx context.Context, id uuid.UUID) (*model.TrackedDomainView, error)
	ListTrackedDomains(ctx context.Context, userID uuid.UUID) ([]*model.TrackedDomainView, error)
	CountActiveTrackedDomains(ctx context.Context, userID uuid.UUID) (int, error)

	VerifyTrackedDomain(ctx context.Context, id uuid.UUID, method model.VerificationMethod) error
	MarkVerificationFailing(ctx context.Context, id uuid.UUID) error
	MarkVerificationSuccessful(ctx context.Context, id uuid.UUID) error
	RevokeVerification(ctx context.Context, id uuid.UUID) error

	PendingTrackedDomainIDs(ctx context.Context) ([]uuid.UUID, error)
	VerifiedTrackedDomainIDs(ctx context.Context) ([]uuid.UUID, error)
	VerifiedTrackedDomainsWithExpiry(ctx context.Context) ([]*model.TrackedDomainView, error)
	VerifiedTrackedDomainCertificates(ctx context.Context) ([]*model.TrackedDomainView, error)

	ArchiveTrackedDomain(ctx context.Context, id uuid.UUID) error
	UpdateNotificationOverrides(ctx context.Context, id uuid.UUID, overrides model.NotificationOverrides) error
}

// NotificationRepository persists the dedup rows. CreateNotification is the
// single point of cross-invocation coordination: insert-if-absent under a
// unique (tracked_domain_id, type) constraint.
type NotificationRepository interface {
	// CreateNotification returns (nil, nil) when a row for the pair already
	// exists; a nil record means "already sent", never an error.
	CreateNotification(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType) (*model.Notification, error)
	// FindNotification returns the dedup row for the pair, nil when none
	// exists. A row with a NULL external message ID is a claim whose send
	// was never confirmed.
	FindNotification(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType) (*model.Notification, error)
	HasNotificationBeenSent(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType) (bool, error)
	HasRecentNotification(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType) (bool, error)
	UpdateNotificationResendID(ctx context.Context, id uuid.UUID, externalMessageID string) error
	ClearDomainExpiryNotifications(ctx context.Context, trackedDomainID uuid.UUID) error
	ClearCertificateExpiryNotifications(ctx context.Context, trackedDomainID uuid.UUID) error
}

// PreferenceRepository persists global per-category notification switches.
type PreferenceRepository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error)
	Update(ctx context.Context, prefs *model.NotificationPreferences) error
}

// UserRepository persists dashboard accounts.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}
