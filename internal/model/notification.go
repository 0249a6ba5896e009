package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType is the closed enum of dispatchable alerts. Each value is
// also the dedup key suffix: at most one notification row ever exists per
// (tracked domain, type).
type NotificationType string

const (
	NotificationDomainExpiry30d NotificationType = "domain_expiry_30d"
	NotificationDomainExpiry14d NotificationType = "domain_expiry_14d"
	NotificationDomainExpiry7d  NotificationType = "domain_expiry_7d"
	NotificationDomainExpiry1d  NotificationType = "domain_expiry_1d"

	NotificationCertExpiry14d NotificationType = "certificate_expiry_14d"
	NotificationCertExpiry7d  NotificationType = "certificate_expiry_7d"
	NotificationCertExpiry3d  NotificationType = "certificate_expiry_3d"
	NotificationCertExpiry1d  NotificationType = "certificate_expiry_1d"

	NotificationVerificationFailing NotificationType = "verification_failing"
	NotificationVerificationRevoked NotificationType = "verification_revoked"

	NotificationRegistrationChange NotificationType = "registration_change"
	NotificationProviderChange     NotificationType = "provider_change"
	NotificationCertificateChange  NotificationType = "certificate_change"
)

// DomainExpiryTypes are the domain-registration expiry types, tightest last.
func DomainExpiryTypes() []NotificationType {
	return []NotificationType{
		NotificationDomainExpiry30d,
		NotificationDomainExpiry14d,
		NotificationDomainExpiry7d,
		NotificationDomainExpiry1d,
	}
}

// CertExpiryTypes are the certificate expiry types, tightest last.
func CertExpiryTypes() []NotificationType {
	return []NotificationType{
		NotificationCertExpiry14d,
		NotificationCertExpiry7d,
		NotificationCertExpiry3d,
		NotificationCertExpiry1d,
	}
}

// NotificationCategory groups types for preference lookups.
type NotificationCategory string

const (
	CategoryDomainExpiry      NotificationCategory = "domain_expiry"
	CategoryCertificateExpiry NotificationCategory = "certificate_expiry"
	CategoryVerification      NotificationCategory = "verification"
	CategoryChanges           NotificationCategory = "changes"
)

// Category maps a notification type to its preference category.
func (t NotificationType) Category() NotificationCategory {
	switch t {
	case NotificationDomainExpiry30d, NotificationDomainExpiry14d,
		NotificationDomainExpiry7d, NotificationDomainExpiry1d:
		return CategoryDomainExpiry
	case NotificationCertExpiry14d, NotificationCertExpiry7d,
		NotificationCertExpiry3d, NotificationCertExpiry1d:
		return CategoryCertificateExpiry
	case NotificationVerificationFailing, NotificationVerificationRevoked:
		return CategoryVerification
	default:
		return CategoryChanges
	}
}

// Notification is a durable append-only row recording "this (claim, type)
// has been dispatched". It exists purely as a deduplication lock: inserting
// it claims the send before the external delivery is attempted.
type Notification struct {
	ID                uuid.UUID        `db:"id" json:"id"`
	TrackedDomainID   uuid.UUID        `db:"tracked_domain_id" json:"tracked_domain_id"`
	Type              NotificationType `db:"type" json:"type"`
	ExternalMessageID *string          `db:"external_message_id" json:"external_message_id,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
}

// NotificationPreferences holds a user's global per-category switches.
// Columns default to true: absence of an explicit opt-out always means on.
type NotificationPreferences struct {
	UserID            uuid.UUID `db:"user_id" json:"user_id"`
	DomainExpiry      bool      `db:"domain_expiry" json:"domain_expiry"`
	CertificateExpiry bool      `db:"certificate_expiry" json:"certificate_expiry"`
	Verification      bool      `db:"verification" json:"verification"`
	Changes           bool      `db:"changes" json:"changes"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Enabled returns the global switch for a category.
func (p *NotificationPreferences) Enabled(category NotificationCategory) bool {
	switch category {
	case CategoryDomainExpiry:
		return p.DomainExpiry
	case CategoryCertificateExpiry:
		return p.CertificateExpiry
	case CategoryVerification:
		return p.Verification
	case CategoryChanges:
		return p.Changes
	}
	return true
}
