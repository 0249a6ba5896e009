package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VerificationMethod is the closed set of ways a user can prove control of
// a domain.
type VerificationMethod string

const (
	MethodDNSTxt   VerificationMethod = "dns_txt"
	MethodHTMLFile VerificationMethod = "html_file"
	MethodMetaTag  VerificationMethod = "meta_tag"
)

// Methods lists all verification methods in check-priority order: DNS is
// cheapest and least likely to false-negative, so it always goes first.
func Methods() []VerificationMethod {
	return []VerificationMethod{MethodDNSTxt, MethodHTMLFile, MethodMetaTag}
}

func (m VerificationMethod) Valid() bool {
	switch m {
	case MethodDNSTxt, MethodHTMLFile, MethodMetaTag:
		return true
	}
	return false
}

type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusVerified   VerificationStatus = "verified"
	StatusFailing    VerificationStatus = "failing"
)

// Domain is the deduplicated registrable domain shared by every user
// tracking it. Expiry data is refreshed out of band by the monitoring
// pipeline.
type Domain struct {
	Base
	Name                string     `db:"name" json:"name"`
	Registrar           string     `db:"registrar" json:"registrar,omitempty"`
	RegistrationExpiry  *time.Time `db:"registration_expiry" json:"registration_expiry,omitempty"`
	CertificateExpiry   *time.Time `db:"certificate_expiry" json:"certificate_expiry,omitempty"`
	CertificateIssuer   string     `db:"certificate_issuer" json:"certificate_issuer,omitempty"`
	HostingProvider     string     `db:"hosting_provider" json:"hosting_provider,omitempty"`
	LastCheckedAt       *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
}

// NotificationOverrides is a sparse map of per-category boolean overrides
// stored as JSONB. A missing key means "use the user's global preference".
type NotificationOverrides map[NotificationCategory]bool

func (o NotificationOverrides) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

func (o *NotificationOverrides) Scan(src interface{}) error {
	if src == nil {
		*o = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported scan type %T for NotificationOverrides", src)
	}
	return json.Unmarshal(b, o)
}

// TrackedDomain is one user's claim to monitor one domain. The verification
// token is generated once at creation and never changes for the life of the
// claim: published DNS/file/meta evidence refers to that exact value, so any
// resume flow must reuse it.
type TrackedDomain struct {
	Base
	UserID                uuid.UUID             `db:"user_id" json:"user_id"`
	DomainID              uuid.UUID             `db:"domain_id" json:"domain_id"`
	VerificationToken     string                `db:"verification_token" json:"-"`
	VerificationMethod    *VerificationMethod   `db:"verification_method" json:"verification_method,omitempty"`
	Verified              bool                  `db:"verified" json:"verified"`
	VerificationStatus    VerificationStatus    `db:"verification_status" json:"verification_status"`
	VerificationFailedAt  *time.Time            `db:"verification_failed_at" json:"verification_failed_at,omitempty"`
	ArchivedAt            *time.Time            `db:"archived_at" json:"archived_at,omitempty"`
	NotificationOverrides NotificationOverrides `db:"notification_overrides" json:"notification_overrides,omitempty"`
}

// TrackedDomainView joins a claim with its domain row for anything that
// needs the bare name or expiry data alongside the claim.
type TrackedDomainView struct {
	TrackedDomain
	DomainName         string     `db:"domain_name" json:"domain"`
	RegistrationExpiry *time.Time `db:"registration_expiry" json:"registration_expiry,omitempty"`
	CertificateExpiry  *time.Time `db:"certificate_expiry" json:"certificate_expiry,omitempty"`
}

// VerificationResult is the ephemeral outcome of one verification attempt.
// It is never persisted.
type VerificationResult struct {
	Verified bool               `json:"verified"`
	Method   VerificationMethod `json:"method,omitempty"`
	Error    string             `json:"error,omitempty"`
}
