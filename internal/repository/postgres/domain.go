package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/internal/repository"
)

type domainRepository struct {
	BaseRepository
}

func NewDomainRepository(base BaseRepository) repository.DomainRepository {
	return &domainRepository{base}
}

func (r *domainRepository) GetOrCreateDomain(ctx context.Context, name string) (*model.Domain, error) {
	query := `
		INSERT INTO domains (id, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET updated_at = domains.updated_at
		RETURNING id, name, registrar, registration_expiry, certificate_expiry,
		          certificate_issuer, hosting_provider, last_checked_at,
		          created_at, updated_at
	`

	var domain model.Domain
	if err := r.GetDB().GetContext(ctx, &domain, query, uuid.New(), name); err != nil {
		return nil, fmt.Errorf("failed to get or create domain: %w", err)
	}
	return &domain, nil
}

func (r *domainRepository) GetDomain(ctx context.Context, id uuid.UUID) (*model.Domain, error) {
	query := `SELECT * FROM domains WHERE id = $1`

	var domain model.Domain
	if err := r.GetDB().GetContext(ctx, &domain, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}
	return &domain, nil
}

func (r *domainRepository) CreateTrackedDomain(ctx context.Context, td *model.TrackedDomain) (*model.TrackedDomain, error) {
	td.ID = uuid.New()
	td.CreatedAt = time.Now()
	td.UpdatedAt = td.CreatedAt
	td.VerificationStatus = model.StatusUnverified

	query := `
		INSERT INTO tracked_domains (
			id, user_id, domain_id, verification_token, verified,
			verification_status, notification_overrides, created_at, updated_at
		) VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7, $8)
	`

	_, err := r.GetDB().ExecContext(ctx, query,
		td.ID, td.UserID, td.DomainID, td.VerificationToken,
		td.VerificationStatus, td.NotificationOverrides, td.CreatedAt, td.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the creation race: somebody inserted the same
			// (user, domain) pair first. Callers re-fetch and resume.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to create tracked domain: %w", err)
	}
	return td, nil
}

func (r *domainRepository) FindTrackedDomain(ctx context.Context, userID, domainID uuid.UUID) (*model.TrackedDomain, error) {
	query := `
		SELECT * FROM tracked_domains
		WHERE user_id = $1 AND domain_id = $2 AND archived_at IS NULL
	`

	var td model.TrackedDomain
	if err := r.GetDB().GetContext(ctx, &td, query, userID, domainID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tracked domain: %w", err)
	}
	return &td, nil
}

func (r *domainRepository) FindTrackedDomainByID(ctx context.Context, id uuid.UUID) (*model.TrackedDomain, error) {
	query := `SELECT * FROM tracked_domains WHERE id = $1`

	var td model.TrackedDomain
	if err := r.GetDB().GetContext(ctx, &td, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tracked domain: %w", err)
	}
	return &td, nil
}

const trackedDomainViewColumns = `
	td.id, td.user_id, td.domain_id, td.verification_token,
	td.verification_method, td.verified, td.verification_status,
	td.verification_failed_at, td.archived_at, td.notification_overrides,
	td.created_at, td.updated_at,
	d.name AS domain_name, d.registration_expiry, d.certificate_expiry
`

func (r *domainRepository) FindTrackedDomainWithDomainName(ctx context.Context, id uuid.UUID) (*model.TrackedDomainView, error) {
	query := `
		SELECT ` + trackedDomainViewColumns + `
		FROM tracked_domains td
		JOIN domains d ON d.id = td.domain_id
		WHERE td.id = $1
	`

	var view model.TrackedDomainView
	if err := r.GetDB().GetContext(ctx, &view, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tracked domain with name: %w", err)
	}
	return &view, nil
}

func (r *domainRepository) ListTrackedDomains(ctx context.Context, userID uuid.UUID) ([]*model.TrackedDomainView, error) {
	query := `
		SELECT ` + trackedDomainViewColumns + `
		FROM tracked_domains td
		JOIN domains d ON d.id = td.domain_id
		WHERE td.user_id = $1 AND td.archived_at IS NULL
		ORDER BY d.name
	`

	var views []*model.TrackedDomainView
	if err := r.GetDB().SelectContext(ctx, &views, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list tracked domains: %w", err)
	}
	return views, nil
}

func (r *domainRepository) CountActiveTrackedDomains(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM tracked_domains
		WHERE user_id = $1 AND archived_at IS NULL
	`

	var count int
	if err := r.GetDB().GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count tracked domains: %w", err)
	}
	return count, nil
}

func (r *domainRepository) VerifyTrackedDomain(ctx context.Context, id uuid.UUID, method model.VerificationMethod) error {
	query := `
		UPDATE tracked_domains
		SET verified = TRUE,
		    verification_method = $2,
		    verification_status = 'verified',
		    verification_failed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.GetDB().ExecContext(ctx, query, id, method); err != nil {
		return fmt.Errorf("failed to verify tracked domain: %w", err)
	}
	return nil
}

func (r *domainRepository) MarkVerificationFailing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tracked_domains
		SET verification_status = 'failing',
		    verification_failed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.GetDB().ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark verification failing: %w", err)
	}
	return nil
}

func (r *domainRepository) MarkVerificationSuccessful(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tracked_domains
		SET verification_status = 'verified',
		    verification_failed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.GetDB().ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark verification successful: %w", err)
	}
	return nil
}

func (r *domainRepository) RevokeVerification(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tracked_domains
		SET verified = FALSE,
		    verification_method = NULL,
		    verification_status = 'unverified',
		    verification_failed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.GetDB().ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to revoke verification: %w", err)
	}
	return nil
}

func (r *domainRepository) PendingTrackedDomainIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM tracked_domains
		WHERE verified = FALSE
		  AND verification_status = 'unverified'
		  AND archived_at IS NULL
	`

	var ids []uuid.UUID
	if err := r.GetDB().SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list pending tracked domains: %w", err)
	}
	return ids, nil
}

func (r *domainRepository) VerifiedTrackedDomainIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM tracked_domains
		WHERE verified = TRUE AND archived_at IS NULL
	`

	var ids []uuid.UUID
	if err := r.GetDB().SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list verified tracked domains: %w", err)
	}
	return ids, nil
}

func (r *domainRepository) VerifiedTrackedDomainsWithExpiry(ctx context.Context) ([]*model.TrackedDomainView, error) {
	query := `
		SELECT ` + trackedDomainViewColumns + `
		FROM tracked_domains td
		JOIN domains d ON d.id = td.domain_id
		WHERE td.verified = TRUE
		  AND td.archived_at IS NULL
		  AND d.registration_expiry IS NOT NULL
	`

	var views []*model.TrackedDomainView
	if err := r.GetDB().SelectContext(ctx, &views, query); err != nil {
		return nil, fmt.Errorf("failed to list domains with expiry: %w", err)
	}
	return views, nil
}

func (r *domainRepository) VerifiedTrackedDomainCertificates(ctx context.Context) ([]*model.TrackedDomainView, error) {
	query := `
		SELECT ` + trackedDomainViewColumns + `
		FROM tracked_domains td
		JOIN domains d ON d.id = td.domain_id
		WHERE td.verified = TRUE
		  AND td.archived_at IS NULL
		  AND d.certificate_expiry IS NOT NULL
	`

	var views []*model.TrackedDomainView
	if err := r.GetDB().SelectContext(ctx, &views, query); err != nil {
		return nil, fmt.Errorf("failed to list domains with certificates: %w", err)
	}
	return views, nil
}

func (r *domainRepository) ArchiveTrackedDomain(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tracked_domains
		SET archived_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`

	if _, err := r.GetDB().ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to archive tracked domain: %w", err)
	}
	return nil
}

func (r *domainRepository) UpdateNotificationOverrides(ctx context.Context, id uuid.UUID, overrides model.NotificationOverrides) error {
	query := `
		UPDATE tracked_domains
		SET notification_overrides = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.GetDB().ExecContext(ctx, query, id, overrides); err != nil {
		return fmt.Errorf("failed to update notification overrides: %w", err)
	}
	return nil
}
