package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/internal/repository"
)

type preferenceRepository struct {
	BaseRepository
}

func NewPreferenceRepository(base BaseRepository) repository.PreferenceRepository {
	return &preferenceRepository{base}
}

// GetOrCreate returns the user's preference row, inserting the all-on
// default first if none exists yet. Safety-relevant categories default to
// enabled: a user who never touched settings still gets expiry warnings.
func (r *preferenceRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.NotificationPreferences, error) {
	insert := `
		INSERT INTO notification_preferences (user_id, domain_expiry, certificate_expiry, verification, changes, updated_at)
		VALUES ($1, TRUE, TRUE, TRUE, TRUE, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.GetDB().ExecContext(ctx, insert, userID); err != nil {
		return nil, fmt.Errorf("failed to seed notification preferences: %w", err)
	}

	query := `SELECT * FROM notification_preferences WHERE user_id = $1`

	var prefs model.NotificationPreferences
	if err := r.GetDB().GetContext(ctx, &prefs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	return &prefs, nil
}

func (r *preferenceRepository) Update(ctx context.Context, prefs *model.NotificationPreferences) error {
	query := `
		UPDATE notification_preferences
		SET domain_expiry = $2,
		    certificate_expiry = $3,
		    verification = $4,
		    changes = $5,
		    updated_at = NOW()
		WHERE user_id = $1
	`

	_, err := r.GetDB().ExecContext(ctx, query,
		prefs.UserID, prefs.DomainExpiry, prefs.CertificateExpiry,
		prefs.Verification, prefs.Changes,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification preferences: %w", err)
	}
	return nil
}
