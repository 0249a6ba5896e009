package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

// CreateNotification inserts the dedup row for (tracked domain, type).
// The unique constraint makes this an atomic claim: when two dispatches
// race, exactly one gets a row back and the other gets nil.
func (r *notificationRepository) CreateNotification(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType) (*model.Notification, error) {
	query := `
		INSERT INTO notifications (id, tracked_domain_id, type, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tracked_domain_id, type) DO NOTHING
		RETURNING id, tracked_domain_id, type, external_message_id, created_at
	`

	var n model.Notification
	err := r.GetDB().GetContext(ctx, &n, query, uuid.New(), trackedDomainID, t, time.Now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Conflict path: DO NOTHING returns no row. Already sent.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) FindNotification(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType) (*model.Notification, error) {
	query := `
		SELECT id, tracked_domain_id, type, external_message_id, created_at
		FROM notifications
		WHERE tracked_domain_id = $1 AND type = $2
	`

	var n model.Notification
	if err := r.GetDB().GetContext(ctx, &n, query, trackedDomainID, t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) HasNotificationBeenSent(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE tracked_domain_id = $1 AND type = $2
		)
	`

	var exists bool
	if err := r.GetDB().GetContext(ctx, &exists, query, trackedDomainID, t); err != nil {
		return false, fmt.Errorf("failed to check notification: %w", err)
	}
	return exists, nil
}

func (r *notificationRepository) HasRecentNotification(ctx context.Context, trackedDomainID uuid.UUID, t model.NotificationType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE tracked_domain_id = $1 AND type = $2
			  AND created_at > NOW() - INTERVAL '24 hours'
		)
	`

	var exists bool
	if err := r.GetDB().GetContext(ctx, &exists, query, trackedDomainID, t); err != nil {
		return false, fmt.Errorf("failed to check recent notification: %w", err)
	}
	return exists, nil
}

func (r *notificationRepository) UpdateNotificationResendID(ctx context.Context, id uuid.UUID, externalMessageID string) error {
	query := `
		UPDATE notifications SET external_message_id = $2 WHERE id = $1
	`

	if _, err := r.GetDB().ExecContext(ctx, query, id, externalMessageID); err != nil {
		return fmt.Errorf("failed to update notification message id: %w", err)
	}
	return nil
}

func (r *notificationRepository) ClearDomainExpiryNotifications(ctx context.Context, trackedDomainID uuid.UUID) error {
	return r.clearByTypes(ctx, trackedDomainID, model.DomainExpiryTypes())
}

func (r *notificationRepository) ClearCertificateExpiryNotifications(ctx context.Context, trackedDomainID uuid.UUID) error {
	return r.clearByTypes(ctx, trackedDomainID, model.CertExpiryTypes())
}

func (r *notificationRepository) clearByTypes(ctx context.Context, trackedDomainID uuid.UUID, types []model.NotificationType) error {
	strs := make([]string, len(types))
	for i, t := range types {
		strs[i] = string(t)
	}

	query := `
		DELETE FROM notifications
		WHERE tracked_domain_id = $1 AND type = ANY($2)
	`

	if _, err := r.GetDB().ExecContext(ctx, query, trackedDomainID, pq.Array(strs)); err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}
	return nil
}
