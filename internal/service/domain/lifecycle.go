package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/domainstack/api/pkg/errors"
)

// GracePeriodDays is how long a previously verified domain may keep failing
// re-checks before its verification is revoked.
const GracePeriodDays = 7

// ReverifyAction reports which lifecycle edge one scheduled re-check took.
type ReverifyAction string

const (
	ActionVerified      ReverifyAction = "verified"
	ActionPending       ReverifyAction = "pending"
	ActionFailing       ReverifyAction = "failing"
	ActionInGracePeriod ReverifyAction = "in_grace_period"
	ActionRevoked       ReverifyAction = "revoked"
	ActionSkipped       ReverifyAction = "skipped"
)

// Reverify runs one scheduled ownership re-check and advances the claim's
// lifecycle: unverified -> verified -> failing -> revoked, with a silent
// failing -> verified recovery edge. The scheduler enumerates each claim
// exactly once per pass, so this never runs concurrently for one claim.
func (s *Service) Reverify(ctx context.Context, trackedDomainID uuid.UUID) (ReverifyAction, error) {
	view, err := s.repo.FindTrackedDomainWithDomainName(ctx, trackedDomainID)
	if err != nil {
		return ActionSkipped, apperrors.Retryable(err)
	}
	if view == nil || view.ArchivedAt != nil {
		return ActionSkipped, nil
	}

	result := s.verifier.TryAll(ctx, view.DomainName, view.VerificationToken)

	if result.Verified {
		if !view.Verified {
			// Pending claim whose evidence finally propagated.
			if err := s.repo.VerifyTrackedDomain(ctx, view.ID, result.Method); err != nil {
				return ActionSkipped, apperrors.Retryable(err)
			}
			s.logger.Info("domain auto-verified",
				"tracked_domain_id", view.ID.String(),
				"domain", view.DomainName,
				"method", string(result.Method))
			return ActionVerified, nil
		}

		// Recovery is silent: clearing the failure state is enough.
		if err := s.repo.MarkVerificationSuccessful(ctx, view.ID); err != nil {
			return ActionSkipped, apperrors.Retryable(err)
		}
		return ActionVerified, nil
	}

	if !view.Verified {
		// Still waiting for first-time evidence; nothing to escalate.
		return ActionPending, nil
	}

	// Failed re-check on a verified claim.
	if view.VerificationFailedAt == nil {
		// Either the first failure, or a failing row missing its timestamp
		// (shouldn't happen); both get stamped now and warned.
		if err := s.repo.MarkVerificationFailing(ctx, view.ID); err != nil {
			return ActionSkipped, apperrors.Retryable(err)
		}
		if err := s.notifier.NotifyVerificationFailing(ctx, view); err != nil {
			return ActionFailing, fmt.Errorf("verification_failing notification: %w", err)
		}
		s.logger.Warn("domain verification failing",
			"tracked_domain_id", view.ID.String(), "domain", view.DomainName)
		return ActionFailing, nil
	}

	if s.now().Sub(*view.VerificationFailedAt) >= GracePeriodDays*24*time.Hour {
		if err := s.repo.RevokeVerification(ctx, view.ID); err != nil {
			return ActionSkipped, apperrors.Retryable(err)
		}
		if err := s.notifier.NotifyVerificationRevoked(ctx, view); err != nil {
			return ActionRevoked, fmt.Errorf("verification_revoked notification: %w", err)
		}
		s.logger.Warn("domain verification revoked",
			"tracked_domain_id", view.ID.String(), "domain", view.DomainName)
		return ActionRevoked, nil
	}

	// Still inside the grace window: stay failing, no new notification.
	return ActionInGracePeriod, nil
}
