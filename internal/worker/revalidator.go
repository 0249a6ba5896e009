package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/domainstack/api/internal/repository"
	domainsvc "github.com/domainstack/api/internal/service/domain"
	"github.com/domainstack/api/pkg/logger"
	"github.com/domainstack/api/pkg/metrics"
)

// Lifecycle is the per-claim state machine the revalidator drives.
type Lifecycle interface {
	Reverify(ctx context.Context, trackedDomainID uuid.UUID) (domainsvc.ReverifyAction, error)
}

type RevalidatorConfig struct {
	Interval      time.Duration
	Concurrency   int
	RetryAttempts int
	RetryDelay    time.Duration
}

// Revalidator periodically enumerates pending and verified claims and fans
// out one independent re-check per claim. It is strictly
// enumerate-and-dispatch: each unit carries its own retry policy, and the
// pass reports only aggregate counts.
type Revalidator struct {
	repo      repository.DomainRepository
	lifecycle Lifecycle
	config    RevalidatorConfig
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

func NewRevalidator(repo repository.DomainRepository, lifecycle Lifecycle, config RevalidatorConfig, m *metrics.Metrics, log *logger.Logger) *Revalidator {
	if config.Interval <= 0 {
		config.Interval = 12 * time.Hour
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 10
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	return &Revalidator{
		repo:      repo,
		lifecycle: lifecycle,
		config:    config,
		metrics:   m,
		logger:    log,
	}
}

// Summary is the aggregate outcome of one pass.
type Summary struct {
	Scheduled     int
	Verified      int
	Pending       int
	Failing       int
	InGracePeriod int
	Revoked       int
	Errors        int
}

func (s Summary) fields() map[string]interface{} {
	return map[string]interface{}{
		"scheduled":       s.Scheduled,
		"verified":        s.Verified,
		"pending":         s.Pending,
		"failing":         s.Failing,
		"in_grace_period": s.InGracePeriod,
		"revoked":         s.Revoked,
		"errors":          s.Errors,
	}
}

func (r *Revalidator) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("starting revalidator", "interval", r.config.Interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down revalidator")
			return
		case <-ticker.C:
			summary, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Error(err, "revalidation pass failed")
				continue
			}
			r.logger.WithFields(summary.fields()).Info("revalidation pass complete")
		}
	}
}

// RunOnce executes a single enumerate-and-dispatch pass. Units run with
// bounded parallelism; a unit exhausting its retries counts as an error but
// never aborts the other units.
func (r *Revalidator) RunOnce(ctx context.Context) (Summary, error) {
	pending, err := r.repo.PendingTrackedDomainIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to enumerate pending claims: %w", err)
	}
	verified, err := r.repo.VerifiedTrackedDomainIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to enumerate verified claims: %w", err)
	}

	ids := append(pending, verified...)

	var mu sync.Mutex
	summary := Summary{Scheduled: len(ids)}

	g := new(errgroup.Group)
	g.SetLimit(r.config.Concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			var action domainsvc.ReverifyAction
			err := retry(ctx, r.config.RetryAttempts, r.config.RetryDelay, func() error {
				var rerr error
				action, rerr = r.lifecycle.Reverify(ctx, id)
				return rerr
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Errors++
				r.metrics.RevalidationErrors.Inc()
				r.logger.Error(err, "reverification unit failed",
					"tracked_domain_id", id.String())
				return nil
			}
			switch action {
			case domainsvc.ActionVerified:
				summary.Verified++
			case domainsvc.ActionPending:
				summary.Pending++
			case domainsvc.ActionFailing:
				summary.Failing++
			case domainsvc.ActionInGracePeriod:
				summary.InGracePeriod++
			case domainsvc.ActionRevoked:
				summary.Revoked++
				r.metrics.GracePeriodRevokes.Inc()
			}
			return nil
		})
	}

	g.Wait()
	r.metrics.RevalidationRuns.Inc()
	return summary, nil
}
