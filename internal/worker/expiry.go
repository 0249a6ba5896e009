package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/domainstack/api/internal/model"
	"github.com/domainstack/api/internal/repository"
	"github.com/domainstack/api/pkg/logger"
	"github.com/domainstack/api/pkg/metrics"
)

// ExpiryNotifier runs the per-claim threshold checks.
type ExpiryNotifier interface {
	CheckDomainExpiry(ctx context.Context, view *model.TrackedDomainView) error
	CheckCertificateExpiry(ctx context.Context, view *model.TrackedDomainView) error
}

type ExpiryScannerConfig struct {
	Interval      time.Duration
	CertOffset    time.Duration
	Concurrency   int
	RetryAttempts int
	RetryDelay    time.Duration
}

// ExpiryScanner drives the daily expiry-notification scans. The
// certificate scan runs offset from the domain scan so the two passes
// don't contend for the same claims.
type ExpiryScanner struct {
	repo     repository.DomainRepository
	notifier ExpiryNotifier
	config   ExpiryScannerConfig
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewExpiryScanner(repo repository.DomainRepository, notifier ExpiryNotifier, config ExpiryScannerConfig, m *metrics.Metrics, log *logger.Logger) *ExpiryScanner {
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.CertOffset <= 0 {
		config.CertOffset = 15 * time.Minute
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
	return &ExpiryScanner{
		repo:     repo,
		notifier: notifier,
		config:   config,
		metrics:  m,
		logger:   log,
	}
}

func (s *ExpiryScanner) Start(ctx context.Context) {
	domainTicker := time.NewTicker(s.config.Interval)
	defer domainTicker.Stop()

	s.logger.Info("starting expiry scanner",
		"interval", s.config.Interval.String(),
		"cert_offset", s.config.CertOffset.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down expiry scanner")
			return
		case <-domainTicker.C:
			checked, failed := s.RunDomainScan(ctx)
			s.logger.Info("domain expiry scan complete", "checked", checked, "errors", failed)

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.config.CertOffset):
			}

			checked, failed = s.RunCertificateScan(ctx)
			s.logger.Info("certificate expiry scan complete", "checked", checked, "errors", failed)
		}
	}
}

// RunDomainScan checks every verified claim with a known registration
// expiry. Returns (checked, errors).
func (s *ExpiryScanner) RunDomainScan(ctx context.Context) (int, int) {
	views, err := s.repo.VerifiedTrackedDomainsWithExpiry(ctx)
	if err != nil {
		s.logger.Error(err, "failed to enumerate domains with expiry")
		return 0, 1
	}
	return s.fanOut(ctx, views, s.notifier.CheckDomainExpiry)
}

// RunCertificateScan checks every verified claim with a known certificate
// expiry. Returns (checked, errors).
func (s *ExpiryScanner) RunCertificateScan(ctx context.Context) (int, int) {
	views, err := s.repo.VerifiedTrackedDomainCertificates(ctx)
	if err != nil {
		s.logger.Error(err, "failed to enumerate certificates with expiry")
		return 0, 1
	}
	return s.fanOut(ctx, views, s.notifier.CheckCertificateExpiry)
}

func (s *ExpiryScanner) fanOut(ctx context.Context, views []*model.TrackedDomainView, check func(context.Context, *model.TrackedDomainView) error) (int, int) {
	var mu sync.Mutex
	failed := 0

	g := new(errgroup.Group)
	g.SetLimit(s.config.Concurrency)

	for _, view := range views {
		view := view
		g.Go(func() error {
			err := retry(ctx, s.config.RetryAttempts, s.config.RetryDelay, func() error {
				return check(ctx, view)
			})
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				s.logger.Error(err, "expiry check unit failed",
					"tracked_domain_id", view.ID.String(),
					"domain", view.DomainName)
			}
			return nil
		})
	}

	g.Wait()

	if failed > 0 {
		s.logger.Warn(fmt.Sprintf("%d expiry checks failed out of %d", failed, len(views)))
	}
	return len(views), failed
}
