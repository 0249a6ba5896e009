package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Verification metrics
	VerificationChecks  *prometheus.CounterVec
	VerificationLatency *prometheus.HistogramVec
	RevalidationRuns    prometheus.Counter
	RevalidationErrors  prometheus.Counter
	GracePeriodRevokes  prometheus.Counter

	// Notification metrics
	NotificationsSent   *prometheus.CounterVec
	NotificationsDedup  *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		VerificationChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verification_checks_total",
			Help:      "Total number of ownership verification checks by method and outcome",
		}, []string{"method", "outcome"}),
		VerificationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verification_check_duration_seconds",
			Help:      "Duration of individual verification checks",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"method"}),
		RevalidationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "revalidation_runs_total",
			Help:      "Total number of completed revalidation scheduler passes",
		}),
		RevalidationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "revalidation_errors_total",
			Help:      "Total number of revalidation units that exhausted their retries",
		}),
		GracePeriodRevokes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verification_revocations_total",
			Help:      "Total number of verifications revoked after the grace period",
		}),

		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_sent_total",
			Help:      "Total number of notifications dispatched, by type",
		}, []string{"type"}),
		NotificationsDedup: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_deduplicated_total",
			Help:      "Total number of notification dispatches skipped by the dedup lock",
		}, []string{"type"}),
		NotificationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_failed_total",
			Help:      "Total number of notification sends that failed",
		}, []string{"type"}),
	}
}

// New creates metrics with the default namespace
func New(subsystem string) *Metrics {
	return NewMetrics("domainstack", subsystem)
}
