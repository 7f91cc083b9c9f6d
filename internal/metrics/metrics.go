package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Verification metrics
	// ============================================
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_verifications_total",
			Help: "Total number of chain-truth verifications by outcome",
		},
		[]string{"network", "result"},
	)

	VerificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_verification_duration_seconds",
			Help:    "Chain-truth verification duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network"},
	)

	// ============================================
	// Reconciliation metrics
	// ============================================
	DonationsCommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_donations_committed_total",
			Help: "Total number of donation ledger entries written",
		},
		[]string{"network"},
	)

	DuplicateCommitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_duplicate_commits_total",
		Help: "Total number of commit calls short-circuited by the idempotency check",
	})

	// ============================================
	// Sweeper metrics
	// ============================================
	IntentsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_intents_expired_total",
		Help: "Total number of intents transitioned to expired by the sweeper",
	})

	// ============================================
	// Watcher feed metrics
	// ============================================
	WatcherObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_watcher_observations_total",
			Help: "Total number of passive watcher observations received",
		},
		[]string{"network"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	// ============================================
	// Price service metrics
	// ============================================
	PriceUpdateErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_price_update_errors_total",
		Help: "Total number of failed price refresh attempts",
	})
)
