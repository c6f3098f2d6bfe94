package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecoveryRuns counts recovery runs by degradation tier and resulting health
	RecoveryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfmend_recovery_runs_total",
			Help: "Total number of recovery runs",
		},
		[]string{"tier", "health"},
	)

	// RecoveryDuration tracks end-to-end run latency
	RecoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pdfmend_recovery_duration_seconds",
			Help:    "Recovery run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StrategyApplications counts strategy runs by outcome
	StrategyApplications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfmend_strategy_applications_total",
			Help: "Total number of strategy applications",
		},
		[]string{"strategy", "outcome"},
	)

	// StrategyDuration tracks per-strategy latency
	StrategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdfmend_strategy_duration_seconds",
			Help:    "Strategy application duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"strategy"},
	)

	// ReconstructionFragments tracks fragments found per reconstruction
	ReconstructionFragments = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pdfmend_reconstruction_fragments",
			Help:    "Number of fragments processed per reconstruction",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// ReconstructionConfidence tracks the confidence of the latest reconstruction
	ReconstructionConfidence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pdfmend_reconstruction_confidence",
			Help: "Confidence of the most recent reconstruction",
		},
	)

	// DiagnosticChecks counts checker findings by status
	DiagnosticChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfmend_diagnostic_checks_total",
			Help: "Total number of diagnostic checks",
		},
		[]string{"checker", "status"},
	)

	// ArchiveOperations counts report archive calls per backend
	ArchiveOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfmend_archive_operations_total",
			Help: "Total number of report archive operations",
		},
		[]string{"backend", "operation", "outcome"},
	)

	// DBConnectionPoolUsage tracks the archive database pool usage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pdfmend_db_connection_pool_usage_percent",
			Help: "Archive database connection pool usage percentage",
		},
	)
)
