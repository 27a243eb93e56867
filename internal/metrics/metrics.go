package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// reconciliation loop
	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vesting_reconcile_sweeps_total",
		Help: "Total number of reconciliation sweeps",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vesting_reconcile_sweep_duration_seconds",
		Help:    "Duration of a reconciliation sweep in seconds",
		Buckets: prometheus.DefBuckets,
	})

	StalePendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vesting_stale_pending_transactions",
		Help: "Number of transactions pending longer than the alert threshold",
	})

	AdapterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesting_chain_adapter_errors_total",
			Help: "Total number of chain adapter failures",
		},
		[]string{"operation"},
	)

	// transactions
	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesting_transactions_submitted_total",
			Help: "Total number of transactions recorded as pending",
		},
		[]string{"type"},
	)

	TransactionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesting_transactions_resolved_total",
			Help: "Total number of transactions resolved to a terminal outcome",
		},
		[]string{"type", "outcome"},
	)

	ConflictingResolutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vesting_conflicting_resolutions_total",
		Help: "Total number of transactions that received two different outcomes",
	})

	ConsistencyViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesting_consistency_violations_total",
			Help: "Total number of outcomes that disagreed with the recorded state",
		},
		[]string{"type"},
	)

	HookFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesting_hook_failures_total",
			Help: "Total number of outcome hooks that failed and will be retried",
		},
		[]string{"type"},
	)

	// nats
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vesting_nats_connection_status",
		Help: "NATS connection status (1 = connected, 0 = disconnected)",
	})

	NATSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesting_nats_messages_received_total",
			Help: "Total number of NATS messages received",
		},
		[]string{"subject"},
	)

	NATSMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesting_nats_messages_failed_total",
			Help: "Total number of NATS messages that could not be processed",
		},
		[]string{"subject"},
	)

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesting_nats_messages_published_total",
			Help: "Total number of resolved-transaction notifications published",
		},
		[]string{"type"},
	)
)
