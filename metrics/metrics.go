package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WithdrawalTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "withdrawal_transitions_total",
			Help:      "Withdrawal status transitions by resulting status.",
		},
		[]string{"chain", "status"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "treasury",
			Name:      "withdrawal_execution_seconds",
			Help:      "Time spent executing a withdrawal, including broadcast.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"chain", "outcome"},
	)

	EnqueueFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "enqueue_failures_total",
			Help:      "Approved withdrawals whose execution job could not be enqueued.",
		},
	)

	SweepRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "sweep_requeued_total",
			Help:      "Approved withdrawals re-enqueued by the reconciliation sweep.",
		},
	)

	StuckProcessing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "treasury",
			Name:      "stuck_processing_withdrawals",
			Help:      "Withdrawals in processing longer than the stuck threshold at the last sweep.",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "treasury",
			Name:      "execution_queue_depth",
			Help:      "Pending execution jobs at the last sweep.",
		},
	)

	BalanceFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "balance_fetch_failures_total",
			Help:      "Failed wallet balance lookups.",
		},
		[]string{"chain"},
	)

	AuditFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be written.",
		},
	)
)
