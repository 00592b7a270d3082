package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "payagent"

var (
	PaymentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_runs_total",
			Help:      "Payment orchestrator runs by mode and final outcome.",
		},
		[]string{"mode", "outcome"},
	)

	TransactionsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_settled_total",
			Help:      "Transactions written to a terminal status, by status and path (browser or fast_track).",
		},
		[]string{"status", "path"},
	)

	AutomationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_actions_total",
			Help:      "Automation actions executed, by action and result.",
		},
		[]string{"action", "result"},
	)

	SnapshotFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_feed_snapshot_failures_total",
			Help:      "Live feed snapshots that could not be captured or written.",
		},
	)

	PinWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pin_wait_seconds",
			Help:      "Time spent blocked on the PIN handshake.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120, 180, 300},
		},
		[]string{"result"},
	)

	JobsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_consumed_total",
			Help:      "Queue jobs consumed by the worker, by kind and result.",
		},
		[]string{"kind", "result"},
	)
)
