package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_transactions_created_total",
			Help: "Transaction creation attempts by result",
		},
		[]string{"result"},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_transaction_transitions_total",
			Help: "Status transitions applied by the engine",
		},
		[]string{"to", "result"},
	)

	rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_transaction_rollbacks_total",
			Help: "Compensations by reason and result",
		},
		[]string{"reason", "result"},
	)

	sweepItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_sweep_items_total",
			Help: "Transactions visited by the expiration sweep",
		},
		[]string{"scan", "result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_sweep_duration_seconds",
			Help:    "Duration of one expiration sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_notifications_total",
			Help: "Notifications enqueued or delivered",
		},
		[]string{"kind", "stage", "result"},
	)
)

func TrackTransactionCreated(result string) {
	transactionsCreated.WithLabelValues(result).Inc()
}

func TrackTransition(to, result string) {
	transitions.WithLabelValues(to, result).Inc()
}

func TrackRollback(reason, result string) {
	rollbacks.WithLabelValues(reason, result).Inc()
}

func TrackSweepItem(scan, result string) {
	sweepItems.WithLabelValues(scan, result).Inc()
}

func ObserveSweepDuration(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

func TrackNotification(kind, stage, result string) {
	notifications.WithLabelValues(kind, stage, result).Inc()
}
