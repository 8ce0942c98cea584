package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dlqProcessedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservation_service",
			Subsystem: "dlq",
			Name:      "entries_processed_total",
			Help:      "Number of DLQ entries fully processed and removed.",
		},
		[]string{"topic", "event_type"},
	)

	dlqRequeuedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservation_service",
			Subsystem: "dlq",
			Name:      "entries_requeued_total",
			Help:      "Number of DLQ entries replayed into the outbox.",
		},
		[]string{"topic", "event_type"},
	)

	dlqQuarantinedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservation_service",
			Subsystem: "dlq",
			Name:      "entries_quarantined_total",
			Help:      "Number of DLQ entries quarantined after exhausting retries.",
		},
		[]string{"topic", "event_type"},
	)

	dlqRetryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservation_service",
			Subsystem: "dlq",
			Name:      "retry_attempts_total",
			Help:      "Number of failed replay attempts that were scheduled for retry.",
		},
		[]string{"topic", "event_type"},
	)

	dlqBacklogGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reservation_service",
			Subsystem: "dlq",
			Name:      "backlog_size",
			Help:      "Current number of non-quarantined entries in the DLQ.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		dlqProcessedCounter,
		dlqRequeuedCounter,
		dlqQuarantinedCounter,
		dlqRetryCounter,
		dlqBacklogGauge,
	)
}

func recordDLQProcessed(entry dlqEntry) {
	dlqProcessedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqRetryCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

// updateBacklogGauge refreshes the backlog gauge from the table itself so the
// value stays accurate even when multiple manager instances run.
func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var backlog int64
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&backlog); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(backlog))
}
