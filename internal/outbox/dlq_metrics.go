package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one DLQ replay attempt.
const (
	dlqOutcomeRequeued    = "requeued"
	dlqOutcomeRescheduled = "rescheduled"
	dlqOutcomeQuarantined = "quarantined"
)

var (
	dlqReplayOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "dlq",
		Name:      "replay_outcomes_total",
		Help:      "Dead-lettered health events handled by the DLQ manager, by outcome and event type.",
	}, []string{"outcome", "event_type"})

	dlqPendingEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthtrack",
		Subsystem: "dlq",
		Name:      "pending_events",
		Help:      "Dead-lettered health events still awaiting replay.",
	})

	dlqOldestPendingSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthtrack",
		Subsystem: "dlq",
		Name:      "oldest_pending_age_seconds",
		Help:      "Age of the oldest dead-lettered health event awaiting replay, 0 when none.",
	})
)

func init() {
	prometheus.MustRegister(dlqReplayOutcomes, dlqPendingEvents, dlqOldestPendingSeconds)
}

func recordDLQOutcome(outcome string, entry dlqEntry) {
	dlqReplayOutcomes.WithLabelValues(outcome, entry.EventType).Inc()
}

// refreshDLQBacklog updates the backlog gauges. Quarantined rows are excluded.
func refreshDLQBacklog(ctx context.Context, pool *pgxpool.Pool) {
	const query = `SELECT COUNT(*), COALESCE(EXTRACT(EPOCH FROM NOW() - MIN(created_at)), 0)::float8
                     FROM outbox_dlq
                    WHERE quarantined_at IS NULL`
	var (
		count  int
		oldest float64
	)
	if err := pool.QueryRow(ctx, query).Scan(&count, &oldest); err != nil {
		return
	}
	dlqPendingEvents.Set(float64(count))
	dlqOldestPendingSeconds.Set(oldest)
}
