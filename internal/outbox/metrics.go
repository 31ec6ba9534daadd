package outbox

import "github.com/prometheus/client_golang/prometheus"

// Delivery collectors. The event_type label is bounded by the event types the repository writes.
var (
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Bucket and medication events published to Kafka, by event type.",
	}, []string{"event_type"})

	eventsDeadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "events",
		Name:      "dead_lettered_total",
		Help:      "Bucket and medication events written to outbox_dlq after a failed publish, by event type and topic.",
	}, []string{"event_type", "topic"})

	dispatchBatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "healthtrack",
		Subsystem: "outbox",
		Name:      "dispatch_batch_seconds",
		Help:      "Time to publish or dead-letter one claimed batch of patient events.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	outboxRowsSettled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthtrack",
		Subsystem: "outbox",
		Name:      "rows_settled_total",
		Help:      "Outbox rows stamped with published_at, whether delivered or dead-lettered.",
	})
)

func init() {
	prometheus.MustRegister(eventsPublished, eventsDeadLettered, dispatchBatchSeconds, outboxRowsSettled)
}

func recordPublished(messages []Message) {
	for _, msg := range messages {
		eventsPublished.WithLabelValues(msg.EventType).Inc()
	}
}
