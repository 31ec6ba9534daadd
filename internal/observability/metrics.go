package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "healthtrack"

var (
	bucketsCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buckets",
		Name:      "created_total",
		Help:      "Number of daily buckets created.",
	})

	bucketConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buckets",
		Name:      "create_conflicts_total",
		Help:      "Number of bucket creations that lost a race and fell back to re-fetching.",
	})

	metricWriteCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "metrics",
		Name:      "writes_total",
		Help:      "Number of logged measurements, labeled by metric and mode.",
	}, []string{"metric", "mode"})

	reportDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reports",
		Name:      "build_duration_seconds",
		Help:      "Time spent reading and filling a rolling report.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"metric"})

	completionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "medications",
		Name:      "completion_toggles_total",
		Help:      "Number of medication completion toggles, labeled by the new state.",
	}, []string{"completed"})

	bucketPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "last_bucket_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent bucket write committed to the store.",
	})
)

func init() {
	prometheus.MustRegister(
		bucketsCreatedCounter,
		bucketConflictCounter,
		metricWriteCounter,
		reportDuration,
		completionCounter,
		bucketPersistGauge,
	)
}

// RecordBucketCreated counts a newly created bucket.
func RecordBucketCreated() {
	bucketsCreatedCounter.Inc()
}

// RecordBucketConflict counts a creation that raced with another writer.
func RecordBucketConflict() {
	bucketConflictCounter.Inc()
}

// RecordMetricWrite counts a logged measurement.
func RecordMetricWrite(metric, mode string) {
	metricWriteCounter.WithLabelValues(metric, mode).Inc()
}

// ObserveReportBuild records how long a report took.
func ObserveReportBuild(metric string, d time.Duration) {
	reportDuration.WithLabelValues(metric).Observe(d.Seconds())
}

// RecordCompletionToggle counts a completion change.
func RecordCompletionToggle(completed bool) {
	completionCounter.WithLabelValues(strconv.FormatBool(completed)).Inc()
}

// RecordBucketPersisted updates the persistence watermark gauge.
func RecordBucketPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	bucketPersistGauge.Set(float64(ts.Unix()))
}
