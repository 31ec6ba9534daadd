//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/healthtrack/internal/events"
)

const bucketTopic = "health_bucket_events"

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	patientID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, patientID, uuid.NewString(), events.TypeBucketCreated))

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, nil, 10*time.Millisecond, 5)

	beforePublished := testutil.ToFloat64(eventsPublished.WithLabelValues(events.TypeBucketCreated))
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, bucketTopic, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)
	require.Equal(t, []byte(patientID), producer.writes[0].messages[0].Key)

	require.InDelta(t, beforePublished+1, testutil.ToFloat64(eventsPublished.WithLabelValues(events.TypeBucketCreated)), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	patientID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, patientID, uuid.NewString(), events.TypeBucketUpdated))

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, nil, 10*time.Millisecond, 5)

	beforeDLQ := testutil.ToFloat64(eventsDeadLettered.WithLabelValues(events.TypeBucketUpdated, bucketTopic))
	beforePublished := testutil.ToFloat64(eventsPublished.WithLabelValues(events.TypeBucketUpdated))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(eventsDeadLettered.WithLabelValues(events.TypeBucketUpdated, bucketTopic)), 0.0001)
	require.InDelta(t, beforePublished, testutil.ToFloat64(eventsPublished.WithLabelValues(events.TypeBucketUpdated)), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE partition_key = $1`, patientID).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherUnknownSchemaMovesEventsToDLQ(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	eventID := seedOutbox(t, ctx, pool, uuid.NewString(), uuid.NewString(), "bucket.unknown")
	require.NotZero(t, eventID)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dispatcher := NewDispatcher(pool, producer, registry, nil, 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason))
	require.Contains(t, reason, "no schema metadata for event_type=bucket.unknown")
}

func TestDLQManagerRequeuesAndQuarantines(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	require.NotZero(t, seedOutbox(t, ctx, pool, uuid.NewString(), uuid.NewString(), events.TypeBucketCreated))
	dispatcher := NewDispatcher(pool, &stubProducer{err: errors.New("upstream kafka unavailable")}, &stubRegistry{id: 100}, nil, 5*time.Millisecond, 10)
	require.NoError(t, dispatcher.processBatch(ctx))

	manager := NewDLQManager(pool, nil, 2, time.Second)
	beforeRequeued := testutil.ToFloat64(dlqReplayOutcomes.WithLabelValues(dlqOutcomeRequeued, events.TypeBucketCreated))
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)
	require.InDelta(t, beforeRequeued+1, testutil.ToFloat64(dlqReplayOutcomes.WithLabelValues(dlqOutcomeRequeued, events.TypeBucketCreated)), 0.0001)
	require.Zero(t, testutil.ToFloat64(dlqPendingEvents))

	var dlqCount, pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 0, dlqCount)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Equal(t, 1, pending)

	// An exhausted entry is quarantined rather than replayed.
	_, err = pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count)
         VALUES (99, $1, $2, '{}', 'boom', 'bucket', 'b-1', 's', 'p', 2)`,
		events.TypeBucketCreated, bucketTopic)
	require.NoError(t, err)

	beforeQuarantined := testutil.ToFloat64(dlqReplayOutcomes.WithLabelValues(dlqOutcomeQuarantined, events.TypeBucketCreated))
	requeued, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)
	require.InDelta(t, beforeQuarantined+1, testutil.ToFloat64(dlqReplayOutcomes.WithLabelValues(dlqOutcomeQuarantined, events.TypeBucketCreated)), 0.0001)
	require.Zero(t, testutil.ToFloat64(dlqPendingEvents), "quarantined entries are not pending")

	var quarantined int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantined))
	require.Equal(t, 1, quarantined)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("healthtrack"),
		postgrescontainer.WithUsername("healthtrack"),
		postgrescontainer.WithPassword("healthtrack"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runMigrations(t, ctx, pool)
	return pool
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, dispatchBatchSeconds.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, patientID, bucketID, eventType string) int64 {
	t.Helper()

	payload, err := json.Marshal(events.BucketCreated{
		BucketID:   bucketID,
		PatientID:  patientID,
		DayKey:     "2024-01-10",
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	var eventID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         RETURNING event_id`,
		"bucket", bucketID, eventType, bucketTopic, bucketTopic+"-"+eventType+"-value", patientID, payload,
	).Scan(&eventID)
	require.NoError(t, err)
	return eventID
}

func runMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	files, err := filepath.Glob(filepath.Join(filepath.Dir(file), "../../db/postgres/migrations", "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")
	sort.Strings(files)

	for _, f := range files {
		contents, readErr := os.ReadFile(f)
		require.NoErrorf(t, readErr, "read migration %s", f)
		_, execErr := pool.Exec(ctx, string(contents))
		require.NoErrorf(t, execErr, "execute migration %s", f)
	}
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
