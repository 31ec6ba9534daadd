package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "KAFKA_BROKERS", "OUTBOX_POLL_INTERVAL", "CONSUMER_TOPICS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	require.Equal(t, uint(5), cfg.BucketCreateAttempts)
	require.Equal(t, []string{"health_bucket_events", "medication_events"}, cfg.ConsumerTopics)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.OutboxActive())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", " Memory ")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("DLQ_BASE_DELAY", "15s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 15*time.Second, cfg.DLQBaseDelay)
	require.Equal(t, "debug", cfg.LogLevel)
	require.False(t, cfg.OutboxActive(), "memory store has no outbox")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreDriver:          StoreDriverPostgres,
		PostgresURL:          "postgres://x",
		JWTSecret:            "secret",
		OutboxBatchSize:      10,
		OutboxPollInterval:   time.Second,
		BucketCreateAttempts: 3,
		OutboxEnabled:        true,
		KafkaBrokers:         []string{"k:9092"},
	}
	require.NoError(t, base.Validate())
	require.True(t, base.OutboxActive())

	bad := base
	bad.StoreDriver = "sqlite"
	bad.JWTSecret = " "
	err := bad.Validate()
	require.ErrorContains(t, err, "STORE_DRIVER")
	require.ErrorContains(t, err, "JWT_SECRET")

	bad = base
	bad.BucketCreateAttempts = 0
	require.ErrorContains(t, bad.Validate(), "BUCKET_CREATE_ATTEMPTS")
}

func TestPatientSeeds(t *testing.T) {
	cfg := Config{SeedPatients: []string{"p1:8:10000", "p2"}}
	seeds, err := cfg.PatientSeeds()
	require.NoError(t, err)
	require.Equal(t, []PatientSeed{{ID: "p1", WaterGoal: 8, StepsGoal: 10000}, {ID: "p2"}}, seeds)

	for _, bad := range []string{"p1:8", ":1:2", "p1:x:2", "p1:1:-2"} {
		_, err := Config{SeedPatients: []string{bad}}.PatientSeeds()
		require.Error(t, err, bad)
	}
}
