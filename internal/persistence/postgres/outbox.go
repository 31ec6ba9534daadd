package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"example.com/healthtrack/internal/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(outboxRecord) string
}

const (
	bucketTopic     = "health_bucket_events"
	medicationTopic = "medication_events"
)

// Every event of a patient lands on the same partition so consumers see them in order.
func byPatient(rec outboxRecord) string {
	return rec.PatientID
}

var eventCatalog = map[string]EventMetadata{
	events.TypeBucketCreated: {
		Topic:          bucketTopic,
		SchemaSubject:  bucketTopic + "-bucket.created-value",
		PartitionKeyFn: byPatient,
	},
	events.TypeBucketUpdated: {
		Topic:          bucketTopic,
		SchemaSubject:  bucketTopic + "-bucket.updated-value",
		PartitionKeyFn: byPatient,
	},
	events.TypeMedicationCreated: {
		Topic:          medicationTopic,
		SchemaSubject:  medicationTopic + "-medication.created-value",
		PartitionKeyFn: byPatient,
	},
	events.TypeMedicationCompletionChanged: {
		Topic:          medicationTopic,
		SchemaSubject:  medicationTopic + "-medication.completion_changed-value",
		PartitionKeyFn: byPatient,
	},
}

type outboxRecord struct {
	AggregateType string
	AggregateID   string
	PatientID     string
	EventType     string
	Payload       any
}

func insertOutbox(ctx context.Context, tx pgx.Tx, rec outboxRecord) error {
	body, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[rec.EventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", rec.EventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%s", rec.AggregateID, rec.EventType, uuid.NewString())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		rec.AggregateType,
		rec.AggregateID,
		rec.EventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(rec),
		body,
		dedupeKey,
	)
	return err
}
