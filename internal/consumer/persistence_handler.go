package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PersistenceHandler appends consumed events to the health_event_log audit table.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores the event payload. Redelivered records hit the (topic, partition,
// record_offset) constraint and are ignored, so replays are idempotent.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	var patientID any
	if msg.PatientID != "" {
		patientID = msg.PatientID
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO health_event_log (event_type, patient_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT ON CONSTRAINT health_event_log_position DO NOTHING`,
		msg.EventType,
		patientID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}
