package outbox

import "example.com/healthtrack/internal/events"

const bucketCreatedSchema = `{
  "type": "object",
  "title": "BucketCreated",
  "properties": {
    "bucket_id": {"type": "string"},
    "patient_id": {"type": "string"},
    "day_key": {"type": "string", "format": "date"},
    "water_goal": {"type": "integer"},
    "steps_goal": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["bucket_id", "patient_id", "day_key", "water_goal", "steps_goal", "occurred_at"],
  "additionalProperties": false
}`

const bucketUpdatedSchema = `{
  "type": "object",
  "title": "BucketUpdated",
  "properties": {
    "bucket_id": {"type": "string"},
    "patient_id": {"type": "string"},
    "day_key": {"type": "string", "format": "date"},
    "fields": {"type": "array", "items": {"type": "string"}},
    "water": {"type": "integer"},
    "steps": {"type": "integer"},
    "heart_rate": {"type": "integer"},
    "weight": {"type": "number"},
    "weight_unit": {"type": "string", "enum": ["kg", "lb"]},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["bucket_id", "patient_id", "day_key", "fields", "water", "steps", "heart_rate", "weight_unit", "occurred_at"],
  "additionalProperties": false
}`

const medicationCreatedSchema = `{
  "type": "object",
  "title": "MedicationCreated",
  "properties": {
    "medication_id": {"type": "string"},
    "patient_id": {"type": "string"},
    "name": {"type": "string"},
    "start_date": {"type": "string", "format": "date"},
    "end_date": {"type": "string", "format": "date"},
    "recurrence": {"type": "array", "items": {"type": "string", "enum": ["SU", "M", "T", "W", "TH", "F", "SA"]}},
    "daily_times": {"type": "array", "items": {"type": "string"}},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["medication_id", "patient_id", "name", "start_date", "recurrence", "daily_times", "occurred_at"],
  "additionalProperties": false
}`

const medicationCompletionChangedSchema = `{
  "type": "object",
  "title": "MedicationCompletionChanged",
  "properties": {
    "medication_id": {"type": "string"},
    "patient_id": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "completed": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["medication_id", "patient_id", "date", "completed", "occurred_at"],
  "additionalProperties": false
}`

// schemaCatalog maps event types to the JSON schema registered for their subject.
var schemaCatalog = map[string]string{
	events.TypeBucketCreated:               bucketCreatedSchema,
	events.TypeBucketUpdated:               bucketUpdatedSchema,
	events.TypeMedicationCreated:           medicationCreatedSchema,
	events.TypeMedicationCompletionChanged: medicationCompletionChangedSchema,
}
