// Package events defines the payloads published through the outbox.
package events

import "time"

// Event types, also used as the event_type Kafka header.
const (
	TypeBucketCreated               = "bucket.created"
	TypeBucketUpdated               = "bucket.updated"
	TypeMedicationCreated           = "medication.created"
	TypeMedicationCompletionChanged = "medication.completion_changed"
)

// BucketCreated is emitted when the first write of a day creates a bucket.
type BucketCreated struct {
	BucketID   string    `json:"bucket_id"`
	PatientID  string    `json:"patient_id"`
	DayKey     string    `json:"day_key"`
	WaterGoal  int       `json:"water_goal"`
	StepsGoal  int       `json:"steps_goal"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BucketUpdated lists the fields a write touched, plus their values after the write.
type BucketUpdated struct {
	BucketID   string    `json:"bucket_id"`
	PatientID  string    `json:"patient_id"`
	DayKey     string    `json:"day_key"`
	Fields     []string  `json:"fields"`
	Water      int       `json:"water"`
	Steps      int       `json:"steps"`
	HeartRate  int       `json:"heart_rate"`
	Weight     *float64  `json:"weight,omitempty"`
	WeightUnit string    `json:"weight_unit"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MedicationCreated is emitted when a medication schedule is added.
type MedicationCreated struct {
	MedicationID string    `json:"medication_id"`
	PatientID    string    `json:"patient_id"`
	Name         string    `json:"name"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date,omitempty"`
	Recurrence   []string  `json:"recurrence"`
	DailyTimes   []string  `json:"daily_times"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// MedicationCompletionChanged tracks completion toggles for a scheduled date.
type MedicationCompletionChanged struct {
	MedicationID string    `json:"medication_id"`
	PatientID    string    `json:"patient_id"`
	Date         string    `json:"date"`
	Completed    bool      `json:"completed"`
	OccurredAt   time.Time `json:"occurred_at"`
}
