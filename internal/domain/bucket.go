// Package domain implements daily health buckets, metric reports and medication schedules.
package domain

import (
	"context"
	"time"
)

// WeightUnit is the unit a weight measurement was recorded in.
type WeightUnit string

const (
	UnitKilograms WeightUnit = "kg"
	UnitPounds    WeightUnit = "lb"
)

// DefaultWeightUnit is used for new buckets and for report days before the first measurement.
const DefaultWeightUnit = UnitKilograms

// Valid reports whether u is a supported unit.
func (u WeightUnit) Valid() bool {
	return u == UnitKilograms || u == UnitPounds
}

// Bucket is the per-patient, per-day aggregate holding every metric logged that day.
// DayKey is always UTC midnight.
type Bucket struct {
	ID         string
	PatientID  string
	DayKey     time.Time
	Water      int
	WaterGoal  int
	Steps      int
	StepsGoal  int
	HeartRate  int
	Weight     *float64
	WeightUnit WeightUnit
	SleepStart *time.Time
	SleepEnd   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasSleep reports whether a sleep interval is stored on the bucket.
func (b Bucket) HasSleep() bool {
	return b.SleepStart != nil && b.SleepEnd != nil
}

// PatientProfile supplies default goals for newly created buckets.
type PatientProfile struct {
	PatientID string
	WaterGoal int
	StepsGoal int
}

// SleepWindow is a pair of instants stored on a bucket.
type SleepWindow struct {
	Start time.Time
	End   time.Time
}

// BucketUpdate describes a field-level change applied atomically by the store.
// Nil fields are left untouched. Deltas are added to the stored value.
type BucketUpdate struct {
	Water      *int
	WaterDelta *int
	WaterGoal  *int
	Steps      *int
	StepsDelta *int
	StepsGoal  *int
	HeartRate  *int
	Weight     *float64
	WeightUnit *WeightUnit
	Sleep      *SleepWindow
	ClearSleep bool
}

// Fields lists the bucket columns touched by the update.
func (u BucketUpdate) Fields() []string {
	fields := make([]string, 0, 4)
	if u.Water != nil || u.WaterDelta != nil {
		fields = append(fields, "water")
	}
	if u.WaterGoal != nil {
		fields = append(fields, "water_goal")
	}
	if u.Steps != nil || u.StepsDelta != nil {
		fields = append(fields, "steps")
	}
	if u.StepsGoal != nil {
		fields = append(fields, "steps_goal")
	}
	if u.HeartRate != nil {
		fields = append(fields, "heart_rate")
	}
	if u.Weight != nil {
		fields = append(fields, "weight")
	}
	if u.WeightUnit != nil {
		fields = append(fields, "weight_unit")
	}
	if u.Sleep != nil || u.ClearSleep {
		fields = append(fields, "sleep")
	}
	return fields
}

// Overflows reports whether applying the update's deltas to b would push a counter past MaxCount.
func (u BucketUpdate) Overflows(b Bucket) bool {
	if u.WaterDelta != nil && int64(b.Water)+int64(*u.WaterDelta) > MaxCount {
		return true
	}
	return u.StepsDelta != nil && int64(b.Steps)+int64(*u.StepsDelta) > MaxCount
}

// Apply mutates b in place. Stores without atomic statements use it under their own lock.
func (u BucketUpdate) Apply(b *Bucket) {
	if u.Water != nil {
		b.Water = *u.Water
	}
	if u.WaterDelta != nil {
		b.Water += *u.WaterDelta
	}
	if u.WaterGoal != nil {
		b.WaterGoal = *u.WaterGoal
	}
	if u.Steps != nil {
		b.Steps = *u.Steps
	}
	if u.StepsDelta != nil {
		b.Steps += *u.StepsDelta
	}
	if u.StepsGoal != nil {
		b.StepsGoal = *u.StepsGoal
	}
	if u.HeartRate != nil {
		b.HeartRate = *u.HeartRate
	}
	if u.Weight != nil {
		w := *u.Weight
		b.Weight = &w
	}
	if u.WeightUnit != nil {
		b.WeightUnit = *u.WeightUnit
	}
	if u.ClearSleep {
		b.SleepStart, b.SleepEnd = nil, nil
	}
	if u.Sleep != nil {
		start, end := u.Sleep.Start, u.Sleep.End
		b.SleepStart, b.SleepEnd = &start, &end
	}
}

// Cursor models the sleep history pagination token.
type Cursor struct {
	DayKey time.Time
	ID     string
}

// MedicationFilter narrows ListMedications by start date. Bounds are inclusive.
type MedicationFilter struct {
	StartFrom *time.Time
	StartTo   *time.Time
}

// Repository captures persistence operations. Lookups return nil, nil when
// the record does not exist.
type Repository interface {
	FindPatientProfile(ctx context.Context, patientID string) (*PatientProfile, error)

	FindBucket(ctx context.Context, patientID string, day time.Time) (*Bucket, error)
	GetBucket(ctx context.Context, bucketID string) (*Bucket, error)
	// CreateBucket returns ErrConflictOnCreate when (PatientID, DayKey) already exists.
	CreateBucket(ctx context.Context, bucket Bucket) error
	UpdateBucket(ctx context.Context, bucketID string, update BucketUpdate) (*Bucket, error)
	// FindBucketsInRange returns buckets with from <= DayKey <= to, oldest first.
	FindBucketsInRange(ctx context.Context, patientID string, from, to time.Time) ([]Bucket, error)
	FindLatestBucket(ctx context.Context, patientID string) (*Bucket, error)
	// ListSleepBuckets returns buckets holding a sleep interval, newest first.
	ListSleepBuckets(ctx context.Context, patientID string, cursor *Cursor, limit int) ([]Bucket, *Cursor, error)

	CreateMedication(ctx context.Context, medication Medication) error
	GetMedication(ctx context.Context, medicationID string) (*Medication, error)
	// ListMedications returns the patient's medications ordered by StartDate.
	ListMedications(ctx context.Context, patientID string, filter MedicationFilter) ([]Medication, error)
	// SetMedicationCompletion inserts or removes one date from CompletedDates atomically.
	SetMedicationCompletion(ctx context.Context, medicationID string, date time.Time, completed bool) (*Medication, error)
}
