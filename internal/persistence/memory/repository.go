// Package memory provides an in-process domain.Repository for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/healthtrack/internal/daykey"
	"example.com/healthtrack/internal/domain"
)

type bucketKey struct {
	patientID string
	day       string
}

// Repository stores patients, buckets and medications in maps guarded by one lock.
type Repository struct {
	mu          sync.RWMutex
	patients    map[string]domain.PatientProfile
	buckets     map[string]domain.Bucket
	bucketIndex map[bucketKey]string
	medications map[string]domain.Medication
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		patients:    make(map[string]domain.PatientProfile),
		buckets:     make(map[string]domain.Bucket),
		bucketIndex: make(map[bucketKey]string),
		medications: make(map[string]domain.Medication),
	}
}

// PutPatient registers or replaces a patient profile.
func (r *Repository) PutPatient(profile domain.PatientProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[profile.PatientID] = profile
}

// FindPatientProfile implements domain.Repository.
func (r *Repository) FindPatientProfile(_ context.Context, patientID string) (*domain.PatientProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[patientID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// FindBucket implements domain.Repository.
func (r *Repository) FindBucket(_ context.Context, patientID string, day time.Time) (*domain.Bucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bucketIndex[bucketKey{patientID, daykey.Format(day)}]
	if !ok {
		return nil, nil
	}
	b := cloneBucket(r.buckets[id])
	return &b, nil
}

// GetBucket implements domain.Repository.
func (r *Repository) GetBucket(_ context.Context, bucketID string) (*domain.Bucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buckets[bucketID]
	if !ok {
		return nil, nil
	}
	b = cloneBucket(b)
	return &b, nil
}

// CreateBucket implements domain.Repository. The (patient, day) index plays the
// role of a unique constraint.
func (r *Repository) CreateBucket(_ context.Context, bucket domain.Bucket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := bucketKey{bucket.PatientID, daykey.Format(bucket.DayKey)}
	if _, exists := r.bucketIndex[key]; exists {
		return domain.ErrConflictOnCreate
	}
	bucket.DayKey = daykey.Normalize(bucket.DayKey)
	r.buckets[bucket.ID] = cloneBucket(bucket)
	r.bucketIndex[key] = bucket.ID
	return nil
}

// UpdateBucket implements domain.Repository.
func (r *Repository) UpdateBucket(_ context.Context, bucketID string, update domain.BucketUpdate) (*domain.Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[bucketID]
	if !ok {
		return nil, nil
	}
	if update.Overflows(b) {
		return nil, domain.ErrCounterOverflow
	}
	update.Apply(&b)
	b.UpdatedAt = time.Now().UTC()
	r.buckets[bucketID] = b
	out := cloneBucket(b)
	return &out, nil
}

// FindBucketsInRange implements domain.Repository.
func (r *Repository) FindBucketsInRange(_ context.Context, patientID string, from, to time.Time) ([]domain.Bucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	from, to = daykey.Normalize(from), daykey.Normalize(to)
	out := make([]domain.Bucket, 0)
	for _, b := range r.buckets {
		if b.PatientID != patientID || b.DayKey.Before(from) || b.DayKey.After(to) {
			continue
		}
		out = append(out, cloneBucket(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayKey.Before(out[j].DayKey) })
	return out, nil
}

// FindLatestBucket implements domain.Repository.
func (r *Repository) FindLatestBucket(_ context.Context, patientID string) (*domain.Bucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Bucket
	for _, b := range r.buckets {
		if b.PatientID != patientID {
			continue
		}
		if latest == nil || b.DayKey.After(latest.DayKey) {
			c := cloneBucket(b)
			latest = &c
		}
	}
	return latest, nil
}

// ListSleepBuckets implements domain.Repository.
func (r *Repository) ListSleepBuckets(_ context.Context, patientID string, cursor *domain.Cursor, limit int) ([]domain.Bucket, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]domain.Bucket, 0)
	for _, b := range r.buckets {
		if b.PatientID == patientID && b.HasSleep() {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return after(all[i], all[j].DayKey, all[j].ID) })

	out := make([]domain.Bucket, 0, limit)
	for _, b := range all {
		if cursor != nil && !after(domain.Bucket{DayKey: cursor.DayKey, ID: cursor.ID}, b.DayKey, b.ID) {
			continue
		}
		out = append(out, cloneBucket(b))
		if len(out) == limit {
			break
		}
	}

	var next *domain.Cursor
	if len(out) == limit {
		last := out[len(out)-1]
		next = &domain.Cursor{DayKey: last.DayKey, ID: last.ID}
	}
	return out, next, nil
}

// after reports whether b sorts strictly after (day, id) in descending order,
// i.e. (b.DayKey, b.ID) > (day, id).
func after(b domain.Bucket, day time.Time, id string) bool {
	if !b.DayKey.Equal(day) {
		return b.DayKey.After(day)
	}
	return b.ID > id
}

// CreateMedication implements domain.Repository.
func (r *Repository) CreateMedication(_ context.Context, medication domain.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.medications[medication.ID] = cloneMedication(medication)
	return nil
}

// GetMedication implements domain.Repository.
func (r *Repository) GetMedication(_ context.Context, medicationID string) (*domain.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.medications[medicationID]
	if !ok {
		return nil, nil
	}
	m = cloneMedication(m)
	return &m, nil
}

// ListMedications implements domain.Repository.
func (r *Repository) ListMedications(_ context.Context, patientID string, filter domain.MedicationFilter) ([]domain.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Medication, 0)
	for _, m := range r.medications {
		if m.PatientID != patientID {
			continue
		}
		if filter.StartFrom != nil && m.StartDate.Before(*filter.StartFrom) {
			continue
		}
		if filter.StartTo != nil && m.StartDate.After(*filter.StartTo) {
			continue
		}
		out = append(out, cloneMedication(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetMedicationCompletion implements domain.Repository.
func (r *Repository) SetMedicationCompletion(_ context.Context, medicationID string, date time.Time, completed bool) (*domain.Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.medications[medicationID]
	if !ok {
		return nil, nil
	}
	date = daykey.Normalize(date)
	dates := make([]time.Time, 0, len(m.CompletedDates)+1)
	present := false
	for _, d := range m.CompletedDates {
		if d.Equal(date) {
			present = true
			if !completed {
				continue
			}
		}
		dates = append(dates, d)
	}
	if completed && !present {
		dates = append(dates, date)
	}
	m.CompletedDates = dates
	m.UpdatedAt = time.Now().UTC()
	r.medications[medicationID] = m
	out := cloneMedication(m)
	return &out, nil
}

func cloneBucket(b domain.Bucket) domain.Bucket {
	if b.Weight != nil {
		w := *b.Weight
		b.Weight = &w
	}
	if b.SleepStart != nil {
		s := *b.SleepStart
		b.SleepStart = &s
	}
	if b.SleepEnd != nil {
		e := *b.SleepEnd
		b.SleepEnd = &e
	}
	return b
}

func cloneMedication(m domain.Medication) domain.Medication {
	if m.EndDate != nil {
		e := *m.EndDate
		m.EndDate = &e
	}
	m.Recurrence = append([]daykey.WeekdayCode(nil), m.Recurrence...)
	m.DailyTimes = append([]domain.TimeOfDay(nil), m.DailyTimes...)
	m.CompletedDates = append([]time.Time{}, m.CompletedDates...)
	return m
}
