package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/healthtrack/internal/daykey"
	"example.com/healthtrack/internal/observability"
)

const (
	defaultCreateAttempts = 5
	createRetryDelay      = 5 * time.Millisecond

	defaultSleepPageSize = 20
	maxSleepPageSize     = 100

	// MaxSummaryDays bounds DailySummaries.
	MaxSummaryDays = 31
)

// Service orchestrates bucket, report and medication workflows.
type Service struct {
	repo           Repository
	now            func() time.Time
	logger         *zap.Logger
	createAttempts uint
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the clock used to decide what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCreateAttempts bounds how often bucket creation is retried after a conflict.
func WithCreateAttempts(n uint) Option {
	return func(s *Service) {
		if n > 0 {
			s.createAttempts = n
		}
	}
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		now:            time.Now,
		logger:         zap.NewNop(),
		createAttempts: defaultCreateAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return daykey.Today(s.now())
}

func (s *Service) dayOrToday(day time.Time) time.Time {
	if day.IsZero() {
		return s.today()
	}
	return daykey.Normalize(day)
}

func requirePatient(patientID string) error {
	if strings.TrimSpace(patientID) == "" {
		return invalidInput("patient id is required")
	}
	return nil
}

func (s *Service) ensurePatient(ctx context.Context, patientID string) (*PatientProfile, error) {
	profile, err := s.repo.FindPatientProfile(ctx, patientID)
	if err != nil {
		return nil, storeFailure("find patient", err)
	}
	if profile == nil {
		return nil, notFound("patient %s not found", patientID)
	}
	return profile, nil
}

// ResolveBucket returns the bucket for (patientID, day), creating it from the
// patient's profile goals when absent. A zero day means today. Concurrent callers
// for the same day always observe the same bucket.
func (s *Service) ResolveBucket(ctx context.Context, patientID string, day time.Time) (*Bucket, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	day = s.dayOrToday(day)

	var bucket *Bucket
	err := retry.Do(
		func() error {
			b, err := s.findOrCreateBucket(ctx, patientID, day)
			if err != nil {
				return err
			}
			bucket = b
			return nil
		},
		retry.Attempts(s.createAttempts),
		retry.Delay(createRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrConflictOnCreate)
		}),
	)
	if err != nil {
		if errors.Is(err, ErrConflictOnCreate) {
			s.logger.Warn("bucket creation kept conflicting",
				zap.String("patient_id", patientID),
				zap.String("day", daykey.Format(day)),
				zap.Uint("attempts", s.createAttempts))
			return nil, &Error{Kind: KindStoreFailure, Message: "resolve bucket", Cause: err}
		}
		return nil, storeFailure("resolve bucket", err)
	}
	return bucket, nil
}

func (s *Service) findOrCreateBucket(ctx context.Context, patientID string, day time.Time) (*Bucket, error) {
	existing, err := s.repo.FindBucket(ctx, patientID, day)
	if err != nil {
		return nil, storeFailure("find bucket", err)
	}
	if existing != nil {
		return existing, nil
	}

	profile, err := s.ensurePatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	bucket := Bucket{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		DayKey:     day,
		WaterGoal:  profile.WaterGoal,
		StepsGoal:  profile.StepsGoal,
		WeightUnit: DefaultWeightUnit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateBucket(ctx, bucket); err != nil {
		if errors.Is(err, ErrConflictOnCreate) {
			observability.RecordBucketConflict()
			return nil, err
		}
		return nil, storeFailure("create bucket", err)
	}

	observability.RecordBucketCreated()
	s.logger.Debug("bucket created",
		zap.String("patient_id", patientID),
		zap.String("bucket_id", bucket.ID),
		zap.String("day", daykey.Format(day)))
	return &bucket, nil
}

func (s *Service) applyUpdate(ctx context.Context, bucketID string, update BucketUpdate) (*Bucket, error) {
	updated, err := s.repo.UpdateBucket(ctx, bucketID, update)
	if err != nil {
		return nil, storeFailure("update bucket", err)
	}
	if updated == nil {
		return nil, notFound("bucket %s not found", bucketID)
	}
	return updated, nil
}

// LogMetric records a measurement in the bucket of in.Day.
func (s *Service) LogMetric(ctx context.Context, patientID string, in MetricInput) (*Bucket, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	update, err := in.toUpdate()
	if err != nil {
		return nil, err
	}

	bucket, err := s.ResolveBucket(ctx, patientID, in.Day)
	if err != nil {
		return nil, err
	}
	updated, err := s.applyUpdate(ctx, bucket.ID, update)
	if err != nil {
		return nil, err
	}

	mode := in.Mode
	if mode == "" {
		mode = ModeAbsolute
	}
	observability.RecordMetricWrite(string(in.Metric), string(mode))
	return updated, nil
}

// SetGoal writes a water or steps goal to today's bucket.
func (s *Service) SetGoal(ctx context.Context, patientID string, metric Metric, goal float64) (*Bucket, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	update, err := goalUpdate(metric, goal)
	if err != nil {
		return nil, err
	}

	bucket, err := s.ResolveBucket(ctx, patientID, time.Time{})
	if err != nil {
		return nil, err
	}
	return s.applyUpdate(ctx, bucket.ID, update)
}

// LogSleep parses the wall-clock strings and stores the interval on the bucket of in.Day.
func (s *Service) LogSleep(ctx context.Context, patientID string, in SleepInput) (*SleepEntry, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	start, err := ParseTimeOfDay(in.Start)
	if err != nil {
		return nil, err
	}
	end, err := ParseTimeOfDay(in.End)
	if err != nil {
		return nil, err
	}
	day := s.dayOrToday(in.Day)
	interval := ComputeSleep(day, start, end)

	bucket, err := s.ResolveBucket(ctx, patientID, day)
	if err != nil {
		return nil, err
	}
	updated, err := s.applyUpdate(ctx, bucket.ID, BucketUpdate{
		Sleep: &SleepWindow{Start: interval.Start, End: interval.End},
	})
	if err != nil {
		return nil, err
	}
	entry := sleepEntryFromBucket(*updated)
	return &entry, nil
}

// ClearSleep nulls the sleep interval of one of the patient's buckets. The bucket itself is kept.
func (s *Service) ClearSleep(ctx context.Context, patientID, bucketID string) (*Bucket, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(bucketID) == "" {
		return nil, invalidInput("bucket id is required")
	}
	bucket, err := s.repo.GetBucket(ctx, bucketID)
	if err != nil {
		return nil, storeFailure("get bucket", err)
	}
	if bucket == nil || bucket.PatientID != patientID {
		return nil, notFound("bucket %s not found", bucketID)
	}
	return s.applyUpdate(ctx, bucket.ID, BucketUpdate{ClearSleep: true})
}

// SleepHistory lists stored sleep intervals, newest day first.
func (s *Service) SleepHistory(ctx context.Context, patientID string, cursor *Cursor, limit int) ([]SleepEntry, *Cursor, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = defaultSleepPageSize
	}
	if limit > maxSleepPageSize {
		limit = maxSleepPageSize
	}
	buckets, next, err := s.repo.ListSleepBuckets(ctx, patientID, cursor, limit)
	if err != nil {
		return nil, nil, storeFailure("list sleep", err)
	}
	entries := make([]SleepEntry, 0, len(buckets))
	for _, b := range buckets {
		entries = append(entries, sleepEntryFromBucket(b))
	}
	return entries, next, nil
}

// BuildReport reads the window from the store and fills days without data
// according to the metric's fill policy.
func (s *Service) BuildReport(ctx context.Context, patientID string, metric Metric, opts ReportOptions) (*Report, error) {
	start := time.Now()
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	window := opts.WindowDays
	if window == 0 {
		window = MaxWindowDays
	}
	if window < 1 || window > MaxWindowDays {
		return nil, invalidInput("window must be between 1 and %d days", MaxWindowDays)
	}
	to := s.dayOrToday(opts.ReferenceDay)
	from := daykey.AddDays(to, -(window - 1))

	if _, err := s.ensurePatient(ctx, patientID); err != nil {
		return nil, err
	}
	buckets, err := s.repo.FindBucketsInRange(ctx, patientID, from, to)
	if err != nil {
		return nil, storeFailure("find buckets", err)
	}

	report := &Report{
		PatientID: patientID,
		Metric:    metric,
		Policy:    FillPolicyFor(metric),
		From:      from,
		To:        to,
		Entries:   buildEntries(metric, from, window, buckets),
	}
	observability.ObserveReportBuild(string(metric), time.Since(start))
	return report, nil
}

// HeartRateReading is the heart rate stored on the patient's most recent bucket.
type HeartRateReading struct {
	BucketID string
	DayKey   time.Time
	Weekday  string
	Value    int
}

// LatestHeartRate returns the heart rate of the most recent bucket.
func (s *Service) LatestHeartRate(ctx context.Context, patientID string) (*HeartRateReading, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	bucket, err := s.repo.FindLatestBucket(ctx, patientID)
	if err != nil {
		return nil, storeFailure("find latest bucket", err)
	}
	if bucket == nil {
		return nil, notFound("no heart rate recorded for patient %s", patientID)
	}
	return &HeartRateReading{
		BucketID: bucket.ID,
		DayKey:   bucket.DayKey,
		Weekday:  daykey.WeekdayLabel(bucket.DayKey),
		Value:    bucket.HeartRate,
	}, nil
}

// DailySummaries returns the stored buckets between from and to inclusive, oldest first.
func (s *Service) DailySummaries(ctx context.Context, patientID string, from, to time.Time) ([]Bucket, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		return nil, invalidInput("from and to are required")
	}
	from, to = daykey.Normalize(from), daykey.Normalize(to)
	if to.Before(from) {
		return nil, invalidInput("to must not be before from")
	}
	if to.Sub(from) >= MaxSummaryDays*24*time.Hour {
		return nil, invalidInput("range must not exceed %d days", MaxSummaryDays)
	}
	if _, err := s.ensurePatient(ctx, patientID); err != nil {
		return nil, err
	}
	buckets, err := s.repo.FindBucketsInRange(ctx, patientID, from, to)
	if err != nil {
		return nil, storeFailure("find buckets", err)
	}
	return buckets, nil
}

// AddMedication validates and stores a medication, linking it to today's bucket.
func (s *Service) AddMedication(ctx context.Context, patientID string, in AddMedicationInput) (*Medication, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	med, err := in.validate()
	if err != nil {
		return nil, err
	}

	bucket, err := s.ResolveBucket(ctx, patientID, time.Time{})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	med.ID = uuid.NewString()
	med.PatientID = patientID
	med.BucketID = bucket.ID
	med.CompletedDates = []time.Time{}
	med.CreatedAt = now
	med.UpdatedAt = now

	if err := s.repo.CreateMedication(ctx, med); err != nil {
		return nil, storeFailure("create medication", err)
	}
	s.logger.Info("medication added",
		zap.String("patient_id", patientID),
		zap.String("medication_id", med.ID))
	return &med, nil
}

// SetCompletion marks or unmarks date as completed. Dates whose weekday is not
// in the recurrence are rejected without touching the store.
func (s *Service) SetCompletion(ctx context.Context, patientID, medicationID string, date time.Time, completed bool) (*MedicationView, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(medicationID) == "" {
		return nil, invalidInput("medication id is required")
	}
	if date.IsZero() {
		return nil, invalidInput("date is required")
	}
	date = daykey.Normalize(date)

	med, err := s.repo.GetMedication(ctx, medicationID)
	if err != nil {
		return nil, storeFailure("get medication", err)
	}
	if med == nil || med.PatientID != patientID {
		return nil, notFound("medication %s not found", medicationID)
	}
	if !med.Scheduled(date) {
		return nil, schedulingMismatch("%s is a %s, which is not in the schedule of %s",
			daykey.Format(date), daykey.CodeFor(date), med.Name)
	}

	updated, err := s.repo.SetMedicationCompletion(ctx, medicationID, date, completed)
	if err != nil {
		return nil, storeFailure("set completion", err)
	}
	if updated == nil {
		return nil, notFound("medication %s not found", medicationID)
	}
	observability.RecordCompletionToggle(completed)
	view := viewOf(*updated)
	return &view, nil
}

// ListMedications returns the patient's medications split into active and past.
func (s *Service) ListMedications(ctx context.Context, patientID string, rng DateRange) (*MedicationList, error) {
	if err := requirePatient(patientID); err != nil {
		return nil, err
	}
	filter := MedicationFilter{}
	if rng.From != nil {
		from := daykey.Normalize(*rng.From)
		filter.StartFrom = &from
	}
	if rng.To != nil {
		to := daykey.Normalize(*rng.To)
		filter.StartTo = &to
	}
	if filter.StartFrom != nil && filter.StartTo != nil && filter.StartTo.Before(*filter.StartFrom) {
		return nil, invalidInput("to must not be before from")
	}

	if _, err := s.ensurePatient(ctx, patientID); err != nil {
		return nil, err
	}
	meds, err := s.repo.ListMedications(ctx, patientID, filter)
	if err != nil {
		return nil, storeFailure("list medications", err)
	}

	today := s.today()
	list := &MedicationList{Active: []MedicationView{}, Past: []MedicationView{}}
	for _, m := range meds {
		if m.ActiveOn(today) {
			list.Active = append(list.Active, viewOf(m))
		} else {
			list.Past = append(list.Past, viewOf(m))
		}
	}
	return list, nil
}
