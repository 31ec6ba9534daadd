// Package postgres implements domain.Repository on PostgreSQL with a transactional outbox.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthtrack/internal/daykey"
	"example.com/healthtrack/internal/domain"
	"example.com/healthtrack/internal/events"
	"example.com/healthtrack/internal/observability"
)

// numericValueOutOfRange is the SQLSTATE raised when water + $n or steps + $n overflows INTEGER.
const numericValueOutOfRange = "22003"

const bucketColumns = `bucket_id, patient_id, day_key, water, water_goal, steps, steps_goal, heart_rate,
        weight, weight_unit, sleep_start, sleep_end, created_at, updated_at`

const medicationColumns = `medication_id, patient_id, COALESCE(bucket_id::text, ''), name, start_date, end_date,
        recurrence, daily_times, completed_dates, created_at, updated_at`

// Repository provides Postgres-backed persistence for buckets, medications and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindPatientProfile implements domain.Repository.
func (r *Repository) FindPatientProfile(ctx context.Context, patientID string) (*domain.PatientProfile, error) {
	const query = `SELECT patient_id, water_goal, steps_goal FROM patients WHERE patient_id=$1`

	var p domain.PatientProfile
	if err := r.pool.QueryRow(ctx, query, patientID).Scan(&p.PatientID, &p.WaterGoal, &p.StepsGoal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindBucket implements domain.Repository.
func (r *Repository) FindBucket(ctx context.Context, patientID string, day time.Time) (*domain.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM activity_buckets WHERE patient_id=$1 AND day_key=$2`
	return r.queryBucket(ctx, query, patientID, daykey.Normalize(day))
}

// GetBucket implements domain.Repository.
func (r *Repository) GetBucket(ctx context.Context, bucketID string) (*domain.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM activity_buckets WHERE bucket_id=$1`
	return r.queryBucket(ctx, query, bucketID)
}

// FindLatestBucket implements domain.Repository.
func (r *Repository) FindLatestBucket(ctx context.Context, patientID string) (*domain.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM activity_buckets WHERE patient_id=$1 ORDER BY day_key DESC LIMIT 1`
	return r.queryBucket(ctx, query, patientID)
}

func (r *Repository) queryBucket(ctx context.Context, query string, args ...any) (*domain.Bucket, error) {
	b, err := scanBucket(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// CreateBucket inserts the bucket and its outbox event in one transaction. The
// unique (patient_id, day_key) constraint decides races: the loser gets ErrConflictOnCreate.
func (r *Repository) CreateBucket(ctx context.Context, bucket domain.Bucket) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertBucket = `INSERT INTO activity_buckets (bucket_id, patient_id, day_key, water_goal, steps_goal, weight_unit, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (patient_id, day_key) DO NOTHING
        RETURNING bucket_id`

	var id string
	err = tx.QueryRow(ctx, insertBucket,
		bucket.ID,
		bucket.PatientID,
		daykey.Normalize(bucket.DayKey),
		bucket.WaterGoal,
		bucket.StepsGoal,
		string(bucket.WeightUnit),
		bucket.CreatedAt,
		bucket.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.ErrConflictOnCreate
		}
		return err
	}

	if err = insertOutbox(ctx, tx, outboxRecord{
		AggregateType: "bucket",
		AggregateID:   bucket.ID,
		PatientID:     bucket.PatientID,
		EventType:     events.TypeBucketCreated,
		Payload: events.BucketCreated{
			BucketID:   bucket.ID,
			PatientID:  bucket.PatientID,
			DayKey:     daykey.Format(bucket.DayKey),
			WaterGoal:  bucket.WaterGoal,
			StepsGoal:  bucket.StepsGoal,
			OccurredAt: bucket.CreatedAt,
		},
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordBucketPersisted(bucket.CreatedAt)
	return nil
}

// UpdateBucket applies the update as a single UPDATE statement so that
// increments from concurrent writers are never lost.
func (r *Repository) UpdateBucket(ctx context.Context, bucketID string, update domain.BucketUpdate) (_ *domain.Bucket, err error) {
	setClause, args := buildBucketSet(update)
	args = append(args, bucketID)
	query := fmt.Sprintf(`UPDATE activity_buckets SET %s WHERE bucket_id=$%d RETURNING %s`, setClause, len(args), bucketColumns)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	b, err := scanBucket(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			_ = tx.Rollback(ctx)
			return nil, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == numericValueOutOfRange {
			err = domain.ErrCounterOverflow
		}
		return nil, err
	}

	payload := events.BucketUpdated{
		BucketID:   b.ID,
		PatientID:  b.PatientID,
		DayKey:     daykey.Format(b.DayKey),
		Fields:     update.Fields(),
		Water:      b.Water,
		Steps:      b.Steps,
		HeartRate:  b.HeartRate,
		Weight:     b.Weight,
		WeightUnit: string(b.WeightUnit),
		OccurredAt: b.UpdatedAt,
	}
	if err = insertOutbox(ctx, tx, outboxRecord{
		AggregateType: "bucket",
		AggregateID:   b.ID,
		PatientID:     b.PatientID,
		EventType:     events.TypeBucketUpdated,
		Payload:       payload,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	observability.RecordBucketPersisted(b.UpdatedAt)
	return &b, nil
}

// buildBucketSet renders the SET clause; placeholders start at $1.
func buildBucketSet(u domain.BucketUpdate) (string, []any) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 6)
	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if u.Water != nil {
		add("water = $%d", *u.Water)
	}
	if u.WaterDelta != nil {
		add("water = water + $%d", *u.WaterDelta)
	}
	if u.WaterGoal != nil {
		add("water_goal = $%d", *u.WaterGoal)
	}
	if u.Steps != nil {
		add("steps = $%d", *u.Steps)
	}
	if u.StepsDelta != nil {
		add("steps = steps + $%d", *u.StepsDelta)
	}
	if u.StepsGoal != nil {
		add("steps_goal = $%d", *u.StepsGoal)
	}
	if u.HeartRate != nil {
		add("heart_rate = $%d", *u.HeartRate)
	}
	if u.Weight != nil {
		add("weight = $%d", *u.Weight)
	}
	if u.WeightUnit != nil {
		add("weight_unit = $%d", string(*u.WeightUnit))
	}
	switch {
	case u.Sleep != nil:
		add("sleep_start = $%d", u.Sleep.Start)
		add("sleep_end = $%d", u.Sleep.End)
	case u.ClearSleep:
		sets = append(sets, "sleep_start = NULL", "sleep_end = NULL")
	}
	sets = append(sets, "updated_at = NOW()")
	return strings.Join(sets, ", "), args
}

// FindBucketsInRange implements domain.Repository.
func (r *Repository) FindBucketsInRange(ctx context.Context, patientID string, from, to time.Time) ([]domain.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM activity_buckets
        WHERE patient_id=$1 AND day_key BETWEEN $2 AND $3
        ORDER BY day_key`

	rows, err := r.pool.Query(ctx, query, patientID, daykey.Normalize(from), daykey.Normalize(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Bucket, 0)
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

// ListSleepBuckets implements domain.Repository.
func (r *Repository) ListSleepBuckets(ctx context.Context, patientID string, cursor *domain.Cursor, limit int) ([]domain.Bucket, *domain.Cursor, error) {
	args := []any{patientID, limit}
	query := `SELECT ` + bucketColumns + ` FROM activity_buckets
        WHERE patient_id=$1 AND sleep_start IS NOT NULL AND sleep_end IS NOT NULL`

	if cursor != nil {
		query += ` AND (day_key, bucket_id) < ($3, $4::uuid)`
		args = append(args, cursor.DayKey, cursor.ID)
	}
	query += ` ORDER BY day_key DESC, bucket_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Bucket, 0, limit)
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{DayKey: last.DayKey, ID: last.ID}
	}
	return results, next, nil
}

// CreateMedication implements domain.Repository.
func (r *Repository) CreateMedication(ctx context.Context, med domain.Medication) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertMedication = `INSERT INTO medications (medication_id, patient_id, bucket_id, name, start_date, end_date, recurrence, daily_times, completed_dates, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	recurrence := codesToStrings(med.Recurrence)
	times := timesToStrings(med.DailyTimes)
	_, err = tx.Exec(ctx, insertMedication,
		med.ID,
		med.PatientID,
		nullIfEmpty(med.BucketID),
		med.Name,
		med.StartDate,
		med.EndDate,
		recurrence,
		times,
		med.CompletedDates,
		med.CreatedAt,
		med.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payload := events.MedicationCreated{
		MedicationID: med.ID,
		PatientID:    med.PatientID,
		Name:         med.Name,
		StartDate:    daykey.Format(med.StartDate),
		Recurrence:   recurrence,
		DailyTimes:   times,
		OccurredAt:   med.CreatedAt,
	}
	if med.EndDate != nil {
		payload.EndDate = daykey.Format(*med.EndDate)
	}
	if err = insertOutbox(ctx, tx, outboxRecord{
		AggregateType: "medication",
		AggregateID:   med.ID,
		PatientID:     med.PatientID,
		EventType:     events.TypeMedicationCreated,
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetMedication implements domain.Repository.
func (r *Repository) GetMedication(ctx context.Context, medicationID string) (*domain.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE medication_id=$1`
	m, err := scanMedication(r.pool.QueryRow(ctx, query, medicationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListMedications implements domain.Repository.
func (r *Repository) ListMedications(ctx context.Context, patientID string, filter domain.MedicationFilter) ([]domain.Medication, error) {
	args := []any{patientID}
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE patient_id=$1`
	if filter.StartFrom != nil {
		args = append(args, *filter.StartFrom)
		query += fmt.Sprintf(` AND start_date >= $%d`, len(args))
	}
	if filter.StartTo != nil {
		args = append(args, *filter.StartTo)
		query += fmt.Sprintf(` AND start_date <= $%d`, len(args))
	}
	query += ` ORDER BY start_date, medication_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Medication, 0)
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// SetMedicationCompletion adds or removes the date with a single array update.
func (r *Repository) SetMedicationCompletion(ctx context.Context, medicationID string, date time.Time, completed bool) (_ *domain.Medication, err error) {
	const markCompleted = `UPDATE medications
        SET completed_dates = CASE WHEN $2::date = ANY(completed_dates) THEN completed_dates
                                   ELSE array_append(completed_dates, $2::date) END,
            updated_at = NOW()
        WHERE medication_id=$1
        RETURNING ` + medicationColumns
	const unmarkCompleted = `UPDATE medications
        SET completed_dates = array_remove(completed_dates, $2::date),
            updated_at = NOW()
        WHERE medication_id=$1
        RETURNING ` + medicationColumns

	stmt := unmarkCompleted
	if completed {
		stmt = markCompleted
	}
	date = daykey.Normalize(date)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	m, err := scanMedication(tx.QueryRow(ctx, stmt, medicationID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			_ = tx.Rollback(ctx)
			return nil, nil
		}
		return nil, err
	}

	if err = insertOutbox(ctx, tx, outboxRecord{
		AggregateType: "medication",
		AggregateID:   m.ID,
		PatientID:     m.PatientID,
		EventType:     events.TypeMedicationCompletionChanged,
		Payload: events.MedicationCompletionChanged{
			MedicationID: m.ID,
			PatientID:    m.PatientID,
			Date:         daykey.Format(date),
			Completed:    completed,
			OccurredAt:   m.UpdatedAt,
		},
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanBucket(row pgx.Row) (domain.Bucket, error) {
	var (
		b    domain.Bucket
		unit string
	)
	if err := row.Scan(&b.ID, &b.PatientID, &b.DayKey, &b.Water, &b.WaterGoal, &b.Steps, &b.StepsGoal, &b.HeartRate,
		&b.Weight, &unit, &b.SleepStart, &b.SleepEnd, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return domain.Bucket{}, err
	}
	b.DayKey = daykey.Normalize(b.DayKey)
	b.WeightUnit = domain.WeightUnit(unit)
	return b, nil
}

func scanMedication(row pgx.Row) (domain.Medication, error) {
	var (
		m          domain.Medication
		recurrence []string
		times      []string
	)
	if err := row.Scan(&m.ID, &m.PatientID, &m.BucketID, &m.Name, &m.StartDate, &m.EndDate,
		&recurrence, &times, &m.CompletedDates, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return domain.Medication{}, err
	}
	m.StartDate = daykey.Normalize(m.StartDate)
	if m.EndDate != nil {
		end := daykey.Normalize(*m.EndDate)
		m.EndDate = &end
	}
	for i, d := range m.CompletedDates {
		m.CompletedDates[i] = daykey.Normalize(d)
	}
	for _, code := range recurrence {
		m.Recurrence = append(m.Recurrence, daykey.WeekdayCode(code))
	}
	for _, raw := range times {
		t, err := domain.ParseTimeOfDay(raw)
		if err != nil {
			return domain.Medication{}, fmt.Errorf("stored daily time %q: %w", raw, err)
		}
		m.DailyTimes = append(m.DailyTimes, t)
	}
	if m.CompletedDates == nil {
		m.CompletedDates = []time.Time{}
	}
	return m, nil
}

func codesToStrings(codes []daykey.WeekdayCode) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, string(c))
	}
	return out
}

func timesToStrings(times []domain.TimeOfDay) []string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, t.String())
	}
	return out
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
