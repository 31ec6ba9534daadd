package domain_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"example.com/healthtrack/internal/domain"
	"example.com/healthtrack/internal/persistence/memory"
)

// 2024-01-10 is a Wednesday.
var fixedNow = time.Date(2024, time.January, 10, 15, 4, 5, 0, time.UTC)

func jan(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func newService(t *testing.T, opts ...domain.Option) (*domain.Service, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	repo.PutPatient(domain.PatientProfile{PatientID: "p1", WaterGoal: 8, StepsGoal: 10000})
	repo.PutPatient(domain.PatientProfile{PatientID: "p2"})
	opts = append([]domain.Option{domain.WithClock(func() time.Time { return fixedNow })}, opts...)
	return domain.NewService(repo, opts...), repo
}

func requireKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "unexpected error: %v", err)
}

func TestResolveBucketSeedsGoalsFromProfile(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	b, err := svc.ResolveBucket(ctx, "p1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, jan(10), b.DayKey)
	require.Equal(t, 8, b.WaterGoal)
	require.Equal(t, 10000, b.StepsGoal)
	require.Zero(t, b.Water)
	require.Zero(t, b.Steps)
	require.Nil(t, b.Weight)
	require.Equal(t, domain.UnitKilograms, b.WeightUnit)

	again, err := svc.ResolveBucket(ctx, "p1", fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, b.ID, again.ID)

	unset, err := svc.ResolveBucket(ctx, "p2", jan(3))
	require.NoError(t, err)
	require.Zero(t, unset.WaterGoal)
	require.Zero(t, unset.StepsGoal)
}

func TestResolveBucketUnknownPatient(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.ResolveBucket(context.Background(), "ghost", time.Time{})
	requireKind(t, err, domain.KindNotFound)
	require.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.ResolveBucket(context.Background(), " ", time.Time{})
	requireKind(t, err, domain.KindInvalidInput)
}

func TestResolveBucketConcurrentCallersShareOneBucket(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	const callers = 32
	ids := make([]string, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			b, err := svc.ResolveBucket(ctx, "p1", jan(5))
			if err != nil {
				return err
			}
			ids[i] = b.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	buckets, err := repo.FindBucketsInRange(ctx, "p1", jan(5), jan(5))
	require.NoError(t, err)
	require.Len(t, buckets, 1)
}

// racingRepo simulates another writer creating the bucket between our lookup and insert.
type racingRepo struct {
	*memory.Repository
	mu        sync.Mutex
	races     int
	creations int
}

func (r *racingRepo) CreateBucket(ctx context.Context, b domain.Bucket) error {
	r.mu.Lock()
	r.creations++
	race := r.races > 0
	if race {
		r.races--
	}
	r.mu.Unlock()
	if race {
		winner := b
		winner.ID = "winner-" + b.ID
		if err := r.Repository.CreateBucket(ctx, winner); err != nil {
			return err
		}
	}
	return r.Repository.CreateBucket(ctx, b)
}

func TestResolveBucketRecoversFromCreateConflict(t *testing.T) {
	repo := &racingRepo{Repository: memory.NewRepository(), races: 1}
	repo.PutPatient(domain.PatientProfile{PatientID: "p1", WaterGoal: 6})
	svc := domain.NewService(repo, domain.WithClock(func() time.Time { return fixedNow }))

	b, err := svc.ResolveBucket(context.Background(), "p1", jan(7))
	require.NoError(t, err)
	require.Contains(t, b.ID, "winner-")
	require.Equal(t, 1, repo.creations)
}

type alwaysConflictRepo struct {
	*memory.Repository
}

func (alwaysConflictRepo) CreateBucket(context.Context, domain.Bucket) error {
	return domain.ErrConflictOnCreate
}

func TestResolveBucketPersistentConflictIsStoreFailure(t *testing.T) {
	repo := alwaysConflictRepo{Repository: memory.NewRepository()}
	repo.PutPatient(domain.PatientProfile{PatientID: "p1"})
	svc := domain.NewService(repo, domain.WithCreateAttempts(3))

	_, err := svc.ResolveBucket(context.Background(), "p1", jan(7))
	requireKind(t, err, domain.KindStoreFailure)
}

type failingRepo struct {
	*memory.Repository
}

func (failingRepo) FindBucket(context.Context, string, time.Time) (*domain.Bucket, error) {
	return nil, errors.New("connection refused")
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	repo := failingRepo{Repository: memory.NewRepository()}
	svc := domain.NewService(repo)

	_, err := svc.LogMetric(context.Background(), "p1", domain.MetricInput{Metric: domain.MetricSteps, Value: 10})
	requireKind(t, err, domain.KindStoreFailure)
	require.ErrorContains(t, err, "connection refused")
}

func TestIncrementalWaterIsAssociative(t *testing.T) {
	ctx := context.Background()

	split, _ := newService(t)
	for _, v := range []float64{100, 200} {
		_, err := split.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricWater, Value: v, Mode: domain.ModeIncremental})
		require.NoError(t, err)
	}
	once, _ := newService(t)
	_, err := once.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricWater, Value: 300, Mode: domain.ModeIncremental})
	require.NoError(t, err)

	a, err := split.ResolveBucket(ctx, "p1", time.Time{})
	require.NoError(t, err)
	b, err := once.ResolveBucket(ctx, "p1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, 300, a.Water)
	require.Equal(t, a.Water, b.Water)
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricSteps, Value: 10, Mode: domain.ModeIncremental})
			return err
		})
	}
	require.NoError(t, g.Wait())

	b, err := svc.ResolveBucket(ctx, "p1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, 500, b.Steps)
}

func TestAbsoluteReplacesAndHeartRateIsLatestWins(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricSteps, Value: 4000, Mode: domain.ModeIncremental})
	require.NoError(t, err)
	b, err := svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricSteps, Value: 1200, Mode: domain.ModeAbsolute})
	require.NoError(t, err)
	require.Equal(t, 1200, b.Steps)

	_, err = svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricHeartRate, Value: 80})
	require.NoError(t, err)
	b, err = svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricHeartRate, Value: 64})
	require.NoError(t, err)
	require.Equal(t, 64, b.HeartRate)
}

func TestHeartRateAcceptsZero(t *testing.T) {
	svc, _ := newService(t)

	b, err := svc.LogMetric(context.Background(), "p1", domain.MetricInput{Metric: domain.MetricHeartRate, Value: 0})
	require.NoError(t, err)
	require.Zero(t, b.HeartRate)
}

func TestWeightIsRoundedToTwoDecimalsWithinColumnRange(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	b, err := svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricWeight, Value: 72.456})
	require.NoError(t, err)
	require.Equal(t, 72.46, *b.Weight)

	b, err = svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricWeight, Value: domain.MaxWeight})
	require.NoError(t, err)
	require.Equal(t, domain.MaxWeight, *b.Weight)
}

func TestIncrementsCannotOverflowRunningTotal(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	half := float64(domain.MaxCount/2 + 1)

	for _, metric := range []domain.Metric{domain.MetricWater, domain.MetricSteps} {
		_, err := svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: metric, Value: half, Mode: domain.ModeIncremental})
		require.NoError(t, err)

		_, err = svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: metric, Value: half, Mode: domain.ModeIncremental})
		requireKind(t, err, domain.KindInvalidInput)
		require.ErrorIs(t, err, domain.ErrCounterOverflow)
	}

	b, err := svc.ResolveBucket(ctx, "p1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, int(half), b.Water, "rejected increment must leave the total untouched")
	require.Equal(t, int(half), b.Steps)

	b, err = svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricWater, Value: domain.MaxCount - half, Mode: domain.ModeIncremental})
	require.NoError(t, err)
	require.Equal(t, domain.MaxCount, b.Water)
}

func TestWeightWithoutUnitKeepsPreviousUnit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	b, err := svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricWeight, Value: 150.5, Unit: domain.UnitPounds})
	require.NoError(t, err)
	require.Equal(t, domain.UnitPounds, b.WeightUnit)

	b, err = svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricWeight, Value: 149})
	require.NoError(t, err)
	require.Equal(t, 149.0, *b.Weight)
	require.Equal(t, domain.UnitPounds, b.WeightUnit)
}

func TestLogMetricValidationHappensBeforeStoreWrites(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	cases := []domain.MetricInput{
		{Metric: domain.MetricWater, Value: math.NaN()},
		{Metric: domain.MetricSteps, Value: math.Inf(1)},
		{Metric: domain.MetricSteps, Value: -5},
		{Metric: domain.MetricSteps, Value: 2.5},
		{Metric: domain.MetricHeartRate, Value: 70, Mode: domain.ModeIncremental},
		{Metric: domain.MetricWeight, Value: 70, Mode: domain.ModeIncremental},
		{Metric: domain.MetricWeight, Value: 0},
		{Metric: domain.MetricWeight, Value: 0.004},
		{Metric: domain.MetricWeight, Value: 1e9},
		{Metric: domain.MetricWeight, Value: 100000},
		{Metric: domain.MetricWater, Value: domain.MaxCount + 1},
		{Metric: domain.MetricWeight, Value: 70, Unit: "stone"},
		{Metric: domain.MetricWater, Value: 1, Mode: "sometimes"},
		{Metric: "mood", Value: 1},
	}
	for _, in := range cases {
		_, err := svc.LogMetric(ctx, "p1", in)
		requireKind(t, err, domain.KindInvalidInput)
	}

	b, err := repo.FindBucket(ctx, "p1", fixedNow)
	require.NoError(t, err)
	require.Nil(t, b, "rejected input must not create a bucket")
}

func TestLogMetricForPastDay(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	b, err := svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricWater, Value: 3, Day: jan(8).Add(20 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, jan(8), b.DayKey)
}

func TestSetGoalWritesTodaysBucket(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// An older bucket keeps its historical goal.
	old, err := svc.ResolveBucket(ctx, "p1", jan(9))
	require.NoError(t, err)

	b, err := svc.SetGoal(ctx, "p1", domain.MetricWater, 12)
	require.NoError(t, err)
	require.Equal(t, jan(10), b.DayKey)
	require.Equal(t, 12, b.WaterGoal)
	require.Equal(t, 10000, b.StepsGoal)

	still, err := svc.ResolveBucket(ctx, "p1", jan(9))
	require.NoError(t, err)
	require.Equal(t, old.WaterGoal, still.WaterGoal)

	_, err = svc.SetGoal(ctx, "p1", domain.MetricSteps, 0)
	requireKind(t, err, domain.KindInvalidInput)
	_, err = svc.SetGoal(ctx, "p1", domain.MetricHeartRate, 60)
	requireKind(t, err, domain.KindInvalidInput)
	_, err = svc.SetGoal(ctx, "ghost", domain.MetricSteps, 100)
	requireKind(t, err, domain.KindNotFound)
}

func TestLatestHeartRate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.LatestHeartRate(ctx, "p1")
	requireKind(t, err, domain.KindNotFound)

	_, err = svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricHeartRate, Value: 72, Day: jan(8)})
	require.NoError(t, err)
	_, err = svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricHeartRate, Value: 58, Day: jan(9)})
	require.NoError(t, err)

	reading, err := svc.LatestHeartRate(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 58, reading.Value)
	require.Equal(t, jan(9), reading.DayKey)
	require.Equal(t, "Tue", reading.Weekday)
}

func TestDailySummaries(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, d := range []int{2, 5, 9} {
		_, err := svc.LogMetric(ctx, "p1", domain.MetricInput{Metric: domain.MetricSteps, Value: float64(d * 100), Day: jan(d)})
		require.NoError(t, err)
	}

	buckets, err := svc.DailySummaries(ctx, "p1", jan(3), jan(9))
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	require.Equal(t, 500, buckets[0].Steps)
	require.Equal(t, 900, buckets[1].Steps)

	_, err = svc.DailySummaries(ctx, "p1", jan(9), jan(3))
	requireKind(t, err, domain.KindInvalidInput)
	_, err = svc.DailySummaries(ctx, "p1", jan(1), jan(1).AddDate(0, 2, 0))
	requireKind(t, err, domain.KindInvalidInput)
}
