package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthtrack/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, time.April, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateBucketRejectsDuplicateDay(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	require.NoError(t, repo.CreateBucket(ctx, domain.Bucket{ID: "b1", PatientID: "p1", DayKey: day(1)}))
	err := repo.CreateBucket(ctx, domain.Bucket{ID: "b2", PatientID: "p1", DayKey: day(1).Add(3 * time.Hour)})
	require.ErrorIs(t, err, domain.ErrConflictOnCreate)

	// Another patient on the same day is fine.
	require.NoError(t, repo.CreateBucket(ctx, domain.Bucket{ID: "b3", PatientID: "p2", DayKey: day(1)}))
}

func TestUpdateBucketReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	require.NoError(t, repo.CreateBucket(ctx, domain.Bucket{ID: "b1", PatientID: "p1", DayKey: day(1)}))

	w := 70.5
	got, err := repo.UpdateBucket(ctx, "b1", domain.BucketUpdate{Weight: &w})
	require.NoError(t, err)
	*got.Weight = 1

	stored, err := repo.GetBucket(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 70.5, *stored.Weight)

	missing, err := repo.UpdateBucket(ctx, "nope", domain.BucketUpdate{Weight: &w})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestListSleepBucketsPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.CreateBucket(ctx, domain.Bucket{ID: id, PatientID: "p1", DayKey: day(i + 1)}))
		if id == "c" {
			continue
		}
		_, err := repo.UpdateBucket(ctx, id, domain.BucketUpdate{Sleep: &domain.SleepWindow{
			Start: day(i + 1).Add(22 * time.Hour),
			End:   day(i + 2).Add(6 * time.Hour),
		}})
		require.NoError(t, err)
	}

	page, next, err := repo.ListSleepBuckets(ctx, "p1", nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "d", page[0].ID)
	require.Equal(t, "b", page[1].ID)
	require.NotNil(t, next)

	page, next, err = repo.ListSleepBuckets(ctx, "p1", next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "a", page[0].ID)
	require.Nil(t, next)
}

func TestSetMedicationCompletionIsASet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	require.NoError(t, repo.CreateMedication(ctx, domain.Medication{ID: "m1", PatientID: "p1", StartDate: day(1)}))

	_, err := repo.SetMedicationCompletion(ctx, "m1", day(3), true)
	require.NoError(t, err)
	m, err := repo.SetMedicationCompletion(ctx, "m1", day(3).Add(5*time.Hour), true)
	require.NoError(t, err)
	require.Len(t, m.CompletedDates, 1)

	m, err = repo.SetMedicationCompletion(ctx, "m1", day(3), false)
	require.NoError(t, err)
	require.Empty(t, m.CompletedDates)

	m, err = repo.SetMedicationCompletion(ctx, "m1", day(3), false)
	require.NoError(t, err)
	require.Empty(t, m.CompletedDates)
}

func TestListMedicationsFiltersByStartDate(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	require.NoError(t, repo.CreateMedication(ctx, domain.Medication{ID: "late", PatientID: "p1", StartDate: day(20)}))
	require.NoError(t, repo.CreateMedication(ctx, domain.Medication{ID: "early", PatientID: "p1", StartDate: day(2)}))
	require.NoError(t, repo.CreateMedication(ctx, domain.Medication{ID: "mid", PatientID: "p1", StartDate: day(10)}))
	require.NoError(t, repo.CreateMedication(ctx, domain.Medication{ID: "other", PatientID: "p2", StartDate: day(10)}))

	all, err := repo.ListMedications(ctx, "p1", domain.MedicationFilter{})
	require.NoError(t, err)
	require.Equal(t, []string{"early", "mid", "late"}, ids(all))

	from, to := day(5), day(20)
	some, err := repo.ListMedications(ctx, "p1", domain.MedicationFilter{StartFrom: &from, StartTo: &to})
	require.NoError(t, err)
	require.Equal(t, []string{"mid", "late"}, ids(some))
}

func ids(meds []domain.Medication) []string {
	out := make([]string, 0, len(meds))
	for _, m := range meds {
		out = append(out, m.ID)
	}
	return out
}
