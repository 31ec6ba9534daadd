package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthtrack/internal/daykey"
	"example.com/healthtrack/internal/domain"
)

func addMWF(t *testing.T, svc *domain.Service) *domain.Medication {
	t.Helper()
	med, err := svc.AddMedication(context.Background(), "p1", domain.AddMedicationInput{
		Name:       "Metformin",
		StartDate:  jan(1),
		Recurrence: []string{"F", "m", "W", "M"},
		DailyTimes: []string{"20:00", "08:00:30", "8:00 AM"},
	})
	require.NoError(t, err)
	return med
}

func TestAddMedicationNormalizesAndLinksTodaysBucket(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	med := addMWF(t, svc)
	require.Equal(t, []daykey.WeekdayCode{daykey.Monday, daykey.Wednesday, daykey.Friday}, med.Recurrence)
	require.Equal(t, []domain.TimeOfDay{{Hour: 8}, {Hour: 20}}, med.DailyTimes)
	require.Empty(t, med.CompletedDates)

	today, err := repo.FindBucket(ctx, "p1", fixedNow)
	require.NoError(t, err)
	require.NotNil(t, today)
	require.Equal(t, today.ID, med.BucketID)
}

func TestAddMedicationValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	end := jan(1).AddDate(0, 0, -1)

	cases := []domain.AddMedicationInput{
		{Name: " ", StartDate: jan(1), Recurrence: []string{"M"}, DailyTimes: []string{"08:00"}},
		{Name: "A", Recurrence: []string{"M"}, DailyTimes: []string{"08:00"}},
		{Name: "A", StartDate: jan(1), DailyTimes: []string{"08:00"}},
		{Name: "A", StartDate: jan(1), Recurrence: []string{"MO"}, DailyTimes: []string{"08:00"}},
		{Name: "A", StartDate: jan(1), Recurrence: []string{"M"}},
		{Name: "A", StartDate: jan(1), Recurrence: []string{"M"}, DailyTimes: []string{"8"}},
		{Name: "A", StartDate: jan(1), EndDate: &end, Recurrence: []string{"M"}, DailyTimes: []string{"08:00"}},
	}
	for i, in := range cases {
		_, err := svc.AddMedication(ctx, "p1", in)
		require.Equal(t, domain.KindInvalidInput, domain.KindOf(err), "case %d: %v", i, err)
	}

	_, err := svc.AddMedication(ctx, "ghost", domain.AddMedicationInput{Name: "A", StartDate: jan(1), Recurrence: []string{"M"}, DailyTimes: []string{"08:00"}})
	requireKind(t, err, domain.KindNotFound)
}

func TestSetCompletionOutsideScheduleDoesNotMutate(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	med := addMWF(t, svc)

	// 2024-01-09 is a Tuesday.
	_, err := svc.SetCompletion(ctx, "p1", med.ID, jan(9), true)
	requireKind(t, err, domain.KindSchedulingMismatch)

	stored, err := repo.GetMedication(ctx, med.ID)
	require.NoError(t, err)
	require.Empty(t, stored.CompletedDates)
}

func TestSetCompletionRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	med := addMWF(t, svc)

	before, err := svc.SetCompletion(ctx, "p1", med.ID, jan(8), true)
	require.NoError(t, err)

	view, err := svc.SetCompletion(ctx, "p1", med.ID, jan(10), true)
	require.NoError(t, err)
	require.Len(t, view.CompletedDates, 2)

	// Marking twice is idempotent.
	view, err = svc.SetCompletion(ctx, "p1", med.ID, jan(10).Add(9*time.Hour), true)
	require.NoError(t, err)
	require.Len(t, view.CompletedDates, 2)

	view, err = svc.SetCompletion(ctx, "p1", med.ID, jan(10), false)
	require.NoError(t, err)
	require.ElementsMatch(t, before.CompletedDates, view.CompletedDates)

	// Removing an absent date is a no-op.
	view, err = svc.SetCompletion(ctx, "p1", med.ID, jan(10), false)
	require.NoError(t, err)
	require.ElementsMatch(t, before.CompletedDates, view.CompletedDates)
}

func TestSetCompletionOwnershipAndInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	med := addMWF(t, svc)

	_, err := svc.SetCompletion(ctx, "p2", med.ID, jan(8), true)
	requireKind(t, err, domain.KindNotFound)
	_, err = svc.SetCompletion(ctx, "p1", "missing", jan(8), true)
	requireKind(t, err, domain.KindNotFound)
	_, err = svc.SetCompletion(ctx, "p1", med.ID, time.Time{}, true)
	requireKind(t, err, domain.KindInvalidInput)
}

func TestFullyCompletedForSchedule(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	med := addMWF(t, svc)

	view, err := svc.SetCompletion(ctx, "p1", med.ID, jan(1), true) // Monday
	require.NoError(t, err)
	require.False(t, view.FullyCompletedForSchedule)

	view, err = svc.SetCompletion(ctx, "p1", med.ID, jan(3), true) // Wednesday
	require.NoError(t, err)
	require.False(t, view.FullyCompletedForSchedule)

	view, err = svc.SetCompletion(ctx, "p1", med.ID, jan(5), true) // Friday
	require.NoError(t, err)
	require.True(t, view.FullyCompletedForSchedule)
	require.Equal(t, []daykey.WeekdayCode{daykey.Monday, daykey.Wednesday, daykey.Friday}, view.CompletedWeekdays)
}

func TestFullyCompletedIgnoresOffScheduleDates(t *testing.T) {
	mwf := []daykey.WeekdayCode{daykey.Monday, daykey.Wednesday, daykey.Friday}
	// Mon, Wed, plus a Tuesday and a Saturday that can never stand in for Friday.
	dates := []time.Time{jan(1), jan(3), jan(2), jan(6)}
	require.False(t, domain.FullyCompleted(mwf, dates))
	require.True(t, domain.FullyCompleted(mwf, append(dates, jan(12))))
	require.False(t, domain.FullyCompleted(nil, dates))
}

func TestListMedicationsPartitionsByEndDate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	yesterday := jan(9)
	today := jan(10)
	for _, in := range []domain.AddMedicationInput{
		{Name: "Open", StartDate: jan(2)},
		{Name: "EndsToday", StartDate: jan(3), EndDate: &today},
		{Name: "Ended", StartDate: jan(1), EndDate: &yesterday},
	} {
		in.Recurrence = []string{"SU", "SA"}
		in.DailyTimes = []string{"09:00"}
		_, err := svc.AddMedication(ctx, "p1", in)
		require.NoError(t, err)
	}

	list, err := svc.ListMedications(ctx, "p1", domain.DateRange{})
	require.NoError(t, err)
	require.Len(t, list.Active, 2)
	require.Equal(t, "Open", list.Active[0].Name)
	require.Equal(t, "EndsToday", list.Active[1].Name)
	require.Len(t, list.Past, 1)
	require.Equal(t, "Ended", list.Past[0].Name)

	from := jan(2)
	list, err = svc.ListMedications(ctx, "p1", domain.DateRange{From: &from})
	require.NoError(t, err)
	require.Len(t, list.Active, 2)
	require.Empty(t, list.Past)

	to := jan(1)
	_, err = svc.ListMedications(ctx, "p1", domain.DateRange{From: &from, To: &to})
	requireKind(t, err, domain.KindInvalidInput)

	_, err = svc.ListMedications(ctx, "ghost", domain.DateRange{})
	requireKind(t, err, domain.KindNotFound)
}
