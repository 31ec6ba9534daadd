package domain

import (
	"sort"
	"strings"
	"time"

	"example.com/healthtrack/internal/daykey"
)

// Medication is a recurring schedule owned by a patient. Completion is derived
// from CompletedDates rather than stored.
type Medication struct {
	ID        string
	PatientID string
	// BucketID references the bucket of the day the medication was added.
	BucketID       string
	Name           string
	StartDate      time.Time
	EndDate        *time.Time
	Recurrence     []daykey.WeekdayCode
	DailyTimes     []TimeOfDay
	CompletedDates []time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Scheduled reports whether the weekday of day is part of the recurrence.
func (m Medication) Scheduled(day time.Time) bool {
	code := daykey.CodeFor(day)
	for _, c := range m.Recurrence {
		if c == code {
			return true
		}
	}
	return false
}

// ActiveOn reports whether the medication has not ended before day.
func (m Medication) ActiveOn(day time.Time) bool {
	return m.EndDate == nil || !daykey.Normalize(*m.EndDate).Before(daykey.Normalize(day))
}

// AddMedicationInput is the payload for AddMedication. Recurrence holds weekday
// codes and DailyTimes holds wall-clock strings.
type AddMedicationInput struct {
	Name       string
	StartDate  time.Time
	EndDate    *time.Time
	Recurrence []string
	DailyTimes []string
}

func (in AddMedicationInput) validate() (Medication, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Medication{}, invalidInput("medication name is required")
	}
	if in.StartDate.IsZero() {
		return Medication{}, invalidInput("start date is required")
	}
	start := daykey.Normalize(in.StartDate)

	var end *time.Time
	if in.EndDate != nil && !in.EndDate.IsZero() {
		e := daykey.Normalize(*in.EndDate)
		if e.Before(start) {
			return Medication{}, invalidInput("end date must not be before start date")
		}
		end = &e
	}

	if len(in.Recurrence) == 0 {
		return Medication{}, invalidInput("recurrence must contain at least one weekday")
	}
	codes := make([]daykey.WeekdayCode, 0, len(in.Recurrence))
	for _, raw := range in.Recurrence {
		code, err := daykey.ParseWeekdayCode(raw)
		if err != nil {
			return Medication{}, invalidInput("%v", err)
		}
		codes = append(codes, code)
	}

	if len(in.DailyTimes) == 0 {
		return Medication{}, invalidInput("daily times must contain at least one time")
	}
	times := make([]TimeOfDay, 0, len(in.DailyTimes))
	seen := make(map[TimeOfDay]struct{}, len(in.DailyTimes))
	for _, raw := range in.DailyTimes {
		t, err := ParseTimeOfDay(raw)
		if err != nil {
			return Medication{}, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].minutes() < times[j].minutes() })

	return Medication{
		Name:       name,
		StartDate:  start,
		EndDate:    end,
		Recurrence: daykey.SortCodes(codes),
		DailyTimes: times,
	}, nil
}

// CompletedWeekdays maps completed dates to their weekday codes, Sunday first, without duplicates.
func CompletedWeekdays(dates []time.Time) []daykey.WeekdayCode {
	codes := make([]daykey.WeekdayCode, 0, len(dates))
	for _, d := range dates {
		codes = append(codes, daykey.CodeFor(d))
	}
	return daykey.SortCodes(codes)
}

// FullyCompleted reports whether every weekday in recurrence has at least one
// completed date falling on it. An empty recurrence is never complete.
func FullyCompleted(recurrence []daykey.WeekdayCode, completed []time.Time) bool {
	if len(recurrence) == 0 {
		return false
	}
	done := make(map[daykey.WeekdayCode]struct{}, len(completed))
	for _, d := range completed {
		done[daykey.CodeFor(d)] = struct{}{}
	}
	for _, code := range recurrence {
		if _, ok := done[code]; !ok {
			return false
		}
	}
	return true
}

// MedicationView is a medication annotated with its derived completion state.
type MedicationView struct {
	Medication
	CompletedWeekdays         []daykey.WeekdayCode
	FullyCompletedForSchedule bool
}

func viewOf(m Medication) MedicationView {
	return MedicationView{
		Medication:                m,
		CompletedWeekdays:         CompletedWeekdays(m.CompletedDates),
		FullyCompletedForSchedule: FullyCompleted(m.Recurrence, m.CompletedDates),
	}
}

// MedicationList partitions a patient's medications by end date relative to today.
type MedicationList struct {
	Active []MedicationView
	Past   []MedicationView
}

// DateRange optionally bounds ListMedications by medication start date.
type DateRange struct {
	From *time.Time
	To   *time.Time
}
