package api

import (
	"time"

	"example.com/healthtrack/internal/daykey"
	"example.com/healthtrack/internal/domain"
)

// BucketView exposes one day of a patient's metrics.
type BucketView struct {
	BucketID   string     `json:"bucket_id"`
	PatientID  string     `json:"patient_id"`
	DayKey     string     `json:"day_key"`
	Weekday    string     `json:"weekday"`
	Water      int        `json:"water"`
	WaterGoal  int        `json:"water_goal"`
	Steps      int        `json:"steps"`
	StepsGoal  int        `json:"steps_goal"`
	HeartRate  int        `json:"heart_rate"`
	Weight     *float64   `json:"weight,omitempty"`
	WeightUnit string     `json:"weight_unit"`
	Sleep      *SleepView `json:"sleep,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SleepView describes a stored sleep interval.
type SleepView struct {
	BucketID        string    `json:"bucket_id"`
	DayKey          string    `json:"day_key"`
	Weekday         string    `json:"weekday"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	Hours           int       `json:"hours"`
	Minutes         int       `json:"minutes"`
	Label           string    `json:"label"`
}

// SleepHistoryResponse packages a page of sleep entries.
type SleepHistoryResponse struct {
	Items      []SleepView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// DayEntryView is one day of a rolling report.
type DayEntryView struct {
	DayKey   string  `json:"day_key"`
	Weekday  string  `json:"weekday"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit,omitempty"`
	Goal     *int    `json:"goal,omitempty"`
	Recorded bool    `json:"recorded"`
	BucketID string  `json:"bucket_id,omitempty"`
}

// ReportView is the chronological report for one metric.
type ReportView struct {
	PatientID  string         `json:"patient_id"`
	Metric     string         `json:"metric"`
	FillPolicy string         `json:"fill_policy"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Entries    []DayEntryView `json:"entries"`
}

// HeartRateView is the most recent heart rate reading.
type HeartRateView struct {
	BucketID string `json:"bucket_id"`
	DayKey   string `json:"day_key"`
	Weekday  string `json:"weekday"`
	Value    int    `json:"value"`
}

// DailySummariesResponse lists stored days oldest first.
type DailySummariesResponse struct {
	Items []BucketView `json:"items"`
}

// MedicationView exposes a medication schedule and its completion state.
type MedicationView struct {
	MedicationID              string    `json:"medication_id"`
	PatientID                 string    `json:"patient_id"`
	BucketID                  string    `json:"bucket_id,omitempty"`
	Name                      string    `json:"name"`
	StartDate                 string    `json:"start_date"`
	EndDate                   *string   `json:"end_date,omitempty"`
	Recurrence                []string  `json:"recurrence"`
	DailyTimes                []string  `json:"daily_times"`
	CompletedDates            []string  `json:"completed_dates"`
	CompletedWeekdays         []string  `json:"completed_weekdays"`
	FullyCompletedForSchedule bool      `json:"fully_completed_for_schedule"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// ListMedicationsResponse splits medications into active and past.
type ListMedicationsResponse struct {
	Active []MedicationView `json:"active"`
	Past   []MedicationView `json:"past"`
}

func toBucketView(b domain.Bucket) BucketView {
	view := BucketView{
		BucketID:   b.ID,
		PatientID:  b.PatientID,
		DayKey:     daykey.Format(b.DayKey),
		Weekday:    daykey.WeekdayLabel(b.DayKey),
		Water:      b.Water,
		WaterGoal:  b.WaterGoal,
		Steps:      b.Steps,
		StepsGoal:  b.StepsGoal,
		HeartRate:  b.HeartRate,
		Weight:     b.Weight,
		WeightUnit: string(b.WeightUnit),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
	if b.HasSleep() {
		sleep := sleepViewOf(b.ID, b.DayKey, *b.SleepStart, *b.SleepEnd)
		view.Sleep = &sleep
	}
	return view
}

func toSleepView(entry domain.SleepEntry) SleepView {
	return sleepViewOf(entry.BucketID, entry.DayKey, entry.Interval.Start, entry.Interval.End)
}

func sleepViewOf(bucketID string, day, start, end time.Time) SleepView {
	interval := domain.SleepInterval{Start: start, End: end, Duration: end.Sub(start)}
	return SleepView{
		BucketID:        bucketID,
		DayKey:          daykey.Format(day),
		Weekday:         daykey.WeekdayLabel(day),
		Start:           start,
		End:             end,
		DurationMinutes: int(interval.Duration / time.Minute),
		Hours:           interval.Hours(),
		Minutes:         interval.Minutes(),
		Label:           interval.String(),
	}
}

func toReportView(r domain.Report) ReportView {
	view := ReportView{
		PatientID:  r.PatientID,
		Metric:     string(r.Metric),
		FillPolicy: string(r.Policy),
		From:       daykey.Format(r.From),
		To:         daykey.Format(r.To),
		Entries:    make([]DayEntryView, 0, len(r.Entries)),
	}
	for _, e := range r.Entries {
		view.Entries = append(view.Entries, DayEntryView{
			DayKey:   daykey.Format(e.DayKey),
			Weekday:  e.Weekday,
			Value:    e.Value,
			Unit:     string(e.Unit),
			Goal:     e.Goal,
			Recorded: e.Recorded,
			BucketID: e.BucketID,
		})
	}
	return view
}

func toMedicationView(m domain.MedicationView) MedicationView {
	view := MedicationView{
		MedicationID:              m.ID,
		PatientID:                 m.PatientID,
		BucketID:                  m.BucketID,
		Name:                      m.Name,
		StartDate:                 daykey.Format(m.StartDate),
		Recurrence:                make([]string, 0, len(m.Recurrence)),
		DailyTimes:                make([]string, 0, len(m.DailyTimes)),
		CompletedDates:            make([]string, 0, len(m.CompletedDates)),
		CompletedWeekdays:         make([]string, 0, len(m.CompletedWeekdays)),
		FullyCompletedForSchedule: m.FullyCompletedForSchedule,
		CreatedAt:                 m.CreatedAt,
		UpdatedAt:                 m.UpdatedAt,
	}
	if m.EndDate != nil {
		end := daykey.Format(*m.EndDate)
		view.EndDate = &end
	}
	for _, code := range m.Recurrence {
		view.Recurrence = append(view.Recurrence, string(code))
	}
	for _, t := range m.DailyTimes {
		view.DailyTimes = append(view.DailyTimes, t.String())
	}
	for _, d := range m.CompletedDates {
		view.CompletedDates = append(view.CompletedDates, daykey.Format(d))
	}
	for _, code := range m.CompletedWeekdays {
		view.CompletedWeekdays = append(view.CompletedWeekdays, string(code))
	}
	return view
}
