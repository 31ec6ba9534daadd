package domain

import (
	"time"

	"example.com/healthtrack/internal/daykey"
)

// MaxWindowDays is the widest rolling window a report may cover.
const MaxWindowDays = 7

// FillPolicy decides what a report shows for days without a measurement.
type FillPolicy string

const (
	FillZero         FillPolicy = "zero"
	FillCarryForward FillPolicy = "carry_forward"
)

// FillPolicyFor returns the gap-filling policy of a metric.
func FillPolicyFor(m Metric) FillPolicy {
	if m == MetricWeight {
		return FillCarryForward
	}
	return FillZero
}

// ReportOptions selects the window. Zero values mean seven days ending today.
type ReportOptions struct {
	WindowDays   int
	ReferenceDay time.Time
}

// DayEntry is one day of a rolling report.
type DayEntry struct {
	DayKey  time.Time
	Weekday string
	Value   float64
	// Unit is set for weight only.
	Unit WeightUnit
	// Goal is set for water and steps only. It is the goal stored on that
	// day's bucket, or 0 when the day has no bucket.
	Goal *int
	// Recorded is false for filled-in days.
	Recorded bool
	BucketID string
}

// Report is a chronological rolling window for one metric.
type Report struct {
	PatientID string
	Metric    Metric
	Policy    FillPolicy
	From      time.Time
	To        time.Time
	Entries   []DayEntry
}

// buildEntries fills exactly n days starting at from. buckets may be in any order.
func buildEntries(metric Metric, from time.Time, n int, buckets []Bucket) []DayEntry {
	byDay := make(map[string]Bucket, len(buckets))
	for _, b := range buckets {
		byDay[daykey.Format(b.DayKey)] = b
	}

	entries := make([]DayEntry, 0, n)
	carriedValue := 0.0
	carriedUnit := DefaultWeightUnit

	for i := 0; i < n; i++ {
		day := daykey.AddDays(from, i)
		entry := DayEntry{DayKey: day, Weekday: daykey.WeekdayLabel(day)}
		b, ok := byDay[daykey.Format(day)]
		if ok {
			entry.BucketID = b.ID
		}

		switch metric {
		case MetricWater:
			goal := 0
			if ok {
				entry.Value, goal, entry.Recorded = float64(b.Water), b.WaterGoal, true
			}
			entry.Goal = &goal
		case MetricSteps:
			goal := 0
			if ok {
				entry.Value, goal, entry.Recorded = float64(b.Steps), b.StepsGoal, true
			}
			entry.Goal = &goal
		case MetricHeartRate:
			if ok {
				entry.Value, entry.Recorded = float64(b.HeartRate), true
			}
		case MetricWeight:
			if ok && b.Weight != nil {
				carriedValue = *b.Weight
				carriedUnit = b.WeightUnit
				if !carriedUnit.Valid() {
					carriedUnit = DefaultWeightUnit
				}
				entry.Recorded = true
			}
			entry.Value, entry.Unit = carriedValue, carriedUnit
		}
		entries = append(entries, entry)
	}
	return entries
}
