package domain

import (
	"math"
	"strings"
	"time"
)

// Metric names a bucket field that can be logged and reported.
type Metric string

const (
	MetricWater     Metric = "water"
	MetricSteps     Metric = "steps"
	MetricHeartRate Metric = "heart_rate"
	MetricWeight    Metric = "weight"
)

// ParseMetric accepts the canonical names plus the hyphenated form used in URLs.
func ParseMetric(value string) (Metric, error) {
	m := Metric(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_"))
	switch m {
	case MetricWater, MetricSteps, MetricHeartRate, MetricWeight:
		return m, nil
	}
	return "", invalidInput("unknown metric %q", value)
}

// HasGoal reports whether the metric carries a per-day goal.
func (m Metric) HasGoal() bool {
	return m == MetricWater || m == MetricSteps
}

// Mode selects how a logged value is combined with the stored one.
type Mode string

const (
	ModeAbsolute    Mode = "absolute"
	ModeIncremental Mode = "incremental"
)

// Bounds of the stored columns. Counters are 32-bit integers and weight is NUMERIC(7,2).
const (
	MaxCount  = math.MaxInt32
	MaxWeight = 99999.99
)

// MetricInput is a single measurement to log. A zero Day means today.
type MetricInput struct {
	Metric Metric
	Value  float64
	Mode   Mode
	Unit   WeightUnit
	Day    time.Time
}

// toUpdate validates the input and converts it to a store update. It never touches the store.
func (in MetricInput) toUpdate() (BucketUpdate, error) {
	mode := in.Mode
	if mode == "" {
		mode = ModeAbsolute
	}
	if mode != ModeAbsolute && mode != ModeIncremental {
		return BucketUpdate{}, invalidInput("unknown mode %q", in.Mode)
	}
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return BucketUpdate{}, invalidInput("%s value must be a finite number", in.Metric)
	}

	switch in.Metric {
	case MetricWater, MetricSteps:
		n, err := wholeCount(in.Metric, in.Value)
		if err != nil {
			return BucketUpdate{}, err
		}
		var update BucketUpdate
		switch {
		case in.Metric == MetricWater && mode == ModeIncremental:
			update.WaterDelta = &n
		case in.Metric == MetricWater:
			update.Water = &n
		case mode == ModeIncremental:
			update.StepsDelta = &n
		default:
			update.Steps = &n
		}
		return update, nil

	case MetricHeartRate:
		if mode != ModeAbsolute {
			return BucketUpdate{}, invalidInput("heart_rate only supports absolute mode")
		}
		n, err := wholeCount(in.Metric, in.Value)
		if err != nil {
			return BucketUpdate{}, err
		}
		return BucketUpdate{HeartRate: &n}, nil

	case MetricWeight:
		if mode != ModeAbsolute {
			return BucketUpdate{}, invalidInput("weight only supports absolute mode")
		}
		// Stored with two decimals.
		w := math.Round(in.Value*100) / 100
		if w <= 0 {
			return BucketUpdate{}, invalidInput("weight must be at least 0.01")
		}
		if w > MaxWeight {
			return BucketUpdate{}, invalidInput("weight must not exceed %.2f", MaxWeight)
		}
		update := BucketUpdate{Weight: &w}
		if in.Unit != "" {
			if !in.Unit.Valid() {
				return BucketUpdate{}, invalidInput("unknown weight unit %q", in.Unit)
			}
			unit := in.Unit
			update.WeightUnit = &unit
		}
		return update, nil
	}
	return BucketUpdate{}, invalidInput("unknown metric %q", in.Metric)
}

func wholeCount(metric Metric, value float64) (int, error) {
	if value < 0 {
		return 0, invalidInput("%s must not be negative", metric)
	}
	if value != math.Trunc(value) {
		return 0, invalidInput("%s must be a whole number", metric)
	}
	if value > MaxCount {
		return 0, invalidInput("%s is too large", metric)
	}
	return int(value), nil
}

// goalUpdate validates a goal value for metric.
func goalUpdate(metric Metric, goal float64) (BucketUpdate, error) {
	if !metric.HasGoal() {
		return BucketUpdate{}, invalidInput("%s has no goal", metric)
	}
	if math.IsNaN(goal) || math.IsInf(goal, 0) {
		return BucketUpdate{}, invalidInput("goal must be a finite number")
	}
	n, err := wholeCount(metric, goal)
	if err != nil {
		return BucketUpdate{}, err
	}
	if n == 0 {
		return BucketUpdate{}, invalidInput("%s goal must be positive", metric)
	}
	if metric == MetricWater {
		return BucketUpdate{WaterGoal: &n}, nil
	}
	return BucketUpdate{StepsGoal: &n}, nil
}
