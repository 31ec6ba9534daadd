package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"example.com/healthtrack/internal/daykey"
)

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String renders the time as 24-hour HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// On anchors the time of day to the given calendar day.
func (t TimeOfDay) On(day time.Time) time.Time {
	return daykey.Normalize(day).Add(time.Duration(t.minutes()) * time.Minute)
}

// ParseTimeOfDay accepts "hh:mm AM", "hh:mmPM" and 24-hour "HH:MM" or "HH:MM:SS".
// Seconds are dropped.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	raw := strings.ToUpper(strings.TrimSpace(value))
	if raw == "" {
		return TimeOfDay{}, invalidInput("time of day is required")
	}

	meridiem := ""
	if strings.HasSuffix(raw, "AM") || strings.HasSuffix(raw, "PM") {
		meridiem = raw[len(raw)-2:]
		raw = strings.TrimSpace(raw[:len(raw)-2])
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 || (meridiem != "" && len(parts) != 2) {
		return TimeOfDay{}, invalidInput("unrecognised time of day %q", value)
	}
	if !digits(parts[0], 1, 2) {
		return TimeOfDay{}, invalidInput("unrecognised hour in %q", value)
	}
	hour, _ := strconv.Atoi(parts[0])
	if !digits(parts[1], 2, 2) {
		return TimeOfDay{}, invalidInput("unrecognised minute in %q", value)
	}
	minute, _ := strconv.Atoi(parts[1])
	if minute > 59 {
		return TimeOfDay{}, invalidInput("unrecognised minute in %q", value)
	}
	if len(parts) == 3 {
		if sec, _ := strconv.Atoi(parts[2]); !digits(parts[2], 2, 2) || sec > 59 {
			return TimeOfDay{}, invalidInput("unrecognised second in %q", value)
		}
	}

	switch meridiem {
	case "":
		if hour < 0 || hour > 23 {
			return TimeOfDay{}, invalidInput("hour out of range in %q", value)
		}
	default:
		if hour < 1 || hour > 12 {
			return TimeOfDay{}, invalidInput("hour out of range in %q", value)
		}
		// 12 AM is midnight, 12 PM is noon.
		if hour == 12 {
			hour = 0
		}
		if meridiem == "PM" {
			hour += 12
		}
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// SleepInterval is a computed sleep period.
type SleepInterval struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Hours returns the whole hours of the duration.
func (s SleepInterval) Hours() int {
	return int(s.Duration / time.Hour)
}

// Minutes returns the minutes remaining after Hours.
func (s SleepInterval) Minutes() int {
	return int((s.Duration % time.Hour) / time.Minute)
}

// String formats the duration as "8 hr" or "1 hr 30 min".
func (s SleepInterval) String() string {
	if s.Minutes() == 0 {
		return fmt.Sprintf("%d hr", s.Hours())
	}
	return fmt.Sprintf("%d hr %d min", s.Hours(), s.Minutes())
}

// ComputeSleep anchors start and end to day. When end is not after start the
// end moves to the next calendar day.
func ComputeSleep(day time.Time, start, end TimeOfDay) SleepInterval {
	s := start.On(day)
	e := end.On(day)
	if end.minutes() <= start.minutes() {
		e = end.On(daykey.AddDays(day, 1))
	}
	return SleepInterval{Start: s, End: e, Duration: e.Sub(s)}
}

func intervalFromBucket(b Bucket) SleepInterval {
	if !b.HasSleep() {
		return SleepInterval{}
	}
	return SleepInterval{Start: *b.SleepStart, End: *b.SleepEnd, Duration: b.SleepEnd.Sub(*b.SleepStart)}
}

// SleepInput carries wall-clock strings for one night. A zero Day means today.
type SleepInput struct {
	Day   time.Time
	Start string
	End   string
}

// SleepEntry is a stored sleep interval with its bucket reference.
type SleepEntry struct {
	BucketID string
	DayKey   time.Time
	Weekday  string
	Interval SleepInterval
}

func sleepEntryFromBucket(b Bucket) SleepEntry {
	return SleepEntry{
		BucketID: b.ID,
		DayKey:   b.DayKey,
		Weekday:  daykey.WeekdayLabel(b.DayKey),
		Interval: intervalFromBucket(b),
	}
}

// digits reports whether s is between minLen and maxLen ASCII digits with no sign or spaces.
func digits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
