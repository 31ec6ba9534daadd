// Package daykey normalizes instants to calendar days and names weekdays.
//
// Every day key in the service is the UTC midnight of the calendar day it
// represents. Callers never compare raw instants when they mean "same day".
package daykey

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the wire format for day keys.
const Layout = "2006-01-02"

// ErrInvalidDate is returned when a date string matches no accepted layout.
var ErrInvalidDate = errors.New("invalid date")

// Normalize truncates t to UTC midnight of its UTC calendar day.
func Normalize(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the day key of now.
func Today(now time.Time) time.Time {
	return Normalize(now)
}

// AddDays moves a day key by n calendar days.
func AddDays(day time.Time, n int) time.Time {
	return Normalize(day).AddDate(0, 0, n)
}

// Same reports whether a and b fall on the same UTC calendar day.
func Same(a, b time.Time) bool {
	return Normalize(a).Equal(Normalize(b))
}

// Format renders a day key as YYYY-MM-DD.
func Format(day time.Time) string {
	return Normalize(day).Format(Layout)
}

// Parse accepts YYYY-MM-DD or an RFC3339 timestamp and returns its day key.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	if t, err := time.Parse(Layout, value); err == nil {
		return Normalize(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return Normalize(t), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

// WeekdayLabel returns the three-letter English label of the day, e.g. "Mon".
func WeekdayLabel(day time.Time) string {
	return Normalize(day).Weekday().String()[:3]
}
