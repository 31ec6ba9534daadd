package daykey

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// WeekdayCode is the compact weekday notation used by medication schedules.
type WeekdayCode string

const (
	Sunday    WeekdayCode = "SU"
	Monday    WeekdayCode = "M"
	Tuesday   WeekdayCode = "T"
	Wednesday WeekdayCode = "W"
	Thursday  WeekdayCode = "TH"
	Friday    WeekdayCode = "F"
	Saturday  WeekdayCode = "SA"
)

// indexed by time.Weekday
var weekdayCodes = [7]WeekdayCode{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// CodeFor returns the weekday code of the UTC calendar day containing t.
func CodeFor(t time.Time) WeekdayCode {
	return weekdayCodes[Normalize(t).Weekday()]
}

// Weekday converts the code back to a time.Weekday.
func (c WeekdayCode) Weekday() (time.Weekday, bool) {
	for i, code := range weekdayCodes {
		if code == c {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Valid reports whether c is one of the seven known codes.
func (c WeekdayCode) Valid() bool {
	_, ok := c.Weekday()
	return ok
}

// ParseWeekdayCode accepts a code case-insensitively.
func ParseWeekdayCode(value string) (WeekdayCode, error) {
	code := WeekdayCode(strings.ToUpper(strings.TrimSpace(value)))
	if !code.Valid() {
		return "", fmt.Errorf("unknown weekday code %q", value)
	}
	return code, nil
}

// SortCodes orders codes Sunday first and drops duplicates.
func SortCodes(codes []WeekdayCode) []WeekdayCode {
	seen := make(map[WeekdayCode]struct{}, len(codes))
	out := make([]WeekdayCode, 0, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool {
		wi, _ := out[i].Weekday()
		wj, _ := out[j].Weekday()
		return wi < wj
	})
	return out
}
