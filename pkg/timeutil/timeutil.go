// Package timeutil provides calendar-day utilities for attendance tracking.
// Day-based strategies count distinct calendar days, so the day a timestamp
// falls on must be derived consistently: every helper here renders a time in
// its own location, keeping the event-local offsets supplied by the upstream API.
// No external dependencies - uses only standard library.
package timeutil

import (
	"sort"
	"time"
)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// DayKey returns the calendar-day key (YYYY-MM-DD) of t in t's own location.
// Two timestamps share a day exactly when their keys are equal.
func DayKey(t time.Time) string {
	return t.Format(FormatDate)
}

// StartOfDay returns the start of the day (00:00:00) in t's own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the end of the day (23:59:59.999999999) in t's own location.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, t.Location())
}

// IsSameDay checks if two times fall on the same calendar day.
// The second time is rendered in the first one's location before comparing.
func IsSameDay(t1, t2 time.Time) bool {
	a := t1
	b := t2.In(t1.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween calculates the number of whole calendar days between two times.
func DaysBetween(t1, t2 time.Time) int {
	a := StartOfDay(t1)
	b := StartOfDay(t2.In(t1.Location()))
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DistinctDays returns the sorted unique day keys of the given times.
func DistinctDays(times []time.Time) []string {
	if len(times) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(times))
	for _, t := range times {
		seen[DayKey(t)] = struct{}{}
	}

	days := make([]string, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// DistinctDayCount returns the number of distinct calendar days among times.
func DistinctDayCount(times []time.Time) int {
	seen := make(map[string]struct{}, len(times))
	for _, t := range times {
		seen[DayKey(t)] = struct{}{}
	}
	return len(seen)
}

// WithinWindow reports whether t falls inside the half-open window
// [start, end). A time equal to end is outside the window.
func WithinWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// ParseDate parses a date string (YYYY-MM-DD) in UTC.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}
