// Package calendar holds the UTC calendar-date arithmetic used by deadline and
// reminder scheduling: working-day checks, month arithmetic with month-end
// clamping and an injectable clock.
package calendar

import (
	"sort"
	"time"
)

// DateLayout is the canonical calendar-date representation (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// Date returns the UTC midnight for the given calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Normalize drops the time-of-day of t, keeping the calendar date as seen in
// t's own location, and returns it as UTC midnight.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Key returns the YYYY-MM-DD key of t.
func Key(t time.Time) string {
	return Normalize(t).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// MustParseDate is ParseDate for constants and tests.
func MustParseDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return Date(year, month+1, 0).Day()
}

// AddMonths adds n months to t, clamping the day to the last day of the target
// month (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	t = Normalize(t)
	first := Date(t.Year(), t.Month()+time.Month(n), 1)
	day := t.Day()
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return Date(first.Year(), first.Month(), day)
}

// AddYears adds n years with the same clamping rule as AddMonths
// (29 Feb + 1 year = 28 Feb).
func AddYears(t time.Time, n int) time.Time {
	return AddMonths(t, 12*n)
}

// AddDays adds n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return Normalize(t).AddDate(0, 0, n)
}

// EndOfMonth returns the last day of t's month.
func EndOfMonth(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), DaysIn(t.Year(), t.Month()))
}

// DaysBetween returns the whole days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	return int(Normalize(b).Sub(Normalize(a)).Hours() / 24)
}

// ─────────────────────────────────────────────────────────────────────────────
// Holidays and working days
// ─────────────────────────────────────────────────────────────────────────────

// HolidaySet is a set of non-working calendar dates keyed by YYYY-MM-DD.
type HolidaySet map[string]struct{}

// NewHolidaySet builds a set from the given dates.
func NewHolidaySet(dates ...time.Time) HolidaySet {
	s := make(HolidaySet, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

// Add inserts a date.
func (s HolidaySet) Add(d time.Time) {
	s[Key(d)] = struct{}{}
}

// Contains reports whether d is in the set.  A nil set contains nothing.
func (s HolidaySet) Contains(d time.Time) bool {
	_, ok := s[Key(d)]
	return ok
}

// Merge returns a new set holding the union of s and other.
func (s HolidaySet) Merge(other HolidaySet) HolidaySet {
	out := make(HolidaySet, len(s)+len(other))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Keys returns the sorted date keys.
func (s HolidaySet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InYear returns the sorted dates of the set falling in year.
func (s HolidaySet) InYear(year int) []time.Time {
	var out []time.Time
	for _, k := range s.Keys() {
		d, err := ParseDate(k)
		if err == nil && d.Year() == year {
			out = append(out, d)
		}
	}
	return out
}

// IsWeekend reports whether d is a Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	wd := Normalize(d).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsWorkingDay reports whether date is neither a weekend day nor a holiday.
func IsWorkingDay(date time.Time, holidays HolidaySet) bool {
	if IsWeekend(date) {
		return false
	}
	return !holidays.Contains(date)
}

// NextWorkingDay returns date unchanged when it is a working day, otherwise
// the first working day after it, advancing one calendar day at a time.
func NextWorkingDay(date time.Time, holidays HolidaySet) time.Time {
	d := Normalize(date)
	for !IsWorkingDay(d, holidays) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// Clock
// ─────────────────────────────────────────────────────────────────────────────

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }

// Today returns the UTC calendar date of clock's current instant.
func Today(clock Clock) time.Time {
	return Normalize(clock.Now().UTC())
}
