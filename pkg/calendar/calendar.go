// Package calendar implements the weekday-only work calendar used by the
// scheduling engine. All values are calendar dates at UTC midnight; no
// time-of-day or timezone arithmetic is performed.
package calendar

import (
	"regexp"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"

	// MaxSpanYears caps every date-range walk measured from the range start.
	MaxSpanYears = 3
)

var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Range is an inclusive span of calendar dates.
type Range struct {
	Start time.Time
	End   time.Time
}

// Date truncates t to its calendar day at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or an RFC3339 timestamp (only the date part is
// kept). Anything else reports false and must be treated as absent.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Date(t), true
	}
	return time.Time{}, false
}

// ParseRange parses both ends of a range. It reports false when either end is
// missing or unparseable, or when end is before start.
func ParseRange(start, end string) (Range, bool) {
	s, ok := ParseDate(start)
	if !ok {
		return Range{}, false
	}
	e, ok := ParseDate(end)
	if !ok {
		return Range{}, false
	}
	r := Range{Start: s, End: e}
	return r, r.Valid()
}

// DateKey formats t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format(MonthLayout)
}

// ValidMonthKey reports whether s is YYYY-MM with a month between 01 and 12.
func ValidMonthKey(s string) bool {
	return monthKeyPattern.MatchString(s)
}

// MonthStart parses a month key into the first day of that month.
func MonthStart(key string) (time.Time, bool) {
	if !ValidMonthKey(key) {
		return time.Time{}, false
	}
	t, err := time.Parse(MonthLayout, key)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsWorkday reports whether t falls Monday through Friday.
func IsWorkday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Valid reports whether both ends are set and End is not before Start.
func (r Range) Valid() bool {
	if r.Start.IsZero() || r.End.IsZero() {
		return false
	}
	return !r.End.Before(r.Start)
}

// Contains reports whether d lies within the inclusive range.
func (r Range) Contains(d time.Time) bool {
	if !r.Valid() {
		return false
	}
	d = Date(d)
	return !d.Before(Date(r.Start)) && !d.After(Date(r.End))
}

// Overlap returns the intersection of two inclusive ranges. The second result
// is false when the ranges do not intersect or either is invalid.
func Overlap(a, b Range) (Range, bool) {
	if !a.Valid() || !b.Valid() {
		return Range{}, false
	}
	start := Date(a.Start)
	if bs := Date(b.Start); bs.After(start) {
		start = bs
	}
	end := Date(a.End)
	if be := Date(b.End); be.Before(end) {
		end = be
	}
	if end.Before(start) {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

// clip bounds the range end to MaxSpanYears after its start.
func clip(r Range) Range {
	limit := Date(r.Start).AddDate(MaxSpanYears, 0, 0)
	if Date(r.End).After(limit) {
		r.End = limit
	}
	return r
}

// Workdays counts the Monday-Friday dates in [start, end]. It returns 0 for an
// inverted or zero range, and clips ranges longer than MaxSpanYears.
func Workdays(start, end time.Time) int {
	r := Range{Start: start, End: end}
	if !r.Valid() {
		return 0
	}
	r = clip(r)

	count := 0
	last := Date(r.End)
	for d := Date(r.Start); !d.After(last); d = d.AddDate(0, 0, 1) {
		if IsWorkday(d) {
			count++
		}
	}
	return count
}

// WorkdaysIn is Workdays over a Range.
func WorkdaysIn(r Range) int {
	return Workdays(r.Start, r.End)
}

// WorkdaysBetween parses both strings and counts workdays. Unparseable input
// yields 0.
func WorkdaysBetween(start, end string) int {
	r, ok := ParseRange(start, end)
	if !ok {
		return 0
	}
	return WorkdaysIn(r)
}

// Days lists every date in the range, clipped to MaxSpanYears.
func Days(r Range) []time.Time {
	if !r.Valid() {
		return nil
	}
	r = clip(r)
	var out []time.Time
	last := Date(r.End)
	for d := Date(r.Start); !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
