package calendar

import (
	"fmt"
	"time"
)

// Mode is the granularity of an aggregated view.
type Mode string

const (
	ModeDay   Mode = "day"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
)

// ParseMode converts a raw string to a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	switch m {
	case ModeDay, ModeWeek, ModeMonth:
		return m, nil
	}
	return "", fmt.Errorf("unknown bucket mode %q", s)
}

// Bucket is one calendar unit of an aggregated view.
type Bucket struct {
	Mode  Mode      `json:"mode"`
	Key   string    `json:"key"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Range returns the inclusive span the bucket covers.
func (b Bucket) Range() Range {
	return Range{Start: b.Start, End: b.End}
}

// WeekStart returns the Monday on or before t.
func WeekStart(t time.Time) time.Time {
	d := Date(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func monthStart(t time.Time) time.Time {
	d := Date(t)
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// BucketFor returns the bucket of the given mode that contains d.
func BucketFor(mode Mode, d time.Time) Bucket {
	switch mode {
	case ModeWeek:
		start := WeekStart(d)
		return Bucket{Mode: mode, Key: DateKey(start), Start: start, End: start.AddDate(0, 0, 6)}
	case ModeMonth:
		start := monthStart(d)
		return Bucket{Mode: mode, Key: MonthKey(start), Start: start, End: start.AddDate(0, 1, -1)}
	default:
		day := Date(d)
		return Bucket{Mode: ModeDay, Key: DateKey(day), Start: day, End: day}
	}
}

// BucketStarts enumerates count consecutive bucket start dates beginning with
// the bucket that contains anchor. Week buckets start on Monday.
func BucketStarts(mode Mode, anchor time.Time, count int) []time.Time {
	buckets := Buckets(mode, anchor, count)
	out := make([]time.Time, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.Start)
	}
	return out
}

// Buckets enumerates count consecutive buckets beginning with the bucket that
// contains anchor.
func Buckets(mode Mode, anchor time.Time, count int) []Bucket {
	if count <= 0 {
		return nil
	}
	out := make([]Bucket, 0, count)
	b := BucketFor(mode, anchor)
	for i := 0; i < count; i++ {
		out = append(out, b)
		b = BucketFor(mode, b.End.AddDate(0, 0, 1))
	}
	return out
}
