package calendar

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, ok := ParseDate(s)
	if !ok {
		t.Fatalf("could not parse %q", s)
	}
	return d
}

func TestWorkdays(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
		want       int
	}{
		{"mon to fri", "2026-03-02", "2026-03-06", 5},
		{"sat to sun", "2026-03-07", "2026-03-08", 0},
		{"single monday", "2026-03-02", "2026-03-02", 1},
		{"two full weeks", "2026-03-02", "2026-03-15", 10},
		{"inverted", "2026-03-06", "2026-03-02", 0},
		{"month of march 2026", "2026-03-01", "2026-03-31", 22},
	}
	for _, c := range cases {
		got := Workdays(mustDate(t, c.start), mustDate(t, c.end))
		if got != c.want {
			t.Errorf("%s: Expected %d workdays, got %d", c.name, c.want, got)
		}
	}
}

func TestWorkdaysBetween_MalformedInput(t *testing.T) {
	for _, pair := range [][2]string{
		{"", "2026-03-06"},
		{"2026-03-02", "not a date"},
		{"03/02/2026", "2026-03-06"},
	} {
		if got := WorkdaysBetween(pair[0], pair[1]); got != 0 {
			t.Errorf("WorkdaysBetween(%q, %q) = %d, want 0", pair[0], pair[1], got)
		}
	}
}

func TestWorkdays_ClipsLongRanges(t *testing.T) {
	start := mustDate(t, "2026-01-01")
	far := start.AddDate(50, 0, 0)
	capped := start.AddDate(MaxSpanYears, 0, 0)

	if got, want := Workdays(start, far), Workdays(start, capped); got != want {
		t.Errorf("Expected clipped count %d, got %d", want, got)
	}
}

func TestParseDate_RFC3339(t *testing.T) {
	d, ok := ParseDate("2026-03-04T17:30:00Z")
	if !ok {
		t.Fatal("Expected RFC3339 timestamp to parse")
	}
	if DateKey(d) != "2026-03-04" {
		t.Errorf("Expected 2026-03-04, got %s", DateKey(d))
	}
	if d.Hour() != 0 {
		t.Errorf("Expected time of day to be dropped, got hour %d", d.Hour())
	}
}

func TestOverlap(t *testing.T) {
	a := Range{Start: mustDate(t, "2026-03-02"), End: mustDate(t, "2026-03-10")}
	b := Range{Start: mustDate(t, "2026-03-06"), End: mustDate(t, "2026-03-20")}

	got, ok := Overlap(a, b)
	if !ok {
		t.Fatal("Expected ranges to overlap")
	}
	if DateKey(got.Start) != "2026-03-06" || DateKey(got.End) != "2026-03-10" {
		t.Errorf("Expected 2026-03-06..2026-03-10, got %s..%s", DateKey(got.Start), DateKey(got.End))
	}

	c := Range{Start: mustDate(t, "2026-04-01"), End: mustDate(t, "2026-04-02")}
	if _, ok := Overlap(a, c); ok {
		t.Error("Expected disjoint ranges not to overlap")
	}
	if _, ok := Overlap(a, Range{}); ok {
		t.Error("Expected empty range not to overlap")
	}
}

func TestValidMonthKey(t *testing.T) {
	valid := []string{"2026-01", "2026-12", "1999-09"}
	invalid := []string{"2026-00", "2026-13", "2026-1", "26-01", "2026/01", ""}
	for _, k := range valid {
		if !ValidMonthKey(k) {
			t.Errorf("ValidMonthKey(%q) should be true", k)
		}
	}
	for _, k := range invalid {
		if ValidMonthKey(k) {
			t.Errorf("ValidMonthKey(%q) should be false", k)
		}
	}
}

func TestBuckets_WeekStartsMonday(t *testing.T) {
	anchor := mustDate(t, "2026-03-04") // Wednesday
	got := Buckets(ModeWeek, anchor, 3)
	if len(got) != 3 {
		t.Fatalf("Expected 3 buckets, got %d", len(got))
	}
	want := []string{"2026-03-02", "2026-03-09", "2026-03-16"}
	for i, b := range got {
		if b.Key != want[i] {
			t.Errorf("bucket %d: Expected key %s, got %s", i, want[i], b.Key)
		}
		if b.Start.Weekday() != time.Monday {
			t.Errorf("bucket %d: Expected Monday start, got %s", i, b.Start.Weekday())
		}
		if DateKey(b.End) != DateKey(b.Start.AddDate(0, 0, 6)) {
			t.Errorf("bucket %d: Expected Sunday end, got %s", i, DateKey(b.End))
		}
	}
}

func TestBuckets_MonthAndDay(t *testing.T) {
	months := Buckets(ModeMonth, mustDate(t, "2026-11-15"), 3)
	wantMonths := []string{"2026-11", "2026-12", "2027-01"}
	for i, b := range months {
		if b.Key != wantMonths[i] {
			t.Errorf("month %d: Expected %s, got %s", i, wantMonths[i], b.Key)
		}
	}
	if DateKey(months[1].End) != "2026-12-31" {
		t.Errorf("Expected December to end on the 31st, got %s", DateKey(months[1].End))
	}

	days := BucketStarts(ModeDay, mustDate(t, "2026-02-27"), 3)
	wantDays := []string{"2026-02-27", "2026-02-28", "2026-03-01"}
	for i, d := range days {
		if DateKey(d) != wantDays[i] {
			t.Errorf("day %d: Expected %s, got %s", i, wantDays[i], DateKey(d))
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"day", "week", "month"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q) returned unexpected error: %v", s, err)
		}
	}
	if _, err := ParseMode("year"); err == nil {
		t.Error("ParseMode(\"year\") expected error, got nil")
	}
}
