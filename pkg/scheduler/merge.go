package scheduler

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

// Source names where a bucket's hours came from.
type Source string

const (
	SourceNone       Source = "none"
	SourcePhase      Source = "phase"
	SourceCrewSheet  Source = "crew_sheet"
	SourceForecast   Source = "forecast"
	SourceAllocation Source = "allocation"
)

// precedence orders sources; lower wins.
var precedence = map[Source]int{
	SourcePhase:      0,
	SourceCrewSheet:  1,
	SourceForecast:   2,
	SourceAllocation: 3,
	SourceNone:       4,
}

// forecastWorkdays is the number of workdays a weekly forecast is spread over.
const forecastWorkdays = 5

// JobInput is everything the merge needs for one job. Unavailable lists the
// sources that failed to load, as opposed to sources that loaded empty.
// Cached lists the sources served from within the cache's freshness window.
type JobInput struct {
	Job         models.Job
	Phases      []models.Phase
	CrewSheets  []models.CrewSheet
	Forecasts   []models.WeeklyForecast
	Allocation  *models.MonthlyAllocation
	Unavailable []Source
	Cached      []Source
}

// BucketHours is the merged figure for one bucket.
type BucketHours struct {
	Key    string  `json:"key"`
	Start  string  `json:"start"`
	End    string  `json:"end"`
	Hours  float64 `json:"hours"`
	Source Source  `json:"source"`
}

// JobSchedule is the merged view of a single job.
type JobSchedule struct {
	JobKey        string        `json:"job_key"`
	Mode          calendar.Mode `json:"mode"`
	Authoritative Source        `json:"authoritative"`
	Buckets       []BucketHours `json:"buckets"`
	Total         float64       `json:"total"`
	Unavailable   []Source      `json:"unavailable,omitempty"`
	Cached        []Source      `json:"cached,omitempty"`
}

// Merge resolves the hours of each bucket for one job, day by day. A workday
// covered by a dated phase with matched hours takes the phase distribution;
// any other day falls through crew sheet and weekly forecast in turn. A bucket
// left empty draws on the monthly allocation.
func (s *Scheduler) Merge(in JobInput, buckets []calendar.Bucket) JobSchedule {
	key := in.Job.Key
	if key == "" {
		key = in.Job.DeriveKey()
	}
	out := JobSchedule{
		JobKey:        key,
		Authoritative: SourceNone,
		Buckets:       make([]BucketHours, 0, len(buckets)),
		Unavailable:   in.Unavailable,
		Cached:        in.Cached,
	}
	if len(buckets) > 0 {
		out.Mode = buckets[0].Mode
	}

	var dist map[string]float64
	phaseDays := map[string]bool{}
	if s.HasAuthoritativePhases(in.Phases, in.Job.CostLines) {
		dist = s.DistributeAll(in.Phases, in.Job.CostLines, buckets)
		phaseDays = s.phaseDays(in.Phases, in.Job.CostLines)
	}
	crew := crewHoursByDate(key, in.CrewSheets)
	forecast := forecastHoursByWeek(key, in.Forecasts)
	alloc := newAllocationBudget(in.Job.TotalBudgetedHours(), in.Allocation)

	for _, b := range buckets {
		hours, src := 0.0, SourceNone
		if h := dist[b.Key]; h > 0 {
			hours, src = h, SourcePhase
		}
		for _, d := range calendar.Days(b.Range()) {
			dk := calendar.DateKey(d)
			if phaseDays[dk] {
				continue
			}
			if h := crew[dk]; h > 0 {
				hours += h
				src = higher(src, SourceCrewSheet)
				continue
			}
			if !calendar.IsWorkday(d) {
				continue
			}
			if h := forecast[calendar.DateKey(calendar.WeekStart(d))]; h > 0 {
				hours += h / forecastWorkdays
				src = higher(src, SourceForecast)
			}
		}
		if hours == 0 {
			if h := alloc.take(b.Range()); h > 0 {
				hours, src = h, SourceAllocation
			}
		}
		out.add(b, hours, src)
		out.Authoritative = higher(out.Authoritative, src)
	}
	return out
}

// phaseDays lists the workdays that carry phase-distributed hours.
func (s *Scheduler) phaseDays(phases []models.Phase, lines []models.CostLine) map[string]bool {
	days := map[string]bool{}
	for _, p := range phases {
		r, ok := p.Range()
		if !ok || s.DailyRate(p, lines) == 0 {
			continue
		}
		for _, d := range calendar.Days(r) {
			if calendar.IsWorkday(d) {
				days[calendar.DateKey(d)] = true
			}
		}
	}
	return days
}

func (js *JobSchedule) add(b calendar.Bucket, hours float64, src Source) {
	if hours == 0 {
		src = SourceNone
	}
	js.Buckets = append(js.Buckets, BucketHours{
		Key:    b.Key,
		Start:  calendar.DateKey(b.Start),
		End:    calendar.DateKey(b.End),
		Hours:  hours,
		Source: src,
	})
	js.Total += hours
}

func higher(a, b Source) Source {
	if precedence[b] < precedence[a] {
		return b
	}
	return a
}

func crewHoursByDate(jobKey string, sheets []models.CrewSheet) map[string]float64 {
	out := make(map[string]float64)
	for _, cs := range sheets {
		if cs.JobKey != jobKey {
			continue
		}
		for _, w := range cs.Weeks {
			for _, day := range w.Days {
				d, ok := calendar.ParseDate(day.Date)
				if !ok || day.Hours <= 0 {
					continue
				}
				out[calendar.DateKey(d)] += day.Hours
			}
		}
	}
	return out
}

func forecastHoursByWeek(jobKey string, forecasts []models.WeeklyForecast) map[string]float64 {
	out := make(map[string]float64)
	for _, f := range forecasts {
		if f.JobKey != jobKey {
			continue
		}
		for _, w := range f.Weeks {
			d, ok := calendar.ParseDate(w.WeekStart)
			if !ok || w.Hours <= 0 {
				continue
			}
			out[calendar.DateKey(calendar.WeekStart(d))] += w.Hours
		}
	}
	return out
}

// allocationBudget hands out monthly percentages of the job's budget while
// keeping the total percentage used at or below 100.
type allocationBudget struct {
	total     float64
	percent   map[string]decimal.Decimal
	remaining decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

func newAllocationBudget(total float64, a *models.MonthlyAllocation) *allocationBudget {
	ab := &allocationBudget{total: total, percent: map[string]decimal.Decimal{}, remaining: hundred}
	if a == nil {
		return ab
	}
	for month, pct := range a.Percentages {
		if !calendar.ValidMonthKey(month) || pct <= 0 {
			continue
		}
		p := decimal.NewFromFloat(pct)
		if p.GreaterThan(hundred) {
			p = hundred
		}
		ab.percent[month] = p
	}
	return ab
}

// take returns the allocated hours for r, prorating each month's percentage by
// the share of that month's workdays r covers.
func (ab *allocationBudget) take(r calendar.Range) float64 {
	if ab.total <= 0 || len(ab.percent) == 0 || !ab.remaining.IsPositive() {
		return 0
	}

	months := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, d := range calendar.Days(r) {
		mk := calendar.MonthKey(d)
		if !seen[mk] {
			seen[mk] = true
			months = append(months, mk)
		}
	}
	sort.Strings(months)

	used := decimal.Zero
	for _, mk := range months {
		pct, ok := ab.percent[mk]
		if !ok {
			continue
		}
		start, _ := calendar.MonthStart(mk)
		month := calendar.Range{Start: start, End: start.AddDate(0, 1, -1)}
		monthDays := calendar.WorkdaysIn(month)
		ov, ok := calendar.Overlap(month, r)
		if !ok || monthDays == 0 {
			continue
		}
		share := pct.Mul(decimal.NewFromInt(int64(calendar.WorkdaysIn(ov)))).
			Div(decimal.NewFromInt(int64(monthDays)))
		share = decimal.Min(share, ab.remaining)
		ab.remaining = ab.remaining.Sub(share)
		used = used.Add(share)
		if !ab.remaining.IsPositive() {
			break
		}
	}
	return ab.total * used.InexactFloat64() / 100
}

// CompanySchedule sums several job schedules bucket by bucket.
type CompanySchedule struct {
	Mode        calendar.Mode `json:"mode"`
	Buckets     []BucketHours `json:"buckets"`
	Jobs        []JobSchedule `json:"jobs"`
	Total       float64       `json:"total"`
	Unavailable []Source      `json:"unavailable,omitempty"`
}

// Aggregate merges every job and totals the buckets. Jobs are ordered by key.
func (s *Scheduler) Aggregate(inputs []JobInput, buckets []calendar.Bucket) CompanySchedule {
	out := CompanySchedule{Buckets: make([]BucketHours, 0, len(buckets))}
	if len(buckets) > 0 {
		out.Mode = buckets[0].Mode
	}
	for _, b := range buckets {
		out.Buckets = append(out.Buckets, BucketHours{
			Key:    b.Key,
			Start:  calendar.DateKey(b.Start),
			End:    calendar.DateKey(b.End),
			Source: SourceNone,
		})
	}

	unavailable := map[Source]bool{}
	for _, in := range inputs {
		js := s.Merge(in, buckets)
		for i := range js.Buckets {
			out.Buckets[i].Hours += js.Buckets[i].Hours
			out.Buckets[i].Source = higher(out.Buckets[i].Source, js.Buckets[i].Source)
		}
		out.Total += js.Total
		for _, u := range js.Unavailable {
			unavailable[u] = true
		}
		out.Jobs = append(out.Jobs, js)
	}
	sort.Slice(out.Jobs, func(i, j int) bool { return out.Jobs[i].JobKey < out.Jobs[j].JobKey })
	for u := range unavailable {
		out.Unavailable = append(out.Unavailable, u)
	}
	sort.Slice(out.Unavailable, func(i, j int) bool { return out.Unavailable[i] < out.Unavailable[j] })
	return out
}
