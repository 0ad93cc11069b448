package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arnavshah/capacity-scheduler-api/pkg/cache"
	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/config"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
	"github.com/arnavshah/capacity-scheduler-api/pkg/reconcile"
)

// ErrUnavailable means the job list itself could not be loaded. Callers
// should fall back to a last-known view.
var ErrUnavailable = errors.New("schedule data unavailable")

// Store is the read side of the persistence collaborator.
type Store interface {
	Jobs(ctx context.Context) ([]models.Job, error)
	Job(ctx context.Context, key string) (*models.Job, error)
	Phases(ctx context.Context, jobKey string) ([]models.Phase, error)
	CrewSheets(ctx context.Context, jobKey string) ([]models.CrewSheet, error)
	Forecasts(ctx context.Context, jobKey string) ([]models.WeeklyForecast, error)
	// Allocation returns nil without error when the job has none.
	Allocation(ctx context.Context, jobKey string) (*models.MonthlyAllocation, error)
}

// Planner loads collaborator data and runs the merge. Each fetch is bounded
// by the configured timeout; a failed secondary source is reported as
// unavailable and contributes nothing.
type Planner struct {
	store   Store
	sched   *Scheduler
	cache   cache.Cache
	timeout time.Duration
	filter  config.JobFilter
}

// NewPlanner wires a planner. A nil cache disables caching.
func NewPlanner(store Store, sched *Scheduler, c cache.Cache, timeout time.Duration, filter config.JobFilter) *Planner {
	if sched == nil {
		sched = NewScheduler(nil)
	}
	if c == nil {
		c = cache.Nop{}
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &Planner{store: store, sched: sched, cache: c, timeout: timeout, filter: filter}
}

// Scheduler returns the merge engine the planner uses.
func (p *Planner) Scheduler() *Scheduler { return p.sched }

func load[T any](ctx context.Context, p *Planner, key string, fetch func(context.Context) (T, error)) (T, error) {
	var v T
	if ok, err := p.cache.Get(ctx, key, &v); err == nil && ok {
		return v, nil
	}
	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	v, err := fetch(fctx)
	if err != nil {
		return v, err
	}
	if err := p.cache.Set(ctx, key, v); err != nil {
		slog.Warn("cache set failed", "key", key, "err", err)
	}
	return v, nil
}

func jobPrefix(jobKey string) string { return "job:" + jobKey + ":" }

// Jobs returns every job with its cost lines.
func (p *Planner) Jobs(ctx context.Context) ([]models.Job, error) {
	jobs, err := load(ctx, p, "jobs", p.store.Jobs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return jobs, nil
}

// QualifyingJobs returns the jobs that pass the configured filter.
func (p *Planner) QualifyingJobs(ctx context.Context) ([]models.Job, error) {
	jobs, err := p.Jobs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Job, 0, len(jobs))
	for _, j := range jobs {
		if p.filter.Qualifies(j.Customer, j.ProjectName, j.Status) {
			out = append(out, j)
		}
	}
	return out, nil
}

// Job looks up one job by key.
func (p *Planner) Job(ctx context.Context, key string) (*models.Job, error) {
	job, err := load(ctx, p, jobPrefix(key)+"job", func(c context.Context) (*models.Job, error) {
		return p.store.Job(c, key)
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return job, nil
}

// Input gathers everything the merge needs for a job.
func (p *Planner) Input(ctx context.Context, job models.Job) JobInput {
	in := JobInput{Job: job}
	prefix := jobPrefix(job.Key)
	// loaded records how a source's read went.
	loaded := func(src Source, fresh bool, err error) {
		switch {
		case err != nil:
			in.Unavailable = append(in.Unavailable, p.degrade(job.Key, src, err))
		case fresh:
			in.Cached = append(in.Cached, src)
		}
	}

	fresh := p.cache.Fresh(ctx, prefix+"phases")
	phases, err := load(ctx, p, prefix+"phases", func(c context.Context) ([]models.Phase, error) {
		return p.store.Phases(c, job.Key)
	})
	loaded(SourcePhase, fresh, err)
	in.Phases = phases

	fresh = p.cache.Fresh(ctx, prefix+"crew_sheets")
	sheets, err := load(ctx, p, prefix+"crew_sheets", func(c context.Context) ([]models.CrewSheet, error) {
		return p.store.CrewSheets(c, job.Key)
	})
	loaded(SourceCrewSheet, fresh, err)
	in.CrewSheets = sheets

	fresh = p.cache.Fresh(ctx, prefix+"forecasts")
	forecasts, err := load(ctx, p, prefix+"forecasts", func(c context.Context) ([]models.WeeklyForecast, error) {
		return p.store.Forecasts(c, job.Key)
	})
	loaded(SourceForecast, fresh, err)
	in.Forecasts = forecasts

	fresh = p.cache.Fresh(ctx, prefix+"allocation")
	alloc, err := load(ctx, p, prefix+"allocation", func(c context.Context) (*models.MonthlyAllocation, error) {
		return p.store.Allocation(c, job.Key)
	})
	loaded(SourceAllocation, fresh, err)
	in.Allocation = alloc

	return in
}

func (p *Planner) degrade(jobKey string, src Source, err error) Source {
	slog.Warn("schedule source unavailable", "job", jobKey, "source", src, "err", err)
	return src
}

// JobSchedule merges one job over count buckets starting at anchor.
func (p *Planner) JobSchedule(ctx context.Context, jobKey string, mode calendar.Mode, anchor time.Time, count int) (JobSchedule, error) {
	job, err := p.Job(ctx, jobKey)
	if err != nil {
		return JobSchedule{}, err
	}
	buckets := calendar.Buckets(mode, anchor, count)
	return p.sched.Merge(p.Input(ctx, *job), buckets), nil
}

// CompanySchedule merges every qualifying job and totals the buckets.
func (p *Planner) CompanySchedule(ctx context.Context, mode calendar.Mode, anchor time.Time, count int) (CompanySchedule, error) {
	jobs, err := p.QualifyingJobs(ctx)
	if err != nil {
		return CompanySchedule{}, err
	}
	inputs := make([]JobInput, 0, len(jobs))
	for _, j := range jobs {
		inputs = append(inputs, p.Input(ctx, j))
	}
	return p.sched.Aggregate(inputs, calendar.Buckets(mode, anchor, count)), nil
}

// Phases returns the job's stored phases, or virtual ones, with reconciled
// hours.
func (p *Planner) Phases(ctx context.Context, jobKey string) ([]reconcile.Resolved, error) {
	job, err := p.Job(ctx, jobKey)
	if err != nil {
		return nil, err
	}
	in := p.Input(ctx, *job)
	return p.sched.Reconciler.Resolve(*job, in.Phases), nil
}

// AllPhases returns the stored phases of every job. Jobs whose phases fail to
// load are skipped.
func (p *Planner) AllPhases(ctx context.Context) ([]models.Phase, error) {
	jobs, err := p.Jobs(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Phase
	for _, j := range jobs {
		phases, err := load(ctx, p, jobPrefix(j.Key)+"phases", func(c context.Context) ([]models.Phase, error) {
			return p.store.Phases(c, j.Key)
		})
		if err != nil {
			p.degrade(j.Key, SourcePhase, err)
			continue
		}
		out = append(out, phases...)
	}
	return out, nil
}

// ActiveJobKeys lists the jobs with a phase covering date.
func (p *Planner) ActiveJobKeys(ctx context.Context, date time.Time) ([]string, error) {
	phases, err := p.AllPhases(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var keys []string
	for _, ph := range phases {
		if ph.Covers(date) && !seen[ph.JobKey] {
			seen[ph.JobKey] = true
			keys = append(keys, ph.JobKey)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Invalidate drops cached data for a job and the job list.
func (p *Planner) Invalidate(ctx context.Context, jobKey string) {
	if err := p.cache.Invalidate(ctx, "jobs"); err != nil {
		slog.Warn("cache invalidate failed", "key", "jobs", "err", err)
	}
	if jobKey == "" {
		return
	}
	if err := p.cache.InvalidatePrefix(ctx, jobPrefix(jobKey)); err != nil {
		slog.Warn("cache invalidate failed", "job", jobKey, "err", err)
	}
}

// InvalidateAll drops every cached job entry.
func (p *Planner) InvalidateAll(ctx context.Context) {
	p.Invalidate(ctx, "")
	if err := p.cache.InvalidatePrefix(ctx, "job:"); err != nil {
		slog.Warn("cache invalidate failed", "err", err)
	}
}
