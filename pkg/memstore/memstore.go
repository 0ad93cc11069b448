// Package memstore is an in-process implementation of the persistence
// collaborators. The CLI plans from it and handler tests run against it.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/crew"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

type ledgerEntry struct {
	version int64
	crews   map[string][]string
}

// Store keeps every record in maps guarded by one mutex. Reads return copies.
type Store struct {
	mu          sync.RWMutex
	jobs        map[string]models.Job
	phases      map[string]models.Phase
	sheets      map[string]models.CrewSheet
	forecasts   map[string]models.WeeklyForecast
	allocations map[string]models.MonthlyAllocation
	workers     map[string]models.Worker
	timeOff     map[string]models.TimeOff
	ledger      map[string]*ledgerEntry

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		jobs:        make(map[string]models.Job),
		phases:      make(map[string]models.Phase),
		sheets:      make(map[string]models.CrewSheet),
		forecasts:   make(map[string]models.WeeklyForecast),
		allocations: make(map[string]models.MonthlyAllocation),
		workers:     make(map[string]models.Worker),
		timeOff:     make(map[string]models.TimeOff),
		ledger:      make(map[string]*ledgerEntry),
		now:         time.Now,
	}
}

// Jobs returns every job sorted by key.
func (s *Store) Jobs(ctx context.Context) ([]models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, copyJob(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Key < out[k].Key })
	return out, nil
}

func (s *Store) Job(ctx context.Context, key string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := copyJob(j)
	return &cp, nil
}

// UpsertJobs replaces each job, including its cost lines, by derived key.
func (s *Store) UpsertJobs(ctx context.Context, jobs []models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range jobs {
		j.DeriveKey()
		j.UpdatedAt = s.now()
		for i := range j.CostLines {
			j.CostLines[i].JobKey = j.Key
			if j.CostLines[i].ID == 0 {
				j.CostLines[i].ID = uint(i + 1)
			}
		}
		s.jobs[j.Key] = copyJob(j)
	}
	return nil
}

// Phases returns the job's stored phases ordered by start date then title.
func (s *Store) Phases(ctx context.Context, jobKey string) ([]models.Phase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Phase
	for _, p := range s.phases {
		if p.JobKey == jobKey {
			out = append(out, copyPhase(p))
		}
	}
	sortPhases(out)
	return out, nil
}

func (s *Store) Phase(ctx context.Context, id string) (*models.Phase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.phases[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := copyPhase(p)
	return &cp, nil
}

// SavePhase creates or replaces a phase, assigning an ID when missing.
func (s *Store) SavePhase(ctx context.Context, p *models.Phase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Virtual {
		return models.ErrVirtualPhase
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[p.JobKey]; !ok {
		return models.ErrNotFound
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = s.now()
	s.phases[p.ID] = copyPhase(*p)
	return nil
}

func (s *Store) DeletePhase(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.phases[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.phases, id)
	return nil
}

func (s *Store) CrewSheets(ctx context.Context, jobKey string) ([]models.CrewSheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CrewSheet
	for _, cs := range s.sheets {
		if cs.JobKey == jobKey {
			out = append(out, copySheet(cs))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Month < out[k].Month })
	return out, nil
}

// PutCrewSheet stores the sheet for its job and month.
func (s *Store) PutCrewSheet(ctx context.Context, cs models.CrewSheet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	cs.UpdatedAt = s.now()
	s.sheets[cs.JobKey+"#"+cs.Month] = copySheet(cs)
	return nil
}

func (s *Store) Forecasts(ctx context.Context, jobKey string) ([]models.WeeklyForecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.WeeklyForecast
	for _, f := range s.forecasts {
		if f.JobKey == jobKey {
			f.Weeks = append([]models.ForecastWeek(nil), f.Weeks...)
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Month < out[k].Month })
	return out, nil
}

func (s *Store) PutForecast(ctx context.Context, f models.WeeklyForecast) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.UpdatedAt = s.now()
	f.Weeks = append([]models.ForecastWeek(nil), f.Weeks...)
	s.forecasts[f.JobKey+"#"+f.Month] = f
	return nil
}

// Allocation returns nil when the job has no allocation.
func (s *Store) Allocation(ctx context.Context, jobKey string) (*models.MonthlyAllocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.allocations[jobKey]
	if !ok {
		return nil, nil
	}
	cp := models.MonthlyAllocation{JobKey: a.JobKey, Percentages: make(map[string]float64, len(a.Percentages)), UpdatedAt: a.UpdatedAt}
	for k, v := range a.Percentages {
		cp.Percentages[k] = v
	}
	return &cp, nil
}

func (s *Store) PutAllocation(ctx context.Context, a models.MonthlyAllocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pct := make(map[string]float64, len(a.Percentages))
	for k, v := range a.Percentages {
		pct[k] = v
	}
	a.Percentages = pct
	a.UpdatedAt = s.now()
	s.allocations[a.JobKey] = a
	return nil
}

// Workers returns every worker sorted by ID.
func (s *Store) Workers(ctx context.Context) ([]models.Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (s *Store) PutWorker(ctx context.Context, w models.Worker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = w
	return nil
}

// TimeOffOn returns the leave requests whose range includes date.
func (s *Store) TimeOffOn(ctx context.Context, date string) ([]models.TimeOff, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := calendar.ParseDate(date)
	if !ok {
		return nil, crew.ErrInvalidDate
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TimeOff
	for _, t := range s.timeOff {
		if t.Covers(d) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (s *Store) PutTimeOff(ctx context.Context, t models.TimeOff) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.timeOff[t.ID] = t
	return nil
}

// DayAssignments returns the ledger for date. Before the first write the
// crews are read off the crew sheets at version zero.
func (s *Store) DayAssignments(ctx context.Context, date string) (crew.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return crew.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.entry(date)
	snap := crew.Snapshot{Date: date, Version: e.version, Crews: make(map[string][]string, len(e.crews))}
	for leader, ws := range e.crews {
		snap.Crews[leader] = append([]string(nil), ws...)
	}
	return snap, nil
}

// SaveCrew replaces leader's crew if the ledger is still at expectedVersion
// and mirrors the list into that leader's crew sheet days.
func (s *Store) SaveCrew(ctx context.Context, date, leader string, workers []string, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(date)
	if e.version != expectedVersion {
		return 0, crew.ErrVersionConflict
	}
	next := &ledgerEntry{version: e.version + 1, crews: make(map[string][]string, len(e.crews)+1)}
	for l, ws := range e.crews {
		next.crews[l] = ws
	}
	if len(workers) == 0 {
		delete(next.crews, leader)
	} else {
		next.crews[leader] = append([]string(nil), workers...)
	}
	s.ledger[date] = next

	for k, cs := range s.sheets {
		if d, ok := cs.Day(date); ok && d.CrewLeaderID == leader {
			cs = copySheet(cs)
			d, _ = cs.Day(date)
			d.WorkerIDs = append([]string{}, workers...)
			cs.UpdatedAt = s.now()
			s.sheets[k] = cs
		}
	}
	return next.version, nil
}

// entry must be called with the lock held.
func (s *Store) entry(date string) *ledgerEntry {
	if e, ok := s.ledger[date]; ok {
		return e
	}
	e := &ledgerEntry{crews: make(map[string][]string)}
	for _, cs := range s.sheets {
		d, ok := cs.Day(date)
		if !ok || d.CrewLeaderID == "" {
			continue
		}
		for _, w := range d.WorkerIDs {
			if !contains(e.crews[d.CrewLeaderID], w) {
				e.crews[d.CrewLeaderID] = append(e.crews[d.CrewLeaderID], w)
			}
		}
	}
	return e
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func sortPhases(ps []models.Phase) {
	sort.SliceStable(ps, func(i, k int) bool {
		if ps[i].StartDate != ps[k].StartDate {
			return ps[i].StartDate < ps[k].StartDate
		}
		if ps[i].Title != ps[k].Title {
			return ps[i].Title < ps[k].Title
		}
		return ps[i].ID < ps[k].ID
	})
}

func copyJob(j models.Job) models.Job {
	j.CostLines = append([]models.CostLine(nil), j.CostLines...)
	return j
}

func copyPhase(p models.Phase) models.Phase {
	p.Tasks = append([]string{}, p.Tasks...)
	return p
}

func copySheet(cs models.CrewSheet) models.CrewSheet {
	weeks := make([]models.CrewWeek, len(cs.Weeks))
	for i, w := range cs.Weeks {
		days := make([]models.CrewDay, len(w.Days))
		for k, d := range w.Days {
			d.WorkerIDs = append([]string{}, d.WorkerIDs...)
			days[k] = d
		}
		weeks[i] = models.CrewWeek{Days: days}
	}
	cs.Weeks = weeks
	return cs
}
