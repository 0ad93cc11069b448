// Package crew keeps the per-date crew assignment ledger and enforces that a
// worker is on at most one crew-leader's crew on any date.
package crew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/config"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

// maxAttempts bounds compare-and-swap retries for one assignment.
const maxAttempts = 3

var (
	// ErrVersionConflict is returned by a Store when the per-date ledger
	// changed since it was read.
	ErrVersionConflict = errors.New("crew ledger changed concurrently")
	// ErrInvalidDate rejects an assignment without a usable date.
	ErrInvalidDate = errors.New("invalid assignment date")
	// ErrMissingLeader rejects an assignment without a crew-leader.
	ErrMissingLeader = errors.New("crew leader is required")
)

// Snapshot is every crew on a date with the ledger version it was read at.
type Snapshot struct {
	Date    string              `json:"date"`
	Version int64               `json:"version"`
	Crews   map[string][]string `json:"crews"`
}

// ClaimedBy maps each assigned worker to its crew-leader, skipping the
// excluded leader.
func (s Snapshot) ClaimedBy(excludingLeader string) map[string]string {
	claimed := make(map[string]string)
	for leader, workers := range s.Crews {
		if leader == excludingLeader {
			continue
		}
		for _, w := range workers {
			claimed[w] = leader
		}
	}
	return claimed
}

// Store persists the per-date ledger.
type Store interface {
	DayAssignments(ctx context.Context, date string) (Snapshot, error)
	// SaveCrew replaces one leader's crew if the ledger is still at
	// expectedVersion, returning the new version or ErrVersionConflict.
	SaveCrew(ctx context.Context, date, leader string, workers []string, expectedVersion int64) (int64, error)
}

// Roster supplies workers and their leave.
type Roster interface {
	Workers(ctx context.Context) ([]models.Worker, error)
	TimeOffOn(ctx context.Context, date string) ([]models.TimeOff, error)
}

// Notifier is told which jobs need their derived views resynchronised after
// an assignment.
type Notifier interface {
	PhaseResync(ctx context.Context, jobKey, date string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, jobKey, date string) error

func (f NotifierFunc) PhaseResync(ctx context.Context, jobKey, date string) error {
	return f(ctx, jobKey, date)
}

// Notifiers fans out to several notifiers and returns the first error.
type Notifiers []Notifier

func (ns Notifiers) PhaseResync(ctx context.Context, jobKey, date string) error {
	var first error
	for _, n := range ns {
		if err := n.PhaseResync(ctx, jobKey, date); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ActiveJobsFunc lists the jobs with work on a date.
type ActiveJobsFunc func(ctx context.Context, date time.Time) ([]string, error)

// Rejection names a requested worker that could not be assigned.
type Rejection struct {
	WorkerID  string `json:"worker_id"`
	ClaimedBy string `json:"claimed_by"`
}

// AssignResult reports what was stored and what was filtered out.
type AssignResult struct {
	Date         string      `json:"date"`
	CrewLeaderID string      `json:"crew_leader_id"`
	Accepted     []string    `json:"accepted"`
	Rejected     []Rejection `json:"rejected"`
	Version      int64       `json:"version"`
}

type dateLock struct {
	mu   sync.Mutex
	refs int
}

// Ledger serialises writes per date inside the process and relies on the
// store's version check across processes.
type Ledger struct {
	store      Store
	roster     Roster
	rules      config.Rules
	notifier   Notifier
	activeJobs ActiveJobsFunc

	mu    sync.Mutex
	locks map[string]*dateLock
}

// NewLedger creates a ledger over store and roster.
func NewLedger(store Store, roster Roster, rules config.Rules) *Ledger {
	return &Ledger{
		store:  store,
		roster: roster,
		rules:  rules,
		locks:  make(map[string]*dateLock),
	}
}

// WithNotifier sets who is told about resyncs and how active jobs are found.
func (l *Ledger) WithNotifier(n Notifier, active ActiveJobsFunc) *Ledger {
	l.notifier = n
	l.activeJobs = active
	return l
}

func (l *Ledger) lockDate(date string) func() {
	l.mu.Lock()
	dl, ok := l.locks[date]
	if !ok {
		dl = &dateLock{}
		l.locks[date] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()
	return func() {
		dl.mu.Unlock()
		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, date)
		}
		l.mu.Unlock()
	}
}

// Crews returns every crew on date.
func (l *Ledger) Crews(ctx context.Context, date time.Time) (Snapshot, error) {
	if date.IsZero() {
		return Snapshot{}, ErrInvalidDate
	}
	return l.store.DayAssignments(ctx, calendar.DateKey(date))
}

// Assign stores workerIDs under leader on date after removing any worker
// already on another leader's crew that day. The removed workers are
// returned as rejections rather than failing the call.
func (l *Ledger) Assign(ctx context.Context, date time.Time, leader string, workerIDs []string) (AssignResult, error) {
	if date.IsZero() {
		return AssignResult{}, ErrInvalidDate
	}
	if leader == "" {
		return AssignResult{}, ErrMissingLeader
	}
	dk := calendar.DateKey(date)
	requested := dedupe(workerIDs)

	unlock := l.lockDate(dk)
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		snap, err := l.store.DayAssignments(ctx, dk)
		if err != nil {
			return AssignResult{}, fmt.Errorf("read crews for %s: %w", dk, err)
		}

		res := AssignResult{Date: dk, CrewLeaderID: leader, Accepted: []string{}, Rejected: []Rejection{}}
		claimed := snap.ClaimedBy(leader)
		for _, w := range requested {
			if other, ok := claimed[w]; ok {
				res.Rejected = append(res.Rejected, Rejection{WorkerID: w, ClaimedBy: other})
				continue
			}
			res.Accepted = append(res.Accepted, w)
		}

		version, err := l.store.SaveCrew(ctx, dk, leader, res.Accepted, snap.Version)
		if errors.Is(err, ErrVersionConflict) {
			slog.Warn("crew ledger conflict, retrying", "date", dk, "leader", leader, "attempt", attempt)
			lastErr = err
			continue
		}
		if err != nil {
			return AssignResult{}, fmt.Errorf("save crew %s/%s: %w", dk, leader, err)
		}
		res.Version = version
		l.notify(ctx, date)
		return res, nil
	}
	return AssignResult{}, fmt.Errorf("save crew %s/%s: %w", dk, leader, lastErr)
}

func (l *Ledger) notify(ctx context.Context, date time.Time) {
	if l.notifier == nil || l.activeJobs == nil {
		return
	}
	dk := calendar.DateKey(date)
	keys, err := l.activeJobs(ctx, date)
	if err != nil {
		slog.Warn("active jobs lookup failed", "date", dk, "err", err)
		return
	}
	for _, k := range keys {
		if err := l.notifier.PhaseResync(ctx, k, dk); err != nil {
			slog.Warn("phase resync notification failed", "job", k, "date", dk, "err", err)
		}
	}
}

// Available lists field-qualified, active workers who are not on another
// leader's crew on date and whose leave that day is under a full day.
func (l *Ledger) Available(ctx context.Context, date time.Time, excludingLeader string) ([]models.Worker, error) {
	if date.IsZero() {
		return nil, ErrInvalidDate
	}
	dk := calendar.DateKey(date)

	workers, err := l.roster.Workers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load workers: %w", err)
	}
	snap, err := l.store.DayAssignments(ctx, dk)
	if err != nil {
		return nil, fmt.Errorf("read crews for %s: %w", dk, err)
	}
	leave, err := l.roster.TimeOffOn(ctx, dk)
	if err != nil {
		return nil, fmt.Errorf("load time off for %s: %w", dk, err)
	}

	claimed := snap.ClaimedBy(excludingLeader)
	off := LeaveHours(leave, date)

	out := make([]models.Worker, 0, len(workers))
	for _, w := range workers {
		if !w.Active || !l.rules.FieldQualified(w.Role) {
			continue
		}
		if _, taken := claimed[w.ID]; taken {
			continue
		}
		if off[w.ID] >= models.HoursPerDay {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// LeaveHours sums each worker's requested leave hours on date.
func LeaveHours(requests []models.TimeOff, date time.Time) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range requests {
		if r.Covers(date) {
			out[r.WorkerID] += r.DailyHours()
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
