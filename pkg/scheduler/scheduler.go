package scheduler

import (
	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
	"github.com/arnavshah/capacity-scheduler-api/pkg/reconcile"
)

// Scheduler turns phases and schedule records into bucketed labor hours.
// It holds no per-call state; every method is a pure function of its input.
type Scheduler struct {
	Reconciler *reconcile.Reconciler
}

// NewScheduler creates a new scheduler instance
func NewScheduler(r *reconcile.Reconciler) *Scheduler {
	if r == nil {
		r = reconcile.New(nil)
	}
	return &Scheduler{Reconciler: r}
}

// MatchedHours is the phase's labor budget as reconciled against cost lines.
func (s *Scheduler) MatchedHours(phase models.Phase, lines []models.CostLine) float64 {
	if phase.Virtual {
		return phase.Hours
	}
	return s.Reconciler.MatchHours(phase, lines)
}

// DailyRate spreads the matched hours evenly over the phase's workdays. An
// undated phase or one with no workdays has a rate of 0.
func (s *Scheduler) DailyRate(phase models.Phase, lines []models.CostLine) float64 {
	r, ok := phase.Range()
	if !ok {
		return 0
	}
	days := calendar.WorkdaysIn(r)
	if days == 0 {
		return 0
	}
	return s.MatchedHours(phase, lines) / float64(days)
}

// Distribute returns the phase's hours per bucket key. Every bucket appears in
// the result, with zero when the phase does not touch it.
func (s *Scheduler) Distribute(phase models.Phase, lines []models.CostLine, buckets []calendar.Bucket) map[string]float64 {
	out := make(map[string]float64, len(buckets))
	for _, b := range buckets {
		out[b.Key] = 0
	}

	r, ok := phase.Range()
	if !ok {
		return out
	}
	rate := s.DailyRate(phase, lines)
	if rate == 0 {
		return out
	}
	for _, b := range buckets {
		ov, ok := calendar.Overlap(r, b.Range())
		if !ok {
			continue
		}
		out[b.Key] += rate * float64(calendar.WorkdaysIn(ov))
	}
	return out
}

// DistributeAll sums Distribute over several phases.
func (s *Scheduler) DistributeAll(phases []models.Phase, lines []models.CostLine, buckets []calendar.Bucket) map[string]float64 {
	out := make(map[string]float64, len(buckets))
	for _, b := range buckets {
		out[b.Key] = 0
	}
	for _, p := range phases {
		for k, v := range s.Distribute(p, lines, buckets) {
			out[k] += v
		}
	}
	return out
}

// HasAuthoritativePhases reports whether any phase has both dates and non-zero
// matched hours, so that the days it covers take phase distribution.
func (s *Scheduler) HasAuthoritativePhases(phases []models.Phase, lines []models.CostLine) bool {
	for _, p := range phases {
		if p.Dated() && s.MatchedHours(p, lines) > 0 {
			return true
		}
	}
	return false
}
