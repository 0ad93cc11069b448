// Package capacity checks a phase edit against the company's daily
// headcount-hour capacity. A deficit is advisory; saves are never blocked.
package capacity

import (
	"time"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

// Advice describes one day's commitment.
type Advice struct {
	Date          string  `json:"date"`
	Committed     float64 `json:"committed"`
	Requested     float64 `json:"requested"`
	Remaining     float64 `json:"remaining"`
	OverCommitted bool    `json:"over_committed"`
}

// RemainingCapacity returns capacity minus manpower x 10 for every other phase
// covering date, minus the candidate's own manpower x 10. The candidate is
// recognised by ID among all; phases without an ID are never skipped.
func RemainingCapacity(date time.Time, candidate models.Phase, all []models.Phase, capacity float64) float64 {
	return Advise(date, candidate, all, capacity).Remaining
}

// Advise is RemainingCapacity with the parts broken out.
func Advise(date time.Time, candidate models.Phase, all []models.Phase, capacity float64) Advice {
	d := calendar.Date(date)
	committed := 0.0
	for _, p := range all {
		if candidate.ID != "" && p.ID == candidate.ID {
			continue
		}
		if p.Covers(d) {
			committed += p.Manpower * models.HoursPerDay
		}
	}
	requested := candidate.Manpower * models.HoursPerDay
	remaining := capacity - committed - requested
	return Advice{
		Date:          calendar.DateKey(d),
		Committed:     committed,
		Requested:     requested,
		Remaining:     remaining,
		OverCommitted: remaining < 0,
	}
}

// RangeAdvice covers every workday of a candidate's range.
type RangeAdvice struct {
	Days  []Advice `json:"days"`
	Worst *Advice  `json:"worst,omitempty"`
}

// AdviseRange runs Advise for each workday in the candidate's range. An
// undated candidate yields no days.
func AdviseRange(candidate models.Phase, all []models.Phase, capacity float64) RangeAdvice {
	out := RangeAdvice{Days: []Advice{}}
	r, ok := candidate.Range()
	if !ok {
		return out
	}
	for _, d := range calendar.Days(r) {
		if !calendar.IsWorkday(d) {
			continue
		}
		a := Advise(d, candidate, all, capacity)
		out.Days = append(out.Days, a)
		if out.Worst == nil || a.Remaining < out.Worst.Remaining {
			w := a
			out.Worst = &w
		}
	}
	return out
}
