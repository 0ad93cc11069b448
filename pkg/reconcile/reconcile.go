// Package reconcile joins free-text work phases to raw cost lines and
// synthesizes virtual phases for jobs that have none.
package reconcile

import (
	"regexp"
	"sort"
	"strings"

	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

// quantityPrefix matches a leading "1,200 SQ FT - " style quantity and unit.
var quantityPrefix = regexp.MustCompile(`^\s*[\d,]+(\.\d+)?\s*(sq\.?\s*ft\.?|ln\.?\s*ft\.?|lin\.?\s*ft\.?|sf|lf|cy|ea|each)?\s*[-–—]\s*`)

// NormalizeTitle lower-cases a title and strips a leading quantity/unit prefix.
func NormalizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = quantityPrefix.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Matcher decides whether a phase title refers to a cost line.
type Matcher interface {
	Match(phaseTitle string, line models.CostLine) bool
}

// SubstringMatcher matches when either normalized string contains the other.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(phaseTitle string, line models.CostLine) bool {
	title := NormalizeTitle(phaseTitle)
	item := strings.Join(strings.Fields(strings.ToLower(line.CostItem)), " ")
	if title == "" || item == "" {
		return false
	}
	return strings.Contains(item, title) || strings.Contains(title, item)
}

// ExactMatcher matches normalized titles that equal the cost item exactly.
type ExactMatcher struct{}

func (ExactMatcher) Match(phaseTitle string, line models.CostLine) bool {
	title := NormalizeTitle(phaseTitle)
	return title != "" && title == NormalizeTitle(line.CostItem)
}

// Reconciler resolves a phase's labor hours from cost lines.
type Reconciler struct {
	Matcher Matcher
}

// New returns a Reconciler using m, or SubstringMatcher when m is nil.
func New(m Matcher) *Reconciler {
	if m == nil {
		m = SubstringMatcher{}
	}
	return &Reconciler{Matcher: m}
}

// MatchHours sums the hours of the cost lines whose item matches the phase
// title, leaving out management lines. Without any match it falls back to the
// phase's own stored hours.
func (r *Reconciler) MatchHours(phase models.Phase, lines []models.CostLine) float64 {
	matched := false
	total := 0.0
	for _, cl := range lines {
		if !r.Matcher.Match(phase.Title, cl) {
			continue
		}
		matched = true
		if cl.IsManagement() {
			continue
		}
		total += cl.Hours
	}
	if !matched {
		if phase.Hours > 0 {
			return phase.Hours
		}
		return 0
	}
	return total
}

// VirtualPrefix marks the IDs of synthesized phases.
const VirtualPrefix = "virtual:"

// SynthesizePhases groups a job's cost lines by group label and emits one
// undated virtual phase per group. Lines with neither hours nor sales are
// ignored. Output is ordered by title.
func SynthesizePhases(jobKey string, lines []models.CostLine) []models.Phase {
	type agg struct {
		hours, sales float64
		items        []string
	}
	groups := make(map[string]*agg)
	for _, cl := range lines {
		if cl.Hours == 0 && cl.Sales == 0 {
			continue
		}
		label := cl.GroupLabel()
		g, ok := groups[label]
		if !ok {
			g = &agg{}
			groups[label] = g
		}
		g.hours += cl.Hours
		g.sales += cl.Sales
		if item := strings.TrimSpace(cl.CostItem); item != "" {
			g.items = append(g.items, item)
		}
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	phases := make([]models.Phase, 0, len(labels))
	for _, label := range labels {
		g := groups[label]
		phases = append(phases, models.Phase{
			ID:      VirtualPrefix + label,
			JobKey:  jobKey,
			Title:   label,
			Hours:   g.hours,
			Sales:   g.sales,
			Tasks:   g.items,
			Virtual: true,
		})
	}
	return phases
}

// PhasesFor returns the stored phases of a job, or virtual phases synthesized
// from its cost lines when none are stored.
func PhasesFor(job models.Job, stored []models.Phase) []models.Phase {
	if len(stored) > 0 {
		return stored
	}
	if len(job.CostLines) == 0 {
		return nil
	}
	return SynthesizePhases(job.Key, job.CostLines)
}

// Resolved is a phase together with its reconciled hours.
type Resolved struct {
	models.Phase
	MatchedHours float64 `json:"matched_hours"`
}

// Resolve reconciles every phase of a job.
func (r *Reconciler) Resolve(job models.Job, stored []models.Phase) []Resolved {
	phases := PhasesFor(job, stored)
	out := make([]Resolved, 0, len(phases))
	for _, p := range phases {
		hours := p.Hours
		if !p.Virtual {
			hours = r.MatchHours(p, job.CostLines)
		}
		out = append(out, Resolved{Phase: p, MatchedHours: hours})
	}
	return out
}
