package capacity

import (
	"testing"
	"time"

	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

var wednesday = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

func phases() []models.Phase {
	return []models.Phase{
		{ID: "p1", StartDate: "2026-03-02", EndDate: "2026-03-06", Manpower: 10},
		{ID: "p2", StartDate: "2026-03-04", EndDate: "2026-03-10", Manpower: 15},
		{ID: "p3", StartDate: "2026-03-09", EndDate: "2026-03-13", Manpower: 30},
		{ID: "p4", Manpower: 50},
	}
}

func TestRemainingCapacity(t *testing.T) {
	candidate := models.Phase{StartDate: "2026-03-04", EndDate: "2026-03-04", Manpower: 5}
	got := RemainingCapacity(wednesday, candidate, phases(), 400)
	// 400 - (100 + 150) - 50
	if got != 100 {
		t.Errorf("Expected 100, got %v", got)
	}
}

func TestRemainingCapacity_ExcludesCandidate(t *testing.T) {
	all := phases()
	edited := all[1]
	edited.Manpower = 20
	got := RemainingCapacity(wednesday, edited, all, 400)
	// Stored p2 (150) must not count twice: 400 - 100 - 200.
	if got != 100 {
		t.Errorf("Expected 100, got %v", got)
	}
}

func TestAdvise_OverCommitted(t *testing.T) {
	candidate := models.Phase{Manpower: 20}
	a := Advise(wednesday, candidate, phases(), 300)
	if a.Remaining != -150 || !a.OverCommitted {
		t.Errorf("Expected a 150 hour deficit, got %+v", a)
	}
	if a.Committed != 250 || a.Requested != 200 || a.Date != "2026-03-04" {
		t.Errorf("Unexpected breakdown: %+v", a)
	}
}

func TestAdviseRange(t *testing.T) {
	candidate := models.Phase{ID: "new", StartDate: "2026-03-06", EndDate: "2026-03-09", Manpower: 1}
	r := AdviseRange(candidate, phases(), 400)
	// Friday and Monday only.
	if len(r.Days) != 2 {
		t.Fatalf("Expected 2 workdays, got %d", len(r.Days))
	}
	if r.Worst == nil || r.Worst.Date != "2026-03-09" {
		t.Fatalf("Expected Monday to be the tightest day, got %+v", r.Worst)
	}
	// 400 - (150 + 300) - 10
	if r.Worst.Remaining != -60 {
		t.Errorf("Expected -60 on Monday, got %v", r.Worst.Remaining)
	}

	undated := AdviseRange(models.Phase{Manpower: 3}, phases(), 400)
	if len(undated.Days) != 0 || undated.Worst != nil {
		t.Errorf("Expected no advice for an undated phase, got %+v", undated)
	}
}
