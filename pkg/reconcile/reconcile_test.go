package reconcile

import (
	"testing"

	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

func TestNormalizeTitle(t *testing.T) {
	cases := map[string]string{
		"1,200 SQ FT - Flatwork":   "flatwork",
		"350 LF - Curb and Gutter": "curb and gutter",
		"12 each - Bollards":       "bollards",
		"40 - Footings":            "footings",
		"Site Prep":                "site prep",
		"  Demo   Existing  ":      "demo existing",
	}
	for in, want := range cases {
		if got := NormalizeTitle(in); got != want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubstringMatcher(t *testing.T) {
	m := SubstringMatcher{}
	if !m.Match("1,200 SQ FT - Flatwork", models.CostLine{CostItem: "flatwork pour"}) {
		t.Error("Expected title to match a cost item that contains it")
	}
	if !m.Match("Flatwork pour and finish", models.CostLine{CostItem: "Flatwork"}) {
		t.Error("Expected title to match a cost item it contains")
	}
	if m.Match("Excavation", models.CostLine{CostItem: "flatwork pour"}) {
		t.Error("Expected unrelated title not to match")
	}
	if m.Match("100 SF - ", models.CostLine{CostItem: "flatwork"}) {
		t.Error("Expected empty normalized title never to match")
	}
}

func TestMatchHours_ExcludesManagement(t *testing.T) {
	r := New(nil)
	lines := []models.CostLine{
		{CostItem: "Flatwork pour", CostType: "Labor", Hours: 80},
		{CostItem: "Flatwork supervision", CostType: "Project Management", Hours: 20},
		{CostItem: "Flatwork finish", CostType: "Labor", Hours: 40},
		{CostItem: "Excavation", CostType: "Labor", Hours: 60},
	}
	got := r.MatchHours(models.Phase{Title: "1,200 SQ FT - Flatwork"}, lines)
	if got != 120 {
		t.Errorf("Expected 120 matched labor hours, got %f", got)
	}
}

func TestMatchHours_FallsBackToStoredHours(t *testing.T) {
	r := New(nil)
	lines := []models.CostLine{{CostItem: "Excavation", CostType: "Labor", Hours: 60}}

	if got := r.MatchHours(models.Phase{Title: "Landscaping", Hours: 35}, lines); got != 35 {
		t.Errorf("Expected fallback to stored 35 hours, got %f", got)
	}
	if got := r.MatchHours(models.Phase{Title: "Landscaping"}, lines); got != 0 {
		t.Errorf("Expected 0 hours with nothing to fall back on, got %f", got)
	}
}

func TestMatchHours_Idempotent(t *testing.T) {
	r := New(nil)
	lines := []models.CostLine{{CostItem: "Framing", CostType: "Labor", Hours: 64}}
	p := models.Phase{Title: "Framing"}
	first := r.MatchHours(p, lines)
	for i := 0; i < 5; i++ {
		if got := r.MatchHours(p, lines); got != first {
			t.Fatalf("Expected repeated calls to return %f, got %f", first, got)
		}
	}
}

func TestExactMatcher(t *testing.T) {
	r := New(ExactMatcher{})
	lines := []models.CostLine{
		{CostItem: "Flatwork", CostType: "Labor", Hours: 10},
		{CostItem: "Flatwork pour", CostType: "Labor", Hours: 90},
	}
	if got := r.MatchHours(models.Phase{Title: "500 SF - Flatwork"}, lines); got != 10 {
		t.Errorf("Expected only the exact line (10 hours), got %f", got)
	}
}

func TestSynthesizePhases(t *testing.T) {
	key := models.JobKey("Acme", "1", "Depot")
	lines := []models.CostLine{
		{CostType: "Labor", CostItem: "Forming", Hours: 40, Sales: 4000},
		{CostType: "Labor", CostItem: "Pour", Hours: 20, Sales: 2500},
		{CostType: "Equipment", CostItem: "Skid steer", Sales: 900},
		{CostType: "Material", CostItem: "Rebar"},
		{Group: "Concrete", CostType: "Labor", CostItem: "Finish", Hours: 8, Sales: 800},
	}

	phases := SynthesizePhases(key, lines)
	if len(phases) != 3 {
		t.Fatalf("Expected 3 virtual phases, got %d: %+v", len(phases), phases)
	}

	want := []struct {
		title string
		hours float64
		sales float64
	}{
		{"Concrete", 8, 800},
		{"Equipment", 0, 900},
		{"Labor", 60, 6500},
	}
	for i, w := range want {
		p := phases[i]
		if p.Title != w.title || p.Hours != w.hours || p.Sales != w.sales {
			t.Errorf("phase %d: Expected %s/%v/%v, got %s/%v/%v", i, w.title, w.hours, w.sales, p.Title, p.Hours, p.Sales)
		}
		if !p.Virtual || p.Dated() {
			t.Errorf("phase %d: Expected an undated virtual phase", i)
		}
		if p.JobKey != key {
			t.Errorf("phase %d: Expected job key %q, got %q", i, key, p.JobKey)
		}
	}
}

func TestPhasesFor_PrefersStored(t *testing.T) {
	job := models.Job{Key: "k", CostLines: []models.CostLine{{CostType: "Labor", Hours: 5}}}
	stored := []models.Phase{{ID: "p1", Title: "Stored"}}

	if got := PhasesFor(job, stored); len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("Expected stored phases to be returned, got %+v", got)
	}
	if got := PhasesFor(job, nil); len(got) != 1 || !got[0].Virtual {
		t.Errorf("Expected one virtual phase, got %+v", got)
	}
	if got := PhasesFor(models.Job{Key: "empty"}, nil); got != nil {
		t.Errorf("Expected no phases for a job without cost lines, got %+v", got)
	}
}
