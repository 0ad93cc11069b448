package models

import "testing"

func TestJobKey_Deterministic(t *testing.T) {
	a := JobKey("Acme Builders", "2026-014", "North Lot")
	b := JobKey("  Acme   Builders ", "2026-014", "North Lot ")
	if a != b {
		t.Errorf("Expected whitespace-normalized keys to match, got %q and %q", a, b)
	}

	piped := JobKey("Acme|West", "1", "Lot")
	if piped == JobKey("Acme", "West | 1", "Lot") {
		t.Errorf("Expected separator characters inside fields not to collide, got %q", piped)
	}
}

func TestJob_DeriveKey(t *testing.T) {
	j := Job{Customer: "Acme", ProjectNumber: "7", ProjectName: "Depot"}
	if got := j.DeriveKey(); got != JobKey("Acme", "7", "Depot") {
		t.Errorf("Expected derived key, got %q", got)
	}
}

func TestTotalBudgetedHours_SkipsManagement(t *testing.T) {
	j := Job{CostLines: []CostLine{
		{CostType: "Labor", Hours: 120},
		{CostType: "Project Management", Hours: 40},
		{CostType: "Labor", Hours: 30},
	}}
	if got := j.TotalBudgetedHours(); got != 150 {
		t.Errorf("Expected 150 budgeted hours, got %f", got)
	}
}

func TestApplyManpower(t *testing.T) {
	p := Phase{StartDate: "2026-03-02", EndDate: "2026-03-13"}
	ApplyManpower(&p, 2.5)
	if p.Hours != 250 {
		t.Errorf("Expected 2.5 x 10 x 10 = 250 hours, got %f", p.Hours)
	}

	undated := Phase{Hours: 80}
	ApplyManpower(&undated, 3)
	if undated.Hours != 0 {
		t.Errorf("Expected undated phase to compute 0 hours, got %f", undated.Hours)
	}
}

func TestCrewSheet_Day(t *testing.T) {
	cs := CrewSheet{Weeks: []CrewWeek{
		{Days: []CrewDay{{Date: "2026-03-02", Hours: 40}}},
		{Days: []CrewDay{{Date: "2026-03-09", Hours: 20}}},
	}}
	day, ok := cs.Day("2026-03-09")
	if !ok || day.Hours != 20 {
		t.Fatalf("Expected to find 2026-03-09 with 20 hours, got %v %v", day, ok)
	}
	day.Hours = 30
	if again, _ := cs.Day("2026-03-09"); again.Hours != 30 {
		t.Errorf("Expected Day to return a pointer into the sheet, got %f", again.Hours)
	}
	if _, ok := cs.Day("2026-03-03"); ok {
		t.Error("Expected missing date not to be found")
	}
}

func TestTimeOff_DailyHours(t *testing.T) {
	if (TimeOff{}).DailyHours() != HoursPerDay {
		t.Errorf("Expected zero hours per day to default to a full day")
	}
	if (TimeOff{HoursPerDay: 4}).DailyHours() != 4 {
		t.Errorf("Expected partial day to be kept")
	}
}
