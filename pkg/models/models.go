package models

import (
	"strings"
	"time"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
)

const (
	// KeySeparator joins the three job-key components.
	KeySeparator = " | "

	// HoursPerDay is one worker's full day, used for phase hours, capacity and
	// the time-off threshold.
	HoursPerDay = 10.0
)

// JobKey composes the deterministic job identity. Every caller that derives a
// key must go through this function so that merges line up.
func JobKey(customer, projectNumber, projectName string) string {
	return normalizeKeyPart(customer) + KeySeparator +
		normalizeKeyPart(projectNumber) + KeySeparator +
		normalizeKeyPart(projectName)
}

func normalizeKeyPart(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", "/")
}

// Job is a project with its cost lines. Key is derived, never user supplied.
type Job struct {
	Key           string     `gorm:"primaryKey;size:512" json:"key"`
	Customer      string     `gorm:"not null" json:"customer"`
	ProjectNumber string     `json:"project_number"`
	ProjectName   string     `gorm:"not null" json:"project_name"`
	Status        string     `gorm:"index" json:"status"`
	CostLines     []CostLine `gorm:"foreignKey:JobKey;references:Key" json:"cost_lines,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewJob builds a Job with its key already derived.
func NewJob(customer, projectNumber, projectName, status string) Job {
	return Job{
		Key:           JobKey(customer, projectNumber, projectName),
		Customer:      customer,
		ProjectNumber: projectNumber,
		ProjectName:   projectName,
		Status:        status,
	}
}

// DeriveKey recomputes Key from the identity fields.
func (j *Job) DeriveKey() string {
	j.Key = JobKey(j.Customer, j.ProjectNumber, j.ProjectName)
	return j.Key
}

// TotalBudgetedHours sums field-labor hours across the job's cost lines.
// Management lines are not field commitment and are left out.
func (j Job) TotalBudgetedHours() float64 {
	total := 0.0
	for _, cl := range j.CostLines {
		if cl.IsManagement() {
			continue
		}
		total += cl.Hours
	}
	return total
}

// CostLine is one estimate/cost row of a job. Read-only to the engine.
type CostLine struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	JobKey   string  `gorm:"index;size:512;not null" json:"job_key"`
	Group    string  `json:"group,omitempty"`
	CostType string  `json:"cost_type"`
	CostItem string  `json:"cost_item"`
	Sales    float64 `json:"sales"`
	Cost     float64 `json:"cost"`
	Hours    float64 `json:"hours"`
}

// IsManagement reports whether the line carries supervisory hours.
func (cl CostLine) IsManagement() bool {
	return strings.Contains(strings.ToLower(cl.CostType), "management")
}

// GroupLabel is the group name, falling back to the cost type.
func (cl CostLine) GroupLabel() string {
	if g := strings.TrimSpace(cl.Group); g != "" {
		return g
	}
	if t := strings.TrimSpace(cl.CostType); t != "" {
		return t
	}
	return "General"
}

// Phase is a named work stage ("scope") of a job. Dates are optional
// YYYY-MM-DD strings; an undated phase is unscheduled work.
type Phase struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	JobKey      string    `gorm:"index;size:512;not null" json:"job_key"`
	Title       string    `gorm:"not null" json:"title"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	Manpower    float64   `json:"manpower"`
	Hours       float64   `json:"hours"`
	Description string    `json:"description,omitempty"`
	Tasks       []string  `gorm:"serializer:json" json:"tasks"`
	Sales       float64   `gorm:"-" json:"sales,omitempty"`
	Virtual     bool      `gorm:"-" json:"virtual,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Range returns the phase's date range and whether both ends are usable.
func (p Phase) Range() (calendar.Range, bool) {
	return calendar.ParseRange(p.StartDate, p.EndDate)
}

// Dated reports whether the phase has a usable date range.
func (p Phase) Dated() bool {
	_, ok := p.Range()
	return ok
}

// Covers reports whether the phase's range includes d.
func (p Phase) Covers(d time.Time) bool {
	r, ok := p.Range()
	return ok && r.Contains(d)
}

// ApplyManpower sets the headcount and recomputes budgeted hours as
// manpower x 10 x workdays. This is the only place hours follow manpower.
func ApplyManpower(p *Phase, manpower float64) {
	if manpower < 0 {
		manpower = 0
	}
	p.Manpower = manpower
	p.Hours = manpower * HoursPerDay * float64(calendar.WorkdaysBetween(p.StartDate, p.EndDate))
}

// CrewDay is one day of a Daily Crew Sheet.
type CrewDay struct {
	Date         string   `json:"date"`
	Hours        float64  `json:"hours"`
	CrewLeaderID string   `json:"crew_leader_id,omitempty"`
	WorkerIDs    []string `json:"worker_ids"`
}

// CrewWeek holds up to seven days.
type CrewWeek struct {
	Days []CrewDay `json:"days"`
}

// CrewSheet is the day-granular, crew-attributed schedule of one job for one
// calendar month (up to six weeks).
type CrewSheet struct {
	ID        string     `gorm:"primaryKey;size:64" json:"id"`
	JobKey    string     `gorm:"uniqueIndex:idx_crew_job_month;size:512;not null" json:"job_key"`
	Month     string     `gorm:"uniqueIndex:idx_crew_job_month;size:7;index;not null" json:"month"`
	Weeks     []CrewWeek `gorm:"serializer:json" json:"weeks"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Day finds the entry for a date key.
func (cs *CrewSheet) Day(dateKey string) (*CrewDay, bool) {
	for wi := range cs.Weeks {
		for di := range cs.Weeks[wi].Days {
			if cs.Weeks[wi].Days[di].Date == dateKey {
				return &cs.Weeks[wi].Days[di], true
			}
		}
	}
	return nil, false
}

// ForecastWeek is an aggregate weekly figure; WeekStart is a date key inside
// the week (normally its Monday).
type ForecastWeek struct {
	WeekStart string  `json:"week_start"`
	Hours     float64 `json:"hours"`
}

// WeeklyForecast is the week-granular, crew-less estimate of one job for one
// calendar month.
type WeeklyForecast struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	JobKey    string         `gorm:"uniqueIndex:idx_forecast_job_month;size:512;not null" json:"job_key"`
	Month     string         `gorm:"uniqueIndex:idx_forecast_job_month;size:7;not null" json:"month"`
	Weeks     []ForecastWeek `gorm:"serializer:json" json:"weeks"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MonthlyAllocation maps month keys to the percentage of the job's budgeted
// hours assumed consumed that month.
type MonthlyAllocation struct {
	JobKey      string             `gorm:"primaryKey;size:512" json:"job_key"`
	Percentages map[string]float64 `gorm:"serializer:json" json:"percentages"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// TimeOff is a worker's leave request. HoursPerDay of zero means a full day.
type TimeOff struct {
	ID          string  `gorm:"primaryKey;size:64" json:"id"`
	WorkerID    string  `gorm:"index;size:64;not null" json:"worker_id"`
	StartDate   string  `gorm:"index;not null" json:"start_date"`
	EndDate     string  `gorm:"index;not null" json:"end_date"`
	HoursPerDay float64 `json:"hours_per_day"`
	Type        string  `json:"type"`
}

// DailyHours is the leave taken per covered day.
func (t TimeOff) DailyHours() float64 {
	if t.HoursPerDay <= 0 {
		return HoursPerDay
	}
	return t.HoursPerDay
}

// Covers reports whether the request includes d.
func (t TimeOff) Covers(d time.Time) bool {
	r, ok := calendar.ParseRange(t.StartDate, t.EndDate)
	return ok && r.Contains(d)
}

// Worker is an employee who can be put on a crew.
type Worker struct {
	ID     string `gorm:"primaryKey;size:64" json:"id"`
	Name   string `gorm:"not null" json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}
