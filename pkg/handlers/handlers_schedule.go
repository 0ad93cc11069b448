package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

type jobSummary struct {
	Key                string  `json:"key"`
	Customer           string  `json:"customer"`
	ProjectNumber      string  `json:"project_number"`
	ProjectName        string  `json:"project_name"`
	Status             string  `json:"status"`
	TotalBudgetedHours float64 `json:"total_budgeted_hours"`
}

func summarize(j models.Job) jobSummary {
	return jobSummary{
		Key:                j.Key,
		Customer:           j.Customer,
		ProjectNumber:      j.ProjectNumber,
		ProjectName:        j.ProjectName,
		Status:             j.Status,
		TotalBudgetedHours: j.TotalBudgetedHours(),
	}
}

// ListJobs returns the qualifying jobs, or every job with ?all=true.
func (h *Handler) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()
	var jobs []models.Job
	var err error
	if c.Query("all") == "true" {
		jobs, err = h.Planner.Jobs(ctx)
	} else {
		jobs, err = h.Planner.QualifyingJobs(ctx)
	}
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, summarize(j))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

// JobPhases returns stored phases, or virtual ones synthesized from cost
// lines, each with its reconciled hours.
func (h *Handler) JobPhases(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	phases, err := h.Planner.Phases(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_key": key, "phases": phases})
}

// JobSchedule returns one job's merged bucket hours.
func (h *Handler) JobSchedule(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	q, err := parseScheduleQuery(c, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sched, err := h.Planner.JobSchedule(c.Request.Context(), key, q.Mode, q.Anchor, q.Count)
	if err != nil {
		fail(c, err)
		return
	}
	h.RecordUsage(c, usage{schedules: 1})
	c.JSON(http.StatusOK, sched)
}

type bucketCapacity struct {
	Key       string  `json:"key"`
	Capacity  float64 `json:"capacity"`
	Committed float64 `json:"committed"`
	Remaining float64 `json:"remaining"`
}

// CompanySchedule returns every qualifying job's buckets with company
// capacity per bucket (daily capacity x workdays).
func (h *Handler) CompanySchedule(c *gin.Context) {
	q, err := parseScheduleQuery(c, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sched, err := h.Planner.CompanySchedule(c.Request.Context(), q.Mode, q.Anchor, q.Count)
	if err != nil {
		fail(c, err)
		return
	}

	capacity := make([]bucketCapacity, 0, len(sched.Buckets))
	for _, b := range sched.Buckets {
		bc := bucketCapacity{
			Key:       b.Key,
			Capacity:  h.Config.CompanyCapacityHours * float64(calendar.WorkdaysBetween(b.Start, b.End)),
			Committed: b.Hours,
		}
		bc.Remaining = bc.Capacity - bc.Committed
		capacity = append(capacity, bc)
	}

	h.RecordUsage(c, usage{schedules: 1})
	c.JSON(http.StatusOK, gin.H{"schedule": sched, "capacity": capacity})
}
