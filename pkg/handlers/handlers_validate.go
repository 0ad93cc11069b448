package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
)

const (
	defaultBucketCount = 8
	maxBucketCount     = 366
)

// scheduleQuery is the bucket window of a schedule request.
type scheduleQuery struct {
	Mode   calendar.Mode
	Anchor time.Time
	Count  int
}

func parseScheduleQuery(c *gin.Context, now time.Time) (scheduleQuery, error) {
	q := scheduleQuery{Mode: calendar.ModeWeek, Anchor: calendar.Date(now), Count: defaultBucketCount}

	if s := c.Query("mode"); s != "" {
		m, err := calendar.ParseMode(s)
		if err != nil {
			return q, err
		}
		q.Mode = m
	}
	if s := c.Query("anchor"); s != "" {
		d, ok := calendar.ParseDate(s)
		if !ok {
			return q, fmt.Errorf("invalid anchor %q", s)
		}
		q.Anchor = d
	}
	if s := c.Query("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxBucketCount {
			return q, fmt.Errorf("count must be between 1 and %d", maxBucketCount)
		}
		q.Count = n
	}
	return q, nil
}

// phaseInput is the writable part of a phase. Nil numbers mean unchanged.
type phaseInput struct {
	JobKey      string   `json:"job_key"`
	Title       string   `json:"title"`
	StartDate   *string  `json:"start_date"`
	EndDate     *string  `json:"end_date"`
	Manpower    *float64 `json:"manpower"`
	Hours       *float64 `json:"hours"`
	Description *string  `json:"description"`
	Tasks       []string `json:"tasks"`
}

var errEndBeforeStart = errors.New("end_date is before start_date")

// validate checks field shapes. Missing dates are allowed and leave the
// phase unscheduled; present ones must parse.
func (in phaseInput) validate(create bool) error {
	if create && strings.TrimSpace(in.JobKey) == "" {
		return errors.New("job_key is required")
	}
	if create && strings.TrimSpace(in.Title) == "" {
		return errors.New("title is required")
	}
	for name, v := range map[string]*string{"start_date": in.StartDate, "end_date": in.EndDate} {
		if v == nil || *v == "" {
			continue
		}
		if _, ok := calendar.ParseDate(*v); !ok {
			return fmt.Errorf("%s must be YYYY-MM-DD", name)
		}
	}
	if in.Manpower != nil && *in.Manpower < 0 {
		return errors.New("manpower must not be negative")
	}
	if in.Hours != nil && *in.Hours < 0 {
		return errors.New("hours must not be negative")
	}
	return nil
}

// apply copies the input onto p. Hours follow manpower only when manpower is
// part of the edit; moving dates keeps the stored hours.
func (in phaseInput) apply(p *models.Phase) error {
	if in.Title != "" {
		p.Title = strings.TrimSpace(in.Title)
	}
	if in.StartDate != nil {
		p.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		p.EndDate = *in.EndDate
	}
	if start, ok := calendar.ParseDate(p.StartDate); ok {
		if end, ok := calendar.ParseDate(p.EndDate); ok && end.Before(start) {
			return errEndBeforeStart
		}
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Tasks != nil {
		p.Tasks = in.Tasks
	}

	switch {
	case in.Manpower != nil:
		models.ApplyManpower(p, *in.Manpower)
	case in.Hours != nil:
		p.Hours = *in.Hours
	}
	return nil
}
