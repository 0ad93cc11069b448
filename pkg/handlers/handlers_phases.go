package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/capacity"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
	"github.com/arnavshah/capacity-scheduler-api/pkg/reconcile"
)

// advise checks p against every stored phase. A failed lookup yields no
// advice rather than failing the write.
func (h *Handler) advise(ctx context.Context, p models.Phase) *capacity.RangeAdvice {
	all, err := h.Planner.AllPhases(ctx)
	if err != nil {
		slog.Warn("capacity advice skipped", "phase", p.ID, "err", err)
		return nil
	}
	adv := capacity.AdviseRange(p, all, h.Config.CompanyCapacityHours)
	return &adv
}

// CreatePhase stores a new phase and reports the capacity it consumes.
func (h *Handler) CreatePhase(c *gin.Context) {
	var in phaseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := in.validate(true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := models.Phase{JobKey: in.JobKey, Tasks: []string{}}
	if err := in.apply(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.Store.SavePhase(ctx, &p); err != nil {
		fail(c, err)
		return
	}
	h.Planner.Invalidate(ctx, p.JobKey)

	c.JSON(http.StatusCreated, gin.H{"phase": p, "capacity": h.advise(ctx, p)})
}

// UpdatePhase edits a stored phase. A manpower change recomputes hours.
func (h *Handler) UpdatePhase(c *gin.Context) {
	id := c.Param("id")
	if strings.HasPrefix(id, reconcile.VirtualPrefix) {
		fail(c, models.ErrVirtualPhase)
		return
	}
	var in phaseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := in.validate(false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	p, err := h.Store.Phase(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	if in.JobKey != "" && in.JobKey != p.JobKey {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a phase cannot move between jobs"})
		return
	}
	if err := in.apply(p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.SavePhase(ctx, p); err != nil {
		fail(c, err)
		return
	}
	h.Planner.Invalidate(ctx, p.JobKey)

	c.JSON(http.StatusOK, gin.H{"phase": p, "capacity": h.advise(ctx, *p)})
}

// DeletePhase removes a stored phase.
func (h *Handler) DeletePhase(c *gin.Context) {
	id := c.Param("id")
	if strings.HasPrefix(id, reconcile.VirtualPrefix) {
		fail(c, models.ErrVirtualPhase)
		return
	}
	ctx := c.Request.Context()
	p, err := h.Store.Phase(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.Store.DeletePhase(ctx, id); err != nil {
		fail(c, err)
		return
	}
	h.Planner.Invalidate(ctx, p.JobKey)
	c.JSON(http.StatusOK, gin.H{"message": "Phase deleted"})
}

// CheckCapacity previews the capacity effect of a phase edit without saving.
// With a date only that day is checked; otherwise every workday in range.
func (h *Handler) CheckCapacity(c *gin.Context) {
	var req struct {
		Date  string `json:"date"`
		Phase struct {
			ID        string  `json:"id"`
			StartDate string  `json:"start_date"`
			EndDate   string  `json:"end_date"`
			Manpower  float64 `json:"manpower"`
		} `json:"phase"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidate := models.Phase{
		ID:        req.Phase.ID,
		StartDate: req.Phase.StartDate,
		EndDate:   req.Phase.EndDate,
		Manpower:  req.Phase.Manpower,
	}

	all, err := h.Planner.AllPhases(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if req.Date != "" {
		d, ok := calendar.ParseDate(req.Date)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		c.JSON(http.StatusOK, capacity.Advise(d, candidate, all, h.Config.CompanyCapacityHours))
		return
	}
	c.JSON(http.StatusOK, capacity.AdviseRange(candidate, all, h.Config.CompanyCapacityHours))
}
