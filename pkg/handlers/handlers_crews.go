package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
)

// GetCrews returns every crew-leader's workers on a date.
func (h *Handler) GetCrews(c *gin.Context) {
	d, ok := calendar.ParseDate(c.Param("date"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	snap, err := h.Ledger.Crews(c.Request.Context(), d)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// AvailableWorkers lists who can still join ?leader='s crew on a date.
func (h *Handler) AvailableWorkers(c *gin.Context) {
	d, ok := calendar.ParseDate(c.Param("date"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	workers, err := h.Ledger.Available(c.Request.Context(), d, c.Query("leader"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": calendar.DateKey(d), "workers": workers})
}

// AssignCrew replaces a leader's crew for a date. Workers already on another
// crew come back under "rejected" and the rest are stored.
func (h *Handler) AssignCrew(c *gin.Context) {
	d, ok := calendar.ParseDate(c.Param("date"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	var req struct {
		WorkerIDs []string `json:"worker_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Ledger.Assign(c.Request.Context(), d, c.Param("leader"), req.WorkerIDs)
	if err != nil {
		fail(c, err)
		return
	}
	h.RecordUsage(c, usage{assignments: len(res.Accepted)})
	c.JSON(http.StatusOK, res)
}
