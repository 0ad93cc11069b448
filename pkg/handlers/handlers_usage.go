package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/capacity-scheduler-api/pkg/database"
)

// usage is what one request adds to the key's daily counters.
type usage struct {
	schedules   int
	assignments int
	costLines   int
}

// RecordUsage upserts the caller's daily counters in a single statement.
func (h *Handler) RecordUsage(c *gin.Context, u usage) {
	apiKeyRaw, exists := c.Get("apiKey")
	if !exists {
		return
	}
	apiKey := apiKeyRaw.(*database.APIKey)

	err := h.DB.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count":       gorm.Expr("request_count + ?", 1),
			"schedule_requests":   gorm.Expr("schedule_requests + ?", u.schedules),
			"crew_assignments":    gorm.Expr("crew_assignments + ?", u.assignments),
			"cost_lines_imported": gorm.Expr("cost_lines_imported + ?", u.costLines),
		}),
	}).Create(&database.APIUsage{
		KeyID:             apiKey.ID,
		Date:              time.Now().Format("2006-01-02"),
		RequestCount:      1,
		ScheduleRequests:  u.schedules,
		CrewAssignments:   u.assignments,
		CostLinesImported: u.costLines,
	}).Error
	if err != nil {
		slog.Warn("usage not recorded", "key_id", apiKey.ID, "err", err)
	}
}

// GetMyUsage returns usage stats for the authenticated API key
func (h *Handler) GetMyUsage(c *gin.Context) {
	apiKeyRaw, exists := c.Get("apiKey")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API Key context missing"})
		return
	}
	apiKey := apiKeyRaw.(*database.APIKey)

	var history []database.APIUsage
	if err := h.DB.WithContext(c.Request.Context()).Where("key_id = ?", apiKey.ID).Order("date desc").Limit(30).Find(&history).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch usage details"})
		return
	}

	var requests, schedules, assignments, lines int64
	for _, u := range history {
		requests += int64(u.RequestCount)
		schedules += int64(u.ScheduleRequests)
		assignments += int64(u.CrewAssignments)
		lines += int64(u.CostLinesImported)
	}

	c.JSON(http.StatusOK, gin.H{
		"key_name":      apiKey.Name,
		"rate_limit":    apiKey.RateLimit,
		"usage_history": history,
		"totals": gin.H{
			"requests":            requests,
			"schedule_requests":   schedules,
			"crew_assignments":    assignments,
			"cost_lines_imported": lines,
		},
	})
}
