package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arnavshah/capacity-scheduler-api/pkg/auth"
	"github.com/arnavshah/capacity-scheduler-api/pkg/cache"
	"github.com/arnavshah/capacity-scheduler-api/pkg/config"
	"github.com/arnavshah/capacity-scheduler-api/pkg/crew"
	"github.com/arnavshah/capacity-scheduler-api/pkg/models"
	"github.com/arnavshah/capacity-scheduler-api/pkg/scheduler"
)

// Store is everything the handlers read and write besides auth records.
type Store interface {
	scheduler.Store
	crew.Store
	crew.Roster
	Phase(ctx context.Context, id string) (*models.Phase, error)
	SavePhase(ctx context.Context, p *models.Phase) error
	DeletePhase(ctx context.Context, id string) error
	UpsertJobs(ctx context.Context, jobs []models.Job) error
}

// Handler contains dependencies for the route handlers
type Handler struct {
	DB      *gorm.DB
	Store   Store
	Planner *scheduler.Planner
	Ledger  *crew.Ledger
	Config  *config.Config
}

// New wires the planner and crew ledger over store. A nil notifier skips
// resync events.
func New(db *gorm.DB, store Store, cfg *config.Config, c cache.Cache, notifier crew.Notifier) *Handler {
	planner := scheduler.NewPlanner(store, scheduler.NewScheduler(nil), c, cfg.FetchTimeout, cfg.Rules.JobFilter)
	ledger := crew.NewLedger(store, store, cfg.Rules)
	if notifier != nil {
		ledger.WithNotifier(notifier, planner.ActiveJobKeys)
	}
	return &Handler{DB: db, Store: store, Planner: planner, Ledger: ledger, Config: cfg}
}

func bearer(c *gin.Context) string {
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// AuthMiddleware verifies the dispatcher token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		claims, err := auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Set("username", claims.Username)
		c.Next()
	}
}

// APIKeyMiddleware verifies the HMAC API key and loads its usage record.
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearer(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			return
		}
		name, err := auth.VerifyHMACKey(key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			return
		}
		apiKey, err := auth.TouchAPIKey(c.Request.Context(), h.DB, key, name)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Could not load key record"})
			return
		}
		c.Set("apiKey", apiKey)
		c.Set("userID", name)
		c.Next()
	}
}

// fail maps domain errors to status codes.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrVirtualPhase):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, crew.ErrInvalidDate), errors.Is(err, crew.ErrMissingLeader):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, crew.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "crew assignments changed, please retry"})
	case errors.Is(err, scheduler.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "schedule data unavailable", "unavailable": true})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// NewRouter registers every route on a fresh engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Capacity Scheduler API",
			"version": "1.0.0",
		})
	})

	r.POST("/admin/login", h.Login)

	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:id", h.GetUsage)
	}

	api := r.Group("/api")
	api.Use(h.APIKeyMiddleware())
	{
		api.GET("/jobs", h.ListJobs)
		api.GET("/jobs/phases", h.JobPhases)
		api.GET("/jobs/schedule", h.JobSchedule)
		api.GET("/schedule", h.CompanySchedule)

		api.POST("/phases", h.CreatePhase)
		api.PUT("/phases/:id", h.UpdatePhase)
		api.DELETE("/phases/:id", h.DeletePhase)
		api.POST("/capacity/check", h.CheckCapacity)

		api.GET("/crews/:date", h.GetCrews)
		api.GET("/crews/:date/available", h.AvailableWorkers)
		api.POST("/crews/:date/:leader", h.AssignCrew)

		api.POST("/import/cost-lines", h.ImportCostLines)
		api.GET("/usage", h.GetMyUsage)
	}
	return r
}
