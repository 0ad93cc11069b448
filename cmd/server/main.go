package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/capacity-scheduler-api/internal/housekeeping"
	"github.com/arnavshah/capacity-scheduler-api/internal/notify"
	"github.com/arnavshah/capacity-scheduler-api/pkg/auth"
	"github.com/arnavshah/capacity-scheduler-api/pkg/cache"
	"github.com/arnavshah/capacity-scheduler-api/pkg/calendar"
	"github.com/arnavshah/capacity-scheduler-api/pkg/config"
	"github.com/arnavshah/capacity-scheduler-api/pkg/crew"
	"github.com/arnavshah/capacity-scheduler-api/pkg/database"
	"github.com/arnavshah/capacity-scheduler-api/pkg/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := database.InitDB(cfg.DatabaseURL, cfg.DataPath)
	auth.SeedAdmin(ctx, db)
	store := database.NewStore(db)

	var (
		c        cache.Cache
		notifier crew.Notifier
		pruner   housekeeping.Pruner
	)
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		c = cache.NewRedis(rdb, cfg.CacheTTL, "capacity:")
		notifier = notify.NewPublisher(rdb)
		log.Printf("Using Redis cache and resync events")
	} else {
		mem := cache.NewMemory(cfg.CacheTTL, nil)
		c, pruner = mem, mem
	}

	h := handlers.New(db, store, cfg, c, notifier)

	warm := housekeeping.WarmFunc(func(ctx context.Context, anchor time.Time) error {
		_, err := h.Planner.CompanySchedule(ctx, calendar.ModeWeek, anchor, 8)
		return err
	})
	chores := housekeeping.New(pruner, warm)
	if err := chores.Start(ctx, "@every 1m", "@every 15m"); err != nil {
		log.Fatalf("housekeeping: %v", err)
	}
	defer chores.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(h),
	}
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("could not run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
