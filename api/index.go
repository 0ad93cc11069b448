package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/capacity-scheduler-api/pkg/auth"
	"github.com/arnavshah/capacity-scheduler-api/pkg/cache"
	"github.com/arnavshah/capacity-scheduler-api/pkg/config"
	"github.com/arnavshah/capacity-scheduler-api/pkg/database"
	"github.com/arnavshah/capacity-scheduler-api/pkg/handlers"
)

var r *gin.Engine

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db := database.InitDB(cfg.DatabaseURL, cfg.DataPath)
	auth.SeedAdmin(context.Background(), db)

	// Serverless instances share nothing between invocations, so without
	// Redis every request reads through.
	var c cache.Cache = cache.Nop{}
	if cfg.RedisURL != "" {
		if rdb, err := cache.NewRedisClient(context.Background(), cfg.RedisURL); err == nil {
			c = cache.NewRedis(rdb, cfg.CacheTTL, "capacity:")
		} else {
			log.Printf("redis unavailable, caching disabled: %v", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	h := handlers.New(db, database.NewStore(db), cfg, c, nil)
	r = handlers.NewRouter(h)
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
