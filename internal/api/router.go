package api

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"mc-dashboard-backend/config"
	"mc-dashboard-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Aggregates hit the database; status and players are already cached in memory.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")

	// Monitoring reads come from memory and are never throttled: many
	// dashboards can share one NAT address.
	api.GET("/healthz", Healthz)
	api.GET("/status", handler.GetStatus)
	api.GET("/players", handler.GetPlayers)

	limited := api.Group("")
	limited.Use(rateLimiter)
	{
		limited.GET("/today", caching, handler.GetToday)
		limited.GET("/yesterday", caching, handler.GetYesterday)
		limited.GET("/leaderboards", caching, handler.GetLeaderboards)
		limited.GET("/debug/sessions/:player", handler.GetPlayerSessions)

		limited.GET("/subscriptions", handler.GetSubscription)
		limited.PUT("/subscriptions", handler.PutSubscription)
		limited.DELETE("/subscriptions", handler.DeleteSubscription)
		limited.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	mountStatic(r, cfg.StaticDir)
	return r
}

// mountStatic serves the dashboard frontend when its directory exists.
func mountStatic(r *gin.Engine, dir string) {
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	r.Static("/static", dir)
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err == nil {
		r.StaticFile("/", index)
	}
}
