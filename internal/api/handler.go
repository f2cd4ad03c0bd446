package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"mc-dashboard-backend/internal/notification"
	"mc-dashboard-backend/internal/snapshot"
	"mc-dashboard-backend/internal/stats"
	"mc-dashboard-backend/internal/store"
)

// leaderboardSize is the number of entries in each leaderboard.
const leaderboardSize = 10

// LeaderSource supplies the blocks and distance leaderboards.
type LeaderSource interface {
	Leaders(n int) stats.Leaders
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	cache    *snapshot.Cache
	store    store.Store
	stats    LeaderSource
	registry *notification.Registry
	webpush  *webpush.Options
	loc      *time.Location
	now      func() time.Time
}

// NewHandler creates a new API handler. Calendar days for the daily
// aggregates are computed in loc.
func NewHandler(cache *snapshot.Cache, s store.Store, leaders LeaderSource,
	registry *notification.Registry, webpushOptions *webpush.Options, loc *time.Location) *Handler {
	return &Handler{
		cache:    cache,
		store:    s,
		stats:    leaders,
		registry: registry,
		webpush:  webpushOptions,
		loc:      loc,
		now:      time.Now,
	}
}

// timestamp renders t as ISO-8601 UTC, or nil for the zero time.
func timestamp(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
