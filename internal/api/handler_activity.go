package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mc-dashboard-backend/internal/format"
	"mc-dashboard-backend/internal/mw"
)

// zoneLabels names the US zones the way the dashboard shows them.
var zoneLabels = map[string]string{
	"America/Los_Angeles": "Pacific",
	"America/Denver":      "Mountain",
	"America/Phoenix":     "Mountain",
	"America/Chicago":     "Central",
	"America/New_York":    "Eastern",
}

// zoneLabel renders loc as "America/Los_Angeles (Pacific)". Zones without a
// common name keep the bare IANA name.
func zoneLabel(loc *time.Location) string {
	name := loc.String()
	if label, ok := zoneLabels[name]; ok {
		return name + " (" + label + ")"
	}
	return name
}

type dayPlayer struct {
	Name                   string `json:"name"`
	TotalPlaytimeSeconds   int64  `json:"total_playtime_seconds"`
	TotalPlaytimeFormatted string `json:"total_playtime_formatted"`
	SessionCount           int    `json:"session_count"`
	CurrentlyOnline        bool   `json:"currently_online"`
}

type daySummary struct {
	UniquePlayers        int   `json:"unique_players"`
	TotalPlaytimeSeconds int64 `json:"total_playtime_seconds"`
	TotalSessions        int   `json:"total_sessions"`
}

type dayResponse struct {
	Date     string      `json:"date"`
	Timezone string      `json:"timezone"`
	Players  []dayPlayer `json:"players"`
	Summary  daySummary  `json:"summary"`
	Error    string      `json:"error,omitempty"`
}

// GetToday handles GET /api/today: playtime since local midnight.
func (h *Handler) GetToday(c *gin.Context) {
	h.dayActivity(c, 0)
}

// GetYesterday handles GET /api/yesterday: the previous full local day.
func (h *Handler) GetYesterday(c *gin.Context) {
	h.dayActivity(c, -1)
}

func (h *Handler) dayActivity(c *gin.Context, offsetDays int) {
	local := h.now().In(h.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, h.loc).AddDate(0, 0, offsetDays)
	end := start.AddDate(0, 0, 1)

	resp := dayResponse{
		Date:     start.Format("2006-01-02"),
		Timezone: zoneLabel(h.loc),
		Players:  []dayPlayer{},
	}

	totals, err := h.store.AggregateForRange(c.Request.Context(), start.UTC(), end.UTC())
	if err != nil {
		log.Printf("Error aggregating sessions for %s: %v", resp.Date, err)
		resp.Error = err.Error()
		mw.SkipCache(c)
		c.JSON(http.StatusOK, resp)
		return
	}

	// Online status comes from the live snapshot, not from open sessions.
	online := h.cache.PlayerSet()
	for _, t := range totals {
		_, isOnline := online[t.Name]
		resp.Players = append(resp.Players, dayPlayer{
			Name:                   t.Name,
			TotalPlaytimeSeconds:   t.TotalSeconds,
			TotalPlaytimeFormatted: format.Duration(t.TotalSeconds),
			SessionCount:           t.SessionCount,
			CurrentlyOnline:        isOnline,
		})
		resp.Summary.TotalPlaytimeSeconds += t.TotalSeconds
		resp.Summary.TotalSessions += t.SessionCount
	}
	resp.Summary.UniquePlayers = len(resp.Players)

	c.JSON(http.StatusOK, resp)
}
