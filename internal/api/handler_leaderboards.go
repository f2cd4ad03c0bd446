package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mc-dashboard-backend/internal/format"
	"mc-dashboard-backend/internal/mw"
	"mc-dashboard-backend/internal/stats"
)

type leaderEntry struct {
	Name      string `json:"name"`
	Formatted string `json:"formatted"`
}

type leaderboardsResponse struct {
	Playtime    []leaderEntry `json:"playtime"`
	Blocks      []leaderEntry `json:"blocks"`
	Distance    []leaderEntry `json:"distance"`
	LastUpdated *string       `json:"last_updated"`
	Stale       bool          `json:"stale"`
	Error       string        `json:"error,omitempty"`
}

// GetLeaderboards handles GET /api/leaderboards. Playtime is the all-time
// session total; blocks and distance come from the stats collector.
func (h *Handler) GetLeaderboards(c *gin.Context) {
	resp := leaderboardsResponse{
		Playtime: []leaderEntry{},
		Blocks:   []leaderEntry{},
		Distance: []leaderEntry{},
		Stale:    true,
	}

	totals, err := h.store.AggregateForRange(c.Request.Context(), time.Time{}, h.now().UTC())
	if err != nil {
		log.Printf("Error aggregating all-time playtime: %v", err)
		resp.Error = err.Error()
		mw.SkipCache(c)
	}
	for _, t := range totals {
		if len(resp.Playtime) == leaderboardSize {
			break
		}
		if t.TotalSeconds <= 0 {
			continue
		}
		resp.Playtime = append(resp.Playtime, leaderEntry{Name: t.Name, Formatted: format.Duration(t.TotalSeconds)})
	}

	if h.stats != nil {
		leaders := h.stats.Leaders(leaderboardSize)
		resp.Blocks = entries(leaders.Blocks, format.Count)
		resp.Distance = entries(leaders.Distance, format.Distance)
		resp.LastUpdated = timestamp(leaders.LastUpdated)
		resp.Stale = leaders.Stale
	}

	c.JSON(http.StatusOK, resp)
}

func entries(ranked []stats.Ranked, formatValue func(int64) string) []leaderEntry {
	out := make([]leaderEntry, len(ranked))
	for i, r := range ranked {
		out[i] = leaderEntry{Name: r.Name, Formatted: formatValue(r.Value)}
	}
	return out
}
