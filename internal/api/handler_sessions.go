package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// playerSessionsLimit caps the history returned by GetPlayerSessions.
const playerSessionsLimit = 100

type sessionEntry struct {
	JoinedAt        string  `json:"joined_at"`
	LeftAt          *string `json:"left_at"`
	DurationSeconds *int64  `json:"duration_seconds"`
}

type playerSessionsResponse struct {
	Player   string         `json:"player"`
	Sessions []sessionEntry `json:"sessions"`
	Error    string         `json:"error,omitempty"`
}

// GetPlayerSessions handles GET /api/debug/sessions/:player: the raw sessions
// behind the aggregates, newest first. The player name is case-insensitive.
func (h *Handler) GetPlayerSessions(c *gin.Context) {
	resp := playerSessionsResponse{
		Player:   c.Param("player"),
		Sessions: []sessionEntry{},
	}

	sessions, err := h.store.SessionsForPlayer(c.Request.Context(), resp.Player, playerSessionsLimit)
	if err != nil {
		log.Printf("Error listing sessions for %s: %v", resp.Player, err)
		resp.Error = err.Error()
		c.JSON(http.StatusOK, resp)
		return
	}

	for _, s := range sessions {
		entry := sessionEntry{
			JoinedAt:        s.JoinedAt.UTC().Format(time.RFC3339),
			DurationSeconds: s.DurationSeconds,
		}
		if s.LeftAt != nil {
			entry.LeftAt = timestamp(*s.LeftAt)
		}
		resp.Sessions = append(resp.Sessions, entry)
	}
	c.JSON(http.StatusOK, resp)
}
