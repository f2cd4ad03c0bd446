package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mc-dashboard-backend/internal/snapshot"
)

type statusResponse struct {
	Online      bool                 `json:"online"`
	Players     snapshot.Players     `json:"players"`
	Performance snapshot.Performance `json:"performance"`
	Stale       bool                 `json:"stale"`
	LastUpdated *string              `json:"last_updated"`
	LastError   *string              `json:"last_error"`
}

type playersResponse struct {
	Current     []string `json:"current"`
	Count       int      `json:"count"`
	Max         int      `json:"max"`
	Stale       bool     `json:"stale"`
	LastUpdated *string  `json:"last_updated"`
}

// Healthz reports that the dashboard itself is up, regardless of the game server.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetStatus handles GET /api/status. It only reads the snapshot cache.
func (h *Handler) GetStatus(c *gin.Context) {
	v := h.cache.Read()

	players := v.Players
	if players.Current == nil {
		players.Current = []string{}
	}
	var lastError *string
	if v.LastError != "" {
		lastError = &v.LastError
	}

	c.JSON(http.StatusOK, statusResponse{
		Online:      v.Online,
		Players:     players,
		Performance: v.Performance,
		Stale:       v.Stale,
		LastUpdated: timestamp(v.LastUpdated),
		LastError:   lastError,
	})
}

// GetPlayers handles GET /api/players.
func (h *Handler) GetPlayers(c *gin.Context) {
	v := h.cache.Read()

	current := v.Players.Current
	if current == nil {
		current = []string{}
	}
	c.JSON(http.StatusOK, playersResponse{
		Current:     current,
		Count:       v.Players.Count,
		Max:         v.Players.Max,
		Stale:       v.Stale,
		LastUpdated: timestamp(v.LastUpdated),
	})
}
