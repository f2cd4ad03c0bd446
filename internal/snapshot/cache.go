// Package snapshot holds the latest merged view of the game server.
//
// The Cache has exactly one writer (the poller) and any number of readers
// (HTTP handlers). Readers always get a complete copy of one written
// Snapshot, never a mix of two.
package snapshot

import (
	"sync"
	"time"
)

// Players is the player part of a Snapshot.
type Players struct {
	Current []string `json:"current"`
	Count   int      `json:"count"`
	Max     int      `json:"max"`
}

// Performance is the host metrics part of a Snapshot.
type Performance struct {
	TPS           float64 `json:"tps"`
	MemoryUsedMB  int     `json:"memory_used_mb"`
	MemoryTotalMB int     `json:"memory_total_mb"`
	CPUPercent    float64 `json:"cpu_percent"`
	DiskUsedGB    float64 `json:"disk_used_gb"`
	DiskTotalGB   float64 `json:"disk_total_gb"`
}

// IsZero reports whether no metrics were ever recorded.
func (p Performance) IsZero() bool {
	return p == Performance{}
}

// Snapshot is the result of the most recent poll cycle.
type Snapshot struct {
	Online      bool
	Players     Players
	Performance Performance
	LastUpdated time.Time
	LastError   string
}

// View is a Snapshot as seen by a reader at a given moment.
type View struct {
	Snapshot
	Stale bool
}

// Cache stores one Snapshot.
type Cache struct {
	mu         sync.RWMutex
	snap       Snapshot
	staleAfter time.Duration
	now        func() time.Time
}

// New creates an empty cache. A snapshot older than staleAfter is reported stale.
func New(staleAfter time.Duration) *Cache {
	return &Cache{
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Read returns a copy of the current snapshot with Stale computed now.
func (c *Cache) Read() View {
	c.mu.RLock()
	snap := c.snap
	snap.Players.Current = clonePlayers(c.snap.Players.Current)
	c.mu.RUnlock()

	return View{
		Snapshot: snap,
		Stale:    IsStale(snap.LastUpdated, c.now(), c.staleAfter),
	}
}

// Write replaces the stored snapshot.
func (c *Cache) Write(s Snapshot) {
	s.Players.Current = clonePlayers(s.Players.Current)
	s.Players.Count = len(s.Players.Current)

	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}

// PlayerSet returns the names in the current snapshot as a set.
func (c *Cache) PlayerSet() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := make(map[string]struct{}, len(c.snap.Players.Current))
	for _, name := range c.snap.Players.Current {
		set[name] = struct{}{}
	}
	return set
}

// IsStale reports whether data produced at updated is too old at now.
// Exactly staleAfter old is still fresh.
func IsStale(updated, now time.Time, staleAfter time.Duration) bool {
	if updated.IsZero() {
		return true
	}
	return now.Sub(updated) > staleAfter
}

func clonePlayers(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}
