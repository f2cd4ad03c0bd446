// Package stats reads the game's per-player statistic files over SSH and
// keeps the totals used by the blocks and distance leaderboards.
package stats

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"mc-dashboard-backend/config"
	"mc-dashboard-backend/internal/remote"
)

// PlayerStats holds the totals read from one player's statistics file.
type PlayerStats struct {
	BlocksMined int64
	DistanceCM  int64
}

// Ranked is one leaderboard position.
type Ranked struct {
	Name  string
	Value int64
}

// Leaders is a read-only view of the ranked totals.
type Leaders struct {
	Blocks      []Ranked
	Distance    []Ranked
	LastUpdated time.Time
	Stale       bool
}

// Collector caches player statistics between refreshes.
type Collector struct {
	connector remote.Connector
	serverDir string
	now       func() time.Time

	mu          sync.RWMutex
	players     map[string]PlayerStats
	lastUpdated time.Time
	stale       bool
}

// NewCollector creates a stats collector. Data is stale until the first refresh.
func NewCollector(connector remote.Connector, cfg config.SSHConfig) *Collector {
	return &Collector{
		connector: connector,
		serverDir: strings.TrimRight(cfg.ServerDir, "/"),
		now:       time.Now,
		players:   make(map[string]PlayerStats),
		stale:     true,
	}
}

// Run refreshes after initialDelay and then once per interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, interval, initialDelay time.Duration) {
	log.Printf("Starting stats collector, interval %s", interval)

	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stats collector shutting down.")
			return
		case <-timer.C:
			if err := c.Refresh(ctx); err != nil {
				log.Printf("Stats refresh failed: %v", err)
			}
			timer.Reset(interval)
		}
	}
}

// Refresh rereads the name to UUID mapping and every player's statistics file.
// On failure the previous totals are kept and marked stale.
func (c *Collector) Refresh(ctx context.Context) error {
	players, err := c.fetch(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stale = true
		return err
	}
	c.players = players
	c.lastUpdated = c.now().UTC()
	c.stale = false
	log.Printf("Stats refreshed: %d players", len(players))
	return nil
}

func (c *Collector) fetch(ctx context.Context) (map[string]PlayerStats, error) {
	shell, err := c.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer shell.Close()

	out, err := shell.Run("cat " + remote.ShellQuote(c.serverDir+"/usercache.json"))
	if err != nil {
		return nil, fmt.Errorf("read usercache: %w", err)
	}
	uuids, err := parseUserCache(out)
	if err != nil {
		return nil, err
	}

	players := make(map[string]PlayerStats, len(uuids))
	for name, uuid := range uuids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		path := fmt.Sprintf("%s/world/stats/%s.json", c.serverDir, uuid)
		out, err := shell.Run(fmt.Sprintf("cat %s 2>/dev/null", remote.ShellQuote(path)))
		if err != nil || strings.TrimSpace(out) == "" {
			// Cached players who never joined this world have no file.
			continue
		}
		st, err := parsePlayerStats(out)
		if err != nil {
			log.Printf("Warning: skipping stats for %s (%s): %v", name, uuid, err)
			continue
		}
		players[name] = st
	}
	return players, nil
}

// Leaders returns the top n players by blocks mined and by distance travelled.
func (c *Collector) Leaders(n int) Leaders {
	c.mu.RLock()
	defer c.mu.RUnlock()

	blocks := make([]Ranked, 0, len(c.players))
	distance := make([]Ranked, 0, len(c.players))
	for name, st := range c.players {
		blocks = append(blocks, Ranked{Name: name, Value: st.BlocksMined})
		distance = append(distance, Ranked{Name: name, Value: st.DistanceCM})
	}
	return Leaders{
		Blocks:      top(blocks, n),
		Distance:    top(distance, n),
		LastUpdated: c.lastUpdated,
		Stale:       c.stale,
	}
}

func top(r []Ranked, n int) []Ranked {
	sort.Slice(r, func(i, j int) bool {
		if r[i].Value != r[j].Value {
			return r[i].Value > r[j].Value
		}
		return r[i].Name < r[j].Name
	})
	if len(r) > n {
		r = r[:n]
	}
	return r
}
