// Package poller runs the background poll cycle: fetch players and host
// metrics, merge them into a snapshot, record join/leave sessions and publish
// the snapshot to the cache.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"mc-dashboard-backend/config"
	"mc-dashboard-backend/internal/model"
	"mc-dashboard-backend/internal/parse"
	"mc-dashboard-backend/internal/remote"
	"mc-dashboard-backend/internal/snapshot"
	"mc-dashboard-backend/internal/store"
)

// PlayerSource is the command-protocol client.
type PlayerSource interface {
	FetchPlayers(ctx context.Context) (*parse.PlayerList, error)
}

// MetricsSource is the remote-shell client.
type MetricsSource interface {
	FetchMetrics(ctx context.Context) (*remote.Metrics, error)
}

// SessionRecorder persists join and leave transitions.
type SessionRecorder interface {
	OpenSession(ctx context.Context, name string, at time.Time) (*model.Session, error)
	CloseSession(ctx context.Context, name string, at time.Time) (*model.Session, error)
}

// Notifier is told about every player whose session was opened.
type Notifier interface {
	Dispatch(playerName string)
}

// Outcome describes how a poll cycle ended.
type Outcome int

const (
	// OutcomeSuccess means both sources answered and every write succeeded.
	OutcomeSuccess Outcome = iota
	// OutcomePartial means at least one source or write failed, but not both sources.
	OutcomePartial
	// OutcomeFailed means both sources failed.
	OutcomeFailed
	// OutcomeAborted means the cycle stopped early and published nothing.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial-failure"
	case OutcomeFailed:
		return "total-failure"
	case OutcomeAborted:
		return "aborted"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Service is the single writer of the snapshot cache and the session table.
type Service struct {
	interval time.Duration
	players  PlayerSource
	metrics  MetricsSource
	sessions SessionRecorder
	cache    *snapshot.Cache
	notifier Notifier
	now      func() time.Time

	// Names seen by the last successful player fetch. Owned by the poll loop.
	previous map[string]struct{}
}

// NewService creates a poller. notifier may be nil.
func NewService(cfg config.PollerConfig, players PlayerSource, metrics MetricsSource,
	sessions SessionRecorder, cache *snapshot.Cache, notifier Notifier) *Service {
	return &Service{
		interval: cfg.Interval,
		players:  players,
		metrics:  metrics,
		sessions: sessions,
		cache:    cache,
		notifier: notifier,
		now:      time.Now,
		previous: make(map[string]struct{}),
	}
}

// Run polls immediately and then once per interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Printf("Starting poller, interval %s", s.interval)

	s.PollOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Poller shutting down.")
			return
		case <-timer.C:
			s.PollOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// PollOnce performs a single poll cycle. It never panics or returns an error:
// failures end up in the snapshot's LastError and in the log.
func (s *Service) PollOnce(ctx context.Context) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Poll cycle aborted: %v", r)
			outcome = OutcomeAborted
		}
	}()

	now := s.now().UTC()
	prev := s.cache.Read().Snapshot

	// Start from the last known values so a failing source never blanks them.
	next := snapshot.Snapshot{
		Online:      false,
		Players:     prev.Players,
		Performance: prev.Performance,
		LastUpdated: now,
	}
	var failures []string

	list, playersErr := s.players.FetchPlayers(ctx)
	if playersErr != nil {
		log.Printf("Player fetch failed: %v", playersErr)
		failures = append(failures, describe("rcon", playersErr))
	} else {
		next.Online = true
		next.Players = snapshot.Players{Current: list.Names, Count: len(list.Names), Max: list.Max}
	}

	metrics, metricsErr := s.metrics.FetchMetrics(ctx)
	if metricsErr != nil {
		log.Printf("Metrics fetch failed: %v", metricsErr)
		failures = append(failures, describe("ssh", metricsErr))
		if next.Performance.IsZero() {
			next.Performance = toPerformance(remote.FallbackMetrics())
		}
	} else {
		next.Performance = toPerformance(*metrics)
	}

	if ctx.Err() != nil {
		log.Println("Poll cycle abandoned: shutting down.")
		return OutcomeAborted
	}

	// Only a confirmed player list can tell who joined or left.
	if playersErr == nil {
		failures = append(failures, s.recordTransitions(ctx, list.Names, now)...)
	}

	next.LastError = strings.Join(failures, "; ")
	s.cache.Write(next)

	switch {
	case playersErr != nil && metricsErr != nil:
		outcome = OutcomeFailed
	case len(failures) > 0:
		outcome = OutcomePartial
	default:
		outcome = OutcomeSuccess
	}

	status := "offline"
	if next.Online {
		status = "online"
	}
	log.Printf("Cache updated (%s): server %s, %d/%d players", outcome, status, len(next.Players.Current), next.Players.Max)
	return outcome
}

// recordTransitions opens sessions for players who appeared and closes sessions
// for players who disappeared since the previous successful fetch. It returns
// one message per failed write. A transition whose write failed is left out of
// the new previous set so the next confirmed list retries it.
func (s *Service) recordTransitions(ctx context.Context, names []string, at time.Time) []string {
	current := make(map[string]struct{}, len(names))
	for _, name := range names {
		current[name] = struct{}{}
	}
	joined, left := diff(s.previous, current)

	next := make(map[string]struct{}, len(current))
	for name := range s.previous {
		next[name] = struct{}{}
	}

	var failures []string
	for _, name := range joined {
		_, err := s.sessions.OpenSession(ctx, name, at)
		switch {
		case err == nil:
			log.Printf("Player joined: %s", name)
			if s.notifier != nil {
				s.notifier.Dispatch(name)
			}
		case errors.Is(err, store.ErrSessionAlreadyOpen):
			// The store already agrees the player is online.
			log.Printf("Session for %s already open", name)
		default:
			log.Printf("Error opening session for %s: %v", name, err)
			failures = append(failures, fmt.Sprintf("%s: %v", ClassPersistence, err))
			continue
		}
		next[name] = struct{}{}
	}
	for _, name := range left {
		session, err := s.sessions.CloseSession(ctx, name, at)
		switch {
		case err == nil:
			if session.DurationSeconds != nil {
				log.Printf("Player left: %s after %ds", name, *session.DurationSeconds)
			} else {
				log.Printf("Player left: %s", name)
			}
		case errors.Is(err, store.ErrNoOpenSession):
			log.Printf("No open session to close for %s", name)
		default:
			log.Printf("Error closing session for %s: %v", name, err)
			failures = append(failures, fmt.Sprintf("%s: %v", ClassPersistence, err))
			continue
		}
		delete(next, name)
	}

	s.previous = next
	return failures
}

// diff returns the sorted names only in current (joined) and only in previous (left).
func diff(previous, current map[string]struct{}) (joined, left []string) {
	for name := range current {
		if _, ok := previous[name]; !ok {
			joined = append(joined, name)
		}
	}
	for name := range previous {
		if _, ok := current[name]; !ok {
			left = append(left, name)
		}
	}
	sort.Strings(joined)
	sort.Strings(left)
	return joined, left
}

func toPerformance(m remote.Metrics) snapshot.Performance {
	return snapshot.Performance{
		TPS:           m.TPS,
		MemoryUsedMB:  m.MemoryUsedMB,
		MemoryTotalMB: m.MemoryTotalMB,
		CPUPercent:    m.CPUPercent,
		DiskUsedGB:    m.DiskUsedGB,
		DiskTotalGB:   m.DiskTotalGB,
	}
}
