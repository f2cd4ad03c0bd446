package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"mc-dashboard-backend/internal/model"
)

// Store defines the interface for all session database operations.
type Store interface {
	OpenSession(ctx context.Context, name string, at time.Time) (*model.Session, error)
	CloseSession(ctx context.Context, name string, at time.Time) (*model.Session, error)
	CloseOrphans(ctx context.Context) (int64, error)
	AggregateForRange(ctx context.Context, start, end time.Time) ([]PlayerTotal, error)
	SessionsForPlayer(ctx context.Context, name string, limit int) ([]model.Session, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

// OpenSession records that name came online at the given time.
func (s *gormStore) OpenSession(ctx context.Context, name string, at time.Time) (*model.Session, error) {
	session := model.Session{PlayerName: name, JoinedAt: at.UTC()}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&model.Session{}).
			Where("player_name = ? AND left_at IS NULL", name).
			Count(&open).Error; err != nil {
			return fmt.Errorf("failed to look up open session for %s: %w", name, err)
		}
		if open > 0 {
			return fmt.Errorf("%w for %s", ErrSessionAlreadyOpen, name)
		}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to open session for %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CloseSession closes the open session of name at the given time and stores its duration.
func (s *gormStore) CloseSession(ctx context.Context, name string, at time.Time) (*model.Session, error) {
	var session model.Session
	leftAt := at.UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("player_name = ? AND left_at IS NULL", name).
			Order("joined_at DESC").
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w for %s", ErrNoOpenSession, name)
		}
		if err != nil {
			return fmt.Errorf("failed to look up open session for %s: %w", name, err)
		}

		duration := int64(leftAt.Sub(session.JoinedAt) / time.Second)
		if duration < 0 {
			duration = 0
		}
		session.LeftAt = &leftAt
		session.DurationSeconds = &duration

		if err := tx.Model(&session).Updates(map[string]any{
			"left_at":          leftAt,
			"duration_seconds": duration,
		}).Error; err != nil {
			return fmt.Errorf("failed to close session %d for %s: %w", session.ID, name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CloseOrphans closes every session left open by a previous run. The real leave
// time is unknown, so they get left_at = joined_at and a zero duration.
func (s *gormStore) CloseOrphans(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("left_at IS NULL").
		Updates(map[string]any{
			"left_at":          gorm.Expr("joined_at"),
			"duration_seconds": 0,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to close orphan sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// AggregateForRange sums, per player, the part of each session that falls in [start, end).
// Open sessions count up to now. Results are ordered by playtime, longest first.
func (s *gormStore) AggregateForRange(ctx context.Context, start, end time.Time) ([]PlayerTotal, error) {
	start, end = start.UTC(), end.UTC()

	var sessions []model.Session
	if err := s.db.WithContext(ctx).
		Where("joined_at < ? AND (left_at IS NULL OR left_at >= ?)", end, start).
		Order("joined_at").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	now := s.now().UTC()
	totals := make(map[string]*PlayerTotal)
	for _, session := range sessions {
		t, ok := totals[session.PlayerName]
		if !ok {
			t = &PlayerTotal{Name: session.PlayerName}
			totals[session.PlayerName] = t
		}
		t.SessionCount++
		t.TotalSeconds += overlapSeconds(session, start, end, now)
	}

	result := make([]PlayerTotal, 0, len(totals))
	for _, t := range totals {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalSeconds != result[j].TotalSeconds {
			return result[i].TotalSeconds > result[j].TotalSeconds
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// SessionsForPlayer returns the most recent sessions of name, newest first.
// The name is matched case-insensitively.
func (s *gormStore) SessionsForPlayer(ctx context.Context, name string, limit int) ([]model.Session, error) {
	sessions := make([]model.Session, 0)
	if err := s.db.WithContext(ctx).
		Where("LOWER(player_name) = LOWER(?)", name).
		Order("joined_at DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to query sessions for %s: %w", name, err)
	}
	return sessions, nil
}

func overlapSeconds(session model.Session, start, end, now time.Time) int64 {
	from := session.JoinedAt.UTC()
	if from.Before(start) {
		from = start
	}

	to := now
	if session.LeftAt != nil {
		to = session.LeftAt.UTC()
	}
	if to.After(end) {
		to = end
	}

	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / time.Second)
}
