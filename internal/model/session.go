package model

import "time"

// Session is one continuous period a player was online. LeftAt is nil while open.
type Session struct {
	ID              int64      `gorm:"primaryKey"`
	PlayerName      string     `gorm:"size:64;not null;index:idx_sessions_player_joined,priority:1"`
	JoinedAt        time.Time  `gorm:"not null;index;index:idx_sessions_player_joined,priority:2"`
	LeftAt          *time.Time `gorm:"index"`
	DurationSeconds *int64
}

// IsOpen reports whether the player has not been seen leaving yet.
func (s Session) IsOpen() bool {
	return s.LeftAt == nil
}
