package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations. No watches means notify on every join.
	Watches []PlayerWatch `gorm:"foreignKey:Endpoint;references:Endpoint;constraint:OnDelete:CASCADE"`
}

// PlayerWatch subscribes an endpoint to join notifications for one player.
type PlayerWatch struct {
	Endpoint   string `gorm:"primaryKey"`
	PlayerName string `gorm:"primaryKey;size:64"`
}
