package notification

import (
	"context"
	"errors"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mc-dashboard-backend/internal/model"
)

// ErrSubscriptionNotFound is returned when no subscription exists for an endpoint.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Registry stores push subscriptions and the players each one watches.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a subscription registry.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Put creates or replaces a subscription and its watched players.
func (r *Registry) Put(ctx context.Context, sub model.PushSubscription, players []string) error {
	sub.Watches = nil
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&sub).Error; err != nil {
			return err
		}

		if err := tx.Where("endpoint = ?", sub.Endpoint).Delete(&model.PlayerWatch{}).Error; err != nil {
			return err
		}

		names := normalizeNames(players)
		if len(names) == 0 {
			return nil
		}
		watches := make([]model.PlayerWatch, len(names))
		for i, name := range names {
			watches[i] = model.PlayerWatch{Endpoint: sub.Endpoint, PlayerName: name}
		}
		return tx.Create(&watches).Error
	})
}

// Get returns the subscription with its watches loaded.
func (r *Registry) Get(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := r.db.WithContext(ctx).Preload("Watches").First(&sub, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Delete removes a subscription and its watches. Deleting an unknown endpoint is not an error.
func (r *Registry) Delete(ctx context.Context, endpoint string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("endpoint = ?", endpoint).Delete(&model.PlayerWatch{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	})
}

// Watchers returns the subscriptions to notify when playerName joins: those
// watching that player and those watching nobody in particular.
func (r *Registry) Watchers(ctx context.Context, playerName string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := r.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM player_watches pw WHERE pw.endpoint = push_subscriptions.endpoint) "+
			"OR EXISTS (SELECT 1 FROM player_watches pw WHERE pw.endpoint = push_subscriptions.endpoint AND pw.player_name = ?)", playerName).
		Find(&subs).Error
	return subs, err
}

// WatchedNames lists the player names of a subscription's watches, sorted.
func WatchedNames(sub *model.PushSubscription) []string {
	names := make([]string, len(sub.Watches))
	for i, w := range sub.Watches {
		names[i] = w.PlayerName
	}
	sort.Strings(names)
	return names
}

func normalizeNames(players []string) []string {
	seen := make(map[string]struct{}, len(players))
	names := make([]string, 0, len(players))
	for _, p := range players {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}
