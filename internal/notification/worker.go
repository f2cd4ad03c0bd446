package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"mc-dashboard-backend/internal/model"
)

// jobQueueSize bounds the number of joins waiting for a worker.
const jobQueueSize = 64

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending join notifications.
type WorkerPool struct {
	size     int
	jobs     chan string
	registry *Registry
	webpush  *webpush.Options
	sender   NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, registry *Registry, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:     size,
		jobs:     make(chan string, jobQueueSize),
		registry: registry,
		webpush:  webpushOptions,
		sender:   &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case name := <-wp.jobs:
			wp.sendNotificationsForPlayer(ctx, name)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a join notification. It never blocks the caller: when the
// queue is full the notification is dropped.
func (wp *WorkerPool) Dispatch(playerName string) {
	select {
	case wp.jobs <- playerName:
	default:
		log.Printf("Notification queue full; dropping join of %s", playerName)
	}
}

func (wp *WorkerPool) sendNotificationsForPlayer(ctx context.Context, playerName string) {
	subscriptions, err := wp.registry.Watchers(ctx, playerName)
	if err != nil {
		log.Printf("Error fetching subscriptions for %s: %v", playerName, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for %s", len(subscriptions), playerName)

	message := fmt.Sprintf("%s joined the server", playerName)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.registry.Delete(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
