package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Audience selects who a notification is delivered to.
const (
	AudienceAdmin     = "ADMIN"
	AudienceBroadcast = "BROADCAST"
	AudienceUser      = "USER"
)

// Notification levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Notification is an outbound message for the notification service. The
// reporting core only publishes; persistence and fan-out happen downstream.
type Notification struct {
	ID        uuid.UUID              `json:"id"`
	Type      string                 `json:"type"`
	Level     string                 `json:"level"`
	Audience  string                 `json:"audience"`
	UserID    *int64                 `json:"userId,omitempty"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// NewNotification fills in the id and timestamp.
func NewNotification(typ, level, audience, title, message string) Notification {
	return Notification{
		ID:        uuid.New(),
		Type:      typ,
		Level:     level,
		Audience:  audience,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// Publisher publishes notifications to the notifications stream. Publishing
// is asynchronous: event handlers enqueue, the Run loop drains. A full
// buffer drops the notification rather than stalling event processing.
type Publisher struct {
	js jetstream.JetStream
	ch chan Notification
}

func NewPublisher(js jetstream.JetStream, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		js: js,
		ch: make(chan Notification, buffer),
	}
}

// Enqueue queues a notification for publishing. Returns false if the buffer
// is full and the notification was dropped.
func (p *Publisher) Enqueue(n Notification) bool {
	select {
	case p.ch <- n:
		return true
	default:
		log.Printf("WARN: notification buffer full, dropping %s (%s)", n.Type, n.ID)
		return false
	}
}

// Run drains the queue until ctx is cancelled. Publish failures are logged
// and skipped; notifications are best-effort by contract.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-p.ch:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, n); err != nil {
				log.Printf("WARN: notification publish failed id=%s: %v", n.ID, err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := fmt.Sprintf("co2.notifications.%s", n.Audience)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureNotificationStream creates the notifications stream if missing.
func EnsureNotificationStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "CO2_NOTIFICATIONS",
		Subjects:  []string{"co2.notifications.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create notifications stream: %w", err)
	}
	log.Println("INFO: ensured stream CO2_NOTIFICATIONS")
	return nil
}
