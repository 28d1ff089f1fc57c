package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted on the host event bus.
const (
	EventMessageReceived = "message.received"
	EventWebhookURL      = "webhook.url"
	EventNotification    = "notification"
)

// Persistent notification IDs. Reusing an ID replaces the notification on
// the host rather than stacking a new one.
const (
	NotificationError      = "voipms_sms_error"
	NotificationWebhookURL = "voipms_sms_webhook_url"
)

// Event is one gateway occurrence published to the host platform.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	DID        string            `json:"did"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// NewEvent creates an Event with a generated ID and the current time.
func NewEvent(eventType, did string, data map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		DID:        did,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// EventPublisher publishes gateway events to the host event bus.
type EventPublisher interface {
	// Publish delivers a single event. Implementations must respect ctx.
	Publish(ctx context.Context, ev Event) error
}

// EventConsumer consumes gateway events from the host event bus.
type EventConsumer interface {
	// Consume starts delivery of events; each is passed to the handler.
	// Blocks until ctx is cancelled or a fatal error occurs.
	Consume(ctx context.Context, handler func(ctx context.Context, ev Event) error) error
}
