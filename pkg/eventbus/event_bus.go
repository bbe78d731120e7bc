// Package eventbus mirrors workflow audit events onto a message broker so
// external consumers can follow execution without polling the event log.
package eventbus

import (
	"context"

	"github.com/skein-dev/skein/pkg/events"
)

// Event is anything publishable on the bus.
type Event interface {
	GetType() events.EventType
}

// EventHandler consumes one decoded event.
type EventHandler func(ctx context.Context, event *events.WorkflowEvent) error

// EventPublisher publishes workflow events keyed by instance id.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber registers handlers and starts consuming.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context) error
}

// EventBus combines publishing and subscribing over one transport.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
