// Package eventbus publishes and consumes chatflow events over watermill.
package eventbus

import (
	"context"

	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
)

// Event is anything embedding events.BaseEvent.
type Event interface {
	GetID() string
	GetType() events.EventType
	Key() models.ConversationKey
}

type EventPublisher interface {
	// Publish sends event partitioned by its conversation key, so the events of
	// one contact keep their order on partitioned transports. The event id
	// becomes the message id, letting consumers drop redelivered copies.
	Publish(ctx context.Context, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
