package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/otelhelper"
)

type WatermillEventBus struct {
	logger     *slog.Logger
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		logger:        logger.With("module", "event_bus"),
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
	}

	id := event.GetID()
	if id == "" {
		id = eb.GenerateID()
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, event.Key().String())
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	err = eb.publisher.Publish(events.Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.GetType(), err)
	}

	otelhelper.RecordEvent(ctx, "event_published", id, string(event.GetType()))

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		msg.Ack()

		return
	}

	event := newEvent(eventType)
	if event == nil {
		eb.logger.Warn("Dropping event of unknown type", "event_type", eventType, "message_id", msg.UUID)
		msg.Ack()

		return
	}

	err := json.Unmarshal(msg.Payload, event)
	if err != nil {
		eb.logger.Error("Dropping undecodable event", "event_type", eventType, "error", err)
		msg.Ack()

		return
	}

	err = handler(ctx, event)
	if err != nil {
		eb.logger.Error("Event handler failed", "event_type", eventType, "error", err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.InboundMessageEvent:
		return &events.InboundMessage{}
	case events.ConversationStartedEvent:
		return &events.ConversationStarted{}
	case events.ConversationPausedEvent:
		return &events.ConversationPaused{}
	case events.ConversationEndedEvent:
		return &events.ConversationEnded{}
	case events.ActionProposedEvent:
		return &events.ActionProposed{}
	case events.ActionCommittedEvent:
		return &events.ActionCommitted{}
	case events.ActionCancelledEvent:
		return &events.ActionCancelled{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
