package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/chatflow/pkg/delivery"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
)

// Inbox hands inbound messages to the dispatcher in arrival order per contact.
// Contacts do not wait on each other.
type Inbox struct {
	logger     *slog.Logger
	dispatcher *Dispatcher
	queue      *delivery.Queue
}

func NewInbox(logger *slog.Logger, dispatcher *Dispatcher, queue *delivery.Queue) *Inbox {
	return &Inbox{
		logger:     logger.With("module", "inbox"),
		dispatcher: dispatcher,
		queue:      queue,
	}
}

// Accept queues inbound for dispatch and returns immediately.
func (i *Inbox) Accept(_ context.Context, instanceID string, inbound models.InboundEvent) error {
	key := models.ConversationKey{InstanceID: instanceID, ContactID: inbound.ContactID}
	if err := key.Validate(); err != nil {
		return err
	}

	i.Submit(instanceID, inbound)

	return nil
}

// Submit queues inbound and returns the receipt of its dispatch.
func (i *Inbox) Submit(instanceID string, inbound models.InboundEvent) *delivery.Receipt {
	key := models.ConversationKey{InstanceID: instanceID, ContactID: inbound.ContactID}

	return i.queue.Enqueue(key.String(), func(ctx context.Context) error {
		return i.dispatcher.Dispatch(ctx, instanceID, inbound)
	})
}

// Consume subscribes the inbox to inbound message events on bus.
func (i *Inbox) Consume(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.InboundMessageEvent, func(_ context.Context, event any) error {
		msg, ok := event.(*events.InboundMessage)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		i.logger.Debug("Received inbound message", "instance_id", msg.InstanceID, "contact_id", msg.ContactID)
		i.Submit(msg.InstanceID, msg.Message)

		return nil
	})
}

// Forwarder publishes inbound messages for a worker to dispatch.
type Forwarder struct {
	publisher eventbus.EventPublisher
}

func NewForwarder(publisher eventbus.EventPublisher) *Forwarder {
	return &Forwarder{publisher: publisher}
}

func (f *Forwarder) Accept(ctx context.Context, instanceID string, inbound models.InboundEvent) error {
	key := models.ConversationKey{InstanceID: instanceID, ContactID: inbound.ContactID}
	if err := key.Validate(); err != nil {
		return err
	}

	err := f.publisher.Publish(ctx, events.InboundMessage{
		BaseEvent: events.NewBaseEvent(events.InboundMessageEvent, key),
		Message:   inbound,
	})
	if err != nil {
		return fmt.Errorf("failed to forward inbound message: %w", err)
	}

	return nil
}
