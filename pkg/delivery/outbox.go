package delivery

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// Outbox sends messages to a channel through the queue, one lane per conversation.
type Outbox struct {
	queue   *Queue
	channel protocol.Channel
}

func NewOutbox(queue *Queue, channel protocol.Channel) *Outbox {
	return &Outbox{queue: queue, channel: channel}
}

// Send enqueues msg for the contact of key.
func (o *Outbox) Send(key models.ConversationKey, msg models.OutboundMessage) *Receipt {
	return o.queue.Enqueue(key.String(), func(ctx context.Context) error {
		return o.channel.Send(ctx, key, msg)
	})
}

// WaitAll waits for every receipt and returns the first task error.
func WaitAll(ctx context.Context, receipts []*Receipt) error {
	var first error

	for _, receipt := range receipts {
		err := receipt.Wait(ctx)
		if err != nil && first == nil {
			first = err
		}
	}

	return first
}
