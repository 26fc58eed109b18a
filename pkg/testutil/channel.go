package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// SentMessage is one message delivered through a RecordingChannel.
type SentMessage struct {
	Key     models.ConversationKey
	Message models.OutboundMessage
	At      time.Time
}

// RecordingChannel is an in-memory messaging channel.
type RecordingChannel struct {
	mu       sync.Mutex
	sent     []SentMessage
	statuses map[models.ConversationKey][]models.ConversationStatus

	// Names answers DisplayName by contact id.
	Names map[string]string
	// Fail, when set, decides whether a send fails.
	Fail func(msg models.OutboundMessage) error
	// Delay is slept before each send is recorded.
	Delay time.Duration
}

func (c *RecordingChannel) Send(ctx context.Context, key models.ConversationKey, msg models.OutboundMessage) error {
	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if c.Fail != nil {
		if err := c.Fail(msg); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, SentMessage{Key: key, Message: msg, At: time.Now()})

	return nil
}

func (c *RecordingChannel) DisplayName(_ context.Context, key models.ConversationKey) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.Names[key.ContactID], nil
}

func (c *RecordingChannel) SetConversationStatus(_ context.Context, key models.ConversationKey, status models.ConversationStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.statuses == nil {
		c.statuses = map[models.ConversationKey][]models.ConversationStatus{}
	}

	c.statuses[key] = append(c.statuses[key], status)

	return nil
}

// Sent returns every delivered message in delivery order.
func (c *RecordingChannel) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]SentMessage(nil), c.sent...)
}

// Texts returns the texts delivered to key in order.
func (c *RecordingChannel) Texts(key models.ConversationKey) []string {
	var texts []string

	for _, sent := range c.Sent() {
		if sent.Key == key {
			texts = append(texts, sent.Message.Text)
		}
	}

	return texts
}

func (c *RecordingChannel) Statuses(key models.ConversationKey) []models.ConversationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]models.ConversationStatus(nil), c.statuses[key]...)
}
