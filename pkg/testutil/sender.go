package testutil

import (
	"context"
	"sync"

	"github.com/dukex/chatflow/pkg/models"
)

// RecordingSender collects messages sent by nodes.
type RecordingSender struct {
	mu       sync.Mutex
	messages []models.OutboundMessage
}

func (s *RecordingSender) Send(_ context.Context, msg models.OutboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
}

// Messages returns a copy of everything sent so far.
func (s *RecordingSender) Messages() []models.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.OutboundMessage(nil), s.messages...)
}

// Texts returns the text of every message sent so far.
func (s *RecordingSender) Texts() []string {
	messages := s.Messages()
	texts := make([]string, 0, len(messages))

	for _, msg := range messages {
		texts = append(texts, msg.Text)
	}

	return texts
}
