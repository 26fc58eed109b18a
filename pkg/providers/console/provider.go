// Package console is a local messaging channel and committer that writes to a
// terminal, for trying workflows without a messaging platform.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

var ErrUnknownReference = errors.New("unknown action reference")

type Provider struct {
	logger *slog.Logger
	out    io.Writer

	mu        sync.Mutex
	names     map[string]string
	committed map[string]string
	cancelled map[string]bool
}

func New(logger *slog.Logger, out io.Writer) *Provider {
	return &Provider{
		logger:    logger.With("module", "console_provider"),
		out:       out,
		names:     make(map[string]string),
		committed: make(map[string]string),
		cancelled: make(map[string]bool),
	}
}

// SetName sets the display name reported for contactID.
func (p *Provider) SetName(contactID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.names[contactID] = name
}

func (p *Provider) Send(_ context.Context, key models.ConversationKey, msg models.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := fmt.Fprintf(p.out, "[%s] > %s\n", key.ContactID, msg.Text)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if msg.Media != nil {
		_, err = fmt.Fprintf(p.out, "[%s]   %s: %s\n", key.ContactID, msg.Media.Type, msg.Media.URL)
		if err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}

	for _, choice := range msg.Choices {
		_, err = fmt.Fprintf(p.out, "[%s]   (%s) %s\n", key.ContactID, choice.ID, choice.Title)
		if err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}

	return nil
}

func (p *Provider) DisplayName(_ context.Context, key models.ConversationKey) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.names[key.ContactID], nil
}

func (p *Provider) SetConversationStatus(ctx context.Context, key models.ConversationKey, status models.ConversationStatus) error {
	p.logger.InfoContext(ctx, "Conversation status changed", "contact_id", key.ContactID, "status", status)

	return nil
}

// Commit returns the same reference for the same idempotency key.
func (p *Provider) Commit(ctx context.Context, req protocol.CommitRequest) (protocol.CommitResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref, ok := p.committed[req.IdempotencyKey]
	if !ok {
		ref = "console-" + req.IdempotencyKey
		p.committed[req.IdempotencyKey] = ref

		p.logger.InfoContext(ctx, "Committed action",
			"contact_id", req.Key.ContactID,
			"external_ref", ref,
			"summary", req.Payload.Summary())
	}

	return protocol.CommitResult{ExternalRef: ref}, nil
}

func (p *Provider) Cancel(ctx context.Context, externalRef string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	known := false

	for _, ref := range p.committed {
		if ref == externalRef {
			known = true

			break
		}
	}

	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownReference, externalRef)
	}

	p.cancelled[externalRef] = true
	p.logger.InfoContext(ctx, "Cancelled action", "external_ref", externalRef)

	return nil
}

// Cancelled reports whether externalRef was cancelled.
func (p *Provider) Cancelled(externalRef string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cancelled[externalRef]
}
