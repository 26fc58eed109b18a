// Package protocol defines the contracts between the conversation engine and its
// external collaborators and pluggable nodes.
package protocol

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
)

// Channel is the messaging transport of a channel instance.
type Channel interface {
	// Send delivers one message to the contact of key.
	Send(ctx context.Context, key models.ConversationKey, msg models.OutboundMessage) error

	// DisplayName returns the contact profile name, or "" when unknown.
	DisplayName(ctx context.Context, key models.ConversationKey) (string, error)
}

// StatusUpdater publishes the externally visible state of a conversation.
type StatusUpdater interface {
	SetConversationStatus(ctx context.Context, key models.ConversationKey, status models.ConversationStatus) error
}
