package protocol

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
)

// CommitRequest asks the committer to perform a confirmed action. Implementations
// must treat IdempotencyKey as the identity of the action so retries never
// produce a second side effect.
type CommitRequest struct {
	IdempotencyKey string
	Key            models.ConversationKey
	OwnerID        string
	Payload        models.ActionPayload
}

// CommitResult identifies the side effect in the external system.
type CommitResult struct {
	ExternalRef string
}

// Committer performs and reverts confirmation-gated side effects, e.g. bookings.
type Committer interface {
	Commit(ctx context.Context, req CommitRequest) (CommitResult, error)
	Cancel(ctx context.Context, externalRef string) error
}

// Proposer registers an action that needs the contact's confirmation.
type Proposer interface {
	Propose(ctx context.Context, key models.ConversationKey, payload models.ActionPayload, ownerID string) (*models.PendingAction, error)
}
