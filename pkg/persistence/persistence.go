// Package persistence provides the storage abstraction for workflows, execution
// contexts and confirmation-gated actions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// Persistence aggregates every repository a chatflow process needs.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionContextRepository() ExecutionContextRepository
	PendingActionRepository() PendingActionRepository
	CommittedActionRepository() CommittedActionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowFilter narrows a workflow listing.
type WorkflowFilter struct {
	ActiveOnly bool
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	List(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionContextRepository stores at most one execution context per conversation key.
type ExecutionContextRepository interface {
	// Get returns ErrExecutionContextNotFound when the key has no context.
	Get(ctx context.Context, key models.ConversationKey) (*models.ExecutionContext, error)

	// Create stores a new context with Version 1, failing with ErrExecutionContextExists
	// when the key already has one.
	Create(ctx context.Context, execCtx *models.ExecutionContext) error

	// Save replaces the stored context only if its version still equals execCtx.Version,
	// then increments execCtx.Version. A mismatch yields ErrStaleExecutionContext.
	Save(ctx context.Context, execCtx *models.ExecutionContext) error

	// Delete removes the context; deleting a missing key is not an error.
	Delete(ctx context.Context, key models.ConversationKey) error
}

// PendingActionRepository stores at most one pending action per conversation key.
type PendingActionRepository interface {
	// Get returns ErrPendingActionNotFound when the key has no pending action.
	Get(ctx context.Context, key models.ConversationKey) (*models.PendingAction, error)

	// Create fails with ErrPendingActionExists when the key already has one.
	Create(ctx context.Context, action *models.PendingAction) error

	// Lock sets LockedUntil when the stored action has the given id and is not locked
	// at now. It reports whether the lease was acquired.
	Lock(ctx context.Context, key models.ConversationKey, actionID string, now, until time.Time) (bool, error)

	// Unlock clears the lease of the action with the given id.
	Unlock(ctx context.Context, key models.ConversationKey, actionID string) error

	// Delete removes the action only if its id matches; it reports whether it did.
	Delete(ctx context.Context, key models.ConversationKey, actionID string) (bool, error)
}

// CommittedActionRepository is the ledger of committed side effects.
type CommittedActionRepository interface {
	Record(ctx context.Context, action *models.CommittedAction) error

	// Recent returns actions committed at or after since, newest first.
	Recent(ctx context.Context, key models.ConversationKey, since time.Time) ([]*models.CommittedAction, error)

	MarkCancelled(ctx context.Context, id string, at time.Time) error

	// Prune deletes records committed before the given time and returns how many.
	Prune(ctx context.Context, before time.Time) (int, error)
}
