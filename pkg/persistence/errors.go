package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionContextNotFound indicates the conversation has no execution context.
	ErrExecutionContextNotFound = errors.New("execution context not found")

	// ErrExecutionContextExists indicates a context already exists for the conversation.
	ErrExecutionContextExists = errors.New("execution context already exists")

	// ErrStaleExecutionContext indicates the context changed since it was read.
	ErrStaleExecutionContext = errors.New("execution context was modified concurrently")

	// ErrPendingActionNotFound indicates the conversation has no pending action.
	ErrPendingActionNotFound = errors.New("pending action not found")

	// ErrPendingActionExists indicates a pending action already exists for the conversation.
	ErrPendingActionExists = errors.New("pending action already exists")

	// ErrCommittedActionNotFound indicates no ledger record has the given id.
	ErrCommittedActionNotFound = errors.New("committed action not found")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ConversationError wraps errors of keyed conversation state (contexts and actions).
type ConversationError struct {
	Op         string
	InstanceID string
	ContactID  string
	Err        error
}

func (e *ConversationError) Error() string {
	return fmt.Sprintf("%s operation failed for conversation %s:%s: %v", e.Op, e.InstanceID, e.ContactID, e.Err)
}

func (e *ConversationError) Unwrap() error {
	return e.Err
}

// NewConversationError creates a new conversation error with context.
func NewConversationError(op, instanceID, contactID string, err error) *ConversationError {
	return &ConversationError{
		Op:         op,
		InstanceID: instanceID,
		ContactID:  contactID,
		Err:        err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionContextNotFound checks if an error indicates a missing execution context.
func IsExecutionContextNotFound(err error) bool {
	return errors.Is(err, ErrExecutionContextNotFound)
}

// IsPendingActionNotFound checks if an error indicates a missing pending action.
func IsPendingActionNotFound(err error) bool {
	return errors.Is(err, ErrPendingActionNotFound)
}
