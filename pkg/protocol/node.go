package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// OutcomeKind tells the interpreter what follows a node.
type OutcomeKind int

const (
	// OutcomeContinue follows the edge selected by Outcome.Handle.
	OutcomeContinue OutcomeKind = iota
	// OutcomePause persists the context and waits for the next inbound message.
	OutcomePause
	// OutcomeTerminate ends the conversation run and discards the context.
	OutcomeTerminate
)

// Outcome is the result of executing or resuming a node.
type Outcome struct {
	Kind   OutcomeKind
	Handle string
}

// Continue follows the edge labelled handle; "" selects the unconditional edge.
func Continue(handle string) Outcome {
	return Outcome{Kind: OutcomeContinue, Handle: handle}
}

func Pause() Outcome {
	return Outcome{Kind: OutcomePause}
}

func Terminate() Outcome {
	return Outcome{Kind: OutcomeTerminate}
}

// Sender enqueues an outbound message for the conversation being executed.
type Sender interface {
	Send(ctx context.Context, msg models.OutboundMessage)
}

// Env exposes the collaborators a node may use while it runs.
type Env struct {
	Key       models.ConversationKey
	Sender    Sender
	Generator Generator
	Status    StatusUpdater
	Proposer  Proposer
	Logger    *slog.Logger

	// Sleep overrides the blocking suspension used by wait nodes.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Wait suspends the current run for d, returning early when ctx ends.
func (e *Env) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Node is one compiled step of a workflow graph.
type Node interface {
	ID() string
	Type() models.NodeType
	Execute(ctx context.Context, env *Env, execCtx *models.ExecutionContext) (Outcome, error)
}

// Resumer is implemented by nodes that pause for a reply. Resume is called with
// the reply instead of Execute when the context is awaiting an answer.
type Resumer interface {
	Resume(ctx context.Context, env *Env, execCtx *models.ExecutionContext, reply string) (Outcome, error)
}

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create decodes the node payload into a ready to run node.
	Create(ctx context.Context, id string, data map[string]any) (Node, error)

	// ID returns the node type this factory builds.
	ID() string

	Name() string

	Description() string

	// Schema returns the JSON schema the node payload must satisfy.
	Schema() map[string]any
}
