package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/delivery"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

const (
	DefaultMaxSteps     = 100
	DefaultHistoryLimit = 20
)

// RunState is how a run ended.
type RunState string

const (
	// RunPaused means the context waits for the next inbound message and must be saved.
	RunPaused RunState = "paused"
	// RunFinished means the graph ran out of edges.
	RunFinished RunState = "finished"
	// RunTerminated means a handoff or close node ended the conversation.
	RunTerminated RunState = "terminated"
	// RunAborted means the run could not continue: missing node, loop guard or node failure.
	RunAborted RunState = "aborted"
)

// RunResult carries the context after a run. Only a paused context is kept.
type RunResult struct {
	Context *models.ExecutionContext
	State   RunState
	Steps   int
	Reason  string
}

// Persist reports whether the caller should store the context.
func (r *RunResult) Persist() bool {
	return r.State == RunPaused
}

type Option func(*Executor)

func WithMaxSteps(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithStrictHandles ends the workflow when a handle has no matching edge
// instead of following the first edge.
func WithStrictHandles(strict bool) Option {
	return func(e *Executor) {
		e.strict = strict
	}
}

func WithHistoryLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

func WithGenerator(generator protocol.Generator) Option {
	return func(e *Executor) {
		e.generator = generator
	}
}

func WithStatusUpdater(status protocol.StatusUpdater) Option {
	return func(e *Executor) {
		e.status = status
	}
}

func WithProposer(proposer protocol.Proposer) Option {
	return func(e *Executor) {
		e.proposer = proposer
	}
}

// WithSleep replaces the timer used by wait nodes.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// Executor walks compiled graphs for one conversation turn at a time.
type Executor struct {
	logger *slog.Logger
	outbox *delivery.Outbox

	generator protocol.Generator
	status    protocol.StatusUpdater
	proposer  protocol.Proposer
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	maxSteps     int
	historyLimit int
	strict       bool
}

func NewExecutor(logger *slog.Logger, outbox *delivery.Outbox, opts ...Option) *Executor {
	e := &Executor{
		logger:       logger.With("module", "workflow_executor"),
		outbox:       outbox,
		now:          time.Now,
		maxSteps:     DefaultMaxSteps,
		historyLimit: DefaultHistoryLimit,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run executes nodes from execCtx.CurrentNodeID until the graph pauses or ends.
// reply is the inbound text of this turn, nil when the run was not started by
// a message. The passed context is not modified. A node failure aborts the run
// and is returned alongside the result.
func (e *Executor) Run(ctx context.Context, graph *Graph, execCtx *models.ExecutionContext, reply *string) (*RunResult, error) {
	current := execCtx.Clone()
	now := e.now().UTC()

	logger := e.logger.With(
		"workflow_id", graph.Workflow().ID,
		"instance_id", current.InstanceID,
		"contact_id", current.ContactID,
	)

	if reply != nil {
		text := *reply
		current.LastReply = &text
		current.Remember(models.TurnRoleUser, text, now, e.historyLimit)
	}

	sender := &runSender{
		outbox:       e.outbox,
		key:          current.Key(),
		execCtx:      current,
		historyLimit: e.historyLimit,
		now:          e.now,
	}

	env := &protocol.Env{
		Key:       current.Key(),
		Sender:    sender,
		Generator: e.generator,
		Status:    e.status,
		Proposer:  e.proposer,
		Logger:    logger,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sender.flush(ctx, logger)

			if e.sleep != nil {
				return e.sleep(ctx, d)
			}

			return (&protocol.Env{}).Wait(ctx, d)
		},
	}

	result, err := e.walk(ctx, graph, env, current, reply, logger)

	sender.flush(ctx, logger)

	current.UpdatedAt = e.now().UTC()

	logger.Info("Workflow run completed",
		"state", result.State,
		"steps", result.Steps,
		"node_id", current.CurrentNodeID,
		"reason", result.Reason)

	return result, err
}

func (e *Executor) walk(
	ctx context.Context,
	graph *Graph,
	env *protocol.Env,
	current *models.ExecutionContext,
	reply *string,
	logger *slog.Logger,
) (*RunResult, error) {
	result := &RunResult{Context: current}

	for {
		node, ok := graph.Node(current.CurrentNodeID)
		if !ok {
			result.State = RunAborted
			result.Reason = fmt.Sprintf("node %q not found", current.CurrentNodeID)

			return result, nil
		}

		if result.Steps >= e.maxSteps {
			result.State = RunAborted
			result.Reason = fmt.Sprintf("step limit %d reached", e.maxSteps)

			logger.Warn("Aborting workflow run", "node_id", node.ID(), "max_steps", e.maxSteps)

			return result, nil
		}

		result.Steps++

		outcome, err := e.step(ctx, node, env, current, reply)
		if err != nil {
			result.State = RunAborted
			result.Reason = err.Error()

			return result, fmt.Errorf("failed to run node %s: %w", node.ID(), err)
		}

		switch outcome.Kind {
		case protocol.OutcomePause:
			current.AwaitingReply = true
			result.State = RunPaused

			return result, nil
		case protocol.OutcomeTerminate:
			result.State = RunTerminated

			return result, nil
		}

		next, ok := Resolve(graph.Edges(node.ID()), outcome.Handle, e.strict)
		if !ok {
			result.State = RunFinished

			return result, nil
		}

		logger.Debug("Following edge", "from", node.ID(), "to", next, "handle", outcome.Handle)

		current.CurrentNodeID = next
	}
}

// step resumes a node that paused for this reply, otherwise executes it.
func (e *Executor) step(
	ctx context.Context,
	node protocol.Node,
	env *protocol.Env,
	current *models.ExecutionContext,
	reply *string,
) (protocol.Outcome, error) {
	if current.AwaitingReply {
		current.AwaitingReply = false

		if resumer, ok := node.(protocol.Resumer); ok && reply != nil {
			return resumer.Resume(ctx, env, current, *reply)
		}
	}

	return node.Execute(ctx, env, current)
}

// runSender queues outbound messages for one run and records them as history.
type runSender struct {
	outbox       *delivery.Outbox
	key          models.ConversationKey
	execCtx      *models.ExecutionContext
	historyLimit int
	now          func() time.Time

	receipts []*delivery.Receipt
}

func (s *runSender) Send(_ context.Context, msg models.OutboundMessage) {
	s.execCtx.Remember(models.TurnRoleAssistant, msg.Text, s.now().UTC(), s.historyLimit)
	s.receipts = append(s.receipts, s.outbox.Send(s.key, msg))
}

// flush waits until everything sent so far was delivered or failed.
func (s *runSender) flush(ctx context.Context, logger *slog.Logger) {
	if len(s.receipts) == 0 {
		return
	}

	receipts := s.receipts
	s.receipts = nil

	for _, receipt := range receipts {
		err := receipt.Wait(ctx)
		if err != nil {
			logger.Error("Failed to deliver message", "error", err)
		}
	}
}
