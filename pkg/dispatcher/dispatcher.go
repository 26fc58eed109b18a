// Package dispatcher routes inbound contact messages: pending actions first,
// then the contact's paused workflow, then trigger phrases, then the fallback
// assistant.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/chatflow/pkg/arbitrator"
	"github.com/dukex/chatflow/pkg/delivery"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/template"
	"github.com/dukex/chatflow/pkg/workflow"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	VarName  = "nome"
	VarPhone = "telefone"
)

type Option func(*Dispatcher)

// WithGenerator enables the fallback assistant backend.
func WithGenerator(generator protocol.Generator) Option {
	return func(d *Dispatcher) {
		d.generator = generator
	}
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(d *Dispatcher) {
		d.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

type Dispatcher struct {
	logger     *slog.Logger
	store      persistence.Persistence
	registry   *registry.Registry
	executor   *workflow.Executor
	arbitrator *arbitrator.Arbitrator
	matcher    *workflow.TriggerMatcher
	channel    protocol.Channel
	outbox     *delivery.Outbox
	generator  protocol.Generator
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	config     Config
	now        func() time.Time

	seen  *cache.Cache
	names *cache.Cache
	locks *keyLock
}

func New(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	executor *workflow.Executor,
	arb *arbitrator.Arbitrator,
	channel protocol.Channel,
	outbox *delivery.Outbox,
	config Config,
	opts ...Option,
) *Dispatcher {
	config = config.withDefaults()

	d := &Dispatcher{
		logger:     logger.With("module", "dispatcher"),
		store:      store,
		registry:   reg,
		executor:   executor,
		arbitrator: arb,
		matcher:    workflow.NewTriggerMatcher(logger),
		channel:    channel,
		outbox:     outbox,
		tracer:     otelhelper.Tracer("chatflow/dispatcher"),
		config:     config,
		now:        time.Now,
		seen:       cache.New(config.DedupeTTL, 2*config.DedupeTTL),
		names:      cache.New(config.DisplayNameTTL, 2*config.DisplayNameTTL),
		locks:      newKeyLock(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch handles one inbound message for the contact on instanceID. Messages
// of the same contact are processed one at a time; a message id seen before
// is ignored. Workflow failures are logged and end the conversation; only
// store failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, instanceID string, inbound models.InboundEvent) error {
	key := models.ConversationKey{InstanceID: instanceID, ContactID: inbound.ContactID}
	if err := key.Validate(); err != nil {
		return err
	}

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.dispatch",
		attribute.String(otelhelper.InstanceIDKey, key.InstanceID),
		attribute.String(otelhelper.ContactIDKey, key.ContactID),
		attribute.String(otelhelper.MessageIDKey, inbound.ID),
	)
	defer span.End()

	logger := d.logger.With("instance_id", key.InstanceID, "contact_id", key.ContactID, "message_id", inbound.ID)

	dedupeKey := key.InstanceID + ":" + inbound.ID
	if inbound.ID != "" {
		if err := d.seen.Add(dedupeKey, struct{}{}, cache.DefaultExpiration); err != nil {
			logger.Debug("Ignoring duplicate message")
			span.SetAttributes(attribute.Bool("chatflow.duplicate", true))

			return nil
		}
	}

	unlock := d.locks.Lock(key.String())
	defer unlock()

	err := d.dispatch(ctx, key, inbound, logger, span)
	if err != nil {
		// Let a redelivery of the same message try again.
		if inbound.ID != "" {
			d.seen.Delete(dedupeKey)
		}

		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to dispatch message", "error", err)

		return err
	}

	return nil
}

func (d *Dispatcher) dispatch(
	ctx context.Context,
	key models.ConversationKey,
	inbound models.InboundEvent,
	logger *slog.Logger,
	span trace.Span,
) error {
	if inbound.DisplayName != "" {
		d.names.SetDefault(key.String(), inbound.DisplayName)
	}

	verdict, err := d.arbitrator.Arbitrate(ctx, key, inbound.Text)
	if err != nil {
		return fmt.Errorf("failed to arbitrate message: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.VerdictKey, verdict.Outcome))

	if verdict.Handled {
		logger.Info("Message resolved a pending action", "outcome", verdict.Outcome)

		return nil
	}

	execCtx, err := d.store.ExecutionContextRepository().Get(ctx, key)
	if err != nil && !persistence.IsExecutionContextNotFound(err) {
		return fmt.Errorf("failed to load execution context: %w", err)
	}

	if execCtx != nil {
		resumed, err := d.resume(ctx, execCtx, inbound.Text, logger, span)
		if err != nil || resumed {
			return err
		}
	}

	return d.start(ctx, key, inbound, logger, span)
}

// resume continues a paused workflow. It reports false when the context no
// longer matches a runnable workflow; the context is then discarded.
func (d *Dispatcher) resume(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	text string,
	logger *slog.Logger,
	span trace.Span,
) (bool, error) {
	key := execCtx.Key()
	logger = logger.With("workflow_id", execCtx.WorkflowID, "node_id", execCtx.CurrentNodeID)

	graph, reason := d.runnable(ctx, execCtx)
	if graph == nil {
		logger.Warn("Discarding stale execution context", "reason", reason)

		err := d.store.ExecutionContextRepository().Delete(ctx, key)
		if err != nil {
			return false, fmt.Errorf("failed to discard execution context: %w", err)
		}

		ended := events.ConversationEnded{
			BaseEvent: d.baseEvent(events.ConversationEndedEvent, key, execCtx.WorkflowID),
			State:     "discarded",
			Reason:    reason,
		}
		d.publish(ctx, ended)

		return false, nil
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, execCtx.WorkflowID))

	result, runErr := d.executor.Run(ctx, graph, execCtx, &text)
	if runErr != nil {
		otelhelper.SetError(span, runErr)
		logger.ErrorContext(ctx, "Workflow run failed", "error", runErr)
	}

	return true, d.persist(ctx, result, false)
}

// runnable compiles the workflow of execCtx, returning nil and a reason when
// the workflow is gone, inactive, invalid or lacks the current node.
func (d *Dispatcher) runnable(ctx context.Context, execCtx *models.ExecutionContext) (*workflow.Graph, string) {
	wf, err := d.store.WorkflowRepository().GetByID(ctx, execCtx.WorkflowID)
	if err != nil {
		return nil, fmt.Sprintf("workflow unavailable: %v", err)
	}

	if !wf.Active {
		return nil, "workflow inactive"
	}

	graph, err := workflow.Compile(ctx, wf, d.registry)
	if err != nil {
		return nil, err.Error()
	}

	if _, ok := graph.Node(execCtx.CurrentNodeID); !ok {
		return nil, fmt.Sprintf("node %q no longer exists", execCtx.CurrentNodeID)
	}

	return graph, ""
}

func (d *Dispatcher) start(
	ctx context.Context,
	key models.ConversationKey,
	inbound models.InboundEvent,
	logger *slog.Logger,
	span trace.Span,
) error {
	workflows, err := d.store.WorkflowRepository().List(ctx, persistence.WorkflowFilter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	wf := d.matcher.Match(inbound.Text, workflows)
	if wf == nil {
		return d.fallback(ctx, key, inbound, logger)
	}

	logger = logger.With("workflow_id", wf.ID)
	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, wf.ID))

	graph, err := workflow.Compile(ctx, wf, d.registry)
	if err != nil {
		logger.ErrorContext(ctx, "Matched workflow does not compile", "error", err)

		return nil
	}

	now := d.now().UTC()

	variables := make(map[string]string, len(wf.Variables)+2)
	maps.Copy(variables, wf.Variables)
	variables[VarName] = d.displayName(ctx, key, logger)
	variables[VarPhone] = key.ContactID

	execCtx := &models.ExecutionContext{
		InstanceID:    key.InstanceID,
		ContactID:     key.ContactID,
		WorkflowID:    wf.ID,
		CurrentNodeID: graph.TriggerID(),
		Variables:     variables,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	logger.Info("Starting workflow", "trigger", wf.Trigger)

	d.publish(ctx, events.ConversationStarted{
		BaseEvent: d.baseEvent(events.ConversationStartedEvent, key, wf.ID),
		Trigger:   wf.Trigger,
	})

	result, runErr := d.executor.Run(ctx, graph, execCtx, &inbound.Text)
	if runErr != nil {
		otelhelper.SetError(span, runErr)
		logger.ErrorContext(ctx, "Workflow run failed", "error", runErr)
	}

	return d.persist(ctx, result, true)
}

// persist keeps a paused context and discards any other.
func (d *Dispatcher) persist(ctx context.Context, result *workflow.RunResult, created bool) error {
	execCtx := result.Context
	key := execCtx.Key()
	repo := d.store.ExecutionContextRepository()

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(otelhelper.RunStateKey, string(result.State)),
		attribute.String(otelhelper.NodeIDKey, execCtx.CurrentNodeID),
	)

	if result.Persist() {
		var err error
		if created {
			err = repo.Create(ctx, execCtx)
		} else {
			err = repo.Save(ctx, execCtx)
		}

		if err != nil {
			return fmt.Errorf("failed to store execution context: %w", err)
		}

		d.publish(ctx, events.ConversationPaused{
			BaseEvent: d.baseEvent(events.ConversationPausedEvent, key, execCtx.WorkflowID),
			NodeID:    execCtx.CurrentNodeID,
		})

		return nil
	}

	if !created {
		err := repo.Delete(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to delete execution context: %w", err)
		}
	}

	d.publish(ctx, events.ConversationEnded{
		BaseEvent: d.baseEvent(events.ConversationEndedEvent, key, execCtx.WorkflowID),
		State:     string(result.State),
		Reason:    result.Reason,
		Steps:     result.Steps,
	})

	return nil
}

// fallback lets the assistant answer a message no workflow handles.
func (d *Dispatcher) fallback(ctx context.Context, key models.ConversationKey, inbound models.InboundEvent, logger *slog.Logger) error {
	if !d.config.Fallback.Enabled || d.generator == nil {
		logger.Debug("No workflow matched message")

		return nil
	}

	variables := map[string]string{
		VarName:  d.displayName(ctx, key, logger),
		VarPhone: key.ContactID,
	}

	generation, err := d.generator.Generate(ctx, inbound.Text, protocol.GenerateOptions{
		SystemPrompt: template.Interpolate(d.config.Fallback.SystemPrompt, variables),
		History: []models.Turn{
			{Role: models.TurnRoleUser, Text: inbound.Text, At: d.now().UTC()},
		},
		Variables: variables,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Fallback generation failed", "error", err)

		d.reply(ctx, key, d.config.Fallback.ErrorMessage, logger)

		return nil
	}

	d.reply(ctx, key, generation.Text, logger)

	if generation.Proposal != nil {
		_, err = d.arbitrator.Propose(ctx, key, *generation.Proposal, d.config.Fallback.OwnerID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to propose action", "error", err)
		}
	}

	return nil
}

func (d *Dispatcher) reply(ctx context.Context, key models.ConversationKey, text string, logger *slog.Logger) {
	if text == "" {
		return
	}

	err := d.outbox.Send(key, models.TextMessage(text)).Wait(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to deliver message", "error", err)
	}
}

// displayName resolves the contact name, caching lookups on the channel.
func (d *Dispatcher) displayName(ctx context.Context, key models.ConversationKey, logger *slog.Logger) string {
	if name, ok := d.names.Get(key.String()); ok {
		return name.(string)
	}

	if d.channel == nil {
		return ""
	}

	name, err := d.channel.DisplayName(ctx, key)
	if err != nil {
		logger.Warn("Failed to look up display name", "error", err)

		return ""
	}

	d.names.SetDefault(key.String(), name)

	return name
}

func (d *Dispatcher) baseEvent(eventType events.EventType, key models.ConversationKey, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, key)
	base.WorkflowID = workflowID

	return base
}

func (d *Dispatcher) publish(ctx context.Context, event eventbus.Event) {
	if d.publisher == nil {
		return
	}

	err := d.publisher.Publish(ctx, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
