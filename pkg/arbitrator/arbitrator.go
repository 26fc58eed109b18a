// Package arbitrator resolves confirmation-gated actions before an inbound
// message reaches the workflow interpreter.
package arbitrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/chatflow/pkg/delivery"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/template"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// ErrActionInFlight rejects a proposal while the current one is being committed.
	ErrActionInFlight = errors.New("pending action is being committed")
	ErrInvalidPayload = errors.New("invalid action payload")
)

// Verdict tells the dispatcher whether the message was consumed.
type Verdict struct {
	Handled bool
	Intent  Intent
	Outcome string
}

// Outcomes reported in Verdict.Outcome.
const (
	OutcomePass           = "pass"
	OutcomeCommitted      = "committed"
	OutcomeCommitFailed   = "commit_failed"
	OutcomeCancelled      = "cancelled"
	OutcomeCancelFailed   = "cancel_failed"
	OutcomeAlreadyDone    = "already_done"
	OutcomeNothingPending = "nothing_pending"
	OutcomeExpired        = "expired"
	OutcomeInProgress     = "in_progress"
	OutcomeReminded       = "reminded"
)

type Option func(*Arbitrator)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(a *Arbitrator) {
		a.publisher = publisher
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Arbitrator) {
		a.now = now
	}
}

type Arbitrator struct {
	logger     *slog.Logger
	pending    persistence.PendingActionRepository
	committed  persistence.CommittedActionRepository
	contexts   persistence.ExecutionContextRepository
	committer  protocol.Committer
	outbox     *delivery.Outbox
	publisher  eventbus.EventPublisher
	classifier *Classifier
	validate   *validator.Validate
	config     Config
	now        func() time.Time
}

func New(
	logger *slog.Logger,
	store persistence.Persistence,
	committer protocol.Committer,
	outbox *delivery.Outbox,
	config Config,
	opts ...Option,
) *Arbitrator {
	config = config.withDefaults()

	a := &Arbitrator{
		logger:     logger.With("module", "arbitrator"),
		pending:    store.PendingActionRepository(),
		committed:  store.CommittedActionRepository(),
		contexts:   store.ExecutionContextRepository(),
		committer:  committer,
		outbox:     outbox,
		classifier: NewClassifier(config.ConfirmWords, config.CancelWords, config.HedgeWords, config.MaxWords),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		config:     config,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Arbitrate decides whether text resolves the contact's pending action. A
// handled message must not reach the interpreter or the fallback assistant.
func (a *Arbitrator) Arbitrate(ctx context.Context, key models.ConversationKey, text string) (Verdict, error) {
	intent := a.classifier.Classify(text)

	pending, expired, err := a.load(ctx, key, intent != IntentNone)
	if err != nil {
		return Verdict{}, err
	}

	logger := a.logger.With("instance_id", key.InstanceID, "contact_id", key.ContactID, "intent", intent.String())

	var outcome string

	switch {
	case pending == nil && intent == IntentNone:
		outcome = OutcomePass
	case pending == nil && intent == IntentConfirm:
		outcome, err = a.confirmWithoutPending(ctx, key, expired)
	case pending == nil:
		outcome, err = a.cancelWithoutPending(ctx, key)
	case intent == IntentConfirm:
		outcome, err = a.confirm(ctx, key, pending)
	case intent == IntentCancel:
		outcome, err = a.cancel(ctx, key, pending)
	default:
		a.reply(ctx, key, a.config.Messages.Reminder, pending.Payload.Summary())

		outcome = OutcomeReminded
	}

	if err != nil {
		return Verdict{}, err
	}

	logger.Debug("Arbitrated inbound message", "outcome", outcome)

	return Verdict{Handled: outcome != OutcomePass, Intent: intent, Outcome: outcome}, nil
}

// Propose stores a new pending action for key, replacing an unanswered one.
func (a *Arbitrator) Propose(ctx context.Context, key models.ConversationKey, payload models.ActionPayload, ownerID string) (*models.PendingAction, error) {
	err := a.validate.Struct(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	now := a.now().UTC()
	action := &models.PendingAction{
		ID:         uuid.New().String(),
		InstanceID: key.InstanceID,
		ContactID:  key.ContactID,
		Payload:    payload,
		OwnerID:    ownerID,
		ExpiresAt:  now.Add(a.config.TTL),
		CreatedAt:  now,
	}

	for range 3 {
		err = a.pending.Create(ctx, action)
		if err == nil {
			break
		}

		if !errors.Is(err, persistence.ErrPendingActionExists) {
			return nil, fmt.Errorf("failed to create pending action: %w", err)
		}

		existing, getErr := a.pending.Get(ctx, key)
		if persistence.IsPendingActionNotFound(getErr) {
			continue
		}

		if getErr != nil {
			return nil, fmt.Errorf("failed to read pending action: %w", getErr)
		}

		if existing.Locked(now) {
			return nil, ErrActionInFlight
		}

		_, delErr := a.pending.Delete(ctx, key, existing.ID)
		if delErr != nil {
			return nil, fmt.Errorf("failed to replace pending action: %w", delErr)
		}

		a.logger.Info("Replaced pending action", "contact_id", key.ContactID, "replaced_id", existing.ID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create pending action: %w", err)
	}

	a.publish(ctx, events.ActionProposed{
		BaseEvent:       events.NewBaseEvent(events.ActionProposedEvent, key),
		PendingActionID: action.ID,
		OwnerID:         ownerID,
		Payload:         payload,
		ExpiresAt:       action.ExpiresAt,
	})

	a.reply(ctx, key, a.config.Messages.Proposed, payload.Summary())

	return action, nil
}

// load reads the pending action, discarding it when expired. With retry set,
// a missing action is read again a few times to absorb a proposal that is
// still being written.
func (a *Arbitrator) load(ctx context.Context, key models.ConversationKey, retry bool) (*models.PendingAction, *models.PendingAction, error) {
	attempts := 1
	if retry {
		attempts = a.config.ReadAttempts
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.config.ReadInterval), uint64(attempts-1)),
		ctx,
	)

	pending, err := backoff.RetryWithData(func() (*models.PendingAction, error) {
		action, err := a.pending.Get(ctx, key)
		if err != nil && !persistence.IsPendingActionNotFound(err) {
			return nil, backoff.Permanent(err)
		}

		return action, err
	}, policy)

	if persistence.IsPendingActionNotFound(err) {
		return nil, nil, nil
	}

	if err != nil {
		return nil, nil, fmt.Errorf("failed to read pending action: %w", err)
	}

	now := a.now()
	if !pending.Expired(now) || pending.Locked(now) {
		return pending, nil, nil
	}

	_, err = a.pending.Delete(ctx, key, pending.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discard expired pending action: %w", err)
	}

	a.logger.Info("Discarded expired pending action", "contact_id", key.ContactID, "pending_action_id", pending.ID)

	return nil, pending, nil
}

func (a *Arbitrator) confirmWithoutPending(ctx context.Context, key models.ConversationKey, expired *models.PendingAction) (string, error) {
	// A repeated confirmation within the look-back window is acknowledged
	// even when a flow is waiting on its own question.
	recent, err := a.recent(ctx, key)
	if err != nil {
		return "", err
	}

	if recent != nil {
		a.reply(ctx, key, a.config.Messages.AlreadyDone, recent.Payload.Summary())

		return OutcomeAlreadyDone, nil
	}

	// A flow asking its own yes/no question gets the answer.
	execCtx, err := a.contexts.Get(ctx, key)
	if err != nil && !persistence.IsExecutionContextNotFound(err) {
		return "", fmt.Errorf("failed to read execution context: %w", err)
	}

	if execCtx != nil && execCtx.AwaitingReply {
		return OutcomePass, nil
	}

	switch {
	case expired != nil:
		a.reply(ctx, key, a.config.Messages.Expired, expired.Payload.Summary())

		return OutcomeExpired, nil
	default:
		a.reply(ctx, key, a.config.Messages.NothingPending, "")

		return OutcomeNothingPending, nil
	}
}

func (a *Arbitrator) cancelWithoutPending(ctx context.Context, key models.ConversationKey) (string, error) {
	recent, err := a.recent(ctx, key)
	if err != nil || recent == nil {
		return OutcomePass, err
	}

	err = a.revert(ctx, key, recent)
	if err != nil {
		a.logger.Error("Failed to cancel committed action", "committed_action_id", recent.ID, "error", err)
		a.reply(ctx, key, a.config.Messages.CancelFailed, recent.Payload.Summary())

		return OutcomeCancelFailed, nil
	}

	a.reply(ctx, key, a.config.Messages.Cancelled, recent.Payload.Summary())

	return OutcomeCancelled, nil
}

func (a *Arbitrator) confirm(ctx context.Context, key models.ConversationKey, pending *models.PendingAction) (string, error) {
	now := a.now()

	locked, err := a.pending.Lock(ctx, key, pending.ID, now, now.Add(a.config.Lease))
	if err != nil {
		return "", fmt.Errorf("failed to lock pending action: %w", err)
	}

	if !locked {
		return a.lostRace(ctx, key)
	}

	// Another message may have resolved the action between the read and the lock.
	current, err := a.pending.Get(ctx, key)
	if err != nil && !persistence.IsPendingActionNotFound(err) {
		return "", fmt.Errorf("failed to read pending action: %w", err)
	}

	if current == nil || current.ID != pending.ID {
		return a.lostRace(ctx, key)
	}

	result, err := a.committer.Commit(ctx, protocol.CommitRequest{
		IdempotencyKey: pending.ID,
		Key:            key,
		OwnerID:        pending.OwnerID,
		Payload:        pending.Payload,
	})
	if err != nil {
		a.logger.Error("Commit failed, keeping pending action",
			"pending_action_id", pending.ID,
			"contact_id", key.ContactID,
			"error", err)

		unlockErr := a.pending.Unlock(ctx, key, pending.ID)
		if unlockErr != nil {
			a.logger.Error("Failed to release pending action", "pending_action_id", pending.ID, "error", unlockErr)
		}

		a.reply(ctx, key, a.config.Messages.CommitFailed, pending.Payload.Summary())

		return OutcomeCommitFailed, nil
	}

	committed := &models.CommittedAction{
		ID:              uuid.New().String(),
		PendingActionID: pending.ID,
		InstanceID:      key.InstanceID,
		ContactID:       key.ContactID,
		Payload:         pending.Payload,
		ExternalRef:     result.ExternalRef,
		CommittedAt:     a.now().UTC(),
	}

	err = a.committed.Record(ctx, committed)
	if err != nil {
		a.logger.Error("Failed to record committed action", "pending_action_id", pending.ID, "error", err)
	}

	_, err = a.pending.Delete(ctx, key, pending.ID)
	if err != nil {
		a.logger.Error("Failed to delete committed pending action", "pending_action_id", pending.ID, "error", err)
	}

	a.endConversation(ctx, key)

	a.publish(ctx, events.ActionCommitted{
		BaseEvent:         events.NewBaseEvent(events.ActionCommittedEvent, key),
		PendingActionID:   pending.ID,
		CommittedActionID: committed.ID,
		ExternalRef:       result.ExternalRef,
		Payload:           pending.Payload,
	})

	a.reply(ctx, key, a.config.Messages.Confirmed, pending.Payload.Summary())

	return OutcomeCommitted, nil
}

// lostRace answers a confirmation whose pending action is locked or gone.
func (a *Arbitrator) lostRace(ctx context.Context, key models.ConversationKey) (string, error) {
	current, err := a.pending.Get(ctx, key)
	if err != nil && !persistence.IsPendingActionNotFound(err) {
		return "", fmt.Errorf("failed to read pending action: %w", err)
	}

	if current != nil {
		a.reply(ctx, key, a.config.Messages.InProgress, current.Payload.Summary())

		return OutcomeInProgress, nil
	}

	recent, err := a.recent(ctx, key)
	if err != nil {
		return "", err
	}

	if recent != nil {
		a.reply(ctx, key, a.config.Messages.AlreadyDone, recent.Payload.Summary())

		return OutcomeAlreadyDone, nil
	}

	a.reply(ctx, key, a.config.Messages.NothingPending, "")

	return OutcomeNothingPending, nil
}

func (a *Arbitrator) cancel(ctx context.Context, key models.ConversationKey, pending *models.PendingAction) (string, error) {
	if pending.Locked(a.now()) {
		a.reply(ctx, key, a.config.Messages.InProgress, pending.Payload.Summary())

		return OutcomeInProgress, nil
	}

	deleted, err := a.pending.Delete(ctx, key, pending.ID)
	if err != nil {
		return "", fmt.Errorf("failed to delete pending action: %w", err)
	}

	if !deleted {
		return a.lostRace(ctx, key)
	}

	a.publish(ctx, events.ActionCancelled{
		BaseEvent:       events.NewBaseEvent(events.ActionCancelledEvent, key),
		PendingActionID: pending.ID,
		Payload:         pending.Payload,
	})

	recent, err := a.recent(ctx, key)
	if err != nil {
		a.logger.Error("Failed to look up committed actions", "contact_id", key.ContactID, "error", err)
	}

	if recent != nil {
		err = a.revert(ctx, key, recent)
		if err != nil {
			a.logger.Error("Failed to cancel committed action", "committed_action_id", recent.ID, "error", err)
		}
	}

	a.endConversation(ctx, key)
	a.reply(ctx, key, a.config.Messages.Cancelled, pending.Payload.Summary())

	return OutcomeCancelled, nil
}

// recent returns the newest committed action inside the look-back window that
// was not cancelled.
func (a *Arbitrator) recent(ctx context.Context, key models.ConversationKey) (*models.CommittedAction, error) {
	actions, err := a.committed.Recent(ctx, key, a.now().Add(-a.config.LookBack))
	if err != nil {
		return nil, fmt.Errorf("failed to read committed actions: %w", err)
	}

	for _, action := range actions {
		if action.CancelledAt == nil {
			return action, nil
		}
	}

	return nil, nil
}

// revert undoes a committed side effect and marks it cancelled.
func (a *Arbitrator) revert(ctx context.Context, key models.ConversationKey, action *models.CommittedAction) error {
	if action.ExternalRef != "" {
		err := a.committer.Cancel(ctx, action.ExternalRef)
		if err != nil {
			return fmt.Errorf("failed to cancel %s: %w", action.ExternalRef, err)
		}
	}

	err := a.committed.MarkCancelled(ctx, action.ID, a.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark %s cancelled: %w", action.ID, err)
	}

	a.publish(ctx, events.ActionCancelled{
		BaseEvent:         events.NewBaseEvent(events.ActionCancelledEvent, key),
		CommittedActionID: action.ID,
		Payload:           action.Payload,
	})

	return nil
}

func (a *Arbitrator) endConversation(ctx context.Context, key models.ConversationKey) {
	err := a.contexts.Delete(ctx, key)
	if err != nil {
		a.logger.Error("Failed to delete execution context", "contact_id", key.ContactID, "error", err)
	}
}

func (a *Arbitrator) reply(ctx context.Context, key models.ConversationKey, text, summary string) {
	text = template.Interpolate(text, map[string]string{"summary": summary})
	if text == "" || a.outbox == nil {
		return
	}

	err := a.outbox.Send(key, models.TextMessage(text)).Wait(ctx)
	if err != nil {
		a.logger.Error("Failed to deliver reply", "contact_id", key.ContactID, "error", err)
	}
}

func (a *Arbitrator) publish(ctx context.Context, event eventbus.Event) {
	if a.publisher == nil {
		return
	}

	err := a.publisher.Publish(ctx, event)
	if err != nil {
		a.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
