// Package events defines the conversation and action lifecycle events published
// on the event bus.
package events

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every chatflow event.
const Topic = "chatflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound messages accepted by the web front door for a worker to dispatch.
	InboundMessageEvent EventType = "inbound.message"

	// Conversation lifecycle events.
	ConversationStartedEvent EventType = "conversation.started"
	ConversationPausedEvent  EventType = "conversation.paused"
	ConversationEndedEvent   EventType = "conversation.ended"

	// Confirmation-gated action events.
	ActionProposedEvent  EventType = "action.proposed"
	ActionCommittedEvent EventType = "action.committed"
	ActionCancelledEvent EventType = "action.cancelled"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	ContactID  string         `json:"contact_id"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a new event for the conversation of key.
func NewBaseEvent(eventType EventType, key models.ConversationKey) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: key.InstanceID,
		ContactID:  key.ContactID,
	}
}

func (b BaseEvent) GetID() string {
	return b.ID
}

// Key returns the conversation the event belongs to.
func (b BaseEvent) Key() models.ConversationKey {
	return models.ConversationKey{InstanceID: b.InstanceID, ContactID: b.ContactID}
}

type InboundMessage struct {
	BaseEvent

	Message models.InboundEvent `json:"message"`
}

func (e InboundMessage) GetType() EventType {
	return InboundMessageEvent
}

type ConversationStarted struct {
	BaseEvent

	Trigger string `json:"trigger"`
}

func (e ConversationStarted) GetType() EventType {
	return ConversationStartedEvent
}

type ConversationPaused struct {
	BaseEvent

	NodeID string `json:"node_id"`
}

func (e ConversationPaused) GetType() EventType {
	return ConversationPausedEvent
}

// ConversationEnded is published when a context is discarded. State is the run
// state that ended it: finished, terminated or aborted.
type ConversationEnded struct {
	BaseEvent

	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
	Steps  int    `json:"steps"`
}

func (e ConversationEnded) GetType() EventType {
	return ConversationEndedEvent
}

type ActionProposed struct {
	BaseEvent

	PendingActionID string               `json:"pending_action_id"`
	OwnerID         string               `json:"owner_id"`
	Payload         models.ActionPayload `json:"payload"`
	ExpiresAt       time.Time            `json:"expires_at"`
}

func (e ActionProposed) GetType() EventType {
	return ActionProposedEvent
}

type ActionCommitted struct {
	BaseEvent

	PendingActionID   string               `json:"pending_action_id"`
	CommittedActionID string               `json:"committed_action_id"`
	ExternalRef       string               `json:"external_ref,omitempty"`
	Payload           models.ActionPayload `json:"payload"`
}

func (e ActionCommitted) GetType() EventType {
	return ActionCommittedEvent
}

// ActionCancelled covers both a discarded pending action and a reverted
// committed one; the matching id is set.
type ActionCancelled struct {
	BaseEvent

	PendingActionID   string               `json:"pending_action_id,omitempty"`
	CommittedActionID string               `json:"committed_action_id,omitempty"`
	Payload           models.ActionPayload `json:"payload"`
}

func (e ActionCancelled) GetType() EventType {
	return ActionCancelledEvent
}
