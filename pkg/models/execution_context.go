package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// KeySeparator joins the parts of a rendered ConversationKey.
const KeySeparator = ":"

var ErrInvalidConversationKey = errors.New("invalid conversation key")

// ConversationKey identifies one contact on one channel instance.
type ConversationKey struct {
	InstanceID string `json:"instance_id"`
	ContactID  string `json:"contact_id"`
}

// String renders the key as "{instance}:{contact}", the form used for queue and lock keys.
func (k ConversationKey) String() string {
	return k.InstanceID + KeySeparator + k.ContactID
}

// Validate rejects keys whose rendering would be ambiguous. The instance id is
// always first, so only it must be free of the separator; contact ids such as
// device-qualified JIDs may carry it.
func (k ConversationKey) Validate() error {
	switch {
	case k.InstanceID == "":
		return fmt.Errorf("%w: instance id is empty", ErrInvalidConversationKey)
	case k.ContactID == "":
		return fmt.Errorf("%w: contact id is empty", ErrInvalidConversationKey)
	case strings.Contains(k.InstanceID, KeySeparator):
		return fmt.Errorf("%w: instance id %q contains %q", ErrInvalidConversationKey, k.InstanceID, KeySeparator)
	}

	return nil
}

// TurnRole marks who produced a history turn.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is one exchanged message kept for generation history.
type Turn struct {
	Role TurnRole  `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ExecutionContext is the resumable position of one contact inside one workflow.
type ExecutionContext struct {
	InstanceID    string            `json:"instance_id"`
	ContactID     string            `json:"contact_id"`
	WorkflowID    string            `json:"workflow_id"`
	CurrentNodeID string            `json:"current_node_id"`
	LastReply     *string           `json:"last_reply,omitempty"`
	AwaitingReply bool              `json:"awaiting_reply"`
	Variables     map[string]string `json:"variables,omitempty"`
	History       []Turn            `json:"history,omitempty"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Key returns the store key of the context.
func (c *ExecutionContext) Key() ConversationKey {
	return ConversationKey{InstanceID: c.InstanceID, ContactID: c.ContactID}
}

// Remember appends a turn, keeping at most limit turns.
func (c *ExecutionContext) Remember(role TurnRole, text string, at time.Time, limit int) {
	if text == "" {
		return
	}

	c.History = append(c.History, Turn{Role: role, Text: text, At: at})

	if limit > 0 && len(c.History) > limit {
		c.History = append([]Turn(nil), c.History[len(c.History)-limit:]...)
	}
}

// Clone returns a deep copy so stores never share maps with callers.
func (c *ExecutionContext) Clone() *ExecutionContext {
	out := *c

	if c.LastReply != nil {
		reply := *c.LastReply
		out.LastReply = &reply
	}

	out.Variables = make(map[string]string, len(c.Variables))
	for k, v := range c.Variables {
		out.Variables[k] = v
	}

	out.History = append([]Turn(nil), c.History...)

	return &out
}
