package models

import (
	"fmt"
	"strings"
	"time"
)

// ActionPayload describes the side effect awaiting confirmation: what, when, how long.
type ActionPayload struct {
	Kind            string            `json:"kind"             validate:"required"`
	Title           string            `json:"title"            validate:"required"`
	StartsAt        time.Time         `json:"starts_at"`
	DurationMinutes int               `json:"duration_minutes" validate:"gte=0"`
	Details         map[string]string `json:"details,omitempty"`
}

// Summary renders the payload for end users.
func (p ActionPayload) Summary() string {
	var parts []string

	parts = append(parts, p.Title)

	if !p.StartsAt.IsZero() {
		parts = append(parts, p.StartsAt.Format("02/01/2006 às 15:04"))
	}

	if p.DurationMinutes > 0 {
		parts = append(parts, fmt.Sprintf("%d min", p.DurationMinutes))
	}

	return strings.Join(parts, " - ")
}

// PendingAction is an uncommitted side effect awaiting yes/no from the contact.
type PendingAction struct {
	ID          string        `json:"id"`
	InstanceID  string        `json:"instance_id"`
	ContactID   string        `json:"contact_id"`
	Payload     ActionPayload `json:"payload"`
	OwnerID     string        `json:"owner_id"`
	ExpiresAt   time.Time     `json:"expires_at"`
	LockedUntil *time.Time    `json:"locked_until,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Key returns the store key of the pending action.
func (p *PendingAction) Key() ConversationKey {
	return ConversationKey{InstanceID: p.InstanceID, ContactID: p.ContactID}
}

// Expired reports whether the action can no longer be confirmed.
func (p *PendingAction) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Locked reports whether a commit currently holds the lease.
func (p *PendingAction) Locked(now time.Time) bool {
	return p.LockedUntil != nil && now.Before(*p.LockedUntil)
}

// CommittedAction records a side effect that was committed, so late confirmations
// and cancellations can be recognised.
type CommittedAction struct {
	ID              string        `json:"id"`
	PendingActionID string        `json:"pending_action_id"`
	InstanceID      string        `json:"instance_id"`
	ContactID       string        `json:"contact_id"`
	Payload         ActionPayload `json:"payload"`
	ExternalRef     string        `json:"external_ref,omitempty"`
	CommittedAt     time.Time     `json:"committed_at"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
}

// Key returns the conversation the action belongs to.
func (c *CommittedAction) Key() ConversationKey {
	return ConversationKey{InstanceID: c.InstanceID, ContactID: c.ContactID}
}
