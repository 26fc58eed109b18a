package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// PendingActionRepository keys pending actions by conversation; the primary key
// enforces at most one per contact.
type PendingActionRepository struct {
	db *sql.DB
}

func NewPendingActionRepository(db *sql.DB) *PendingActionRepository {
	return &PendingActionRepository{db: db}
}

func (r *PendingActionRepository) Get(ctx context.Context, key models.ConversationKey) (*models.PendingAction, error) {
	var (
		action      models.PendingAction
		payload     []byte
		lockedUntil sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT instance_id, contact_id, id, payload, owner_id, expires_at, locked_until, created_at
		FROM pending_actions WHERE instance_id = $1 AND contact_id = $2
	`, key.InstanceID, key.ContactID).Scan(
		&action.InstanceID, &action.ContactID, &action.ID, &payload, &action.OwnerID,
		&action.ExpiresAt, &lockedUntil, &action.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, persistence.ErrPendingActionNotFound)
	}

	if err != nil {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, err)
	}

	err = json.Unmarshal(payload, &action.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if lockedUntil.Valid {
		action.LockedUntil = &lockedUntil.Time
	}

	return &action, nil
}

func (r *PendingActionRepository) Create(ctx context.Context, action *models.PendingAction) error {
	key := action.Key()

	payload, err := json.Marshal(action.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_actions (instance_id, contact_id, id, payload, owner_id, expires_at, locked_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instance_id, contact_id) DO NOTHING
	`, key.InstanceID, key.ContactID, action.ID, payload, action.OwnerID, action.ExpiresAt, action.LockedUntil, action.CreatedAt)
	if err != nil {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, persistence.ErrPendingActionExists)
	}

	return nil
}

func (r *PendingActionRepository) Lock(ctx context.Context, key models.ConversationKey, actionID string, now, until time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pending_actions SET locked_until = $4
		WHERE instance_id = $1 AND contact_id = $2 AND id = $3
			AND (locked_until IS NULL OR locked_until <= $5)
	`, key.InstanceID, key.ContactID, actionID, until, now)
	if err != nil {
		return false, persistence.NewConversationError("Lock", key.InstanceID, key.ContactID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected == 1, nil
}

func (r *PendingActionRepository) Unlock(ctx context.Context, key models.ConversationKey, actionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pending_actions SET locked_until = NULL
		WHERE instance_id = $1 AND contact_id = $2 AND id = $3
	`, key.InstanceID, key.ContactID, actionID)
	if err != nil {
		return persistence.NewConversationError("Unlock", key.InstanceID, key.ContactID, err)
	}

	return nil
}

func (r *PendingActionRepository) Delete(ctx context.Context, key models.ConversationKey, actionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_actions WHERE instance_id = $1 AND contact_id = $2 AND id = $3`,
		key.InstanceID, key.ContactID, actionID)
	if err != nil {
		return false, persistence.NewConversationError("Delete", key.InstanceID, key.ContactID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected == 1, nil
}
