package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// CommittedActionRepository is the ledger of committed actions.
type CommittedActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewCommittedActionRepository(db *sql.DB, logger *slog.Logger) *CommittedActionRepository {
	return &CommittedActionRepository{db: db, logger: logger}
}

func (r *CommittedActionRepository) Record(ctx context.Context, action *models.CommittedAction) error {
	payload, err := json.Marshal(action.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO committed_actions
			(id, pending_action_id, instance_id, contact_id, payload, external_ref, committed_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, action.ID, action.PendingActionID, action.InstanceID, action.ContactID, payload,
		action.ExternalRef, action.CommittedAt, action.CancelledAt)
	if err != nil {
		return persistence.NewConversationError("Record", action.InstanceID, action.ContactID, err)
	}

	return nil
}

func (r *CommittedActionRepository) Recent(ctx context.Context, key models.ConversationKey, since time.Time) ([]*models.CommittedAction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, pending_action_id, instance_id, contact_id, payload, external_ref, committed_at, cancelled_at
		FROM committed_actions
		WHERE instance_id = $1 AND contact_id = $2 AND committed_at >= $3
		ORDER BY committed_at DESC
	`, key.InstanceID, key.ContactID, since)
	if err != nil {
		return nil, persistence.NewConversationError("Recent", key.InstanceID, key.ContactID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	actions := make([]*models.CommittedAction, 0)

	for rows.Next() {
		var (
			action      models.CommittedAction
			payload     []byte
			cancelledAt sql.NullTime
		)

		err := rows.Scan(&action.ID, &action.PendingActionID, &action.InstanceID, &action.ContactID,
			&payload, &action.ExternalRef, &action.CommittedAt, &cancelledAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan committed action: %w", err)
		}

		err = json.Unmarshal(payload, &action.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}

		if cancelledAt.Valid {
			action.CancelledAt = &cancelledAt.Time
		}

		actions = append(actions, &action)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating committed actions: %w", err)
	}

	return actions, nil
}

func (r *CommittedActionRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE committed_actions SET cancelled_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark committed action %s cancelled: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("mark cancelled %s: %w", id, persistence.ErrCommittedActionNotFound)
	}

	return nil
}

func (r *CommittedActionRepository) Prune(ctx context.Context, before time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM committed_actions WHERE committed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune committed actions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(affected), nil
}
