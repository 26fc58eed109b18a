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

// ExecutionContextRepository stores one row per conversation key.
type ExecutionContextRepository struct {
	db *sql.DB
}

func NewExecutionContextRepository(db *sql.DB) *ExecutionContextRepository {
	return &ExecutionContextRepository{db: db}
}

func (r *ExecutionContextRepository) Get(ctx context.Context, key models.ConversationKey) (*models.ExecutionContext, error) {
	var (
		execCtx   models.ExecutionContext
		lastReply sql.NullString
		variables []byte
		history   []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT instance_id, contact_id, workflow_id, current_node_id, last_reply, awaiting_reply,
			variables, history, version, created_at, updated_at
		FROM execution_contexts WHERE instance_id = $1 AND contact_id = $2
	`, key.InstanceID, key.ContactID).Scan(
		&execCtx.InstanceID, &execCtx.ContactID, &execCtx.WorkflowID, &execCtx.CurrentNodeID,
		&lastReply, &execCtx.AwaitingReply, &variables, &history,
		&execCtx.Version, &execCtx.CreatedAt, &execCtx.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, persistence.ErrExecutionContextNotFound)
	}

	if err != nil {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, err)
	}

	if lastReply.Valid {
		execCtx.LastReply = &lastReply.String
	}

	err = json.Unmarshal(variables, &execCtx.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	err = json.Unmarshal(history, &execCtx.History)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	return &execCtx, nil
}

func marshalState(execCtx *models.ExecutionContext) (sql.NullString, []byte, []byte, error) {
	var lastReply sql.NullString
	if execCtx.LastReply != nil {
		lastReply = sql.NullString{String: *execCtx.LastReply, Valid: true}
	}

	variables := execCtx.Variables
	if variables == nil {
		variables = map[string]string{}
	}

	vars, err := json.Marshal(variables)
	if err != nil {
		return lastReply, nil, nil, fmt.Errorf("failed to marshal variables: %w", err)
	}

	history := execCtx.History
	if history == nil {
		history = []models.Turn{}
	}

	hist, err := json.Marshal(history)
	if err != nil {
		return lastReply, nil, nil, fmt.Errorf("failed to marshal history: %w", err)
	}

	return lastReply, vars, hist, nil
}

func (r *ExecutionContextRepository) Create(ctx context.Context, execCtx *models.ExecutionContext) error {
	key := execCtx.Key()

	lastReply, variables, history, err := marshalState(execCtx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO execution_contexts (instance_id, contact_id, workflow_id, current_node_id, last_reply,
			awaiting_reply, variables, history, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)
		ON CONFLICT (instance_id, contact_id) DO NOTHING
	`, key.InstanceID, key.ContactID, execCtx.WorkflowID, execCtx.CurrentNodeID, lastReply,
		execCtx.AwaitingReply, variables, history, now)
	if err != nil {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, persistence.ErrExecutionContextExists)
	}

	execCtx.Version = 1
	execCtx.CreatedAt = now
	execCtx.UpdatedAt = now

	return nil
}

func (r *ExecutionContextRepository) Save(ctx context.Context, execCtx *models.ExecutionContext) error {
	key := execCtx.Key()

	lastReply, variables, history, err := marshalState(execCtx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE execution_contexts SET
			workflow_id = $3, current_node_id = $4, last_reply = $5, awaiting_reply = $6,
			variables = $7, history = $8, version = version + 1, updated_at = $9
		WHERE instance_id = $1 AND contact_id = $2 AND version = $10
	`, key.InstanceID, key.ContactID, execCtx.WorkflowID, execCtx.CurrentNodeID, lastReply,
		execCtx.AwaitingReply, variables, history, now, execCtx.Version)
	if err != nil {
		return persistence.NewConversationError("Save", key.InstanceID, key.ContactID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		_, getErr := r.Get(ctx, key)
		if persistence.IsExecutionContextNotFound(getErr) {
			return getErr
		}

		return persistence.NewConversationError("Save", key.InstanceID, key.ContactID, persistence.ErrStaleExecutionContext)
	}

	execCtx.Version++
	execCtx.UpdatedAt = now

	return nil
}

func (r *ExecutionContextRepository) Delete(ctx context.Context, key models.ConversationKey) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM execution_contexts WHERE instance_id = $1 AND contact_id = $2`, key.InstanceID, key.ContactID)
	if err != nil {
		return persistence.NewConversationError("Delete", key.InstanceID, key.ContactID, err)
	}

	return nil
}
