package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const selectWorkflow = `
	SELECT
		id
	  , name
	  , trigger_phrase
	  , active
	  , variables
	  , created_at
	  , updated_at
	FROM workflows
`

// List returns workflows ordered by id.
func (r *WorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	query := selectWorkflow + ` WHERE deleted_at IS NULL AND ($1 = false OR active = true) ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err := r.loadGraph(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, selectWorkflow+` WHERE id = $1 AND deleted_at IS NULL`, id)

	workflow, err := r.scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	err = r.loadGraph(ctx, workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// Save upserts the workflow and replaces its nodes and connections in one transaction.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	variables, err := json.Marshal(workflow.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, trigger_phrase, active, variables, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			trigger_phrase = EXCLUDED.trigger_phrase,
			active = EXCLUDED.active,
			variables = EXCLUDED.variables,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`, workflow.ID, workflow.Name, workflow.Trigger, workflow.Active, variables, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	err = r.replaceGraph(ctx, tx, workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) replaceGraph(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete nodes: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM workflow_connections WHERE workflow_id = $1`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete connections: %w", err)
	}

	for position, node := range workflow.Nodes {
		data, err := json.Marshal(node.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal data of node %s: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, position, node_type, name, data)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, workflow.ID, node.ID, position, string(node.Type), node.Name, data)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	for position, conn := range workflow.Connections {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_connections
				(workflow_id, position, id, source_node_id, source_handle, target_node_id, target_handle)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, workflow.ID, position, conn.ID, conn.Source, conn.SourceHandle, conn.Target, conn.TargetHandle)
		if err != nil {
			return fmt.Errorf("failed to insert connection %s->%s: %w", conn.Source, conn.Target, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, node_type, name, data FROM workflow_nodes WHERE workflow_id = $1 ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflow.Nodes = make([]*models.WorkflowNode, 0)

	for rows.Next() {
		var (
			node     models.WorkflowNode
			nodeType string
			data     []byte
		)

		err := rows.Scan(&node.ID, &nodeType, &node.Name, &data)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		node.Type = models.NodeType(nodeType)

		if len(data) > 0 {
			err = json.Unmarshal(data, &node.Data)
			if err != nil {
				return fmt.Errorf("failed to unmarshal data of node %s: %w", node.ID, err)
			}
		}

		workflow.Nodes = append(workflow.Nodes, &node)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	connRows, err := r.db.QueryContext(ctx, `
		SELECT id, source_node_id, source_handle, target_node_id, target_handle
		FROM workflow_connections WHERE workflow_id = $1 ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query connections: %w", err)
	}

	defer closeRows(ctx, r.logger, connRows)

	workflow.Connections = make([]*models.Connection, 0)

	for connRows.Next() {
		var conn models.Connection

		err := connRows.Scan(&conn.ID, &conn.Source, &conn.SourceHandle, &conn.Target, &conn.TargetHandle)
		if err != nil {
			return fmt.Errorf("failed to scan connection: %w", err)
		}

		workflow.Connections = append(workflow.Connections, &conn)
	}

	err = connRows.Err()
	if err != nil {
		return fmt.Errorf("error iterating connections: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow  models.Workflow
		variables []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Trigger,
		&workflow.Active,
		&variables,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(variables) > 0 && string(variables) != "null" {
		err = json.Unmarshal(variables, &workflow.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	return &workflow, nil
}
