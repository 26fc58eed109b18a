// Package postgresql provides PostgreSQL persistence for workflows and conversation state.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflowRepo         *WorkflowRepository
	executionContextRepo *ExecutionContextRepository
	pendingActionRepo    *PendingActionRepository
	committedActionRepo  *CommittedActionRepository
}

// NewPersistence connects to PostgreSQL and brings the schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:                   database,
		logger:               logger,
		workflowRepo:         NewWorkflowRepository(database, logger),
		executionContextRepo: NewExecutionContextRepository(database),
		pendingActionRepo:    NewPendingActionRepository(database),
		committedActionRepo:  NewCommittedActionRepository(database, logger),
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionContextRepository() persistence.ExecutionContextRepository {
	return p.executionContextRepo
}

func (p *Persistence) PendingActionRepository() persistence.PendingActionRepository {
	return p.pendingActionRepo
}

func (p *Persistence) CommittedActionRepository() persistence.CommittedActionRepository {
	return p.committedActionRepo
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
