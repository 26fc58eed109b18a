package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrInvalidWorkflow = errors.New("invalid workflow")

// Repository stores workflow definitions, rejecting graphs that do not compile.
type Repository struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

func NewRepository(persistence persistence.Persistence, registry *registry.Registry) *Repository {
	return &Repository{
		persistence: persistence,
		registry:    registry,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (r *Repository) FetchAll(ctx context.Context) ([]*models.Workflow, error) {
	return r.persistence.WorkflowRepository().List(ctx, persistence.WorkflowFilter{})
}

// FetchActive returns only workflows that may start conversations.
func (r *Repository) FetchActive(ctx context.Context) ([]*models.Workflow, error) {
	return r.persistence.WorkflowRepository().List(ctx, persistence.WorkflowFilter{ActiveOnly: true})
}

func (r *Repository) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return r.persistence.WorkflowRepository().GetByID(ctx, id)
}

func (r *Repository) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	err := r.Validate(ctx, workflow)
	if err != nil {
		return nil, err
	}

	err = r.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

func (r *Repository) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := r.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.ID = id
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	err = r.Validate(ctx, workflow)
	if err != nil {
		return nil, err
	}

	err = r.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// SetActive switches whether the workflow can be triggered. Activation
// re-checks that the graph still compiles.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) (*models.Workflow, error) {
	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if active {
		err = r.Validate(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	workflow.Active = active
	workflow.UpdatedAt = time.Now().UTC()

	err = r.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.persistence.WorkflowRepository().Delete(ctx, id)
}

// Validate checks the struct tags and that the graph compiles.
func (r *Repository) Validate(ctx context.Context, workflow *models.Workflow) error {
	err := r.validate.Struct(workflow)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	_, err = Compile(ctx, workflow, r.registry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	return nil
}
