package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *Persistence
}

// List returns workflows sorted by id.
func (wr *WorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	names, err := wr.store.list(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(names))

	for _, name := range names {
		var workflow models.Workflow

		err := wr.store.readJSON(workflowsDir, name, &workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", strings.TrimSuffix(name, ".json"), err)
		}

		if filter.ActiveOnly && !workflow.Active {
			continue
		}

		workflows = append(workflows, &workflow)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	var workflow models.Workflow

	err := wr.store.readJSON(workflowsDir, id+".json", &workflow)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return &workflow, nil
}

// Save creates or replaces a workflow.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	if err := validateID(workflow.ID); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	return wr.store.writeJSON(workflowsDir, workflow.ID+".json", workflow)
}

// Delete removes a workflow file.
func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	_, err := os.Stat(wr.store.path(workflowsDir, id+".json"))
	if os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return wr.store.remove(workflowsDir, id+".json")
}
