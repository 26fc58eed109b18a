package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	rd "github.com/redis/go-redis/v9"
)

// WorkflowRepository keeps every workflow as a field of one hash.
type WorkflowRepository struct {
	store *Persistence
}

func (wr *WorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	values, err := wr.store.client.HGetAll(ctx, wr.store.key(workflowsKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(values))

	for id, value := range values {
		var workflow models.Workflow

		err := json.Unmarshal([]byte(value), &workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
		}

		if filter.ActiveOnly && !workflow.Active {
			continue
		}

		workflows = append(workflows, &workflow)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows, nil
}

func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	value, err := wr.store.client.HGet(ctx, wr.store.key(workflowsKey), id).Bytes()
	if errors.Is(err, rd.Nil) {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(value, &workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	data, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	err = wr.store.client.HSet(ctx, wr.store.key(workflowsKey), workflow.ID, data).Err()
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	removed, err := wr.store.client.HDel(ctx, wr.store.key(workflowsKey), id).Result()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if removed == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}
