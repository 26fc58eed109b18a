package file

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// ExecutionContextRepository handles execution context-related file operations.
type ExecutionContextRepository struct {
	store *Persistence
}

func (ecr *ExecutionContextRepository) Get(ctx context.Context, key models.ConversationKey) (*models.ExecutionContext, error) {
	name, err := keyFileName(key)
	if err != nil {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, err)
	}

	ecr.store.mu.Lock()
	defer ecr.store.mu.Unlock()

	return ecr.load(key, name)
}

func (ecr *ExecutionContextRepository) load(key models.ConversationKey, name string) (*models.ExecutionContext, error) {
	var execCtx models.ExecutionContext

	err := ecr.store.readJSON(executionContextsDir, name, &execCtx)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, persistence.ErrExecutionContextNotFound)
	}

	if err != nil {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, err)
	}

	return &execCtx, nil
}

func (ecr *ExecutionContextRepository) Create(ctx context.Context, execCtx *models.ExecutionContext) error {
	key := execCtx.Key()

	name, err := keyFileName(key)
	if err != nil {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, err)
	}

	ecr.store.mu.Lock()
	defer ecr.store.mu.Unlock()

	_, err = os.Stat(ecr.store.path(executionContextsDir, name))
	if err == nil {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, persistence.ErrExecutionContextExists)
	}

	now := time.Now().UTC()
	execCtx.Version = 1
	execCtx.CreatedAt = now
	execCtx.UpdatedAt = now

	return ecr.store.writeJSON(executionContextsDir, name, execCtx)
}

func (ecr *ExecutionContextRepository) Save(ctx context.Context, execCtx *models.ExecutionContext) error {
	key := execCtx.Key()

	name, err := keyFileName(key)
	if err != nil {
		return persistence.NewConversationError("Save", key.InstanceID, key.ContactID, err)
	}

	ecr.store.mu.Lock()
	defer ecr.store.mu.Unlock()

	current, err := ecr.load(key, name)
	if err != nil {
		return err
	}

	if current.Version != execCtx.Version {
		return persistence.NewConversationError("Save", key.InstanceID, key.ContactID, persistence.ErrStaleExecutionContext)
	}

	next := execCtx.Clone()
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	err = ecr.store.writeJSON(executionContextsDir, name, next)
	if err != nil {
		return err
	}

	execCtx.Version = next.Version
	execCtx.UpdatedAt = next.UpdatedAt

	return nil
}

func (ecr *ExecutionContextRepository) Delete(ctx context.Context, key models.ConversationKey) error {
	name, err := keyFileName(key)
	if err != nil {
		return persistence.NewConversationError("Delete", key.InstanceID, key.ContactID, err)
	}

	ecr.store.mu.Lock()
	defer ecr.store.mu.Unlock()

	return ecr.store.remove(executionContextsDir, name)
}
