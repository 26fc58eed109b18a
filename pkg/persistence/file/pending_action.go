package file

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// PendingActionRepository keeps one JSON file per conversation key.
type PendingActionRepository struct {
	store *Persistence
}

func (pr *PendingActionRepository) Get(ctx context.Context, key models.ConversationKey) (*models.PendingAction, error) {
	name, err := keyFileName(key)
	if err != nil {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, err)
	}

	pr.store.mu.Lock()
	defer pr.store.mu.Unlock()

	return pr.load(key, name)
}

func (pr *PendingActionRepository) load(key models.ConversationKey, name string) (*models.PendingAction, error) {
	var action models.PendingAction

	err := pr.store.readJSON(pendingActionsDir, name, &action)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, persistence.ErrPendingActionNotFound)
	}

	if err != nil {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, err)
	}

	return &action, nil
}

func (pr *PendingActionRepository) Create(ctx context.Context, action *models.PendingAction) error {
	key := action.Key()

	name, err := keyFileName(key)
	if err != nil {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, err)
	}

	pr.store.mu.Lock()
	defer pr.store.mu.Unlock()

	_, err = os.Stat(pr.store.path(pendingActionsDir, name))
	if err == nil {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, persistence.ErrPendingActionExists)
	}

	return pr.store.writeJSON(pendingActionsDir, name, action)
}

func (pr *PendingActionRepository) Lock(ctx context.Context, key models.ConversationKey, actionID string, now, until time.Time) (bool, error) {
	name, err := keyFileName(key)
	if err != nil {
		return false, persistence.NewConversationError("Lock", key.InstanceID, key.ContactID, err)
	}

	pr.store.mu.Lock()
	defer pr.store.mu.Unlock()

	action, err := pr.load(key, name)
	if persistence.IsPendingActionNotFound(err) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if action.ID != actionID || action.Locked(now) {
		return false, nil
	}

	action.LockedUntil = &until

	err = pr.store.writeJSON(pendingActionsDir, name, action)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (pr *PendingActionRepository) Unlock(ctx context.Context, key models.ConversationKey, actionID string) error {
	name, err := keyFileName(key)
	if err != nil {
		return persistence.NewConversationError("Unlock", key.InstanceID, key.ContactID, err)
	}

	pr.store.mu.Lock()
	defer pr.store.mu.Unlock()

	action, err := pr.load(key, name)
	if persistence.IsPendingActionNotFound(err) {
		return nil
	}

	if err != nil {
		return err
	}

	if action.ID != actionID {
		return nil
	}

	action.LockedUntil = nil

	return pr.store.writeJSON(pendingActionsDir, name, action)
}

func (pr *PendingActionRepository) Delete(ctx context.Context, key models.ConversationKey, actionID string) (bool, error) {
	name, err := keyFileName(key)
	if err != nil {
		return false, persistence.NewConversationError("Delete", key.InstanceID, key.ContactID, err)
	}

	pr.store.mu.Lock()
	defer pr.store.mu.Unlock()

	action, err := pr.load(key, name)
	if persistence.IsPendingActionNotFound(err) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if action.ID != actionID {
		return false, nil
	}

	err = pr.store.remove(pendingActionsDir, name)
	if err != nil {
		return false, err
	}

	return true, nil
}
