package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	rd "github.com/redis/go-redis/v9"
)

// PendingActionRepository stores the single pending action of a conversation under its own key.
type PendingActionRepository struct {
	store *Persistence
}

func (r *PendingActionRepository) redisKey(key models.ConversationKey) string {
	return r.store.key(pendingPrefix, key.InstanceID, key.ContactID)
}

func (r *PendingActionRepository) Get(ctx context.Context, key models.ConversationKey) (*models.PendingAction, error) {
	var action models.PendingAction

	found, err := getJSON(ctx, r.store.client, r.redisKey(key), &action)
	if err != nil {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, err)
	}

	if !found {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, persistence.ErrPendingActionNotFound)
	}

	return &action, nil
}

func (r *PendingActionRepository) Create(ctx context.Context, action *models.PendingAction) error {
	key := action.Key()

	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal pending action: %w", err)
	}

	created, err := r.store.client.SetNX(ctx, r.redisKey(key), data, 0).Result()
	if err != nil {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, err)
	}

	if !created {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, persistence.ErrPendingActionExists)
	}

	return nil
}

// update applies change to the stored action with actionID and writes it back atomically.
// change returning false leaves the key untouched.
func (r *PendingActionRepository) update(ctx context.Context, key models.ConversationKey, actionID string,
	change func(action *models.PendingAction) (write bool, remove bool),
) (bool, error) {
	redisKey := r.redisKey(key)
	applied := false

	err := r.store.watch(ctx, redisKey, func(tx *rd.Tx) error {
		applied = false

		var action models.PendingAction

		found, err := getJSON(ctx, tx, redisKey, &action)
		if err != nil || !found || action.ID != actionID {
			return err
		}

		write, remove := change(&action)
		if !write && !remove {
			return nil
		}

		data, err := json.Marshal(&action)
		if err != nil {
			return fmt.Errorf("failed to marshal pending action: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			if remove {
				pipe.Del(ctx, redisKey)
			} else {
				pipe.Set(ctx, redisKey, data, 0)
			}

			return nil
		})
		if err != nil {
			return err
		}

		applied = true

		return nil
	})

	return applied, err
}

func (r *PendingActionRepository) Lock(ctx context.Context, key models.ConversationKey, actionID string, now, until time.Time) (bool, error) {
	locked, err := r.update(ctx, key, actionID, func(action *models.PendingAction) (bool, bool) {
		if action.Locked(now) {
			return false, false
		}

		action.LockedUntil = &until

		return true, false
	})
	if err != nil {
		return false, persistence.NewConversationError("Lock", key.InstanceID, key.ContactID, err)
	}

	return locked, nil
}

func (r *PendingActionRepository) Unlock(ctx context.Context, key models.ConversationKey, actionID string) error {
	_, err := r.update(ctx, key, actionID, func(action *models.PendingAction) (bool, bool) {
		action.LockedUntil = nil

		return true, false
	})
	if err != nil {
		return persistence.NewConversationError("Unlock", key.InstanceID, key.ContactID, err)
	}

	return nil
}

func (r *PendingActionRepository) Delete(ctx context.Context, key models.ConversationKey, actionID string) (bool, error) {
	deleted, err := r.update(ctx, key, actionID, func(*models.PendingAction) (bool, bool) {
		return false, true
	})
	if err != nil {
		return false, persistence.NewConversationError("Delete", key.InstanceID, key.ContactID, err)
	}

	return deleted, nil
}
