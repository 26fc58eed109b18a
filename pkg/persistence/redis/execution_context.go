package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	rd "github.com/redis/go-redis/v9"
)

// ExecutionContextRepository stores each context under its own key.
type ExecutionContextRepository struct {
	store *Persistence
}

func (r *ExecutionContextRepository) redisKey(key models.ConversationKey) string {
	return r.store.key(contextPrefix, key.InstanceID, key.ContactID)
}

func (r *ExecutionContextRepository) Get(ctx context.Context, key models.ConversationKey) (*models.ExecutionContext, error) {
	var execCtx models.ExecutionContext

	found, err := getJSON(ctx, r.store.client, r.redisKey(key), &execCtx)
	if err != nil {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, err)
	}

	if !found {
		return nil, persistence.NewConversationError("Get", key.InstanceID, key.ContactID, persistence.ErrExecutionContextNotFound)
	}

	return &execCtx, nil
}

func (r *ExecutionContextRepository) Create(ctx context.Context, execCtx *models.ExecutionContext) error {
	key := execCtx.Key()
	now := time.Now().UTC()

	next := execCtx.Clone()
	next.Version = 1
	next.CreatedAt = now
	next.UpdatedAt = now

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	created, err := r.store.client.SetNX(ctx, r.redisKey(key), data, 0).Result()
	if err != nil {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, err)
	}

	if !created {
		return persistence.NewConversationError("Create", key.InstanceID, key.ContactID, persistence.ErrExecutionContextExists)
	}

	execCtx.Version = next.Version
	execCtx.CreatedAt = now
	execCtx.UpdatedAt = now

	return nil
}

func (r *ExecutionContextRepository) Save(ctx context.Context, execCtx *models.ExecutionContext) error {
	key := execCtx.Key()
	redisKey := r.redisKey(key)

	next := execCtx.Clone()
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	err := r.store.client.Watch(ctx, func(tx *rd.Tx) error {
		var current models.ExecutionContext

		found, err := getJSON(ctx, tx, redisKey, &current)
		if err != nil {
			return err
		}

		if !found {
			return persistence.ErrExecutionContextNotFound
		}

		if current.Version != execCtx.Version {
			return persistence.ErrStaleExecutionContext
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal execution context: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, 0)

			return nil
		})

		return err
	}, redisKey)
	if errors.Is(err, rd.TxFailedErr) {
		err = persistence.ErrStaleExecutionContext
	}

	if err != nil {
		return persistence.NewConversationError("Save", key.InstanceID, key.ContactID, err)
	}

	execCtx.Version = next.Version
	execCtx.UpdatedAt = next.UpdatedAt

	return nil
}

func (r *ExecutionContextRepository) Delete(ctx context.Context, key models.ConversationKey) error {
	err := r.store.client.Del(ctx, r.redisKey(key)).Err()
	if err != nil {
		return persistence.NewConversationError("Delete", key.InstanceID, key.ContactID, err)
	}

	return nil
}
