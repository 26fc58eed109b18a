package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	rd "github.com/redis/go-redis/v9"
)

// CommittedActionRepository keeps actions in a hash, indexed by sorted sets
// scored by commit time: one per conversation and one global for pruning.
type CommittedActionRepository struct {
	store *Persistence
}

func (r *CommittedActionRepository) conversationIndex(key models.ConversationKey) string {
	return r.store.key(committedIndexKey, key.InstanceID, key.ContactID)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (r *CommittedActionRepository) Record(ctx context.Context, action *models.CommittedAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal committed action: %w", err)
	}

	member := rd.Z{Score: score(action.CommittedAt), Member: action.ID}

	_, err = r.store.client.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, r.store.key(committedKey), action.ID, data)
		pipe.ZAdd(ctx, r.conversationIndex(action.Key()), member)
		pipe.ZAdd(ctx, r.store.key(committedIndexKey), member)

		return nil
	})
	if err != nil {
		return persistence.NewConversationError("Record", action.InstanceID, action.ContactID, err)
	}

	return nil
}

func (r *CommittedActionRepository) load(ctx context.Context, ids []string) ([]*models.CommittedAction, error) {
	if len(ids) == 0 {
		return []*models.CommittedAction{}, nil
	}

	values, err := r.store.client.HMGet(ctx, r.store.key(committedKey), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load committed actions: %w", err)
	}

	actions := make([]*models.CommittedAction, 0, len(values))

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var action models.CommittedAction

		err := json.Unmarshal([]byte(raw), &action)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal committed action %s: %w", ids[i], err)
		}

		actions = append(actions, &action)
	}

	return actions, nil
}

func (r *CommittedActionRepository) Recent(ctx context.Context, key models.ConversationKey, since time.Time) ([]*models.CommittedAction, error) {
	ids, err := r.store.client.ZRevRangeByScore(ctx, r.conversationIndex(key), &rd.ZRangeBy{
		Min: strconv.FormatFloat(score(since), 'f', -1, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, persistence.NewConversationError("Recent", key.InstanceID, key.ContactID, err)
	}

	return r.load(ctx, ids)
}

func (r *CommittedActionRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	hashKey := r.store.key(committedKey)

	return r.store.watch(ctx, hashKey, func(tx *rd.Tx) error {
		raw, err := tx.HGet(ctx, hashKey, id).Bytes()
		if errors.Is(err, rd.Nil) {
			return fmt.Errorf("mark cancelled %s: %w", id, persistence.ErrCommittedActionNotFound)
		}

		if err != nil {
			return fmt.Errorf("failed to load committed action %s: %w", id, err)
		}

		var action models.CommittedAction

		err = json.Unmarshal(raw, &action)
		if err != nil {
			return fmt.Errorf("failed to unmarshal committed action %s: %w", id, err)
		}

		action.CancelledAt = &at

		data, err := json.Marshal(&action)
		if err != nil {
			return fmt.Errorf("failed to marshal committed action: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.HSet(ctx, hashKey, id, data)

			return nil
		})

		return err
	})
}

func (r *CommittedActionRepository) Prune(ctx context.Context, before time.Time) (int, error) {
	ids, err := r.store.client.ZRangeByScore(ctx, r.store.key(committedIndexKey), &rd.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(score(before), 'f', -1, 64),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find committed actions to prune: %w", err)
	}

	actions, err := r.load(ctx, ids)
	if err != nil {
		return 0, err
	}

	_, err = r.store.client.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, action := range actions {
			pipe.ZRem(ctx, r.conversationIndex(action.Key()), action.ID)
		}

		for _, id := range ids {
			pipe.HDel(ctx, r.store.key(committedKey), id)
			pipe.ZRem(ctx, r.store.key(committedIndexKey), id)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune committed actions: %w", err)
	}

	return len(ids), nil
}
