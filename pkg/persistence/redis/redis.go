// Package redis provides Redis persistence for workflows and conversation state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/persistence"
	rd "github.com/redis/go-redis/v9"
)

const (
	workflowsKey      = "workflows"
	contextPrefix     = "ctx"
	pendingPrefix     = "pending"
	committedKey      = "committed"
	committedIndexKey = "committed_index"

	maxTxRetries = 3
)

// Persistence implements persistence.Persistence on Redis. Check-and-set
// operations use WATCH/MULTI so several processes can share one server.
type Persistence struct {
	client    rd.UniversalClient
	namespace string
	logger    *slog.Logger

	workflowRepo         *WorkflowRepository
	executionContextRepo *ExecutionContextRepository
	pendingActionRepo    *PendingActionRepository
	committedActionRepo  *CommittedActionRepository
}

// NewPersistence connects to the Redis server described by a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL, namespace string) (*Persistence, error) {
	opts, err := rd.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs:    []string{opts.Addr},
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB, "namespace", namespace)

	return newPersistence(client, logger, namespace), nil
}

func newPersistence(client rd.UniversalClient, logger *slog.Logger, namespace string) *Persistence {
	if namespace == "" {
		namespace = "chatflow"
	}

	p := &Persistence{client: client, namespace: namespace, logger: logger}
	p.workflowRepo = &WorkflowRepository{store: p}
	p.executionContextRepo = &ExecutionContextRepository{store: p}
	p.pendingActionRepo = &PendingActionRepository{store: p}
	p.committedActionRepo = &CommittedActionRepository{store: p}

	return p
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

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

func (p *Persistence) key(args ...string) string {
	return fmt.Sprintf("%s:%s", p.namespace, strings.Join(args, ":"))
}

// getJSON loads a string key into out; found is false on redis.Nil.
func getJSON(ctx context.Context, cmd rd.Cmdable, key string, out any) (bool, error) {
	val, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, rd.Nil) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	err = json.Unmarshal(val, out)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return true, nil
}

// watch runs fn inside WATCH on key, retrying when a concurrent writer wins.
func (p *Persistence) watch(ctx context.Context, key string, fn func(tx *rd.Tx) error) error {
	var err error

	for range maxTxRetries {
		err = p.client.Watch(ctx, fn, key)
		if !errors.Is(err, rd.TxFailedErr) {
			return err
		}
	}

	return err
}
