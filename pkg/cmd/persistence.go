package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/persistence/postgresql"
	"github.com/dukex/chatflow/pkg/persistence/redis"
)

const redisNamespace = "chatflow"

// NewPersistence picks the store from the URL scheme: postgres:// and
// postgresql:// use PostgreSQL, redis:// and rediss:// use Redis, file:// or a
// bare path use JSON files.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL persistence: %w", err)
		}

		return store, nil
	case "redis":
		store, err := redis.NewPersistence(ctx, logger, databaseURL, redisNamespace)
		if err != nil {
			return nil, fmt.Errorf("failed to open Redis persistence: %w", err)
		}

		return store, nil
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	case "redis", "rediss":
		return "redis"
	default:
		return "file"
	}
}
