package redis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisURL string

func setupRedis(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	if redisURL != "" {
		return redisURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	redisURL = fmt.Sprintf("redis://%s/0", endpoint)

	return redisURL
}

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	url := setupRedis(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	// A fresh namespace per test isolates keys on the shared server.
	p, err := NewPersistence(ctx, logger, url, "test-"+uuid.New().String())
	require.NoError(t, err)

	t.Cleanup(func() { _ = p.Close(ctx) })

	return p
}

func TestRedisPersistence(t *testing.T) {
	testutil.RunPersistenceSuite(t, func(t *testing.T) persistence.Persistence {
		return newTestPersistence(t)
	})
}

func TestRedisPersistence_HealthCheck(t *testing.T) {
	p := newTestPersistence(t)

	require.NoError(t, p.HealthCheck(context.Background()))
}

func TestNewPersistence_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	_, err := NewPersistence(context.Background(), logger, "http://not-redis", "ns")
	require.Error(t, err)
}

func TestPersistence_KeyNamespacing(t *testing.T) {
	p := newPersistence(nil, slog.Default(), "")

	assert.Equal(t, "chatflow:ctx:inst:5511", p.key(contextPrefix, "inst", "5511"))
}
