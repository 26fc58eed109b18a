package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunPersistenceSuite exercises the behaviour every persistence.Persistence must share.
// newStore is called once per subtest and must return an empty store.
func RunPersistenceSuite(t *testing.T, newStore func(t *testing.T) persistence.Persistence) {
	t.Helper()

	t.Run("workflows", func(t *testing.T) { testWorkflows(t, newStore(t)) })
	t.Run("execution contexts", func(t *testing.T) { testExecutionContexts(t, newStore(t)) })
	t.Run("execution context concurrent create", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("pending actions", func(t *testing.T) { testPendingActions(t, newStore(t)) })
	t.Run("pending action single lock", func(t *testing.T) { testSingleLock(t, newStore(t)) })
	t.Run("committed actions", func(t *testing.T) { testCommittedActions(t, newStore(t)) })
}

func testKey() models.ConversationKey {
	return models.ConversationKey{InstanceID: "inst-" + uuid.New().String()[:8], ContactID: "5511999990000"}
}

func testWorkflows(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.WorkflowRepository()

	active := NewWorkflow("wf-a", "oi").Message("m1", "Olá").Chain("m1").Build()
	inactive := NewWorkflow("wf-b", "tchau").Inactive().Build()

	require.NoError(t, repo.Save(ctx, active))
	require.NoError(t, repo.Save(ctx, inactive))

	got, err := repo.GetByID(ctx, "wf-a")
	require.NoError(t, err)
	assert.Equal(t, "oi", got.Trigger)
	assert.Len(t, got.Nodes, 2)
	assert.Len(t, got.Connections, 1)

	all, err := repo.List(ctx, persistence.WorkflowFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := repo.List(ctx, persistence.WorkflowFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, "wf-a", onlyActive[0].ID)

	active.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, active))

	got, err = repo.GetByID(ctx, "wf-a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	require.NoError(t, repo.Delete(ctx, "wf-b"))

	_, err = repo.GetByID(ctx, "wf-b")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = repo.Delete(ctx, "wf-b")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func testExecutionContexts(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.ExecutionContextRepository()
	key := testKey()

	_, err := repo.Get(ctx, key)
	require.True(t, persistence.IsExecutionContextNotFound(err))

	execCtx := NewExecutionContext(key, "wf-a", "q1")
	execCtx.AwaitingReply = true
	execCtx.Variables["nome"] = "Ana"

	require.NoError(t, repo.Create(ctx, execCtx))
	assert.Equal(t, int64(1), execCtx.Version)

	err = repo.Create(ctx, NewExecutionContext(key, "wf-other", "x"))
	require.ErrorIs(t, err, persistence.ErrExecutionContextExists)

	loaded, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "wf-a", loaded.WorkflowID)
	assert.Equal(t, "q1", loaded.CurrentNodeID)
	assert.True(t, loaded.AwaitingReply)
	assert.Equal(t, "Ana", loaded.Variables["nome"])
	assert.Equal(t, int64(1), loaded.Version)

	reply := "Sim"
	loaded.LastReply = &reply
	loaded.CurrentNodeID = "m2"
	require.NoError(t, repo.Save(ctx, loaded))
	assert.Equal(t, int64(2), loaded.Version)

	// execCtx still carries version 1 and must lose.
	execCtx.CurrentNodeID = "stale"
	err = repo.Save(ctx, execCtx)
	require.ErrorIs(t, err, persistence.ErrStaleExecutionContext)

	loaded, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "m2", loaded.CurrentNodeID)
	require.NotNil(t, loaded.LastReply)
	assert.Equal(t, "Sim", *loaded.LastReply)

	require.NoError(t, repo.Delete(ctx, key))
	require.NoError(t, repo.Delete(ctx, key))

	_, err = repo.Get(ctx, key)
	assert.True(t, persistence.IsExecutionContextNotFound(err))
}

func testConcurrentCreate(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.ExecutionContextRepository()
	key := testKey()

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := repo.Create(ctx, NewExecutionContext(key, "wf", "n"))
			if err == nil {
				created.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func testPendingActions(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.PendingActionRepository()
	key := testKey()
	now := time.Now().UTC()

	_, err := repo.Get(ctx, key)
	require.True(t, persistence.IsPendingActionNotFound(err))

	action := NewPendingAction(key, "Consulta", 10*time.Minute)
	require.NoError(t, repo.Create(ctx, action))

	err = repo.Create(ctx, NewPendingAction(key, "Outra", 10*time.Minute))
	require.ErrorIs(t, err, persistence.ErrPendingActionExists)

	loaded, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, action.ID, loaded.ID)
	assert.Equal(t, "Consulta", loaded.Payload.Title)
	assert.Nil(t, loaded.LockedUntil)

	ok, err := repo.Lock(ctx, key, "other-id", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Lock(ctx, key, action.ID, now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Lock(ctx, key, action.ID, now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "second lock within the lease must fail")

	ok, err = repo.Lock(ctx, key, action.ID, now.Add(2*time.Minute), now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken again")

	require.NoError(t, repo.Unlock(ctx, key, action.ID))

	loaded, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, loaded.LockedUntil)

	deleted, err := repo.Delete(ctx, key, "other-id")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.Delete(ctx, key, action.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, key, action.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	ok, err = repo.Lock(ctx, key, action.ID, now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testSingleLock(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.PendingActionRepository()
	key := testKey()
	now := time.Now().UTC()

	action := NewPendingAction(key, "Consulta", 10*time.Minute)
	require.NoError(t, repo.Create(ctx, action))

	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := repo.Lock(ctx, key, action.ID, now, now.Add(time.Minute))
			if err == nil && ok {
				acquired.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
}

func testCommittedActions(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.CommittedActionRepository()
	key := testKey()
	now := time.Now().UTC().Truncate(time.Second)

	old := &models.CommittedAction{
		ID: uuid.New().String(), PendingActionID: "p-old",
		InstanceID: key.InstanceID, ContactID: key.ContactID,
		Payload:     models.ActionPayload{Kind: "appointment", Title: "Antiga"},
		CommittedAt: now.Add(-time.Hour),
	}
	recent := &models.CommittedAction{
		ID: uuid.New().String(), PendingActionID: "p-new",
		InstanceID: key.InstanceID, ContactID: key.ContactID,
		Payload:     models.ActionPayload{Kind: "appointment", Title: "Nova"},
		ExternalRef: "ext-1",
		CommittedAt: now.Add(-30 * time.Second),
	}
	newest := &models.CommittedAction{
		ID: uuid.New().String(), PendingActionID: "p-newest",
		InstanceID: key.InstanceID, ContactID: key.ContactID,
		Payload:     models.ActionPayload{Kind: "appointment", Title: "Mais nova"},
		CommittedAt: now.Add(-10 * time.Second),
	}
	otherContact := &models.CommittedAction{
		ID: uuid.New().String(), PendingActionID: "p-other",
		InstanceID: key.InstanceID, ContactID: "5511000000000",
		Payload:     models.ActionPayload{Kind: "appointment", Title: "Outro"},
		CommittedAt: now,
	}

	for _, action := range []*models.CommittedAction{old, recent, newest, otherContact} {
		require.NoError(t, repo.Record(ctx, action))
	}

	got, err := repo.Recent(ctx, key, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newest.ID, got[0].ID)
	assert.Equal(t, recent.ID, got[1].ID)
	assert.Equal(t, "ext-1", got[1].ExternalRef)
	assert.Nil(t, got[1].CancelledAt)

	require.NoError(t, repo.MarkCancelled(ctx, recent.ID, now))

	got, err = repo.Recent(ctx, key, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[1].CancelledAt)
	assert.WithinDuration(t, now, *got[1].CancelledAt, time.Second)

	err = repo.MarkCancelled(ctx, "missing", now)
	require.ErrorIs(t, err, persistence.ErrCommittedActionNotFound)

	pruned, err := repo.Prune(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	got, err = repo.Recent(ctx, key, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
