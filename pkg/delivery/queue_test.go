package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()

	q := NewQueue(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = q.Close(ctx)
	})

	return q
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.events...)
}

func TestQueue_PreservesOrderPerKey(t *testing.T) {
	q := newTestQueue(t)
	rec := &recorder{}

	// The first task is the slowest; the second must still wait for it.
	slow := q.Enqueue("inst:a", func(ctx context.Context) error {
		rec.add("A start")
		time.Sleep(50 * time.Millisecond)
		rec.add("A end")

		return nil
	})
	fast := q.Enqueue("inst:a", func(ctx context.Context) error {
		rec.add("B start")
		rec.add("B end")

		return nil
	})

	ctx := context.Background()
	require.NoError(t, slow.Wait(ctx))
	require.NoError(t, fast.Wait(ctx))

	assert.Equal(t, []string{"A start", "A end", "B start", "B end"}, rec.all())
}

func TestQueue_ManyTasksKeepSubmissionOrder(t *testing.T) {
	q := newTestQueue(t)
	rec := &recorder{}

	receipts := make([]*Receipt, 0, 50)
	for i := range 50 {
		receipts = append(receipts, q.Enqueue("k", func(ctx context.Context) error {
			rec.add(string(rune('a' + i%26)))

			return nil
		}))
	}

	require.NoError(t, WaitAll(context.Background(), receipts))

	events := rec.all()
	require.Len(t, events, 50)

	for i, event := range events {
		assert.Equal(t, string(rune('a'+i%26)), event)
	}
}

func TestQueue_KeysAreIndependent(t *testing.T) {
	q := newTestQueue(t)
	release := make(chan struct{})

	blocked := q.Enqueue("inst:a", func(ctx context.Context) error {
		<-release

		return nil
	})

	other := q.Enqueue("inst:b", func(ctx context.Context) error { return nil })

	select {
	case <-other.Done():
	case <-time.After(time.Second):
		t.Fatal("task for another key was blocked")
	}

	close(release)
	require.NoError(t, blocked.Wait(context.Background()))
}

func TestQueue_FailureOnlyAffectsOwnReceipt(t *testing.T) {
	q := newTestQueue(t)
	boom := errors.New("channel down")

	failed := q.Enqueue("k", func(ctx context.Context) error { return boom })
	next := q.Enqueue("k", func(ctx context.Context) error { return nil })

	ctx := context.Background()
	require.ErrorIs(t, failed.Wait(ctx), boom)
	require.NoError(t, next.Wait(ctx))
	assert.ErrorIs(t, failed.Err(), boom)
}

func TestQueue_RecoversPanics(t *testing.T) {
	q := newTestQueue(t)

	panicked := q.Enqueue("k", func(ctx context.Context) error { panic("boom") })
	next := q.Enqueue("k", func(ctx context.Context) error { return nil })

	ctx := context.Background()
	require.ErrorContains(t, panicked.Wait(ctx), "panicked")
	require.NoError(t, next.Wait(ctx))
}

func TestQueue_DiscardsIdleKeys(t *testing.T) {
	q := newTestQueue(t)

	receipt := q.Enqueue("k", func(ctx context.Context) error { return nil })
	require.NoError(t, receipt.Wait(context.Background()))

	assert.Eventually(t, func() bool { return q.ActiveKeys() == 0 }, time.Second, 5*time.Millisecond)

	// A key that was discarded can be used again.
	again := q.Enqueue("k", func(ctx context.Context) error { return nil })
	require.NoError(t, again.Wait(context.Background()))
}

func TestQueue_TaskTimeout(t *testing.T) {
	q := newTestQueue(t, WithTaskTimeout(20*time.Millisecond))

	receipt := q.Enqueue("k", func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})

	require.ErrorIs(t, receipt.Wait(context.Background()), context.DeadlineExceeded)
}

func TestQueue_CloseDrainsAndRejects(t *testing.T) {
	q := NewQueue(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := &recorder{}

	receipt := q.Enqueue("k", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		rec.add("done")

		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, q.Close(ctx))
	require.NoError(t, receipt.Err())
	assert.Equal(t, []string{"done"}, rec.all())

	rejected := q.Enqueue("k", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, rejected.Wait(ctx), ErrQueueClosed)
}

func TestReceipt_WaitHonoursContext(t *testing.T) {
	q := newTestQueue(t)
	release := make(chan struct{})

	receipt := q.Enqueue("k", func(ctx context.Context) error {
		<-release

		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, receipt.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, receipt.Err())

	close(release)
}
