// Package delivery serialises outbound sends per recipient.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("delivery queue is closed")

// Task is one opaque send operation.
type Task func(ctx context.Context) error

// Receipt settles once its task has run, successfully or not.
type Receipt struct {
	done chan struct{}
	err  error
}

func newReceipt() *Receipt {
	return &Receipt{done: make(chan struct{})}
}

func (r *Receipt) settle(err error) {
	r.err = err
	close(r.done)
}

// Done is closed when the task has settled.
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Err returns the task error. It is only meaningful after Done is closed.
func (r *Receipt) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the task settles or ctx ends.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type entry struct {
	task    Task
	receipt *Receipt
}

// lane is the FIFO of one recipient; a single worker drains it.
type lane struct {
	pending []entry
}

// Queue runs tasks for the same key strictly in submission order and tasks for
// different keys independently. A key's worker exits and its lane is dropped as
// soon as the lane is empty.
type Queue struct {
	logger      *slog.Logger
	taskTimeout time.Duration

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Queue.
type Option func(*Queue)

// WithTaskTimeout bounds the run time of every task.
func WithTaskTimeout(timeout time.Duration) Option {
	return func(q *Queue) {
		q.taskTimeout = timeout
	}
}

func NewQueue(logger *slog.Logger, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		logger: logger.With("module", "delivery_queue"),
		lanes:  make(map[string]*lane),
		ctx:    ctx,
		cancel: cancel,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Enqueue appends task to the tail of key's lane.
func (q *Queue) Enqueue(key string, task Task) *Receipt {
	receipt := newReceipt()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		receipt.settle(ErrQueueClosed)

		return receipt
	}

	l, ok := q.lanes[key]
	if !ok {
		l = &lane{}
		q.lanes[key] = l

		q.wg.Add(1)

		go q.work(key, l)
	}

	l.pending = append(l.pending, entry{task: task, receipt: receipt})

	return receipt
}

func (q *Queue) work(key string, l *lane) {
	defer q.wg.Done()

	for {
		q.mu.Lock()

		if len(l.pending) == 0 {
			delete(q.lanes, key)
			q.mu.Unlock()

			return
		}

		next := l.pending[0]
		l.pending[0] = entry{}
		l.pending = l.pending[1:]

		q.mu.Unlock()

		err := q.run(next.task)
		if err != nil {
			q.logger.ErrorContext(q.ctx, "Delivery task failed", "recipient", key, "error", err)
		}

		next.receipt.settle(err)
	}
}

func (q *Queue) run(task Task) (err error) {
	ctx := q.ctx

	if q.taskTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, q.taskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery task panicked: %v", r)
		}
	}()

	return task(ctx)
}

// ActiveKeys returns how many recipients currently have queued or running tasks.
func (q *Queue) ActiveKeys() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.lanes)
}

// Close stops accepting tasks and waits for queued ones to finish. When ctx
// ends first, running tasks are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})

	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()

		return nil
	case <-ctx.Done():
		q.cancel()

		return ctx.Err()
	}
}
