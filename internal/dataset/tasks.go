package dataset

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"sheetlens/internal"
)

// ErrRunnerClosed is returned by Submit after Shutdown has started
var ErrRunnerClosed = fmt.Errorf("task runner is shut down")

// Task is a handle on one submitted background job
type Task struct {
	id   string
	done chan struct{}
	err  error
}

// ID returns the identifier the task was submitted with
func (t *Task) ID() string { return t.id }

// Done is closed when the task has finished
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's outcome; only meaningful after Done is closed
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// TaskRunner runs pipeline jobs in the background with bounded concurrency
type TaskRunner struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	logger *internal.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	pending atomic.Int64
	running atomic.Int64
}

// NewTaskRunner creates a runner allowing at most limit jobs at once
func NewTaskRunner(limit int, logger *internal.Logger) *TaskRunner {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskRunner{
		sem:    semaphore.NewWeighted(int64(limit)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Submit schedules fn and returns immediately. A panic inside fn is recovered
// and reported as the task's error.
func (r *TaskRunner) Submit(id string, fn func(ctx context.Context) error) (*Task, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	task := &Task{id: id, done: make(chan struct{})}
	r.pending.Add(1)

	go func() {
		defer r.wg.Done()
		defer close(task.done)
		defer r.pending.Add(-1)

		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			task.err = fmt.Errorf("task %s not started: %w", id, err)
			return
		}
		defer r.sem.Release(1)

		r.running.Add(1)
		defer r.running.Add(-1)

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("[TaskRunner] task %s panicked: %v\n%s", id, rec, debug.Stack())
				task.err = fmt.Errorf("task %s panicked: %v", id, rec)
			}
		}()

		task.err = fn(r.ctx)
	}()

	return task, nil
}

// Pending returns the number of submitted tasks that have not finished
func (r *TaskRunner) Pending() int { return int(r.pending.Load()) }

// InFlight returns the number of tasks currently executing
func (r *TaskRunner) InFlight() int { return int(r.running.Load()) }

// Wait blocks until every task submitted so far has finished
func (r *TaskRunner) Wait() { r.wg.Wait() }

// Shutdown stops accepting work and waits for submitted tasks. When ctx
// expires first, running tasks are cancelled and ctx's error is returned.
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.logger.Warn("[TaskRunner] shutdown deadline reached with %d tasks pending, cancelling", r.Pending())
		r.cancel()
		<-finished
		return ctx.Err()
	}
}
