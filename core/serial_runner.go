package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// SerialRunner executes its tasks one at a time in FIFO order on top of an
// Executor (normally a pool). Between tasks it yields back to the pool, so
// a long serial stream does not monopolize a worker and no goroutine is
// parked while the runner is idle.
//
// Tasks posted to the same SerialRunner never run concurrently, which
// allows lock-free access to resources owned by that runner.
//
// The pump itself executes as a task on the backing pool, so the pool's
// completed counter and duration metrics account pump executions (roughly
// one per posted task), not the posted tasks individually.
type SerialRunner struct {
	exec  Executor
	queue *handleQueue

	mu        sync.Mutex
	isRunning bool

	activeRunners int32 // atomic guard for the no-concurrency assertion
	closed        atomic.Bool
}

// NewSerialRunner creates a SerialRunner backed by the given executor.
func NewSerialRunner(exec Executor) *SerialRunner {
	return &SerialRunner{
		exec:  exec,
		queue: newHandleQueue(),
	}
}

// Post submits a task for serial execution and returns its handle.
// Returns ErrPoolClosed after Close, or the executor's submission error if
// the runner's pump could not be scheduled.
func (r *SerialRunner) Post(task Task) (*Handle, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if r.closed.Load() {
		return nil, ErrPoolClosed
	}

	h := NewHandle(task)
	r.queue.Push(h)
	if err := r.scheduleRunLoop(); err != nil {
		r.cancelQueued()
		return nil, err
	}
	return h, nil
}

// Pending returns the number of tasks waiting to run on this runner.
func (r *SerialRunner) Pending() int {
	return r.queue.Len()
}

// Close stops accepting tasks and resolves all queued-but-not-started
// handles Cancelled. A task currently running finishes normally.
// Idempotent.
func (r *SerialRunner) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.cancelQueued()
}

// IsClosed reports whether Close has been called.
func (r *SerialRunner) IsClosed() bool {
	return r.closed.Load()
}

// runLoop executes exactly one queued task, then reposts itself if more
// work remains. Yielding between tasks keeps the pool fair.
func (r *SerialRunner) runLoop(ctx context.Context) (any, error) {
	// Assertion: strictly one runLoop at a time
	if n := atomic.AddInt32(&r.activeRunners, 1); n > 1 {
		panic(fmt.Sprintf("SerialRunner: concurrent runLoop detected (count=%d)", n))
	}
	defer atomic.AddInt32(&r.activeRunners, -1)

	if h, ok := r.queue.Pop(); ok {
		// RunHandle skips handles cancelled while queued.
		RunHandle(ctx, h)
	}

	r.mu.Lock()
	if r.queue.IsEmpty() {
		r.isRunning = false
		r.mu.Unlock()
		return nil, nil
	}
	r.mu.Unlock()

	r.repostSelf()
	return nil, nil
}

// scheduleRunLoop starts the pump if it is not already scheduled.
func (r *SerialRunner) scheduleRunLoop() error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	r.mu.Unlock()

	if _, err := r.exec.Submit(r.runLoop); err != nil {
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		return err
	}
	return nil
}

// repostSelf re-submits the pump (yield between tasks).
func (r *SerialRunner) repostSelf() {
	if _, err := r.exec.Submit(r.runLoop); err != nil {
		// Executor refused the pump (pool shutting down); nothing will run
		// the remaining tasks, so resolve them Cancelled.
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		r.cancelQueued()
	}
}

func (r *SerialRunner) cancelQueued() {
	for _, h := range r.queue.Drain() {
		h.Cancel()
	}
}
