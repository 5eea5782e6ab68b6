package core

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// HandleState is the lifecycle state of a completion handle.
//
// Transitions: Pending -> Running -> {Completed | Failed | Cancelled},
// plus Pending -> Cancelled for tasks cancelled before they start.
// Exactly one terminal state is reached exactly once.
type HandleState int32

const (
	StatePending HandleState = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns a human-readable state name.
func (s HandleState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Handle represents the eventual outcome of one submitted task.
// Ownership is shared between the submitter (which may wait on it) and the
// pool (which resolves it); both sides drop their references once done and
// the garbage collector reclaims the handle.
//
// All methods are safe for concurrent use.
type Handle struct {
	state atomic.Int32
	done  chan struct{}

	mu      sync.Mutex
	value   any
	err     error
	taskCtx context.Context
	cancel  context.CancelFunc

	cancelRequested atomic.Bool

	task Task
}

// NewHandle creates a Pending handle wrapping the given task.
// Normally handles are created by Pool.Submit; this is exported for
// veneers (SerialRunner) that drive handle resolution themselves.
func NewHandle(task Task) *Handle {
	return &Handle{
		done: make(chan struct{}),
		task: task,
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() HandleState {
	return HandleState(h.state.Load())
}

// IsDone reports whether the handle has reached a terminal state.
func (h *Handle) IsDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the handle reaches a terminal
// state. Useful for select-based waiting.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Get blocks until the handle resolves or ctx is done.
// A Completed handle yields (value, nil); a Failed handle yields the
// captured cause; a Cancelled handle yields ErrCancelled.
func (h *Handle) Get(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetWithTimeout is like Get but fails with ErrTimeout after the given
// duration. The task keeps running (or stays queued); only the wait is
// abandoned.
func (h *Handle) GetWithTimeout(timeout time.Duration) (any, error) {
	select {
	case <-h.done:
		return h.outcome()
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.outcome()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Value returns the result value. It is only meaningful once the handle
// has resolved Completed; before that it returns nil.
func (h *Handle) Value() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

// Err returns the terminal error (nil for Completed, ErrCancelled for
// Cancelled, the captured cause for Failed). Before resolution it
// returns nil.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Cancel requests best-effort cancellation.
//
// A Pending task is prevented from starting and the handle resolves
// Cancelled; Cancel returns true. For a Running task, cancellation is
// advisory: the task's context is cancelled but arbitrary user code cannot
// be stopped, so the handle resolves based on whichever outcome happens
// first; Cancel returns false. Cancelling a resolved handle has no effect.
func (h *Handle) Cancel() bool {
	if h.state.CompareAndSwap(int32(StatePending), int32(StateCancelled)) {
		h.mu.Lock()
		h.err = ErrCancelled
		h.mu.Unlock()
		close(h.done)
		return true
	}

	if h.State() == StateRunning {
		h.cancelRequested.Store(true)
		h.mu.Lock()
		cancel := h.cancel
		h.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	return false
}

// tryStart transitions Pending -> Running and attaches the per-task
// context. Returns false if the handle was cancelled while queued, in
// which case the caller must not execute the task (at-most-once start).
func (h *Handle) tryStart(parent context.Context) bool {
	if !h.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	h.mu.Lock()
	h.taskCtx = ctx
	h.cancel = cancel
	h.mu.Unlock()

	// Cancel may have observed Running before the cancel func was attached.
	if h.cancelRequested.Load() {
		cancel()
	}
	return true
}

// complete resolves Running -> Completed.
func (h *Handle) complete(value any) {
	if !h.state.CompareAndSwap(int32(StateRunning), int32(StateCompleted)) {
		return
	}
	h.mu.Lock()
	h.value = value
	h.releaseCancelLocked()
	h.mu.Unlock()
	close(h.done)
}

// fail resolves Running -> Failed, except that a task which returned a
// cancellation error after Cancel was requested resolves Cancelled instead,
// so callers can distinguish "failed" from "cancelled".
func (h *Handle) fail(err error) {
	target := StateFailed
	if h.cancelRequested.Load() &&
		(errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled)) {
		target = StateCancelled
		err = ErrCancelled
	}
	if !h.state.CompareAndSwap(int32(StateRunning), int32(target)) {
		return
	}
	h.mu.Lock()
	h.err = err
	h.releaseCancelLocked()
	h.mu.Unlock()
	close(h.done)
}

// reject resolves Pending -> Failed without the task ever starting.
// Used when a deferred enqueue (delayed task) cannot be completed.
func (h *Handle) reject(err error) bool {
	if !h.state.CompareAndSwap(int32(StatePending), int32(StateFailed)) {
		return false
	}
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
	return true
}

func (h *Handle) releaseCancelLocked() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Handle) outcome() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.err
}

// RunHandle executes the handle's task on the calling goroutine with panic
// recovery and resolves the handle. Returns false without executing if the
// handle is not Pending (already cancelled or claimed by another runner) -
// this is the at-most-once execution guard shared by pool workers, the
// CallerRuns policy, and SerialRunner.
func RunHandle(ctx context.Context, h *Handle) bool {
	if !h.tryStart(ctx) {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			h.fail(&TaskPanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	h.mu.Lock()
	task := h.task
	h.task = nil // release the closure and its captures once claimed
	h.mu.Unlock()

	value, err := task(h.taskContext())
	if err != nil {
		h.fail(err)
	} else {
		h.complete(value)
	}
	return true
}

// taskContext returns the per-task context attached by tryStart.
func (h *Handle) taskContext() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.taskCtx == nil {
		return context.Background()
	}
	return h.taskCtx
}
