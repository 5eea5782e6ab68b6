package core

import "fmt"

// Common errors returned by the pool and completion handles.
var (
	// ErrPoolClosed is returned when attempting to submit a task to a pool
	// that is shutting down or terminated. Once shutdown has been initiated,
	// the pool never accepts tasks again.
	ErrPoolClosed = &PoolError{msg: "pool is closed"}

	// ErrQueueFull is returned by Submit when the bounded queue is full and
	// the rejection policy is Fail. Callers may retry later or apply
	// backpressure.
	ErrQueueFull = &PoolError{msg: "task queue is full"}

	// ErrCancelled is the error carried by a handle that reached the
	// Cancelled state. It is distinct from a task failure so callers can
	// decide on retry logic.
	ErrCancelled = &PoolError{msg: "task cancelled"}

	// ErrTimeout is returned by Handle.GetWithTimeout when the deadline
	// passes before resolution. The underlying task keeps running (or stays
	// queued) unless explicitly cancelled.
	ErrTimeout = &PoolError{msg: "operation timed out"}

	// ErrNilTask is returned when a nil task function is submitted.
	ErrNilTask = &PoolError{msg: "task is nil"}
)

// PoolError is the error type for pool-level failures. It supports
// errors.Is/errors.As via Unwrap.
type PoolError struct {
	msg string
	err error
}

func (e *PoolError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("workpool: %s: %v", e.msg, e.err)
	}
	return fmt.Sprintf("workpool: %s", e.msg)
}

func (e *PoolError) Unwrap() error {
	return e.err
}

// ErrInvalidConfig creates a construction-time configuration error.
// A pool whose configuration fails validation is never started, so these
// errors are fatal to pool creation.
func ErrInvalidConfig(msg string) error {
	return &PoolError{msg: "invalid config: " + msg}
}

// TaskPanicError carries a panic recovered from a task. The worker that
// recovered it keeps serving subsequent tasks; the panic value and stack
// are preserved in the handle's Failed result.
type TaskPanicError struct {
	Value any
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("workpool: task panicked: %v", e.Value)
}
