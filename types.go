package workpool

import "github.com/workpool-dev/workpool/core"

// Re-export commonly used types from the core package for convenience.
// This allows users to import only the workpool package for most use cases.

// Task is the unit of work: a computation producing a value or failing.
type Task = core.Task

// Handle represents the eventual outcome of one submitted task.
type Handle = core.Handle

// HandleState is the lifecycle state of a completion handle.
type HandleState = core.HandleState

// Handle state constants
const (
	StatePending   HandleState = core.StatePending
	StateRunning   HandleState = core.StateRunning
	StateCompleted HandleState = core.StateCompleted
	StateFailed    HandleState = core.StateFailed
	StateCancelled HandleState = core.StateCancelled
)

// RejectionPolicy selects the behavior of Submit when the bounded queue
// is full.
type RejectionPolicy = core.RejectionPolicy

// Rejection policy constants
const (
	Block      RejectionPolicy = core.Block
	Fail       RejectionPolicy = core.Fail
	CallerRuns RejectionPolicy = core.CallerRuns
	DropOldest RejectionPolicy = core.DropOldest
)

// PoolStats is an eventually-consistent snapshot of pool counters.
type PoolStats = core.PoolStats

// SerialRunner executes its tasks one at a time in FIFO order.
type SerialRunner = core.SerialRunner

// TaskPanicError carries a panic recovered from a task.
type TaskPanicError = core.TaskPanicError

// Common errors
var (
	ErrPoolClosed = core.ErrPoolClosed
	ErrQueueFull  = core.ErrQueueFull
	ErrCancelled  = core.ErrCancelled
	ErrTimeout    = core.ErrTimeout
	ErrNilTask    = core.ErrNilTask
)

// NewSerialRunner creates a SerialRunner backed by the given executor
// (normally a *Pool).
func NewSerialRunner(exec core.Executor) *SerialRunner {
	return core.NewSerialRunner(exec)
}
