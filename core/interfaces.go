package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution. The panic is
// always recovered by the worker loop first (a dead worker would silently
// shrink pool capacity); the handler only observes it.
//
// Implementations must be safe for concurrent use.
type PanicHandler interface {
	// HandlePanic is called after a panic has been captured into the
	// task's handle.
	//
	// Parameters:
	// - ctx: the context of the panicked task
	// - poolID: the ID of the pool where the panic occurred
	// - workerID: the worker that ran the task (-1 for caller-runs execution)
	// - panicInfo: the recovered panic value
	// - stackTrace: the stack trace at the time of panic
	HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("pool", poolID),
		F("worker", workerID),
		F("panic", fmt.Sprintf("%v", panicInfo)),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the hook for collecting task execution metrics.
// Implementations can bridge to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods must be non-blocking and fast to avoid impacting task execution.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(poolID string, duration time.Duration)

	// RecordTaskFailed records a task that resolved Failed (including
	// captured panics).
	RecordTaskFailed(poolID string)

	// RecordTaskCancelled records a handle that resolved Cancelled before
	// its task started (user cancellation, DropOldest eviction, or
	// non-draining shutdown).
	RecordTaskCancelled(poolID string)

	// RecordTaskRejected records a submission refused by the pool.
	RecordTaskRejected(poolID string, reason string)

	// RecordQueueDepth records the current number of queued tasks.
	RecordQueueDepth(poolID string, depth int)
}

// NilMetrics is the no-op default when no metrics sink is configured.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolID string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskFailed(poolID string)                           {}
func (m *NilMetrics) RecordTaskCancelled(poolID string)                        {}
func (m *NilMetrics) RecordTaskRejected(poolID string, reason string)          {}
func (m *NilMetrics) RecordQueueDepth(poolID string, depth int)                {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected submissions
// =============================================================================

// RejectedTaskHandler is called when a submission is refused:
// - the pool is shutting down
// - the bounded queue is full under the Fail policy
//
// Implementations must be safe for concurrent use.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolID string, reason string)
}

// DefaultRejectedTaskHandler logs rejected submissions.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejection.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolID string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("task rejected", F("pool", poolID), F("reason", reason))
}
