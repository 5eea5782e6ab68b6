package core

import (
	"context"
	"sync/atomic"
	"time"
)

// RejectionPolicy selects the behavior of Submit when the bounded queue
// is full.
type RejectionPolicy int

const (
	// Block suspends the submitting goroutine until space frees, the
	// caller's context is done, or the pool shuts down.
	Block RejectionPolicy = iota

	// Fail makes Submit return ErrQueueFull immediately.
	Fail

	// CallerRuns executes the task synchronously on the submitting
	// goroutine, bypassing the queue.
	CallerRuns

	// DropOldest evicts the oldest queued task (its handle resolves
	// Cancelled) to make room for the new one.
	DropOldest
)

// String returns the policy name used in configs and logs.
func (p RejectionPolicy) String() string {
	switch p {
	case Block:
		return "block"
	case Fail:
		return "fail"
	case CallerRuns:
		return "caller_runs"
	case DropOldest:
		return "drop_oldest"
	default:
		return "unknown"
	}
}

// ParseRejectionPolicy parses a policy name as written in config files.
func ParseRejectionPolicy(s string) (RejectionPolicy, error) {
	switch s {
	case "", "block":
		return Block, nil
	case "fail":
		return Fail, nil
	case "caller_runs":
		return CallerRuns, nil
	case "drop_oldest":
		return DropOldest, nil
	default:
		return Block, ErrInvalidConfig("unknown rejection policy: " + s)
	}
}

// blockRetryInterval bounds how long a Block-policy submitter sleeps
// between re-checks of the queue. The space channel delivers the common
// wakeup; the timer covers signal loss under heavy contention.
const blockRetryInterval = 5 * time.Millisecond

// DispatcherConfig holds the queueing and hook configuration shared by
// dispatcher and pool. All handlers are optional; defaults are applied
// by NewDispatcher.
type DispatcherConfig struct {
	// QueueCapacity is the maximum number of pending tasks; 0 means
	// unbounded.
	QueueCapacity int

	// Policy is applied when the bounded queue is full. Defaults to Block.
	Policy RejectionPolicy

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics receives execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a submission is refused.
	// Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger for dispatcher-level events. Defaults to DefaultLogger.
	Logger Logger
}

// DefaultDispatcherConfig returns a config with an unbounded queue, the
// Block policy, and default handlers.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		Policy:              Block,
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
		Logger:              NewDefaultLogger(),
	}
}

// Dispatcher owns the pending-task queue, the worker wakeup signal, the
// rejection policies, the delayed-task manager, and the pool counters.
// Workers pull handles out of it; the pool pushes handles in.
type Dispatcher struct {
	poolID   string
	queue    *handleQueue
	signal   chan struct{}
	space    chan struct{}
	capacity int
	policy   RejectionPolicy

	delay *DelayManager

	metricQueued    int32 // waiting in queue
	metricActive    int32 // executing in a worker
	metricCompleted int64 // resolved Completed or Failed
	metricFailed    int64
	metricCancelled int64
	metricRejected  int64

	panicHandler    PanicHandler
	metrics         Metrics
	rejectedHandler RejectedTaskHandler
	logger          Logger

	shuttingDown atomic.Bool
	drainCh      chan struct{}
}

// NewDispatcher creates a dispatcher for a pool with the given worker
// count. The signal channel is sized so that a wakeup is never lost while
// any worker is waiting.
func NewDispatcher(poolID string, workerCount int, config *DispatcherConfig) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}

	d := &Dispatcher{
		poolID:          poolID,
		queue:           newHandleQueue(),
		signal:          make(chan struct{}, workerCount*2),
		space:           make(chan struct{}, workerCount*2),
		capacity:        config.QueueCapacity,
		policy:          config.Policy,
		panicHandler:    config.PanicHandler,
		metrics:         config.Metrics,
		rejectedHandler: config.RejectedTaskHandler,
		logger:          config.Logger,
		drainCh:         make(chan struct{}),
	}

	// Use defaults if not provided
	if d.panicHandler == nil {
		d.panicHandler = &DefaultPanicHandler{}
	}
	if d.metrics == nil {
		d.metrics = &NilMetrics{}
	}
	if d.rejectedHandler == nil {
		d.rejectedHandler = &DefaultRejectedTaskHandler{}
	}
	if d.logger == nil {
		d.logger = NewDefaultLogger()
	}

	d.delay = newDelayManager(d.enqueueDue)
	return d
}

// Enqueue places a handle in the queue, applying the rejection policy when
// the queue is bounded and full. It returns queued=false with a nil error
// when the CallerRuns policy decides the submitting goroutine must execute
// the task itself.
func (d *Dispatcher) Enqueue(ctx context.Context, h *Handle) (queued bool, err error) {
	if d.shuttingDown.Load() {
		d.rejectSubmission("shutdown")
		return false, ErrPoolClosed
	}

	if d.capacity <= 0 {
		d.queue.Push(h)
		d.afterEnqueue()
		return d.confirmEnqueued(h)
	}

	if d.policy == DropOldest {
		if evicted := d.queue.PushEvictOldest(h, d.capacity); evicted != nil {
			atomic.AddInt32(&d.metricQueued, -1)
			d.markCancelled(evicted)
		}
		d.afterEnqueue()
		return d.confirmEnqueued(h)
	}

	for {
		if d.queue.TryPush(h, d.capacity) {
			d.afterEnqueue()
			return d.confirmEnqueued(h)
		}

		switch d.policy {
		case Fail:
			d.rejectSubmission("queue full")
			return false, ErrQueueFull

		case CallerRuns:
			return false, nil

		default: // Block
			timer := time.NewTimer(blockRetryInterval)
			select {
			case <-d.space:
				timer.Stop()
			case <-timer.C:
			case <-d.drainCh:
				timer.Stop()
				d.rejectSubmission("shutdown")
				return false, ErrPoolClosed
			case <-ctx.Done():
				timer.Stop()
				return false, ctx.Err()
			}
		}
	}
}

// confirmEnqueued closes the race between Enqueue's entry check and a
// concurrent Shutdown: a shutdown that drained the queue before our push
// landed would leave the handle Pending forever with every worker gone.
// Re-check the flag after the push and pull the handle back out; if a
// worker already claimed it, the handle resolves through that worker.
func (d *Dispatcher) confirmEnqueued(h *Handle) (queued bool, err error) {
	if d.shuttingDown.Load() && d.queue.Remove(h) {
		atomic.AddInt32(&d.metricQueued, -1)
		d.rejectSubmission("shutdown")
		return false, ErrPoolClosed
	}
	return true, nil
}

// AddDelayed schedules a handle for enqueueing after delay.
func (d *Dispatcher) AddDelayed(h *Handle, delay time.Duration) error {
	if d.shuttingDown.Load() {
		d.rejectSubmission("shutdown")
		return ErrPoolClosed
	}
	d.delay.Add(h, delay)
	return nil
}

// enqueueDue is the delay manager's delivery path. Due tasks were accepted
// long ago, so they are not re-subjected to the Block or CallerRuns
// policies (neither may stall the timer goroutine); only Fail still
// refuses them, resolving the handle Failed with ErrQueueFull.
func (d *Dispatcher) enqueueDue(h *Handle) {
	if d.shuttingDown.Load() {
		d.markCancelled(h)
		return
	}

	if d.capacity > 0 {
		switch d.policy {
		case Fail:
			if !d.queue.TryPush(h, d.capacity) {
				if h.reject(ErrQueueFull) {
					atomic.AddInt64(&d.metricRejected, 1)
					d.rejectedHandler.HandleRejectedTask(d.poolID, "queue full")
					d.metrics.RecordTaskRejected(d.poolID, "queue full")
				}
				return
			}
			d.afterEnqueue()
			d.confirmDue(h)
			return
		case DropOldest:
			if evicted := d.queue.PushEvictOldest(h, d.capacity); evicted != nil {
				atomic.AddInt32(&d.metricQueued, -1)
				d.markCancelled(evicted)
			}
			d.afterEnqueue()
			d.confirmDue(h)
			return
		}
	}

	d.queue.Push(h)
	d.afterEnqueue()
	d.confirmDue(h)
}

// confirmDue is confirmEnqueued for the delayed path: the submission was
// accepted long ago, so a straggler push racing shutdown resolves the
// handle Cancelled rather than surfacing an error.
func (d *Dispatcher) confirmDue(h *Handle) {
	if d.shuttingDown.Load() && d.queue.Remove(h) {
		atomic.AddInt32(&d.metricQueued, -1)
		d.markCancelled(h)
	}
}

// GetWork blocks until a pending handle is available, the stop channel
// fires, or shutdown leaves the queue empty. Handles cancelled while
// queued are skipped here, preserving the at-most-once start guarantee.
func (d *Dispatcher) GetWork(stopCh <-chan struct{}) (*Handle, bool) {
	for {
		if h, ok := d.queue.Pop(); ok {
			atomic.AddInt32(&d.metricQueued, -1)
			d.signalSpace()
			if h.State() != StatePending {
				// Cancelled between submission and dequeue.
				atomic.AddInt64(&d.metricCancelled, 1)
				d.metrics.RecordTaskCancelled(d.poolID)
				continue
			}
			return h, true
		}

		if d.shuttingDown.Load() {
			return nil, false
		}

		select {
		case <-d.signal:
		case <-d.drainCh:
			// Re-check: drain the remaining queue, then exit on empty.
		case <-stopCh:
			return nil, false
		}
	}
}

// Shutdown transitions the dispatcher to the closed state. With drain=true
// queued tasks stay in place for the workers to finish; with drain=false
// they are discarded and their handles resolve Cancelled exactly once.
// Delayed tasks that have not reached their due time resolve Cancelled in
// both modes. Idempotent.
func (d *Dispatcher) Shutdown(drain bool) {
	if !d.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	for _, h := range d.delay.Stop() {
		d.markCancelled(h)
	}

	if !drain {
		for _, h := range d.queue.Drain() {
			atomic.AddInt32(&d.metricQueued, -1)
			d.markCancelled(h)
		}
	}

	close(d.drainCh)
}

// IsShutdown reports whether shutdown has been initiated.
func (d *Dispatcher) IsShutdown() bool {
	return d.shuttingDown.Load()
}

// OnTaskStart is called by a worker after it has claimed a handle.
func (d *Dispatcher) OnTaskStart() {
	atomic.AddInt32(&d.metricActive, 1)
}

// OnTaskEnd records the outcome of a claimed handle. executed=false means
// the handle turned out to be cancelled before the worker could start it.
func (d *Dispatcher) OnTaskEnd(h *Handle, duration time.Duration, executed bool) {
	atomic.AddInt32(&d.metricActive, -1)
	if !executed {
		atomic.AddInt64(&d.metricCancelled, 1)
		d.metrics.RecordTaskCancelled(d.poolID)
		return
	}
	d.metrics.RecordTaskDuration(d.poolID, duration)

	switch h.State() {
	case StateCompleted:
		atomic.AddInt64(&d.metricCompleted, 1)
	case StateFailed:
		atomic.AddInt64(&d.metricCompleted, 1)
		atomic.AddInt64(&d.metricFailed, 1)
		d.metrics.RecordTaskFailed(d.poolID)
	case StateCancelled:
		// Running task observed its cancelled context and returned early.
		atomic.AddInt64(&d.metricCancelled, 1)
		d.metrics.RecordTaskCancelled(d.poolID)
	}
}

// HandlePanic forwards a recovered task panic to the configured handler.
func (d *Dispatcher) HandlePanic(ctx context.Context, workerID int, panicInfo any, stack []byte) {
	d.panicHandler.HandlePanic(ctx, d.poolID, workerID, panicInfo, stack)
}

// QueuedCount returns the number of tasks waiting in the queue.
// Eventually-consistent snapshot, not linearizable.
func (d *Dispatcher) QueuedCount() int {
	return int(atomic.LoadInt32(&d.metricQueued))
}

// ActiveCount returns the number of tasks currently executing.
func (d *Dispatcher) ActiveCount() int {
	return int(atomic.LoadInt32(&d.metricActive))
}

// CompletedCount returns the number of tasks that finished executing
// (Completed or Failed).
func (d *Dispatcher) CompletedCount() int64 {
	return atomic.LoadInt64(&d.metricCompleted)
}

// FailedCount returns the number of tasks that resolved Failed.
func (d *Dispatcher) FailedCount() int64 {
	return atomic.LoadInt64(&d.metricFailed)
}

// CancelledCount returns the number of handles that resolved Cancelled.
func (d *Dispatcher) CancelledCount() int64 {
	return atomic.LoadInt64(&d.metricCancelled)
}

// RejectedCount returns the number of refused submissions.
func (d *Dispatcher) RejectedCount() int64 {
	return atomic.LoadInt64(&d.metricRejected)
}

// DelayedCount returns the number of tasks waiting for their due time.
func (d *Dispatcher) DelayedCount() int {
	return d.delay.Len()
}

func (d *Dispatcher) afterEnqueue() {
	depth := int(atomic.AddInt32(&d.metricQueued, 1))
	d.metrics.RecordQueueDepth(d.poolID, depth)
	select {
	case d.signal <- struct{}{}:
	default:
		// Signal channel full; every waiting worker already has a wakeup.
	}
}

func (d *Dispatcher) signalSpace() {
	select {
	case d.space <- struct{}{}:
	default:
	}
}

// markCancelled resolves a handle Cancelled (no-op on the state if the
// user already cancelled it) and counts it as having left the system.
func (d *Dispatcher) markCancelled(h *Handle) {
	h.Cancel()
	atomic.AddInt64(&d.metricCancelled, 1)
	d.metrics.RecordTaskCancelled(d.poolID)
}

func (d *Dispatcher) rejectSubmission(reason string) {
	atomic.AddInt64(&d.metricRejected, 1)
	d.rejectedHandler.HandleRejectedTask(d.poolID, reason)
	d.metrics.RecordTaskRejected(d.poolID, reason)
}
