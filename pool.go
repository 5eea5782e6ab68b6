package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/workpool-dev/workpool/core"
)

// PoolState is the pool lifecycle state.
//
// Transitions: Created -> Running -> ShuttingDown -> Terminated.
// Once Terminated, no further tasks are accepted and all workers have
// exited.
type PoolState int32

const (
	PoolCreated PoolState = iota
	PoolRunning
	PoolShuttingDown
	PoolTerminated
)

// PoolConfig holds construction options for a Pool. All handlers are
// optional; defaults are applied by NewWithConfig.
type PoolConfig struct {
	// QueueCapacity is the maximum number of pending tasks; 0 = unbounded.
	QueueCapacity int

	// RejectionPolicy is applied when the bounded queue is full.
	// Defaults to Block.
	RejectionPolicy core.RejectionPolicy

	// PanicHandler is called when a task panics.
	PanicHandler core.PanicHandler

	// Metrics receives execution metrics (see observability/prometheus).
	Metrics core.Metrics

	// RejectedTaskHandler is called when a submission is refused.
	RejectedTaskHandler core.RejectedTaskHandler

	// Logger for pool-level events.
	Logger core.Logger
}

// DefaultPoolConfig returns a config with an unbounded queue and the
// Block policy.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		RejectionPolicy: core.Block,
	}
}

// Pool executes an unbounded stream of submitted tasks on a fixed set of
// worker goroutines, bounding resource usage. Workers pull handles from a
// shared FIFO dispatcher; completion is observed through the returned
// handles.
type Pool struct {
	id         string
	workers    int
	dispatcher *core.Dispatcher
	logger     core.Logger

	// mu orders lifecycle transitions: Start's context/WaitGroup setup
	// must be visible to a concurrent Shutdown that observes Running.
	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	state  atomic.Int32
	termCh chan struct{}
}

// New creates a pool with the given worker count and default
// configuration. An empty id gets a generated one.
func New(id string, workers int) (*Pool, error) {
	return NewWithConfig(id, workers, nil)
}

// NewWithConfig creates a pool with explicit configuration.
// Configuration errors are fatal to pool creation: the pool is never
// started and never reports itself Running.
func NewWithConfig(id string, workers int, config *PoolConfig) (*Pool, error) {
	if workers <= 0 {
		return nil, core.ErrInvalidConfig("workers must be > 0")
	}
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.QueueCapacity < 0 {
		return nil, core.ErrInvalidConfig("queue capacity must be >= 0")
	}
	if config.RejectionPolicy < core.Block || config.RejectionPolicy > core.DropOldest {
		return nil, core.ErrInvalidConfig("unknown rejection policy")
	}
	if id == "" {
		id = "pool-" + uuid.NewString()[:8]
	}

	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	p := &Pool{
		id:      id,
		workers: workers,
		logger:  logger,
		termCh:  make(chan struct{}),
		dispatcher: core.NewDispatcher(id, workers, &core.DispatcherConfig{
			QueueCapacity:       config.QueueCapacity,
			Policy:              config.RejectionPolicy,
			PanicHandler:        config.PanicHandler,
			Metrics:             config.Metrics,
			RejectedTaskHandler: config.RejectedTaskHandler,
			Logger:              logger,
		}),
	}
	p.state.Store(int32(PoolCreated))
	return p, nil
}

// Start launches the worker goroutines. Tasks submitted before Start are
// queued and picked up once the workers come online. Calling Start more
// than once has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if PoolState(p.state.Load()) != PoolCreated {
		return
	}

	// Context and WaitGroup must be in place before the pool reports
	// Running, so a concurrent Shutdown never waits on an empty group or
	// calls a nil cancel func.
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(p.workers)
	p.state.Store(int32(PoolRunning))

	for i := 0; i < p.workers; i++ {
		go p.workerLoop(i, p.ctx)
	}
	p.logger.Debug("pool started", core.F("pool", p.id), core.F("workers", p.workers))
}

// ID returns the pool's identifier.
func (p *Pool) ID() string {
	return p.id
}

// WorkerCount returns the fixed number of workers.
func (p *Pool) WorkerCount() int {
	return p.workers
}

// State returns the pool lifecycle state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// IsRunning reports whether the pool is in the Running state.
func (p *Pool) IsRunning() bool {
	return p.State() == PoolRunning
}

// Submit enqueues a task and returns its completion handle.
//
// Fails with ErrPoolClosed once shutdown has been initiated, and with
// ErrQueueFull when the bounded queue is full under the Fail policy.
// Under the Block policy, use SubmitContext to bound the wait.
func (p *Pool) Submit(task core.Task) (*core.Handle, error) {
	return p.SubmitContext(context.Background(), task)
}

// SubmitContext is Submit with a caller context governing a Block-policy
// wait. Cancelling ctx abandons the submission (the task will not run).
func (p *Pool) SubmitContext(ctx context.Context, task core.Task) (*core.Handle, error) {
	if task == nil {
		return nil, core.ErrNilTask
	}

	h := core.NewHandle(task)
	queued, err := p.dispatcher.Enqueue(ctx, h)
	if err != nil {
		return nil, err
	}
	if !queued {
		// CallerRuns: the queue is full, so the submitter executes the
		// task synchronously, bypassing the queue.
		p.runClaimed(ctx, -1, h)
	}
	return h, nil
}

// SubmitAfter schedules a task for submission after the given delay.
// The handle is cancellable while it waits; a non-positive delay submits
// immediately.
func (p *Pool) SubmitAfter(task core.Task, delay time.Duration) (*core.Handle, error) {
	if task == nil {
		return nil, core.ErrNilTask
	}
	if delay <= 0 {
		return p.Submit(task)
	}

	h := core.NewHandle(task)
	if err := p.dispatcher.AddDelayed(h, delay); err != nil {
		return nil, err
	}
	return h, nil
}

// Shutdown transitions the pool to ShuttingDown and, once all workers have
// exited, to Terminated. If drain is true, queued tasks are executed
// before termination; if false, queued-but-not-started tasks are discarded
// and their handles resolve Cancelled. Running tasks always finish.
// Delayed tasks that have not reached their due time resolve Cancelled in
// both modes.
//
// Idempotent: only the first call has any effect.
func (p *Pool) Shutdown(drain bool) {
	p.mu.Lock()
	s := PoolState(p.state.Load())
	if s == PoolShuttingDown || s == PoolTerminated {
		p.mu.Unlock()
		return
	}
	p.state.Store(int32(PoolShuttingDown))
	cancel := p.cancel
	p.mu.Unlock()

	if s == PoolCreated {
		// Never started: no worker will ever drain the queue, so discard
		// it regardless of the drain flag.
		p.dispatcher.Shutdown(false)
		p.state.Store(int32(PoolTerminated))
		close(p.termCh)
		return
	}

	p.dispatcher.Shutdown(drain)
	go func() {
		p.wg.Wait()
		if cancel != nil {
			cancel()
		}
		p.state.Store(int32(PoolTerminated))
		close(p.termCh)
		p.logger.Debug("pool terminated", core.F("pool", p.id))
	}()
}

// AwaitTermination blocks until all workers have exited or the timeout
// elapses, returning whether termination completed in time. It does not
// itself trigger shutdown.
func (p *Pool) AwaitTermination(timeout time.Duration) bool {
	select {
	case <-p.termCh:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.termCh:
		return true
	case <-timer.C:
		return false
	}
}

// ActiveCount returns the number of tasks currently executing.
// Eventually-consistent snapshot, not linearizable.
func (p *Pool) ActiveCount() int {
	return p.dispatcher.ActiveCount()
}

// QueuedCount returns the number of tasks waiting in the queue.
func (p *Pool) QueuedCount() int {
	return p.dispatcher.QueuedCount()
}

// CompletedCount returns the number of tasks that finished executing
// (Completed or Failed).
func (p *Pool) CompletedCount() int64 {
	return p.dispatcher.CompletedCount()
}

// DelayedCount returns the number of tasks waiting for their due time.
func (p *Pool) DelayedCount() int {
	return p.dispatcher.DelayedCount()
}

// Stats returns a snapshot of the pool counters for pollers and dashboards.
func (p *Pool) Stats() core.PoolStats {
	return p.dispatcher.Stats(p.id, p.workers, p.IsRunning())
}

// workerLoop is the main loop for each worker: pull one handle, execute
// it, resolve it, repeat. Exits when the dispatcher reports shutdown with
// an empty queue or the pool context is cancelled.
func (p *Pool) workerLoop(id int, ctx context.Context) {
	defer p.wg.Done()
	stopCh := ctx.Done()

	for {
		h, ok := p.dispatcher.GetWork(stopCh)
		if !ok {
			return
		}
		p.runClaimed(ctx, id, h)
	}
}

// runClaimed executes a claimed handle with panic capture and records the
// outcome. Shared by workers (workerID >= 0) and CallerRuns submission
// (workerID == -1).
func (p *Pool) runClaimed(ctx context.Context, workerID int, h *core.Handle) {
	p.dispatcher.OnTaskStart()
	start := time.Now()

	executed := core.RunHandle(ctx, h)

	if executed {
		var panicErr *core.TaskPanicError
		if errors.As(h.Err(), &panicErr) {
			p.dispatcher.HandlePanic(ctx, workerID, panicErr.Value, panicErr.Stack)
		}
	}
	p.dispatcher.OnTaskEnd(h, time.Since(start), executed)
}
