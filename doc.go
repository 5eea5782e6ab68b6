// Package workpool provides a bounded worker pool with completion handles
// and a lock-free Treiber stack.
//
// The pool owns a fixed set of worker goroutines and a FIFO task queue;
// callers submit tasks and observe their outcomes through future-like
// handles that can be awaited, cancelled (best-effort), or ignored.
//
// # Quick Start
//
//	pool, err := workpool.New("my-pool", 4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pool.Start(context.Background())
//	defer func() {
//	    pool.Shutdown(true)
//	    pool.AwaitTermination(5 * time.Second)
//	}()
//
//	handle, err := pool.Submit(func(ctx context.Context) (any, error) {
//	    return doWork(ctx)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := handle.Get(context.Background())
//
// # Completion Handles
//
// Each submitted task gets a Handle moving through
// Pending -> Running -> {Completed | Failed | Cancelled}; exactly one
// terminal state is reached exactly once. Cancelling a task that has not
// started prevents it from starting; cancelling a running task cancels
// its context but cannot forcibly stop user code.
//
// Tasks may panic without crashing a worker: the panic is captured into
// the handle as a *TaskPanicError and the worker keeps serving.
//
// # Bounded Queues and Rejection Policies
//
// With QueueCapacity > 0, a full queue triggers the configured policy:
//
//   - Block (default): Submit waits for space; use SubmitContext to bound
//     the wait.
//   - Fail: Submit returns ErrQueueFull immediately.
//   - CallerRuns: the task executes synchronously on the submitter.
//   - DropOldest: the oldest queued task is evicted and resolves Cancelled.
//
// # Ordering
//
// Tasks are dequeued in submission order (FIFO), but completion order
// across workers is not guaranteed. Use a SerialRunner when a stream of
// tasks must execute one at a time in order:
//
//	runner := workpool.NewSerialRunner(pool)
//	h, _ := runner.Post(task)
//
// # Shutdown
//
//	pool.Shutdown(true)  // run all queued tasks, then terminate
//	pool.Shutdown(false) // discard queued tasks (handles resolve Cancelled)
//	pool.AwaitTermination(2 * time.Second)
//
// # Typed Results
//
// SubmitResult wraps a handle in a generic Future:
//
//	f, _ := workpool.SubmitResult(pool, func(ctx context.Context) (int, error) {
//	    return 42, nil
//	})
//	n, _ := f.Get(ctx)
//
// # Observability
//
// Pool counters (ActiveCount, QueuedCount, CompletedCount, Stats) are
// eventually-consistent atomic snapshots. The observability/prometheus
// package bridges the core.Metrics hook and Stats snapshots to Prometheus
// collectors.
//
// The lockfree package provides the Treiber stack used in the examples, a
// minimal CAS-based concurrent LIFO safe for use from any number of
// goroutines.
package workpool
