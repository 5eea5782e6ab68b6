package workpool

import (
	"context"
	"time"

	"github.com/workpool-dev/workpool/core"
)

// Future is a typed veneer over a completion handle. The underlying
// handle stores results as `any`; Future restores the task's result type
// at the observation boundary.
type Future[T any] struct {
	handle *core.Handle
}

// SubmitResult submits a task returning a typed result and wraps its
// handle in a Future.
//
// Example:
//
//	f, err := workpool.SubmitResult(pool, func(ctx context.Context) (int, error) {
//	    return compute(ctx)
//	})
//	n, err := f.Get(ctx)
func SubmitResult[T any](p *Pool, task func(ctx context.Context) (T, error)) (*Future[T], error) {
	h, err := p.Submit(func(ctx context.Context) (any, error) {
		return task(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &Future[T]{handle: h}, nil
}

// SubmitResultAfter is SubmitResult with a submission delay.
func SubmitResultAfter[T any](p *Pool, task func(ctx context.Context) (T, error), delay time.Duration) (*Future[T], error) {
	h, err := p.SubmitAfter(func(ctx context.Context) (any, error) {
		return task(ctx)
	}, delay)
	if err != nil {
		return nil, err
	}
	return &Future[T]{handle: h}, nil
}

// Handle returns the untyped completion handle.
func (f *Future[T]) Handle() *core.Handle {
	return f.handle
}

// Get blocks until resolution or ctx is done, returning the typed value.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	v, err := f.handle.Get(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	value, _ := v.(T)
	return value, nil
}

// GetWithTimeout is Get with a deadline; fails with ErrTimeout when it
// passes.
func (f *Future[T]) GetWithTimeout(timeout time.Duration) (T, error) {
	v, err := f.handle.GetWithTimeout(timeout)
	if err != nil {
		var zero T
		return zero, err
	}
	value, _ := v.(T)
	return value, nil
}

// Cancel requests best-effort cancellation (see Handle.Cancel).
func (f *Future[T]) Cancel() bool {
	return f.handle.Cancel()
}

// IsDone reports whether the future has resolved.
func (f *Future[T]) IsDone() bool {
	return f.handle.IsDone()
}

// Done returns the resolution channel.
func (f *Future[T]) Done() <-chan struct{} {
	return f.handle.Done()
}
