package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestHandle_CompletedLifecycle verifies the happy path
// Main test items:
// 1. A fresh handle is Pending and not done
// 2. RunHandle executes the task and resolves Completed
// 3. Get returns the task's value
func TestHandle_CompletedLifecycle(t *testing.T) {
	h := NewHandle(func(ctx context.Context) (any, error) {
		return 42, nil
	})

	if h.State() != StatePending {
		t.Fatalf("State = %v, want PENDING", h.State())
	}
	if h.IsDone() {
		t.Fatal("fresh handle reports done")
	}

	if !RunHandle(context.Background(), h) {
		t.Fatal("RunHandle returned false for a pending handle")
	}

	if h.State() != StateCompleted {
		t.Errorf("State = %v, want COMPLETED", h.State())
	}
	v, err := h.Get(context.Background())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if v != 42 {
		t.Errorf("Get = %v, want 42", v)
	}
}

// TestHandle_FailedLifecycle verifies error propagation into the handle
func TestHandle_FailedLifecycle(t *testing.T) {
	wantErr := errors.New("boom")
	h := NewHandle(func(ctx context.Context) (any, error) {
		return nil, wantErr
	})

	RunHandle(context.Background(), h)

	if h.State() != StateFailed {
		t.Errorf("State = %v, want FAILED", h.State())
	}
	if _, err := h.Get(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Get error = %v, want %v", err, wantErr)
	}
	if !errors.Is(h.Err(), wantErr) {
		t.Errorf("Err = %v, want %v", h.Err(), wantErr)
	}
}

// TestHandle_CancelPending verifies cancellation before the task starts
// Main test items:
// 1. Cancel on a Pending handle returns true and resolves Cancelled
// 2. A subsequent RunHandle refuses to execute the task
// 3. Get returns ErrCancelled
func TestHandle_CancelPending(t *testing.T) {
	executed := false
	h := NewHandle(func(ctx context.Context) (any, error) {
		executed = true
		return nil, nil
	})

	if !h.Cancel() {
		t.Fatal("Cancel on a pending handle returned false")
	}
	if h.State() != StateCancelled {
		t.Errorf("State = %v, want CANCELLED", h.State())
	}

	if RunHandle(context.Background(), h) {
		t.Error("RunHandle executed a cancelled handle")
	}
	if executed {
		t.Error("cancelled task was executed")
	}
	if _, err := h.Get(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Errorf("Get error = %v, want ErrCancelled", err)
	}
}

// TestHandle_CancelRunning verifies advisory cancellation of a running task
// Given: A task blocked on its context
// When: Cancel is called while the task runs
// Then: Cancel returns false, the task's context is cancelled, and the
// handle resolves Cancelled because the task returned the cancellation error
func TestHandle_CancelRunning(t *testing.T) {
	started := make(chan struct{})
	h := NewHandle(func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	go RunHandle(context.Background(), h)
	<-started

	if h.Cancel() {
		t.Error("Cancel on a running handle returned true")
	}

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle never resolved after cancel")
	}

	if h.State() != StateCancelled {
		t.Errorf("State = %v, want CANCELLED", h.State())
	}
	if !errors.Is(h.Err(), ErrCancelled) {
		t.Errorf("Err = %v, want ErrCancelled", h.Err())
	}
}

// TestHandle_RunningTaskIgnoresCancel verifies that a running task which
// does not observe its context still resolves by its own outcome.
func TestHandle_RunningTaskIgnoresCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := NewHandle(func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "finished anyway", nil
	})

	go RunHandle(context.Background(), h)
	<-started

	h.Cancel()
	close(release)

	v, err := h.Get(context.Background())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if v != "finished anyway" {
		t.Errorf("Get = %v, want %q", v, "finished anyway")
	}
	if h.State() != StateCompleted {
		t.Errorf("State = %v, want COMPLETED", h.State())
	}
}

// TestHandle_ExactlyOnceResolution races Cancel against execution
// Main test items:
// 1. Under heavy racing, the task body runs at most once
// 2. The handle reaches exactly one terminal state
func TestHandle_ExactlyOnceResolution(t *testing.T) {
	for i := 0; i < 200; i++ {
		var executions int32
		h := NewHandle(func(ctx context.Context) (any, error) {
			atomic.AddInt32(&executions, 1)
			return nil, nil
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Cancel()
		}()
		go func() {
			defer wg.Done()
			RunHandle(context.Background(), h)
		}()
		wg.Wait()

		if n := atomic.LoadInt32(&executions); n > 1 {
			t.Fatalf("iteration %d: task executed %d times", i, n)
		}
		s := h.State()
		if s != StateCompleted && s != StateCancelled {
			t.Fatalf("iteration %d: non-terminal state %v", i, s)
		}
		if !h.IsDone() {
			t.Fatalf("iteration %d: handle not done", i)
		}
	}
}

// TestRunHandle_PanicCapture verifies a panicking task resolves Failed with
// the panic value and stack preserved.
func TestRunHandle_PanicCapture(t *testing.T) {
	h := NewHandle(func(ctx context.Context) (any, error) {
		panic("kaboom")
	})

	if !RunHandle(context.Background(), h) {
		t.Fatal("RunHandle returned false")
	}

	if h.State() != StateFailed {
		t.Fatalf("State = %v, want FAILED", h.State())
	}
	var panicErr *TaskPanicError
	if !errors.As(h.Err(), &panicErr) {
		t.Fatalf("Err = %v, want *TaskPanicError", h.Err())
	}
	if panicErr.Value != "kaboom" {
		t.Errorf("panic value = %v, want kaboom", panicErr.Value)
	}
	if len(panicErr.Stack) == 0 {
		t.Error("panic stack is empty")
	}
}

// TestHandle_GetWithTimeout verifies the timeout path and the fast path for
// an already-resolved handle.
func TestHandle_GetWithTimeout(t *testing.T) {
	h := NewHandle(func(ctx context.Context) (any, error) { return nil, nil })

	if _, err := h.GetWithTimeout(20 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("GetWithTimeout on pending handle = %v, want ErrTimeout", err)
	}

	RunHandle(context.Background(), h)

	// Resolved handle returns immediately regardless of timeout.
	if _, err := h.GetWithTimeout(0); err != nil {
		t.Errorf("GetWithTimeout on resolved handle = %v, want nil", err)
	}
}

// TestHandle_GetContextCancelled verifies Get honours the waiter's context.
func TestHandle_GetContextCancelled(t *testing.T) {
	h := NewHandle(func(ctx context.Context) (any, error) { return nil, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Get = %v, want context.Canceled", err)
	}
	// The handle itself is untouched by an abandoned wait.
	if h.State() != StatePending {
		t.Errorf("State = %v, want PENDING", h.State())
	}
}

func TestHandleState_String(t *testing.T) {
	cases := []struct {
		state HandleState
		want  string
	}{
		{StatePending, "PENDING"},
		{StateRunning, "RUNNING"},
		{StateCompleted, "COMPLETED"},
		{StateFailed, "FAILED"},
		{StateCancelled, "CANCELLED"},
		{HandleState(99), "UNKNOWN"},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("%d.String() = %q, want %q", c.state, got, c.want)
		}
	}
}
