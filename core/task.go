package core

import "context"

// Task is the unit of work: a computation that produces a value or fails.
// A task captures its inputs at submission time; the pool owns it from
// submission until a worker starts executing it, after which the worker
// owns it exclusively.
//
// The context passed to the task is derived from the pool's run context
// and is cancelled when Handle.Cancel is called on a running task.
// Cancellation of running work is advisory: the task decides whether to
// observe ctx.Done().
type Task func(ctx context.Context) (any, error)

// Executor is the submission interface implemented by the pool.
// SerialRunner and other veneers depend on this rather than on the
// concrete pool type.
type Executor interface {
	Submit(task Task) (*Handle, error)
}
