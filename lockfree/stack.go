// Package lockfree provides non-blocking concurrent data structures built
// on single-word compare-and-swap.
package lockfree

import (
	"sync/atomic"
)

// node is a single cell in the stack. Once pushed it is logically owned by
// the stack; once popped, ownership transfers to the popping caller.
type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// Stack is a Treiber stack: a lock-free LIFO safe for unbounded concurrent
// Push/Pop from any number of goroutines. All mutation goes through a CAS
// on the top pointer; a failed CAS means another goroutine won the race
// and the operation retries. Lock-free, not wait-free: an individual
// attempt can retry unboundedly under contention, but some goroutine
// always makes progress.
//
// Nodes are never recycled - popped nodes are left to the garbage
// collector. Deferred reclamation is what makes the naive CAS loop safe
// against the ABA problem: a stale next pointer can never be re-linked,
// because the node it belongs to is never reused while anyone still
// references it.
//
// The zero value is an empty stack ready for use.
type Stack[T any] struct {
	top    atomic.Pointer[node[T]]
	length atomic.Int64
}

// New creates an empty stack.
func New[T any]() *Stack[T] {
	return &Stack[T]{}
}

// Push places value on top of the stack.
func (s *Stack[T]) Push(value T) {
	n := &node[T]{value: value}
	for {
		top := s.top.Load()
		n.next.Store(top)
		if s.top.CompareAndSwap(top, n) {
			s.length.Add(1)
			return
		}
		// Lost the race; reread top and retry.
	}
}

// Pop removes and returns the most recently pushed value.
// Returns the zero value and false when the stack is empty.
//
// The CAS from the observed top to its successor guarantees at most one
// winner per top transition: no two concurrent Pops ever return the same
// node.
func (s *Stack[T]) Pop() (T, bool) {
	for {
		top := s.top.Load()
		if top == nil {
			var zero T
			return zero, false
		}
		next := top.next.Load()
		if s.top.CompareAndSwap(top, next) {
			s.length.Add(-1)
			top.next.Store(nil)
			return top.value, true
		}
	}
}

// Peek returns the top value without removing it. The value may already be
// popped by another goroutine by the time Peek returns.
func (s *Stack[T]) Peek() (T, bool) {
	top := s.top.Load()
	if top == nil {
		var zero T
		return zero, false
	}
	return top.value, true
}

// IsEmpty reports whether the stack had no elements at the moment of the
// load.
func (s *Stack[T]) IsEmpty() bool {
	return s.top.Load() == nil
}

// Len returns the approximate number of elements. The counter is updated
// after the CAS commits, so concurrent readers may observe a value that
// lags the structure by in-flight operations.
func (s *Stack[T]) Len() int {
	n := s.length.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
