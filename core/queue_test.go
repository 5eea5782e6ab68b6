package core

import (
	"context"
	"testing"
)

func noopTask(ctx context.Context) (any, error) { return nil, nil }

// TestHandleQueue_FIFO verifies submission-order dequeue
// Given: Handles pushed in order
// When: Pop is called repeatedly
// Then: Handles come out oldest first
func TestHandleQueue_FIFO(t *testing.T) {
	q := newHandleQueue()

	var pushed []*Handle
	for i := 0; i < 10; i++ {
		h := NewHandle(noopTask)
		pushed = append(pushed, h)
		q.Push(h)
	}

	for i, want := range pushed {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Step %d: queue empty", i)
		}
		if got != want {
			t.Errorf("Step %d: popped wrong handle", i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue returned a handle")
	}
}

// TestHandleQueue_TryPush verifies the bounded push refuses at capacity.
func TestHandleQueue_TryPush(t *testing.T) {
	q := newHandleQueue()
	const capacity = 3

	for i := 0; i < capacity; i++ {
		if !q.TryPush(NewHandle(noopTask), capacity) {
			t.Fatalf("TryPush %d refused below capacity", i)
		}
	}
	if q.TryPush(NewHandle(noopTask), capacity) {
		t.Error("TryPush accepted beyond capacity")
	}
	if q.Len() != capacity {
		t.Errorf("Len = %d, want %d", q.Len(), capacity)
	}

	q.Pop()
	if !q.TryPush(NewHandle(noopTask), capacity) {
		t.Error("TryPush refused after Pop made room")
	}
}

// TestHandleQueue_PushEvictOldest verifies eviction returns the oldest entry
// and keeps the queue at capacity.
func TestHandleQueue_PushEvictOldest(t *testing.T) {
	q := newHandleQueue()
	const capacity = 2

	first := NewHandle(noopTask)
	second := NewHandle(noopTask)
	third := NewHandle(noopTask)

	if evicted := q.PushEvictOldest(first, capacity); evicted != nil {
		t.Error("eviction below capacity")
	}
	if evicted := q.PushEvictOldest(second, capacity); evicted != nil {
		t.Error("eviction at exactly capacity-1 entries")
	}
	evicted := q.PushEvictOldest(third, capacity)
	if evicted != first {
		t.Error("evicted handle is not the oldest")
	}
	if q.Len() != capacity {
		t.Errorf("Len = %d, want %d", q.Len(), capacity)
	}

	got, _ := q.Pop()
	if got != second {
		t.Error("head after eviction is not the second handle")
	}
}

// TestHandleQueue_Remove verifies a specific handle can be pulled back out
// of the queue without disturbing the order of the rest.
func TestHandleQueue_Remove(t *testing.T) {
	q := newHandleQueue()

	a := NewHandle(noopTask)
	b := NewHandle(noopTask)
	c := NewHandle(noopTask)
	q.Push(a)
	q.Push(b)
	q.Push(c)

	if !q.Remove(b) {
		t.Fatal("Remove refused a queued handle")
	}
	if q.Remove(b) {
		t.Error("Remove succeeded twice for the same handle")
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d after Remove, want 2", q.Len())
	}

	if got, _ := q.Pop(); got != a {
		t.Error("head changed after removing a middle handle")
	}
	if got, _ := q.Pop(); got != c {
		t.Error("tail changed after removing a middle handle")
	}

	if q.Remove(NewHandle(noopTask)) {
		t.Error("Remove succeeded for a never-queued handle")
	}
}

// TestHandleQueue_Drain verifies Drain removes everything, oldest first.
func TestHandleQueue_Drain(t *testing.T) {
	q := newHandleQueue()

	var pushed []*Handle
	for i := 0; i < 5; i++ {
		h := NewHandle(noopTask)
		pushed = append(pushed, h)
		q.Push(h)
	}

	drained := q.Drain()
	if len(drained) != len(pushed) {
		t.Fatalf("Drain returned %d handles, want %d", len(drained), len(pushed))
	}
	for i := range pushed {
		if drained[i] != pushed[i] {
			t.Errorf("Step %d: drain order mismatch", i)
		}
	}
	if !q.IsEmpty() {
		t.Error("queue not empty after Drain")
	}
	if q.Drain() != nil {
		t.Error("Drain on empty queue returned a slice")
	}
}

// TestHandleQueue_CompactionKeepsContents verifies correctness across the
// compaction threshold: a long push/pop run never loses or reorders handles.
func TestHandleQueue_CompactionKeepsContents(t *testing.T) {
	q := newHandleQueue()

	const total = 500
	handles := make([]*Handle, total)
	for i := range handles {
		handles[i] = NewHandle(noopTask)
	}

	// Interleave pushes and pops so the live window slides far enough to
	// trigger compaction several times.
	next := 0
	for i := 0; i < total; i++ {
		q.Push(handles[i])
		if i%3 == 2 {
			got, ok := q.Pop()
			if !ok || got != handles[next] {
				t.Fatalf("pop %d out of order", next)
			}
			next++
		}
	}
	for {
		got, ok := q.Pop()
		if !ok {
			break
		}
		if got != handles[next] {
			t.Fatalf("pop %d out of order", next)
		}
		next++
	}
	if next != total {
		t.Errorf("popped %d handles, want %d", next, total)
	}
}
