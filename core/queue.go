package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// handleQueue is the pool's pending-task queue: an ordered, thread-safe
// FIFO of completion handles. A handle is removed from the queue before
// any worker starts it, so no task is ever handed to two workers
// (at-most-once dequeue); the Pending->Running CAS in the handle is the
// second line of defense.
type handleQueue struct {
	mu      sync.Mutex
	handles []*Handle
}

func newHandleQueue() *handleQueue {
	return &handleQueue{
		handles: make([]*Handle, 0, defaultQueueCap),
	}
}

// Push appends a handle unconditionally (unbounded mode).
func (q *handleQueue) Push(h *Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handles = append(q.handles, h)
}

// TryPush appends a handle if the queue holds fewer than capacity entries.
// Returns false when full.
func (q *handleQueue) TryPush(h *Handle, capacity int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.handles) >= capacity {
		return false
	}
	q.handles = append(q.handles, h)
	return true
}

// PushEvictOldest appends a handle, evicting the oldest entry if the queue
// is at capacity. The evicted handle (nil if none) is returned so the
// caller can resolve it Cancelled outside the queue lock.
func (q *handleQueue) PushEvictOldest(h *Handle, capacity int) (evicted *Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.handles) >= capacity && len(q.handles) > 0 {
		evicted = q.handles[0]
		q.handles[0] = nil
		q.handles = q.handles[1:]
		q.maybeCompactLocked()
	}
	q.handles = append(q.handles, h)
	return evicted
}

// Pop removes and returns the oldest handle (submission order).
func (q *handleQueue) Pop() (*Handle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.handles) == 0 {
		return nil, false
	}

	h := q.handles[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.handles[0] = nil
	q.handles = q.handles[1:]
	q.maybeCompactLocked()

	return h, true
}

// Remove takes a specific handle back out of the queue. Returns false if
// the handle is no longer queued (already popped or drained).
func (q *handleQueue) Remove(h *Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, cur := range q.handles {
		if cur == h {
			copy(q.handles[i:], q.handles[i+1:])
			q.handles[len(q.handles)-1] = nil
			q.handles = q.handles[:len(q.handles)-1]
			q.maybeCompactLocked()
			return true
		}
	}
	return false
}

// Drain removes and returns all pending handles, oldest first.
// Used by non-draining shutdown to resolve everything Cancelled.
func (q *handleQueue) Drain() []*Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.handles) == 0 {
		return nil
	}
	drained := q.handles
	q.handles = make([]*Handle, 0, defaultQueueCap)
	return drained
}

func (q *handleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.handles)
}

func (q *handleQueue) IsEmpty() bool {
	return q.Len() == 0
}

// maybeCompactLocked reallocates the backing array once the live window
// shrinks well below its capacity, so a long-lived pool does not pin the
// high-water-mark allocation forever.
func (q *handleQueue) maybeCompactLocked() {
	n := len(q.handles)
	c := cap(q.handles)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.handles = make([]*Handle, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)
	compacted := make([]*Handle, n, newCap)
	copy(compacted, q.handles)
	q.handles = compacted
}
