package core

import (
	"container/heap"
	"sync"
	"time"
)

// delayedHandle is a handle scheduled for future submission.
type delayedHandle struct {
	runAt  time.Time
	handle *Handle
	index  int // for heap interface
}

// delayedHeap implements heap.Interface ordered by due time.
type delayedHeap []*delayedHandle

func (h delayedHeap) Len() int           { return len(h) }
func (h delayedHeap) Less(i, j int) bool { return h[i].runAt.Before(h[j].runAt) }
func (h delayedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedHeap) Push(x any) {
	n := len(*h)
	item := x.(*delayedHandle)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedHeap) peek() *delayedHandle {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager holds delayed submissions in a min-heap and delivers each
// handle to the dispatcher once its due time arrives. A single goroutine
// sleeps until the earliest due time; adding an earlier entry wakes it.
type DelayManager struct {
	mu      sync.Mutex
	pq      delayedHeap
	wakeup  chan struct{}
	stop    chan struct{}
	stopped bool
	done    chan struct{}

	deliver func(*Handle)
}

// newDelayManager starts the timer loop. deliver is called on the manager's
// goroutine for every due handle, in due-time order.
func newDelayManager(deliver func(*Handle)) *DelayManager {
	dm := &DelayManager{
		pq:      make(delayedHeap, 0),
		wakeup:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		deliver: deliver,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// Add schedules a handle for delivery after delay.
func (dm *DelayManager) Add(h *Handle, delay time.Duration) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.stopped {
		// Shutdown raced the submission; resolve the handle Cancelled so
		// it is never left Pending forever.
		h.Cancel()
		return
	}

	item := &delayedHandle{
		runAt:  time.Now().Add(delay),
		handle: h,
	}
	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of handles still waiting for their due time.
func (dm *DelayManager) Len() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}

// Stop halts the timer loop and returns all undelivered handles.
// Idempotent; the second call returns nil.
func (dm *DelayManager) Stop() []*Handle {
	dm.mu.Lock()
	if dm.stopped {
		dm.mu.Unlock()
		return nil
	}
	dm.stopped = true
	pending := make([]*Handle, 0, len(dm.pq))
	for _, item := range dm.pq {
		pending = append(pending, item.handle)
	}
	dm.pq = nil
	dm.mu.Unlock()

	close(dm.stop)
	<-dm.done
	return pending
}

func (dm *DelayManager) loop() {
	defer close(dm.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		dm.mu.Lock()
		next := dm.pq.peek()
		var wait time.Duration
		if next != nil {
			wait = time.Until(next.runAt)
		}
		dm.mu.Unlock()

		if next != nil && wait <= 0 {
			dm.deliverDue()
			continue
		}

		if next != nil {
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-dm.wakeup:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case <-dm.stop:
				return
			}
		} else {
			select {
			case <-dm.wakeup:
			case <-dm.stop:
				return
			}
		}
	}
}

// deliverDue pops every entry whose due time has passed and hands it to
// the dispatcher, outside the heap lock.
func (dm *DelayManager) deliverDue() {
	now := time.Now()
	var due []*Handle

	dm.mu.Lock()
	for {
		next := dm.pq.peek()
		if next == nil || next.runAt.After(now) {
			break
		}
		item := heap.Pop(&dm.pq).(*delayedHandle)
		due = append(due, item.handle)
	}
	dm.mu.Unlock()

	for _, h := range due {
		dm.deliver(h)
	}
}
