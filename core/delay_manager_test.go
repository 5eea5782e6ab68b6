package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// collectDeliveries returns a delay manager whose deliveries land in the
// returned channel.
func collectDeliveries(buffer int) (*DelayManager, chan *Handle) {
	ch := make(chan *Handle, buffer)
	dm := newDelayManager(func(h *Handle) { ch <- h })
	return dm, ch
}

// TestDelayManager_DeliversInDueOrder verifies due-time ordering
// Main test items:
// 1. Handles are delivered once their due time arrives
// 2. Delivery order follows due time, not insertion order
func TestDelayManager_DeliversInDueOrder(t *testing.T) {
	dm, delivered := collectDeliveries(4)
	defer dm.Stop()

	late := NewHandle(noopTask)
	early := NewHandle(noopTask)

	dm.Add(late, 60*time.Millisecond)
	dm.Add(early, 10*time.Millisecond)

	select {
	case h := <-delivered:
		if h != early {
			t.Fatal("first delivery is not the earliest handle")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first handle never delivered")
	}

	select {
	case h := <-delivered:
		if h != late {
			t.Fatal("second delivery is not the later handle")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second handle never delivered")
	}

	if dm.Len() != 0 {
		t.Errorf("Len = %d after all deliveries, want 0", dm.Len())
	}
}

// TestDelayManager_EarlierAddWakesLoop verifies that adding an entry due
// before the current earliest one re-arms the timer instead of sleeping
// through it.
func TestDelayManager_EarlierAddWakesLoop(t *testing.T) {
	dm, delivered := collectDeliveries(2)
	defer dm.Stop()

	dm.Add(NewHandle(noopTask), time.Hour)
	early := NewHandle(noopTask)
	dm.Add(early, 10*time.Millisecond)

	select {
	case h := <-delivered:
		if h != early {
			t.Fatal("delivered the hour-long entry first")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("earlier entry not delivered; timer was not re-armed")
	}
}

// TestDelayManager_StopReturnsUndelivered verifies Stop hands back every
// handle still waiting, and is idempotent.
func TestDelayManager_StopReturnsUndelivered(t *testing.T) {
	dm, _ := collectDeliveries(2)

	a := NewHandle(noopTask)
	b := NewHandle(noopTask)
	dm.Add(a, time.Hour)
	dm.Add(b, time.Hour)

	pending := dm.Stop()
	if len(pending) != 2 {
		t.Fatalf("Stop returned %d handles, want 2", len(pending))
	}
	seen := map[*Handle]bool{pending[0]: true, pending[1]: true}
	if !seen[a] || !seen[b] {
		t.Error("Stop did not return the undelivered handles")
	}

	if again := dm.Stop(); again != nil {
		t.Errorf("second Stop returned %d handles, want nil", len(again))
	}
}

// TestDelayManager_AddAfterStopCancelsHandle verifies a submission racing
// shutdown is never left Pending forever.
func TestDelayManager_AddAfterStopCancelsHandle(t *testing.T) {
	dm, _ := collectDeliveries(1)
	dm.Stop()

	h := NewHandle(noopTask)
	dm.Add(h, 10*time.Millisecond)

	if h.State() != StateCancelled {
		t.Errorf("State = %v, want CANCELLED", h.State())
	}
}

// TestDelayManager_ConcurrentAdds verifies the heap under concurrent
// producers: every handle is delivered exactly once.
func TestDelayManager_ConcurrentAdds(t *testing.T) {
	const producers = 8
	const perProducer = 25

	var mu sync.Mutex
	seen := make(map[*Handle]int)
	done := make(chan struct{})
	total := producers * perProducer

	dm := newDelayManager(func(h *Handle) {
		mu.Lock()
		seen[h]++
		n := len(seen)
		mu.Unlock()
		if n == total {
			close(done)
		}
	})
	defer dm.Stop()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				dm.Add(NewHandle(func(ctx context.Context) (any, error) { return nil, nil }),
					time.Duration(i%5)*time.Millisecond)
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		t.Fatalf("delivered %d of %d handles", n, total)
	}

	mu.Lock()
	defer mu.Unlock()
	for h, n := range seen {
		if n != 1 {
			t.Fatalf("handle %p delivered %d times", h, n)
		}
	}
}
