package core

// PoolStats is an eventually-consistent snapshot of a pool's counters.
// Individual fields are read from atomics without mutual synchronization,
// so totals may be momentarily inconsistent under concurrent mutation.
type PoolStats struct {
	ID        string
	Workers   int
	Queued    int
	Active    int
	Delayed   int
	Completed int64
	Failed    int64
	Cancelled int64
	Rejected  int64
	Running   bool
}

// Stats assembles a snapshot from the dispatcher counters.
func (d *Dispatcher) Stats(id string, workers int, running bool) PoolStats {
	return PoolStats{
		ID:        id,
		Workers:   workers,
		Queued:    d.QueuedCount(),
		Active:    d.ActiveCount(),
		Delayed:   d.DelayedCount(),
		Completed: d.CompletedCount(),
		Failed:    d.FailedCount(),
		Cancelled: d.CancelledCount(),
		Rejected:  d.RejectedCount(),
		Running:   running,
	}
}
