package loader

import "sync/atomic"

// Counters tracks pipeline progress. Safe for concurrent workers.
type Counters struct {
	queued    atomic.Int64
	processed atomic.Int64
	bad       atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Queued    int64 `json:"queued_records"`
	Processed int64 `json:"processed_records"`
	Bad       int64 `json:"bad_records"`
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) IncrQueued() {
	c.queued.Add(1)
}

func (c *Counters) IncrProcessed() {
	c.processed.Add(1)
}

func (c *Counters) IncrBad() {
	c.bad.Add(1)
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Queued:    c.queued.Load(),
		Processed: c.processed.Load(),
		Bad:       c.bad.Load(),
	}
}
