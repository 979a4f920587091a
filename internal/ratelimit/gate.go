package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Gate bounds the number of metered requests executing at once, independent
// of any per-minute quota. Construct one per process in the composition
// root; capacity must be divided across processes when scaling out.
type Gate struct {
	slots chan struct{}

	mu         sync.Mutex
	waiting    int
	queueDepth int

	timeout time.Duration
}

type GateConfig struct {
	Capacity int // Default: 5
	// Waiters allowed at once. Zero disables queueing entirely; negative
	// selects the default of 50. The config layer defaults an absent gate
	// section to 50 before it reaches here.
	QueueDepth int
	Timeout    time.Duration // Default: 10 seconds
}

func NewGate(cfg GateConfig) *Gate {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 5
	}
	if cfg.QueueDepth < 0 {
		cfg.QueueDepth = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Gate{
		slots:      make(chan struct{}, cfg.Capacity),
		queueDepth: cfg.QueueDepth,
		timeout:    cfg.Timeout,
	}
}

// Acquire obtains an execution slot, waiting up to the configured timeout.
// It fails immediately when the wait queue is already at its depth limit.
// A timed-out wait and a full queue are indistinguishable to the caller;
// both mean busy, with no side effects.
func (g *Gate) Acquire(ctx context.Context) bool {
	// Fast path: free slot, no queueing.
	select {
	case g.slots <- struct{}{}:
		return true
	default:
	}

	g.mu.Lock()
	if g.waiting >= g.queueDepth {
		g.mu.Unlock()
		return false
	}
	g.waiting++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.waiting--
		g.mu.Unlock()
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case g.slots <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Release returns a slot to the pool. Must be paired with every successful
// Acquire on every exit path.
func (g *Gate) Release() {
	<-g.slots
}

// InFlight reports how many slots are currently held.
func (g *Gate) InFlight() int {
	return len(g.slots)
}

// Waiting reports how many callers are queued for a slot.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}

func (g *Gate) Capacity() int {
	return cap(g.slots)
}
