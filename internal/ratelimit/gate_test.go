package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestGateFastPathWithinCapacity(t *testing.T) {
	g := NewGate(GateConfig{Capacity: 2, QueueDepth: 10, Timeout: time.Second})
	ctx := context.Background()

	if !g.Acquire(ctx) {
		t.Fatal("first acquire should succeed")
	}
	if !g.Acquire(ctx) {
		t.Fatal("second acquire should succeed")
	}
	if g.InFlight() != 2 {
		t.Errorf("expected 2 in flight, got %d", g.InFlight())
	}

	g.Release()
	g.Release()
	if g.InFlight() != 0 {
		t.Errorf("expected 0 in flight after release, got %d", g.InFlight())
	}
}

func TestGateQueueFullRejectsImmediately(t *testing.T) {
	g := NewGate(GateConfig{Capacity: 1, QueueDepth: 0, Timeout: 10 * time.Second})
	ctx := context.Background()

	if !g.Acquire(ctx) {
		t.Fatal("first acquire should succeed")
	}

	// Queue depth zero: no waiting allowed, must not block for the timeout.
	start := time.Now()
	if g.Acquire(ctx) {
		t.Fatal("acquire should be rejected when saturated with no queue")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("queue-full rejection should be immediate, took %v", elapsed)
	}
}

func TestGateWaitTimesOut(t *testing.T) {
	g := NewGate(GateConfig{Capacity: 1, QueueDepth: 5, Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	if !g.Acquire(ctx) {
		t.Fatal("first acquire should succeed")
	}

	start := time.Now()
	if g.Acquire(ctx) {
		t.Fatal("second acquire should time out")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("acquire returned before the timeout, took %v", elapsed)
	}
	if g.Waiting() != 0 {
		t.Errorf("timed-out waiter should be dequeued, waiting=%d", g.Waiting())
	}
}

func TestGateWaiterGetsSlotOnRelease(t *testing.T) {
	g := NewGate(GateConfig{Capacity: 1, QueueDepth: 5, Timeout: 2 * time.Second})
	ctx := context.Background()

	if !g.Acquire(ctx) {
		t.Fatal("first acquire should succeed")
	}

	got := make(chan bool, 1)
	go func() {
		got <- g.Acquire(ctx)
	}()

	// Let the goroutine park in the wait queue before releasing.
	time.Sleep(20 * time.Millisecond)
	g.Release()

	select {
	case ok := <-got:
		if !ok {
			t.Fatal("queued waiter should obtain the released slot")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never obtained the released slot")
	}
}

func TestGateContextCancellation(t *testing.T) {
	g := NewGate(GateConfig{Capacity: 1, QueueDepth: 5, Timeout: 10 * time.Second})

	if !g.Acquire(context.Background()) {
		t.Fatal("first acquire should succeed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if g.Acquire(ctx) {
		t.Fatal("acquire should fail once the context is cancelled")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation should unblock promptly, took %v", elapsed)
	}
}

func TestGateDefaults(t *testing.T) {
	g := NewGate(GateConfig{})
	if g.Capacity() != 5 {
		t.Errorf("expected default capacity 5, got %d", g.Capacity())
	}
}
