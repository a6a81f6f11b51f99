package iopool

import (
	"testing"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

func TestPopWithIdleWorkerReturnsImmediately(t *testing.T) {
	p := New()
	p.MarkStarting()
	p.MarkStarted("w1")
	p.Push("w1")

	got, ok := p.Pop(nil)
	if !ok || got != "w1" {
		t.Fatalf("expected immediate hit w1, got %v ok=%v", got, ok)
	}
}

func TestPopWithoutIdleQueuesCallback(t *testing.T) {
	p := New()
	var delivered types.WorkerID
	_, ok := p.Pop(func(id types.WorkerID) { delivered = id })
	if ok {
		t.Fatalf("expected no immediate hit on empty pool")
	}
	if p.PendingCount() != 1 {
		t.Fatalf("expected 1 pending task, got %d", p.PendingCount())
	}

	p.MarkStarting()
	p.MarkStarted("w2")
	p.Push("w2")

	if delivered != "w2" {
		t.Fatalf("expected pending callback to receive w2, got %q", delivered)
	}
	if p.PendingCount() != 0 || p.IdleCount() != 0 {
		t.Fatalf("expected both pending and idle drained, pending=%d idle=%d", p.PendingCount(), p.IdleCount())
	}
}

func TestPushDropsUnstartedWorker(t *testing.T) {
	p := New()
	p.Push("ghost") // never marked starting/started
	if p.IdleCount() != 0 {
		t.Fatalf("expected worker that never registered to be dropped silently")
	}
}

func TestInvariantPendingOrIdleNeverBothNonEmpty(t *testing.T) {
	p := New()
	p.MarkStarting()
	p.MarkStarted("w1")
	p.Push("w1")
	p.MarkStarting()
	p.MarkStarted("w2")
	p.Push("w2")
	if p.IdleCount() != 2 {
		t.Fatalf("expected 2 idle workers, got %d", p.IdleCount())
	}

	var got types.WorkerID
	_, ok := p.Pop(func(id types.WorkerID) { got = id })
	if !ok {
		t.Fatalf("expected hit since idle non-empty")
	}
	_ = got

	if p.PendingCount() != 0 {
		t.Fatalf("pending must stay empty while idle non-empty, got %d", p.PendingCount())
	}
}

func TestDemandComputesBoundedBacklog(t *testing.T) {
	p := New()
	p.Pop(func(types.WorkerID) {})
	p.Pop(func(types.WorkerID) {})
	p.Pop(func(types.WorkerID) {})

	if d := p.Demand(2); d != 2 {
		t.Fatalf("expected demand capped at budget 2, got %d", d)
	}

	p.MarkStarting()
	p.MarkStarting()
	if d := p.Demand(2); d != 0 {
		t.Fatalf("expected no more demand once starting exhausts budget, got %d", d)
	}
}

func TestRemoveDropsFromStartedAndIdle(t *testing.T) {
	p := New()
	p.MarkStarting()
	p.MarkStarted("w1")
	p.Push("w1")
	p.Remove("w1")
	if p.IdleCount() != 0 {
		t.Fatalf("expected w1 removed from idle, got %d", p.IdleCount())
	}
	// Pushing again after removal should be dropped silently (no longer started).
	p.Push("w1")
	if p.IdleCount() != 0 {
		t.Fatalf("expected push after remove to be dropped, got %d", p.IdleCount())
	}
}
