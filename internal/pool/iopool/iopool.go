// Package iopool implements the two demand-driven I/O helper sub-pools,
// spill and restore (spec.md §4.5). A SubPool has no internal
// synchronization: it is mutated exclusively from the pool's single event
// loop goroutine, the same "one owner, no locks" discipline spec.md §5
// requires of the core. Grounded structurally on
// alexdev-tb-CodePortal/internal/executor/container_pool.go's
// idle/pending shape, stripped of its channel/mutex machinery since the
// event loop already serializes every caller.
package iopool

import "github.com/coreslab/nodeagent/internal/pool/types"

// Callback receives the worker handed to a pending PopIOWorker request.
type Callback func(types.WorkerID)

// SubPool holds one I/O sub-pool's demand-driven state (spec.md §3's
// IOSubState entity).
type SubPool struct {
	idle        []types.WorkerID
	started     map[types.WorkerID]struct{}
	numStarting int
	pending     []Callback
}

func New() *SubPool {
	return &SubPool{started: make(map[types.WorkerID]struct{})}
}

// MarkStarting records that a process of this I/O type has been launched
// but not yet registered.
func (p *SubPool) MarkStarting() { p.numStarting++ }

// MarkStarted transitions a just-registered worker from "starting" into
// the started set, making it eligible for PushIOWorker.
func (p *SubPool) MarkStarted(id types.WorkerID) {
	if p.numStarting > 0 {
		p.numStarting--
	}
	p.started[id] = struct{}{}
}

// MarkStartFailed decrements the starting counter for a process that
// died or timed out before registering (registration-timeout path).
func (p *SubPool) MarkStartFailed() {
	if p.numStarting > 0 {
		p.numStarting--
	}
}

// Pop returns an idle worker immediately if one exists; otherwise it
// queues cb in pending_tasks and reports false so the caller knows to
// start more processes (as many as Demand reports).
func (p *SubPool) Pop(cb Callback) (types.WorkerID, bool) {
	if len(p.idle) > 0 {
		id := p.idle[0]
		p.idle = p.idle[1:]
		return id, true
	}
	p.pending = append(p.pending, cb)
	return "", false
}

// Push returns a worker that just became idle (after registration, or
// returned unused) to the sub-pool. If the worker isn't in `started` it
// died mid-registration and is dropped silently (spec.md §4.5). Invariant
// 4 (pending_tasks empty OR idle empty) is maintained here: a push either
// satisfies the oldest pending callback or joins idle, never both.
func (p *SubPool) Push(id types.WorkerID) {
	if _, ok := p.started[id]; !ok {
		return
	}
	if len(p.pending) == 0 {
		p.idle = append(p.idle, id)
		return
	}
	cb := p.pending[0]
	p.pending = p.pending[1:]
	cb(id)
}

// Remove drops a worker from started/idle entirely, used on disconnect.
func (p *SubPool) Remove(id types.WorkerID) {
	delete(p.started, id)
	for i, existing := range p.idle {
		if existing == id {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return
		}
	}
}

// Demand reports how many more processes should be started to satisfy
// pending_tasks given budget = max_io_workers - (num_starting + started).
func (p *SubPool) Demand(maxIOWorkers int) int {
	avail := p.numStarting + len(p.started)
	budget := maxIOWorkers - avail
	if budget < 0 {
		budget = 0
	}
	backlog := len(p.pending) - len(p.idle)
	if backlog <= 0 {
		return 0
	}
	if backlog > budget {
		return budget
	}
	return backlog
}

func (p *SubPool) IdleCount() int    { return len(p.idle) }
func (p *SubPool) PendingCount() int { return len(p.pending) }
func (p *SubPool) StartingCount() int { return p.numStarting }
func (p *SubPool) StartedCount() int  { return len(p.started) }
