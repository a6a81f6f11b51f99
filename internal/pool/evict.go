package pool

import "context"

// Tick runs one pass of idle eviction (spec.md §4.4): called periodically
// by the caller (cmd/nodeagent wires this to a ticker), never by the pool
// itself, so tests can drive it deterministically via a fake Clock
// without waiting on a real ticker.
func (p *Pool) Tick() {
	p.post(p.evictIdle)
}

// evictIdle force-kills idle workers belonging to finished jobs outright,
// then kills ordinary keep-alive-expired idle workers until the
// remaining idle count reaches CPUsAvailable (spec.md §4.4.2: never
// evict idle capacity below the CPU count, since that capacity will be
// needed again imminently). Busy workers don't count against the idle
// budget either way — only idleQueue size is compared to the reserve.
func (p *Pool) evictIdle() {
	now := p.cfg.Clock.Now()
	forceKill, killable := p.sweepIdleKillable(now)

	for _, w := range forceKill {
		p.killIdleWorker(w, true)
	}

	reserve := 0
	if p.cfg.CPUsAvailable != nil {
		reserve = p.cfg.CPUsAvailable()
	}
	spare := p.idleQueue.Len() - reserve
	for _, w := range killable {
		if spare <= 0 {
			break
		}
		p.killIdleWorker(w, false)
		spare--
	}
}

// killIdleWorker removes w from the idle queue immediately (so it is
// never offered to a concurrent PopWorker while the Exit RPC is in
// flight) and asks the caller-supplied KillWorker hook to issue it
// (spec.md §4.4.1). The worker is only actually forgotten once
// HandleDisconnectWorker reports it gone.
func (p *Pool) killIdleWorker(w *worker, forceExit bool) {
	p.removeFromIdle(w.id)
	p.pendingExit[w.id] = struct{}{}
	p.recordEvent("worker_killed", map[string]any{"worker": string(w.id), "language": string(w.language), "force_exit": forceExit})

	if p.cfg.KillWorker == nil {
		go p.postAsync(func() { p.handleDisconnectWorker(w.id) })
		return
	}
	p.cfg.KillWorker(context.Background(), w.handle, forceExit, func(success bool) {
		p.postAsync(func() { p.handleDisconnectWorker(w.id) })
	})
}
