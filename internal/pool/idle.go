package pool

import (
	"container/list"
	"time"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

// pushIdleCold inserts at the front (spec.md §3 IdleEntry ordering: a
// worker that has never served a task is cold and evicted first).
func (p *Pool) pushIdleCold(e *idleEntry) *list.Element {
	return p.idleQueue.PushFront(e)
}

// pushIdleWarm inserts at the back.
func (p *Pool) pushIdleWarm(e *idleEntry) *list.Element {
	return p.idleQueue.PushBack(e)
}

// removeFromIdle drops a worker from both the global queue and its
// per-language idle set, wherever it is. Every disconnect/dispatch path
// must go through this (spec.md §9).
func (p *Pool) removeFromIdle(id types.WorkerID) {
	for el := p.idleQueue.Front(); el != nil; el = el.Next() {
		if el.Value.(*idleEntry).workerID == id {
			p.idleQueue.Remove(el)
			break
		}
	}
	if w, ok := p.registry[id]; ok {
		if st := p.languageState(w.language); st != nil {
			delete(st.idle, id)
		}
	}
}

// scanIdleForMatch scans the global idle queue back-to-front (warmest
// first) and returns the first live, matching worker (spec.md §4.3.2,
// §5 "MRU warmth first"). Removal from both the queue and per-language
// idle set happens here, atomically with respect to other pool
// operations since this only ever runs on the event loop goroutine.
//
// When nothing matches, it also returns a MismatchReason for cache-miss
// metrics labeling: the last reason other than MismatchOther seen in scan
// order. MismatchOther itself (dead, exiting, wrong language/type,
// conflicting tri-state) is never returned; if only such candidates were
// seen, or the queue is empty, the result is MismatchNone and no miss is
// counted.
func (p *Pool) scanIdleForMatch(req *popWorkerRequest, workerType types.WorkerType) (*worker, types.MismatchReason) {
	var lastReason types.MismatchReason
	for el := p.idleQueue.Back(); el != nil; el = el.Prev() {
		entry := el.Value.(*idleEntry)
		w, ok := p.registry[entry.workerID]
		if !ok {
			continue
		}
		reason := matchWorker(w, req, workerType, p.pendingExitSet())
		if reason == types.MismatchNone {
			p.idleQueue.Remove(el)
			if st := p.languageState(w.language); st != nil {
				delete(st.idle, w.id)
			}
			return w, types.MismatchNone
		}
		if reason != types.MismatchOther {
			lastReason = reason
		}
	}
	return nil, lastReason
}

func (p *Pool) pendingExitSet() map[types.WorkerID]struct{} { return p.pendingExit }

// sweepIdleKillable walks the global idle queue front-to-back (cold
// first), dropping dead workers, force-killing workers of finished jobs
// regardless of keep-alive, and returning the workers that are merely
// eligible for ordinary eviction (keep_alive_until < now), in the order
// they should be considered (spec.md §4.4).
func (p *Pool) sweepIdleKillable(now time.Time) (forceKill []*worker, killable []*worker) {
	var next *list.Element
	for el := p.idleQueue.Front(); el != nil; el = next {
		next = el.Next()
		entry := el.Value.(*idleEntry)
		w, ok := p.registry[entry.workerID]
		if !ok || w.dead {
			p.idleQueue.Remove(el)
			continue
		}
		if w.hasJob {
			if _, finished := p.finishedJobs[w.jobID]; finished {
				forceKill = append(forceKill, w)
				continue
			}
		}
		if entry.keepAliveUntil.Before(now) {
			killable = append(killable, w)
		}
	}
	return forceKill, killable
}
