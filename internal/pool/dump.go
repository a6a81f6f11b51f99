package pool

import (
	"fmt"
	"strings"
)

// Dump renders a plaintext snapshot of the pool's state (spec.md §6),
// posted through the event loop like any other read so it never races
// a mutation mid-render.
func (p *Pool) Dump() string {
	var out string
	p.post(func() { out = p.dump() })
	return out
}

func (p *Pool) dump() string {
	var b strings.Builder

	fmt.Fprintf(&b, "node=%s idle_queue=%d registered_workers=%d pending_exit=%d\n",
		p.nodeIdentity.NodeID, p.idleQueue.Len(), len(p.registry), len(p.pendingExit))

	for _, lang := range sortedLanguages(p.languages) {
		st := p.languages[lang]
		fmt.Fprintf(&b, "[%s] registered=%d drivers=%d starting=%d pending_start=%d pending_registration=%d idle=%d\n",
			lang,
			len(st.registeredWorkers),
			len(st.registeredDrivers),
			len(st.workerProcesses),
			st.pendingStartRequests.Len(),
			st.pendingRegistrationRequests.Len(),
			len(st.idle),
		)
		fmt.Fprintf(&b, "[%s] io: spill idle=%d starting=%d pending=%d | restore idle=%d starting=%d pending=%d\n",
			lang,
			st.spillIO.IdleCount(), st.spillIO.StartingCount(), st.spillIO.PendingCount(),
			st.restoreIO.IdleCount(), st.restoreIO.StartingCount(), st.restoreIO.PendingCount(),
		)
	}

	fmt.Fprintf(&b, "jobs: known=%d finished=%d eager_installed=%d\n",
		len(p.allJobs), len(p.finishedJobs), len(p.eagerInstalled))
	fmt.Fprintf(&b, "ports: %s\n", p.cfg.Ports.String())

	for el := p.idleQueue.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*idleEntry)
		w := p.registry[entry.workerID]
		if w == nil {
			continue
		}
		fmt.Fprintf(&b, "  idle worker=%s language=%s type=%s ever_served_task=%v keep_alive_until=%s\n",
			w.id, w.language, w.workerType, w.everServedTask(), entry.keepAliveUntil.Format("15:04:05.000"))
	}

	return b.String()
}
