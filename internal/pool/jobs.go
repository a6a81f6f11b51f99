package pool

import (
	"container/list"
	"context"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

// HandleJobStarted records a job's configuration so later PopWorker
// calls can resolve it (spec.md §4.5). Registration is idempotent: a
// duplicate JobStarted for a JobID already known is a no-op, matching
// the at-least-once delivery the job-submission RPC allows.
func (p *Pool) HandleJobStarted(cfg types.JobConfig) {
	p.post(func() { p.handleJobStarted(cfg) })
}

func (p *Pool) handleJobStarted(cfg types.JobConfig) {
	if _, known := p.allJobs[cfg.JobID]; known {
		return
	}
	p.allJobs[cfg.JobID] = cfg

	if cfg.EagerInstallEnv && !p.eagerInstalled[cfg.JobID] {
		p.eagerInstalled[cfg.JobID] = true
		go func() {
			if _, err := p.cfg.Broker.GetOrCreate(context.Background(), cfg.JobID, types.RuntimeEnvInfo{}); err != nil {
				p.cfg.Warn("pool: eager runtime-env install failed for job %s: %v", cfg.JobID, err)
			}
		}()
	}
}

// HandleJobFinished marks a job as finished (spec.md §4.5.2): idle
// workers still bound to it become eligible for immediate force-kill
// regardless of keep-alive (sweepIdleKillable), and any still-pending
// PopWorker requests for it are failed with JobFinished.
//
// all_jobs is never purged here or anywhere else — the pool needs a
// job's config (language, JVM options, ...) for as long as any process
// launched under it might still be starting up, and there is no later
// point at which that becomes provably safe to forget.
func (p *Pool) HandleJobFinished(jobID types.JobID) {
	p.post(func() { p.handleJobFinished(jobID) })
}

func (p *Pool) handleJobFinished(jobID types.JobID) {
	if _, already := p.finishedJobs[jobID]; already {
		return
	}
	p.finishedJobs[jobID] = struct{}{}

	for _, lang := range p.languages {
		p.failJobRequests(lang.pendingStartRequests, jobID, false)
		p.failJobRequests(lang.pendingRegistrationRequests, jobID, true)
	}
}

// failJobRequests removes and fails every queued request for jobID with
// JobFinished. cancelWait is true for pending_registration_requests,
// whose entries each own a registration-wait timer that must be
// stopped; pending_start_requests never had one armed.
func (p *Pool) failJobRequests(l *list.List, jobID types.JobID, cancelWait bool) {
	var next *list.Element
	for el := l.Front(); el != nil; el = next {
		next = el.Next()
		req := el.Value.(*popWorkerRequest)
		if req.jobID != jobID {
			continue
		}
		l.Remove(el)
		if cancelWait {
			p.cancelRegistrationWait(req)
		}
		p.recordEvent("request_failed", map[string]any{"job_id": string(jobID), "reason": string(types.StatusJobFinished)})
		req.callback(Reply{Status: types.StatusJobFinished})
	}
}
