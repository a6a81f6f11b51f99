package pool

import (
	"container/list"
	"context"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

// armRegistrationTimeout starts the per-process registration-timeout
// timer (spec.md §4.3.5): if the spawned process never calls
// RegisterWorker within WorkerRegisterTimeout, the launch attempt is
// abandoned and the process killed.
func (p *Pool) armRegistrationTimeout(language types.Language, token types.StartupToken) {
	if p.cfg.WorkerRegisterTimeout <= 0 {
		return
	}
	timer := p.cfg.Clock.AfterFunc(p.cfg.WorkerRegisterTimeout, func() {
		p.postAsync(func() { p.onRegistrationTimeout(language, token) })
	})
	p.registrationTimeoutTimers[token] = timer
}

func (p *Pool) cancelRegistrationTimeout(token types.StartupToken) {
	if timer, ok := p.registrationTimeoutTimers[token]; ok {
		timer.Stop()
		delete(p.registrationTimeoutTimers, token)
	}
}

// onRegistrationTimeout fires when a launched process never registered
// in time. The workerProcess record is dropped, its runtime env
// reference released, and the OS process killed; nothing waiting in
// pending_registration_requests is failed directly here — they time out
// independently via armRegistrationWait, or get served by whichever
// worker registers next. For task workers, the abandoned startup slot is
// freed back to pending_start_requests so a queued caller can retry
// immediately instead of waiting out its own timeout; for I/O workers,
// spawnIOIfNeeded gets a chance to replace the lost capacity (spec.md
// §4.8).
func (p *Pool) onRegistrationTimeout(language types.Language, token types.StartupToken) {
	delete(p.registrationTimeoutTimers, token)

	lang := p.languageState(language)
	if lang == nil {
		return
	}
	wp, ok := lang.workerProcesses[token]
	if !ok || !wp.isPendingRegistration {
		return
	}
	delete(lang.workerProcesses, token)
	p.releaseRuntimeEnvAsync(wp.runtimeEnv)
	if wp.workerType.IsIO() {
		lang.ioSubPool(wp.workerType).MarkStartFailed()
	}
	if wp.gatesDriverReply {
		p.completePrestartGate(lang)
	}

	p.cfg.Warn("pool: worker process (token=%d, language=%s) failed to register within %s, killing", token, language, p.cfg.WorkerRegisterTimeout)
	if p.cfg.KillWorker != nil {
		p.cfg.KillWorker(context.Background(), wp.handle, true, func(bool) {})
	} else {
		wp.handle.Kill()
	}

	if wp.workerType.IsIO() {
		p.spawnIOIfNeeded(lang, language, wp.workerType)
		return
	}
	p.tryPendingStartRequests(lang)
}

// armRegistrationWait starts the per-request timer bounding how long a
// PopWorker caller will wait for a worker process it kicked off to
// finish registering (spec.md §4.3.6). Keyed by request pointer
// identity, not by any field of the request, since a popWorkerRequest
// carries no unique id of its own.
func (p *Pool) armRegistrationWait(req *popWorkerRequest) {
	if p.cfg.WorkerRegisterTimeout <= 0 {
		return
	}
	timer := p.cfg.Clock.AfterFunc(p.cfg.WorkerRegisterTimeout, func() {
		p.postAsync(func() { p.onRegistrationWaitExpired(req) })
	})
	p.registrationWaitTimers[req] = timer
}

func (p *Pool) cancelRegistrationWait(req *popWorkerRequest) {
	if timer, ok := p.registrationWaitTimers[req]; ok {
		timer.Stop()
		delete(p.registrationWaitTimers, req)
	}
}

// onRegistrationWaitExpired reports WorkerPendingRegistraton to a caller
// still waiting past the deadline. The request is removed from
// pending_registration_requests so it cannot be delivered twice; the
// worker process itself, if it registers later, simply falls through to
// the idle queue.
func (p *Pool) onRegistrationWaitExpired(req *popWorkerRequest) {
	delete(p.registrationWaitTimers, req)

	lang := p.languageState(req.language)
	if lang == nil {
		return
	}
	if !removeRequest(lang.pendingRegistrationRequests, req) {
		return
	}
	req.callback(Reply{Status: types.StatusWorkerPendingRegistraton})
}

func removeRequest(l *list.List, target *popWorkerRequest) bool {
	for el := l.Front(); el != nil; el = el.Next() {
		if el.Value.(*popWorkerRequest) == target {
			l.Remove(el)
			return true
		}
	}
	return false
}
