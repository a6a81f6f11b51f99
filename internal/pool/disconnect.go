package pool

import (
	"context"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

// RegisterWorkerSpec is what a worker process reports when it calls back
// in over the registration RPC (spec.md §4.3.5).
type RegisterWorkerSpec struct {
	Token      types.StartupToken
	WorkerID   types.WorkerID
	Language   types.Language
	WorkerType types.WorkerType
	PID        int
	JobID      types.JobID // drivers register with a job already assigned
	IsDriver   bool
}

// RegisterWorkerReply is returned synchronously to the registering
// process: a worker that cannot be placed (unknown token, exhausted
// ports) gets told to exit rather than sit around unusable.
type RegisterWorkerReply struct {
	Success bool
	Port    types.Port
	Err     error
}

// RegisterWorker completes a pending launch's RPC handshake (spec.md
// §4.3.4): it allocates the worker's RPC port and moves its record out of
// worker_processes and into the registry, replying with the port.
// is_pending_registration stays true — it only clears once OnWorkerStarted
// completes the handshake, which is also what actually dispatches the
// worker to a waiting request or I/O sub-pool. For the first driver of a
// language, the reply may be deferred until prestarted workers finish
// starting (spec.md §4.6 trigger 1), so this takes a callback rather than
// returning synchronously.
func (p *Pool) RegisterWorker(spec RegisterWorkerSpec, callback func(RegisterWorkerReply)) {
	p.postAsync(func() { p.handleRegisterWorker(spec, callback) })
}

func (p *Pool) handleRegisterWorker(spec RegisterWorkerSpec, callback func(RegisterWorkerReply)) {
	lang := p.languageState(spec.Language)
	if lang == nil {
		callback(RegisterWorkerReply{Err: errUnknownLanguage(spec.Language)})
		return
	}

	if spec.IsDriver {
		p.registerDriver(lang, spec, callback)
		return
	}

	wp, ok := lang.workerProcesses[spec.Token]
	if !ok {
		callback(RegisterWorkerReply{Err: errUnknownToken(spec.Token)})
		return
	}
	p.cancelRegistrationTimeout(spec.Token)
	delete(lang.workerProcesses, spec.Token)

	port, err := p.cfg.Ports.NextFree()
	if err != nil {
		if p.cfg.KillWorker != nil {
			p.cfg.KillWorker(context.Background(), wp.handle, true, func(bool) {})
		}
		callback(RegisterWorkerReply{Err: err})
		return
	}

	p.cfg.Metrics.ObserveRegisterLatency(float64(p.cfg.Clock.Now().Sub(wp.startedAt).Milliseconds()))

	w := &worker{
		id:                    spec.WorkerID,
		language:              spec.Language,
		workerType:            wp.workerType,
		token:                 spec.Token,
		handle:                wp.handle,
		port:                  port,
		runtimeEnvHash:        wp.runtimeEnv.Hash,
		dynamicOptions:        wp.dynamicOptions,
		startupKeepAlive:      wp.startupKeepAlive,
		isGPU:                 types.Unset,
		isActorWorker:         types.Unset,
		rootDetachedActorID:   nil,
		isPendingRegistration: true,
		gatesDriverReply:      wp.gatesDriverReply,
	}
	p.registry[w.id] = w
	lang.registeredWorkers[w.id] = struct{}{}
	p.recordEvent("worker_registered", map[string]any{"worker": string(w.id), "language": string(spec.Language), "worker_type": wp.workerType.String()})

	callback(RegisterWorkerReply{Success: true, Port: port})
}

// registerDriver registers a driver and, on a language's first driver
// with prestart-on-first-driver enabled, kicks off spec.md §4.6 trigger
// 1: num_prestart workers are spawned and the reply is withheld until
// they've all completed on_worker_started (completePrestartGate fires it
// once that count reaches zero). If none actually spawn — admission
// control already full, or the trigger doesn't apply — the reply goes out
// immediately.
func (p *Pool) registerDriver(lang *perLanguageState, spec RegisterWorkerSpec, callback func(RegisterWorkerReply)) {
	port, err := p.cfg.Ports.NextFree()
	if err != nil {
		callback(RegisterWorkerReply{Err: err})
		return
	}
	w := &worker{
		id:         spec.WorkerID,
		language:   spec.Language,
		workerType: types.WorkerTypeTask,
		port:       port,
		jobID:      spec.JobID,
		hasJob:     true,
	}
	p.registry[w.id] = w
	lang.registeredDrivers[w.id] = struct{}{}

	reply := RegisterWorkerReply{Success: true, Port: port}

	first := !lang.firstDriverSeen
	lang.firstDriverSeen = true
	if first && p.cfg.PrestartOnFirstDriver && !lang.prestartEnabled && p.cfg.NumPrestart > 0 {
		lang.prestartEnabled = true
		if spawned := p.prestartWorkers(lang, spec.Language, p.cfg.NumPrestart, true); spawned > 0 {
			lang.prestartGateRemaining += spawned
			lang.pendingDriverReplies = append(lang.pendingDriverReplies, func() { callback(reply) })
			return
		}
	}

	callback(reply)
}

// completePrestartGate advances a language's first-driver prestart gate
// by one completion (a worker finishing on_worker_started, timing out, or
// disconnecting before either) and fires every deferred RegisterWorker
// reply once the gate drains to zero (spec.md §4.6 trigger 1).
func (p *Pool) completePrestartGate(lang *perLanguageState) {
	if lang.prestartGateRemaining <= 0 {
		return
	}
	lang.prestartGateRemaining--
	if lang.prestartGateRemaining > 0 {
		return
	}
	replies := lang.pendingDriverReplies
	lang.pendingDriverReplies = nil
	for _, fire := range replies {
		fire()
	}
}

// OnWorkerStarted completes the registration handshake (spec.md §4.3.4):
// it clears is_pending_registration and only now actually makes the
// worker usable — PushWorker for task workers, MarkStarted in its
// sub-pool for I/O workers — and, if this worker was spawned to satisfy
// the first-driver prestart gate, advances it.
func (p *Pool) OnWorkerStarted(id types.WorkerID) {
	p.postAsync(func() { p.handleOnWorkerStarted(id) })
}

func (p *Pool) handleOnWorkerStarted(id types.WorkerID) {
	w, ok := p.registry[id]
	if !ok || !w.isPendingRegistration {
		return
	}
	w.isPendingRegistration = false

	lang := p.languageState(w.language)
	if lang == nil {
		return
	}

	if w.workerType.IsIO() {
		lang.ioSubPool(w.workerType).MarkStarted(w.id)
	} else {
		p.pushWorker(w, true)
	}

	if w.gatesDriverReply {
		w.gatesDriverReply = false
		p.completePrestartGate(lang)
	}
}

// HandleDisconnectWorker tears down a worker that exited or was killed
// (spec.md §4.3.9): it is removed from the idle queue, the registry, and
// any job-ownership bookkeeping, and its port is returned to the free
// list.
func (p *Pool) HandleDisconnectWorker(id types.WorkerID) {
	p.post(func() { p.handleDisconnectWorker(id) })
}

func (p *Pool) handleDisconnectWorker(id types.WorkerID) {
	w, ok := p.registry[id]
	if !ok {
		return
	}
	w.dead = true
	p.recordEvent("worker_disconnected", map[string]any{"worker": string(id), "language": string(w.language)})

	p.removeFromIdle(id)
	delete(p.registry, id)
	delete(p.pendingExit, id)

	if lang := p.languageState(w.language); lang != nil {
		delete(lang.registeredWorkers, id)
		delete(lang.registeredDrivers, id)
		if w.workerType.IsIO() {
			if w.isPendingRegistration {
				// Never reached MarkStarted, so it was never in `started`:
				// release its starting slot instead of a no-op Remove.
				lang.ioSubPool(w.workerType).MarkStartFailed()
			} else {
				lang.ioSubPool(w.workerType).Remove(id)
			}
		}
		if w.isPendingRegistration && w.gatesDriverReply {
			w.gatesDriverReply = false
			p.completePrestartGate(lang)
		}
	}

	if w.port != 0 {
		p.cfg.Ports.Release(w.port)
	}
}

// MarkPendingExit records that a worker has been asked to exit but has
// not yet disconnected, so the Matchmaker stops offering it (spec.md
// §4.4.1).
func (p *Pool) MarkPendingExit(id types.WorkerID) {
	p.post(func() { p.pendingExit[id] = struct{}{} })
}

type errUnknownLanguage types.Language

func (e errUnknownLanguage) Error() string { return "pool: no worker command configured for language " + string(e) }

type errUnknownToken types.StartupToken

func (e errUnknownToken) Error() string { return "pool: unknown startup token in registration" }
