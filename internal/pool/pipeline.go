package pool

import (
	"container/list"
	"context"
	"time"

	"github.com/coreslab/nodeagent/internal/pool/launcher"
	"github.com/coreslab/nodeagent/internal/pool/types"
)

// PopWorkerSpec is the caller-facing input to PopWorker (spec.md §3
// PopWorkerRequest, minus the callback which is a separate argument so
// callers read naturally: PopWorker(spec, callback)).
type PopWorkerSpec struct {
	Language            types.Language
	JobID               types.JobID
	RootDetachedActorID *string
	IsGPU               types.TriBool
	IsActorWorker       types.TriBool
	RuntimeEnv          types.RuntimeEnvInfo
	DynamicOptions      []string
	StartupKeepAlive    time.Duration
}

// PopWorker is the task→worker entry point (spec.md §4.3.1). Actor-task
// requests never reach this layer (spec.md §4.3.1 invariant) — callers
// translate an actor-creation task into IsActorWorker=true before
// calling in; rejecting bare actor-task requests is the RPC layer's job,
// out of scope here.
func (p *Pool) PopWorker(spec PopWorkerSpec, callback func(Reply) (used bool)) {
	req := &popWorkerRequest{
		language:            spec.Language,
		jobID:               spec.JobID,
		rootDetachedActorID: spec.RootDetachedActorID,
		isGPU:               spec.IsGPU,
		isActorWorker:       spec.IsActorWorker,
		runtimeEnv:          spec.RuntimeEnv,
		dynamicOptions:      spec.DynamicOptions,
		startupKeepAlive:    spec.StartupKeepAlive,
		callback:            callback,
	}
	p.postAsync(func() { p.handlePopWorker(req) })
}

func (p *Pool) handlePopWorker(req *popWorkerRequest) {
	req.submittedAt = p.cfg.Clock.Now()

	lang := p.languageState(req.language)
	if lang == nil {
		p.deliver(req, Reply{Status: types.StatusJobConfigMissing})
		return
	}

	if w, missReason := p.scanIdleForMatch(req, types.WorkerTypeTask); w != nil {
		p.cfg.Metrics.IncCacheHit()
		p.recordEvent("request_matched", map[string]any{"worker": string(w.id), "language": string(req.language), "cache": "hit"})
		p.assignAndDeliver(w, req)
		return
	} else if missReason != types.MismatchNone {
		p.cfg.Metrics.IncCacheMiss(missReason)
	}

	p.startupPath(req)
}

func (p *Pool) assignAndDeliver(w *worker, req *popWorkerRequest) {
	w.jobID = req.jobID
	w.hasJob = true
	if w.assignedTaskAt.IsZero() {
		w.assignedTaskAt = p.cfg.Clock.Now()
	}
	p.deliverAsync(w, req)
}

// deliverAsync dispatches the callback "asynchronously" per spec.md
// §4.3.2/§5: posted back onto the loop one tick later so the caller never
// observes mid-mutation state. If the callback declines the worker
// (used=false) it is re-pushed (spec.md §4.3.7, P6).
func (p *Pool) deliverAsync(w *worker, req *popWorkerRequest) {
	p.postAsync(func() {
		used := req.callback(Reply{
			Status: types.StatusOK,
			Worker: &PopWorkerHandle{ID: w.id, Language: w.language, Port: w.port, PID: w.handle.PID()},
		})
		if !used {
			p.pushWorker(w, false)
		}
	})
}

func (p *Pool) deliver(req *popWorkerRequest, reply Reply) {
	p.postAsync(func() { req.callback(reply) })
}

// startupPath implements spec.md §4.3.3.
func (p *Pool) startupPath(req *popWorkerRequest) {
	if req.runtimeEnv.Empty() {
		p.startWorkerProcess(req, "")
		return
	}
	go func() {
		ctxStr, err := p.cfg.Broker.GetOrCreate(context.Background(), req.jobID, req.runtimeEnv)
		p.postAsync(func() {
			if err != nil {
				p.deliver(req, Reply{Status: types.StatusRuntimeEnvCreateFailed, Err: err})
				return
			}
			p.startWorkerProcess(req, ctxStr)
		})
	}()
}

func (p *Pool) releaseRuntimeEnvAsync(env types.RuntimeEnvInfo) {
	if env.Empty() {
		return
	}
	go p.cfg.Broker.DeleteIfPossible(context.Background(), env)
}

// StartWorkerProcess implements spec.md §4.3.3 steps 1-3.
func (p *Pool) startWorkerProcess(req *popWorkerRequest, runtimeEnvContext string) {
	lang := p.languageState(req.language)

	jobCfg, ok := p.allJobs[req.jobID]
	if !ok {
		p.releaseRuntimeEnvAsync(req.runtimeEnv)
		p.deliver(req, Reply{Status: types.StatusJobConfigMissing})
		return
	}

	if lang.pendingStartingCount(types.WorkerTypeTask) >= p.cfg.MaximumStartupConcurrency {
		p.releaseRuntimeEnvAsync(req.runtimeEnv)
		lang.pendingStartRequests.PushBack(req)
		p.recordEvent("request_queued", map[string]any{"language": string(req.language), "reason": "too_many_starting"})
		if isDynamicLanguageNonActorTask(req) {
			p.triggerBacklogPrestart(lang, req.language)
		}
		p.deliver(req, Reply{Status: types.StatusTooManyStarting})
		return
	}

	token := p.cfg.Launcher.NextToken()
	now := p.cfg.Clock.Now()

	argv, env, err := p.cfg.Launcher.BuildArgvEnv(launcher.BuildRequest{
		Language:          req.language,
		Job:               jobCfg,
		WorkerType:        types.WorkerTypeTask,
		JobID:             req.jobID,
		DynamicOptions:    req.dynamicOptions,
		RuntimeEnvHash:    req.runtimeEnv.Hash,
		RuntimeEnvContext: runtimeEnvContext,
		StartupToken:      token,
		LaunchTimeMS:      now.UnixMilli(),
		ResourceIsolation: jobCfg.ResourceIsolated,
	})
	if err != nil {
		p.releaseRuntimeEnvAsync(req.runtimeEnv)
		p.cfg.Fatal("pool: cannot build launch command: %v", err)
		return
	}

	handle, err := p.cfg.Launcher.Spawn(context.Background(), argv, env, false)
	if err != nil {
		p.releaseRuntimeEnvAsync(req.runtimeEnv)
		if _, recoverable := err.(*launcher.RecoverableSpawnError); recoverable {
			p.cfg.Warn("pool: recoverable spawn failure, re-queueing: %v", err)
			lang.pendingStartRequests.PushBack(req)
			return
		}
		p.cfg.Fatal("pool: fatal spawn failure: %v", err)
		return
	}

	lang.workerProcesses[token] = &workerProcess{
		token:                 token,
		handle:                handle,
		startedAt:             now,
		workerType:            types.WorkerTypeTask,
		isPendingRegistration: true,
		runtimeEnv:            req.runtimeEnv,
		dynamicOptions:        req.dynamicOptions,
		startupKeepAlive:      req.startupKeepAlive,
		language:              req.language,
	}
	p.cfg.Metrics.IncWorkersStarted()
	p.recordEvent("worker_spawned", map[string]any{"language": string(req.language), "token": uint64(token), "worker_type": types.WorkerTypeTask.String()})
	p.armRegistrationTimeout(req.language, token)

	lang.pendingRegistrationRequests.PushBack(req)
	p.armRegistrationWait(req)

	p.warnIfMultipleExceeded(lang, req.language)
}

// TryPendingStartRequests drains pending_start_requests for one language,
// resubmitting each via StartNewWorker (spec.md §4.3.8). Each resubmit
// either advances the request to pending_registration_requests or
// re-enqueues it at the tail (rate-limit rejection), so the drain always
// terminates.
func (p *Pool) tryPendingStartRequests(lang *perLanguageState) {
	n := lang.pendingStartRequests.Len()
	for i := 0; i < n; i++ {
		front := lang.pendingStartRequests.Front()
		if front == nil {
			return
		}
		lang.pendingStartRequests.Remove(front)
		req := front.Value.(*popWorkerRequest)
		p.startupPath(req)
	}
}

// pushWorker implements spec.md §4.3.7 as an explicit loop rather than
// recursion (spec.md §9: "an iterative loop is acceptable and
// preferred").
func (p *Pool) pushWorker(w *worker, justRegistered bool) {
	for {
		lang := p.languageState(w.language)
		if lang == nil {
			return
		}

		if req := popMatching(lang.pendingRegistrationRequests, w, p.pendingExit); req != nil {
			p.cancelRegistrationWait(req)
			if p.deliverAndWait(w, req) {
				return
			}
			continue
		}
		if req := popMatching(lang.pendingStartRequests, w, p.pendingExit); req != nil {
			if p.deliverAndWait(w, req) {
				return
			}
			continue
		}
		break
	}

	p.insertIdle(w, justRegistered)
}

// deliverAndWait assigns w to req synchronously (the event loop is the
// only reader/writer of pool state, so there is no race to wait for) and
// reports whether the callback consumed the worker.
func (p *Pool) deliverAndWait(w *worker, req *popWorkerRequest) bool {
	w.jobID = req.jobID
	w.hasJob = true
	if w.assignedTaskAt.IsZero() {
		w.assignedTaskAt = p.cfg.Clock.Now()
	}
	used := req.callback(Reply{
		Status: types.StatusOK,
		Worker: &PopWorkerHandle{ID: w.id, Language: w.language, Port: w.port, PID: w.handle.PID()},
	})
	return used
}

func popMatching(l *list.List, w *worker, pendingExit map[types.WorkerID]struct{}) *popWorkerRequest {
	for el := l.Front(); el != nil; el = el.Next() {
		req := el.Value.(*popWorkerRequest)
		if matchWorker(w, req, w.workerType, pendingExit) == types.MismatchNone {
			l.Remove(el)
			return req
		}
	}
	return nil
}

func (p *Pool) insertIdle(w *worker, justRegistered bool) {
	lang := p.languageState(w.language)
	now := p.cfg.Clock.Now()
	keepAliveUntil := now.Add(p.cfg.IdleKillThreshold)
	if justRegistered && w.startupKeepAlive > 0 {
		if extended := now.Add(w.startupKeepAlive); extended.After(keepAliveUntil) {
			keepAliveUntil = extended
		}
	}
	entry := &idleEntry{workerID: w.id, keepAliveUntil: keepAliveUntil}
	if w.everServedTask() {
		p.pushIdleWarm(entry)
	} else {
		p.pushIdleCold(entry)
	}
	lang.idle[w.id] = struct{}{}
	p.recordEvent("worker_pushed_idle", map[string]any{"worker": string(w.id), "language": string(w.language), "just_registered": justRegistered})

	if w.workerType == types.WorkerTypeTask {
		p.tryPendingStartRequests(lang)
	}
}

// isDynamicLanguageNonActorTask reports whether req is eligible for the
// backlog prestart shim (spec.md §4.6 trigger 2): a non-actor task, with
// no per-task dynamic command-line options, for the one generic
// interpreted language whose workers can pick up any job.
func isDynamicLanguageNonActorTask(req *popWorkerRequest) bool {
	if req.language != types.LanguagePython {
		return false
	}
	if len(req.dynamicOptions) > 0 {
		return false
	}
	return !(req.isActorWorker.IsSet() && req.isActorWorker.Value())
}

// warnIfMultipleExceeded ports worker_pool.cc's "warn once per multiple
// of maximum_startup_concurrency" diagnostic (SPEC_FULL.md §4.6).
func (p *Pool) warnIfMultipleExceeded(lang *perLanguageState, language types.Language) {
	if lang.multipleForWarning <= 0 {
		return
	}
	total := int64(len(lang.registeredWorkers) + len(lang.workerProcesses))
	multiple := total / int64(lang.multipleForWarning)
	if multiple > 1 && multiple > lang.lastWarningMultiple {
		lang.lastWarningMultiple = multiple
		p.cfg.Warn("pool: worker count for %s is %dx maximum_startup_concurrency (%d workers)", language, multiple, total)
	}
}
