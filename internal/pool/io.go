package pool

import (
	"context"

	"github.com/coreslab/nodeagent/internal/pool/iopool"
	"github.com/coreslab/nodeagent/internal/pool/launcher"
	"github.com/coreslab/nodeagent/internal/pool/types"
)

// PopIOWorker requests a spill or restore worker (spec.md §4.5). Unlike
// PopWorker, callback receives a plain WorkerID: I/O workers have no
// matchmaking fingerprint, so there is nothing to report beyond "here is
// one" or, implicitly, "wait".
func (p *Pool) PopIOWorker(language types.Language, workerType types.WorkerType, callback func(types.WorkerID)) {
	p.postAsync(func() { p.handlePopIOWorker(language, workerType, callback) })
}

func (p *Pool) handlePopIOWorker(language types.Language, workerType types.WorkerType, callback func(types.WorkerID)) {
	lang := p.languageState(language)
	if lang == nil {
		return
	}
	sub := lang.ioSubPool(workerType)
	if id, ok := sub.Pop(iopool.Callback(callback)); ok {
		callback(id)
		return
	}
	p.spawnIOIfNeeded(lang, language, workerType)
}

// PushIOWorker returns an I/O worker to its sub-pool once it finishes a
// spill/restore operation (spec.md §4.5 invariant 4).
func (p *Pool) PushIOWorker(language types.Language, workerType types.WorkerType, id types.WorkerID) {
	p.post(func() {
		if lang := p.languageState(language); lang != nil {
			lang.ioSubPool(workerType).Push(id)
		}
	})
}

// spawnIOIfNeeded launches as many additional spill/restore processes as
// SubPool.Demand says are needed to work down the pending backlog,
// bounded by MaxIOWorkers (spec.md §4.5.1).
func (p *Pool) spawnIOIfNeeded(lang *perLanguageState, language types.Language, workerType types.WorkerType) {
	sub := lang.ioSubPool(workerType)
	n := sub.Demand(p.cfg.MaxIOWorkers)
	for i := 0; i < n; i++ {
		token := p.cfg.Launcher.NextToken()
		now := p.cfg.Clock.Now()

		argv, env, err := p.cfg.Launcher.BuildArgvEnv(launcher.BuildRequest{
			Language:     language,
			WorkerType:   workerType,
			StartupToken: token,
			LaunchTimeMS: now.UnixMilli(),
		})
		if err != nil {
			p.cfg.Warn("pool: cannot build launch command for %s %s worker: %v", language, workerType, err)
			return
		}

		handle, err := p.cfg.Launcher.Spawn(context.Background(), argv, env, true)
		if err != nil {
			if _, recoverable := err.(*launcher.RecoverableSpawnError); recoverable {
				p.cfg.Warn("pool: recoverable spawn failure for %s %s worker: %v", language, workerType, err)
				return
			}
			p.cfg.Fatal("pool: fatal spawn failure for %s %s worker: %v", language, workerType, err)
			return
		}

		lang.workerProcesses[token] = &workerProcess{
			token:                 token,
			handle:                handle,
			startedAt:             now,
			workerType:            workerType,
			isPendingRegistration: true,
			language:              language,
		}
		sub.MarkStarting()
		p.cfg.Metrics.IncWorkersStarted()
		p.recordEvent("io_worker_spawned", map[string]any{"language": string(language), "worker_type": workerType.String(), "token": uint64(token)})
		p.armRegistrationTimeout(language, token)
	}
}
