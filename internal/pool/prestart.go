package pool

import (
	"context"

	"github.com/coreslab/nodeagent/internal/pool/launcher"
	"github.com/coreslab/nodeagent/internal/pool/types"
)

// PrestartWorkers requests n speculative Task workers for a language
// ahead of any task actually needing one (spec.md §4.6): either the
// first-driver-registration trigger (registerDriver) or a caller
// reacting to a growing task-submission backlog. Callers outside this
// package never gate a driver reply on these, so this always spawns
// plainly.
func (p *Pool) PrestartWorkers(language types.Language, n int) {
	p.post(func() {
		if lang := p.languageState(language); lang != nil {
			p.prestartWorkers(lang, language, n, false)
		}
	})
}

// prestartWorkers launches up to n Task workers with no job or runtime
// env bound yet (spec.md §4.6.2: prestarted processes carry a generic,
// job-agnostic command line and pick up their job at registration time,
// same as any other worker). Admission control still applies: it never
// pushes the language over maximum_startup_concurrency. Returns the
// number of processes actually spawned, which may be less than n.
// gatesDriverReply marks each spawned process so its eventual
// on_worker_started (or registration timeout) counts against the
// first-driver prestart gate (spec.md §4.6 trigger 1); the backlog
// trigger (§4.6 trigger 2) never sets it.
func (p *Pool) prestartWorkers(lang *perLanguageState, language types.Language, n int, gatesDriverReply bool) int {
	spawned := 0
	for i := 0; i < n; i++ {
		if lang.pendingStartingCount(types.WorkerTypeTask) >= p.cfg.MaximumStartupConcurrency {
			p.cfg.Warn("pool: prestart for %s stopped at %d/%d, admission limit reached", language, i, n)
			return spawned
		}

		token := p.cfg.Launcher.NextToken()
		now := p.cfg.Clock.Now()

		argv, env, err := p.cfg.Launcher.BuildArgvEnv(launcher.BuildRequest{
			Language:     language,
			WorkerType:   types.WorkerTypeTask,
			StartupToken: token,
			LaunchTimeMS: now.UnixMilli(),
		})
		if err != nil {
			p.cfg.Warn("pool: prestart for %s cannot build launch command: %v", language, err)
			return spawned
		}

		handle, err := p.cfg.Launcher.Spawn(context.Background(), argv, env, false)
		if err != nil {
			if _, recoverable := err.(*launcher.RecoverableSpawnError); recoverable {
				p.cfg.Warn("pool: prestart spawn deferred for %s: %v", language, err)
				return spawned
			}
			p.cfg.Fatal("pool: fatal prestart spawn failure: %v", err)
			return spawned
		}

		lang.workerProcesses[token] = &workerProcess{
			token:                 token,
			handle:                handle,
			startedAt:             now,
			workerType:            types.WorkerTypeTask,
			isPendingRegistration: true,
			language:              language,
			gatesDriverReply:      gatesDriverReply,
		}
		p.cfg.Metrics.IncWorkersStarted()
		p.armRegistrationTimeout(language, token)
		spawned++
	}
	return spawned
}

// triggerBacklogPrestart implements spec.md §4.6 trigger 2: a best-effort
// shim that spawns extra generic Task workers ahead of demand when a
// dynamic-language, non-actor task without dynamic options backs up in
// pending_start_requests. usable/desired/spawn follow the spec formula
// exactly; the admission-control check inside prestartWorkers is what
// actually stops it from over-spawning. Unlike startWorkerProcess, these
// spawn with no runtime env bound yet (same generic command line as
// trigger 1) rather than resolving the backlogged task's runtime env
// through the broker first — picking it up at registration time, same as
// any other prestarted worker.
func (p *Pool) triggerBacklogPrestart(lang *perLanguageState, language types.Language) {
	backlog := lang.pendingStartRequests.Len()
	if backlog == 0 {
		return
	}
	usable := len(lang.idle) + lang.pendingStartingCount(types.WorkerTypeTask)
	desired := backlog
	if p.cfg.CPUsAvailable != nil {
		if cpus := p.cfg.CPUsAvailable(); cpus < desired {
			desired = cpus
		}
	}
	if spawn := desired - usable; spawn > 0 {
		p.prestartWorkers(lang, language, spawn, false)
	}
}
