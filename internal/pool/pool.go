// Package pool implements the node agent's worker pool: process
// lifecycle, matchmaking, admission control, idle eviction, prestart, and
// the I/O sub-pool (spec.md §1–§9). The entire state graph — per-language
// tables, the global idle queue, free ports, job bookkeeping — is owned
// exclusively by one goroutine (Pool.Run). Every exported method posts a
// closure onto cmds and the loop runs it to completion before picking up
// the next one, so no field here is ever read or written from two
// goroutines at once and no mutex exists anywhere in this package.
//
// This generalizes the single-consumer-channel idiom
// alexdev-tb-CodePortal/internal/executor/cleanup.go uses for its cleanup
// queue (one goroutine ranging over a channel, draining requests
// serially) from "one queue of file-cleanup jobs" to "every mutation of
// the pool's entire state."
package pool

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coreslab/nodeagent/internal/pool/launcher"
	"github.com/coreslab/nodeagent/internal/pool/metrics"
	"github.com/coreslab/nodeagent/internal/pool/ports"
	"github.com/coreslab/nodeagent/internal/pool/runtimeenv"
	"github.com/coreslab/nodeagent/internal/pool/types"
)

// Config bundles everything Pool needs at construction time.
type Config struct {
	Languages             map[types.Language][]string
	MaximumStartupConcurrency int
	IdleKillThreshold     time.Duration
	WorkerRegisterTimeout time.Duration
	MaxIOWorkers          int
	NumPrestart           int
	PrestartOnFirstDriver bool

	Launcher *launcher.Launcher
	Broker   runtimeenv.Broker
	Ports    *ports.Allocator
	Metrics  *metrics.Collector
	Clock    Clock

	// CPUsAvailable reports the CPU-count hint the eviction and prestart
	// controllers size themselves against (spec.md §4.4, §4.6). Resource
	// accounting beyond this hint is out of scope (spec.md §1 Non-goals).
	CPUsAvailable func() int

	// KillWorker issues the out-of-scope Exit RPC (spec.md §4.4.1). It
	// must not block the event loop: implementations should do the RPC
	// asynchronously and invoke `reply` from another goroutine, which
	// itself only ever calls back into Pool's exported methods.
	KillWorker func(ctx context.Context, h launcher.Handle, forceExit bool, reply func(success bool))

	// Warn/Fatal receive non-fatal and fatal diagnostics respectively
	// (spec.md §7). A nil Fatal panics with the formatted message;
	// cmd/nodeagent wires it to terminate the process.
	Warn  func(format string, args ...any)
	Fatal func(format string, args ...any)

	// Events receives a side-channel notification for every state
	// transition the event loop makes (SPEC_FULL.md §4.10): worker
	// registered/disconnected, pushed idle, killed, request
	// matched/queued/failed, I/O worker spawned. It must never block the
	// loop; cmd/nodeagent wires this to an eventjournal.Journal, whose
	// Record method already only ever enqueues onto a buffered channel.
	// Defaults to a no-op so tests never need to set it.
	Events EventRecorder
}

// EventRecorder is the side-channel sink Pool posts state transitions to.
// Satisfied by *eventjournal.Journal without either package importing the
// other.
type EventRecorder interface {
	Record(kind string, data any)
}

type noopEventRecorder struct{}

func (noopEventRecorder) Record(string, any) {}

// Pool is the worker pool's single-goroutine core.
type Pool struct {
	cmds chan func()
	stop chan struct{}

	cfg Config

	languages map[types.Language]*perLanguageState

	idleQueue *list.List // of *idleEntry, front=cold-first-evict, back=warmest

	allJobs      map[types.JobID]types.JobConfig
	finishedJobs map[types.JobID]struct{}
	eagerInstalled map[types.JobID]bool

	registry map[types.WorkerID]*worker
	pendingExit map[types.WorkerID]struct{}

	registrationTimeoutTimers map[types.StartupToken]Timer
	registrationWaitTimers    map[*popWorkerRequest]Timer

	nodeIdentity types.NodeIdentity

	nextWorkerSeq uint64
}

// New constructs a Pool. Call Run in its own goroutine before issuing any
// requests.
func New(cfg Config, identity types.NodeIdentity) *Pool {
	if cfg.Clock == nil {
		cfg.Clock = NewRealClock()
	}
	if cfg.Warn == nil {
		cfg.Warn = func(string, ...any) {}
	}
	if cfg.Fatal == nil {
		cfg.Fatal = func(format string, args ...any) { panic(fmt.Sprintf(format, args...)) }
	}
	if cfg.Events == nil {
		cfg.Events = noopEventRecorder{}
	}
	if cfg.MaximumStartupConcurrency <= 0 {
		cfg.Fatal("pool: maximum_startup_concurrency must be > 0")
	}

	p := &Pool{
		cmds:           make(chan func()),
		stop:           make(chan struct{}),
		cfg:            cfg,
		languages:      make(map[types.Language]*perLanguageState),
		idleQueue:      list.New(),
		allJobs:        make(map[types.JobID]types.JobConfig),
		finishedJobs:   make(map[types.JobID]struct{}),
		eagerInstalled: make(map[types.JobID]bool),
		registry:       make(map[types.WorkerID]*worker),
		pendingExit:    make(map[types.WorkerID]struct{}),
		registrationTimeoutTimers: make(map[types.StartupToken]Timer),
		registrationWaitTimers:    make(map[*popWorkerRequest]Timer),
		nodeIdentity:   identity,
	}
	for lang, cmd := range cfg.Languages {
		if len(cmd) == 0 {
			cfg.Fatal("pool: missing worker command for language %s", lang)
		}
		p.languages[lang] = newPerLanguageState(cmd, cfg.MaximumStartupConcurrency)
	}
	return p
}

// Run drives the event loop until Stop is called. It must run in its own
// goroutine; it is the only goroutine that ever touches Pool's state
// directly.
func (p *Pool) Run() {
	for {
		select {
		case cmd := <-p.cmds:
			cmd()
		case <-p.stop:
			return
		}
	}
}

// Stop ends the event loop. Pending commands already queued are lost;
// callers should quiesce before stopping.
func (p *Pool) Stop() { close(p.stop) }

// post runs fn on the event loop goroutine and blocks until it returns.
func (p *Pool) post(fn func()) {
	done := make(chan struct{})
	p.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

// postAsync runs fn on the event loop goroutine without waiting — used
// for timer callbacks and RPC completions, which must never block their
// own goroutine on the pool (spec.md §5 "suspension points").
func (p *Pool) postAsync(fn func()) {
	p.cmds <- fn
}

func (p *Pool) recordEvent(kind string, data any) {
	p.cfg.Events.Record(kind, data)
}

func (p *Pool) languageState(lang types.Language) *perLanguageState {
	return p.languages[lang]
}

func sortedLanguages(m map[types.Language]*perLanguageState) []types.Language {
	out := make([]types.Language, 0, len(m))
	for l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
