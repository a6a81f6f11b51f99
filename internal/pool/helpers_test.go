package pool

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreslab/nodeagent/internal/pool/launcher"
	"github.com/coreslab/nodeagent/internal/pool/metrics"
	"github.com/coreslab/nodeagent/internal/pool/ports"
	"github.com/coreslab/nodeagent/internal/pool/runtimeenv"
	"github.com/coreslab/nodeagent/internal/pool/types"
)

func newTestMetrics() *metrics.Collector { return metrics.New(prometheus.NewRegistry()) }

// fakeClock gives tests full control over wall-clock reads and timer
// firing, per spec.md §9's deterministic-testing requirement.
type fakeClock struct {
	now     time.Time
	pending []*fakeTimerEntry
}

type fakeTimerEntry struct {
	at      time.Time
	fn      func()
	fired   bool
	stopped bool
}

type fakeTimer struct{ entry *fakeTimerEntry }

func (t *fakeTimer) Stop() bool {
	if t.entry.fired || t.entry.stopped {
		return false
	}
	t.entry.stopped = true
	return true
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	e := &fakeTimerEntry{at: c.now.Add(d), fn: f}
	c.pending = append(c.pending, e)
	return &fakeTimer{entry: e}
}

// Advance moves the clock forward and synchronously fires every timer
// due by the new time, in the order they were armed.
func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
	for _, e := range c.pending {
		if !e.fired && !e.stopped && !e.at.After(c.now) {
			e.fired = true
			e.fn()
		}
	}
}

// fakeHandle is a launcher.Handle standing in for a real OS process.
type fakeHandle struct {
	pid   int
	alive bool
	kills int
}

func (h *fakeHandle) Kill() error { h.kills++; h.alive = false; return nil }
func (h *fakeHandle) IsAlive() bool { return h.alive }
func (h *fakeHandle) PID() int     { return h.pid }

// testPool wires a Pool against a fake clock and a launcher whose Spawn
// is overridden to hand back fakeHandles instead of exec'ing anything.
type testPool struct {
	pool      *Pool
	clock     *fakeClock
	killed    []types.WorkerID
	killCalls int
	nextPID   int
}

func newTestPool(t interface{ Helper() }) *testPool {
	if t != nil {
		t.Helper()
	}
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	l := launcher.New(launcher.Config{
		Commands: map[types.Language][]string{
			types.LanguagePython: {"python3", "worker.py"},
		},
		Identity: types.NodeIdentity{NodeID: "node-1"},
	})

	tp := &testPool{clock: clock}
	tp.nextPID = 100
	l.SpawnFunc = func(ctx context.Context, argv, env []string) (launcher.Handle, error) {
		tp.nextPID++
		return &fakeHandle{pid: tp.nextPID, alive: true}, nil
	}

	cfg := Config{
		Languages:                 map[types.Language][]string{types.LanguagePython: {"python3", "worker.py"}},
		MaximumStartupConcurrency: 2,
		IdleKillThreshold:         time.Minute,
		WorkerRegisterTimeout:     time.Second,
		MaxIOWorkers:              2,
		Launcher:                  l,
		Broker:                    runtimeenv.Noop{},
		Ports:                     ports.New(nil, nil),
		Metrics:                   newTestMetrics(),
		Clock:                     clock,
		KillWorker: func(ctx context.Context, h launcher.Handle, forceExit bool, reply func(success bool)) {
			tp.killCalls++
			h.Kill()
			go reply(true)
		},
		Warn:  func(string, ...any) {},
		Fatal: func(format string, args ...any) { panic(format) },
	}
	p := New(cfg, types.NodeIdentity{NodeID: "node-1"})
	tp.pool = p

	go p.Run()
	return tp
}

// barrier blocks until every previously queued postAsync closure has
// finished executing on the event loop, making timer-driven side effects
// observable without a sleep.
func (tp *testPool) barrier() { tp.pool.post(func() {}) }
