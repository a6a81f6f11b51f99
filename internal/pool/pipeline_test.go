package pool

import (
	"testing"
	"time"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

func TestPopWorkerStartsRegistersAndDelivers(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool
	p.HandleJobStarted(types.JobConfig{JobID: "job-1", Language: types.LanguagePython})
	tp.barrier()

	replies := make(chan Reply, 1)
	p.PopWorker(PopWorkerSpec{Language: types.LanguagePython, JobID: "job-1"}, func(r Reply) bool {
		replies <- r
		return true
	})
	tp.barrier()

	lang := p.languageState(types.LanguagePython)
	var token types.StartupToken
	for tok := range lang.workerProcesses {
		token = tok
	}
	if token == 0 {
		t.Fatalf("expected one worker process to have been started")
	}

	var reply RegisterWorkerReply
	p.RegisterWorker(RegisterWorkerSpec{
		Token: token, WorkerID: "w1", Language: types.LanguagePython, WorkerType: types.WorkerTypeTask, PID: 123,
	}, func(r RegisterWorkerReply) { reply = r })
	tp.barrier()
	if !reply.Success {
		t.Fatalf("expected successful registration, got %+v", reply)
	}
	p.OnWorkerStarted("w1")

	select {
	case r := <-replies:
		if r.Status != types.StatusOK || r.Worker == nil || r.Worker.ID != "w1" {
			t.Fatalf("expected OK reply with worker w1, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pop reply")
	}
}

func TestPopWorkerHitsIdleWorkerWithoutSpawning(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool
	p.HandleJobStarted(types.JobConfig{JobID: "job-1", Language: types.LanguagePython})
	tp.barrier()

	p.post(func() {
		w := &worker{id: "idle-1", language: types.LanguagePython, workerType: types.WorkerTypeTask}
		p.registry[w.id] = w
		p.pushIdleWarm(&idleEntry{workerID: w.id, keepAliveUntil: tp.clock.Now().Add(time.Hour)})
		p.languageState(types.LanguagePython).idle[w.id] = struct{}{}
	})

	replies := make(chan Reply, 1)
	p.PopWorker(PopWorkerSpec{Language: types.LanguagePython, JobID: "job-1"}, func(r Reply) bool {
		replies <- r
		return true
	})
	tp.barrier()

	select {
	case r := <-replies:
		if r.Status != types.StatusOK || r.Worker.ID != "idle-1" {
			t.Fatalf("expected idle worker served directly, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pop reply")
	}

	var processCount int
	p.post(func() { processCount = len(p.languageState(types.LanguagePython).workerProcesses) })
	if processCount != 0 {
		t.Fatalf("expected no process spawned when idle worker satisfied the request, got %d", processCount)
	}
}

func TestPopWorkerJobConfigMissing(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool

	replies := make(chan Reply, 1)
	p.PopWorker(PopWorkerSpec{Language: types.LanguagePython, JobID: "no-such-job"}, func(r Reply) bool {
		replies <- r
		return true
	})
	tp.barrier()

	select {
	case r := <-replies:
		if r.Status != types.StatusJobConfigMissing {
			t.Fatalf("expected JobConfigMissing, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pop reply")
	}
}

func TestPopWorkerTooManyStartingIsRequeued(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool
	p.HandleJobStarted(types.JobConfig{JobID: "job-1", Language: types.LanguagePython})
	tp.barrier()

	var rejected int
	for i := 0; i < 3; i++ {
		p.PopWorker(PopWorkerSpec{Language: types.LanguagePython, JobID: "job-1"}, func(r Reply) bool {
			if r.Status == types.StatusTooManyStarting {
				rejected++
			}
			return true
		})
		tp.barrier()
	}

	if rejected == 0 {
		t.Fatalf("expected at least one TooManyStarting rejection once admission limit (2) was exceeded")
	}

	var pendingLen int
	p.post(func() { pendingLen = p.languageState(types.LanguagePython).pendingStartRequests.Len() })
	if pendingLen == 0 {
		t.Fatalf("expected the rejected request to be requeued in pending_start_requests")
	}
}

func TestJobFinishedFailsPendingRequests(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool
	p.HandleJobStarted(types.JobConfig{JobID: "job-1", Language: types.LanguagePython})
	tp.barrier()

	replies := make(chan Reply, 4)
	for i := 0; i < 3; i++ {
		p.PopWorker(PopWorkerSpec{Language: types.LanguagePython, JobID: "job-1"}, func(r Reply) bool {
			replies <- r
			return true
		})
	}
	tp.barrier()

	p.HandleJobFinished("job-1")
	tp.barrier()

	var sawFinished bool
	for i := 0; i < 3; i++ {
		select {
		case r := <-replies:
			if r.Status == types.StatusJobFinished {
				sawFinished = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a reply")
		}
	}
	if !sawFinished {
		t.Fatalf("expected at least one request still queued to be failed with JobFinished")
	}
}
