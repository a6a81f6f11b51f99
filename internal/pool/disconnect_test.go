package pool

import (
	"testing"
	"time"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

func TestRegisterWorkerUnknownTokenFails(t *testing.T) {
	tp := newTestPool(t)
	var reply RegisterWorkerReply
	tp.pool.RegisterWorker(RegisterWorkerSpec{
		Token: 999, WorkerID: "w1", Language: types.LanguagePython, WorkerType: types.WorkerTypeTask,
	}, func(r RegisterWorkerReply) { reply = r })
	tp.barrier()
	if reply.Success {
		t.Fatalf("expected failure for unknown startup token")
	}
}

func TestDisconnectWorkerDropsRegistry(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool
	p.HandleJobStarted(types.JobConfig{JobID: "job-1", Language: types.LanguagePython})
	tp.barrier()

	p.PopWorker(PopWorkerSpec{Language: types.LanguagePython, JobID: "job-1"}, func(Reply) bool { return true })
	tp.barrier()

	var token types.StartupToken
	p.post(func() {
		for tok := range p.languageState(types.LanguagePython).workerProcesses {
			token = tok
		}
	})
	p.RegisterWorker(RegisterWorkerSpec{Token: token, WorkerID: "w1", Language: types.LanguagePython, WorkerType: types.WorkerTypeTask}, func(RegisterWorkerReply) {})
	tp.barrier()
	p.OnWorkerStarted("w1")
	tp.barrier()

	p.HandleDisconnectWorker("w1")
	tp.barrier()

	var stillRegistered bool
	p.post(func() { _, stillRegistered = p.registry["w1"] })
	if stillRegistered {
		t.Fatalf("expected worker to be removed from the registry after disconnect")
	}
}

func TestRegistrationTimeoutKillsUnregisteredProcess(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool
	p.HandleJobStarted(types.JobConfig{JobID: "job-1", Language: types.LanguagePython})
	tp.barrier()

	p.PopWorker(PopWorkerSpec{Language: types.LanguagePython, JobID: "job-1"}, func(Reply) bool { return true })
	tp.barrier()

	tp.clock.Advance(2 * time.Second) // past WorkerRegisterTimeout (1s)
	tp.barrier()

	var remaining int
	p.post(func() { remaining = len(p.languageState(types.LanguagePython).workerProcesses) })
	if remaining != 0 {
		t.Fatalf("expected the unregistered process to be reaped after the registration timeout, got %d remaining", remaining)
	}
	if tp.killCalls == 0 {
		t.Fatalf("expected KillWorker to be invoked for the timed-out process")
	}
}

func TestRegistrationWaitExpiredReportsStatus(t *testing.T) {
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

	tp.clock.Advance(2 * time.Second)
	tp.barrier()

	select {
	case r := <-replies:
		if r.Status != types.StatusWorkerPendingRegistraton {
			t.Fatalf("expected WorkerPendingRegistraton after the wait timer expired, got %v", r.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the expiry reply")
	}
}
