package pool

import (
	"testing"
	"time"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

func TestPrestartWorkersRespectsAdmissionLimit(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool

	p.PrestartWorkers(types.LanguagePython, 5) // MaximumStartupConcurrency is 2
	tp.barrier()

	var started int
	p.post(func() { started = len(p.languageState(types.LanguagePython).workerProcesses) })
	if started != 2 {
		t.Fatalf("expected prestart to stop at the admission limit (2), got %d", started)
	}
}

func TestPrestartWorkersOnFirstDriverRegistration(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool
	p.post(func() {
		p.cfg.PrestartOnFirstDriver = true
		p.cfg.NumPrestart = 1
	})

	driver1Replied := make(chan RegisterWorkerReply, 1)
	p.RegisterWorker(RegisterWorkerSpec{WorkerID: "driver-1", Language: types.LanguagePython, IsDriver: true, JobID: "job-1"}, func(r RegisterWorkerReply) {
		driver1Replied <- r
	})
	tp.barrier()

	var started int
	p.post(func() { started = len(p.languageState(types.LanguagePython).workerProcesses) })
	if started != 1 {
		t.Fatalf("expected one prestarted worker after the first driver registered, got %d", started)
	}

	select {
	case <-driver1Replied:
		t.Fatal("expected the first driver's reply to be deferred until the prestarted worker finishes on_worker_started")
	default:
	}

	var token types.StartupToken
	p.post(func() {
		for tok := range p.languageState(types.LanguagePython).workerProcesses {
			token = tok
		}
	})
	p.RegisterWorker(RegisterWorkerSpec{Token: token, WorkerID: "prestart-1", Language: types.LanguagePython, WorkerType: types.WorkerTypeTask}, func(RegisterWorkerReply) {})
	tp.barrier()
	p.OnWorkerStarted("prestart-1")
	tp.barrier()

	select {
	case r := <-driver1Replied:
		if !r.Success {
			t.Fatalf("expected the deferred driver reply to eventually succeed, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the driver's reply to fire once the prestarted worker completed on_worker_started")
	}

	var driver2Reply RegisterWorkerReply
	p.RegisterWorker(RegisterWorkerSpec{WorkerID: "driver-2", Language: types.LanguagePython, IsDriver: true, JobID: "job-2"}, func(r RegisterWorkerReply) { driver2Reply = r })
	tp.barrier()
	if !driver2Reply.Success {
		t.Fatalf("expected the second driver's reply to fire immediately, got %+v", driver2Reply)
	}

	p.post(func() { started = len(p.languageState(types.LanguagePython).workerProcesses) })
	if started != 0 {
		t.Fatalf("expected the second driver registration to not trigger another prestart round, got %d", started)
	}
}
