package pool

import (
	"time"

	"github.com/coreslab/nodeagent/internal/pool/launcher"
	"github.com/coreslab/nodeagent/internal/pool/types"
)

// workerProcess is a pending launch attempt (spec.md §3 "WorkerProcess
// (pending)"). It is destroyed when the process dies, times out, or
// disconnects; it never outlives its startup token.
type workerProcess struct {
	token                types.StartupToken
	handle               launcher.Handle
	startedAt            time.Time
	workerType           types.WorkerType
	isPendingRegistration bool
	runtimeEnv           types.RuntimeEnvInfo
	dynamicOptions       []string
	startupKeepAlive     time.Duration
	language             types.Language

	// gatesDriverReply marks a process spawned to satisfy the first-driver
	// prestart gate (spec.md §4.6 trigger 1): its eventual on_worker_started
	// handshake, or its registration timeout, counts against the deferred
	// driver reply regardless of which happens first.
	gatesDriverReply bool
}

// worker is a registered, live worker process (spec.md §3 "Worker
// (registered)").
type worker struct {
	id                  types.WorkerID
	language            types.Language
	workerType          types.WorkerType
	token               types.StartupToken
	handle              launcher.Handle
	jobID               types.JobID
	hasJob              bool
	port                types.Port
	runtimeEnvHash      string
	isGPU               types.TriBool
	isActorWorker       types.TriBool
	rootDetachedActorID *string
	dead                bool
	assignedTaskAt      time.Time // zero until the first task is dispatched
	startupKeepAlive    time.Duration
	dynamicOptions      []string

	// isPendingRegistration stays true across RegisterWorker and only
	// clears when OnWorkerStarted completes the handshake (spec.md
	// §4.3.4): RegisterWorker allocates the port and moves the record into
	// the registry, but PushWorker/MarkStarted dispatch waits for the
	// worker to announce it is actually ready.
	isPendingRegistration bool
	gatesDriverReply      bool
}

func (w *worker) everServedTask() bool { return !w.assignedTaskAt.IsZero() }

// idleEntry is one slot in the global idle queue (spec.md §3 "IdleEntry").
type idleEntry struct {
	workerID       types.WorkerID
	keepAliveUntil time.Time
}

// popWorkerRequest is a task-driven worker request (spec.md §3
// "PopWorkerRequest").
type popWorkerRequest struct {
	language            types.Language
	jobID               types.JobID
	rootDetachedActorID *string
	isGPU               types.TriBool
	isActorWorker       types.TriBool
	runtimeEnv          types.RuntimeEnvInfo
	dynamicOptions      []string
	startupKeepAlive    time.Duration
	callback            func(Reply) (used bool)

	// submittedAt records when the event loop first handled the request.
	// No metric or dump reads it; registration latency is measured from
	// workerProcess.startedAt.
	submittedAt time.Time
}

// Reply is delivered to a pop request's callback (spec.md §7). The
// callback returns whether it consumed the worker; false re-pushes it.
type Reply struct {
	Status types.PopWorkerStatus
	Worker *PopWorkerHandle
	Err    error
}

// PopWorkerHandle is the caller-facing view of a dispatched worker: enough
// to issue an RPC against it without exposing pool-internal bookkeeping.
type PopWorkerHandle struct {
	ID       types.WorkerID
	Language types.Language
	Port     types.Port
	PID      int
}
