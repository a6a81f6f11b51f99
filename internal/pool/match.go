package pool

import (
	"github.com/coreslab/nodeagent/internal/pool/types"
)

// matchWorker implements the Matchmaker predicate (spec.md §4.3.2). It
// returns MismatchNone on a hit or the first applicable mismatch reason.
func matchWorker(w *worker, req *popWorkerRequest, workerType types.WorkerType, pendingExit map[types.WorkerID]struct{}) types.MismatchReason {
	if w.dead {
		return types.MismatchOther
	}
	if _, exiting := pendingExit[w.id]; exiting {
		return types.MismatchOther
	}
	if w.language != req.language || w.workerType != workerType {
		return types.MismatchOther
	}

	// spec.md §4.3.2: reject if the request names a root-detached-actor
	// that differs from the worker's, OR the worker is already bound to
	// a job other than the request's.
	if req.rootDetachedActorID != nil && w.rootDetachedActorID != nil && *w.rootDetachedActorID != *req.rootDetachedActorID {
		return types.MismatchRootDetachedActor
	}
	if w.hasJob && w.jobID != req.jobID {
		return types.MismatchRootDetachedActor
	}

	if !w.isGPU.Compatible(req.isGPU) {
		return types.MismatchOther
	}
	if !w.isActorWorker.Compatible(req.isActorWorker) {
		return types.MismatchOther
	}

	if w.runtimeEnvHash != req.runtimeEnv.Hash {
		return types.MismatchRuntimeEnv
	}

	if !dynamicOptionsEqual(w.dynamicOptions, req.dynamicOptions) {
		return types.MismatchDynamicOptions
	}

	return types.MismatchNone
}

func dynamicOptionsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
