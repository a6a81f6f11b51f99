// Package runtimeenv is the thin adapter over the external runtime-env
// agent (spec.md §1, §6). The agent itself — request coalescing,
// ref-counting — is out of scope; this package only defines the two
// methods the pool calls and a stub implementation for tests.
package runtimeenv

import (
	"context"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

// Broker is implemented by the real runtime-env agent client. GetOrCreate
// materializes a serialized_env into a context string the worker receives
// via --serialized-runtime-env-context. DeleteIfPossible releases one
// reference; the agent owns deduplication, so callers issue one
// GetOrCreate per start attempt and one DeleteIfPossible per
// failed-or-completed path (spec.md §5).
type Broker interface {
	GetOrCreate(ctx context.Context, jobID types.JobID, env types.RuntimeEnvInfo) (context string, err error)
	DeleteIfPossible(ctx context.Context, env types.RuntimeEnvInfo) (ok bool)
}

// Noop is a Broker that treats every environment as already materialized
// with an empty context, used when a job has no runtime env configured.
type Noop struct{}

func (Noop) GetOrCreate(context.Context, types.JobID, types.RuntimeEnvInfo) (string, error) {
	return "", nil
}

func (Noop) DeleteIfPossible(context.Context, types.RuntimeEnvInfo) bool { return true }
