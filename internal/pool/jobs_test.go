package pool

import (
	"testing"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

func TestHandleJobStartedIsIdempotent(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool

	p.HandleJobStarted(types.JobConfig{JobID: "job-1", Language: types.LanguagePython, CodeSearchPath: "/a"})
	p.HandleJobStarted(types.JobConfig{JobID: "job-1", Language: types.LanguagePython, CodeSearchPath: "/b"})
	tp.barrier()

	var cfg types.JobConfig
	p.post(func() { cfg = p.allJobs["job-1"] })
	if cfg.CodeSearchPath != "/a" {
		t.Fatalf("expected the first JobStarted to win, got %q", cfg.CodeSearchPath)
	}
}

func TestHandleJobFinishedIsIdempotentAndNeverPurgesAllJobs(t *testing.T) {
	tp := newTestPool(t)
	p := tp.pool

	p.HandleJobStarted(types.JobConfig{JobID: "job-1", Language: types.LanguagePython})
	p.HandleJobFinished("job-1")
	p.HandleJobFinished("job-1")
	tp.barrier()

	var finished bool
	var stillKnown bool
	p.post(func() {
		_, finished = p.finishedJobs["job-1"]
		_, stillKnown = p.allJobs["job-1"]
	})
	if !finished {
		t.Fatalf("expected job-1 to be marked finished")
	}
	if !stillKnown {
		t.Fatalf("expected job-1's config to remain in all_jobs after it finished")
	}
}
