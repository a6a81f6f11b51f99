package launcher

import (
	"strings"
	"testing"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

func testLauncher() *Launcher {
	return New(Config{
		Commands: map[types.Language][]string{
			types.LanguagePython: {"python3", "worker.py", dynamicOptionPlaceholder, "--port=" + nodeManagerPortPlaceholder},
			types.LanguageJava:   {"java", dynamicOptionPlaceholder, "-cp", "worker.jar"},
		},
		Identity: types.NodeIdentity{NodeID: "node-1", NodeManagerPort: 6379, AgentPID: 42},
	})
}

func TestBuildArgvEnvSubstitutesPlaceholders(t *testing.T) {
	l := testLauncher()
	argv, env, err := l.BuildArgvEnv(BuildRequest{
		Language:       types.LanguagePython,
		Job:            types.JobConfig{JobID: "job-1"},
		WorkerType:     types.WorkerTypeTask,
		JobID:          "job-1",
		DynamicOptions: []string{"--opt=1"},
		RuntimeEnvHash: "hash-1",
		StartupToken:   7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	joined := strings.Join(argv, " ")
	if !strings.Contains(joined, "--port=6379") {
		t.Fatalf("expected node manager port substituted, got %v", argv)
	}
	if !strings.Contains(joined, "--opt=1") {
		t.Fatalf("expected dynamic option injected, got %v", argv)
	}
	if !strings.Contains(joined, "--startup-token=7") {
		t.Fatalf("expected startup token flag, got %v", argv)
	}

	var jobIDFound bool
	for _, e := range env {
		if e == "RAY_JOB_ID=job-1" {
			jobIDFound = true
		}
	}
	if !jobIDFound {
		t.Fatalf("expected RAY_JOB_ID in env, got %v", env)
	}
}

func TestBuildArgvEnvIOWorkerOmitsJobID(t *testing.T) {
	l := testLauncher()
	argv, env, err := l.BuildArgvEnv(BuildRequest{
		Language:   types.LanguagePython,
		WorkerType: types.WorkerTypeSpill,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(strings.Join(argv, " "), "--worker-type=spill") {
		t.Fatalf("expected worker-type flag, got %v", argv)
	}
	for _, e := range env {
		if strings.HasPrefix(e, "RAY_JOB_ID=") {
			t.Fatalf("did not expect RAY_JOB_ID for I/O worker, got %v", env)
		}
	}
}

func TestBuildArgvEnvMissingCommand(t *testing.T) {
	l := testLauncher()
	if _, _, err := l.BuildArgvEnv(BuildRequest{Language: types.LanguageCPP}); err == nil {
		t.Fatalf("expected error for unconfigured language")
	}
}

func TestBuildArgvEnvJavaPrependsJVMOptions(t *testing.T) {
	l := testLauncher()
	argv, _, err := l.BuildArgvEnv(BuildRequest{
		Language: types.LanguageJava,
		Job:      types.JobConfig{CodeSearchPath: "/code", JVMOptions: []string{"-Xmx512m"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(argv, " ")
	if !strings.Contains(joined, "-Dray.job.code-search-path=/code") {
		t.Fatalf("expected code search path flag, got %v", argv)
	}
	if !strings.Contains(joined, "-Xmx512m") {
		t.Fatalf("expected user jvm option preserved, got %v", argv)
	}
}

func TestNextTokenIsMonotonicAndUnique(t *testing.T) {
	l := testLauncher()
	seen := make(map[types.StartupToken]bool)
	last := types.StartupToken(0)
	for i := 0; i < 100; i++ {
		tok := l.NextToken()
		if tok <= last {
			t.Fatalf("expected strictly increasing tokens, got %d after %d", tok, last)
		}
		if seen[tok] {
			t.Fatalf("token %d reused", tok)
		}
		seen[tok] = true
		last = tok
	}
}
