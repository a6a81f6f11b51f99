// Package launcher builds argv/env for a worker process and spawns it
// (spec.md §4.2). Grounded on
// alexdev-tb-CodePortal/internal/executor/runner.go's DockerRunner.Run:
// the same argv-assembly-then-exec.CommandContext shape, generalized from
// "docker exec a fixed sandbox container" to "spawn one of several
// language-specific worker binaries directly."
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

const (
	dynamicOptionPlaceholder = "RAY_WORKER_DYNAMIC_OPTION_PLACEHOLDER"
	nodeManagerPortPlaceholder = "NODE_MANAGER_PORT_PLACEHOLDER"
)

// Handle is the opaque process handle spec.md §1 treats as external.
type Handle interface {
	Kill() error
	IsAlive() bool
	PID() int
}

// execHandle wraps an *os/exec.Cmd that has already been Start()ed.
type execHandle struct {
	cmd *exec.Cmd
}

func (h *execHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (h *execHandle) IsAlive() bool {
	if h.cmd.Process == nil {
		return false
	}
	// Signal 0 probes existence without affecting the process.
	return h.cmd.Process.Signal(syscall.Signal(0)) == nil
}

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// FatalSpawnError marks a spawn failure spec.md §4.2 classifies as fatal
// to the agent (anything except EMFILE).
type FatalSpawnError struct{ Err error }

func (e *FatalSpawnError) Error() string { return "fatal spawn error: " + e.Err.Error() }
func (e *FatalSpawnError) Unwrap() error { return e.Err }

// RecoverableSpawnError marks the single recoverable spawn failure
// (EMFILE, "too many open files").
type RecoverableSpawnError struct{ Err error }

func (e *RecoverableSpawnError) Error() string { return "recoverable spawn error: " + e.Err.Error() }
func (e *RecoverableSpawnError) Unwrap() error { return e.Err }

// Launcher builds and spawns worker processes for one configured command
// template per language.
type Launcher struct {
	commands map[types.Language][]string
	identity types.NodeIdentity

	tokenCounter atomic.Uint64

	// OOMScoreAdj, when non-nil, is applied to non-I/O worker processes
	// after spawn. Overridable in tests; production wires writeOOMScoreAdj.
	OOMScoreAdj func(pid, score int)
	oomScore    int

	// Warn receives non-fatal diagnostics (OOM score write failures,
	// CheckPortFree failures surface through ports, not here).
	Warn func(format string, args ...any)

	// SpawnFunc, when non-nil, replaces the real os/exec.Command call in
	// Spawn. Tests set this to hand back fakeHandles without
	// actually forking a process.
	SpawnFunc func(ctx context.Context, argv, env []string) (Handle, error)
}

// Config seeds a Launcher with one worker_command template per language.
type Config struct {
	Commands    map[types.Language][]string
	Identity    types.NodeIdentity
	OOMScore    int
	Warn        func(format string, args ...any)
}

func New(cfg Config) *Launcher {
	l := &Launcher{
		commands: cfg.Commands,
		identity: cfg.Identity,
		oomScore: clampOOMScore(cfg.OOMScore),
		Warn:     cfg.Warn,
	}
	if l.Warn == nil {
		l.Warn = func(string, ...any) {}
	}
	l.OOMScoreAdj = l.writeOOMScoreAdj
	return l
}

// NextToken hands out the next monotonically increasing startup token.
// Tokens are unique across the process lifetime (spec.md §3 invariant 6).
func (l *Launcher) NextToken() types.StartupToken {
	return types.StartupToken(l.tokenCounter.Add(1))
}

// BuildRequest bundles everything BuildArgvEnv needs so call sites don't
// have to juggle eight positional parameters (spec.md §4.2's signature).
type BuildRequest struct {
	Language            types.Language
	Job                 types.JobConfig
	WorkerType          types.WorkerType
	JobID               types.JobID
	DynamicOptions      []string
	RuntimeEnvHash      string
	RuntimeEnvContext   string
	StartupToken        types.StartupToken
	LaunchTimeMS        int64
	ResourceIsolation   bool
	DebuggerEnabled     bool
	ForkSupportEnabled  bool
}

var ErrMissingWorkerCommand = errors.New("launcher: no worker command configured for language")

// BuildArgvEnv performs the placeholder substitution and flag/env
// appending described in spec.md §4.2 and §6.
func (l *Launcher) BuildArgvEnv(req BuildRequest) (argv []string, env []string, err error) {
	template, ok := l.commands[req.Language]
	if !ok || len(template) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingWorkerCommand, req.Language)
	}

	options := l.prependLanguageOptions(req)

	argv = make([]string, 0, len(template)+len(options)+12)
	for _, tok := range template {
		switch {
		case tok == dynamicOptionPlaceholder:
			argv = append(argv, options...)
		case strings.Contains(tok, nodeManagerPortPlaceholder):
			argv = append(argv, strings.ReplaceAll(tok, nodeManagerPortPlaceholder, strconv.Itoa(l.identity.NodeManagerPort)))
		default:
			argv = append(argv, tok)
		}
	}

	argv = append(argv,
		"--startup-token="+strconv.FormatUint(uint64(req.StartupToken), 10),
		"--worker-launch-time-ms="+strconv.FormatInt(req.LaunchTimeMS, 10),
		"--node-id="+l.identity.NodeID,
		"--runtime-env-hash="+req.RuntimeEnvHash,
		"--language="+string(req.Language),
	)
	if len(req.Job.PreloadModules) > 0 {
		argv = append(argv, "--worker-preload-modules="+strings.Join(req.Job.PreloadModules, ","))
	}
	if req.Job.ResourceIsolated || req.ResourceIsolation {
		argv = append(argv, "--enable-resource-isolation=true")
	} else {
		argv = append(argv, "--enable-resource-isolation=false")
	}
	if req.WorkerType.IsIO() {
		argv = append(argv, "--worker-type="+req.WorkerType.String())
		if l.identity.ObjectSpillConfig != "" {
			argv = append(argv, "--object-spilling-config="+l.identity.ObjectSpillConfig)
		}
	}
	if req.RuntimeEnvContext != "" {
		argv = append(argv, "--serialized-runtime-env-context="+req.RuntimeEnvContext)
	}
	if req.DebuggerEnabled {
		argv = append(argv, "--debugger")
	}

	env = l.buildEnv(req)
	return argv, env, nil
}

func (l *Launcher) prependLanguageOptions(req BuildRequest) []string {
	var prepend []string
	switch req.Language {
	case types.LanguageJava:
		prepend = append(prepend,
			"-Dray.job.code-search-path="+req.Job.CodeSearchPath,
			"-Dray.raylet.startup-token="+strconv.FormatUint(uint64(req.StartupToken), 10),
			"-Dray.internal.runtime-env-hash="+req.RuntimeEnvHash,
		)
		prepend = append(prepend, req.Job.JVMOptions...)
	case types.LanguageCPP:
		prepend = append(prepend,
			"--ray_code_search_path="+req.Job.CodeSearchPath,
			"--startup_token="+strconv.FormatUint(uint64(req.StartupToken), 10),
			"--ray_runtime_env_hash="+req.RuntimeEnvHash,
		)
	default:
		prepend = append(prepend, "--startup-token="+strconv.FormatUint(uint64(req.StartupToken), 10))
	}
	return append(prepend, req.DynamicOptions...)
}

func (l *Launcher) buildEnv(req BuildRequest) []string {
	env := os.Environ()
	if !req.WorkerType.IsIO() {
		env = append(env, "RAY_JOB_ID="+string(req.JobID))
	}
	env = append(env, "RAY_RAYLET_PID="+strconv.Itoa(l.identity.AgentPID))

	if runtime.GOOS != "windows" && req.Language == types.LanguageCPP {
		if existing, ok := os.LookupEnv(libraryPathVar()); ok && existing != "" {
			env = append(env, libraryPathVar()+"="+existing)
		}
	}
	if req.Language == types.LanguagePython {
		env = append(env, "SPT_NOENV=1")
	}
	if req.ForkSupportEnabled {
		env = append(env, "GRPC_ENABLE_FORK_SUPPORT=True", "GRPC_POLL_STRATEGY=poll")
	}
	return env
}

func libraryPathVar() string {
	if runtime.GOOS == "darwin" {
		return "DYLD_LIBRARY_PATH"
	}
	return "LD_LIBRARY_PATH"
}

// Spawn starts the process described by argv/env. It never waits on the
// child; reaping is delegated to an external subreaper (spec.md §5).
// isIO must reflect the worker type BuildArgvEnv was called with: the OOM
// score adjustment (spec.md §4.2) only applies to non-I/O workers.
func (l *Launcher) Spawn(ctx context.Context, argv []string, env []string, isIO bool) (Handle, error) {
	if len(argv) == 0 {
		return nil, &FatalSpawnError{Err: errors.New("empty argv")}
	}

	var h Handle
	if l.SpawnFunc != nil {
		spawned, err := l.SpawnFunc(ctx, argv, env)
		if err != nil {
			return nil, err
		}
		h = spawned
	} else {
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Env = env
		cmd.Stdout = nil
		cmd.Stderr = nil

		if err := cmd.Start(); err != nil {
			if errors.Is(err, syscall.EMFILE) {
				return nil, &RecoverableSpawnError{Err: err}
			}
			return nil, &FatalSpawnError{Err: err}
		}
		h = &execHandle{cmd: cmd}
	}

	if !isIO {
		l.applyOOMScore(h.PID())
	}
	return h, nil
}

func (l *Launcher) applyOOMScore(pid int) {
	if pid <= 0 || l.OOMScoreAdj == nil {
		return
	}
	l.OOMScoreAdj(pid, l.oomScore)
}

func clampOOMScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 1000 {
		return 1000
	}
	return score
}

// writeOOMScoreAdj writes the configured OOM-score adjustment to
// /proc/<pid>/oom_score_adj on Linux for non-I/O workers (spec.md §4.2).
// Failures are warnings, never fatal (spec.md §7).
func (l *Launcher) writeOOMScoreAdj(pid, score int) {
	if runtime.GOOS != "linux" {
		return
	}
	path := fmt.Sprintf("/proc/%d/oom_score_adj", pid)
	if err := os.WriteFile(path, []byte(strconv.Itoa(clampOOMScore(score))), 0o644); err != nil {
		l.Warn("launcher: failed to set oom_score_adj for pid %d: %v", pid, err)
	}
}
