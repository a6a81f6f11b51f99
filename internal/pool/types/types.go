// Package types holds the value types shared between the pool's core event
// loop and the leaf packages (launcher, runtimeenv, ports) it depends on.
// Keeping them here avoids a dependency cycle between internal/pool and its
// own collaborators.
package types

import "time"

// WorkerType identifies the role a launched process plays.
type WorkerType int

const (
	WorkerTypeTask WorkerType = iota
	WorkerTypeSpill
	WorkerTypeRestore
)

func (t WorkerType) String() string {
	switch t {
	case WorkerTypeTask:
		return "task"
	case WorkerTypeSpill:
		return "spill"
	case WorkerTypeRestore:
		return "restore"
	default:
		return "unknown"
	}
}

func (t WorkerType) IsIO() bool {
	return t == WorkerTypeSpill || t == WorkerTypeRestore
}

// Language identifies the runtime a worker command template belongs to.
type Language string

const (
	LanguagePython Language = "python"
	LanguageJava   Language = "java"
	LanguageCPP    Language = "cpp"
)

// TriBool models an optional boolean where "absent" must be distinguishable
// from both true and false: an absent value matches anything during
// matchmaking, a mismatch between two present values never does.
type TriBool struct {
	set   bool
	value bool
}

// Bool constructs a present TriBool.
func Bool(v bool) TriBool { return TriBool{set: true, value: v} }

// Unset is the zero value; IsSet reports false for it.
var Unset = TriBool{}

func (t TriBool) IsSet() bool { return t.set }
func (t TriBool) Value() bool { return t.value }

// Compatible implements the matching rule: absent on either side matches
// anything, otherwise both sides must agree.
func (t TriBool) Compatible(other TriBool) bool {
	if !t.set || !other.set {
		return true
	}
	return t.value == other.value
}

// StartupToken is the monotonic integer identifying one launch attempt.
type StartupToken uint64

// JobID identifies a submitted job.
type JobID string

// WorkerID identifies a registered worker process.
type WorkerID string

// JobConfig is the read-only configuration the job-metadata service hands
// back for a JobID. Only the fields the launcher and pool need are modeled;
// the job-metadata service itself is out of scope.
type JobConfig struct {
	JobID            JobID
	Language         Language
	JVMOptions       []string
	CodeSearchPath   string
	PreloadModules   []string
	EagerInstallEnv  bool
	ResourceIsolated bool
}

// RuntimeEnvInfo is the serialized, hashable description of an isolated
// execution environment a worker should run inside.
type RuntimeEnvInfo struct {
	Serialized string
	Hash       string
}

func (r RuntimeEnvInfo) Empty() bool { return r.Serialized == "" }

// PopWorkerStatus is the result taxonomy delivered to a pop-request
// callback.
type PopWorkerStatus string

const (
	StatusOK                       PopWorkerStatus = "OK"
	StatusJobConfigMissing         PopWorkerStatus = "JobConfigMissing"
	StatusTooManyStarting          PopWorkerStatus = "TooManyStartingWorkerProcesses"
	StatusWorkerPendingRegistraton PopWorkerStatus = "WorkerPendingRegistration"
	StatusRuntimeEnvCreateFailed   PopWorkerStatus = "RuntimeEnvCreationFailed"
	StatusJobFinished              PopWorkerStatus = "JobFinished"
)

// MismatchReason classifies why the Matchmaker rejected an idle candidate,
// used only for metrics labeling.
type MismatchReason string

const (
	MismatchNone                MismatchReason = ""
	MismatchOther               MismatchReason = "other"
	MismatchRootDetachedActor   MismatchReason = "root_mismatch"
	MismatchRuntimeEnv          MismatchReason = "runtime_env_mismatch"
	MismatchDynamicOptions      MismatchReason = "dynamic_options_mismatch"
)

// Port is a TCP port number; zero means "let the child choose."
type Port int

// NodeIdentity is the information a launched worker needs to talk back to
// the node agent that spawned it.
type NodeIdentity struct {
	NodeID            string
	NodeManagerPort   int
	AgentPID          int
	ObjectSpillConfig string // base64, only relevant to I/O workers
}

// RegistrationLatencyBucketsMS are the buckets of the registration-latency
// histogram (spec.md §6: {1,10,100,1000,10000} ms).
var RegistrationLatencyBucketsMS = []float64{1, 10, 100, 1000, 10000}

// Clock is a read-only time source (Now only). No package in this module
// uses it; the pool core's own clock, which also arms timers, is
// pool.Clock.
type Clock interface {
	Now() time.Time
}
