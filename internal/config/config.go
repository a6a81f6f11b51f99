// Package config loads the node agent's configuration from the
// environment. Grounded on alexdev-tb-CodePortal/internal/config
// (FromEnv plus getEnv/getInt/getDuration helpers), generalized from
// HTTP/Redis/Sandbox settings to the pool's admission-control, eviction,
// and process-launch parameters.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Postgres struct {
	DSN string
}

// Pool bundles the worker-pool's tunables (spec.md §6).
type Pool struct {
	MaximumStartupConcurrency int
	IdleKillThreshold         time.Duration
	WorkerRegisterTimeout     time.Duration
	MaxIOWorkers              int
	NumPrestart               int
	PrestartOnFirstDriver     bool
	EvictionTickInterval      time.Duration

	// NodePorts is the configured free-port FIFO (spec.md §4.1). Empty
	// means unconfigured: the child process chooses its own port.
	NodePorts []int

	NodeID            string
	NodeManagerPort   int
	ObjectSpillConfig string
	OOMScoreAdj       int

	// WorkerCommands maps each supported language to its worker_command
	// argv template (spec.md §4.2), parsed from WORKER_COMMAND_<LANG>.
	WorkerCommands map[string][]string
}

type Admin struct {
	JWTSecret string
	// InviteCode gates operator registration past the bootstrap account
	// (the first operator created on an empty roster always succeeds).
	InviteCode string
}

type Config struct {
	HTTP     HTTP
	Redis    Redis
	Postgres Postgres
	Pool     Pool
	Admin    Admin
}

func FromEnv() (Config, error) {
	httpCfg := HTTP{
		Host:            getEnv("HTTP_HOST", "0.0.0.0"),
		Port:            getInt("HTTP_PORT", 8080),
		ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	if httpCfg.Port <= 0 || httpCfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port: %d", httpCfg.Port)
	}

	redisCfg := Redis{
		Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getInt("REDIS_DB", 0),
	}

	postgresCfg := Postgres{
		DSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/nodeagent?sslmode=disable"),
	}

	poolCfg := Pool{
		MaximumStartupConcurrency: getInt("POOL_MAX_STARTUP_CONCURRENCY", 10),
		IdleKillThreshold:         getDuration("POOL_IDLE_KILL_THRESHOLD", 10*time.Minute),
		WorkerRegisterTimeout:     getDuration("POOL_WORKER_REGISTER_TIMEOUT", 30*time.Second),
		MaxIOWorkers:              getInt("POOL_MAX_IO_WORKERS", 4),
		NumPrestart:               getInt("POOL_NUM_PRESTART", 0),
		PrestartOnFirstDriver:     getBool("POOL_PRESTART_ON_FIRST_DRIVER", false),
		EvictionTickInterval:      getDuration("POOL_EVICTION_TICK_INTERVAL", 1*time.Second),
		NodePorts:                 getIntList("POOL_WORKER_PORTS", nil),
		NodeID:                    getEnv("NODE_ID", "node-1"),
		NodeManagerPort:           getInt("NODE_MANAGER_PORT", 0),
		ObjectSpillConfig:         getEnv("OBJECT_SPILLING_CONFIG", ""),
		OOMScoreAdj:               getInt("POOL_WORKER_OOM_SCORE_ADJ", 0),
		WorkerCommands: map[string][]string{
			"python": getCommandTemplate("WORKER_COMMAND_PYTHON", []string{"python3", "-m", "nodeagent.worker"}),
			"java":   getCommandTemplate("WORKER_COMMAND_JAVA", []string{"java", "-cp", "worker.jar", "io.nodeagent.Worker"}),
			"cpp":    getCommandTemplate("WORKER_COMMAND_CPP", []string{"/usr/local/bin/nodeagent-worker"}),
		},
	}
	if poolCfg.MaximumStartupConcurrency <= 0 {
		return Config{}, fmt.Errorf("invalid POOL_MAX_STARTUP_CONCURRENCY: %d", poolCfg.MaximumStartupConcurrency)
	}

	adminCfg := Admin{
		JWTSecret:  getEnv("ADMIN_JWT_SECRET", "change-me-in-production"),
		InviteCode: getEnv("ADMIN_INVITE_CODE", ""),
	}

	return Config{HTTP: httpCfg, Redis: redisCfg, Postgres: postgresCfg, Pool: poolCfg, Admin: adminCfg}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getIntList(key string, fallback []int) []int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	return out
}

func getCommandTemplate(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	return strings.Fields(value)
}
