package config

import (
	"testing"
	"time"
)

func TestFromEnvAppliesDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Pool.MaximumStartupConcurrency != 10 {
		t.Fatalf("expected default max startup concurrency 10, got %d", cfg.Pool.MaximumStartupConcurrency)
	}
	if len(cfg.Pool.WorkerCommands["python"]) == 0 {
		t.Fatal("expected a default python worker command template")
	}
}

func TestFromEnvRejectsInvalidMaxStartupConcurrency(t *testing.T) {
	t.Setenv("POOL_MAX_STARTUP_CONCURRENCY", "0")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected FromEnv to reject a zero max startup concurrency")
	}
}

func TestGetIntListParsesCommaSeparatedPorts(t *testing.T) {
	t.Setenv("POOL_WORKER_PORTS", "10001, 10002,10003")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	want := []int{10001, 10002, 10003}
	if len(cfg.Pool.NodePorts) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.Pool.NodePorts)
	}
	for i, p := range want {
		if cfg.Pool.NodePorts[i] != p {
			t.Fatalf("expected %v, got %v", want, cfg.Pool.NodePorts)
		}
	}
}

func TestGetDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("POOL_IDLE_KILL_THRESHOLD", "not-a-duration")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Pool.IdleKillThreshold != 10*time.Minute {
		t.Fatalf("expected fallback of 10m, got %v", cfg.Pool.IdleKillThreshold)
	}
}
