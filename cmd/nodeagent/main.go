// Command nodeagent boots the worker pool, its admin/metrics HTTP
// surface, and the Redis-backed event journal. Grounded on
// alexdev-tb-CodePortal/cmd/api/main.go's Redis-ping-then-wire-then-run
// shape, generalized from "one sandbox executor" to "one worker pool plus
// its ambient infrastructure."
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coreslab/nodeagent/internal/admin"
	"github.com/coreslab/nodeagent/internal/config"
	"github.com/coreslab/nodeagent/internal/eventjournal"
	"github.com/coreslab/nodeagent/internal/pool"
	"github.com/coreslab/nodeagent/internal/pool/launcher"
	"github.com/coreslab/nodeagent/internal/pool/metrics"
	"github.com/coreslab/nodeagent/internal/pool/ports"
	"github.com/coreslab/nodeagent/internal/pool/runtimeenv"
	"github.com/coreslab/nodeagent/internal/pool/types"
	"github.com/coreslab/nodeagent/internal/server"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	defer db.Close()

	operatorStore, err := admin.NewPostgresStore(db)
	if err != nil {
		log.Fatalf("failed to prepare operator store: %v", err)
	}

	journal := eventjournal.New(eventjournal.Config{
		Client: rdb,
		Warn:   func(format string, args ...any) { log.Printf(format, args...) },
	})
	defer journal.Stop()

	identity := types.NodeIdentity{
		NodeID:            cfg.Pool.NodeID,
		NodeManagerPort:   cfg.Pool.NodeManagerPort,
		AgentPID:          os.Getpid(),
		ObjectSpillConfig: cfg.Pool.ObjectSpillConfig,
	}

	commands := make(map[types.Language][]string, len(cfg.Pool.WorkerCommands))
	for lang, argv := range cfg.Pool.WorkerCommands {
		commands[types.Language(lang)] = argv
	}

	launch := launcher.New(launcher.Config{
		Commands: commands,
		Identity: identity,
		OOMScore: cfg.Pool.OOMScoreAdj,
		Warn:     func(format string, args ...any) { log.Printf(format, args...) },
	})

	portAllocator := ports.New(cfg.Pool.NodePorts, nil)
	metricsCollector := metrics.New(promDefaultRegisterer())

	p := pool.New(pool.Config{
		Languages:                 commands,
		MaximumStartupConcurrency: cfg.Pool.MaximumStartupConcurrency,
		IdleKillThreshold:         cfg.Pool.IdleKillThreshold,
		WorkerRegisterTimeout:     cfg.Pool.WorkerRegisterTimeout,
		MaxIOWorkers:              cfg.Pool.MaxIOWorkers,
		NumPrestart:               cfg.Pool.NumPrestart,
		PrestartOnFirstDriver:     cfg.Pool.PrestartOnFirstDriver,
		Launcher:                  launch,
		Broker:                    runtimeenv.Noop{},
		Ports:                     portAllocator,
		Metrics:                   metricsCollector,
		Events:                    journal,
		CPUsAvailable:             func() int { return defaultCPUReserve() },
		KillWorker: func(ctx context.Context, h launcher.Handle, forceExit bool, reply func(success bool)) {
			go func() {
				err := h.Kill()
				if err != nil {
					log.Printf("nodeagent: kill failed for pid %d: %v", h.PID(), err)
				}
				reply(err == nil)
			}()
		},
		Warn:  func(format string, args ...any) { log.Printf(format, args...) },
		Fatal: func(format string, args ...any) { log.Fatalf(format, args...) },
	}, identity)

	go p.Run()

	go func() {
		ticker := time.NewTicker(cfg.Pool.EvictionTickInterval)
		defer ticker.Stop()
		for range ticker.C {
			p.Tick()
		}
	}()

	adminService := admin.NewService(operatorStore, cfg.Admin.JWTSecret, cfg.Admin.InviteCode)
	adminHandler := admin.NewHandler(adminService)
	adminHandler.Dump = p.Dump
	adminHandler.Metrics = metrics.Handler()
	router := admin.NewRouter(adminHandler)

	srv := server.New(cfg.HTTP, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		if err == server.ErrServerClosed {
			log.Println("server shutdown gracefully")
			return
		}
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}

// defaultCPUReserve reports the CPU-count hint the eviction and prestart
// controllers size themselves against (spec.md §4.4, §4.6). Resource
// accounting beyond this hint is out of scope; runtime.NumCPU is the
// simplest faithful stand-in for an external scheduler-supplied value.
func defaultCPUReserve() int {
	return numCPU()
}
