// Package main is the entry point for the opsplane worker. One process
// serves the job API, runs the worker pool and, optionally, the cron
// scheduler.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"opsplane/internal/backend"
	"opsplane/internal/config"
	"opsplane/internal/controller"
	"opsplane/internal/event"
	"opsplane/internal/logger"
	"opsplane/internal/observability"
	"opsplane/internal/runner"
	"opsplane/internal/scheduler"
	"opsplane/internal/service"
	"opsplane/internal/store"
	"opsplane/internal/store/memory"
	"opsplane/internal/store/postgres"
	"opsplane/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracing(ctx, "opsplane-worker", cfg.OTELCollectorAddr)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logg.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logg.Warn("failed to shutdown metrics", "error", err)
		}
	}()
	jobMetrics, err := observability.NewJobMetrics()
	if err != nil {
		log.Fatalf("Failed to register job metrics: %v", err)
	}

	// Stores
	var (
		queue    store.Queue
		registry store.Registry
		ping     func(ctx context.Context) error
	)
	switch cfg.QueueDriver {
	case config.QueuePostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer pg.Close()
		queue = postgres.NewQueue(pg.DB(), cfg.PollInterval)
		registry = postgres.NewRegistry(pg.DB())
		ping = pg.DB().PingContext
		logg.Info("using postgres store")
	default:
		queue = memory.NewQueue()
		registry = memory.NewRegistry()
		logg.Info("using in-memory store")
	}
	defer queue.Close()

	broadcaster := event.NewBroadcaster(logg)
	defer broadcaster.Close()

	// Execution backends
	local := backend.NewLocal()
	var (
		container backend.Backend
		probe     func(ctx context.Context) bool
	)
	switch cfg.Backend {
	case config.BackendLocal:
		logg.Info("using local exec backend")
	case config.BackendDocker, config.BackendAuto:
		docker, err := backend.NewDocker()
		if err != nil {
			if cfg.Backend == config.BackendDocker {
				log.Fatalf("Failed to create Docker backend: %v", err)
			}
			logg.Warn("docker unavailable, using local exec backend", "error", err)
			break
		}
		container = docker
		probe = func(ctx context.Context) bool { return docker.Ping(ctx) == nil }
		logg.Info("using docker backend", "fallback", cfg.Backend == config.BackendAuto)
	}

	run := runner.New(container, local, probe, broadcaster, logg, runner.Config{
		WorkspaceRoot:  cfg.WorkspaceRoot,
		AnsibleImage:   cfg.AnsibleImage,
		TerraformImage: cfg.TerraformImage,
	})

	pool := worker.New(queue, registry, run, broadcaster, logg, jobMetrics, worker.Config{
		Slots:      cfg.WorkerSlots,
		JobTimeout: cfg.JobTimeout,
	})
	go pool.Run(ctx)

	svc := service.New(registry, queue, broadcaster, pool, logg, service.Config{
		SubmitRate:  cfg.SubmitRate,
		SubmitBurst: cfg.SubmitBurst,
	})

	// Recurring submissions
	if cfg.ScheduleFile != "" {
		entries, err := scheduler.LoadFile(cfg.ScheduleFile)
		if err != nil {
			log.Fatalf("Failed to load schedules: %v", err)
		}
		sched := scheduler.New(svc, logg)
		for _, e := range entries {
			if _, err := sched.Add(e); err != nil {
				log.Fatalf("Failed to register schedule: %v", err)
			}
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
		logg.Info("scheduler started", "entries", len(entries))
	}

	// HTTP API
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, svc, controller.Options{
		APIKey:    cfg.APIKey,
		RateLimit: cfg.HTTPRateLimit,
		Metrics:   metricsHandler,
		Ping:      ping,
	})
	go func() {
		logg.Info("api listening", "addr", addr)
		if err := srv.Run(ctx); err != nil {
			logg.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down, draining running jobs")
	cancel()
	<-pool.Done()
}
