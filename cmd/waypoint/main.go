package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/waypointhq/waypoint/internal/adapter/gitlocal"
	wphttp "github.com/waypointhq/waypoint/internal/adapter/http"
	wpmcp "github.com/waypointhq/waypoint/internal/adapter/mcp"
	wpnats "github.com/waypointhq/waypoint/internal/adapter/nats"
	wpotel "github.com/waypointhq/waypoint/internal/adapter/otel"
	"github.com/waypointhq/waypoint/internal/adapter/postgres"
	"github.com/waypointhq/waypoint/internal/adapter/ristretto"
	"github.com/waypointhq/waypoint/internal/adapter/ws"
	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/git"
	"github.com/waypointhq/waypoint/internal/logger"
	"github.com/waypointhq/waypoint/internal/service"
)

const version = "0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"staleness_threshold", cfg.Registry.StalenessThreshold,
	)

	ctx := context.Background()

	// --- Telemetry ---
	if cfg.Telemetry.Enabled {
		shutdown, err := wpotel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}
	var metrics *wpotel.Metrics
	if cfg.Telemetry.Enabled {
		metrics, err = wpotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := wpnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	readCache, err := ristretto.New(cfg.Cache.MaxCostBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	events := postgres.NewEventStore(pool)
	gitPool := git.NewPool(cfg.Git.MaxConcurrent)
	probe := gitlocal.NewProbe(gitPool)
	clock := service.SystemClock{}

	// --- Services ---

	registrySvc := service.NewRegistryService(store, events, queue, hub, metrics, clock, cfg.Registry)
	eventSvc := service.NewEventService(events, store, metrics, clock)
	checkpointSvc := service.NewCheckpointService(store, store, events, hub, clock, cfg.Checkpoint)
	commandSvc := service.NewCommandLogService(store, store, clock)
	resolverSvc := service.NewResolverService(store, clock, cfg.Registry.StalenessThreshold)
	reconstructSvc := service.NewReconstructService(store, events, probe, clock, cfg.Git.WorkspaceRoot, cfg.Resume)
	scorer := service.NewScorer(cfg.Scoring)
	resumeEngine := service.NewResumeEngine(resolverSvc, reconstructSvc, scorer, store, events, queue, hub, metrics, clock, cfg.Resume)

	// Heartbeat monitor
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	monitor := service.NewHeartbeatMonitor(store, events, queue, hub, metrics, clock,
		cfg.Registry.StalenessThreshold, cfg.Registry.MonitorInterval)
	go monitor.Start(monitorCtx)

	// --- HTTP ---

	handlers := &wphttp.Handlers{
		Registry:    registrySvc,
		Events:      eventSvc,
		Checkpoints: checkpointSvc,
		Commands:    commandSvc,
		Resume:      resumeEngine,
		Cache:       readCache,
		CacheTTL:    cfg.Cache.TTL,
	}

	router := wphttp.NewRouter(cfg.Server, handlers, hub.HandleWS)
	srv := wphttp.NewServer(cfg.Server, router)

	// --- MCP ---

	mcpSrv := wpmcp.NewServer(wpmcp.ServerConfig{
		Addr:    cfg.MCP.Addr,
		Name:    "waypoint",
		Version: version,
		APIKey:  cfg.MCP.APIKey,
	}, wpmcp.ServerDeps{
		Registry:    registrySvc,
		Events:      eventSvc,
		Checkpoints: checkpointSvc,
		Commands:    commandSvc,
		Resume:      resumeEngine,
	})
	if err := mcpSrv.Start(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}

	// --- Graceful shutdown ---

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")
	cancelMonitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mcpSrv.Stop(shutdownCtx); err != nil {
		slog.Warn("mcp shutdown failed", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}
