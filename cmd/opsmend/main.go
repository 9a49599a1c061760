package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opsmend/opsmend/internal/admission"
	"github.com/opsmend/opsmend/internal/api"
	"github.com/opsmend/opsmend/internal/audit"
	"github.com/opsmend/opsmend/internal/auth"
	"github.com/opsmend/opsmend/internal/cadence"
	"github.com/opsmend/opsmend/internal/cluster"
	"github.com/opsmend/opsmend/internal/config"
	"github.com/opsmend/opsmend/internal/executor"
	"github.com/opsmend/opsmend/internal/ingest"
	"github.com/opsmend/opsmend/internal/metrics"
	"github.com/opsmend/opsmend/internal/pipeline"
	"github.com/opsmend/opsmend/internal/rbac"
	"github.com/opsmend/opsmend/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting opsmend remediation control plane")

	cfg := config.Load()
	logger.Info("Configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"nats_url", cfg.NATSURL,
		"max_concurrent_missions", cfg.MaxConcurrentMissions,
		"boot_interval", cfg.BootInterval,
		"audit_backend", cfg.AuditBackend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// NATS is optional: without it the service falls back to no-op
	// implementations of the audit, notification, and executor capabilities.
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("NATS unavailable, using no-op transports", "error", err)
			nc = nil
		} else {
			defer nc.Close()
			logger.Info("Connected to NATS", "url", cfg.NATSURL)
		}
	}

	prometheusMetrics := metrics.NewMetrics()

	sink := buildAuditSink(cfg, nc, logger)
	defer sink.Close()

	var notifier admission.Notifier = admission.NopNotifier{}
	var exec executor.Executor = executor.NopExecutor{}
	if nc != nil {
		notifier = admission.NewNATSNotifier(nc, logger)
		exec = executor.NewNATSExecutor(nc, logger)
	}

	registry := rbac.NewRegistry(logger)
	if n, err := registry.LoadPrincipals(cfg.PrincipalsPath); err != nil {
		logger.Error("Failed to load principals", "error", err)
		os.Exit(1)
	} else {
		logger.Info("Principals loaded", "count", n, "path", cfg.PrincipalsPath)
	}
	ensureSchedulerPrincipal(registry)

	authSvc := auth.NewService(cfg.JWTSecret)
	if n, err := authSvc.LoadUsers(cfg.UsersPath); err != nil {
		logger.Error("Failed to load operator users", "error", err)
		os.Exit(1)
	} else {
		logger.Info("Operator users loaded", "count", n, "path", cfg.UsersPath)
	}

	engine := cluster.NewEngine(cfg.ClusterRetention, prometheusMetrics, sink, logger)
	cadenceController := cadence.NewController(cfg.BootInterval,
		cfg.SteadyIntervalMin, cfg.SteadyIntervalMax,
		cfg.BootThreshold, cfg.SteadyThreshold, logger)
	gate := admission.NewGate(registry, sink, notifier, prometheusMetrics,
		cfg.AutoApproveThreshold, cfg.EscalationThreshold, logger)
	sched := scheduler.NewScheduler(gate, exec, engine, sink, prometheusMetrics,
		cfg.MaxConcurrentMissions, cfg.ExecTimeout, logger)

	pipe := pipeline.New(engine, cadenceController, sched, prometheusMetrics,
		cfg.EngineInterval, cfg.SchedulerInterval, logger)
	pipe.Start(ctx)

	if nc != nil {
		subscriber, err := ingest.NewSubscriber(nc, engine, prometheusMetrics, "opsmend", logger)
		if err != nil {
			logger.Error("Failed to create event subscriber", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := subscriber.Subscribe(ctx); err != nil {
				logger.Error("Event subscriber error", "error", err)
			}
		}()
	}

	apiServer := api.NewServer(engine, sched, gate, cadenceController, authSvc, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiServer.Router(),
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Opsmend started successfully")
	<-sigChan

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	pipe.Wait()
	logger.Info("Opsmend stopped")
}

// buildAuditSink selects the audit backend from configuration
func buildAuditSink(cfg config.Config, nc *nats.Conn, logger *slog.Logger) audit.Sink {
	switch cfg.AuditBackend {
	case "postgres":
		sink, err := audit.NewPostgresSink(cfg.AuditDSN, logger)
		if err != nil {
			logger.Error("Failed to open Postgres audit sink", "error", err)
			os.Exit(1)
		}
		return sink
	case "nats":
		if nc != nil {
			return audit.NewNATSSink(nc, logger)
		}
		logger.Warn("NATS audit backend requested but NATS unavailable, auditing disabled")
		return audit.NopSink{}
	default:
		return audit.NopSink{}
	}
}

// ensureSchedulerPrincipal registers the scheduler's own service account
// when the principals file does not define one. Without it every mission
// would be denied at the RBAC phase.
func ensureSchedulerPrincipal(registry *rbac.Registry) {
	if _, ok := registry.Get(scheduler.SchedulerPrincipal); ok {
		return
	}
	registry.Register(&rbac.Principal{
		ID:   scheduler.SchedulerPrincipal,
		Role: "service",
		Permissions: []rbac.Permission{
			rbac.PermissionRead,
			rbac.PermissionWrite,
			rbac.PermissionExecute,
		},
		ResourceScopes: map[string][]string{
			"production_model": {"*"},
			"staging_model":    {"*"},
		},
	})
}
