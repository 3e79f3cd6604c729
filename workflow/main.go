package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/provost-labs/provost-go/internal/calendar"
	"github.com/provost-labs/provost-go/internal/engine"
	"github.com/provost-labs/provost-go/internal/idempotency"
	"github.com/provost-labs/provost-go/internal/platform/auth"
	"github.com/provost-labs/provost-go/internal/platform/env"
	"github.com/provost-labs/provost-go/internal/platform/httpserver"
	"github.com/provost-labs/provost-go/internal/platform/metrics"
	"github.com/provost-labs/provost-go/internal/platform/postgres"
	pgrepo "github.com/provost-labs/provost-go/internal/repo/postgres"
	"github.com/provost-labs/provost-go/internal/rules"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("WORKFLOW_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("WORKFLOW_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	idempotencyTTL, err := env.Duration("WORKFLOW_IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	idempotencyLease, err := env.Duration("WORKFLOW_IDEMPOTENCY_LEASE", 2*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	reclaimInterval, err := env.Duration("WORKFLOW_RECLAIM_INTERVAL", time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	graph, err := rules.LoadFile(env.String("WORKFLOW_RULES_FILE", ""))
	if err != nil {
		logger.Error("invalid transition rules", "error", err)
		os.Exit(2)
	}
	cal, err := calendar.LoadFile(env.String("WORKFLOW_HOLIDAYS_FILE", ""))
	if err != nil {
		logger.Error("invalid holiday calendar", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	authenticator, err := auth.NewAuthenticator(authCfg)
	if err != nil {
		logger.Error("auth init failed", "error", err)
		os.Exit(2)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := metrics.NewEngine(registry)

	proposals := pgrepo.NewProposalStore(db)
	workflowLog := pgrepo.NewWorkflowLogStore(db)
	idemStore := pgrepo.NewIdempotencyStore(db)
	directory := pgrepo.NewUnitDirectory(db)
	txRunner := pgrepo.NewTxRunner(db)

	guard := idempotency.New(idemStore, idempotencyTTL, idempotencyLease)
	executor := engine.NewExecutor(
		txRunner,
		guard,
		engine.NewValidator(graph),
		engine.NewResolver(cal, directory),
		logger,
		engineMetrics,
	)
	drafts := engine.NewDrafts(proposals, graph, logger)

	go reclaimLoop(ctx, logger, guard, reclaimInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("workflow"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"workflow",
			httpserver.ReadinessCheck{
				Name:  "postgres",
				Check: httpserver.WithTimeout(750*time.Millisecond, db.PingContext),
			},
		),
	)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	api := newWorkflowAPI(logger, executor, drafts, workflowLog)
	api.register(mux)

	var handler http.Handler = mux
	if authenticator != nil {
		handler = auth.Middleware{
			Logger:        logger,
			Authenticator: authenticator,
			SkipPrefixes:  []string{"/healthz", "/readyz", "/metrics"},
		}.Wrap(mux)
	}

	cfg := httpserver.Config{
		Service:         "workflow",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "workflow", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

// reclaimLoop periodically flips lease-expired in-flight idempotency records
// to failed so abandoned keys become retryable.
func reclaimLoop(ctx context.Context, logger *slog.Logger, guard *idempotency.Guard, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			n, err := guard.ReclaimStale(reclaimCtx)
			cancel()
			if err != nil {
				logger.Warn("idempotency reclaim failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("idempotency records reclaimed", "count", n)
			}
		}
	}
}
