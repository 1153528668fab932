package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quantford/tradepilot/internal/breaker"
	"github.com/quantford/tradepilot/internal/config"
	"github.com/quantford/tradepilot/internal/probes"
	"github.com/quantford/tradepilot/internal/runner"
	"github.com/quantford/tradepilot/internal/scheduler"
	"github.com/quantford/tradepilot/internal/store"
	handler "github.com/quantford/tradepilot/internal/transport/http/v1"
	"github.com/quantford/tradepilot/policy"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Logger
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting tradepilot",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Float64("initial_capital", cfg.InitialCapital),
	)

	// Store
	st, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	// Circuit breaker
	brkOpts := []breaker.Option{breaker.ProductionOnly(cfg.OnlyProduction)}
	if !cfg.BreakerEnabled {
		brkOpts = append(brkOpts, breaker.Disabled())
	}
	brk := breaker.NewManager(logger, brkOpts...)
	for _, t := range cfg.Thresholds {
		actions, err := breaker.ParseActions(t.Actions)
		if err != nil {
			logger.Fatal("invalid breaker configuration", zap.Error(err))
		}
		if err := brk.AddThreshold(t.Level, actions, t.Description); err != nil {
			logger.Fatal("invalid breaker threshold", zap.Float64("level", t.Level), zap.Error(err))
		}
	}

	// Readiness policy
	ctx := context.Background()
	policyContent := policy.DefaultPolicy
	if cfg.PolicyPath != "" {
		data, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			logger.Fatal("failed to read policy file", zap.String("path", cfg.PolicyPath), zap.Error(err))
		}
		policyContent = string(data)
	}
	policyEngine, err := policy.NewEngine(ctx, policyContent)
	if err != nil {
		logger.Fatal("failed to initialize readiness policy", zap.Error(err))
	}

	// Scheduler and runner with the stock reachability probes
	sched := scheduler.New(cfg.MaxPauseMinutes, logger)
	apiCheck := probes.HTTPCheck(cfg.APIBaseURL, 10*time.Second)
	collab := runner.Collaborators{
		DataCheck:     probes.FileCheck(cfg.DataPath),
		StrategyCheck: probes.FileCheck(cfg.StrategyPath),
		APICheck:      apiCheck,
		DataPhase:     probes.CheckAsPhase(probes.FileCheck(cfg.DataPath)),
		StrategyPhase: probes.CheckAsPhase(probes.FileCheck(cfg.StrategyPath)),
		APIPhase:      probes.CheckAsPhase(apiCheck),
	}
	run := runner.New(cfg, st, sched, brk, policyEngine, logger, collab)

	// HTTP inspection API
	h := handler.NewHandler(st, brk)
	server := echo.New()
	server.HideBanner = true
	server.Use(middleware.Recover())
	h.RegisterRoutes(server)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start http server", zap.Error(err))
		}
	}()
	logger.Info("inspection api started", zap.Int("port", cfg.HTTPPort))

	// Run the workflow
	workflowDone := make(chan struct{})
	go func() {
		defer close(workflowDone)
		summary, err := run.Run(ctx)
		if err != nil {
			logger.Error("workflow run failed", zap.Error(err))
			return
		}
		logger.Info("workflow finished",
			zap.String("session_id", run.SessionID()),
			zap.String("status", string(summary.Status)),
		)
	}()

	// Exit when the workflow completes or on interrupt; the API stays up
	// until then.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-workflowDone:
	case <-quit:
		logger.Info("interrupt received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown http server gracefully", zap.Error(err))
	}

	logger.Info("tradepilot stopped")
}

func buildStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return store.NewSQLiteStore(cfg.DatabaseURL, store.ValidationLenient, logger)
	case "jsonl", "":
		return store.NewFileStore(cfg.StoreDir, store.ValidationLenient, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func mustBuildLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
