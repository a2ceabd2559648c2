package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faultmesh/faultline/internal/api"
	"github.com/faultmesh/faultline/internal/catalog"
	"github.com/faultmesh/faultline/internal/config"
	"github.com/faultmesh/faultline/internal/engine"
	"github.com/faultmesh/faultline/internal/metrics"
	"github.com/faultmesh/faultline/internal/models"
	"github.com/faultmesh/faultline/internal/monitor"
	"github.com/faultmesh/faultline/internal/patterns"
	"github.com/faultmesh/faultline/internal/repo"
	"github.com/faultmesh/faultline/internal/services"
	"github.com/faultmesh/faultline/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting faultline-engine",
		slog.String("http", cfg.Server.HTTPAddress),
		slog.String("grpc", cfg.Server.GRPCAddress),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	cat, err := catalog.Load(cfg.Faults.CatalogPath)
	if err != nil {
		logger.Error("failed to load fault catalog", slog.Any("error", err))
		os.Exit(1)
	}

	provider, err := buildProvider(cfg.Monitor)
	if err != nil {
		logger.Error("failed to build snapshot provider", slog.Any("error", err))
		os.Exit(1)
	}

	orch := engine.New(logger, cat, provider,
		engine.WithStepDelay(cfg.Faults.StepDelay.Std()),
		engine.WithHistorySize(cfg.Faults.HistorySize),
		engine.WithMaxCascadeDepth(cfg.Faults.MaxCascadeDepth),
	)

	var mon *monitor.Monitor
	if cfg.Monitor.Provider != "none" {
		mon = monitor.New(logger, provider, monitor.NewZScoreScorer(), monitor.Config{
			Interval:           cfg.Monitor.Interval.Std(),
			HistorySize:        cfg.Monitor.HistorySize,
			RemediationTrigger: cfg.Monitor.RemediationTrigger,
			Thresholds:         monitor.DefaultThresholds(),
		})
		mon.SetRemediation(func(ctx context.Context, snap models.Snapshot) {
			// High failure probability triggers a synthetic recovery cycle,
			// exercising the same path a real incident would.
			if _, err := orch.Inject(ctx, models.KindCPUOverload, 0); err != nil {
				logger.Debug("remediation injection rejected", slog.Any("error", err))
			}
		})
	}

	miner := patterns.NewMiner(logger)
	faultService := services.NewFaultService(logger, orch, mon, miner)

	httpServer, err := api.NewHTTPServer(cfg.Server, logger, faultService)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	probeServer, err := api.NewProbeServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create gRPC probe server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if mon != nil {
		mon.Start(ctx)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("control API listening", slog.String("address", httpServer.Address()))
		if serveErr := httpServer.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	go func() {
		logger.Info("gRPC probe listening", slog.String("address", probeServer.Address()))
		if serveErr := probeServer.Start(); serveErr != nil {
			logger.Error("gRPC probe server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	probeServer.SetNotServing()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout.Std())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", slog.Any("error", err))
	}
	probeServer.Shutdown(shutdownCtx)

	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("orchestrator shutdown", slog.Any("error", err))
	}
	if mon != nil {
		mon.Stop()
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("faultline-engine stopped")
}

func buildProvider(cfg config.MonitorConfig) (engine.SnapshotProvider, error) {
	switch cfg.Provider {
	case "remote":
		return repo.NewAgentClient(cfg.AgentURL, "", cfg.AgentTimeout.Std()), nil
	case "none":
		return nil, nil
	default:
		return monitor.NewProcFSProvider(cfg.DiskPath)
	}
}
