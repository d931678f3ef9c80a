package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/pramodhsway/microcast/cmd/forecaster/config"
	"github.com/pramodhsway/microcast/cmd/forecaster/grpcapi"
	"github.com/pramodhsway/microcast/cmd/forecaster/logger"
	"github.com/pramodhsway/microcast/cmd/forecaster/metrics"
	fmodels "github.com/pramodhsway/microcast/cmd/forecaster/models"
	"github.com/pramodhsway/microcast/cmd/forecaster/router"
	"github.com/pramodhsway/microcast/cmd/forecaster/store"
	"github.com/pramodhsway/microcast/pkg/features"
	"github.com/pramodhsway/microcast/pkg/httpx"
	"github.com/pramodhsway/microcast/pkg/storage"
)

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting microcast forecaster",
		"version", "v0.1.0",
		"source_dir", cfg.SourceDir,
		"train_file", cfg.TrainFile,
		"test_file", cfg.TestFile,
		"seasonality_mode", cfg.SeasonalityMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	st := store.New(cfg, logger)
	defer store.Close(st, logger)

	f := New(
		Options{
			EntityColumn: cfg.EntityColumn,
			TimeColumn:   cfg.TimeColumn,
			TargetColumn: cfg.TargetColumn,
			Horizon:      cfg.Horizon,
			EntityLimit:  cfg.EntityLimit,
			Workers:      cfg.Workers,
			FitTimeout:   cfg.FitTimeout,
		},
		DecompositionFit(fmodels.DecompositionConfig(cfg)),
		fmodels.NewFallback(cfg, logger),
		features.NewBuilder(),
		st,
		m,
		logger,
	)

	_, err := f.Run(ctx, Paths{
		Train:  cfg.TrainPath(),
		Test:   cfg.TestPath(),
		Output: cfg.OutputFile,
		Report: cfg.ReportFile,
	})
	if err != nil {
		logger.Error("forecast batch failed", "error", err)
		exit(st, logger, 1)
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile, prometheus.DefaultGatherer); err != nil {
			logger.Error("failed to write metrics file", "path", cfg.MetricsFile, "error", err)
			exit(st, logger, 1)
		}
	}

	if cfg.Serve == "" {
		return
	}

	if err := serve(ctx, cfg, f, logger); err != nil {
		logger.Error("serve failed", "error", err)
		exit(st, logger, 1)
	}
}

// exit closes the store before leaving; deferred calls do not run on os.Exit.
func exit(st storage.Store, logger *slog.Logger, code int) {
	store.Close(st, logger)
	os.Exit(code)
}

// serve exposes the stored forecasts until ctx is canceled.
func serve(ctx context.Context, cfg *config.Config, f *Forecaster, logger *slog.Logger) error {
	mux := router.SetupRoutes(f.store, f.Summary, logger)
	handler := httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
	httpServer := httpx.NewServer(cfg.Serve, handler, logger)

	errCh := make(chan error, 2)
	go func() {
		errCh <- httpServer.Start()
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			_ = httpServer.Stop(5 * time.Second)
			return err
		}
		grpcServer = grpcapi.NewServer(f.store, logger)
		go func() {
			logger.Info("grpc server listening", "address", cfg.GRPCListen)
			errCh <- grpcServer.Serve(lis)
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server failed", "error", serveErr)
		}
	}

	logger.Info("shutting down")
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		serveErr = errors.Join(serveErr, err)
	}

	logger.Info("shutdown complete")
	return serveErr
}
