// Package store creates the storage.Store that keeps per-entity forecasts
// for serve mode.
//
// Two backends are supported:
//
//   - memory: in-process go-cache store (default); lost on exit.
//   - redis: shared store for serving forecasts from several processes
//     or after the batch process has exited.
//
// Initialization is fail-fast: an unreachable backend exits the process.
package store

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/pramodhsway/microcast/cmd/forecaster/config"
	"github.com/pramodhsway/microcast/pkg/storage"
)

// New creates the storage backend selected by cfg.Storage. It never returns
// nil; it calls os.Exit(1) when the backend cannot be initialized.
func New(cfg *config.Config, logger *slog.Logger) storage.Store {
	switch cfg.Storage {
	case "redis":
		logger.Info("initializing redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.RedisTTL,
		)
		redisStore, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(ctx); err != nil {
			logger.Error("redis health check failed", "error", err)
			os.Exit(1)
		}
		logger.Info("redis storage initialized successfully")

		return redisStore

	case "memory":
		logger.Info("initializing in-memory storage")
		return storage.NewMemoryStore(0)

	default:
		logger.Error("invalid storage type", "storage", cfg.Storage)
		os.Exit(1)
	}

	return nil
}

// Close releases the store's resources when it holds any.
func Close(s storage.Store, logger *slog.Logger) {
	closer, ok := s.(interface{ Close() error })
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close storage", "error", err)
	}
}
