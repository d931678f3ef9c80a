// Package router configures the HTTP routes of the forecaster's serve mode.
//
// Routes configured:
//   - GET /forecast/entity?entity_id=<id> - stored forecast of one entity
//   - GET /forecast/entities - ids of every stored forecast
//   - GET /forecast/summary - summary of the historical table
//   - GET /healthz - health check (store ping when supported)
//   - GET /metrics - Prometheus metrics
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pramodhsway/microcast/pkg/features"
	"github.com/pramodhsway/microcast/pkg/httpx"
	"github.com/pramodhsway/microcast/pkg/storage"
)

// SummaryFunc returns the summary of the last batch and whether one exists.
type SummaryFunc func() (features.Summary, bool)

type pinger interface {
	Ping(ctx context.Context) error
}

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(store storage.Store, summary SummaryFunc, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	if p, ok := store.(pinger); ok {
		mux.Handle("/healthz", httpx.HealthHandlerWithCheck(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return p.Ping(ctx)
		}))
	} else {
		mux.Handle("/healthz", httpx.HealthHandler())
	}

	mux.HandleFunc("/forecast/entity", handleGetEntity(store, logger))
	mux.HandleFunc("/forecast/entities", handleListEntities(store, logger))
	mux.HandleFunc("/forecast/summary", handleSummary(summary))

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func handleGetEntity(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID := features.NormalizeEntityID(r.URL.Query().Get("entity_id"))
		if entityID == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "entity_id parameter required")
			return
		}

		forecast, found, err := store.Get(entityID)
		if err != nil {
			logger.Error("failed to get forecast", "entity_id", entityID, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no forecast for entity %q", entityID))
			return
		}

		_ = httpx.WriteJSON(w, http.StatusOK, forecast)
	}
}

func handleListEntities(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := store.Entities()
		if err != nil {
			logger.Error("failed to list entities", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if ids == nil {
			ids = []string{}
		}
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"entities": ids})
	}
}

func handleSummary(summary SummaryFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if summary == nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "no summary available")
			return
		}
		s, ok := summary()
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "no summary available")
			return
		}
		_ = httpx.WriteJSON(w, http.StatusOK, s)
	}
}
