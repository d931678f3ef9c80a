// Package models maps forecaster configuration onto pkg/models settings.
package models

import (
	"log/slog"
	"os"

	"github.com/pramodhsway/microcast/cmd/forecaster/config"
	"github.com/pramodhsway/microcast/pkg/models"
)

// DecompositionConfig returns the per-entity model settings for cfg.
func DecompositionConfig(cfg *config.Config) models.DecompositionConfig {
	dc := models.DefaultDecompositionConfig()
	dc.SeasonalityMode = cfg.SeasonalityMode
	dc.Growth = models.GrowthLinear
	dc.NChangepoints = cfg.Changepoints
	dc.ChangepointPriorScale = cfg.ChangepointPriorScale
	dc.YearlySeasonality = cfg.YearlySeasonality
	dc.WeeklySeasonality = cfg.WeeklySeasonality
	dc.DailySeasonality = cfg.DailySeasonality
	return dc
}

// NewFallback returns a constructor for the fallback model selected by
// cfg.Fallback, or nil for "none". Each call of the constructor yields a
// fresh, untrained model.
func NewFallback(cfg *config.Config, logger *slog.Logger) func() models.Model {
	switch cfg.Fallback {
	case "none":
		return nil

	case "last":
		logger.Info("initializing fallback model", "fallback", "last")
		return func() models.Model { return models.NewNaiveModel() }

	case "ema":
		logger.Info("initializing fallback model", "fallback", "ema")
		return func() models.Model { return models.NewBaselineModel() }

	default:
		logger.Error("invalid fallback", "fallback", cfg.Fallback)
		os.Exit(1)
	}

	return nil
}
