package models

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pramodhsway/microcast/cmd/forecaster/config"
	"github.com/pramodhsway/microcast/pkg/models"
)

func TestDecompositionConfig(t *testing.T) {
	cfg := &config.Config{
		SeasonalityMode:       "multiplicative",
		Changepoints:          10,
		ChangepointPriorScale: 0.5,
		YearlySeasonality:     true,
	}

	dc := DecompositionConfig(cfg)
	if dc.SeasonalityMode != models.SeasonalityMultiplicative {
		t.Errorf("SeasonalityMode = %q", dc.SeasonalityMode)
	}
	if dc.NChangepoints != 10 || dc.ChangepointPriorScale != 0.5 || dc.Growth != models.GrowthLinear {
		t.Errorf("trend settings = %+v", dc)
	}
	if !dc.YearlySeasonality || dc.WeeklySeasonality || dc.DailySeasonality {
		t.Errorf("seasonality switches = %+v", dc)
	}
	if err := dc.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestNewFallback(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		fallback string
		wantName string
	}{
		{"none", ""},
		{"last", "last"},
		{"ema", "baseline"},
	}

	for _, tt := range tests {
		t.Run(tt.fallback, func(t *testing.T) {
			newModel := NewFallback(&config.Config{Fallback: tt.fallback}, logger)
			if tt.wantName == "" {
				if newModel != nil {
					t.Error("expected no fallback constructor")
				}
				return
			}
			if newModel == nil {
				t.Fatal("expected a fallback constructor")
			}
			a, b := newModel(), newModel()
			if a.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", a.Name(), tt.wantName)
			}
			if a == b {
				t.Error("constructor should return a fresh model per call")
			}
		})
	}
}
