package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requiredArgs(extra ...string) []string {
	args := []string{
		"--source_dir", "/data",
		"--train_file", "train.csv",
		"--test_file", "test.csv",
		"--time_column", "first_day_of_month",
		"--target_column", "microbusiness_density",
	}
	return append(args, extra...)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(requiredArgs())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.SeasonalityMode != "additive" {
		t.Errorf("SeasonalityMode = %q, want additive", cfg.SeasonalityMode)
	}
	if cfg.Horizon != 8 || cfg.Changepoints != 10 || cfg.ChangepointPriorScale != 0.5 {
		t.Errorf("model defaults = %d/%d/%g", cfg.Horizon, cfg.Changepoints, cfg.ChangepointPriorScale)
	}
	if cfg.YearlySeasonality || cfg.WeeklySeasonality || cfg.DailySeasonality {
		t.Error("seasonalities should default to off")
	}
	if cfg.EntityColumn != "cfips" || cfg.OutputFile != "forecast.csv" {
		t.Errorf("EntityColumn = %q, OutputFile = %q", cfg.EntityColumn, cfg.OutputFile)
	}
	if cfg.FitTimeout != 30*time.Second || cfg.Fallback != "none" || cfg.Storage != "memory" {
		t.Errorf("batch defaults = %s/%s/%s", cfg.FitTimeout, cfg.Fallback, cfg.Storage)
	}
	if cfg.Workers <= 0 {
		t.Errorf("Workers = %d, want NumCPU", cfg.Workers)
	}
	if cfg.TrainPath() != filepath.Join("/data", "train.csv") || cfg.TestPath() != filepath.Join("/data", "test.csv") {
		t.Errorf("paths = %s, %s", cfg.TrainPath(), cfg.TestPath())
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"missing source dir", []string{"--train_file", "a", "--test_file", "b", "--time_column", "t", "--target_column", "y"}, "source_dir"},
		{"bad seasonality mode", requiredArgs("--seasonality_mode", "mixed"), "seasonality_mode"},
		{"bad fallback", requiredArgs("--fallback", "zero"), "fallback"},
		{"bad storage", requiredArgs("--storage", "etcd"), "storage"},
		{"zero horizon", requiredArgs("--horizon", "0"), "horizon"},
		{"negative changepoints", requiredArgs("--changepoints", "-1"), "changepoints"},
		{"zero prior scale", requiredArgs("--changepoint_prior_scale", "0"), "changepoint_prior_scale"},
		{"negative entity limit", requiredArgs("--entity_limit", "-2"), "entity_limit"},
		{"grpc without serve", requiredArgs("--grpc_listen", ":9090"), "grpc_listen"},
		{"bad log format", requiredArgs("--log_format", "xml"), "log_format"},
		{"unknown flag", requiredArgs("--bogus", "1"), "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.args)
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParse_EnvFallback(t *testing.T) {
	t.Setenv("SEASONALITY_MODE", "multiplicative")
	t.Setenv("HORIZON", "12")
	t.Setenv("YEARLY_SEASONALITY", "true")
	t.Setenv("FIT_TIMEOUT", "5s")

	cfg, err := Parse(requiredArgs())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SeasonalityMode != "multiplicative" || cfg.Horizon != 12 || !cfg.YearlySeasonality || cfg.FitTimeout != 5*time.Second {
		t.Errorf("env not applied: %+v", cfg)
	}

	// Flags win over the environment.
	cfg, err = Parse(requiredArgs("--horizon", "3"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Horizon != 3 {
		t.Errorf("Horizon = %d, want 3", cfg.Horizon)
	}
}

func TestParse_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecaster.yaml")
	content := `
seasonality_mode: multiplicative
horizon: 6
changepoint_prior_scale: 0.05
yearly_seasonality: true
fit_timeout: 45s
fallback: ema
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HORIZON", "12")

	cfg, err := Parse(requiredArgs("--config", path, "--fallback", "last"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.SeasonalityMode != "multiplicative" {
		t.Errorf("SeasonalityMode = %q", cfg.SeasonalityMode)
	}
	if cfg.Horizon != 6 {
		t.Errorf("Horizon = %d, want 6 (file beats env)", cfg.Horizon)
	}
	if cfg.ChangepointPriorScale != 0.05 || !cfg.YearlySeasonality || cfg.FitTimeout != 45*time.Second {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Fallback != "last" {
		t.Errorf("Fallback = %q, want last (flag beats file)", cfg.Fallback)
	}
}

func TestParse_ConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	if err := os.WriteFile(unknown, []byte("prom_url: http://localhost\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(requiredArgs("--config", unknown)); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Errorf("unknown key error = %v", err)
	}

	badValue := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badValue, []byte("horizon: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(requiredArgs("--config", badValue)); err == nil {
		t.Error("expected error for non-numeric horizon")
	}

	if _, err := Parse(requiredArgs("--config", filepath.Join(dir, "missing.yaml"))); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_DURATION", "10m")

	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("getEnvInt() = %d, want default 7", got)
	}
	if got := getEnvBool("TEST_BOOL", true); !got {
		t.Error("getEnvBool() should keep default for unparsable value")
	}
	if got := getEnvDuration("TEST_DURATION", 0); got != 10*time.Minute {
		t.Errorf("getEnvDuration() = %v", got)
	}
	if got := getEnv("TEST_UNSET_KEY", "fallback"); got != "fallback" {
		t.Errorf("getEnv() = %q", got)
	}
}
