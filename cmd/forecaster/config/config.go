// Package config implements the forecaster batch configuration.
//
// Values come from command-line flags, an optional YAML file (--config) and
// environment variables. Precedence is flag > YAML > environment > default.
// YAML keys are the flag names, e.g.:
//
//	source_dir: /data
//	train_file: train.csv
//	seasonality_mode: multiplicative
//	fit_timeout: 45s
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all forecaster configuration.
type Config struct {
	// Inputs and output
	SourceDir  string
	TrainFile  string
	TestFile   string
	OutputFile string

	// Columns
	TimeColumn   string
	TargetColumn string
	EntityColumn string

	// Model
	SeasonalityMode       string
	Horizon               int
	Changepoints          int
	ChangepointPriorScale float64
	YearlySeasonality     bool
	WeeklySeasonality     bool
	DailySeasonality      bool

	// Batch execution
	EntityLimit int
	Workers     int
	FitTimeout  time.Duration
	Fallback    string
	ReportFile  string
	MetricsFile string

	// Storage
	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Serve mode
	Serve      string
	GRPCListen string

	ConfigFile string
	LogFormat  string
	LogLevel   string
}

// TrainPath returns the location of the historical table.
func (c *Config) TrainPath() string {
	return filepath.Join(c.SourceDir, c.TrainFile)
}

// TestPath returns the location of the future table.
func (c *Config) TestPath() string {
	return filepath.Join(c.SourceDir, c.TestFile)
}

// ParseFlags parses os.Args and the environment into a Config.
// Exits with status 1 on invalid or missing configuration.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Parse builds a Config from args, the optional YAML file and the
// environment, then validates it.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := newFlagSet(cfg, os.Stderr)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if err := applyFile(fs, cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("forecaster", flag.ContinueOnError)
	fs.SetOutput(output)

	// Inputs
	fs.StringVar(&cfg.SourceDir, "source_dir", getEnv("SOURCE_DIR", ""), "Directory holding the train and test files (required)")
	fs.StringVar(&cfg.TrainFile, "train_file", getEnv("TRAIN_FILE", ""), "Historical table file name (required)")
	fs.StringVar(&cfg.TestFile, "test_file", getEnv("TEST_FILE", ""), "Future table file name (required)")
	fs.StringVar(&cfg.OutputFile, "output_file", getEnv("OUTPUT_FILE", "forecast.csv"), "Output table: .csv, .tsv, .json or .xlsx")

	// Columns
	fs.StringVar(&cfg.TimeColumn, "time_column", getEnv("TIME_COLUMN", ""), "Time column, formatted YYYY-MM-DD (required)")
	fs.StringVar(&cfg.TargetColumn, "target_column", getEnv("TARGET_COLUMN", ""), "Target column (required)")
	fs.StringVar(&cfg.EntityColumn, "entity_column", getEnv("ENTITY_COLUMN", "cfips"), "Entity id column")

	// Model
	fs.StringVar(&cfg.SeasonalityMode, "seasonality_mode", getEnv("SEASONALITY_MODE", "additive"), "Seasonality mode: additive or multiplicative")
	fs.IntVar(&cfg.Horizon, "horizon", getEnvInt("HORIZON", 8), "Forecast horizon in months")
	fs.IntVar(&cfg.Changepoints, "changepoints", getEnvInt("CHANGEPOINTS", 10), "Number of trend changepoints")
	fs.Float64Var(&cfg.ChangepointPriorScale, "changepoint_prior_scale", getEnvFloat("CHANGEPOINT_PRIOR_SCALE", 0.5), "Changepoint prior scale")
	fs.BoolVar(&cfg.YearlySeasonality, "yearly_seasonality", getEnvBool("YEARLY_SEASONALITY", false), "Enable yearly seasonality")
	fs.BoolVar(&cfg.WeeklySeasonality, "weekly_seasonality", getEnvBool("WEEKLY_SEASONALITY", false), "Enable weekly seasonality")
	fs.BoolVar(&cfg.DailySeasonality, "daily_seasonality", getEnvBool("DAILY_SEASONALITY", false), "Enable daily seasonality")

	// Batch
	fs.IntVar(&cfg.EntityLimit, "entity_limit", getEnvInt("ENTITY_LIMIT", 0), "Forecast only the first N entities (0 = all)")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("WORKERS", runtime.NumCPU()), "Concurrent entity fits")
	fs.DurationVar(&cfg.FitTimeout, "fit_timeout", getEnvDuration("FIT_TIMEOUT", 30*time.Second), "Per-entity fit timeout")
	fs.StringVar(&cfg.Fallback, "fallback", getEnv("FALLBACK", "none"), "Fallback for failed or unseen entities: none, last or ema")
	fs.StringVar(&cfg.ReportFile, "report_file", getEnv("REPORT_FILE", ""), "Write a JSON run report to this file")
	fs.StringVar(&cfg.MetricsFile, "metrics_file", getEnv("METRICS_FILE", ""), "Write Prometheus metrics in textfile format to this file")

	// Storage
	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Forecast store: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis_addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	fs.StringVar(&cfg.RedisPassword, "redis_password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis_db", getEnvInt("REDIS_DB", 0), "Redis database")
	fs.DurationVar(&cfg.RedisTTL, "redis_ttl", getEnvDuration("REDIS_TTL", 0), "Forecast key TTL (0 = no expiry)")

	// Serve
	fs.StringVar(&cfg.Serve, "serve", getEnv("SERVE", ""), "Keep serving forecasts over HTTP on this address after the batch")
	fs.StringVar(&cfg.GRPCListen, "grpc_listen", getEnv("GRPC_LISTEN", ""), "gRPC listen address (serve mode only)")

	fs.StringVar(&cfg.ConfigFile, "config", getEnv("CONFIG_FILE", ""), "YAML configuration file")
	fs.StringVar(&cfg.LogFormat, "log_format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log_level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	return fs
}

// applyFile sets every flag named in the YAML file that was not given on the
// command line.
func applyFile(fs *flag.FlagSet, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	for key, value := range values {
		if key == "config" {
			continue
		}
		if fs.Lookup(key) == nil {
			return fmt.Errorf("config file %s: unknown key %q", path, key)
		}
		if explicit[key] || value == nil {
			continue
		}
		if err := fs.Set(key, fmt.Sprint(value)); err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, key, err)
		}
	}
	return nil
}

// Validate checks required values and enumerations.
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"source_dir", c.SourceDir},
		{"train_file", c.TrainFile},
		{"test_file", c.TestFile},
		{"time_column", c.TimeColumn},
		{"target_column", c.TargetColumn},
		{"entity_column", c.EntityColumn},
		{"output_file", c.OutputFile},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("--%s is required", r.name)
		}
	}

	switch c.SeasonalityMode {
	case "additive", "multiplicative":
	default:
		return fmt.Errorf("--seasonality_mode must be additive or multiplicative, got %q", c.SeasonalityMode)
	}
	switch c.Fallback {
	case "none", "last", "ema":
	default:
		return fmt.Errorf("--fallback must be none, last or ema, got %q", c.Fallback)
	}
	switch c.Storage {
	case "memory", "redis":
	default:
		return fmt.Errorf("--storage must be memory or redis, got %q", c.Storage)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("--log_format must be text or json, got %q", c.LogFormat)
	}

	if c.Horizon <= 0 {
		return fmt.Errorf("--horizon must be positive, got %d", c.Horizon)
	}
	if c.Changepoints < 0 {
		return fmt.Errorf("--changepoints must not be negative, got %d", c.Changepoints)
	}
	if c.ChangepointPriorScale <= 0 {
		return fmt.Errorf("--changepoint_prior_scale must be positive, got %g", c.ChangepointPriorScale)
	}
	if c.EntityLimit < 0 {
		return fmt.Errorf("--entity_limit must not be negative, got %d", c.EntityLimit)
	}
	if c.Workers < 0 {
		return fmt.Errorf("--workers must not be negative, got %d", c.Workers)
	}
	if c.FitTimeout < 0 {
		return fmt.Errorf("--fit_timeout must not be negative, got %s", c.FitTimeout)
	}
	if c.Storage == "redis" && c.RedisAddr == "" {
		return errors.New("--redis_addr is required with --storage=redis")
	}
	if c.GRPCListen != "" && c.Serve == "" {
		return errors.New("--grpc_listen requires --serve")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
