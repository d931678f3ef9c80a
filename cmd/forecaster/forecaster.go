// Package main implements the microcast forecaster.
// The forecaster loads a historical and a future table, fits one trend model
// per entity on Box-Cox transformed values, and writes the future table back
// with the target column populated. It can keep serving the forecasts over
// HTTP and gRPC afterwards.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pramodhsway/microcast/cmd/forecaster/metrics"
	"github.com/pramodhsway/microcast/pkg/adapters"
	"github.com/pramodhsway/microcast/pkg/features"
	"github.com/pramodhsway/microcast/pkg/models"
	"github.com/pramodhsway/microcast/pkg/pool"
	"github.com/pramodhsway/microcast/pkg/storage"
	"github.com/pramodhsway/microcast/pkg/transform"
)

// Placeholder is written to every future row before forecasts are scattered.
const Placeholder = "0"

// FitFunc fits a fresh model on one entity's transformed series and predicts
// the given periods.
type FitFunc func(ctx context.Context, series models.Series, periods []time.Time) (models.Forecast, error)

// DecompositionFit returns a FitFunc backed by models.FitAndForecast.
func DecompositionFit(cfg models.DecompositionConfig) FitFunc {
	return func(ctx context.Context, series models.Series, periods []time.Time) (models.Forecast, error) {
		return models.FitAndForecast(ctx, series, periods, cfg)
	}
}

// Options configures a Forecaster.
type Options struct {
	EntityColumn string
	TimeColumn   string
	TargetColumn string

	Horizon     int
	EntityLimit int
	Workers     int
	FitTimeout  time.Duration
}

// Paths locates the batch inputs and outputs.
type Paths struct {
	Train  string
	Test   string
	Output string
	Report string
}

// EntityResult is the outcome of one entity in the run report.
type EntityResult struct {
	EntityID   string `json:"entityId"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Model      string `json:"model,omitempty"`
	DurationMS int64  `json:"durationMs"`
	Rows       int    `json:"rows"`
}

// Report summarizes a batch run.
type Report struct {
	StartedAt     time.Time      `json:"startedAt"`
	FinishedAt    time.Time      `json:"finishedAt"`
	Lambda        float64        `json:"lambda"`
	ZerosNudged   int            `json:"zerosNudged"`
	Horizon       []string       `json:"horizon"`
	Succeeded     int            `json:"succeeded"`
	Failed        int            `json:"failed"`
	Fallback      int            `json:"fallback"`
	Skipped       int            `json:"skipped"`
	Unseen        int            `json:"unseen"`
	RowsTotal     int            `json:"rowsTotal"`
	RowsPopulated int            `json:"rowsPopulated"`
	Entities      []EntityResult `json:"entities"`
}

// Forecaster orchestrates the batch: load → transform → fit → invert → scatter → write.
type Forecaster struct {
	opts     Options
	fit      FitFunc
	fallback func() models.Model
	builder  *features.Builder
	store    storage.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.RWMutex
	summary *features.Summary
}

// New creates a Forecaster. fallback, store and m may be nil.
func New(
	opts Options,
	fit FitFunc,
	fallback func() models.Model,
	builder *features.Builder,
	store storage.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}
	if builder == nil {
		builder = features.NewBuilder()
	}
	return &Forecaster{
		opts:     opts,
		fit:      fit,
		fallback: fallback,
		builder:  builder,
		store:    store,
		metrics:  m,
		logger:   logger,
	}
}

// Run loads both tables, forecasts every entity and writes the output table
// and the optional report.
func (f *Forecaster) Run(ctx context.Context, paths Paths) (*Report, error) {
	history, err := f.load(ctx, paths.Train)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	future, err := f.load(ctx, paths.Test)
	if err != nil {
		return nil, fmt.Errorf("load future: %w", err)
	}

	out, report, err := f.Forecast(ctx, paths.Train, paths.Test, history, future)
	if err != nil {
		return nil, err
	}

	if err := adapters.WriteFile(paths.Output, out); err != nil {
		return report, fmt.Errorf("write output: %w", err)
	}
	f.logger.Info("wrote forecast table", "path", paths.Output, "rows", len(out.Rows))

	if paths.Report != "" {
		if err := writeReport(paths.Report, report); err != nil {
			return report, fmt.Errorf("write report: %w", err)
		}
		f.logger.Info("wrote run report", "path", paths.Report)
	}

	return report, nil
}

func (f *Forecaster) load(ctx context.Context, path string) (*adapters.DataFrame, error) {
	start := time.Now()
	adapter := &adapters.FileAdapter{Path: path}

	df, err := adapter.Collect(ctx)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("loaded table",
		"adapter", adapter.Name(),
		"path", path,
		"columns", len(df.Columns),
		"rows", len(df.Rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return df, nil
}

// Forecast runs the batch on already loaded tables. history is renamed in
// place; future is not modified. The returned table has the rows of future,
// in order, with the target column populated.
func (f *Forecaster) Forecast(ctx context.Context, historySrc, futureSrc string, history, future *adapters.DataFrame) (*adapters.DataFrame, *Report, error) {
	report := &Report{StartedAt: time.Now()}

	records, err := f.builder.Normalize(historySrc, history, f.opts.EntityColumn, f.opts.TimeColumn, f.opts.TargetColumn)
	if err != nil {
		return nil, nil, fmt.Errorf("normalize history: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, adapters.NewLoadError(historySrc, "historical table has no rows", nil)
	}

	entityIdx := future.ColumnIndex(f.opts.EntityColumn)
	timeIdx := future.ColumnIndex(f.opts.TimeColumn)
	if entityIdx < 0 || timeIdx < 0 {
		return nil, nil, adapters.NewLoadError(futureSrc,
			fmt.Sprintf("future table needs columns %q and %q", f.opts.EntityColumn, f.opts.TimeColumn), nil)
	}

	summary := features.Summarize(records)
	f.mu.Lock()
	f.summary = &summary
	f.mu.Unlock()

	values := features.Values(records)
	report.ZerosNudged = transform.NudgeZeros(values)

	bc, transformed, err := transform.Fit(values)
	if err != nil {
		return nil, nil, fmt.Errorf("transform: %w", err)
	}
	report.Lambda = bc.Lambda
	if f.metrics != nil {
		f.metrics.TransformLambda.Set(bc.Lambda)
	}
	f.logger.Info("fitted box-cox transform",
		"lambda", bc.Lambda,
		"values", len(values),
		"zeros_nudged", report.ZerosNudged,
	)

	series := features.Partition(features.WithValues(records, transformed))
	raw := make(map[string]models.Series)
	for _, s := range features.Partition(records) {
		raw[s.EntityID] = s
	}

	var skipped []models.Series
	if limit := f.opts.EntityLimit; limit > 0 && limit < len(series) {
		skipped = series[limit:]
		series = series[:limit]
	}

	horizon := features.Horizon(features.LastTime(records), f.opts.Horizon)
	for _, ts := range horizon {
		report.Horizon = append(report.Horizon, ts.Format(features.DateLayout))
	}

	f.logger.Info("forecasting entities",
		"entities", len(series),
		"skipped", len(skipped),
		"horizon", len(horizon),
		"workers", f.opts.Workers,
	)

	results, err := pool.Run(ctx, f.tasks(series, horizon, bc), pool.Options{
		Workers: f.opts.Workers,
		Timeout: f.opts.FitTimeout,
		OnDone:  f.progress(len(series)),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("forecast entities: %w", err)
	}

	forecasts := make(map[string]models.Forecast, len(results))
	for _, res := range results {
		entry := EntityResult{
			EntityID:   res.EntityID,
			DurationMS: res.Duration.Milliseconds(),
			Status:     storage.StatusSucceeded,
			Model:      res.Forecast.Model,
		}
		fc := res.Forecast

		if res.Err != nil {
			entry.Status = storage.StatusFailed
			entry.Reason = res.Err.Error()
			entry.Model = ""
			f.logger.Warn("entity forecast failed", "entity_id", res.EntityID, "error", res.Err)

			if fb, fbErr := f.runFallback(ctx, raw[res.EntityID], horizon); fbErr == nil && fb.Model != "" {
				fc = fb
				entry.Status = storage.StatusFallback
				entry.Model = fb.Model
			} else if fbErr != nil {
				entry.Reason += "; fallback: " + fbErr.Error()
			}
		}

		if entry.Status != storage.StatusFailed {
			forecasts[res.EntityID] = fc
		}
		report.Entities = append(report.Entities, entry)
	}
	for _, s := range skipped {
		report.Entities = append(report.Entities, EntityResult{
			EntityID: s.EntityID,
			Status:   storage.StatusSkipped,
			Reason:   "beyond entity limit",
		})
	}

	out, populated, unseen := f.scatter(future, entityIdx, timeIdx, forecasts, raw)
	for i := range report.Entities {
		report.Entities[i].Rows = populated[report.Entities[i].EntityID]
		report.RowsPopulated += report.Entities[i].Rows
	}
	report.RowsTotal = len(out.Rows)
	report.Unseen = len(unseen)
	report.FinishedAt = time.Now()

	for _, e := range report.Entities {
		switch e.Status {
		case storage.StatusSucceeded:
			report.Succeeded++
		case storage.StatusFailed:
			report.Failed++
		case storage.StatusFallback:
			report.Fallback++
		case storage.StatusSkipped:
			report.Skipped++
		}
	}

	f.persist(report, forecasts)
	f.observe(report)

	f.logger.Info("forecast batch complete",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"fallback", report.Fallback,
		"skipped", report.Skipped,
		"unseen", report.Unseen,
		"rows_populated", report.RowsPopulated,
		"rows_total", report.RowsTotal,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)

	return out, report, nil
}

// tasks builds one pool task per entity. A task fits over the entity's own
// history plus the horizon, keeps the horizon tail and inverts it.
func (f *Forecaster) tasks(series []models.Series, horizon []time.Time, bc transform.BoxCox) []pool.Task {
	tasks := make([]pool.Task, len(series))
	for i, s := range series {
		periods := append(s.Times(), horizon...)
		tasks[i] = pool.Task{
			EntityID: s.EntityID,
			Run: func(ctx context.Context) (models.Forecast, error) {
				fc, err := f.fit(ctx, s, periods)
				if err != nil {
					return models.Forecast{}, err
				}
				tail := fc.Tail(len(horizon))
				if len(tail.Values) != len(horizon) {
					return models.Forecast{}, fmt.Errorf("model returned %d values, want at least %d", len(fc.Values), len(horizon))
				}
				inverted, err := bc.InverseAll(tail.Values)
				if err != nil {
					return models.Forecast{}, err
				}
				tail.Values = inverted
				tail.Periods = horizon
				return tail, nil
			},
		}
	}
	return tasks
}

func (f *Forecaster) progress(total int) func(pool.Result) {
	var done atomic.Int64
	step := int64(max(1, total/10))

	return func(res pool.Result) {
		if f.metrics != nil {
			f.metrics.FitSeconds.Observe(res.Duration.Seconds())
		}
		f.logger.Debug("entity processed",
			"entity_id", res.EntityID,
			"ok", res.Err == nil,
			"duration_ms", res.Duration.Milliseconds(),
		)
		n := done.Add(1)
		if n%step == 0 || n == int64(total) {
			f.logger.Info("progress", "processed", n, "total", total)
		}
	}
}

// runFallback forecasts the horizon from the original-scale history with the
// configured fallback model. It returns a zero Forecast when no fallback is
// configured.
func (f *Forecaster) runFallback(ctx context.Context, history models.Series, horizon []time.Time) (models.Forecast, error) {
	if f.fallback == nil || history.Len() == 0 {
		return models.Forecast{}, nil
	}
	m := f.fallback()
	if err := m.Train(ctx, history); err != nil {
		return models.Forecast{}, err
	}
	return m.Predict(ctx, horizon)
}

// scatter copies future, resets the target column to Placeholder and writes
// each entity's forecast into its rows. Rows are matched by calendar month;
// rows whose time cell does not parse take the entity's values in order.
// Entities absent from history are reported as unseen.
func (f *Forecaster) scatter(future *adapters.DataFrame, entityIdx, timeIdx int, forecasts map[string]models.Forecast, history map[string]models.Series) (*adapters.DataFrame, map[string]int, map[string]struct{}) {
	out := future.Clone()
	targetIdx := out.EnsureColumn(f.opts.TargetColumn, Placeholder)
	out.Fill(targetIdx, Placeholder)

	byMonth := make(map[string]map[string]float64, len(forecasts))
	for id, fc := range forecasts {
		months := make(map[string]float64, len(fc.Values))
		for i, ts := range fc.Periods {
			months[features.MonthKey(ts)] = fc.Values[i]
		}
		byMonth[id] = months
	}

	populated := make(map[string]int)
	unseen := make(map[string]struct{})
	position := make(map[string]int)

	for _, row := range out.Rows {
		id := features.NormalizeEntityID(row[entityIdx])
		fc, ok := forecasts[id]
		if !ok {
			if _, known := history[id]; !known {
				unseen[id] = struct{}{}
			}
			continue
		}

		var (
			value float64
			found bool
		)
		if ts, err := f.builder.ParseTime(row[timeIdx]); err == nil {
			value, found = byMonth[id][features.MonthKey(ts)]
		} else if k := position[id]; k < len(fc.Values) {
			value, found = fc.Values[k], true
			position[id] = k + 1
		}
		if !found {
			continue
		}

		row[targetIdx] = strconv.FormatFloat(value, 'f', -1, 64)
		populated[id]++
	}

	return out, populated, unseen
}

// persist stores every entity outcome for serve mode. Store failures are
// logged and do not fail the batch.
func (f *Forecaster) persist(report *Report, forecasts map[string]models.Forecast) {
	if f.store == nil {
		return
	}
	for _, e := range report.Entities {
		record := storage.EntityForecast{
			EntityID:    e.EntityID,
			Status:      e.Status,
			Reason:      e.Reason,
			Model:       e.Model,
			GeneratedAt: report.FinishedAt,
		}
		if fc, ok := forecasts[e.EntityID]; ok {
			record.Periods = fc.Periods
			record.Values = fc.Values
		}
		if err := f.store.Put(record); err != nil {
			f.logger.Warn("failed to store forecast", "entity_id", e.EntityID, "error", err)
		}
	}
}

func (f *Forecaster) observe(report *Report) {
	if f.metrics == nil {
		return
	}
	f.metrics.EntitiesTotal.WithLabelValues(storage.StatusSucceeded).Add(float64(report.Succeeded))
	f.metrics.EntitiesTotal.WithLabelValues(storage.StatusFailed).Add(float64(report.Failed))
	f.metrics.EntitiesTotal.WithLabelValues(storage.StatusFallback).Add(float64(report.Fallback))
	f.metrics.EntitiesTotal.WithLabelValues(storage.StatusSkipped).Add(float64(report.Skipped))
	f.metrics.RowsPopulated.Set(float64(report.RowsPopulated))
	f.metrics.BatchSeconds.Set(report.FinishedAt.Sub(report.StartedAt).Seconds())
	f.metrics.LastSuccessTimestamp.Set(float64(report.FinishedAt.Unix()))
}

// Summary returns the summary of the last loaded history.
func (f *Forecaster) Summary() (features.Summary, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.summary == nil {
		return features.Summary{}, false
	}
	return *f.summary, true
}

func writeReport(path string, report *Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
