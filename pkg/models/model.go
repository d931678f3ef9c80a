// Package models defines the per-entity forecasting models.
//
// A model is created fresh for one entity, trained on that entity's series
// only, asked for predictions at explicit timestamps and then discarded.
// Models never share state across entities.
package models

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	ErrNotTrained        = errors.New("model not trained")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrInvalidConfig     = errors.New("invalid model config")
	ErrNonFiniteForecast = errors.New("non-finite forecast")
)

// Point is one observation of an entity's series.
type Point struct {
	Time  time.Time
	Value float64
}

// Series is the history of a single entity.
type Series struct {
	EntityID string
	Points   []Point
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Points) }

// Times returns the observation timestamps in series order.
func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Time
	}
	return out
}

// Values returns the observed values in series order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Sorted returns a copy of the series ordered by time. Ties keep their
// original order.
func (s Series) Sorted() Series {
	points := append([]Point(nil), s.Points...)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
	return Series{EntityID: s.EntityID, Points: points}
}

// Forecast holds point estimates aligned with Periods.
type Forecast struct {
	Model   string
	Periods []time.Time
	Values  []float64
}

// Tail returns the last n periods of the forecast. If the forecast is
// shorter than n the whole forecast is returned.
func (f Forecast) Tail(n int) Forecast {
	if n >= len(f.Values) {
		return f
	}
	if n < 0 {
		n = 0
	}
	start := len(f.Values) - n
	return Forecast{
		Model:   f.Model,
		Periods: f.Periods[start:],
		Values:  f.Values[start:],
	}
}

// Model is implemented by every forecasting model.
type Model interface {
	// Name returns the model identifier.
	Name() string

	// Train fits the model on one entity's history.
	Train(ctx context.Context, history Series) error

	// Predict returns one point estimate per requested timestamp.
	Predict(ctx context.Context, periods []time.Time) (Forecast, error)
}

// FitAndForecast builds a fresh decomposition model, trains it on series
// and predicts the requested periods. The model does not outlive the call.
func FitAndForecast(ctx context.Context, series Series, periods []time.Time, cfg DecompositionConfig) (Forecast, error) {
	m, err := NewDecompositionModel(cfg)
	if err != nil {
		return Forecast{}, err
	}
	if err := m.Train(ctx, series); err != nil {
		return Forecast{}, err
	}
	return m.Predict(ctx, periods)
}
