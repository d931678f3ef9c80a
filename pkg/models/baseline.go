package models

import (
	"context"
	"fmt"
	"time"
)

// BaselineModel forecasts a flat level from exponential moving averages with
// an optional month-of-year adjustment. It works on the original value scale
// and is used as a fallback when the decomposition model cannot be fit.
//
// Algorithm:
//  1. Compute EMA over the last 3 and the last 12 observations
//  2. Base forecast = 0.7*EMA3 + 0.3*EMA12, raised to the last observation
//     when that is higher
//  3. Optional seasonality: if a calendar month has at least 2 observations,
//     blend yhat = 0.8*Base + 0.2*Mean_month
//  4. All values are non-negative
type BaselineModel struct {
	// values holds the training series in time order
	values []float64

	// seasonality maps calendar month (1-12) to the mean value observed in
	// that month
	seasonality map[time.Month]float64
}

// NewBaselineModel creates an untrained baseline model.
func NewBaselineModel() *BaselineModel {
	return &BaselineModel{
		seasonality: make(map[time.Month]float64),
	}
}

// Name returns the model identifier.
func (m *BaselineModel) Name() string {
	return "baseline"
}

// Train stores the series and computes month-of-year means.
func (m *BaselineModel) Train(ctx context.Context, history Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if history.Len() == 0 {
		return fmt.Errorf("%w: history is empty", ErrInsufficientData)
	}

	s := history.Sorted()
	m.values = s.Values()

	sums := make(map[time.Month]float64)
	counts := make(map[time.Month]int)
	for _, p := range s.Points {
		sums[p.Time.Month()] += p.Value
		counts[p.Time.Month()]++
	}

	m.seasonality = make(map[time.Month]float64)
	for month, count := range counts {
		if count >= 2 {
			m.seasonality[month] = sums[month] / float64(count)
		}
	}

	return nil
}

// Predict returns the baseline level for every requested period, adjusted
// by the month-of-year mean where one is known.
func (m *BaselineModel) Predict(ctx context.Context, periods []time.Time) (Forecast, error) {
	if err := ctx.Err(); err != nil {
		return Forecast{}, err
	}
	if len(m.values) == 0 {
		return Forecast{}, ErrNotTrained
	}

	ema3 := computeEMA(m.values, 3)
	ema12 := computeEMA(m.values, 12)
	base := 0.7*ema3 + 0.3*ema12

	if last := m.values[len(m.values)-1]; len(m.values) >= 2 && last > base {
		base = last
	}
	if base < 0 {
		base = 0
	}

	values := make([]float64, len(periods))
	for i, ts := range periods {
		v := base
		if mean, ok := m.seasonality[ts.Month()]; ok {
			v = 0.8*base + 0.2*mean
		}
		if v < 0 {
			v = 0
		}
		values[i] = v
	}

	return Forecast{
		Model:   m.Name(),
		Periods: append([]time.Time(nil), periods...),
		Values:  values,
	}, nil
}

// NaiveModel carries the last observed value forward.
type NaiveModel struct {
	last    float64
	trained bool
}

// NewNaiveModel creates an untrained carry-forward model.
func NewNaiveModel() *NaiveModel {
	return &NaiveModel{}
}

func (m *NaiveModel) Name() string { return "last" }

func (m *NaiveModel) Train(ctx context.Context, history Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if history.Len() == 0 {
		return fmt.Errorf("%w: history is empty", ErrInsufficientData)
	}
	s := history.Sorted()
	m.last = s.Points[s.Len()-1].Value
	m.trained = true
	return nil
}

func (m *NaiveModel) Predict(ctx context.Context, periods []time.Time) (Forecast, error) {
	if err := ctx.Err(); err != nil {
		return Forecast{}, err
	}
	if !m.trained {
		return Forecast{}, ErrNotTrained
	}
	values := make([]float64, len(periods))
	for i := range values {
		values[i] = m.last
	}
	return Forecast{
		Model:   m.Name(),
		Periods: append([]time.Time(nil), periods...),
		Values:  values,
	}, nil
}

// computeEMA calculates the exponential moving average over the most recent n points.
// If there are fewer than n points, uses all available points.
// Returns 0 if values is empty.
//
// EMA formula: EMA_t = α * value_t + (1-α) * EMA_{t-1}
// where α = 2 / (n + 1)
func computeEMA(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}

	start := 0
	if len(values) > n {
		start = len(values) - n
	}
	window := values[start:]

	alpha := 2.0 / float64(len(window)+1)
	ema := window[0]

	for i := 1; i < len(window); i++ {
		ema = alpha*window[i] + (1-alpha)*ema
	}

	return ema
}
