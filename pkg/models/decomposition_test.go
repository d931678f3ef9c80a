package models

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

var origin = time.Date(2019, time.August, 1, 0, 0, 0, 0, time.UTC)

func months(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range n {
		out[i] = start.AddDate(0, i, 0)
	}
	return out
}

func days(ts time.Time) float64 {
	return ts.Sub(origin).Hours() / 24
}

// syntheticSeries evaluates fn at n consecutive month starts.
func syntheticSeries(n int, fn func(ts time.Time) float64) Series {
	points := make([]Point, n)
	for i, ts := range months(origin, n) {
		points[i] = Point{Time: ts, Value: fn(ts)}
	}
	return Series{EntityID: "01001", Points: points}
}

func linearTrend(ts time.Time) float64 {
	return 2 + 0.002*days(ts)
}

func yearlyWave(ts time.Time) float64 {
	return 10 + 0.001*days(ts) + math.Sin(2*math.Pi*days(ts)/365.25)
}

func TestDecompositionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *DecompositionConfig)
		wantErr bool
	}{
		{"default", func(c *DecompositionConfig) {}, false},
		{"multiplicative", func(c *DecompositionConfig) { c.SeasonalityMode = SeasonalityMultiplicative }, false},
		{"unknown mode", func(c *DecompositionConfig) { c.SeasonalityMode = "mixed" }, true},
		{"logistic growth", func(c *DecompositionConfig) { c.Growth = "logistic" }, true},
		{"negative changepoints", func(c *DecompositionConfig) { c.NChangepoints = -1 }, true},
		{"zero prior scale", func(c *DecompositionConfig) { c.ChangepointPriorScale = 0 }, true},
		{"range above one", func(c *DecompositionConfig) { c.ChangepointRange = 1.5 }, true},
		{"yearly without order", func(c *DecompositionConfig) {
			c.YearlySeasonality = true
			c.YearlyOrder = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDecompositionConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not match ErrInvalidConfig", err)
			}
		})
	}
}

func TestDecompositionModel_LinearTrendExtrapolates(t *testing.T) {
	history := syntheticSeries(24, linearTrend)
	future := months(origin.AddDate(0, 24, 0), 8)

	fc, err := FitAndForecast(context.Background(), history, future, DefaultDecompositionConfig())
	if err != nil {
		t.Fatalf("FitAndForecast() error = %v", err)
	}
	if len(fc.Values) != 8 {
		t.Fatalf("len(Values) = %d, want 8", len(fc.Values))
	}
	if fc.Model != "decomposition" {
		t.Errorf("Model = %q, want %q", fc.Model, "decomposition")
	}

	for i, ts := range future {
		want := linearTrend(ts)
		if math.Abs(fc.Values[i]-want) > 0.02 {
			t.Errorf("value[%d] = %.4f, want ~%.4f", i, fc.Values[i], want)
		}
	}
}

func TestDecompositionModel_ChangepointPlacement(t *testing.T) {
	m, err := NewDecompositionModel(DefaultDecompositionConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Train(context.Background(), syntheticSeries(24, linearTrend)); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if len(m.changepoints) != 10 {
		t.Fatalf("changepoints = %d, want 10", len(m.changepoints))
	}
	for i, cp := range m.changepoints {
		if cp <= 0 || cp > 0.8 {
			t.Errorf("changepoint %d at %.3f outside (0, 0.8]", i, cp)
		}
		if i > 0 && cp <= m.changepoints[i-1] {
			t.Errorf("changepoints not increasing at %d", i)
		}
	}
}

func TestDecompositionModel_FewPointsDropsChangepoints(t *testing.T) {
	m, _ := NewDecompositionModel(DefaultDecompositionConfig())
	if err := m.Train(context.Background(), syntheticSeries(5, linearTrend)); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	// floor(5 * 0.8) = 4 history points allow at most 3 changepoints
	if len(m.changepoints) != 3 {
		t.Errorf("changepoints = %d, want 3", len(m.changepoints))
	}
}

func TestDecompositionModel_AdditiveYearlySeasonality(t *testing.T) {
	cfg := DefaultDecompositionConfig()
	cfg.YearlySeasonality = true
	cfg.YearlyOrder = 3

	history := syntheticSeries(48, yearlyWave)
	future := months(origin.AddDate(0, 48, 0), 8)

	fc, err := FitAndForecast(context.Background(), history, future, cfg)
	if err != nil {
		t.Fatalf("FitAndForecast() error = %v", err)
	}

	for i, ts := range future {
		want := yearlyWave(ts)
		if math.Abs(fc.Values[i]-want) > 0.1 {
			t.Errorf("value[%d] = %.4f, want ~%.4f", i, fc.Values[i], want)
		}
	}
}

func TestDecompositionModel_MultiplicativeSeasonality(t *testing.T) {
	cfg := DefaultDecompositionConfig()
	cfg.SeasonalityMode = SeasonalityMultiplicative
	cfg.YearlySeasonality = true
	cfg.YearlyOrder = 3

	wave := func(ts time.Time) float64 {
		return (10 + 0.001*days(ts)) * (1 + 0.1*math.Sin(2*math.Pi*days(ts)/365.25))
	}
	history := syntheticSeries(48, wave)
	future := months(origin.AddDate(0, 48, 0), 8)

	fc, err := FitAndForecast(context.Background(), history, future, cfg)
	if err != nil {
		t.Fatalf("FitAndForecast() error = %v", err)
	}

	for i, ts := range future {
		want := wave(ts)
		if math.Abs(fc.Values[i]-want) > 0.3 {
			t.Errorf("value[%d] = %.4f, want ~%.4f", i, fc.Values[i], want)
		}
	}
}

func TestDecompositionModel_UnsortedInput(t *testing.T) {
	history := syntheticSeries(24, linearTrend)
	reversed := Series{EntityID: history.EntityID}
	for i := len(history.Points) - 1; i >= 0; i-- {
		reversed.Points = append(reversed.Points, history.Points[i])
	}
	future := months(origin.AddDate(0, 24, 0), 8)

	a, err := FitAndForecast(context.Background(), history, future, DefaultDecompositionConfig())
	if err != nil {
		t.Fatal(err)
	}
	b, err := FitAndForecast(context.Background(), reversed, future, DefaultDecompositionConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Values {
		if math.Abs(a.Values[i]-b.Values[i]) > 1e-9 {
			t.Errorf("value[%d]: sorted %.6f, unsorted %.6f", i, a.Values[i], b.Values[i])
		}
	}
}

func TestDecompositionModel_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("predict before train", func(t *testing.T) {
		m, _ := NewDecompositionModel(DefaultDecompositionConfig())
		if _, err := m.Predict(ctx, months(origin, 1)); !errors.Is(err, ErrNotTrained) {
			t.Errorf("error = %v, want ErrNotTrained", err)
		}
	})

	t.Run("single point", func(t *testing.T) {
		m, _ := NewDecompositionModel(DefaultDecompositionConfig())
		err := m.Train(ctx, syntheticSeries(1, linearTrend))
		if !errors.Is(err, ErrInsufficientData) {
			t.Errorf("error = %v, want ErrInsufficientData", err)
		}
	})

	t.Run("duplicate timestamps", func(t *testing.T) {
		m, _ := NewDecompositionModel(DefaultDecompositionConfig())
		s := Series{Points: []Point{{origin, 1}, {origin, 2}}}
		if err := m.Train(ctx, s); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("error = %v, want ErrInsufficientData", err)
		}
	})

	t.Run("nan value", func(t *testing.T) {
		m, _ := NewDecompositionModel(DefaultDecompositionConfig())
		s := syntheticSeries(6, linearTrend)
		s.Points[3].Value = math.NaN()
		if err := m.Train(ctx, s); err == nil {
			t.Error("expected error for NaN value")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultDecompositionConfig()
		cfg.SeasonalityMode = "bogus"
		if _, err := NewDecompositionModel(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		m, _ := NewDecompositionModel(DefaultDecompositionConfig())
		if err := m.Train(cctx, syntheticSeries(12, linearTrend)); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

func TestForecast_Tail(t *testing.T) {
	fc := Forecast{
		Model:   "decomposition",
		Periods: months(origin, 5),
		Values:  []float64{1, 2, 3, 4, 5},
	}

	tail := fc.Tail(2)
	if len(tail.Values) != 2 || tail.Values[0] != 4 || tail.Values[1] != 5 {
		t.Errorf("Tail(2) values = %v, want [4 5]", tail.Values)
	}
	if !tail.Periods[0].Equal(origin.AddDate(0, 3, 0)) {
		t.Errorf("Tail(2) first period = %v", tail.Periods[0])
	}
	if got := fc.Tail(10); len(got.Values) != 5 {
		t.Errorf("Tail(10) len = %d, want 5", len(got.Values))
	}
	if got := fc.Tail(-1); len(got.Values) != 0 {
		t.Errorf("Tail(-1) len = %d, want 0", len(got.Values))
	}
}
