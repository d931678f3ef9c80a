package models

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	SeasonalityAdditive       = "additive"
	SeasonalityMultiplicative = "multiplicative"

	GrowthLinear = "linear"
)

const (
	secondsPerDay = 86400.0

	// ridge keeps the unpenalized trend columns well conditioned.
	ridge = 1e-6
)

// DecompositionConfig holds the fixed, per-run configuration of the
// trend/seasonality decomposition model.
type DecompositionConfig struct {
	// SeasonalityMode is "additive" or "multiplicative".
	SeasonalityMode string

	// Growth is the trend form. Only "linear" is supported.
	Growth string

	YearlySeasonality bool
	WeeklySeasonality bool
	DailySeasonality  bool

	// NChangepoints is the number of candidate trend changepoints, spread
	// uniformly over the first ChangepointRange fraction of the history.
	NChangepoints    int
	ChangepointRange float64

	// ChangepointPriorScale controls trend flexibility: larger values allow
	// larger slope changes at each changepoint.
	ChangepointPriorScale float64

	// SeasonalityPriorScale controls the strength of the seasonal terms.
	SeasonalityPriorScale float64

	// Fourier orders of the seasonal components.
	YearlyOrder int
	WeeklyOrder int
	DailyOrder  int
}

// DefaultDecompositionConfig returns the configuration used for monthly
// county series: no seasonal components, 10 changepoints with prior scale 0.5.
func DefaultDecompositionConfig() DecompositionConfig {
	return DecompositionConfig{
		SeasonalityMode:       SeasonalityAdditive,
		Growth:                GrowthLinear,
		NChangepoints:         10,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.5,
		SeasonalityPriorScale: 10,
		YearlyOrder:           10,
		WeeklyOrder:           3,
		DailyOrder:            4,
	}
}

// Validate reports the first invalid field.
func (c DecompositionConfig) Validate() error {
	switch c.SeasonalityMode {
	case SeasonalityAdditive, SeasonalityMultiplicative:
	default:
		return fmt.Errorf("%w: seasonality mode %q", ErrInvalidConfig, c.SeasonalityMode)
	}
	if c.Growth != GrowthLinear {
		return fmt.Errorf("%w: growth %q", ErrInvalidConfig, c.Growth)
	}
	if c.NChangepoints < 0 {
		return fmt.Errorf("%w: negative changepoint count %d", ErrInvalidConfig, c.NChangepoints)
	}
	if c.ChangepointRange <= 0 || c.ChangepointRange > 1 {
		return fmt.Errorf("%w: changepoint range %g not in (0, 1]", ErrInvalidConfig, c.ChangepointRange)
	}
	if c.ChangepointPriorScale <= 0 {
		return fmt.Errorf("%w: changepoint prior scale %g", ErrInvalidConfig, c.ChangepointPriorScale)
	}
	if c.SeasonalityPriorScale <= 0 {
		return fmt.Errorf("%w: seasonality prior scale %g", ErrInvalidConfig, c.SeasonalityPriorScale)
	}
	for _, s := range c.seasonalities() {
		if s.order <= 0 {
			return fmt.Errorf("%w: %s seasonality order %d", ErrInvalidConfig, s.name, s.order)
		}
	}
	return nil
}

type seasonality struct {
	name       string
	periodDays float64
	order      int
}

func (c DecompositionConfig) seasonalities() []seasonality {
	var out []seasonality
	if c.YearlySeasonality {
		out = append(out, seasonality{"yearly", 365.25, c.YearlyOrder})
	}
	if c.WeeklySeasonality {
		out = append(out, seasonality{"weekly", 7, c.WeeklyOrder})
	}
	if c.DailySeasonality {
		out = append(out, seasonality{"daily", 1, c.DailyOrder})
	}
	return out
}

// DecompositionModel fits y(t) = trend(t) + s(t) (additive) or
// y(t) = trend(t) * (1 + s(t)) (multiplicative), where the trend is
// piecewise linear with fixed candidate changepoints and s is a sum of
// Fourier series.
//
// Slope changes and seasonal coefficients carry Gaussian priors whose
// widths are the configured prior scales, so the fit is a ridge-regularized
// least squares problem solved in closed form.
type DecompositionModel struct {
	cfg           DecompositionConfig
	seasonalities []seasonality

	trained bool

	// time and value scaling
	start  time.Time
	tScale float64
	yScale float64

	// trend
	k            float64
	m            float64
	changepoints []float64
	deltas       []float64

	// seasonal Fourier coefficients, sin/cos pairs per order per component
	beta []float64
}

// NewDecompositionModel validates cfg and returns an untrained model.
func NewDecompositionModel(cfg DecompositionConfig) (*DecompositionModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DecompositionModel{
		cfg:           cfg,
		seasonalities: cfg.seasonalities(),
	}, nil
}

// Name returns the model identifier.
func (d *DecompositionModel) Name() string {
	return "decomposition"
}

// Train fits the model on one entity's history. Points may be unsorted.
func (d *DecompositionModel) Train(ctx context.Context, history Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := history.Sorted()
	n := s.Len()
	if n < 2 {
		return fmt.Errorf("%w: need at least 2 points, got %d", ErrInsufficientData, n)
	}

	d.start = s.Points[0].Time
	d.tScale = s.Points[n-1].Time.Sub(d.start).Seconds()
	if d.tScale <= 0 {
		return fmt.Errorf("%w: all observations share one timestamp", ErrInsufficientData)
	}

	y := s.Values()
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite value at %s", s.Points[i].Time.Format(time.DateOnly))
		}
	}
	d.yScale = floats.Norm(y, math.Inf(1))
	if d.yScale == 0 {
		d.yScale = 1
	}
	floats.Scale(1/d.yScale, y)

	t := make([]float64, n)
	for i, p := range s.Points {
		t[i] = d.scaleTime(p.Time)
	}
	d.changepoints = placeChangepoints(t, d.cfg.NChangepoints, d.cfg.ChangepointRange)

	if err := ctx.Err(); err != nil {
		return err
	}

	trendX := d.trendMatrix(t)
	trendPenalty := d.trendPenalty()

	if len(d.seasonalities) == 0 {
		coef, err := ridgeSolve(trendX, y, trendPenalty)
		if err != nil {
			return fmt.Errorf("fit trend: %w", err)
		}
		d.setTrend(coef)
		d.beta = nil
		d.trained = true
		return nil
	}

	seasonX := d.seasonalMatrix(s.Times())
	seasonPenalty := d.seasonalPenalty()

	switch d.cfg.SeasonalityMode {
	case SeasonalityMultiplicative:
		coef, err := ridgeSolve(trendX, y, trendPenalty)
		if err != nil {
			return fmt.Errorf("fit trend: %w", err)
		}
		d.setTrend(coef)

		ratio := make([]float64, n)
		for i := range t {
			tr := d.trend(t[i])
			if math.Abs(tr) < 1e-9 {
				return fmt.Errorf("multiplicative seasonality undefined: trend vanishes at %s",
					s.Points[i].Time.Format(time.DateOnly))
			}
			ratio[i] = y[i]/tr - 1
		}
		beta, err := ridgeSolve(seasonX, ratio, seasonPenalty)
		if err != nil {
			return fmt.Errorf("fit seasonality: %w", err)
		}
		d.beta = beta

	default:
		_, trendCols := trendX.Dims()
		var x mat.Dense
		x.Augment(trendX, seasonX)

		coef, err := ridgeSolve(&x, y, append(trendPenalty, seasonPenalty...))
		if err != nil {
			return fmt.Errorf("fit trend and seasonality: %w", err)
		}
		d.setTrend(coef[:trendCols])
		d.beta = coef[trendCols:]
	}

	d.trained = true
	return nil
}

// Predict returns the point estimate for each requested timestamp.
func (d *DecompositionModel) Predict(ctx context.Context, periods []time.Time) (Forecast, error) {
	if !d.trained {
		return Forecast{}, ErrNotTrained
	}
	if err := ctx.Err(); err != nil {
		return Forecast{}, err
	}

	values := make([]float64, len(periods))
	for i, ts := range periods {
		tr := d.trend(d.scaleTime(ts))
		seas := d.seasonal(ts)

		var v float64
		if d.cfg.SeasonalityMode == SeasonalityMultiplicative {
			v = tr * (1 + seas)
		} else {
			v = tr + seas
		}
		v *= d.yScale

		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Forecast{}, fmt.Errorf("%w at %s", ErrNonFiniteForecast, ts.Format(time.DateOnly))
		}
		values[i] = v
	}

	return Forecast{
		Model:   d.Name(),
		Periods: append([]time.Time(nil), periods...),
		Values:  values,
	}, nil
}

func (d *DecompositionModel) scaleTime(ts time.Time) float64 {
	return ts.Sub(d.start).Seconds() / d.tScale
}

func (d *DecompositionModel) trend(t float64) float64 {
	v := d.k*t + d.m
	for j, cp := range d.changepoints {
		if t > cp {
			v += d.deltas[j] * (t - cp)
		}
	}
	return v
}

func (d *DecompositionModel) seasonal(ts time.Time) float64 {
	if len(d.beta) == 0 {
		return 0
	}
	features := d.fourier(ts)
	return floats.Dot(features, d.beta)
}

// trendMatrix has columns [1, t, (t-c1)+, ..., (t-cK)+].
func (d *DecompositionModel) trendMatrix(t []float64) *mat.Dense {
	cols := 2 + len(d.changepoints)
	x := mat.NewDense(len(t), cols, nil)
	for i, ti := range t {
		x.Set(i, 0, 1)
		x.Set(i, 1, ti)
		for j, cp := range d.changepoints {
			x.Set(i, 2+j, math.Max(0, ti-cp))
		}
	}
	return x
}

func (d *DecompositionModel) trendPenalty() []float64 {
	p := make([]float64, 2+len(d.changepoints))
	p[0], p[1] = ridge, ridge
	w := 1 / (d.cfg.ChangepointPriorScale * d.cfg.ChangepointPriorScale)
	for j := range d.changepoints {
		p[2+j] = w
	}
	return p
}

func (d *DecompositionModel) setTrend(coef []float64) {
	d.m = coef[0]
	d.k = coef[1]
	d.deltas = append([]float64(nil), coef[2:]...)
}

func (d *DecompositionModel) seasonalCols() int {
	n := 0
	for _, s := range d.seasonalities {
		n += 2 * s.order
	}
	return n
}

func (d *DecompositionModel) seasonalMatrix(times []time.Time) *mat.Dense {
	x := mat.NewDense(len(times), d.seasonalCols(), nil)
	for i, ts := range times {
		x.SetRow(i, d.fourier(ts))
	}
	return x
}

func (d *DecompositionModel) seasonalPenalty() []float64 {
	p := make([]float64, d.seasonalCols())
	w := 1 / (d.cfg.SeasonalityPriorScale * d.cfg.SeasonalityPriorScale)
	for i := range p {
		p[i] = w
	}
	return p
}

// fourier evaluates the seasonal features at ts, measured in days since the
// Unix epoch so that phases do not depend on the training window.
func (d *DecompositionModel) fourier(ts time.Time) []float64 {
	days := float64(ts.Unix()) / secondsPerDay
	out := make([]float64, 0, d.seasonalCols())
	for _, s := range d.seasonalities {
		for k := 1; k <= s.order; k++ {
			phase := 2 * math.Pi * float64(k) * days / s.periodDays
			out = append(out, math.Sin(phase), math.Cos(phase))
		}
	}
	return out
}

// placeChangepoints spreads n candidate changepoints uniformly over the
// first frac of the (sorted, scaled) time axis, excluding the first point.
func placeChangepoints(t []float64, n int, frac float64) []float64 {
	histSize := int(math.Floor(float64(len(t)) * frac))
	if n+1 > histSize {
		n = histSize - 1
	}
	if n <= 0 {
		return nil
	}

	cps := make([]float64, 0, n)
	step := float64(histSize-1) / float64(n)
	for i := 1; i <= n; i++ {
		idx := int(math.RoundToEven(step * float64(i)))
		cps = append(cps, t[idx])
	}
	return cps
}

// ridgeSolve minimizes ||y - X b||^2 + sum(penalty[j] * b[j]^2) by solving
// the augmented least squares system [X; sqrt(P)] b = [y; 0].
func ridgeSolve(x *mat.Dense, y, penalty []float64) ([]float64, error) {
	rows, cols := x.Dims()
	if len(penalty) != cols {
		return nil, fmt.Errorf("penalty has %d entries for %d columns", len(penalty), cols)
	}

	aug := mat.NewDense(rows+cols, cols, nil)
	aug.Slice(0, rows, 0, cols).(*mat.Dense).Copy(x)
	for j, p := range penalty {
		aug.Set(rows+j, j, math.Sqrt(p))
	}

	rhs := mat.NewVecDense(rows+cols, nil)
	for i, v := range y {
		rhs.SetVec(i, v)
	}

	var b mat.VecDense
	if err := b.SolveVec(aug, rhs); err != nil {
		return nil, err
	}

	out := make([]float64, cols)
	for j := range out {
		out[j] = b.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, fmt.Errorf("coefficient %d is not finite", j)
		}
	}
	return out, nil
}
