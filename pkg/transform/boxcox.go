// Package transform implements the variance-stabilizing Box-Cox power
// transform used before per-entity model fitting.
//
// The exponent (lambda) is estimated once over a whole value column by
// maximizing the Box-Cox profile log-likelihood. The fitted BoxCox value is
// immutable and must be passed explicitly to the inverse step:
//
//	bc, transformed, err := transform.Fit(values)
//	...
//	original, err := bc.Inverse(forecast)
package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// ZeroEpsilon replaces exact zeros so that the transform is defined.
const ZeroEpsilon = 1e-7

// ErrTransform matches every *Error through errors.Is.
var ErrTransform = errors.New("transform error")

// Error reports a series that cannot be power transformed.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("box-cox: %s: %v", e.Reason, e.Err)
	}
	return "box-cox: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransform }

// BoxCox is a fitted one-parameter power transform.
type BoxCox struct {
	Lambda float64
}

// NudgeZeros replaces exact zeros in values with ZeroEpsilon, in place, and
// returns how many values were replaced.
func NudgeZeros(values []float64) int {
	n := 0
	for i, v := range values {
		if v == 0 {
			values[i] = ZeroEpsilon
			n++
		}
	}
	return n
}

// Fit estimates lambda from values and returns the fitted transform together
// with the transformed values. values is not modified. All values must be
// strictly positive and finite, and at least two of them must differ.
func Fit(values []float64) (BoxCox, []float64, error) {
	if len(values) < 2 {
		return BoxCox{}, nil, &Error{Reason: fmt.Sprintf("need at least 2 values, got %d", len(values))}
	}

	logs := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BoxCox{}, nil, &Error{Reason: fmt.Sprintf("value %d is not finite", i)}
		}
		if v <= 0 {
			return BoxCox{}, nil, &Error{Reason: fmt.Sprintf("value %d is not positive (%g)", i, v)}
		}
		logs[i] = math.Log(v)
	}
	if floats.Max(values) == floats.Min(values) {
		return BoxCox{}, nil, &Error{Reason: "all values are identical"}
	}

	sumLog := floats.Sum(logs)
	n := float64(len(values))
	buf := make([]float64, len(values))

	// Negative profile log-likelihood; the variance uses the n-1 denominator,
	// which only shifts the objective by a constant.
	nll := func(x []float64) float64 {
		lambda := x[0]
		for i, lv := range logs {
			buf[i] = forwardLog(lv, lambda)
		}
		variance := stat.Variance(buf, nil)
		if !(variance > 0) || math.IsInf(variance, 0) {
			return math.Inf(1)
		}
		return -((lambda-1)*sumLog - n/2*math.Log(variance))
	}

	result, err := optimize.Minimize(optimize.Problem{Func: nll}, []float64{0}, nil, &optimize.NelderMead{})
	if err != nil {
		return BoxCox{}, nil, &Error{Reason: "lambda search did not converge", Err: err}
	}
	lambda := result.X[0]
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) || math.IsInf(result.F, 0) {
		return BoxCox{}, nil, &Error{Reason: "lambda search produced a non-finite estimate"}
	}

	bc := BoxCox{Lambda: lambda}
	return bc, bc.ForwardAll(values), nil
}

// Forward transforms a single strictly positive value. It returns NaN for
// x <= 0.
func (b BoxCox) Forward(x float64) float64 {
	if x <= 0 {
		return math.NaN()
	}
	return forwardLog(math.Log(x), b.Lambda)
}

// ForwardAll transforms every value into a new slice.
func (b BoxCox) ForwardAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = b.Forward(v)
	}
	return out
}

// Inverse maps a transformed value back to the original scale. Values
// outside the range of the forward transform (lambda*y + 1 <= 0) have no
// preimage and yield an error instead of NaN.
func (b BoxCox) Inverse(y float64) (float64, error) {
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("inverse box-cox of non-finite value %g", y)
	}
	if b.Lambda == 0 {
		return math.Exp(y), nil
	}
	base := b.Lambda*y + 1
	if base <= 0 {
		return 0, fmt.Errorf("inverse box-cox undefined for %g with lambda %g", y, b.Lambda)
	}
	x := math.Exp(math.Log1p(b.Lambda*y) / b.Lambda)
	if math.IsInf(x, 0) {
		return 0, fmt.Errorf("inverse box-cox of %g overflows with lambda %g", y, b.Lambda)
	}
	return x, nil
}

// InverseAll applies Inverse to every value and fails on the first value
// without a preimage.
func (b BoxCox) InverseAll(values []float64) ([]float64, error) {
	out := make([]float64, len(values))
	for i, y := range values {
		x, err := b.Inverse(y)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = x
	}
	return out, nil
}

// forwardLog computes the transform from log(x); expm1 keeps precision for
// lambda close to zero.
func forwardLog(logx, lambda float64) float64 {
	if lambda == 0 {
		return logx
	}
	return math.Expm1(lambda*logx) / lambda
}
