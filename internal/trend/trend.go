// Package trend fits a trend model to a window of samples and reports the
// fitted curve together with its slope at the newest sample.
//
// Time is measured in fractional days, so a model's raw derivative is in
// value per day. Fit.Slope is always converted to value per hour.
package trend

import (
	"math"
	"sort"

	"codeberg.org/mutker/thermotrend/internal/errors"
)

const HoursPerDay = 24

type Strategy string

const (
	Spline Strategy = "spline"
	Linear Strategy = "linear"
)

// Minimum number of distinct points each strategy needs.
const (
	minLinearPoints = 2
	minSplinePoints = splineDegree + 1
	splineDegree    = 3
)

// Model is a fitted curve over day-number time.
type Model interface {
	Value(t float64) float64
	// Slope returns the first derivative in value per day.
	Slope(t float64) float64
}

// Fit is the result of one trend fit.
type Fit struct {
	Strategy Strategy
	// Times and Values are the fitted curve evaluated on the fit grid.
	Times  []float64
	Values []float64
	// Value is the fitted value at the newest timestamp.
	Value float64
	// Slope is the first derivative at the newest timestamp, per hour.
	Slope float64
	Model Model
}

// Estimator fits windows with one strategy chosen at construction.
type Estimator struct {
	strategy  Strategy
	smoothing float64
}

// New returns an estimator. smoothing is the residual sum of squares budget
// of the spline strategy; zero interpolates. It is ignored by Linear.
func New(strategy Strategy, smoothing float64) (*Estimator, error) {
	errFactory := errors.New()

	switch strategy {
	case Spline, Linear:
	default:
		return nil, errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value string
		}{
			Field: "strategy",
			Value: string(strategy),
		})
	}
	if smoothing < 0 || math.IsNaN(smoothing) || math.IsInf(smoothing, 0) {
		return nil, errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value float64
		}{
			Field: "smoothing",
			Value: smoothing,
		})
	}

	return &Estimator{strategy: strategy, smoothing: smoothing}, nil
}

func (e *Estimator) Strategy() Strategy {
	return e.strategy
}

// Fit fits the configured model to the window. It returns a complete Fit or
// an error, never both.
func (e *Estimator) Fit(times, values []float64) (*Fit, error) {
	errFactory := errors.New()

	if len(times) != len(values) {
		return nil, errFactory.WithData(errors.ErrShapeMismatch, struct {
			Timestamps int
			Values     int
		}{
			Timestamps: len(times),
			Values:     len(values),
		})
	}

	required := minLinearPoints
	if e.strategy == Spline {
		required = minSplinePoints
	}
	if len(times) < required {
		return nil, insufficient(len(times), required)
	}

	lo, hi := span(times)
	if hi-lo == 0 {
		return nil, errFactory.WithData(errors.ErrDegenerateWindow, struct {
			Points int
			Time   float64
		}{
			Points: len(times),
			Time:   hi,
		})
	}

	ts, vs := mergeDuplicates(times, values)
	if len(ts) < required {
		return nil, insufficient(len(ts), required)
	}

	var model Model
	switch e.strategy {
	case Linear:
		model = fitLinear(ts, vs)
	case Spline:
		model = fitSpline(ts, vs, e.smoothing)
	}

	latest := ts[len(ts)-1]
	fit := &Fit{
		Strategy: e.strategy,
		Times:    ts,
		Values:   make([]float64, len(ts)),
		Value:    model.Value(latest),
		Slope:    model.Slope(latest) / HoursPerDay,
		Model:    model,
	}
	for i, t := range ts {
		fit.Values[i] = model.Value(t)
	}

	return fit, nil
}

func insufficient(points, required int) error {
	return errors.New().WithData(errors.ErrInsufficientData, struct {
		Points   int
		Required int
	}{
		Points:   points,
		Required: required,
	})
}

func span(times []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, t := range times {
		lo = math.Min(lo, t)
		hi = math.Max(hi, t)
	}

	return lo, hi
}

// mergeDuplicates returns time-sorted copies of the inputs with samples that
// share a timestamp replaced by their mean.
func mergeDuplicates(times, values []float64) ([]float64, []float64) {
	idx := make([]int, len(times))
	for i := range idx {
		idx[i] = i
	}
	if !sort.Float64sAreSorted(times) {
		sort.SliceStable(idx, func(a, b int) bool {
			return times[idx[a]] < times[idx[b]]
		})
	}

	ts := make([]float64, 0, len(times))
	vs := make([]float64, 0, len(values))
	count := 0
	for _, i := range idx {
		if n := len(ts); n > 0 && ts[n-1] == times[i] {
			count++
			vs[n-1] += (values[i] - vs[n-1]) / float64(count)
			continue
		}
		ts = append(ts, times[i])
		vs = append(vs, values[i])
		count = 1
	}

	return ts, vs
}
