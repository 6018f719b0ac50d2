package trend

import "gonum.org/v1/gonum/stat"

// linearModel is an ordinary least squares line. Times are centered on the
// newest sample to keep the intercept well conditioned for day numbers near
// twenty thousand.
type linearModel struct {
	origin    float64
	intercept float64
	slope     float64
}

func fitLinear(times, values []float64) *linearModel {
	origin := times[len(times)-1]

	xs := make([]float64, len(times))
	for i, t := range times {
		xs[i] = t - origin
	}

	alpha, beta := stat.LinearRegression(xs, values, nil, false)

	return &linearModel{origin: origin, intercept: alpha, slope: beta}
}

func (m *linearModel) Value(t float64) float64 {
	return m.intercept + m.slope*(t-m.origin)
}

func (m *linearModel) Slope(float64) float64 {
	return m.slope
}
