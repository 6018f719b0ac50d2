package trend

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	minLogPenalty = -20.0
	maxLogPenalty = 20.0
	bisectSteps   = 64

	// Bisection stops once the bracket is this narrow (in decades) or the
	// residual is within rssTolerance of the budget.
	logPenaltyTolerance = 1e-6
	rssTolerance        = 1e-6
)

// splineModel is a natural cubic spline over normalized time
// z = (t - origin) / scale, stored as knot values and second derivatives.
type splineModel struct {
	origin float64
	scale  float64
	z      []float64
	g      []float64
	m      []float64
}

// fitSpline fits a cubic smoothing spline whose residual sum of squares is
// as close to smoothing as possible without exceeding it. When a straight
// line already meets the budget the line is returned.
func fitSpline(times, values []float64, smoothing float64) Model {
	n := len(times)
	origin := times[n-1]
	scale := times[n-1] - times[0]

	if smoothing > 0 {
		line := fitLinear(times, values)
		if residuals(line, times, values) <= smoothing {
			return line
		}
	}

	z := make([]float64, n)
	for i, t := range times {
		z[i] = (t - origin) / scale
	}
	p := newPenalty(z, values)

	if smoothing == 0 {
		if s, ok := p.spline(0); ok {
			s.origin, s.scale = origin, scale
			return s
		}
		return fitLinear(times, values)
	}

	s, ok := p.spline(p.bisect(smoothing))
	if !ok {
		return fitLinear(times, values)
	}
	s.origin, s.scale = origin, scale

	return s
}

// bisect searches log10(alpha) for the largest penalty whose residual sum of
// squares stays within smoothing.
func (p *penalty) bisect(smoothing float64) float64 {
	lo, hi := minLogPenalty, maxLogPenalty
	for i := 0; i < bisectSteps && hi-lo > logPenaltyTolerance; i++ {
		mid := (lo + hi) / 2
		rss := p.rss(math.Pow(10, mid))
		if rss > smoothing {
			hi = mid
			continue
		}
		lo = mid
		if smoothing-rss <= rssTolerance*smoothing {
			break
		}
	}

	return math.Pow(10, lo)
}

func residuals(m Model, times, values []float64) float64 {
	var sum float64
	for i, t := range times {
		d := values[i] - m.Value(t)
		sum += d * d
	}

	return sum
}

// penalty holds the banded Reinsch system for one set of knots. Column j of
// Q has a[j], b[j], c[j] in rows j, j+1, j+2. The band matrix, the right hand
// side and the solution are allocated once and reused by every solve.
type penalty struct {
	z, h, a, b, c []float64
	y             []float64

	band  *mat.SymBandDense
	rhs   *mat.VecDense
	sol   *mat.VecDense
	chol  mat.BandCholesky
	gamma []float64
	qg    []float64

	solves int
}

func newPenalty(z, y []float64) *penalty {
	n := len(z)
	m := n - 2
	k := 2
	if m-1 < k {
		k = m - 1
	}

	p := &penalty{
		z:     z,
		h:     make([]float64, n-1),
		a:     make([]float64, m),
		b:     make([]float64, m),
		c:     make([]float64, m),
		y:     y,
		band:  mat.NewSymBandDense(m, k, nil),
		rhs:   mat.NewVecDense(m, nil),
		sol:   mat.NewVecDense(m, nil),
		gamma: make([]float64, m),
		qg:    make([]float64, n),
	}
	for i := range p.h {
		p.h[i] = z[i+1] - z[i]
	}
	for j := range p.a {
		p.a[j] = 1 / p.h[j]
		p.c[j] = 1 / p.h[j+1]
		p.b[j] = -(p.a[j] + p.c[j])
		p.rhs.SetVec(j, p.a[j]*y[j]+p.b[j]*y[j+1]+p.c[j]*y[j+2])
	}

	return p
}

// solve computes gamma, the interior second derivatives, and Q*gamma for
// the penalty weight alpha. The returned slices are owned by p and are
// overwritten by the next solve.
func (p *penalty) solve(alpha float64) (gamma, qg []float64, ok bool) {
	p.solves++

	m := len(p.a)
	for j := 0; j < m; j++ {
		p.band.SetSymBand(j, j, (p.h[j]+p.h[j+1])/3+alpha*(p.a[j]*p.a[j]+p.b[j]*p.b[j]+p.c[j]*p.c[j]))
		if j+1 < m {
			p.band.SetSymBand(j, j+1, p.h[j+1]/6+alpha*(p.b[j]*p.a[j+1]+p.c[j]*p.b[j+1]))
		}
		if j+2 < m {
			p.band.SetSymBand(j, j+2, alpha*p.c[j]*p.a[j+2])
		}
	}

	if !p.chol.Factorize(p.band) {
		return nil, nil, false
	}
	if err := p.chol.SolveVecTo(p.sol, p.rhs); err != nil {
		return nil, nil, false
	}

	for j := range p.gamma {
		p.gamma[j] = p.sol.AtVec(j)
	}
	for i := range p.qg {
		p.qg[i] = 0
	}
	for j, v := range p.gamma {
		p.qg[j] += p.a[j] * v
		p.qg[j+1] += p.b[j] * v
		p.qg[j+2] += p.c[j] * v
	}

	return p.gamma, p.qg, true
}

// rss is the residual sum of squares of the spline for alpha.
func (p *penalty) rss(alpha float64) float64 {
	_, qg, ok := p.solve(alpha)
	if !ok {
		return math.Inf(1)
	}

	var sum float64
	for _, v := range qg {
		sum += v * v
	}

	return alpha * alpha * sum
}

func (p *penalty) spline(alpha float64) (*splineModel, bool) {
	gamma, qg, ok := p.solve(alpha)
	if !ok {
		return nil, false
	}

	n := len(p.y)
	s := &splineModel{
		z: p.z,
		g: make([]float64, n),
		m: make([]float64, n),
	}
	for i := range s.g {
		s.g[i] = p.y[i] - alpha*qg[i]
	}
	copy(s.m[1:n-1], gamma)

	return s, true
}

func (s *splineModel) Value(t float64) float64 {
	v, _ := s.eval((t - s.origin) / s.scale)
	return v
}

func (s *splineModel) Slope(t float64) float64 {
	_, d := s.eval((t - s.origin) / s.scale)
	return d / s.scale
}

// eval returns the spline value and its derivative with respect to z. The
// spline continues linearly outside the knots.
func (s *splineModel) eval(z float64) (value, deriv float64) {
	n := len(s.z)
	if z < s.z[0] {
		v, d := s.eval(s.z[0])
		return v + d*(z-s.z[0]), d
	}
	if z > s.z[n-1] {
		v, d := s.eval(s.z[n-1])
		return v + d*(z-s.z[n-1]), d
	}

	i := sort.SearchFloat64s(s.z, z) - 1
	if i < 0 {
		i = 0
	}
	if i > n-2 {
		i = n - 2
	}

	h := s.z[i+1] - s.z[i]
	a := s.z[i+1] - z
	b := z - s.z[i]
	mi, mj := s.m[i], s.m[i+1]
	ci := s.g[i]/h - mi*h/6
	cj := s.g[i+1]/h - mj*h/6

	value = mi*a*a*a/(6*h) + mj*b*b*b/(6*h) + ci*a + cj*b
	deriv = -mi*a*a/(2*h) + mj*b*b/(2*h) - ci + cj

	return value, deriv
}
