package sensor

import (
	"context"
	"math"
	"time"
)

// Sim is a synthetic sensor: a linear drift with a slow oscillation on top.
// It stands in for hardware during development and in tests.
type Sim struct {
	start     time.Time
	base      float64
	perHour   float64
	amplitude float64
	period    time.Duration
	now       func() time.Time
}

type SimOption func(*Sim)

// WithDrift sets the linear drift in degrees Celsius per hour.
func WithDrift(perHour float64) SimOption {
	return func(s *Sim) { s.perHour = perHour }
}

// WithOscillation adds a sine of the given amplitude and period.
func WithOscillation(amplitude float64, period time.Duration) SimOption {
	return func(s *Sim) {
		s.amplitude = amplitude
		s.period = period
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SimOption {
	return func(s *Sim) { s.now = now }
}

func NewSim(base float64, opts ...SimOption) *Sim {
	s := &Sim{
		base:      base,
		amplitude: 1,
		period:    6 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.now()

	return s
}

func (s *Sim) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	elapsed := s.now().Sub(s.start)
	v := s.base + s.perHour*elapsed.Hours()
	if s.period > 0 {
		v += s.amplitude * math.Sin(2*math.Pi*elapsed.Seconds()/s.period.Seconds())
	}

	return v, nil
}

func (*Sim) Close() error {
	return nil
}
