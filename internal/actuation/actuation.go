// Package actuation maps a trend slope onto the duty cycles of two
// mutually exclusive indicator channels.
package actuation

import (
	"math"

	"codeberg.org/mutker/thermotrend/internal/errors"
)

// Sign selects the channel driven by a slope.
type Sign int

const (
	Negative Sign = iota
	Positive
)

func (s Sign) String() string {
	if s == Positive {
		return "positive"
	}

	return "negative"
}

// Output is one actuation decision. Intensity is in [0, 1].
type Output struct {
	Channel   Sign
	Intensity float64
}

// Duties returns the positive and negative channel duty cycles. At most one
// of them is non-zero.
func (o Output) Duties() (positive, negative float64) {
	if o.Channel == Positive {
		return o.Intensity, 0
	}

	return 0, o.Intensity
}

// Mapper applies a dead band and a saturation point, both in slope units
// per hour.
type Mapper struct {
	deadBand   float64
	saturation float64
}

// New fails unless 0 <= deadBand < saturation.
func New(deadBand, saturation float64) (Mapper, error) {
	if deadBand < 0 || !(deadBand < saturation) || math.IsInf(saturation, 0) {
		return Mapper{}, errors.New().WithData(errors.ErrInvalidConfig, struct {
			DeadBand   float64
			Saturation float64
		}{
			DeadBand:   deadBand,
			Saturation: saturation,
		})
	}

	return Mapper{deadBand: deadBand, saturation: saturation}, nil
}

func (m Mapper) DeadBand() float64   { return m.deadBand }
func (m Mapper) Saturation() float64 { return m.saturation }

// Map converts a slope to a channel and intensity. A zero or NaN slope
// yields zero intensity.
func (m Mapper) Map(slope float64) Output {
	out := Output{Channel: Negative}
	if slope > 0 {
		out.Channel = Positive
	}
	if math.IsNaN(slope) {
		return out
	}

	intensity := (math.Abs(slope) - m.deadBand) / (m.saturation - m.deadBand)
	out.Intensity = math.Max(0, math.Min(1, intensity))

	return out
}
