// Package sensor provides the temperature sources the sampling loop reads.
// Every backend reports degrees Celsius; WithUnits converts for display.
package sensor

import (
	"context"
	"strings"
)

// Sensor is a blocking temperature source.
type Sensor interface {
	Read(ctx context.Context) (float64, error)
	Close() error
}

// CelsiusToFahrenheit converts a Celsius reading.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

type converted struct {
	Sensor
	convert func(float64) float64
}

func (c *converted) Read(ctx context.Context) (float64, error) {
	v, err := c.Sensor.Read(ctx)
	if err != nil {
		return 0, err
	}

	return c.convert(v), nil
}

// WithUnits wraps s so readings are reported in units ("F" or "C").
func WithUnits(s Sensor, units string) Sensor {
	if strings.EqualFold(units, "F") {
		return &converted{Sensor: s, convert: CelsiusToFahrenheit}
	}

	return s
}
