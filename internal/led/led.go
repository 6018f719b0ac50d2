// Package led drives the warming and cooling indicator LEDs.
package led

import (
	"sync"

	"codeberg.org/mutker/thermotrend/internal/actuation"
	"codeberg.org/mutker/thermotrend/internal/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	ErrHostInit = errors.ErrorCode("led_host_init_failed")
	ErrNoPin    = errors.ErrorCode("led_pin_not_found")
)

// PWM drives one pin per channel: warm for a rising trend, cool for a
// falling one. At most one pin is lit at a time.
type PWM struct {
	mu   sync.Mutex
	warm gpio.PinIO
	cool gpio.PinIO
	freq physic.Frequency
}

// Open initializes the host drivers and looks the pins up by name
// (e.g. "GPIO19").
func Open(warmPin, coolPin string, frequencyHz int) (*PWM, error) {
	errFactory := errors.New()

	if _, err := host.Init(); err != nil {
		return nil, errFactory.Wrap(ErrHostInit, err)
	}

	warm := gpioreg.ByName(warmPin)
	if warm == nil {
		return nil, errFactory.WithData(ErrNoPin, struct{ Pin string }{Pin: warmPin})
	}
	cool := gpioreg.ByName(coolPin)
	if cool == nil {
		return nil, errFactory.WithData(ErrNoPin, struct{ Pin string }{Pin: coolPin})
	}

	return New(warm, cool, physic.Frequency(frequencyHz)*physic.Hertz)
}

// New starts with both pins low.
func New(warm, cool gpio.PinIO, freq physic.Frequency) (*PWM, error) {
	errFactory := errors.New()

	p := &PWM{warm: warm, cool: cool, freq: freq}
	if err := warm.Out(gpio.Low); err != nil {
		return nil, errFactory.Wrap(errors.ErrActuator, err)
	}
	if err := cool.Out(gpio.Low); err != nil {
		return nil, errFactory.Wrap(errors.ErrActuator, err)
	}

	return p, nil
}

// Set applies an actuation decision to both pins.
func (p *PWM) Set(out actuation.Output) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	warmDuty, coolDuty := out.Duties()

	// Dim the outgoing channel first so both are never lit together.
	first, second := p.warm, p.cool
	firstDuty, secondDuty := warmDuty, coolDuty
	if out.Channel == actuation.Positive {
		first, second = p.cool, p.warm
		firstDuty, secondDuty = coolDuty, warmDuty
	}

	if err := p.drive(first, firstDuty); err != nil {
		return err
	}

	return p.drive(second, secondDuty)
}

func (p *PWM) drive(pin gpio.PinIO, duty float64) error {
	errFactory := errors.New()

	var err error
	switch {
	case duty <= 0:
		err = pin.Out(gpio.Low)
	case duty >= 1:
		err = pin.Out(gpio.High)
	default:
		err = pin.PWM(gpio.Duty(duty*float64(gpio.DutyMax)), p.freq)
	}
	if err != nil {
		return errFactory.Wrap(errors.ErrActuator, err)
	}

	return nil
}

// Close turns both LEDs off and releases the pins.
func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, pin := range []gpio.PinIO{p.warm, p.cool} {
		if err := pin.Out(gpio.Low); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := pin.Halt(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return errors.New().Wrap(errors.ErrCleanup, firstErr)
	}

	return nil
}

// Noop stands in for the LEDs when running without GPIO access.
type Noop struct{}

func (Noop) Set(actuation.Output) error { return nil }
func (Noop) Close() error               { return nil }
