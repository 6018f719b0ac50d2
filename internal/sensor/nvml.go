package sensor

import (
	"context"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlController abstracts NVML operations for testing
type nvmlController interface {
	Initialize() error
	Shutdown() error
	GetDevice(index int) (temperatureDevice, error)
}

// temperatureDevice is the part of nvml.Device the sensor reads.
type temperatureDevice interface {
	GetTemperature(sensor nvml.TemperatureSensors) (uint32, nvml.Return)
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	errFactory := errors.New()
	if w.initialized {
		return nil
	}

	ret := nvml.Init()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	errFactory := errors.New()
	if !w.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	w.initialized = false

	return nil
}

func (w *nvmlWrapper) GetDevice(index int) (temperatureDevice, error) {
	errFactory := errors.New()
	if !w.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrNoDevice, newNVMLError(ret))
	}

	return device, nil
}

// NVML reads the core temperature of an NVIDIA GPU.
type NVML struct {
	ctrl   nvmlController
	device temperatureDevice
}

func NewNVML(index int) (*NVML, error) {
	return newNVML(&nvmlWrapper{}, index)
}

func newNVML(ctrl nvmlController, index int) (*NVML, error) {
	if err := ctrl.Initialize(); err != nil {
		return nil, err
	}

	device, err := ctrl.GetDevice(index)
	if err != nil {
		ctrl.Shutdown()
		return nil, err
	}

	return &NVML{ctrl: ctrl, device: device}, nil
}

func (s *NVML) Read(ctx context.Context) (float64, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return 0, errFactory.Wrap(ErrReadFailed, err)
	}

	temp, ret := s.device.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrReadFailed, newNVMLError(ret))
	}

	return float64(temp), nil
}

func (s *NVML) Close() error {
	return s.ctrl.Shutdown()
}
