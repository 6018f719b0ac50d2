package sensor

import (
	"codeberg.org/mutker/thermotrend/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	// Discovery and lifecycle errors
	ErrNoDevice       = errors.ErrorCode("sensor_no_device")
	ErrOpenFailed     = errors.ErrorCode("sensor_open_failed")
	ErrInitFailed     = errors.ErrorCode("sensor_init_failed")
	ErrShutdownFailed = errors.ErrorCode("sensor_shutdown_failed")
	ErrNotInitialized = errors.ErrorCode("sensor_not_initialized")

	// Reading errors
	ErrReadFailed  = errors.ErrorCode("sensor_read_failed")
	ErrCRCFailed   = errors.ErrorCode("sensor_crc_failed")
	ErrParseFailed = errors.ErrorCode("sensor_parse_failed")
	ErrTimeout     = errors.ErrorCode("sensor_timeout")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
