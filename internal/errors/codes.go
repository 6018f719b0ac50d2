package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Buffer errors
	ErrShapeMismatch    ErrorCode = "shape_mismatch"
	ErrCapacityMismatch ErrorCode = "capacity_mismatch"

	// Trend errors
	ErrInsufficientData ErrorCode = "insufficient_data"
	ErrDegenerateWindow ErrorCode = "degenerate_window"

	// Collaborator errors
	ErrSensorRead ErrorCode = "sensor_read_failed"
	ErrActuator   ErrorCode = "actuator_failed"
	ErrRender     ErrorCode = "render_failed"
	ErrPersist    ErrorCode = "persist_failed"
	ErrRestore    ErrorCode = "restore_failed"
	ErrPublish    ErrorCode = "publish_failed"

	// Application errors
	ErrInitApp   ErrorCode = "init_app_failed"
	ErrMainLoop  ErrorCode = "main_loop_failed"
	ErrCleanup   ErrorCode = "cleanup_failed"
	ErrServeHTTP ErrorCode = "serve_http_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"

	// Metrics errors
	ErrInitMetrics    ErrorCode = "init_metrics_failed"
	ErrCollectMetrics ErrorCode = "collect_metrics_failed"
	ErrCloseMetrics   ErrorCode = "close_metrics_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrNotImplemented:   "Operation not implemented",
	ErrInvalidConfig:    "Invalid configuration",
	ErrBindFlags:        "Failed to bind flags",
	ErrReadConfig:       "Failed to read config file",
	ErrInvalidInterval:  "Invalid interval value",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrShapeMismatch:    "Timestamp and value sequences differ in length",
	ErrCapacityMismatch: "Series length differs from buffer capacity",
	ErrInsufficientData: "Not enough samples to fit a trend",
	ErrDegenerateWindow: "Trend window has zero time span",
	ErrSensorRead:       "Failed to read sensor",
	ErrActuator:         "Failed to drive actuator",
	ErrRender:           "Failed to render plot",
	ErrPersist:          "Failed to persist snapshot",
	ErrRestore:          "Failed to restore snapshot",
	ErrPublish:          "Failed to publish trend report",
	ErrInitApp:          "Failed to initialize application",
	ErrMainLoop:         "Error in main loop",
	ErrCleanup:          "Failed to release actuator",
	ErrServeHTTP:        "Status server failed",
	ErrOperationFailed:  "Operation failed",
	ErrTimeout:          "Operation timed out",
	ErrInitMetrics:      "Failed to initialize metrics",
	ErrCollectMetrics:   "Failed to collect metrics data",
	ErrCloseMetrics:     "Failed to close metrics connection",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
