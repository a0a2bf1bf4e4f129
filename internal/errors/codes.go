package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrMissingConfig ErrorCode = "missing_configuration"
	ErrBindFlags     ErrorCode = "bind_flags_failed"
	ErrReadConfig    ErrorCode = "read_config_failed"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Sensor errors
	ErrSensorNotFound ErrorCode = "sensor_not_found"
	ErrMalformedData  ErrorCode = "sensor_malformed_data"
	ErrSensorIO       ErrorCode = "sensor_io_failed"

	// Actuator errors
	ErrActuatorInit  ErrorCode = "actuator_init_failed"
	ErrActuatorWrite ErrorCode = "actuator_write_failed"

	// Tachometer errors
	ErrTachInit ErrorCode = "tach_init_failed"

	// Publish errors
	ErrPublishNetwork ErrorCode = "publish_network_failed"
	ErrPublishStatus  ErrorCode = "publish_status_failed"
	ErrPublishEncode  ErrorCode = "publish_encode_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrAlreadyRunning:  "Another instance is already running",
	ErrInvalidConfig:   "Invalid configuration",
	ErrMissingConfig:   "Missing configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrReadConfig:      "Failed to read config file",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInitFailed:      "Initialization failed",
	ErrShutdownFailed:  "Shutdown failed",
	ErrSensorNotFound:  "Temperature sensor not found",
	ErrMalformedData:   "Unexpected sensor data format",
	ErrSensorIO:        "Failed to read temperature sensor",
	ErrActuatorInit:    "Failed to initialize PWM",
	ErrActuatorWrite:   "Failed to set duty cycle",
	ErrTachInit:        "Failed to initialize tachometer input",
	ErrPublishNetwork:  "Failed to reach metrics endpoint",
	ErrPublishStatus:   "Metrics endpoint returned an error status",
	ErrPublishEncode:   "Failed to encode metric",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
