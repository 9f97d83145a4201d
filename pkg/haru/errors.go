package haru

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure category. ErrSensor is the root of the
// taxonomy: every error produced by this package matches it, so callers
// can catch broadly with errors.Is(err, ErrSensor) or specifically with
// one of the category sentinels.
var (
	ErrSensor          = errors.New("sensor error")
	ErrLibraryNotFound = errors.New("library not found")
	ErrInitialization  = errors.New("initialization failed")
	ErrScan            = errors.New("scan failed")
	ErrConnection      = errors.New("connection failed")
	ErrMeasurement     = errors.New("measurement failed")
)

// SensorError is the concrete error type carrying the failure category,
// a message and, when the driver reported one, its raw status code.
type SensorError struct {
	Kind    error // one of the category sentinels above
	Message string
	Code    int // driver status code, 0 when not applicable
}

// Error implements the error interface.
func (e *SensorError) Error() string {
	return e.Message
}

// Unwrap makes errors.Is match both the category sentinel and ErrSensor.
func (e *SensorError) Unwrap() []error {
	return []error{e.Kind, ErrSensor}
}

// NewSensorError builds a SensorError of the given kind. It exists for
// Transport implementations; session code uses the internal helpers.
func NewSensorError(kind error, message string) *SensorError {
	return &SensorError{Kind: kind, Message: message}
}

func newError(kind error, format string, args ...interface{}) *SensorError {
	return &SensorError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func newCodeError(kind error, code int, format string, args ...interface{}) *SensorError {
	return &SensorError{Kind: kind, Message: fmt.Sprintf(format, args...), Code: code}
}
