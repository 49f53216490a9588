package driver

import "fmt"

// ConfigError is a custom error type for configuration errors: values rejected
// before the hardware is touched
type ConfigError struct {
	err error
}

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{fmt.Errorf(format, args...)}
}

func (e *ConfigError) Error() string {
	return e.err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.err
}

// RuntimeError is a custom error type for runtime errors reported by the driver or the radio
type RuntimeError struct {
	err error
}

func NewRuntimeError(format string, args ...any) *RuntimeError {
	return &RuntimeError{fmt.Errorf(format, args...)}
}

func (e *RuntimeError) Error() string {
	return e.err.Error()
}

func (e *RuntimeError) Unwrap() error {
	return e.err
}
