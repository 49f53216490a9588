package sdr

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUnsupportedDevice  = errors.New("unsupported device type")
	ErrDuplicateDevice    = errors.New("device type already registered")
	ErrNilFactory         = errors.New("cannot register device with nil factory")
	ErrInitialize         = errors.New("device initialization failed")
	ErrNotInitialized     = errors.New("device not initialized")
	ErrAlreadyInitialized = errors.New("device already initialized")
	ErrAlreadyReceiving   = errors.New("already receiving")
	ErrOutOfRange         = errors.New("value out of range")
	ErrInvalidChannel     = errors.New("invalid channel")
	ErrInvalidAntenna     = errors.New("invalid antenna")
	ErrInvalidBufferSize  = errors.New("invalid buffer size")

	// ErrOverflow is returned by a ReadFunc when samples were dropped before the batch;
	// the batch itself is still delivered
	ErrOverflow = errors.New("receive overflow")

	// ErrTimeout is returned by a ReadFunc when no samples arrived in time; the read is retried
	ErrTimeout = errors.New("receive timeout")

	// ErrTooManyStreamErrors is returned when the number of consecutive stream errors exceeds the threshold
	ErrTooManyStreamErrors = errors.New("too many consecutive stream errors")
)

// PartialConfigError reports configuration parameters that could not be applied
// to an otherwise usable device.
type PartialConfigError struct {
	DeviceType string
	Errs       []error
}

func (e *PartialConfigError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: some parameters could not be set: %s", e.DeviceType, strings.Join(msgs, "; "))
}

func (e *PartialConfigError) Unwrap() []error {
	return e.Errs
}

// ErrorState keeps the last error message of a device. The zero value is ready to use.
type ErrorState struct {
	mu   sync.Mutex
	last string
}

// Fail records err and returns false, so setters can `return d.errs.Fail(err)`.
func (e *ErrorState) Fail(err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.last = err.Error()
	}
	return false
}

func (e *ErrorState) Set(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = msg
}

func (e *ErrorState) Last() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *ErrorState) Clear() {
	e.Set("")
}
