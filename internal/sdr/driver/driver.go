// Package driver is the boundary between device controllers and the radio
// hardware. A Driver talks to one physical radio; Process implements it over
// the vendor command line tools.
package driver

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotOpen      = errors.New("driver not open")
	ErrBusy         = errors.New("device is busy")
	ErrNotStreaming = errors.New("stream not started")
	ErrStreamEnded  = errors.New("stream ended")
)

// RecvCode classifies the outcome of a Read.
type RecvCode int

const (
	RecvOK       RecvCode = iota
	RecvTimeout           // no samples arrived within the timeout, retry
	RecvOverflow          // samples were dropped before this block; the block is valid
	RecvError             // the stream failed
)

func (c RecvCode) String() string {
	switch c {
	case RecvOK:
		return "ok"
	case RecvTimeout:
		return "timeout"
	case RecvOverflow:
		return "overflow"
	case RecvError:
		return "error"
	}
	return "unknown"
}

// Info identifies an opened radio.
type Info struct {
	Driver  string `json:"driver"`  // e.g. "usrp"
	Serial  string `json:"serial"`  // Serial requested on Open, may be empty
	Runtime string `json:"runtime"` // Path of the streaming tool
	Args    string `json:"args"`    // Arguments of the current or next stream
}

// Driver is the hardware boundary used by hardware.Controller. Values passed to
// setters have already been validated against the device limits.
type Driver interface {
	Open(serial string) error
	Close() error
	Info() Info
	NumChannels() int

	SetClockSource(source string) error
	SetTimeSource(source string) error
	ClockSource() string
	TimeSource() string

	SetFrequency(hz float64, channel int) error
	SetSampleRate(sps float64, channel int) error
	SetGain(db float64, channel int) error
	SetBandwidth(hz float64, channel int) error
	SetAntenna(name string, channel int) error

	Frequency(channel int) float64
	SampleRate(channel int) float64
	Gain(channel int) float64
	Bandwidth(channel int) float64
	Antenna(channel int) string

	// StartStream begins sample delivery; the stream stops when ctx is cancelled
	// or StopStream is called.
	StartStream(ctx context.Context) error

	// Read fills buf with up to len(buf) samples, waiting at most timeout.
	Read(buf []complex64, timeout time.Duration) (int, RecvCode, error)

	StopStream() error
}
