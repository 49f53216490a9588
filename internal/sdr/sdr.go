package sdr

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	DefaultFrequency   = 100e6
	DefaultSampleRate  = 1e6
	DefaultGain        = 20.0
	DefaultClockSource = "internal"
	DefaultTimeSource  = "internal"
	DefaultBufferSize  = 4096
	DefaultBufferCount = 64
)

// SampleCallback receives one batch of samples on the acquisition goroutine.
// The slice is reused for the next batch; callbacks must copy what they keep and return quickly.
type SampleCallback func(samples []complex64)

// Device is an acquisition backend: a synthetic generator or a hardware radio.
//
// Setters validate against Capabilities and return false on failure without changing
// state; the reason is available from LastError. Channel selects the receive channel
// on multichannel devices.
type Device interface {
	Initialize(cfg Config) bool
	Shutdown()
	IsInitialized() bool

	// StartReceiving spawns the acquisition goroutine which invokes cb for every batch
	// of at most bufferSize samples. StopReceiving joins it; no callback runs after it returns.
	StartReceiving(cb SampleCallback, bufferSize int) bool
	StopReceiving()
	IsReceiving() bool

	SetFrequency(hz float64, channel int) bool
	SetSampleRate(sps float64, channel int) bool
	SetGain(db float64, channel int) bool
	SetBandwidth(hz float64, channel int) bool
	SetAntenna(name string, channel int) bool
	SetClockSource(source string) bool
	SetTimeSource(source string) bool

	Frequency(channel int) float64
	SampleRate(channel int) float64
	Gain(channel int) float64
	Bandwidth(channel int) float64
	Antenna(channel int) string

	DeviceType() string
	SerialNumber() string
	DeviceInfo() string
	Capabilities() Capabilities

	Status() Status
	TotalSamplesReceived() uint64
	OverflowCount() uint64

	LastError() string
	ClearError()
}

// Config is the device configuration applied on creation.
type Config struct {
	DeviceType string `yaml:"type" json:"type"`     // Registry name, e.g. "simulation", "usrp"
	Serial     string `yaml:"serial" json:"serial"` // Serial number, empty selects the first device

	Frequency  Hertz   `yaml:"frequency" json:"frequency"`   // Centre frequency, 0 keeps the device default
	SampleRate Hertz   `yaml:"sampleRate" json:"sampleRate"` // Samples per second, 0 keeps the device default
	Gain       float64 `yaml:"gain" json:"gain"`             // dB, negative keeps the device default
	Bandwidth  Hertz   `yaml:"bandwidth" json:"bandwidth"`   // Analog bandwidth, 0 follows the sample rate
	Antenna    string  `yaml:"antenna" json:"antenna"`       // Antenna port, empty keeps the device default

	ClockSource string `yaml:"clockSource" json:"clockSource"`
	TimeSource  string `yaml:"timeSource" json:"timeSource"`
	Channel     int    `yaml:"channel" json:"channel"`

	BufferSize  int `yaml:"bufferSize" json:"bufferSize"`   // Samples per callback batch
	BufferCount int `yaml:"bufferCount" json:"bufferCount"` // Driver side buffer count
}

// DefaultConfig returns 100 MHz, 1 MS/s, 20 dB with internal clock and time sources.
func DefaultConfig() Config {
	return Config{
		Frequency:   DefaultFrequency,
		SampleRate:  DefaultSampleRate,
		Gain:        DefaultGain,
		ClockSource: DefaultClockSource,
		TimeSource:  DefaultTimeSource,
		BufferSize:  DefaultBufferSize,
		BufferCount: DefaultBufferCount,
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DeviceType) == "" {
		return fmt.Errorf("sdr.Config: device type is required")
	}
	if c.Frequency < 0 {
		return fmt.Errorf("sdr.Config: frequency must not be negative: %s", c.Frequency)
	}
	if c.SampleRate < 0 {
		return fmt.Errorf("sdr.Config: sample rate must not be negative: %s", c.SampleRate)
	}
	if c.Bandwidth < 0 {
		return fmt.Errorf("sdr.Config: bandwidth must not be negative: %s", c.Bandwidth)
	}
	if c.Channel < 0 {
		return fmt.Errorf("sdr.Config: channel must not be negative: %d", c.Channel)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("sdr.Config: buffer size must be positive: %d", c.BufferSize)
	}
	if c.BufferCount < 0 {
		return fmt.Errorf("sdr.Config: buffer count must not be negative: %d", c.BufferCount)
	}
	return nil
}

// Capabilities describes the static hardware limits of a device.
type Capabilities struct {
	MinFrequency  float64 `json:"minFrequency"`
	MaxFrequency  float64 `json:"maxFrequency"`
	MinSampleRate float64 `json:"minSampleRate"`
	MaxSampleRate float64 `json:"maxSampleRate"`
	MinGain       float64 `json:"minGain"`
	MaxGain       float64 `json:"maxGain"`
	MaxBandwidth  float64 `json:"maxBandwidth"` // 0 means limited by MaxSampleRate

	AdjustableBandwidth  bool `json:"adjustableBandwidth"`
	BiasTee              bool `json:"biasTee"`
	ClockSourceSelection bool `json:"clockSourceSelection"`

	NumChannels int      `json:"numChannels"`
	Antennas    []string `json:"antennas"`
}

func (c Capabilities) ValidateFrequency(hz float64) error {
	if hz < c.MinFrequency || hz > c.MaxFrequency {
		return fmt.Errorf("%w: frequency %s not in [%s, %s]", ErrOutOfRange,
			FormatHertz(hz), FormatHertz(c.MinFrequency), FormatHertz(c.MaxFrequency))
	}
	return nil
}

func (c Capabilities) ValidateSampleRate(sps float64) error {
	if sps < c.MinSampleRate || sps > c.MaxSampleRate {
		return fmt.Errorf("%w: sample rate %s not in [%s, %s]", ErrOutOfRange,
			FormatRate(sps), FormatRate(c.MinSampleRate), FormatRate(c.MaxSampleRate))
	}
	return nil
}

func (c Capabilities) ValidateGain(db float64) error {
	if db < c.MinGain || db > c.MaxGain {
		return fmt.Errorf("%w: gain %.1f dB not in [%.1f, %.1f]", ErrOutOfRange, db, c.MinGain, c.MaxGain)
	}
	return nil
}

// ValidateBandwidth accepts 0 < hz <= MaxBandwidth, or MaxSampleRate when MaxBandwidth is unset.
func (c Capabilities) ValidateBandwidth(hz float64) error {
	limit := c.MaxBandwidth
	if limit == 0 {
		limit = c.MaxSampleRate
	}
	if hz <= 0 || hz > limit {
		return fmt.Errorf("%w: bandwidth %s not in (0, %s]", ErrOutOfRange, FormatHertz(hz), FormatHertz(limit))
	}
	return nil
}

func (c Capabilities) ValidateChannel(channel int) error {
	if channel < 0 || channel >= max(c.NumChannels, 1) {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return nil
}

func (c Capabilities) ValidateAntenna(name string) error {
	if !slices.Contains(c.Antennas, name) {
		return fmt.Errorf("%w: %q, available: %s", ErrInvalidAntenna, name, strings.Join(c.Antennas, ", "))
	}
	return nil
}

// Status is a point-in-time view of a device, built on every query.
type Status struct {
	Initialized bool `json:"initialized"`
	Receiving   bool `json:"receiving"`
	HasOverflow bool `json:"hasOverflow"`

	Frequency  float64 `json:"frequency"`
	SampleRate float64 `json:"sampleRate"`
	Gain       float64 `json:"gain"`
	Bandwidth  float64 `json:"bandwidth"`

	SamplesReceived uint64  `json:"samplesReceived"`
	OverflowCount   uint64  `json:"overflowCount"`
	ReceptionRate   float64 `json:"receptionRate"` // Received vs expected samples, percent

	Details string `json:"details"` // Device specific status text
}

func (s Status) String() string {
	state := "idle"
	switch {
	case !s.Initialized:
		state = "not initialized"
	case s.Receiving:
		state = "receiving"
	}

	out := fmt.Sprintf("%s %s @ %s, %.1f dB, %s samples, %s overflows",
		state,
		FormatHertz(s.Frequency),
		FormatRate(s.SampleRate),
		s.Gain,
		humanize.Comma(int64(s.SamplesReceived)),
		humanize.Comma(int64(s.OverflowCount)))

	if s.Receiving {
		out += fmt.Sprintf(" (%.1f%%)", s.ReceptionRate)
	}
	if s.Details != "" {
		out += ", " + s.Details
	}
	return out
}
