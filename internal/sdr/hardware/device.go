package hardware

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
)

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(slog.String("device", d.deviceType))
	}
}

// WithStreamErrorsThreshold sets the number of consecutive stream errors tolerated before reception stops
func WithStreamErrorsThreshold(threshold int) func(d *Device) {
	return func(d *Device) {
		d.streamErrorsThreshold = threshold
	}
}

// Device implements sdr.Device over a Controller. The device, the controller and
// its receive loop share one error state, so the last error is always the newest.
type Device struct {
	deviceType string
	caps       sdr.Capabilities
	ctrl       *Controller

	streamErrorsThreshold int

	errs   sdr.ErrorState
	logger *slog.Logger
}

func NewDevice(deviceType string, drv driver.Driver, caps sdr.Capabilities, options ...func(d *Device)) *Device {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := Device{
		deviceType:            deviceType,
		caps:                  caps,
		streamErrorsThreshold: sdr.StreamErrorsThreshold,
		logger:                logger,
	}

	for _, option := range options {
		option(&d)
	}

	d.ctrl = NewController(deviceType, drv, caps,
		WithControllerLogger(d.logger),
		WithErrorState(&d.errs),
		WithReceiverOptions(sdr.WithStreamErrorsThreshold(d.streamErrorsThreshold)))

	return &d
}

// Controller exposes the underlying controller for clock synchronization.
func (d *Device) Controller() *Controller {
	return d.ctrl
}

// Initialize opens the radio selected by cfg.Serial and applies the configured
// clock and time sources. Frequency, rate and gain start at the controller
// defaults; the registry applies the rest of cfg.
func (d *Device) Initialize(cfg sdr.Config) bool {
	if err := d.ctrl.Initialize(cfg.Serial); err != nil {
		return d.errs.Fail(fmt.Errorf("%w: %w", sdr.ErrInitialize, err))
	}

	if cfg.ClockSource != "" {
		if err := d.ctrl.SetClockSource(cfg.ClockSource); err != nil {
			d.logger.Warn(fmt.Sprintf("clock source not applied: %s", err.Error()))
		}
	}
	if cfg.TimeSource != "" {
		if err := d.ctrl.SetTimeSource(cfg.TimeSource); err != nil {
			d.logger.Warn(fmt.Sprintf("time source not applied: %s", err.Error()))
		}
	}

	d.errs.Clear()
	return true
}

func (d *Device) Shutdown() {
	d.ctrl.Shutdown()
}

func (d *Device) IsInitialized() bool {
	return d.ctrl.IsInitialized()
}

func (d *Device) StartReceiving(cb sdr.SampleCallback, bufferSize int) bool {
	return d.check(d.ctrl.StartReceiving(cb, bufferSize))
}

func (d *Device) StopReceiving() {
	d.ctrl.StopReceiving()
}

func (d *Device) IsReceiving() bool {
	return d.ctrl.IsReceiving()
}

func (d *Device) SetFrequency(hz float64, channel int) bool {
	return d.check(d.ctrl.SetFrequency(hz, channel))
}

func (d *Device) SetSampleRate(sps float64, channel int) bool {
	return d.check(d.ctrl.SetSampleRate(sps, channel))
}

func (d *Device) SetGain(db float64, channel int) bool {
	return d.check(d.ctrl.SetGain(db, channel))
}

func (d *Device) SetBandwidth(hz float64, channel int) bool {
	return d.check(d.ctrl.SetBandwidth(hz, channel))
}

func (d *Device) SetAntenna(name string, channel int) bool {
	return d.check(d.ctrl.SetAntenna(name, channel))
}

func (d *Device) SetClockSource(source string) bool {
	return d.check(d.ctrl.SetClockSource(source))
}

func (d *Device) SetTimeSource(source string) bool {
	return d.check(d.ctrl.SetTimeSource(source))
}

func (d *Device) check(err error) bool {
	if err != nil {
		return d.errs.Fail(err)
	}
	return true
}

func (d *Device) Frequency(channel int) float64  { return d.ctrl.Frequency(channel) }
func (d *Device) SampleRate(channel int) float64 { return d.ctrl.SampleRate(channel) }
func (d *Device) Gain(channel int) float64       { return d.ctrl.Gain(channel) }
func (d *Device) Bandwidth(channel int) float64  { return d.ctrl.Bandwidth(channel) }
func (d *Device) Antenna(channel int) string     { return d.ctrl.Antenna(channel) }

func (d *Device) DeviceType() string {
	return d.deviceType
}

func (d *Device) SerialNumber() string {
	return d.ctrl.SerialNumber()
}

// DeviceInfo describes the opened radio, empty when not initialized.
func (d *Device) DeviceInfo() string {
	info := d.ctrl.Info()
	if info.Driver == "" {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Device: %s\n", d.deviceType)
	fmt.Fprintf(&sb, "Driver: %s\n", info.Driver)
	if info.Serial != "" {
		fmt.Fprintf(&sb, "Serial: %s\n", info.Serial)
	}
	fmt.Fprintf(&sb, "Runtime: %s\n", info.Runtime)
	if info.Args != "" {
		fmt.Fprintf(&sb, "Arguments: %s\n", info.Args)
	}
	if rate := d.ctrl.MasterClockRate(); rate > 0 {
		fmt.Fprintf(&sb, "Master clock: %s\n", sdr.FormatHertz(rate))
	}
	return sb.String()
}

func (d *Device) Capabilities() sdr.Capabilities {
	caps := d.caps
	caps.Antennas = slices.Clone(d.caps.Antennas)
	return caps
}

func (d *Device) Status() sdr.Status {
	status := sdr.Status{
		Initialized:     d.ctrl.IsInitialized(),
		Receiving:       d.ctrl.IsReceiving(),
		SamplesReceived: d.ctrl.SamplesReceived(),
		OverflowCount:   d.ctrl.Overflows(),
	}
	status.HasOverflow = status.OverflowCount > 0

	if status.Initialized {
		status.Frequency = d.ctrl.Frequency(0)
		status.SampleRate = d.ctrl.SampleRate(0)
		status.Gain = d.ctrl.Gain(0)
		status.Bandwidth = d.ctrl.Bandwidth(0)
		status.ReceptionRate = d.ctrl.ReceptionRate(status.SampleRate)
		status.Details = "Driver: " + d.ctrl.Info().Driver
	}

	return status
}

func (d *Device) TotalSamplesReceived() uint64 {
	return d.ctrl.SamplesReceived()
}

func (d *Device) OverflowCount() uint64 {
	return d.ctrl.Overflows()
}

func (d *Device) LastError() string {
	return d.errs.Last()
}

func (d *Device) ClearError() {
	d.errs.Clear()
}
