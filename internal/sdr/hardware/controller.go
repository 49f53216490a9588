// Package hardware adapts a driver.Driver to the sdr.Device contract. Controller
// owns the radio: it validates every value against the device limits before the
// driver is touched and runs the receive loop.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
)

const (
	// ReadTimeout bounds a single driver read; timeouts are retried
	ReadTimeout = time.Second

	// FrequencyTolerance is the largest accepted difference between the requested and the tuned frequency
	FrequencyTolerance = 1e3

	// SampleRateTolerance is the relative sample rate offset above which a warning is logged
	SampleRateTolerance = 0.01
)

var ErrClockSyncUnsupported = errors.New("time synchronization not supported")

// Clock is implemented by drivers that expose the device time base.
type Clock interface {
	SetTimeNow(t time.Duration) error
	MasterClockRate() float64
}

// WithControllerLogger sets the logger for the controller
func WithControllerLogger(logger *slog.Logger) func(c *Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithReceiverOptions passes options to the receive loop
func WithReceiverOptions(options ...func(r *sdr.Receiver)) func(c *Controller) {
	return func(c *Controller) {
		c.receiverOptions = append(c.receiverOptions, options...)
	}
}

// WithErrorState records controller and receive loop failures in errs
func WithErrorState(errs *sdr.ErrorState) func(c *Controller) {
	return func(c *Controller) {
		c.errs = errs
	}
}

// Controller drives one radio through a driver.Driver. Every method records its
// failure in the controller error state, which is also returned as an error.
type Controller struct {
	name string
	drv  driver.Driver
	caps sdr.Capabilities

	mu          sync.Mutex
	initialized bool
	serial      string
	cancel      context.CancelFunc

	receiver        *sdr.Receiver
	receiverOptions []func(r *sdr.Receiver)

	errs   *sdr.ErrorState
	logger *slog.Logger
}

func NewController(name string, drv driver.Driver, caps sdr.Capabilities, options ...func(c *Controller)) *Controller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	c := Controller{
		name:   name,
		drv:    drv,
		caps:   caps,
		errs:   &sdr.ErrorState{},
		logger: logger,
	}

	for _, option := range options {
		option(&c)
	}

	c.receiver = sdr.NewReceiver(name, c.errs, append([]func(r *sdr.Receiver){sdr.WithLogger(c.logger)}, c.receiverOptions...)...)
	return &c
}

func (c *Controller) fail(err error) error {
	c.errs.Fail(err)
	c.logger.Error(err.Error())
	return err
}

// Initialize opens the radio, selects the internal clock and time sources and
// applies the default frequency, sample rate and gain, each clamped into the
// capability range. A second call fails with driver.ErrBusy until Shutdown.
func (c *Controller) Initialize(serial string) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return c.fail(driver.ErrBusy)
	}

	c.logger.Info("connecting to device", slog.String("serial", serial))
	if err := c.drv.Open(serial); err != nil {
		c.mu.Unlock()
		return c.fail(driver.NewRuntimeError("error opening device: %w", err))
	}

	c.initialized = true
	c.serial = serial
	c.mu.Unlock()

	err := errors.Join(
		c.SetClockSource(sdr.DefaultClockSource),
		c.SetTimeSource(sdr.DefaultTimeSource),
		c.SetFrequency(clamp(sdr.DefaultFrequency, c.caps.MinFrequency, c.caps.MaxFrequency), 0),
		c.SetSampleRate(clamp(sdr.DefaultSampleRate, c.caps.MinSampleRate, c.caps.MaxSampleRate), 0),
		c.SetGain(clamp(sdr.DefaultGain, c.caps.MinGain, c.caps.MaxGain), 0),
	)
	if err != nil {
		c.Shutdown()
		return c.fail(fmt.Errorf("error applying defaults: %w", err))
	}

	c.errs.Clear()
	c.logger.Info("device connected", slog.String("driver", c.drv.Info().Driver))
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}

// Shutdown stops reception and closes the driver. It is safe to call repeatedly.
func (c *Controller) Shutdown() {
	c.StopReceiving()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		if err := c.drv.Close(); err != nil {
			c.logger.Warn(fmt.Sprintf("error closing driver: %s", err.Error()))
		}
		c.logger.Info("device shut down")
	}

	c.initialized = false
	c.serial = ""
	c.errs.Clear()
}

func (c *Controller) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *Controller) SerialNumber() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serial
}

func (c *Controller) validateDevice() error {
	if !c.IsInitialized() {
		return c.fail(sdr.ErrNotInitialized)
	}
	return nil
}

func (c *Controller) validateChannel(channel int) error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if channel < 0 || channel >= c.drv.NumChannels() {
		return c.fail(fmt.Errorf("%w: %d", sdr.ErrInvalidChannel, channel))
	}
	if err := c.caps.ValidateChannel(channel); err != nil {
		return c.fail(err)
	}
	return nil
}

// Info returns the driver identification, zero when not initialized.
func (c *Controller) Info() driver.Info {
	if !c.IsInitialized() {
		return driver.Info{}
	}
	return c.drv.Info()
}

// MasterClockRate returns the device master clock rate, 0 when the driver has no time base.
func (c *Controller) MasterClockRate() float64 {
	if c.validateDevice() != nil {
		return 0
	}
	if clock, ok := c.drv.(Clock); ok {
		return clock.MasterClockRate()
	}
	return 0
}

// SyncClock resets the device time to zero.
func (c *Controller) SyncClock() error {
	if err := c.validateDevice(); err != nil {
		return err
	}

	clock, ok := c.drv.(Clock)
	if !ok {
		return c.fail(driver.NewConfigError("%w by %s", ErrClockSyncUnsupported, c.name))
	}
	if err := clock.SetTimeNow(0); err != nil {
		return c.fail(driver.NewRuntimeError("error synchronizing clock: %w", err))
	}

	c.logger.Info("clock synchronized")
	return nil
}

func (c *Controller) SetClockSource(source string) error {
	if err := c.validateSource("clock", source); err != nil {
		return err
	}
	if err := c.drv.SetClockSource(source); err != nil {
		return c.fail(driver.NewRuntimeError("error setting clock source: %w", err))
	}
	return nil
}

func (c *Controller) SetTimeSource(source string) error {
	if err := c.validateSource("time", source); err != nil {
		return err
	}
	if err := c.drv.SetTimeSource(source); err != nil {
		return c.fail(driver.NewRuntimeError("error setting time source: %w", err))
	}
	return nil
}

func (c *Controller) validateSource(kind, source string) error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if source == "" {
		return c.fail(driver.NewConfigError("%s source must not be empty", kind))
	}
	if source != sdr.DefaultClockSource && !c.caps.ClockSourceSelection {
		return c.fail(driver.NewConfigError("%s source selection not supported by %s: %s", kind, c.name, source))
	}
	return nil
}

// SetFrequency tunes channel to hz. A tuned frequency more than FrequencyTolerance
// away from the request is reported as an error.
func (c *Controller) SetFrequency(hz float64, channel int) error {
	if err := c.validateChannel(channel); err != nil {
		return err
	}
	if err := c.caps.ValidateFrequency(hz); err != nil {
		return c.fail(driver.NewConfigError("invalid rx frequency: %w", err))
	}

	if err := c.drv.SetFrequency(hz, channel); err != nil {
		return c.fail(driver.NewRuntimeError("error setting rx frequency: %w", err))
	}

	if actual := c.drv.Frequency(channel); math.Abs(actual-hz) > FrequencyTolerance {
		return c.fail(driver.NewRuntimeError("requested frequency %s, actual %s",
			sdr.FormatHertz(hz), sdr.FormatHertz(actual)))
	}
	return nil
}

// SetSampleRate sets the rate of channel. The driver may coerce the rate; offsets
// above SampleRateTolerance are logged.
func (c *Controller) SetSampleRate(sps float64, channel int) error {
	if err := c.validateChannel(channel); err != nil {
		return err
	}
	if err := c.caps.ValidateSampleRate(sps); err != nil {
		return c.fail(driver.NewConfigError("invalid sample rate: %w", err))
	}

	if err := c.drv.SetSampleRate(sps, channel); err != nil {
		return c.fail(driver.NewRuntimeError("error setting sample rate: %w", err))
	}

	if actual := c.drv.SampleRate(channel); math.Abs(actual-sps)/sps > SampleRateTolerance {
		c.logger.Warn("sample rate offset",
			slog.String("requested", sdr.FormatRate(sps)),
			slog.String("actual", sdr.FormatRate(actual)))
	}
	return nil
}

func (c *Controller) SetGain(db float64, channel int) error {
	if err := c.validateChannel(channel); err != nil {
		return err
	}
	if err := c.caps.ValidateGain(db); err != nil {
		return c.fail(driver.NewConfigError("invalid rx gain: %w", err))
	}

	if err := c.drv.SetGain(db, channel); err != nil {
		return c.fail(driver.NewRuntimeError("error setting rx gain: %w", err))
	}
	return nil
}

func (c *Controller) SetBandwidth(hz float64, channel int) error {
	if err := c.validateChannel(channel); err != nil {
		return err
	}
	if err := c.caps.ValidateBandwidth(hz); err != nil {
		return c.fail(driver.NewConfigError("invalid rx bandwidth: %w", err))
	}

	if err := c.drv.SetBandwidth(hz, channel); err != nil {
		return c.fail(driver.NewRuntimeError("error setting rx bandwidth: %w", err))
	}
	return nil
}

func (c *Controller) SetAntenna(name string, channel int) error {
	if err := c.validateChannel(channel); err != nil {
		return err
	}
	if err := c.caps.ValidateAntenna(name); err != nil {
		return c.fail(driver.NewConfigError("invalid rx antenna: %w", err))
	}

	if err := c.drv.SetAntenna(name, channel); err != nil {
		return c.fail(driver.NewRuntimeError("error setting rx antenna: %w", err))
	}
	return nil
}

func (c *Controller) Frequency(channel int) float64 {
	if c.validateChannel(channel) != nil {
		return 0
	}
	return c.drv.Frequency(channel)
}

func (c *Controller) SampleRate(channel int) float64 {
	if c.validateChannel(channel) != nil {
		return 0
	}
	return c.drv.SampleRate(channel)
}

func (c *Controller) Gain(channel int) float64 {
	if c.validateChannel(channel) != nil {
		return 0
	}
	return c.drv.Gain(channel)
}

func (c *Controller) Bandwidth(channel int) float64 {
	if c.validateChannel(channel) != nil {
		return 0
	}
	return c.drv.Bandwidth(channel)
}

func (c *Controller) Antenna(channel int) string {
	if c.validateChannel(channel) != nil {
		return ""
	}
	return c.drv.Antenna(channel)
}

// StartReceiving starts the driver stream and the receive loop.
func (c *Controller) StartReceiving(cb sdr.SampleCallback, bufferSize int) error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if cb == nil {
		return c.fail(driver.NewConfigError("nil sample callback"))
	}
	if c.receiver.IsReceiving() {
		return c.fail(sdr.ErrAlreadyReceiving)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.drv.StartStream(ctx); err != nil {
		cancel()
		return c.fail(driver.NewRuntimeError("error starting stream: %w", err))
	}

	// the receiver records the error that ends reception, nothing else waits for it
	if _, err := c.receiver.Start(ctx, c.read, cb, bufferSize); err != nil {
		cancel()
		_ = c.drv.StopStream()
		return c.fail(err)
	}

	c.cancel = cancel
	return nil
}

// read maps driver receive codes onto the receive loop errors.
func (c *Controller) read(_ context.Context, buf []complex64) (int, error) {
	n, code, err := c.drv.Read(buf, ReadTimeout)

	switch code {
	case driver.RecvOK:
		return n, nil
	case driver.RecvTimeout:
		return 0, sdr.ErrTimeout
	case driver.RecvOverflow:
		return n, sdr.ErrOverflow
	}

	if err == nil {
		err = fmt.Errorf("receive error: %s", code)
	}
	return 0, err
}

// StopReceiving joins the receive loop and stops the driver stream.
func (c *Controller) StopReceiving() {
	c.receiver.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return
	}

	c.cancel()
	c.cancel = nil

	if err := c.drv.StopStream(); err != nil {
		c.logger.Warn(fmt.Sprintf("error stopping stream: %s", err.Error()))
	}
}

func (c *Controller) IsReceiving() bool {
	return c.receiver.IsReceiving()
}

func (c *Controller) SamplesReceived() uint64 {
	return c.receiver.SamplesReceived()
}

func (c *Controller) Overflows() uint64 {
	return c.receiver.Overflows()
}

// ReceptionRate returns received samples as a percentage of the samples expected at sampleRate.
func (c *Controller) ReceptionRate(sampleRate float64) float64 {
	return c.receiver.ReceptionRate(sampleRate)
}

func (c *Controller) LastError() string {
	return c.errs.Last()
}
