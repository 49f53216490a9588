package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
)

const (
	DeviceType  = "simulation"
	DeviceAlias = "sim"
	Serial      = "SIM-001"

	DefaultAntenna = "SIM"
	DefaultSeed    = 1
)

var capabilities = sdr.Capabilities{
	MinFrequency:        0,
	MaxFrequency:        10e9,
	MinSampleRate:       1e3,
	MaxSampleRate:       100e6,
	MinGain:             -100,
	MaxGain:             100,
	AdjustableBandwidth: true,
	NumChannels:         1,
	Antennas:            []string{DefaultAntenna, "RX1"},
}

// Register adds the simulator to r under "simulation" and "sim".
func Register(r *sdr.Registry, options ...func(d *Device)) error {
	factory := func() sdr.Device { return NewDevice(options...) }

	for _, name := range []string{DeviceType, DeviceAlias} {
		if err := r.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(
			slog.String("device", DeviceType),
			slog.String("serial", Serial),
		)
	}
}

// WithSeed sets the seed of the noise generator
func WithSeed(seed uint64) func(d *Device) {
	return func(d *Device) {
		d.gen = newGenerator(seed)
	}
}

// WithoutPacing generates batches as fast as the consumer accepts them. No
// overflows are counted.
func WithoutPacing() func(d *Device) {
	return func(d *Device) {
		d.paced = false
	}
}

// WithBatchWindow overrides the time budget of one batch, which is otherwise
// bufferSize/sampleRate. A zero window puts every batch behind schedule.
func WithBatchWindow(window time.Duration) func(d *Device) {
	return func(d *Device) {
		d.window = &window
	}
}

// Device is a synthetic signal source: a sum of continuous-wave tones, a swept tone
// and additive gaussian noise, generated at the pace of the configured sample rate.
// Generation that falls behind schedule is counted as an overflow.
type Device struct {
	mu          sync.RWMutex
	initialized bool
	frequency   float64
	sampleRate  float64
	gain        float64
	bandwidth   float64
	antenna     string

	gen    *generator
	paced  bool
	window *time.Duration
	last   time.Time // end of the previous batch, acquisition goroutine only

	receiver *sdr.Receiver
	errs     sdr.ErrorState
	logger   *slog.Logger
}

func NewDevice(options ...func(d *Device)) *Device {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := Device{
		frequency:  sdr.DefaultFrequency,
		sampleRate: sdr.DefaultSampleRate,
		gain:       sdr.DefaultGain,
		bandwidth:  sdr.DefaultSampleRate,
		antenna:    DefaultAntenna,
		gen:        newGenerator(DefaultSeed),
		paced:      true,
		logger:     logger,
	}

	for _, option := range options {
		option(&d)
	}

	d.receiver = sdr.NewReceiver(DeviceType, &d.errs, sdr.WithLogger(d.logger))
	return &d
}

// Initialize applies cfg. Zero frequency or sample rate and a negative gain keep
// the defaults, zero bandwidth follows the sample rate and an empty antenna selects "SIM".
func (d *Device) Initialize(cfg sdr.Config) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return d.errs.Fail(sdr.ErrAlreadyInitialized)
	}

	frequency, sampleRate := d.frequency, d.sampleRate
	if cfg.Frequency > 0 {
		frequency = float64(cfg.Frequency)
	}
	if cfg.SampleRate > 0 {
		sampleRate = float64(cfg.SampleRate)
	}

	gain := d.gain
	if cfg.Gain >= 0 {
		gain = cfg.Gain
	}

	bandwidth := sampleRate
	if cfg.Bandwidth > 0 {
		bandwidth = float64(cfg.Bandwidth)
	}

	antenna := DefaultAntenna
	if cfg.Antenna != "" {
		antenna = cfg.Antenna
	}

	if err := validate(frequency, sampleRate, gain, bandwidth, antenna); err != nil {
		return d.errs.Fail(fmt.Errorf("%w: %w", sdr.ErrInitialize, err))
	}

	d.frequency = frequency
	d.sampleRate = sampleRate
	d.gain = gain
	d.bandwidth = bandwidth
	d.antenna = antenna
	d.initialized = true
	d.errs.Clear()

	d.logger.Info("simulation device initialized",
		slog.String("frequency", sdr.FormatHertz(frequency)),
		slog.String("sampleRate", sdr.FormatRate(sampleRate)),
		slog.Float64("gain", gain))

	return true
}

func validate(frequency, sampleRate, gain, bandwidth float64, antenna string) error {
	if err := capabilities.ValidateFrequency(frequency); err != nil {
		return err
	}
	if err := capabilities.ValidateSampleRate(sampleRate); err != nil {
		return err
	}
	if err := capabilities.ValidateGain(gain); err != nil {
		return err
	}
	if err := capabilities.ValidateBandwidth(bandwidth); err != nil {
		return err
	}
	return capabilities.ValidateAntenna(antenna)
}

func (d *Device) Shutdown() {
	d.StopReceiving()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialized = false
	d.errs.Clear()
}

func (d *Device) IsInitialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

func (d *Device) StartReceiving(cb sdr.SampleCallback, bufferSize int) bool {
	if !d.IsInitialized() {
		return d.errs.Fail(sdr.ErrNotInitialized)
	}
	if cb == nil {
		return d.errs.Fail(fmt.Errorf("sim: nil sample callback"))
	}

	d.gen.reset()
	d.last = time.Now()

	if _, err := d.receiver.Start(context.Background(), d.read, cb, bufferSize); err != nil {
		return d.errs.Fail(err)
	}
	return true
}

// read generates one batch and paces it against the batch window. The window covers
// the time since the previous batch ended, so a slow callback also causes overflows.
func (d *Device) read(ctx context.Context, buf []complex64) (int, error) {
	d.mu.RLock()
	sampleRate, gain := d.sampleRate, d.gain
	d.mu.RUnlock()

	d.gen.fill(buf, sampleRate, gain)

	if !d.paced {
		return len(buf), nil
	}

	window := time.Duration(float64(len(buf)) / sampleRate * float64(time.Second))
	if d.window != nil {
		window = *d.window
	}

	elapsed := time.Since(d.last)
	if elapsed >= window {
		d.last = time.Now()
		return len(buf), sdr.ErrOverflow
	}

	timer := time.NewTimer(window - elapsed)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	d.last = time.Now()
	return len(buf), nil
}

func (d *Device) StopReceiving() {
	d.receiver.Stop()
}

func (d *Device) IsReceiving() bool {
	return d.receiver.IsReceiving()
}

func (d *Device) SetFrequency(hz float64, channel int) bool {
	return d.set(channel, capabilities.ValidateFrequency, hz, &d.frequency)
}

func (d *Device) SetSampleRate(sps float64, channel int) bool {
	return d.set(channel, capabilities.ValidateSampleRate, sps, &d.sampleRate)
}

func (d *Device) SetGain(db float64, channel int) bool {
	return d.set(channel, capabilities.ValidateGain, db, &d.gain)
}

func (d *Device) SetBandwidth(hz float64, channel int) bool {
	return d.set(channel, capabilities.ValidateBandwidth, hz, &d.bandwidth)
}

func (d *Device) set(channel int, validate func(float64) error, value float64, field *float64) bool {
	if err := capabilities.ValidateChannel(channel); err != nil {
		return d.errs.Fail(err)
	}
	if err := validate(value); err != nil {
		return d.errs.Fail(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	*field = value
	return true
}

func (d *Device) SetAntenna(name string, channel int) bool {
	if err := capabilities.ValidateChannel(channel); err != nil {
		return d.errs.Fail(err)
	}
	if err := capabilities.ValidateAntenna(name); err != nil {
		return d.errs.Fail(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.antenna = name
	return true
}

// SetClockSource accepts only "internal"; the simulator has no reference inputs.
func (d *Device) SetClockSource(source string) bool {
	if source != sdr.DefaultClockSource {
		return d.errs.Fail(fmt.Errorf("sim: clock source selection not supported: %s", source))
	}
	return true
}

// SetTimeSource accepts only "internal".
func (d *Device) SetTimeSource(source string) bool {
	if source != sdr.DefaultTimeSource {
		return d.errs.Fail(fmt.Errorf("sim: time source selection not supported: %s", source))
	}
	return true
}

func (d *Device) Frequency(int) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frequency
}

func (d *Device) SampleRate(int) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sampleRate
}

func (d *Device) Gain(int) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gain
}

func (d *Device) Bandwidth(int) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bandwidth
}

func (d *Device) Antenna(int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.antenna
}

func (d *Device) DeviceType() string {
	return DeviceType
}

func (d *Device) SerialNumber() string {
	return Serial
}

func (d *Device) DeviceInfo() string {
	d.gen.mu.Lock()
	defer d.gen.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("Simulation Device (no hardware required)\n")
	fmt.Fprintf(&sb, "Serial: %s\n", Serial)
	fmt.Fprintf(&sb, "Signal type: %s\n", d.gen.signal)
	fmt.Fprintf(&sb, "Noise level: %g\n", d.gen.noiseLevel)
	fmt.Fprintf(&sb, "Active tones: %d\n", len(d.gen.tones))
	return sb.String()
}

func (d *Device) Capabilities() sdr.Capabilities {
	caps := capabilities
	caps.Antennas = append([]string(nil), capabilities.Antennas...)
	return caps
}

func (d *Device) Status() sdr.Status {
	d.mu.RLock()
	status := sdr.Status{
		Initialized: d.initialized,
		Frequency:   d.frequency,
		SampleRate:  d.sampleRate,
		Gain:        d.gain,
		Bandwidth:   d.bandwidth,
	}
	d.mu.RUnlock()

	status.Receiving = d.receiver.IsReceiving()
	status.SamplesReceived = d.receiver.SamplesReceived()
	status.OverflowCount = d.receiver.Overflows()
	status.HasOverflow = status.OverflowCount > 0
	status.ReceptionRate = d.receiver.ReceptionRate(status.SampleRate)
	status.Details = "Signal: " + d.SignalType().String()

	return status
}

func (d *Device) TotalSamplesReceived() uint64 {
	return d.receiver.SamplesReceived()
}

func (d *Device) OverflowCount() uint64 {
	return d.receiver.Overflows()
}

func (d *Device) LastError() string {
	return d.errs.Last()
}

func (d *Device) ClearError() {
	d.errs.Clear()
}

// AddTone adds a continuous wave at offset Hz from the centre frequency.
func (d *Device) AddTone(offset, amplitude float64) {
	d.gen.mu.Lock()
	defer d.gen.mu.Unlock()

	d.gen.tones = append(d.gen.tones, Tone{Frequency: offset, Amplitude: amplitude})
}

func (d *Device) ClearTones() {
	d.gen.mu.Lock()
	defer d.gen.mu.Unlock()

	d.gen.tones = d.gen.tones[:0]
}

// Tones returns a copy of the configured tones.
func (d *Device) Tones() []Tone {
	d.gen.mu.Lock()
	defer d.gen.mu.Unlock()

	return append([]Tone(nil), d.gen.tones...)
}

// SetNoiseLevel sets the standard deviation of the additive noise; 0 disables it.
func (d *Device) SetNoiseLevel(level float64) bool {
	if level < 0 {
		return d.errs.Fail(fmt.Errorf("sim: noise level must not be negative: %g", level))
	}

	d.gen.mu.Lock()
	defer d.gen.mu.Unlock()

	d.gen.noiseLevel = level
	return true
}

func (d *Device) SetSignalType(t SignalType) bool {
	t, err := ParseSignalType(string(t))
	if err != nil {
		return d.errs.Fail(err)
	}

	d.gen.mu.Lock()
	defer d.gen.mu.Unlock()

	d.gen.signal = t
	return true
}

func (d *Device) SignalType() SignalType {
	d.gen.mu.Lock()
	defer d.gen.mu.Unlock()
	return d.gen.signal
}

// SetSweep toggles the swept tone and the wobble around the centre frequency.
func (d *Device) SetSweep(enabled bool) {
	d.gen.mu.Lock()
	defer d.gen.mu.Unlock()

	d.gen.sweep = enabled
}
