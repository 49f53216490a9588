package sdr

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Factory constructs an uninitialized device.
type Factory func() Device

// WithRegistryLogger sets the logger for the registry
func WithRegistryLogger(logger *slog.Logger) func(r *Registry) {
	return func(r *Registry) {
		r.logger = logger.With(slog.String("component", "registry"))
	}
}

// Registry maps lowercase device type names to factories. It is built once at
// startup and only read afterwards; registration order does not matter.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *slog.Logger
}

func NewRegistry(options ...func(r *Registry)) *Registry {
	r := Registry{
		factories: make(map[string]Factory),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Register adds a factory under the lowercased name. Duplicate names and nil
// factories are rejected.
func (r *Registry) Register(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("%w: %s", ErrNilFactory, name)
	}

	key := normalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, key)
	}

	r.factories[key] = factory
	r.logger.Debug("registered device type", slog.String("type", key))
	return nil
}

// Create instantiates an uninitialized device of the given type.
func (r *Registry) Create(name string) (Device, error) {
	key := normalizeName(name)

	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q, supported: %s", ErrUnsupportedDevice, name, strings.Join(r.Supported(), ", "))
	}

	return factory(), nil
}

// CreateAndInitialize creates and initializes a device, then applies frequency (if > 0),
// sample rate (if > 0), gain (if >= 0), bandwidth (if > 0) and antenna (if set) on
// cfg.Channel. When some of those setters fail the device is still returned together
// with a *PartialConfigError.
func (r *Registry) CreateAndInitialize(cfg Config) (Device, error) {
	device, err := r.Create(cfg.DeviceType)
	if err != nil {
		return nil, err
	}

	if !device.Initialize(cfg) {
		return nil, fmt.Errorf("%w: %s: %s", ErrInitialize, cfg.DeviceType, device.LastError())
	}

	var errs []error
	apply := func(param string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %s", param, device.LastError()))
		}
	}

	if cfg.Frequency > 0 {
		apply("frequency", device.SetFrequency(float64(cfg.Frequency), cfg.Channel))
	}
	if cfg.SampleRate > 0 {
		apply("sample rate", device.SetSampleRate(float64(cfg.SampleRate), cfg.Channel))
	}
	if cfg.Gain >= 0 {
		apply("gain", device.SetGain(cfg.Gain, cfg.Channel))
	}
	if cfg.Bandwidth > 0 {
		apply("bandwidth", device.SetBandwidth(float64(cfg.Bandwidth), cfg.Channel))
	}
	if cfg.Antenna != "" {
		apply("antenna", device.SetAntenna(cfg.Antenna, cfg.Channel))
	}

	if len(errs) > 0 {
		perr := &PartialConfigError{DeviceType: device.DeviceType(), Errs: errs}
		r.logger.Warn(perr.Error())
		return device, perr
	}

	return device, nil
}

// Supported returns the registered type names in sorted order.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}

func (r *Registry) IsSupported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[normalizeName(name)]
	return ok
}

// Detect initializes every registered backend with default settings and reports the
// ones that succeed. Devices are shut down before returning; aliases registered for
// the same backend are reported once.
func (r *Registry) Detect() []Config {
	var (
		detected []Config
		seen     = make(map[string]struct{})
	)

	for _, name := range r.Supported() {
		device, err := r.Create(name)
		if err != nil {
			continue
		}

		cfg := DefaultConfig()
		cfg.DeviceType = name

		if !device.Initialize(cfg) {
			r.logger.Debug("device not detected", slog.String("type", name), slog.String("error", device.LastError()))
			continue
		}

		key := device.DeviceType() + "/" + device.SerialNumber()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}

			cfg.DeviceType = device.DeviceType()
			cfg.Serial = device.SerialNumber()
			detected = append(detected, cfg)

			r.logger.Info("device detected", slog.String("type", cfg.DeviceType), slog.String("serial", cfg.Serial))
		}

		device.Shutdown()
	}

	return detected
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
