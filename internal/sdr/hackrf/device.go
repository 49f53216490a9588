package hackrf

import (
	"log/slog"
	"strings"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/hardware"
)

const (
	DeviceType = "hackrf"
	Runtime    = "hackrf_transfer"
)

var capabilities = sdr.Capabilities{
	MinFrequency:        1e6,
	MaxFrequency:        6e9,
	MinSampleRate:       2e6,
	MaxSampleRate:       20e6,
	MinGain:             0,
	MaxGain:             MaxVGAGain,
	MaxBandwidth:        28e6,
	AdjustableBandwidth: true,
	BiasTee:             true,
	NumChannels:         1,
	Antennas:            []string{"RX"},
}

// tool streams signed 8 bit I/Q from `hackrf_transfer`.
type tool struct {
	config Config
}

func (t *tool) Name() string                { return DeviceType }
func (t *tool) Runtime() string             { return Runtime }
func (t *tool) Format() driver.SampleFormat { return driver.FormatCS8 }

func (t *tool) Args(serial string, s driver.Settings) ([]string, error) {
	return t.config.Args(serial, s)
}

// IsOverflow matches the stall report printed when no transfer completed for a second.
func (t *tool) IsOverflow(line string) bool {
	return strings.HasPrefix(line, "Couldn't transfer any bytes")
}

// NewDevice creates a HackRF device streaming through `hackrf_transfer`. Options
// are passed to the process driver.
func NewDevice(config Config, logger *slog.Logger, options ...func(p *driver.Process)) *hardware.Device {
	drv := driver.NewProcess(&tool{config}, append([]func(p *driver.Process){driver.WithProcessLogger(logger)}, options...)...)
	return hardware.NewDevice(DeviceType, drv, capabilities, hardware.WithLogger(logger))
}

// Register adds the HackRF backend to r under "hackrf".
func Register(r *sdr.Registry, config Config, logger *slog.Logger) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return r.Register(DeviceType, func() sdr.Device { return NewDevice(config, logger) })
}
