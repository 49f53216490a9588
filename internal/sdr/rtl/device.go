package rtl

import (
	"log/slog"
	"strings"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/hardware"
)

const (
	DeviceType = "rtlsdr"
	Runtime    = "rtl_sdr"
)

var capabilities = sdr.Capabilities{
	MinFrequency:  24e6,
	MaxFrequency:  1.766e9,
	MinSampleRate: 225e3,
	MaxSampleRate: 3.2e6,
	MinGain:       0,
	MaxGain:       49.6,
	BiasTee:       true,
	NumChannels:   1,
	Antennas:      []string{"RX"},
}

// tool streams unsigned 8 bit I/Q from `rtl_sdr`.
type tool struct {
	config Config
}

func (t *tool) Name() string                { return DeviceType }
func (t *tool) Runtime() string             { return Runtime }
func (t *tool) Format() driver.SampleFormat { return driver.FormatCU8 }

func (t *tool) Args(serial string, s driver.Settings) ([]string, error) {
	return t.config.Args(serial, s)
}

// IsOverflow matches the librtlsdr messages for dropped USB transfers.
func (t *tool) IsOverflow(line string) bool {
	return strings.Contains(line, "samples lost") || strings.HasPrefix(line, "Lost at least")
}

// NewDevice creates an RTL-SDR device streaming through `rtl_sdr`.
func NewDevice(config Config, logger *slog.Logger) *hardware.Device {
	drv := driver.NewProcess(&tool{config}, driver.WithProcessLogger(logger))
	return hardware.NewDevice(DeviceType, drv, capabilities, hardware.WithLogger(logger))
}

// Register adds the RTL-SDR backend to r under "rtlsdr".
func Register(r *sdr.Registry, config Config, logger *slog.Logger) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return r.Register(DeviceType, func() sdr.Device { return NewDevice(config, logger) })
}
