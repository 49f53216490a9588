package usrp

import (
	"log/slog"
	"strings"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/hardware"
)

const (
	DeviceType = "usrp"
	Runtime    = "rx_samples_to_file"
)

// B2xx limits; the B210 has two channels but one is used
var capabilities = sdr.Capabilities{
	MinFrequency:         70e6,
	MaxFrequency:         6e9,
	MinSampleRate:        200e3,
	MaxSampleRate:        61.44e6,
	MinGain:              0,
	MaxGain:              76,
	AdjustableBandwidth:  true,
	ClockSourceSelection: true,
	NumChannels:          1,
	Antennas:             []string{"TX/RX", "RX2"},
}

// tool streams fc32 from UHD's `rx_samples_to_file`.
type tool struct {
	config Config
}

func (t *tool) Name() string                { return DeviceType }
func (t *tool) Runtime() string             { return Runtime }
func (t *tool) Format() driver.SampleFormat { return driver.FormatCF32 }

func (t *tool) Args(serial string, s driver.Settings) ([]string, error) {
	return t.config.Args(serial, s)
}

// IsOverflow matches the "O" (overflow) and "D" (dropped packet) markers UHD prints.
func (t *tool) IsOverflow(line string) bool {
	return line != "" && strings.Trim(line, "OD") == ""
}

// NewDevice creates a USRP device streaming through `rx_samples_to_file`.
func NewDevice(config Config, logger *slog.Logger) *hardware.Device {
	drv := driver.NewProcess(&tool{config}, driver.WithProcessLogger(logger))
	return hardware.NewDevice(DeviceType, drv, capabilities, hardware.WithLogger(logger))
}

// Register adds the USRP backend to r under "usrp".
func Register(r *sdr.Registry, config Config, logger *slog.Logger) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return r.Register(DeviceType, func() sdr.Device { return NewDevice(config, logger) })
}
