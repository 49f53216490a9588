package usrp

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
)

const (
	WireFormatSC16 = "sc16"
	WireFormatSC8  = "sc8"

	ClockSourceInternal = "internal"
	ClockSourceExternal = "external"
	ClockSourceMIMO     = "mimo"
	ClockSourceGPSDO    = "gpsdo"
)

var clockSources = []string{ClockSourceInternal, ClockSourceExternal, ClockSourceMIMO, ClockSourceGPSDO}

// Usage example, see `rx_samples_to_file --help`:

/*
	usrpConfig := usrp.Config{
		DeviceArgs: "type=b200",
		WireFormat: "sc16",
	}
	// Executes: rx_samples_to_file --args serial=32C1EC6,type=b200 --freq 100000000 --rate 1000000
	//   --gain 20 --type float --wirefmt sc16 --continue --file /dev/stdout
*/

// Config holds the `rx_samples_to_file` options that are not covered by the device
// settings. Samples are always requested as float (fc32).
type Config struct {
	DeviceArgs       string  `yaml:"deviceArgs" json:"deviceArgs"`             // --args extra UHD device arguments, e.g. "type=b200"
	Subdev           string  `yaml:"subdev" json:"subdev"`                     // --subdev subdevice specification, e.g. "A:A"
	WireFormat       string  `yaml:"wireFormat" json:"wireFormat"`             // --wirefmt over the wire format, sc16 or sc8 (default: sc16)
	SamplesPerBuffer int     `yaml:"samplesPerBuffer" json:"samplesPerBuffer"` // --spb samples per buffer
	LOOffset         float64 `yaml:"loOffset" json:"loOffset"`                 // --lo-offset Offset for frontend LO in Hz

	// Always run continuously: --nsamps and --duration are not set
	// Always dump to stdout
}

func (c *Config) Validate() error {
	if c.WireFormat != "" && c.WireFormat != WireFormatSC16 && c.WireFormat != WireFormatSC8 {
		return fmt.Errorf("usrp.Config: wire format must be sc16 or sc8: %s given", c.WireFormat)
	}
	if c.SamplesPerBuffer < 0 {
		return fmt.Errorf("usrp.Config: samples per buffer must not be negative: %d given", c.SamplesPerBuffer)
	}
	return nil
}

// Args builds the command line arguments for `rx_samples_to_file` writing fc32 to stdout.
func (c *Config) Args(serialNumber string, s driver.Settings) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if s.ClockSource != "" && !slices.Contains(clockSources, s.ClockSource) {
		return nil, fmt.Errorf("usrp.Config: unknown clock source: %s", s.ClockSource)
	}

	var deviceArgs []string
	if serialNumber != "" {
		deviceArgs = append(deviceArgs, "serial="+serialNumber)
	}
	if c.DeviceArgs != "" {
		deviceArgs = append(deviceArgs, c.DeviceArgs)
	}

	var args []string
	if len(deviceArgs) > 0 {
		args = append(args, "--args", strings.Join(deviceArgs, ","))
	}

	args = append(args,
		"--freq", strconv.FormatInt(int64(s.Frequency), 10),
		"--rate", strconv.FormatInt(int64(s.SampleRate), 10),
		"--gain", strconv.FormatFloat(s.Gain, 'f', -1, 64),
	)

	if s.Bandwidth > 0 {
		args = append(args, "--bw", strconv.FormatInt(int64(s.Bandwidth), 10))
	}

	if s.Antenna != "" {
		args = append(args, "--ant", s.Antenna)
	}

	if s.ClockSource != "" {
		args = append(args, "--ref", s.ClockSource)
	}

	if c.Subdev != "" {
		args = append(args, "--subdev", c.Subdev)
	}

	if c.LOOffset != 0 {
		args = append(args, "--lo-offset", strconv.FormatFloat(c.LOOffset, 'f', -1, 64))
	}

	if c.SamplesPerBuffer > 0 {
		args = append(args, "--spb", strconv.Itoa(c.SamplesPerBuffer))
	}

	wireFormat := WireFormatSC16
	if c.WireFormat != "" {
		wireFormat = c.WireFormat
	}

	args = append(args,
		"--type", "float",
		"--wirefmt", wireFormat,
		"--continue",            // keep streaming through overflows
		"--file", "/dev/stdout", // Always dump to stdout
	)

	return args, nil
}

func (c *Config) String() string {
	args, err := c.Args("", driver.Settings{Frequency: sdr.DefaultFrequency, SampleRate: sdr.DefaultSampleRate, Gain: sdr.DefaultGain})
	if err != nil {
		return fmt.Sprintf("usrp.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
