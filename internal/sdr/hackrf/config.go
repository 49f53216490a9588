package hackrf

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
)

const (
	MaxLNAGain  = 40
	MaxVGAGain  = 62
	LNAGainStep = 8
	VGAGainStep = 2

	DefaultLNAGain = 16
)

// Usage examples from man page:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html

/*
	lna := 24
	hackrfConfig := hackrf.Config{
		LNAGain:   &lna,
		EnableAmp: true,
	}
	// Executes: hackrf_transfer -r - -f 100000000 -s 10000000 -l 24 -g 20 -a 1
*/

// Config holds the `hackrf_transfer` options that are not covered by the device
// settings. The device gain drives the VGA (baseband) stage.
type Config struct {
	LNAGain *int `yaml:"lnaGain" json:"lnaGain"` // -l gain_db LNA (IF) gain, 0-40dB, 8dB steps (default: 16)

	EnableAmp    bool `yaml:"enableAmp" json:"enableAmp"`       // -a amp_enable RX RF amplifier 1=Enable, 0=Disable
	AntennaPower bool `yaml:"antennaPower" json:"antennaPower"` // -p antenna_enable Antenna port power, 1=Enable, 0=Disable

	// Always stream continuously: -n num_samples is not set
	// Always dump to stdout: -r -
}

func (c *Config) Validate() error {
	// LNA gain validation (0-40dB in 8dB steps)
	if c.LNAGain != nil {
		if *c.LNAGain < 0 || *c.LNAGain > MaxLNAGain {
			return fmt.Errorf("hackrf.Config: LNA gain must be between 0 and 40 dB: %d given", *c.LNAGain)
		}
		if *c.LNAGain%LNAGainStep != 0 {
			return errors.New("hackrf.Config: LNA gain must be a multiple of 8 dB")
		}
	}

	return nil
}

// VGAGain rounds a device gain to the nearest VGA step within 0-62 dB.
func VGAGain(db float64) int {
	steps := int(math.Round(db / VGAGainStep))
	return min(max(steps*VGAGainStep, 0), MaxVGAGain)
}

// Args builds the command line arguments for `hackrf_transfer` receiving to stdout
// See `man hackrf_transfer` for more information:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html
func (c *Config) Args(serialNumber string, s driver.Settings) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	lna := DefaultLNAGain
	if c.LNAGain != nil {
		lna = *c.LNAGain
	}

	args := []string{
		"-r", "-",
		"-f", strconv.FormatInt(int64(s.Frequency), 10),
		"-s", strconv.FormatInt(int64(s.SampleRate), 10),
		"-l", strconv.Itoa(lna),
		"-g", strconv.Itoa(VGAGain(s.Gain)),
	}

	if serialNumber != "" {
		args = append(args, "-d", serialNumber)
	}

	// hackrf_transfer picks the closest baseband filter below the requested width
	if s.Bandwidth > 0 {
		args = append(args, "-b", strconv.FormatInt(int64(s.Bandwidth), 10))
	}

	if c.EnableAmp {
		args = append(args, "-a", "1")
	}

	if c.AntennaPower {
		args = append(args, "-p", "1")
	}

	return args, nil
}

func (c *Config) String() string {
	args, err := c.Args("", driver.Settings{Frequency: sdr.DefaultFrequency, SampleRate: capabilities.MinSampleRate})
	if err != nil {
		return fmt.Sprintf("hackrf.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
