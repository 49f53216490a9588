package rtl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
)

const (
	// sample rates in (RateGapLow, RateGapHigh] are rejected by the RTL2832U
	RateGapLow  = 300e3
	RateGapHigh = 900e3

	DirectSamplingOff DirectSampling = 0
	DirectSamplingI   DirectSampling = 1
	DirectSamplingQ   DirectSampling = 2

	MaxBlockSize = 256 * 16384
)

type DirectSampling int

// Usage examples from man page:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html

/*
	rtlConfig := rtl.Config{
		PPMError: 52,
		BiasTee:  true,
	}
	// Executes: rtl_sdr -f 100000000 -s 1000000 -g 20.0 -d 0 -p 52 -T -
*/

// Config holds the `rtl_sdr` options that are not covered by the device settings.
// Frequency, sample rate and gain come from the device.
type Config struct {
	DeviceIndex int `yaml:"deviceIndex" json:"deviceIndex"` // -d device_index, used when no serial is given (default: 0)
	PPMError    int `yaml:"ppmError" json:"ppmError"`       // -p ppm_error (default: 0)
	BlockSize   int `yaml:"blockSize" json:"blockSize"`     // -b output_block_size, multiple of 512 (default: 16 * 16384)

	// Hardware Options
	DirectSampling DirectSampling `yaml:"directSampling" json:"directSampling"` // -D 0 off, 1 I branch, 2 Q branch
	BiasTee        bool           `yaml:"biasTee" json:"biasTee"`               // -T enable bias-tee (default: off)

	// Always stream continuously: -n num_samples is not set
	// Always dump to stdout
}

func (c *Config) Validate() error {
	if c.DeviceIndex < 0 {
		return fmt.Errorf("rtl.Config: device index must not be negative: %d", c.DeviceIndex)
	}
	if c.BlockSize < 0 || c.BlockSize > MaxBlockSize {
		return fmt.Errorf("rtl.Config: block size must be between 0 and %d: %d given", MaxBlockSize, c.BlockSize)
	}
	if c.BlockSize%512 != 0 {
		return fmt.Errorf("rtl.Config: block size must be a multiple of 512: %d given", c.BlockSize)
	}
	if c.DirectSampling < DirectSamplingOff || c.DirectSampling > DirectSamplingQ {
		return fmt.Errorf("rtl.Config: direct sampling must be 0, 1 or 2: %d given", c.DirectSampling)
	}
	return nil
}

// Args returns the command line arguments for `rtl_sdr` streaming to stdout.
// See `man rtl_sdr` for more information:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html
func (c *Config) Args(serialNumber string, s driver.Settings) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if s.SampleRate > RateGapLow && s.SampleRate <= RateGapHigh {
		return nil, fmt.Errorf("rtl.Config: sample rate %s is not supported by the RTL2832U", sdr.FormatRate(s.SampleRate))
	}

	args := []string{
		"-f", strconv.FormatInt(int64(s.Frequency), 10),
		"-s", strconv.FormatInt(int64(s.SampleRate), 10),
	}

	// rtl_sdr accepts a serial number in place of the device index
	if serialNumber != "" {
		args = append(args, "-d", serialNumber)
	} else {
		args = append(args, "-d", strconv.Itoa(c.DeviceIndex))
	}

	if s.Gain > 0 {
		args = append(args, "-g", strconv.FormatFloat(s.Gain, 'f', 1, 64))
	}

	if c.PPMError != 0 {
		args = append(args, "-p", strconv.Itoa(c.PPMError))
	}

	if c.BlockSize > 0 {
		args = append(args, "-b", strconv.Itoa(c.BlockSize))
	}

	if c.DirectSampling != DirectSamplingOff {
		args = append(args, "-D", strconv.Itoa(int(c.DirectSampling)))
	}

	if c.BiasTee {
		args = append(args, "-T")
	}

	args = append(args, "-") // Always dump to stdout

	return args, nil
}

func (c *Config) String() string {
	args, err := c.Args("", driver.Settings{Frequency: sdr.DefaultFrequency, SampleRate: sdr.DefaultSampleRate})
	if err != nil {
		return fmt.Sprintf("rtl.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
