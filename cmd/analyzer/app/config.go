package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/spectrum-analyzer/internal/render"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/hackrf"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/rtl"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/usrp"
	"github.com/roman-kulish/spectrum-analyzer/internal/spectrum"
)

const (
	defaultUpdateInterval = 50 * time.Millisecond
	defaultStatusInterval = 5 * time.Second

	defaultStreamFFTSize  = 1024
	defaultWaterfallRows  = 100
	defaultRenderInterval = 2 * time.Second

	defaultSTFTSamples   = 65536
	defaultSTFTFFTSize   = 1024
	defaultSTFTStride    = 512
	defaultSTFTMaxFrames = 120
	defaultSTFTInterval  = time.Second

	defaultBatchSize = 10
)

// TimeDuration is a time.Duration that reads "250ms" style strings.
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

// Config represents the analyzer configuration
type Config struct {
	Settings Settings                 `yaml:"settings"`
	Device   sdr.Config               `yaml:"device"`
	RTL      rtl.Config               `yaml:"rtlsdr"`
	HackRF   hackrf.Config            `yaml:"hackrf"`
	USRP     usrp.Config              `yaml:"usrp"`
	Analyzer spectrum.AnalyzerOptions `yaml:"analyzer"`
	Display  DisplayConfig            `yaml:"display"`
	Storage  StorageConfig            `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel       slog.Level   `yaml:"logLevel"`
	UpdateInterval TimeDuration `yaml:"updateInterval"` // Consumer tick
	StatusInterval TimeDuration `yaml:"statusInterval"` // Device status log period, 0 disables
	Duration       TimeDuration `yaml:"duration"`       // Run time, 0 runs until interrupted
}

// DisplayConfig configures the live views and the images written from them
type DisplayConfig struct {
	FFTSize        int          `yaml:"fftSize"`       // Streaming analyzer transform size
	WaterfallRows  int          `yaml:"waterfallRows"` // Rows kept for the waterfall view
	OutputDir      string       `yaml:"outputDir"`     // Where images are written, empty disables rendering
	Theme          string       `yaml:"theme"`
	RenderInterval TimeDuration `yaml:"renderInterval"`
	STFT           STFTConfig   `yaml:"stft"`
}

// STFTConfig configures the spectrogram computed over the latest samples
type STFTConfig struct {
	Samples   int          `yaml:"samples"`
	FFTSize   int          `yaml:"fftSize"`
	Stride    int          `yaml:"stride"`
	MaxFrames int          `yaml:"maxFrames"`
	Interval  TimeDuration `yaml:"interval"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DBPath    string `yaml:"dbPath"`    // sqlite database, empty disables storage
	BatchSize int    `yaml:"batchSize"` // Averaged spectra stored per transaction
}

func NewConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:       slog.LevelInfo,
			UpdateInterval: TimeDuration(defaultUpdateInterval),
			StatusInterval: TimeDuration(defaultStatusInterval),
		},
		Device:   sdr.DefaultConfig(),
		Analyzer: spectrum.DefaultAnalyzerOptions(),
		Display: DisplayConfig{
			FFTSize:        defaultStreamFFTSize,
			WaterfallRows:  defaultWaterfallRows,
			Theme:          string(render.EnhancedTheme),
			RenderInterval: TimeDuration(defaultRenderInterval),
			STFT: STFTConfig{
				Samples:   defaultSTFTSamples,
				FFTSize:   defaultSTFTFFTSize,
				Stride:    defaultSTFTStride,
				MaxFrames: defaultSTFTMaxFrames,
				Interval:  TimeDuration(defaultSTFTInterval),
			},
		},
		Storage: StorageConfig{
			BatchSize: defaultBatchSize,
		},
	}
}

// LoadConfig reads a YAML configuration over the defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadConfig(f)
}

func ReadConfig(r io.Reader) (*Config, error) {
	c := NewConfig()
	if err := yaml.NewDecoder(r).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("app.Config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Device.DeviceType == "" {
		c.Device.DeviceType = "simulation"
	}
	if err := c.Device.Validate(); err != nil {
		return err
	}

	if c.Settings.UpdateInterval <= 0 {
		return fmt.Errorf("app.Config: update interval must be positive: %s", c.Settings.UpdateInterval.Duration())
	}
	if c.Settings.Duration < 0 {
		return fmt.Errorf("app.Config: duration must not be negative: %s", c.Settings.Duration.Duration())
	}

	errs := []error{
		c.RTL.Validate(),
		c.HackRF.Validate(),
		c.USRP.Validate(),
		c.Analyzer.Validate(),
		c.Display.Validate(),
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if c.Storage.BatchSize <= 0 {
		return fmt.Errorf("app.Config: storage batch size must be positive: %d", c.Storage.BatchSize)
	}
	return nil
}

func (c *DisplayConfig) Validate() error {
	if c.FFTSize < 2 || c.FFTSize&(c.FFTSize-1) != 0 {
		return fmt.Errorf("app.DisplayConfig: FFT size must be a power of two >= 2: %d", c.FFTSize)
	}
	if c.WaterfallRows <= 0 {
		return fmt.Errorf("app.DisplayConfig: waterfall rows must be positive: %d", c.WaterfallRows)
	}
	if _, err := render.ParseColorTheme(c.Theme); err != nil {
		return fmt.Errorf("app.DisplayConfig: %w", err)
	}
	if c.OutputDir != "" && c.RenderInterval <= 0 {
		return fmt.Errorf("app.DisplayConfig: render interval must be positive: %s", c.RenderInterval.Duration())
	}

	stft := c.STFT
	if stft.FFTSize < 2 || stft.FFTSize&(stft.FFTSize-1) != 0 {
		return fmt.Errorf("app.DisplayConfig: STFT FFT size must be a power of two >= 2: %d", stft.FFTSize)
	}
	if stft.Stride <= 0 || stft.Stride > stft.FFTSize {
		return fmt.Errorf("app.DisplayConfig: STFT stride must be in (0, %d]: %d", stft.FFTSize, stft.Stride)
	}
	if stft.Samples < stft.FFTSize {
		return fmt.Errorf("app.DisplayConfig: STFT samples must be at least the FFT size: %d", stft.Samples)
	}
	if stft.MaxFrames <= 0 {
		return fmt.Errorf("app.DisplayConfig: STFT max frames must be positive: %d", stft.MaxFrames)
	}
	if stft.Interval <= 0 {
		return fmt.Errorf("app.DisplayConfig: STFT interval must be positive: %s", stft.Interval.Duration())
	}
	return nil
}

// CLI holds the command line: the configuration file and the device options that
// override it.
type CLI struct {
	ConfigPath  string
	ListDevices bool

	overrides []func(c *Config) error
}

// ParseCLI parses args (without the program name).
func ParseCLI(args []string, output io.Writer) (*CLI, error) {
	cli := CLI{}

	fs := flag.NewFlagSet("analyzer", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cli.ConfigPath, "c", "", "Path to the configuration file")
	fs.BoolVar(&cli.ListDevices, "list-devices", false, "List supported and detected devices and exit")

	override := func(name, usage string, fn func(c *Config, value string) error) {
		fs.Func(name, usage, func(value string) error {
			cli.overrides = append(cli.overrides, func(c *Config) error {
				if err := fn(c, value); err != nil {
					return fmt.Errorf("-%s: %w", name, err)
				}
				return nil
			})
			return nil
		})
	}

	hertz := func(dst func(c *Config) *sdr.Hertz) func(c *Config, value string) error {
		return func(c *Config, value string) error {
			hz, err := sdr.ParseHertz(value)
			if err != nil {
				return err
			}
			*dst(c) = hz
			return nil
		}
	}

	override("device", "Device type, e.g. simulation, rtlsdr, hackrf, usrp", func(c *Config, value string) error {
		c.Device.DeviceType = value
		return nil
	})
	override("serial", "Device serial number", func(c *Config, value string) error {
		c.Device.Serial = value
		return nil
	})
	override("freq", "Centre frequency, e.g. 100M or 433.92MHz", hertz(func(c *Config) *sdr.Hertz { return &c.Device.Frequency }))
	override("rate", "Sample rate, e.g. 2.4M", hertz(func(c *Config) *sdr.Hertz { return &c.Device.SampleRate }))
	override("bw", "Analog bandwidth, e.g. 2M", hertz(func(c *Config) *sdr.Hertz { return &c.Device.Bandwidth }))
	override("gain", "Gain in dB", func(c *Config, value string) error {
		gain, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		c.Device.Gain = gain
		return nil
	})
	override("antenna", "Antenna port", func(c *Config, value string) error {
		c.Device.Antenna = value
		return nil
	})
	override("out", "Directory for rendered images", func(c *Config, value string) error {
		c.Display.OutputDir = value
		return nil
	})
	override("db", "Path to the sqlite database for averaged spectra", func(c *Config, value string) error {
		c.Storage.DBPath = value
		return nil
	})
	override("duration", "Run time, e.g. 30s; 0 runs until interrupted", func(c *Config, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		c.Settings.Duration = TimeDuration(d)
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &cli, nil
}

// Config loads the configuration file, or the defaults when none was given, and
// applies the command line overrides.
func (cli *CLI) Config() (*Config, error) {
	c := NewConfig()
	if cli.ConfigPath != "" {
		var err error
		if c, err = LoadConfig(cli.ConfigPath); err != nil {
			return nil, err
		}
	}

	for _, override := range cli.overrides {
		if err := override(c); err != nil {
			return nil, err
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
