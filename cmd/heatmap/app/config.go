package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/render"
)

const (
	FieldPSD       Field = "psd"
	FieldMagnitude Field = "magnitude"
)

// Field selects which stored series is drawn
type Field string

type Config struct {
	DBPath        string
	SessionID     int64
	ListSessions  bool
	OutputFile    string
	Format        render.ImageFormat
	Theme         render.ColorTheme
	Field         Field
	TimeZone      *time.Location
	StartTime     *time.Time
	EndTime       *time.Time
	MaxPower      *float64
	MinPower      *float64
	Verbose       bool
	NoAnnotations bool
}

func NewConfig() *Config {
	return &Config{
		Format:   render.ImagePNG,
		Theme:    render.EnhancedTheme,
		Field:    FieldPSD,
		TimeZone: time.Local,
	}
}

// NewConfigFromCLI parses args (without the program name). Times are read as
// time.DateTime in the selected timezone.
func NewConfigFromCLI(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("heatmap", flag.ContinueOnError)
	fs.SetOutput(output)

	var imageFormat, theme, field, timeZone, startTime, endTime string
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.BoolVar(&c.ListSessions, "list", false, "List the stored sessions and exit")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(render.ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(render.EnhancedTheme), "Colour theme. [classic, grayscale, jungle, thermal, marine, enhanced]")
	fs.StringVar(&field, "field", string(FieldPSD), "Stored series to draw. [psd, magnitude]")
	fs.StringVar(&timeZone, "tz", "Local", "Timezone for the time scale, e.g. UTC or Australia/Sydney")
	fs.StringVar(&startTime, "start", "", "Draw spectra from this time (format "+time.DateTime+")")
	fs.StringVar(&endTime, "end", "", "Draw spectra up to this time (format "+time.DateTime+")")
	fs.Func("min-power", "Define a manual minimum power (format nn.n)", floatFlag(&c.MinPower))
	fs.Func("max-power", "Define a manual maximum power (format nn.n)", floatFlag(&c.MaxPower))
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disabled annotations such as time and frequency scales")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if c.TimeZone, err = time.LoadLocation(timeZone); err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	if c.StartTime, err = parseTime(startTime, c.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid start time: %w", err)
	}
	if c.EndTime, err = parseTime(endTime, c.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid end time: %w", err)
	}
	if c.Format, err = render.ParseImageFormat(imageFormat); err != nil {
		return nil, err
	}
	if c.Theme, err = render.ParseColorTheme(theme); err != nil {
		return nil, err
	}
	c.Field = Field(strings.ToLower(field))

	if err = c.Validate(); err != nil {
		fs.Usage()
		return nil, err
	}

	if !c.ListSessions {
		c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case c.ListSessions:
		return nil
	case c.SessionID <= 0:
		return errors.New("session id is required")
	case c.OutputFile == "":
		return errors.New("output file is required")
	case c.Field != FieldPSD && c.Field != FieldMagnitude:
		return fmt.Errorf("invalid field: %s", c.Field)
	case c.StartTime != nil && c.EndTime != nil && !c.EndTime.After(*c.StartTime):
		return errors.New("end time must be after start time")
	case c.MinPower != nil && c.MaxPower != nil && *c.MaxPower <= *c.MinPower:
		return errors.New("max power must be greater than min power")
	}
	return nil
}

func floatFlag(dst **float64) func(string) error {
	return func(value string) error {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		*dst = &v
		return nil
	}
}

func parseTime(value string, loc *time.Location) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	t, err := time.ParseInLocation(time.DateTime, value, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
