package sdr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Hertz is a frequency or rate that unmarshals from plain numbers or SI strings
// such as "100M", "2.4 GHz" or "61.44MHz".
type Hertz float64

func ParseHertz(s string) (Hertz, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Hertz(v), nil
	}

	v, unit, err := humanize.ParseSI(s)
	if err != nil {
		return 0, fmt.Errorf("sdr.Hertz: failed to parse %q: %w", s, err)
	}

	switch strings.ToLower(unit) {
	case "", "hz", "s/s", "sps":
	default:
		return 0, fmt.Errorf("sdr.Hertz: unexpected unit %q in %q", unit, s)
	}
	return Hertz(v), nil
}

func (h *Hertz) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseHertz(value.Value)
	if err != nil {
		return err
	}

	*h = v
	return nil
}

func (h Hertz) MarshalYAML() (interface{}, error) {
	return float64(h), nil
}

func (h Hertz) String() string {
	return FormatHertz(float64(h))
}

// FormatHertz renders hz with SI prefixes, e.g. "100 MHz".
func FormatHertz(hz float64) string {
	return humanize.SIWithDigits(hz, 3, "Hz")
}

// FormatRate renders a sample rate with SI prefixes, e.g. "1 MS/s".
func FormatRate(sps float64) string {
	return humanize.SIWithDigits(sps, 3, "S/s")
}
