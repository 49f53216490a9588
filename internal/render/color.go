package render

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme is a predefined colour scheme for power levels:
// - ClassicTheme: blue to red
// - GrayscaleTheme: black to white
// - JungleTheme: dark green to yellow
// - ThermalTheme: black to red to yellow to white
// - MarineTheme: deep blue to cyan to white
// - EnhancedTheme: black to blue to cyan to yellow to red, stretched at the low end
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"
	GrayscaleTheme ColorTheme = "grayscale"
	JungleTheme    ColorTheme = "jungle"
	ThermalTheme   ColorTheme = "thermal"
	MarineTheme    ColorTheme = "marine"
	EnhancedTheme  ColorTheme = "enhanced"

	DefaultColorMapSize = 256
)

// NoDataColor is used for cells without a power level.
var NoDataColor color.Color = color.Black

var themes = map[ColorTheme]func(float64) color.Color{
	ClassicTheme:   classic,
	GrayscaleTheme: grayscale,
	JungleTheme:    jungle,
	ThermalTheme:   thermal,
	MarineTheme:    marine,
	EnhancedTheme:  enhanced,
}

// ParseColorTheme returns the theme named s, case-insensitively. An empty name
// selects EnhancedTheme.
func ParseColorTheme(s string) (ColorTheme, error) {
	if s == "" {
		return EnhancedTheme, nil
	}

	theme := ColorTheme(strings.ToLower(s))
	if _, ok := themes[theme]; !ok {
		return "", fmt.Errorf("unknown color theme: %s", s)
	}
	return theme, nil
}

// ColorMapper maps power levels to colours through a pre-computed lookup table.
type ColorMapper struct {
	colors        []color.Color
	theme         func(float64) color.Color
	size          int
	bounds        PowerBounds
	powerPerIndex float64
}

func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

// NewColorMapperWithSize creates a mapper with size colours in the table; unknown
// themes fall back to EnhancedTheme.
func NewColorMapperWithSize(theme ColorTheme, bounds PowerBounds, size int) *ColorMapper {
	if size < 2 {
		size = DefaultColorMapSize
	}

	fn, ok := themes[theme]
	if !ok {
		fn = enhanced
	}

	cm := &ColorMapper{
		colors: make([]color.Color, size),
		theme:  fn,
		size:   size,
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds rebuilds the lookup table for a new power range.
func (cm *ColorMapper) UpdateBounds(bounds PowerBounds) {
	if bounds.Max <= bounds.Min {
		bounds.Max = bounds.Min + 1
	}

	cm.bounds = bounds
	cm.powerPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)

	for i := range cm.colors {
		cm.colors[i] = cm.theme(float64(i) / float64(cm.size-1))
	}
}

func (cm *ColorMapper) Bounds() PowerBounds {
	return cm.bounds
}

// Color returns the colour of power, clamped to the bounds. NaN maps to NoDataColor.
func (cm *ColorMapper) Color(power float64) color.Color {
	if math.IsNaN(power) {
		return NoDataColor
	}

	power = min(max(power, cm.bounds.Min), cm.bounds.Max)
	index := int(math.Round((power - cm.bounds.Min) / cm.powerPerIndex))
	return cm.colors[min(max(index, 0), cm.size-1)]
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func classic(power float64) color.Color {
	power = clamp01(power)
	return colorful.Hsv(240-power*240, 0.9+power*0.1, math.Pow(power, 0.7)).Clamped()
}

func grayscale(power float64) color.Color {
	v := math.Pow(clamp01(power), 0.7)
	return colorful.Color{R: v, G: v, B: v}
}

func jungle(power float64) color.Color {
	power = clamp01(power)
	return colorful.Hsv(120-power*60, 1, 0.3+math.Pow(power, 0.6)*0.7).Clamped()
}

func thermal(power float64) color.Color {
	power = clamp01(power)
	switch {
	case power < 1.0/3:
		return colorful.Color{R: power * 3}
	case power < 2.0/3:
		return colorful.Color{R: 1, G: (power - 1.0/3) * 3}
	default:
		return colorful.Color{R: 1, G: 1, B: math.Min(1, (power-2.0/3)*3)}
	}
}

func marine(power float64) color.Color {
	power = clamp01(power)
	return colorful.Hsv(240-power*60, 1-power*0.8, 0.3+math.Pow(power, 0.6)*0.7).Clamped()
}

func enhanced(power float64) color.Color {
	power = clamp01(power)
	boosted := math.Pow(power, 0.7)

	var h, s, v float64
	switch {
	case power < 0.25:
		h, s, v = 240, 1, boosted*4
	case power < 0.5:
		h, s, v = 240-(power-0.25)*240, 1, boosted*1.5
	case power < 0.75:
		h, s, v = 180-(power-0.5)*4*120, 1, boosted*1.5
	default:
		h, s, v = 60-(power-0.75)*4*60, 1, 1
	}

	return colorful.Hsv(h, s, math.Min(1, v)).Clamped()
}
