// Package render draws waterfalls and spectrograms as annotated raster images.
package render

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"
	"time"
)

const (
	fontSize = 12.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 100
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

type ImageFormat string

// ParseImageFormat accepts "png", "jpeg" and "jpg" in any case.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return ImagePNG, nil
	case "jpeg", "jpg":
		return ImageJPEG, nil
	}
	return "", fmt.Errorf("invalid image format: %s", s)
}

// BorderConfig defines the white space around the waterfall
type BorderConfig struct {
	Top    int // Space for frequency scale
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds the options of a Renderer
type RenderConfig struct {
	TimeFormat     string         // Time scale labels, e.g. "15:04:05"
	DatetimeFormat string         // Info bar timestamps
	Location       *time.Location // Timezone for time display

	FontSize     float64    // Font size in points
	ColorTheme   ColorTheme // Colour scheme for power levels
	ColorMapSize int        // Number of colours in the gradient (0 for default)

	// MinPower and MaxPower pin the colour range instead of the percentile bounds
	MinPower *float64
	MaxPower *float64

	// Smoothing, when > 0, carries the power bounds across Render calls with this
	// exponential smoothing factor
	Smoothing float64

	NoAnnotations bool
	BorderConfig  BorderConfig
}

// Renderer turns waterfalls into images. A Renderer is not safe for concurrent use.
type Renderer struct {
	config   RenderConfig
	colorMap *ColorMapper
	smooth   *SmoothBounds
}

func NewRenderer(config RenderConfig) *Renderer {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.ColorTheme == "" {
		config.ColorTheme = EnhancedTheme
	}

	if config.NoAnnotations {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	r := Renderer{config: config}
	if config.Smoothing > 0 {
		r.smooth = NewSmoothBounds(config.Smoothing)
	}
	return &r
}

// Bounds returns the power bounds used for w: the percentile bounds (smoothed if
// configured) overridden by MinPower/MaxPower.
func (r *Renderer) Bounds(w *Waterfall) PowerBounds {
	var bounds PowerBounds
	if r.smooth != nil {
		for _, row := range w.Rows {
			bounds = r.smooth.Update(row)
		}
		if len(w.Rows) == 0 {
			bounds = r.smooth.Current()
		}
	} else {
		bounds = w.Bounds()
	}

	if r.config.MinPower != nil {
		bounds.Min = *r.config.MinPower
	}
	if r.config.MaxPower != nil {
		bounds.Max = *r.config.MaxPower
	}
	return bounds
}

// Render draws w one cell per pixel, framed by the annotations.
func (r *Renderer) Render(w *Waterfall) (*image.RGBA, error) {
	if w == nil || w.Height == 0 || w.Width == 0 {
		return nil, ErrEmptyWaterfall
	}

	borders := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, w.Width+borders.Left+borders.Right, w.Height+borders.Top+borders.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(borders.Left, borders.Top, borders.Left+w.Width, borders.Top+w.Height)

	bounds := r.Bounds(w)
	if r.colorMap == nil {
		r.colorMap = NewColorMapperWithSize(r.config.ColorTheme, bounds, r.config.ColorMapSize)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(annotatorConfig{
			TimeFormat:     r.config.TimeFormat,
			DatetimeFormat: r.config.DatetimeFormat,
			Location:       r.config.Location,
			FontSize:       r.config.FontSize,
			Borders:        borders,
		})
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, w); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	draw.Draw(img, area, image.Black, image.Point{}, draw.Src)
	for y, row := range w.Rows {
		for x, power := range row {
			img.Set(area.Min.X+x, area.Min.Y+y, r.colorMap.Color(power))
		}
	}

	return img, nil
}

// Encode writes img to out in the given format.
func Encode(out io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	case ImagePNG, "":
		return png.Encode(out, img)
	}
	return fmt.Errorf("invalid image format: %s", format)
}

// WriteFile renders w and writes it to path. The file is written to a temporary
// name first and renamed, so readers never see a partial image.
func (r *Renderer) WriteFile(path string, w *Waterfall, format ImageFormat) (err error) {
	img, err := r.Render(w)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err = Encode(out, img, format); err != nil {
		_ = out.Close()
		return fmt.Errorf("encoding image: %w", err)
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
