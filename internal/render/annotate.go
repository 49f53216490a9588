package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 120.0
	tickMarkHeight = 5
	pixelsPerLabel = 150.0
	pixelsPerTime  = 60.0
)

type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) annotate(img *image.RGBA, w *Waterfall) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawFrequencyScale(img, w); err != nil {
		return fmt.Errorf("drawing frequency scale: %w", err)
	}
	if err := a.drawTimeScale(img, w); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, w); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, w *Waterfall) error {
	bandwidth := w.Bandwidth()
	if bandwidth <= 0 {
		return nil
	}

	step := niceFrequencyStep(bandwidth, w.Width)
	textY := a.config.Borders.Top - a.fontHeight()/2

	for freq := math.Ceil(w.FrequencyMin/step) * step; freq <= w.FrequencyMax; freq += step {
		x := a.config.Borders.Left + int((freq-w.FrequencyMin)/bandwidth*float64(w.Width-1))

		for y := a.config.Borders.Top - tickMarkHeight; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatFrequency(freq)
		width := font.MeasureString(a.fontFace, label)
		if _, err := a.context.DrawString(label, freetype.Pt(x-width.Round()/2, textY)); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, w *Waterfall) error {
	duration := w.TimeEnd.Sub(w.TimeStart)
	metrics := a.fontFace.Metrics()

	label := func(ts time.Time, y int, format string) error {
		imgY := a.config.Borders.Top + y
		for x := a.config.Borders.Left - tickMarkHeight; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		textY := imgY + a.fontHeight()/2 - metrics.Descent.Round()
		_, err := a.context.DrawString(ts.In(a.config.Location).Format(format), freetype.Pt(5, textY))
		return err
	}

	if duration <= 0 || w.Height < 2 {
		return label(w.TimeStart, 0, a.config.TimeFormat)
	}

	step := niceTimeStep(duration, w.Height)
	format := a.config.TimeFormat
	if step < time.Second {
		format = "15:04:05.000"
	}

	for offset := time.Duration(0); offset <= duration; offset += step {
		y := int(float64(offset) / float64(duration) * float64(w.Height-1))
		if err := label(w.TimeStart.Add(offset), y, format); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, w *Waterfall) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Freq: %s - %s", formatFrequency(w.FrequencyMin), formatFrequency(w.FrequencyMax)))
	sb.WriteString(fmt.Sprintf("; Time: %s - %s",
		w.TimeStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		w.TimeEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))
	if w.Width > 0 {
		sb.WriteString(fmt.Sprintf("; 1px = %s", formatFrequency(w.Bandwidth()/float64(w.Width))))
	}

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-a.fontHeight())/2 - metrics.Descent.Round()

	if _, err := a.context.DrawString(sb.String(), freetype.Pt(a.config.Borders.Left, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// niceFrequencyStep returns a decade step giving about one label per 150 pixels,
// or half the span when no decade yields two labels.
func niceFrequencyStep(span float64, width int) float64 {
	target := span / math.Max(float64(width)/pixelsPerLabel, 1)

	for step := 1.0; step <= 1e10; step *= 10 {
		if step >= target {
			if span/step >= 2 {
				return step
			}
			break
		}
	}
	return span / 2
}

var niceTimeSteps = []time.Duration{
	time.Millisecond,
	10 * time.Millisecond,
	100 * time.Millisecond,
	time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
	4 * time.Hour,
}

// niceTimeStep returns the first standard interval giving at most one label per
// 60 pixels of height.
func niceTimeStep(duration time.Duration, height int) time.Duration {
	labels := math.Max(float64(height)/pixelsPerTime, 1)
	rough := time.Duration(float64(duration) / labels)

	for _, step := range niceTimeSteps {
		if rough <= step {
			return step
		}
	}
	return 6 * time.Hour
}

func formatFrequency(hz float64) string {
	value, prefix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%.2f %sHz", value, prefix)
}
