package render

import (
	"errors"
	"math"
	"slices"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/spectrum"
)

var ErrEmptyWaterfall = errors.New("waterfall has no rows")

// Waterfall is a time by frequency matrix of dB levels. Rows are in time order,
// oldest first; columns run from FrequencyMin to FrequencyMax.
type Waterfall struct {
	Width, Height              int
	FrequencyMin, FrequencyMax float64
	TimeStart, TimeEnd         time.Time
	Rows                       [][]float64
}

func NewWaterfall() *Waterfall {
	return &Waterfall{
		FrequencyMin: math.MaxFloat64,
		FrequencyMax: -math.MaxFloat64,
	}
}

// Append adds the magnitude of a snapshot as the next row.
func (w *Waterfall) Append(s *spectrum.Snapshot) {
	if len(s.Magnitude) == 0 {
		return
	}

	freqMin, freqMax := s.CenterFrequency-s.SampleRate/2, s.CenterFrequency+s.SampleRate/2
	if n := len(s.Frequencies); n > 0 {
		freqMin, freqMax = s.Frequencies[0], s.Frequencies[n-1]
	}

	w.AppendRow(slices.Clone(s.Magnitude), freqMin, freqMax, s.Timestamp)
}

// AppendRow adds row, spanning freqMin to freqMax at ts. The waterfall keeps row.
func (w *Waterfall) AppendRow(row []float64, freqMin, freqMax float64, ts time.Time) {
	w.Width = max(w.Width, len(row))
	w.Height++

	w.FrequencyMin = min(w.FrequencyMin, freqMin)
	w.FrequencyMax = max(w.FrequencyMax, freqMax)

	if w.TimeStart.IsZero() || ts.Before(w.TimeStart) {
		w.TimeStart = ts
	}
	if w.TimeEnd.IsZero() || ts.After(w.TimeEnd) {
		w.TimeEnd = ts
	}

	w.Rows = append(w.Rows, row)
}

// FromSpectrogram lays out every STFT frame as a row, with frequency ascending
// left to right. center offsets the baseband frequencies; start is the time of
// the first sample.
func FromSpectrogram(s *spectrum.Spectrogram, center float64, start time.Time) *Waterfall {
	w := NewWaterfall()
	if s == nil || s.Frames == 0 || s.Bins == 0 {
		return w
	}

	freqs := s.Frequencies(center)
	freqMin, freqMax := freqs[len(freqs)-1], freqs[0]

	for frame, offset := range s.Times() {
		row := s.Frame(nil, frame)
		slices.Reverse(row)
		w.AppendRow(row, freqMin, freqMax, start.Add(time.Duration(offset*float64(time.Second))))
	}
	return w
}

// FromSnapshots builds a waterfall with one row per snapshot.
func FromSnapshots(snapshots []*spectrum.Snapshot) *Waterfall {
	w := NewWaterfall()
	for _, s := range snapshots {
		w.Append(s)
	}
	return w
}

// Bounds returns the percentile power bounds over every cell.
func (w *Waterfall) Bounds() PowerBounds {
	h := NewPowerHistogram()
	for _, row := range w.Rows {
		h.UpdateAll(row)
	}
	return h.Bounds()
}

// Bandwidth returns FrequencyMax - FrequencyMin, or 0 for an empty waterfall.
func (w *Waterfall) Bandwidth() float64 {
	if w.Height == 0 {
		return 0
	}
	return w.FrequencyMax - w.FrequencyMin
}
