package spectrum

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/roman-kulish/spectrum-analyzer/internal/dsp"
)

var ErrInvalidStride = errors.New("STFT stride must satisfy 0 < stride <= FFT size")

// STFT computes a batch short-time Fourier transform spectrogram over a complete
// capture held in memory. It is not safe for concurrent use; each caller owns an instance.
type STFT struct {
	fftSize    int
	stride     int
	sampleRate float64
	transform  *dsp.Transform
	window     []float64

	re, im []float64
	frame  []complex128
	bins   []complex128
	power  []float64
}

// NewSTFT creates a batch STFT with a fixed Blackman window.
// Returns ErrInvalidStride if stride is not in (0, fftSize], or a transform error
// if fftSize is not a power of two.
func NewSTFT(fftSize, stride int, sampleRate float64) (*STFT, error) {
	if stride <= 0 || stride > fftSize {
		return nil, fmt.Errorf("%w: stride=%d, fftSize=%d", ErrInvalidStride, stride, fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %f", sampleRate)
	}

	transform, err := dsp.NewTransform(fftSize)
	if err != nil {
		return nil, fmt.Errorf("creating transform: %w", err)
	}

	window, err := dsp.Window(dsp.WindowBlackman, fftSize)
	if err != nil {
		return nil, fmt.Errorf("creating window: %w", err)
	}

	return &STFT{
		fftSize:    fftSize,
		stride:     stride,
		sampleRate: sampleRate,
		transform:  transform,
		window:     window,
		re:         make([]float64, fftSize),
		im:         make([]float64, fftSize),
		frame:      make([]complex128, fftSize),
		bins:       make([]complex128, fftSize),
		power:      make([]float64, fftSize),
	}, nil
}

// NumFrames returns 1 for captures shorter than one FFT, (n-fftSize)/stride+1 otherwise.
func (s *STFT) NumFrames(n int) int {
	if n < s.fftSize {
		return 1
	}
	return (n-s.fftSize)/s.stride + 1
}

// Overlap returns the fraction of samples shared by consecutive frames.
func (s *STFT) Overlap() float64 {
	return float64(s.fftSize-s.stride) / float64(s.fftSize)
}

// Compute returns the dB spectrogram of samples. Frames running past the end of the
// input are zero-padded. Power is FFT-shifted so DC sits in the middle, converted to
// dB against the global maximum, and rows are reversed so row 0 is the highest
// frequency.
func (s *STFT) Compute(samples []complex64) *Spectrogram {
	frames := s.NumFrames(len(samples))
	out := &Spectrogram{
		Bins:       s.fftSize,
		Frames:     frames,
		SampleRate: s.sampleRate,
		Stride:     s.stride,
		Data:       make([]float64, s.fftSize*frames),
	}

	for frame := 0; frame < frames; frame++ {
		offset := frame * s.stride
		for n := 0; n < s.fftSize; n++ {
			if idx := offset + n; idx < len(samples) {
				s.re[n] = float64(real(samples[idx])) * s.window[n]
				s.im[n] = float64(imag(samples[idx])) * s.window[n]
				continue
			}
			s.re[n], s.im[n] = 0, 0
		}

		s.frame = dsp.Join(s.frame, s.re, s.im)
		s.bins = s.transform.Forward(s.bins, s.frame)
		s.power = dsp.Power(s.power, s.bins)
		dsp.FFTShift(s.power)

		for k, p := range s.power {
			out.Data[k*frames+frame] = p
		}
	}

	toDecibels(out.Data)
	out.reverseRows()
	return out
}

// toDecibels converts power to 10*log10 using an epsilon derived from the global
// maximum for non-positive values. An all-zero input maps to PSDFloorDB.
func toDecibels(data []float64) {
	var peak float64
	for _, v := range data {
		peak = max(peak, math.Abs(v))
	}

	if peak == 0 {
		for i := range data {
			data[i] = dsp.PSDFloorDB
		}
		return
	}

	epsilon := peak * math.Sqrt(1e-20)
	for i, v := range data {
		if v <= 0 {
			v = epsilon
		}
		data[i] = 10 * math.Log10(v)
	}
}

// Spectrogram is a [Bins x Frames] dB matrix. Data[row*Frames+frame] holds the level
// of frequency row `row` in time frame `frame`; row 0 is the highest frequency.
type Spectrogram struct {
	Bins       int
	Frames     int
	SampleRate float64
	Stride     int
	Data       []float64
}

// Clone returns a deep copy of the spectrogram.
func (s *Spectrogram) Clone() *Spectrogram {
	c := *s
	c.Data = slices.Clone(s.Data)
	return &c
}

func (s *Spectrogram) reverseRows() {
	for frame := 0; frame < s.Frames; frame++ {
		for k := 0; k < s.Bins/2; k++ {
			top := k*s.Frames + frame
			bottom := (s.Bins-1-k)*s.Frames + frame
			s.Data[top], s.Data[bottom] = s.Data[bottom], s.Data[top]
		}
	}
}

// At returns the level of frequency row in time frame.
func (s *Spectrogram) At(row, frame int) float64 {
	return s.Data[row*s.Frames+frame]
}

// Row returns a view over all frames of one frequency row.
func (s *Spectrogram) Row(row int) []float64 {
	return s.Data[row*s.Frames : (row+1)*s.Frames]
}

// Frame copies one time frame (all frequency rows, top to bottom) into dst.
func (s *Spectrogram) Frame(dst []float64, frame int) []float64 {
	if cap(dst) < s.Bins {
		dst = make([]float64, s.Bins)
	}
	dst = dst[:s.Bins]
	for row := range dst {
		dst[row] = s.Data[row*s.Frames+frame]
	}
	return dst
}

// Frequencies returns the frequency of every row, in row order (descending),
// offset by center.
func (s *Spectrogram) Frequencies(center float64) []float64 {
	width := dsp.BinWidth(s.SampleRate, s.Bins)
	out := make([]float64, s.Bins)
	for row := range out {
		out[row] = center + float64(s.Bins/2-1-row)*width
	}
	return out
}

// Times returns the start time of every frame in seconds from the first sample.
func (s *Spectrogram) Times() []float64 {
	step := float64(s.Stride) / s.SampleRate
	out := make([]float64, s.Frames)
	for frame := range out {
		out[frame] = float64(frame) * step
	}
	return out
}

// Duration returns the time covered by the frames, in seconds.
func (s *Spectrogram) Duration() float64 {
	return float64((s.Frames-1)*s.Stride+s.Bins) / s.SampleRate
}
