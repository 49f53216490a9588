package spectrum

import (
	"fmt"
	"math"
	"sync"

	"github.com/roman-kulish/spectrum-analyzer/internal/dsp"
)

// StreamAnalyzer is the streaming spectrogram analyzer: every FFTSize newly written
// samples produce exactly one transform, without averaging. The latest magnitude
// (0..1 display scale) and the latest PSD are each handed out once.
//
// A StreamAnalyzer is safe for one producer and one consumer goroutine.
type StreamAnalyzer struct {
	mu sync.Mutex

	fftSize    int
	sampleRate float64
	floorDB    float64
	transform  *dsp.Transform
	window     []float64

	input    []complex64
	writePos int

	re, im    []float64
	frame     []complex128
	bins      []complex128
	magnitude []float64
	psd       []float64

	spectrumReady bool
	psdReady      bool
}

// StreamOption configures a StreamAnalyzer.
type StreamOption func(*StreamAnalyzer)

// WithDisplayFloor sets the dB level mapped to 0 on the display scale.
// Positive values are treated as attenuation, e.g. 80 means -80 dB.
func WithDisplayFloor(floorDB float64) StreamOption {
	return func(s *StreamAnalyzer) {
		if floorDB != 0 {
			s.floorDB = dsp.NormalizeFloor(floorDB)
		}
	}
}

// NewStreamAnalyzer creates a streaming analyzer. Returns an error if fftSize is not a
// power of two, the window is unknown or the sample rate is not positive.
func NewStreamAnalyzer(fftSize int, sampleRate float64, window dsp.WindowType, options ...StreamOption) (*StreamAnalyzer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %f", sampleRate)
	}

	transform, err := dsp.NewTransform(fftSize)
	if err != nil {
		return nil, fmt.Errorf("creating transform: %w", err)
	}

	coeffs, err := dsp.Window(window, fftSize)
	if err != nil {
		return nil, fmt.Errorf("creating window: %w", err)
	}

	s := StreamAnalyzer{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		floorDB:    dsp.DisplayFloorDB,
		transform:  transform,
		window:     coeffs,
		input:      make([]complex64, fftSize),
		re:         make([]float64, fftSize),
		im:         make([]float64, fftSize),
		frame:      make([]complex128, fftSize),
		bins:       make([]complex128, fftSize),
		magnitude:  make([]float64, fftSize/2+1),
		psd:        make([]float64, fftSize/2+1),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

// ProcessSamples appends samples; each completed block of FFTSize samples is transformed.
func (s *StreamAnalyzer) ProcessSamples(samples []complex64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		s.input[s.writePos] = sample
		s.writePos++

		if s.writePos == s.fftSize {
			s.processFrame()
			s.writePos = 0
		}
	}
}

func (s *StreamAnalyzer) processFrame() {
	dsp.SplitSamples(s.re, s.im, s.input)
	dsp.ApplyWindow(s.re, s.im, s.window)

	s.frame = dsp.Join(s.frame, s.re, s.im)
	s.bins = s.transform.Forward(s.bins, s.frame)
	positive := s.bins[:len(s.magnitude)]

	s.magnitude = dsp.MagnitudeScaled(s.magnitude, positive, s.floorDB)
	s.psd = dsp.PSD(s.psd, positive, s.sampleRate, s.fftSize, false)

	s.spectrumReady = true
	s.psdReady = true
}

// LatestSpectrum copies the latest 0..1 magnitude spectrum into dst and clears the
// pending flag. It returns false, leaving dst untouched, if no new spectrum is pending.
func (s *StreamAnalyzer) LatestSpectrum(dst []float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.spectrumReady {
		return false
	}

	copy(dst, s.magnitude)
	s.spectrumReady = false
	return true
}

// LatestPSD copies the latest power spectral density into dst, in dB/Hz when inDB is
// set (PSDFloorDB at or below PSDEpsilon), linear otherwise. It returns false, leaving
// dst untouched, if no new PSD is pending.
func (s *StreamAnalyzer) LatestPSD(dst []float64, inDB bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.psdReady {
		return false
	}

	n := copy(dst, s.psd)
	if inDB {
		for i, p := range dst[:n] {
			if p <= dsp.PSDEpsilon {
				dst[i] = dsp.PSDFloorDB
				continue
			}
			dst[i] = 10 * math.Log10(p)
		}
	}

	s.psdReady = false
	return true
}

// Frequencies fills dst with the one-sided bin frequencies offset by center.
func (s *StreamAnalyzer) Frequencies(dst []float64, center float64) []float64 {
	return dsp.Frequencies(dst[:min(len(dst), s.NumBins())], s.sampleRate, s.fftSize, center)
}

// NumBins returns FFTSize/2+1.
func (s *StreamAnalyzer) NumBins() int {
	return s.fftSize/2 + 1
}

func (s *StreamAnalyzer) FFTSize() int {
	return s.fftSize
}

// Reset drops partially collected samples and pending results.
func (s *StreamAnalyzer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writePos = 0
	s.spectrumReady = false
	s.psdReady = false
}
