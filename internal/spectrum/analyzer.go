package spectrum

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/roman-kulish/spectrum-analyzer/internal/dsp"
)

const (
	DefaultFFTSize        = 1024
	DefaultWindow         = dsp.WindowHamming
	DefaultAveragingCount = 4
	DefaultOverlapRatio   = 0.5
)

// AnalyzerOptions configures the continuous spectrum analyzer.
type AnalyzerOptions struct {
	FFTSize        int            `yaml:"fftSize" json:"fftSize"`               // Transform size, power of two
	Window         dsp.WindowType `yaml:"window" json:"window"`                 // Window applied to every frame
	AveragingCount int            `yaml:"averagingCount" json:"averagingCount"` // Frames folded into one result
	OverlapRatio   float64        `yaml:"overlapRatio" json:"overlapRatio"`     // Fraction of a frame kept for the next one, [0, 1)
	RemoveDC       bool           `yaml:"removeDC" json:"removeDC"`             // Subtract the frame mean before windowing
}

// DefaultAnalyzerOptions returns FFT 1024, Hamming, 4 averages, 50% overlap, DC removal on.
func DefaultAnalyzerOptions() AnalyzerOptions {
	return AnalyzerOptions{
		FFTSize:        DefaultFFTSize,
		Window:         DefaultWindow,
		AveragingCount: DefaultAveragingCount,
		OverlapRatio:   DefaultOverlapRatio,
		RemoveDC:       true,
	}
}

func (o *AnalyzerOptions) Validate() error {
	if !dsp.IsPowerOfTwo(o.FFTSize) || o.FFTSize < 2 {
		return fmt.Errorf("spectrum.AnalyzerOptions: FFT size must be a power of two >= 2: %d", o.FFTSize)
	}
	if err := o.Window.Validate(); err != nil {
		return fmt.Errorf("spectrum.AnalyzerOptions: %w", err)
	}
	if o.AveragingCount < 1 {
		return fmt.Errorf("spectrum.AnalyzerOptions: averaging count must be at least 1: %d", o.AveragingCount)
	}
	if o.OverlapRatio < 0 || o.OverlapRatio >= 1 {
		return fmt.Errorf("spectrum.AnalyzerOptions: overlap ratio must be in [0, 1): %0.2f given", o.OverlapRatio)
	}
	return nil
}

// Analyzer is the continuous overlap-and-average spectrum analyzer.
//
// Samples are written into an internal ring twice the FFT size. Each time FFTSize
// unread samples are available, one frame is extracted, optionally DC-removed,
// windowed, transformed and folded into the magnitude and PSD accumulators. After a
// frame, only int(FFTSize*OverlapRatio) samples are considered unread, so consecutive
// frames share that many samples.
//
// Once AveragingCount frames have been folded the analyzer is ready. Reading the
// averaged magnitude or PSD starts a new averaging cycle; reads are not idempotent.
//
// An Analyzer is safe for one producer and one consumer goroutine.
type Analyzer struct {
	mu sync.Mutex

	opts       AnalyzerOptions
	sampleRate float64
	transform  *dsp.Transform
	window     []float64
	overlap    int

	input     []complex64
	writePos  int
	available int

	re, im []float64
	frame  []complex128
	bins   []complex128
	mag    []float64
	psd    []float64

	magAcc []float64
	psdAcc []float64
	folded int
}

// NewAnalyzer creates a continuous analyzer for a stream sampled at sampleRate.
// Returns an error if the options are invalid or the transform cannot be built.
func NewAnalyzer(sampleRate float64, opts AnalyzerOptions) (*Analyzer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %f", sampleRate)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	transform, err := dsp.NewTransform(opts.FFTSize)
	if err != nil {
		return nil, fmt.Errorf("creating transform: %w", err)
	}

	window, err := dsp.Window(opts.Window, opts.FFTSize)
	if err != nil {
		return nil, fmt.Errorf("creating window: %w", err)
	}

	n := opts.FFTSize
	bins := n/2 + 1
	return &Analyzer{
		opts:       opts,
		sampleRate: sampleRate,
		transform:  transform,
		window:     window,
		overlap:    int(float64(n) * opts.OverlapRatio),
		input:      make([]complex64, 2*n),
		re:         make([]float64, n),
		im:         make([]float64, n),
		frame:      make([]complex128, n),
		bins:       make([]complex128, n),
		mag:        make([]float64, bins),
		psd:        make([]float64, bins),
		magAcc:     make([]float64, bins),
		psdAcc:     make([]float64, bins),
	}, nil
}

// ProcessSamples feeds samples into the analyzer, folding a frame every time
// enough unread samples are available.
func (a *Analyzer) ProcessSamples(samples []complex64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range samples {
		a.input[a.writePos] = s
		a.writePos = (a.writePos + 1) % len(a.input)
		a.available++

		if a.available >= a.opts.FFTSize {
			a.processFrame()
			a.available = a.overlap
		}
	}
}

func (a *Analyzer) processFrame() {
	n := a.opts.FFTSize
	readPos := (a.writePos - n + len(a.input)) % len(a.input)
	for i := 0; i < n; i++ {
		s := a.input[(readPos+i)%len(a.input)]
		a.re[i] = float64(real(s))
		a.im[i] = float64(imag(s))
	}

	if a.opts.RemoveDC {
		dsp.RemoveDC(a.re, a.im)
	}
	dsp.ApplyWindow(a.re, a.im, a.window)

	a.frame = dsp.Join(a.frame, a.re, a.im)
	a.bins = a.transform.Forward(a.bins, a.frame)
	positive := a.bins[:len(a.magAcc)]

	if a.folded == 0 {
		clear(a.magAcc)
		clear(a.psdAcc)
	}

	a.mag = dsp.MagnitudeDB(a.mag, positive, false)
	a.psd = dsp.PSD(a.psd, positive, a.sampleRate, n, true)
	floats.Add(a.magAcc, a.mag)
	floats.Add(a.psdAcc, a.psd)
	a.folded++
}

// IsSpectrumReady returns true once AveragingCount frames have been folded since the last read.
func (a *Analyzer) IsSpectrumReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready()
}

func (a *Analyzer) ready() bool {
	return a.folded >= a.opts.AveragingCount
}

// Spectrum copies the averaged magnitude in dB into dst and starts a new cycle.
// It returns false, leaving dst untouched, when no averaged spectrum is ready.
func (a *Analyzer) Spectrum(dst []float64) bool {
	return a.Read(dst, nil)
}

// PSD copies the averaged power spectral density in dB/Hz into dst and starts a new cycle.
// It returns false, leaving dst untouched, when no averaged spectrum is ready.
func (a *Analyzer) PSD(dst []float64) bool {
	return a.Read(nil, dst)
}

// Read copies both averages (either destination may be nil) and starts a new cycle.
func (a *Analyzer) Read(magnitude, psd []float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready() {
		return false
	}
	a.read(magnitude, psd)
	return true
}

func (a *Analyzer) read(magnitude, psd []float64) {
	scale := 1 / float64(a.folded)
	for i := 0; i < min(len(magnitude), len(a.magAcc)); i++ {
		magnitude[i] = a.magAcc[i] * scale
	}
	for i := 0; i < min(len(psd), len(a.psdAcc)); i++ {
		psd[i] = a.psdAcc[i] * scale
	}

	a.folded = 0
}

// Snapshot reads both averages into a new Snapshot. ok is false when nothing is ready.
func (a *Analyzer) Snapshot(center float64) (*Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready() {
		return nil, false
	}

	bins := len(a.magAcc)
	snap := &Snapshot{
		Timestamp:       time.Now().UTC(),
		CenterFrequency: center,
		SampleRate:      a.sampleRate,
		FFTSize:         a.opts.FFTSize,
		Window:          a.opts.Window.String(),
		Averages:        a.folded,
		Frequencies:     dsp.Frequencies(make([]float64, bins), a.sampleRate, a.opts.FFTSize, center),
		Magnitude:       make([]float64, bins),
		PSD:             make([]float64, bins),
	}
	a.read(snap.Magnitude, snap.PSD)
	return snap, true
}

// Frequencies fills dst with the one-sided bin frequencies offset by center.
func (a *Analyzer) Frequencies(dst []float64, center float64) []float64 {
	return dsp.Frequencies(dst[:min(len(dst), a.NumBins())], a.sampleRate, a.opts.FFTSize, center)
}

// NumBins returns FFTSize/2+1.
func (a *Analyzer) NumBins() int {
	return a.opts.FFTSize/2 + 1
}

func (a *Analyzer) FFTSize() int {
	return a.opts.FFTSize
}

func (a *Analyzer) SampleRate() float64 {
	return a.sampleRate
}

func (a *Analyzer) Window() dsp.WindowType {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts.Window
}

// SetWindow replaces the frame window; accumulated frames are kept.
func (a *Analyzer) SetWindow(t dsp.WindowType) error {
	window, err := dsp.Window(t, a.opts.FFTSize)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.opts.Window = t
	a.window = window
	return nil
}

func (a *Analyzer) SetAveragingCount(count int) error {
	if count < 1 {
		return fmt.Errorf("averaging count must be at least 1: %d", count)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.opts.AveragingCount = count
	return nil
}

func (a *Analyzer) SetOverlapRatio(ratio float64) error {
	if ratio < 0 || ratio >= 1 {
		return fmt.Errorf("overlap ratio must be in [0, 1): %0.2f given", ratio)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.opts.OverlapRatio = ratio
	a.overlap = int(float64(a.opts.FFTSize) * ratio)
	return nil
}

func (a *Analyzer) SetRemoveDC(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.opts.RemoveDC = enabled
}

// Reset clears buffered samples, the fold count and both accumulators.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.input)
	clear(a.magAcc)
	clear(a.psdAcc)
	a.writePos = 0
	a.available = 0
	a.folded = 0
}
