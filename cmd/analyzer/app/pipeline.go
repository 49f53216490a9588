package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/render"
	"github.com/roman-kulish/spectrum-analyzer/internal/ring"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/spectrum"
)

var ErrStartReceiving = errors.New("failed to start receiving")

// WithPipelineLogger sets the logger for the pipeline
func WithPipelineLogger(logger *slog.Logger) func(p *Pipeline) {
	return func(p *Pipeline) {
		p.logger = logger.With(slog.String("component", "pipeline"))
	}
}

type waterfallRow struct {
	timestamp        time.Time
	freqMin, freqMax float64
	levels           []float64
}

// Pipeline feeds device samples into the analyzers and keeps the views read by the
// display layer: the latest streaming spectrum, the waterfall of recent PSD rows
// and the STFT slab over the latest samples.
//
// process runs on the acquisition goroutine; Tick, ComputeSlab and the readers run
// on the consumer side. Snapshots and waterfalls are handed out as copies.
type Pipeline struct {
	device      sdr.Device
	bufferSize  int
	center      float64
	sampleRate  float64
	window      string
	maxSlab     int
	slabFFTSize int

	samples  *ring.Buffer[complex64]
	rows     *ring.Buffer[waterfallRow]
	stream   *spectrum.StreamAnalyzer
	analyzer *spectrum.Analyzer
	stft     *spectrum.STFT

	mu        sync.Mutex
	tick      uint64
	latest    *spectrum.Snapshot
	fresh     bool
	slab      *spectrum.Spectrogram
	slabStart time.Time
	scratch   []complex64

	logger *slog.Logger
}

// NewPipeline builds the analyzers for the current device frequency and sample rate.
func NewPipeline(device sdr.Device, config *Config, options ...func(p *Pipeline)) (*Pipeline, error) {
	channel := config.Device.Channel
	sampleRate := device.SampleRate(channel)
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid device sample rate: %f", sampleRate)
	}

	display := config.Display

	stream, err := spectrum.NewStreamAnalyzer(display.FFTSize, sampleRate, config.Analyzer.Window)
	if err != nil {
		return nil, fmt.Errorf("creating stream analyzer: %w", err)
	}

	analyzer, err := spectrum.NewAnalyzer(sampleRate, config.Analyzer)
	if err != nil {
		return nil, fmt.Errorf("creating analyzer: %w", err)
	}

	stft, err := spectrum.NewSTFT(display.STFT.FFTSize, display.STFT.Stride, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("creating STFT: %w", err)
	}

	samples, err := ring.New[complex64](display.STFT.Samples)
	if err != nil {
		return nil, fmt.Errorf("creating sample buffer: %w", err)
	}

	rows, err := ring.New[waterfallRow](display.WaterfallRows)
	if err != nil {
		return nil, fmt.Errorf("creating waterfall buffer: %w", err)
	}

	// most recent samples covering at most MaxFrames STFT frames
	maxSlab := min(display.STFT.Samples, (display.STFT.MaxFrames-1)*display.STFT.Stride+display.STFT.FFTSize)

	p := Pipeline{
		device:      device,
		bufferSize:  config.Device.BufferSize,
		center:      device.Frequency(channel),
		sampleRate:  sampleRate,
		window:      config.Analyzer.Window.String(),
		maxSlab:     maxSlab,
		slabFFTSize: display.STFT.FFTSize,
		samples:     samples,
		rows:        rows,
		stream:      stream,
		analyzer:    analyzer,
		stft:        stft,
		scratch:     make([]complex64, maxSlab),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&p)
	}

	return &p, nil
}

// Start begins acquisition with process as the sample callback.
func (p *Pipeline) Start() error {
	if !p.device.StartReceiving(p.process, p.bufferSize) {
		return fmt.Errorf("%w: %s", ErrStartReceiving, p.device.LastError())
	}

	p.logger.Info("pipeline started",
		slog.String("frequency", sdr.FormatHertz(p.center)),
		slog.String("sampleRate", sdr.FormatRate(p.sampleRate)))
	return nil
}

func (p *Pipeline) Stop() {
	p.device.StopReceiving()
}

func (p *Pipeline) process(samples []complex64) {
	p.samples.PushSlice(samples)
	p.stream.ProcessSamples(samples)
	p.analyzer.ProcessSamples(samples)
}

// Tick advances the consumer clock: every 2nd tick pulls the streaming spectrum,
// every 4th appends a waterfall row. It reports whether a new spectrum arrived.
func (p *Pipeline) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tick++

	var updated bool
	if p.tick%2 == 0 {
		updated = p.updateSpectrum()
	}
	if p.tick%4 == 0 {
		p.updateWaterfall()
	}
	return updated
}

func (p *Pipeline) updateSpectrum() bool {
	bins := p.stream.NumBins()
	magnitude := make([]float64, bins)
	if !p.stream.LatestSpectrum(magnitude) {
		return false
	}

	psd := make([]float64, bins)
	if !p.stream.LatestPSD(psd, true) {
		psd = nil
	}

	p.latest = &spectrum.Snapshot{
		Timestamp:       time.Now().UTC(),
		CenterFrequency: p.center,
		SampleRate:      p.sampleRate,
		FFTSize:         p.stream.FFTSize(),
		Window:          p.window,
		Averages:        1,
		Frequencies:     p.stream.Frequencies(make([]float64, bins), p.center),
		Magnitude:       magnitude,
		PSD:             psd,
	}
	p.fresh = true
	return true
}

func (p *Pipeline) updateWaterfall() {
	if !p.fresh || p.latest == nil || len(p.latest.PSD) == 0 {
		return
	}

	s := p.latest
	p.rows.Push(waterfallRow{
		timestamp: s.Timestamp,
		freqMin:   s.Frequencies[0],
		freqMax:   s.Frequencies[len(s.Frequencies)-1],
		levels:    s.PSD,
	})
	p.fresh = false
}

// Latest returns a copy of the latest streaming spectrum; magnitude is on the 0..1
// display scale and PSD in dB/Hz.
func (p *Pipeline) Latest() (*spectrum.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.latest == nil {
		return nil, false
	}
	return p.latest.Clone(), true
}

// Waterfall returns the buffered rows, oldest first.
func (p *Pipeline) Waterfall() *render.Waterfall {
	rows := make([]waterfallRow, p.rows.Capacity())
	n := p.rows.CopyLatest(rows, len(rows))

	w := render.NewWaterfall()
	for _, row := range rows[:n] {
		w.AppendRow(append([]float64(nil), row.levels...), row.freqMin, row.freqMax, row.timestamp)
	}
	return w
}

// ComputeSlab runs the STFT over the latest samples and keeps the result for Slab.
// It returns a copy, false until one FFT worth of samples has been received.
// ComputeSlab is called from a single goroutine.
func (p *Pipeline) ComputeSlab() (*spectrum.Spectrogram, bool) {
	n := p.samples.CopyLatest(p.scratch, p.maxSlab)
	if n < p.slabFFTSize {
		return nil, false
	}

	slab := p.stft.Compute(p.scratch[:n])
	duration := time.Duration(float64(n) / p.sampleRate * float64(time.Second))

	p.mu.Lock()
	p.slab = slab
	p.slabStart = time.Now().Add(-duration)
	p.mu.Unlock()

	return slab.Clone(), true
}

// Slab returns a copy of the latest STFT spectrogram and the time of its first sample.
func (p *Pipeline) Slab() (*spectrum.Spectrogram, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slab == nil {
		return nil, time.Time{}, false
	}
	return p.slab.Clone(), p.slabStart, true
}

// Averaged returns the overlap-and-average spectrum once AveragingCount frames
// have been folded since the last call.
func (p *Pipeline) Averaged() (*spectrum.Snapshot, bool) {
	return p.analyzer.Snapshot(p.center)
}

func (p *Pipeline) DeviceStatus() sdr.Status {
	return p.device.Status()
}

func (p *Pipeline) DeviceCapabilities() sdr.Capabilities {
	return p.device.Capabilities()
}

func (p *Pipeline) CenterFrequency() float64 {
	return p.center
}
