package spectrum

import (
	"math"
	"testing"

	"github.com/roman-kulish/spectrum-analyzer/internal/dsp"
)

func TestAnalyzerOptions_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		modify  func(o *AnalyzerOptions)
		wantErr bool
	}{
		{"defaults", func(o *AnalyzerOptions) {}, false},
		{"fft not power of two", func(o *AnalyzerOptions) { o.FFTSize = 1000 }, true},
		{"fft too small", func(o *AnalyzerOptions) { o.FFTSize = 1 }, true},
		{"unknown window", func(o *AnalyzerOptions) { o.Window = "kaiser" }, true},
		{"zero averaging", func(o *AnalyzerOptions) { o.AveragingCount = 0 }, true},
		{"negative overlap", func(o *AnalyzerOptions) { o.OverlapRatio = -0.1 }, true},
		{"full overlap", func(o *AnalyzerOptions) { o.OverlapRatio = 1 }, true},
		{"no overlap", func(o *AnalyzerOptions) { o.OverlapRatio = 0 }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultAnalyzerOptions()
			tc.modify(&opts)

			err := opts.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Expected error: %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNewAnalyzer_InvalidSampleRate(t *testing.T) {
	if _, err := NewAnalyzer(0, DefaultAnalyzerOptions()); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func newTestAnalyzer(t *testing.T, fftSize, averages int, overlap float64) *Analyzer {
	t.Helper()

	opts := DefaultAnalyzerOptions()
	opts.FFTSize = fftSize
	opts.AveragingCount = averages
	opts.OverlapRatio = overlap

	a, err := NewAnalyzer(1_000_000, opts)
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}
	return a
}

func TestAnalyzer_AveragingCycle(t *testing.T) {
	const (
		fftSize  = 256
		averages = 3
	)

	a := newTestAnalyzer(t, fftSize, averages, 0)
	samples := noise(1, 0.1, averages*fftSize)

	a.ProcessSamples(samples[:(averages-1)*fftSize])
	if a.IsSpectrumReady() {
		t.Fatal("Spectrum must not be ready before averaging count is reached")
	}

	a.ProcessSamples(samples[(averages-1)*fftSize:])
	if !a.IsSpectrumReady() {
		t.Fatal("Expected spectrum to be ready")
	}

	dst := make([]float64, a.NumBins())
	if !a.Spectrum(dst) {
		t.Fatal("Expected Spectrum to return true")
	}
	if a.IsSpectrumReady() {
		t.Error("Read must start a new averaging cycle")
	}

	stale := make([]float64, a.NumBins())
	for i := range stale {
		stale[i] = 42
	}
	if a.Spectrum(stale) {
		t.Error("Expected Spectrum to return false without new data")
	}
	if stale[0] != 42 {
		t.Error("Destination must be untouched when nothing is ready")
	}
	if a.PSD(stale) {
		t.Error("Reading the magnitude must also reset the PSD cycle")
	}
}

func TestAnalyzer_OverlapSharesSamples(t *testing.T) {
	const fftSize = 256

	a := newTestAnalyzer(t, fftSize, 1, 0.5)
	samples := noise(2, 0.1, 2*fftSize)

	a.ProcessSamples(samples[:fftSize])
	if !a.Read(nil, nil) {
		t.Fatal("Expected first frame after fftSize samples")
	}

	// with 50% overlap only fftSize/2 new samples complete the next frame
	a.ProcessSamples(samples[fftSize : fftSize+fftSize/2-1])
	if a.IsSpectrumReady() {
		t.Fatal("Frame must not complete one sample early")
	}
	a.ProcessSamples(samples[fftSize+fftSize/2-1 : fftSize+fftSize/2])
	if !a.IsSpectrumReady() {
		t.Fatal("Expected overlapping frame to complete")
	}
}

func TestAnalyzer_SingleTone(t *testing.T) {
	const (
		fs      = 1_000_000.0
		fftSize = 1024
		toneHz  = 150_000.0
	)

	a := newTestAnalyzer(t, fftSize, 1, 0)
	a.ProcessSamples(complexTone(toneHz, fs, 0.3, fftSize))

	snap, ok := a.Snapshot(0)
	if !ok {
		t.Fatal("Expected snapshot to be ready")
	}

	freq, _, ok := snap.Peak()
	if !ok {
		t.Fatal("Expected snapshot peak")
	}
	if math.Abs(freq-toneHz) > snap.BinWidth() {
		t.Errorf("Expected peak within one bin of %g Hz, got %g Hz", toneHz, freq)
	}
	if len(snap.PSD) != fftSize/2+1 || len(snap.Frequencies) != fftSize/2+1 {
		t.Errorf("Unexpected snapshot lengths: psd=%d freq=%d", len(snap.PSD), len(snap.Frequencies))
	}
	if snap.Averages != 1 {
		t.Errorf("Expected 1 average, got %d", snap.Averages)
	}
	if snap.Window != string(dsp.WindowHamming) {
		t.Errorf("Expected window %s, got %s", dsp.WindowHamming, snap.Window)
	}
}

func TestAnalyzer_AveragesFrames(t *testing.T) {
	const fftSize = 64

	single := newTestAnalyzer(t, fftSize, 1, 0)
	double := newTestAnalyzer(t, fftSize, 2, 0)
	single.SetRemoveDC(false)
	double.SetRemoveDC(false)

	// two identical frames average to the single frame result
	frame := complexTone(62_500, 1_000_000, 1, fftSize)
	single.ProcessSamples(frame)
	double.ProcessSamples(frame)
	double.ProcessSamples(frame)

	want := make([]float64, single.NumBins())
	got := make([]float64, double.NumBins())
	if !single.Spectrum(want) || !double.Spectrum(got) {
		t.Fatal("Expected both analyzers to be ready")
	}

	for i := range want {
		if math.Abs(want[i]-got[i]) > 1e-9 {
			t.Fatalf("Bin %d: expected %g, got %g", i, want[i], got[i])
		}
	}
}

func TestAnalyzer_Reset(t *testing.T) {
	a := newTestAnalyzer(t, 128, 1, 0)
	a.ProcessSamples(noise(3, 1, 200))

	if !a.IsSpectrumReady() {
		t.Fatal("Expected spectrum to be ready")
	}

	a.Reset()
	if a.IsSpectrumReady() {
		t.Error("Expected Reset to clear the fold count")
	}

	// partial samples collected before Reset must be dropped
	a.ProcessSamples(noise(4, 1, 127))
	if a.IsSpectrumReady() {
		t.Error("Expected no frame from samples collected before Reset")
	}
}

func TestAnalyzer_Setters(t *testing.T) {
	a := newTestAnalyzer(t, 128, 1, 0)

	if err := a.SetWindow("unknown"); err == nil {
		t.Error("Expected error for unknown window")
	}
	if err := a.SetWindow(dsp.WindowFlatTop); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if a.Window() != dsp.WindowFlatTop {
		t.Errorf("Expected window %s, got %s", dsp.WindowFlatTop, a.Window())
	}
	if err := a.SetAveragingCount(0); err == nil {
		t.Error("Expected error for zero averaging count")
	}
	if err := a.SetOverlapRatio(1.5); err == nil {
		t.Error("Expected error for overlap ratio above 1")
	}
	if err := a.SetOverlapRatio(0.75); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	freqs := a.Frequencies(make([]float64, a.NumBins()), 100e6)
	if freqs[0] != 100e6 || math.Abs(freqs[1]-100e6-1_000_000.0/128) > 1e-6 {
		t.Errorf("Unexpected frequency axis start: %v", freqs[:2])
	}
}
