package dsp

import (
	"math"
	"testing"
)

func requireNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("Expected length %d, got %d", len(want), len(got))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > eps {
			t.Fatalf("Index %d: expected %g, got %g (eps %g)", i, want[i], got[i], eps)
		}
	}
}

// cosine returns n samples of amp*cos(2π f t) sampled at fs.
func cosine(f, fs, amp float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Cos(2*math.Pi*f*float64(i)/fs)
	}
	return out
}

// tone returns n complex exponential samples exp(i 2π f t) sampled at fs.
func tone(f, fs float64, n int) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		phase := 2 * math.Pi * f * float64(i) / fs
		out[i] = complex(math.Cos(phase), math.Sin(phase))
	}
	return out
}
