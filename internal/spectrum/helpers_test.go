package spectrum

import (
	"math"
	"math/rand"
)

// complexTone returns n samples of amp*exp(i 2π f t) sampled at fs.
func complexTone(f, fs, amp float64, n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		phase := 2 * math.Pi * f * float64(i) / fs
		out[i] = complex64(complex(amp*math.Cos(phase), amp*math.Sin(phase)))
	}
	return out
}

// noise returns n deterministic complex gaussian samples.
func noise(seed int64, amp float64, n int) []complex64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex64(complex(amp*rng.NormFloat64(), amp*rng.NormFloat64()))
	}
	return out
}

func peakIndex(values []float64) int {
	idx := 0
	for i, v := range values {
		if v > values[idx] {
			idx = i
		}
	}
	return idx
}
