package dsp

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"
)

func TestNewTransform_InvalidSize(t *testing.T) {
	for _, size := range []int{0, 1, 3, 100, 1000, -8} {
		if _, err := NewTransform(size); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("size %d: expected ErrInvalidSize, got %v", size, err)
		}
	}
}

func TestTransform_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, size := range []int{64, 256, 1024} {
		tr, err := NewTransform(size)
		if err != nil {
			t.Fatalf("Failed to create transform: %v", err)
		}

		signal := make([]float64, size)
		for i := range signal {
			signal[i] = rng.Float64()*2 - 1
		}

		// real path
		bins := tr.ForwardReal(nil, signal)
		if len(bins) != size/2+1 {
			t.Fatalf("Expected %d bins, got %d", size/2+1, len(bins))
		}
		restored := tr.InverseReal(nil, bins)
		requireNearlyEqual(t, restored, signal, 1e-9)

		// complex path
		in := make([]complex128, size)
		for i, v := range signal {
			in[i] = complex(v, -v/2)
		}
		out := tr.Inverse(nil, tr.Forward(nil, in))
		for i := range in {
			if cmplx.Abs(out[i]-in[i]) > 1e-4*max(cmplx.Abs(in[i]), 1e-3) {
				t.Fatalf("size %d index %d: expected %v, got %v", size, i, in[i], out[i])
			}
		}
	}
}

func TestTransform_SingleTonePeak(t *testing.T) {
	const (
		size = 1024
		fs   = 48_000.0
	)

	tr, err := NewTransform(size)
	if err != nil {
		t.Fatalf("Failed to create transform: %v", err)
	}

	for _, f0 := range []float64{1_000, 3_750, 12_345} {
		bins := tr.ForwardReal(nil, cosine(f0, fs, 1, size))
		db := MagnitudeDB(nil, bins, false)

		want := int(math.Round(f0 * size / fs))
		got := PeakIndex(db)
		if got < want-1 || got > want+1 {
			t.Errorf("f0=%g: expected peak bin %d±1, got %d", f0, want, got)
		}
	}
}

func TestTransform_ComplexToneSign(t *testing.T) {
	const (
		size = 256
		fs   = 256.0
	)

	tr, err := NewTransform(size)
	if err != nil {
		t.Fatalf("Failed to create transform: %v", err)
	}

	bins := tr.Forward(nil, tone(10, fs, size))
	mag := Magnitude(nil, bins)
	if peak := PeakIndex(mag); peak != 10 {
		t.Errorf("Expected positive tone in bin 10, got %d", peak)
	}
	if math.Abs(mag[10]-size) > 1e-6 {
		t.Errorf("Expected bin magnitude %d, got %g", size, mag[10])
	}
}

func TestTransform_ReusesDestination(t *testing.T) {
	tr, err := NewTransform(16)
	if err != nil {
		t.Fatalf("Failed to create transform: %v", err)
	}

	dst := make([]complex128, 16)
	out := tr.Forward(dst, make([]complex128, 16))
	if &out[0] != &dst[0] {
		t.Error("Expected destination slice to be reused")
	}
}
