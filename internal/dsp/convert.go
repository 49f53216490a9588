package dsp

import (
	"math"
	"slices"
	"sync"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
)

const (
	// MagnitudeFloorDB is substituted for bins whose magnitude is at or below MagnitudeEpsilon
	MagnitudeFloorDB = -120.0
	MagnitudeEpsilon = 1e-10

	// PSDFloorDB is substituted for bins whose power density is at or below PSDEpsilon
	PSDFloorDB = -160.0
	PSDEpsilon = 1e-16

	// DisplayFloorDB is the dB level mapped to 0 by MagnitudeScaled
	DisplayFloorDB = -80.0
)

type scratchBuf struct {
	data []float64
}

var scratchPool = sync.Pool{
	New: func() any { return &scratchBuf{} },
}

// split unpacks bins into pooled re/im slices; the caller must release buf.
func split(bins []complex128) (re, im []float64, buf *scratchBuf) {
	n := len(bins)
	buf = scratchPool.Get().(*scratchBuf)
	if cap(buf.data) < 2*n {
		buf.data = make([]float64, 2*n)
	}
	buf.data = buf.data[:2*n]
	re, im = buf.data[:n], buf.data[n:]

	for i, c := range bins {
		re[i] = real(c)
		im[i] = imag(c)
	}
	return re, im, buf
}

func resize(dst []float64, n int) []float64 {
	if cap(dst) < n {
		return make([]float64, n)
	}
	return dst[:n]
}

// NormalizeFloor returns floor as a negative dB level. Floors given as a positive
// attenuation (e.g. 80 for -80 dB) are negated once; zero or negative values pass through.
func NormalizeFloor(floor float64) float64 {
	if floor > 0 {
		return -floor
	}
	return floor
}

// Magnitude computes |X[k]| into dst.
func Magnitude(dst []float64, bins []complex128) []float64 {
	dst = resize(dst, len(bins))
	re, im, buf := split(bins)
	vecmath.Magnitude(dst, re, im)
	scratchPool.Put(buf)
	return dst
}

// Power computes |X[k]|^2 into dst.
func Power(dst []float64, bins []complex128) []float64 {
	dst = resize(dst, len(bins))
	re, im, buf := split(bins)
	vecmath.Power(dst, re, im)
	scratchPool.Put(buf)
	return dst
}

// MagnitudeDB converts bins to 20*log10(|X|), substituting MagnitudeFloorDB when the
// magnitude is at or below MagnitudeEpsilon. With normalize the maximum is
// subtracted so the peak bin reads 0 dB.
func MagnitudeDB(dst []float64, bins []complex128, normalize bool) []float64 {
	dst = Magnitude(dst, bins)
	for i, mag := range dst {
		if mag <= MagnitudeEpsilon {
			dst[i] = MagnitudeFloorDB
			continue
		}
		dst[i] = 20 * math.Log10(mag)
	}

	if normalize && len(dst) > 0 {
		floats.AddConst(-floats.Max(dst), dst)
	}
	return dst
}

// MagnitudeScaled converts bins to a 0..1 display scale: the peak-normalized dB level
// is clamped to [floorDB, 0] and mapped linearly, so the peak bin reads 1.
func MagnitudeScaled(dst []float64, bins []complex128, floorDB float64) []float64 {
	floorDB = NormalizeFloor(floorDB)
	if floorDB == 0 {
		floorDB = DisplayFloorDB
	}

	dst = MagnitudeDB(dst, bins, true)
	for i, db := range dst {
		dst[i] = (max(db, floorDB) - floorDB) / -floorDB
	}
	return dst
}

// PSD computes the one-sided power spectral density |X|^2/(fs*N) of bins produced by
// an fftSize-point transform. All bins except DC and the last one are doubled.
// With inDB the result is 10*log10, with PSDFloorDB substituted at or below PSDEpsilon.
func PSD(dst []float64, bins []complex128, sampleRate float64, fftSize int, inDB bool) []float64 {
	dst = Power(dst, bins)
	floats.Scale(1/(sampleRate*float64(fftSize)), dst)
	for i := 1; i < len(dst)-1; i++ {
		dst[i] *= 2
	}

	if inDB {
		for i, p := range dst {
			if p <= PSDEpsilon {
				dst[i] = PSDFloorDB
				continue
			}
			dst[i] = 10 * math.Log10(p)
		}
	}
	return dst
}

// BinWidth returns the frequency spacing of an fftSize-point transform.
func BinWidth(sampleRate float64, fftSize int) float64 {
	return sampleRate / float64(fftSize)
}

// Frequencies fills dst with center + k*sampleRate/fftSize for every element of dst.
// A zero center gives the baseband axis.
func Frequencies(dst []float64, sampleRate float64, fftSize int, center float64) []float64 {
	width := BinWidth(sampleRate, fftSize)
	for k := range dst {
		dst[k] = center + float64(k)*width
	}
	return dst
}

// PeakIndex returns the index of the largest value in values, -1 if values is empty.
func PeakIndex(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	return floats.MaxIdx(values)
}

// RemoveDC subtracts the complex mean from re and im in place.
func RemoveDC(re, im []float64) {
	if len(re) == 0 {
		return
	}
	n := float64(len(re))
	floats.AddConst(-floats.Sum(re)/n, re)
	floats.AddConst(-floats.Sum(im)/n, im)
}

// SplitSamples unpacks complex64 samples into separate real and imaginary slices.
func SplitSamples(re, im []float64, samples []complex64) {
	for i, s := range samples {
		re[i] = float64(real(s))
		im[i] = float64(imag(s))
	}
}

// Join packs split real and imaginary parts into dst.
func Join(dst []complex128, re, im []float64) []complex128 {
	dst = sized(dst, len(re))
	for i := range dst {
		dst[i] = complex(re[i], im[i])
	}
	return dst
}

// FFTShift reorders data in place so the zero-frequency bin moves to index len(data)/2.
func FFTShift[T any](data []T) {
	n := len(data)
	if n < 2 {
		return
	}

	// rotate left by n - n/2 using three reversals
	k := n - n/2
	slices.Reverse(data[:k])
	slices.Reverse(data[k:])
	slices.Reverse(data)
}
