package dsp

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-vecmath"
)

const (
	WindowNone           WindowType = "none"
	WindowHamming        WindowType = "hamming"
	WindowHanning        WindowType = "hanning"
	WindowBlackman       WindowType = "blackman"
	WindowBlackmanHarris WindowType = "blackman-harris"
	WindowFlatTop        WindowType = "flat-top"
)

// amplitude correction applied when converting window-weighted bins back to
// calibrated amplitude
var windowScales = map[WindowType]float64{
	WindowNone:           1.0,
	WindowHamming:        1.85,
	WindowHanning:        2.0,
	WindowBlackman:       2.80,
	WindowBlackmanHarris: 2.89,
	WindowFlatTop:        4.18,
}

// WindowType identifies a window function applied to a frame before the transform.
type WindowType string

// ParseWindowType converts a case-insensitive name into a WindowType.
func ParseWindowType(name string) (WindowType, error) {
	t := WindowType(strings.ToLower(strings.TrimSpace(name)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t WindowType) String() string {
	return string(t)
}

// Validate returns ErrInvalidWindow for unknown window types.
func (t WindowType) Validate() error {
	if _, ok := windowScales[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidWindow, string(t))
	}
	return nil
}

// Scale returns the amplitude correction factor of the window, 1 for unknown types.
func (t WindowType) Scale() float64 {
	if s, ok := windowScales[t]; ok {
		return s
	}
	return 1.0
}

// Window generates size symmetric coefficients of the given window type.
// The result is freshly allocated and may be kept by the caller as an immutable table.
func Window(t WindowType, size int) ([]float64, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("window size must be > 0: %d", size)
	}

	coeffs := make([]float64, size)
	if size == 1 || t == WindowNone {
		for i := range coeffs {
			coeffs[i] = 1
		}
		return coeffs, nil
	}

	var terms []float64
	switch t {
	case WindowHamming:
		terms = []float64{0.54, 0.46}
	case WindowHanning:
		terms = []float64{0.5, 0.5}
	case WindowBlackman:
		terms = []float64{0.42, 0.5, 0.08}
	case WindowBlackmanHarris:
		terms = []float64{0.35875, 0.48829, 0.14128, 0.01168}
	case WindowFlatTop:
		terms = []float64{0.21557895, 0.41663158, 0.277263158, 0.083578947, 0.006947368}
	}

	cosineSum(coeffs, terms)
	return coeffs, nil
}

// cosineSum fills dst with w[n] = a0 - a1 cos(2πx) + a2 cos(4πx) - ..., x = n/(N-1).
func cosineSum(dst, terms []float64) {
	den := float64(len(dst) - 1)
	for i := range dst {
		x := 2 * math.Pi * float64(i) / den

		var w, sign float64 = 0, 1
		for k, a := range terms {
			w += sign * a * math.Cos(float64(k)*x)
			sign = -sign
		}
		dst[i] = w
	}

	// pin exact symmetry against rounding in cos
	for i, j := 0, len(dst)-1; i < j; i, j = i+1, j-1 {
		dst[j] = dst[i]
	}
}

// ApplyWindow multiplies split real and imaginary buffers by coeffs in place.
// All three slices must have the same length.
func ApplyWindow(re, im, coeffs []float64) {
	vecmath.MulBlockInPlace(re, coeffs)
	vecmath.MulBlockInPlace(im, coeffs)
}
