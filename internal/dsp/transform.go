package dsp

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// Transform is a forward/inverse discrete Fourier transform sized to a fixed
// power of two. It applies no window; that is the caller's responsibility.
//
// A Transform keeps internal work buffers and must not be shared between
// goroutines without external synchronization.
type Transform struct {
	size  int
	cmplx *fourier.CmplxFFT
	real  *fourier.FFT
}

// NewTransform creates a transform for size points.
// Returns ErrInvalidSize if size is not a power of two of at least 2.
func NewTransform(size int) (*Transform, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	return &Transform{
		size:  size,
		cmplx: fourier.NewCmplxFFT(size),
		real:  fourier.NewFFT(size),
	}, nil
}

// Size returns the number of time-domain points.
func (t *Transform) Size() int {
	return t.size
}

// NumBins returns the number of one-sided bins, Size()/2+1.
func (t *Transform) NumBins() int {
	return t.size/2 + 1
}

// Forward computes the complex-to-complex transform of src into dst.
// dst is reallocated if it is shorter than Size(); the filled slice is returned.
func (t *Transform) Forward(dst, src []complex128) []complex128 {
	return t.cmplx.Coefficients(sized(dst, t.size), src)
}

// Inverse computes the inverse complex transform of src into dst, divided by N.
func (t *Transform) Inverse(dst, src []complex128) []complex128 {
	dst = t.cmplx.Sequence(sized(dst, t.size), src)

	scale := complex(1/float64(t.size), 0)
	for i := range dst {
		dst[i] *= scale
	}
	return dst
}

// ForwardReal computes the one-sided transform of a real sequence: Size()/2+1 bins.
func (t *Transform) ForwardReal(dst []complex128, src []float64) []complex128 {
	return t.real.Coefficients(sized(dst, t.NumBins()), src)
}

// InverseReal reconstructs a real sequence from one-sided bins, divided by N.
func (t *Transform) InverseReal(dst []float64, src []complex128) []float64 {
	if cap(dst) < t.size {
		dst = make([]float64, t.size)
	}
	dst = t.real.Sequence(dst[:t.size], src)

	scale := 1 / float64(t.size)
	for i := range dst {
		dst[i] *= scale
	}
	return dst
}

func sized(buf []complex128, n int) []complex128 {
	if cap(buf) < n {
		return make([]complex128, n)
	}
	return buf[:n]
}
