package dsp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is returned when a transform size is not a power of two of at least 2
	ErrInvalidSize = errors.New("transform size must be a power of two >= 2")

	// ErrInvalidWindow is returned for an unknown window type
	ErrInvalidWindow = errors.New("invalid window type")
)

func validateSize(size int) error {
	if size < 2 || size&(size-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return nil
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
