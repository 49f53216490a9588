package driver

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SampleFormat is the wire format of interleaved I/Q samples produced by a tool.
type SampleFormat int

const (
	FormatCF32 SampleFormat = iota // little-endian float32 I, Q
	FormatCS16                     // little-endian int16 I, Q, full scale 32768
	FormatCS8                      // int8 I, Q, full scale 128
	FormatCU8                      // uint8 I, Q, offset 127.5
)

func (f SampleFormat) String() string {
	switch f {
	case FormatCF32:
		return "cf32"
	case FormatCS16:
		return "cs16"
	case FormatCS8:
		return "cs8"
	case FormatCU8:
		return "cu8"
	}
	return fmt.Sprintf("SampleFormat(%d)", int(f))
}

// Size returns the number of bytes of one complex sample.
func (f SampleFormat) Size() int {
	switch f {
	case FormatCF32:
		return 8
	case FormatCS16:
		return 4
	default:
		return 2
	}
}

// Decode converts whole samples from src into dst and returns the number decoded,
// min(len(dst), len(src)/Size()). Integer formats are scaled to [-1, 1].
func (f SampleFormat) Decode(dst []complex64, src []byte) int {
	n := min(len(dst), len(src)/f.Size())

	switch f {
	case FormatCF32:
		for i := 0; i < n; i++ {
			re := math.Float32frombits(binary.LittleEndian.Uint32(src[i*8:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(src[i*8+4:]))
			dst[i] = complex(re, im)
		}
	case FormatCS16:
		for i := 0; i < n; i++ {
			re := int16(binary.LittleEndian.Uint16(src[i*4:]))
			im := int16(binary.LittleEndian.Uint16(src[i*4+2:]))
			dst[i] = complex(float32(re)/32768, float32(im)/32768)
		}
	case FormatCS8:
		for i := 0; i < n; i++ {
			dst[i] = complex(float32(int8(src[i*2]))/128, float32(int8(src[i*2+1]))/128)
		}
	case FormatCU8:
		for i := 0; i < n; i++ {
			dst[i] = complex((float32(src[i*2])-127.5)/127.5, (float32(src[i*2+1])-127.5)/127.5)
		}
	}
	return n
}
