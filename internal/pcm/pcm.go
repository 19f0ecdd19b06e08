// Package pcm converts float samples to and from little-endian wire formats.
package pcm

import (
	"encoding/binary"
	"math"
)

// Clamp limits s to [-1, 1].
func Clamp(s float32) float32 {
	switch {
	case math.IsNaN(float64(s)):
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}

// Quantize converts float samples to signed 16-bit little-endian PCM.
// Negative samples scale by 0x8000 and positive ones by 0x7FFF.
func Quantize(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		s = Clamp(s)
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodeFloat32 decodes f32le bytes into dst and returns the sample count.
func DecodeFloat32(src []byte, dst []float32) int {
	n := len(src) / 4
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return n
}

// EncodeFloat32 encodes samples as f32le bytes.
func EncodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Framer accumulates samples into fixed-size frames.
type Framer struct {
	size int
	buf  []float32
}

func NewFramer(size int) *Framer {
	if size <= 0 {
		size = 4096
	}
	return &Framer{size: size, buf: make([]float32, 0, size)}
}

// Size returns the frame length in samples.
func (f *Framer) Size() int {
	return f.size
}

// Push appends samples and calls emit for every completed frame. The slice
// passed to emit is only valid for the duration of the call.
func (f *Framer) Push(samples []float32, emit func([]float32) error) error {
	for len(samples) > 0 {
		room := f.size - len(f.buf)
		take := room
		if take > len(samples) {
			take = len(samples)
		}
		f.buf = append(f.buf, samples[:take]...)
		samples = samples[take:]
		if len(f.buf) == f.size {
			err := emit(f.buf)
			f.buf = f.buf[:0]
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush pads a partial frame with silence and emits it. It does nothing
// when no samples are buffered.
func (f *Framer) Flush(emit func([]float32) error) error {
	if len(f.buf) == 0 {
		return nil
	}
	for len(f.buf) < f.size {
		f.buf = append(f.buf, 0)
	}
	err := emit(f.buf)
	f.buf = f.buf[:0]
	return err
}

// Buffered returns the number of samples waiting for a full frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
