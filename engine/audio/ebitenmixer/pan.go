package ebitenmixer

import (
	"encoding/binary"
	"io"
	"math"
)

// panReader applies an equal power pan to 16 bit little endian stereo
// PCM.
type panReader struct {
	src         io.Reader
	left, right float64
	carry       []byte
}

func newPanReader(src io.Reader, pan float32) *panReader {
	p := math.Max(-1, math.Min(1, float64(pan)))
	angle := (p + 1) * math.Pi / 4
	return &panReader{src: src, left: math.Cos(angle), right: math.Sin(angle)}
}

func (r *panReader) Read(b []byte) (int, error) {
	n := copy(b, r.carry)
	r.carry = r.carry[n:]
	m, err := r.src.Read(b[n:])
	n += m

	// only whole frames are scaled, a trailing partial frame waits
	whole := n &^ 3
	for i := 0; i < whole; i += 4 {
		l := int16(binary.LittleEndian.Uint16(b[i:]))
		rr := int16(binary.LittleEndian.Uint16(b[i+2:]))
		binary.LittleEndian.PutUint16(b[i:], uint16(int16(float64(l)*r.left)))
		binary.LittleEndian.PutUint16(b[i+2:], uint16(int16(float64(rr)*r.right)))
	}
	if whole < n && err == nil {
		r.carry = append(r.carry[:0:0], b[whole:n]...)
		n = whole
	}
	return n, err
}
