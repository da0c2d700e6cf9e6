package blockio

import "io"

// zeroesReader is an io.Reader that produces an endless stream of zero
// bytes. Writers use it through io.CopyN to pad a region without
// allocating a zero-filled buffer up front.
type zeroesReader struct{}

func (z *zeroesReader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = 0
	for bp := 1; bp < len(p); bp *= 2 {
		copy(p[bp:], p[:bp])
	}
	return len(p), nil
}

// zeroes is an inexhaustible source of zero bytes.
var zeroes io.Reader = &zeroesReader{}
