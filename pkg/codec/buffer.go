// Package codec implements the little-endian, length-tracked encode/decode
// buffer every on-disk structure in pkg/layout is built from. Every decode
// sequence must consume exactly the number of bytes it declares; a
// mismatch is corruption, not a bug to silently tolerate.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorrupt is returned when a decode sequence does not consume exactly
// the expected number of bytes, or a Get call runs past the end of the
// buffer.
var ErrCorrupt = errors.New("codec: corrupt data")

// Buffer is a length-tracked little-endian encode/decode buffer. The zero
// value is not usable; construct with NewEncoder or NewDecoder.
type Buffer struct {
	data []byte
	pos  int
	// end bounds decoding only; encoding appends without a limit.
	end int
}

// NewEncoder returns a Buffer that appends into a freshly allocated
// slice of the given capacity.
func NewEncoder(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// NewDecoder returns a Buffer that reads from data, starting at position
// 0 and bounded by len(data).
func NewDecoder(data []byte) *Buffer {
	return &Buffer{data: data, end: len(data)}
}

// Bytes returns the encoded contents accumulated so far.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes consumed (decoder) or written
// (encoder) so far.
func (b *Buffer) Len() int {
	return b.pos
}

// Remaining returns the number of bytes left to decode.
func (b *Buffer) Remaining() int {
	return b.end - b.pos
}

// CheckConsumed returns ErrCorrupt unless exactly want bytes have been
// consumed since the buffer was created. Every decode function in
// pkg/layout calls this once, at the end of its struct, per spec.
func (b *Buffer) CheckConsumed(want int) error {
	if b.pos != want {
		return fmt.Errorf("%w: expected to consume %d bytes, consumed %d", ErrCorrupt, want, b.pos)
	}
	return nil
}

func (b *Buffer) put(p []byte) {
	b.data = append(b.data, p...)
	b.pos += len(p)
}

func (b *Buffer) get(n int) ([]byte, error) {
	if b.pos+n > b.end {
		return nil, fmt.Errorf("%w: short read (wanted %d bytes, %d remaining)", ErrCorrupt, n, b.Remaining())
	}
	p := b.data[b.pos : b.pos+n]
	b.pos += n
	return p, nil
}

// PutUint16 appends a little-endian uint16.
func (b *Buffer) PutUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.put(tmp[:])
}

// GetUint16 decodes a little-endian uint16.
func (b *Buffer) GetUint16() (uint16, error) {
	p, err := b.get(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

// PutUint32 appends a little-endian uint32.
func (b *Buffer) PutUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.put(tmp[:])
}

// GetUint32 decodes a little-endian uint32.
func (b *Buffer) GetUint32() (uint32, error) {
	p, err := b.get(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// PutUint64 appends a little-endian uint64.
func (b *Buffer) PutUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.put(tmp[:])
}

// GetUint64 decodes a little-endian uint64.
func (b *Buffer) GetUint64() (uint64, error) {
	p, err := b.get(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// PutBytes appends p verbatim.
func (b *Buffer) PutBytes(p []byte) {
	b.put(p)
}

// GetBytes decodes n raw bytes. The returned slice aliases the decoder's
// backing array and must be copied by the caller before the Buffer is
// reused.
func (b *Buffer) GetBytes(n int) ([]byte, error) {
	return b.get(n)
}

// PutZeroes appends n zero bytes.
func (b *Buffer) PutZeroes(n int) {
	b.put(make([]byte, n))
}

// Skip advances the decode position by n bytes without returning them.
func (b *Buffer) Skip(n int) error {
	_, err := b.get(n)
	return err
}

// Rewind resets the decode/encode position to the start of the buffer,
// without discarding decoded/encoded bytes.
func (b *Buffer) Rewind() {
	b.pos = 0
}

// ResetEnd truncates the decode boundary to the current position,
// discarding any trailing bytes beyond what has already been decoded.
func (b *Buffer) ResetEnd() {
	b.end = b.pos
	b.data = b.data[:b.pos]
}
