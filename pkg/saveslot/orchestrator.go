package saveslot

import (
	"fmt"

	"github.com/albireo-project/uds-layout/pkg/codec"
	"github.com/albireo-project/uds-layout/pkg/layout"
)

// Fixed tag values for IndexState, matching the original implementation's
// on-disk constants exactly so existing media stays readable.
const (
	indexStateSignature int32 = -1
	indexStateVersionID int32 = 301
)

const indexStateSize = 4 + 4 + 8 + 8 + 8 + 4 + 4

// IndexState is the deduplication index's own small descriptor, carried
// in a save slot's state buffer alongside the layout's IndexSaveData.
// The two unused trailing fields mirror the original on-disk record's
// padding; this implementation never assigns them a meaning.
type IndexState struct {
	NewestChapter uint64
	OldestChapter uint64
	LastSave      uint64
}

// ErrBadIndexState is returned when a state buffer's signature or
// version tag does not match what this package writes. It wraps
// layout.ErrUnsupportedVersion, so errors.Is matches either sentinel.
var ErrBadIndexState = fmt.Errorf("%w: saveslot: state buffer has an unrecognized signature or version", layout.ErrUnsupportedVersion)

// encodeIndexState serializes s into a layout.StateBufferSize buffer.
func encodeIndexState(s IndexState) []byte {
	b := codec.NewEncoder(indexStateSize)
	b.PutUint32(uint32(indexStateSignature))
	b.PutUint32(uint32(indexStateVersionID))
	b.PutUint64(s.NewestChapter)
	b.PutUint64(s.OldestChapter)
	b.PutUint64(s.LastSave)
	b.PutZeroes(8) // two unused u32 fields

	out := make([]byte, layout.StateBufferSize)
	copy(out, b.Bytes())
	return out
}

// decodeIndexState parses the leading indexStateSize bytes of a slot's
// state buffer.
func decodeIndexState(buf []byte) (IndexState, error) {
	if len(buf) < indexStateSize {
		return IndexState{}, fmt.Errorf("%w: buffer shorter than the descriptor", ErrBadIndexState)
	}

	d := codec.NewDecoder(buf[:indexStateSize])

	sig, err := d.GetUint32()
	if err != nil {
		return IndexState{}, err
	}
	if int32(sig) != indexStateSignature {
		return IndexState{}, ErrBadIndexState
	}

	ver, err := d.GetUint32()
	if err != nil {
		return IndexState{}, err
	}
	if int32(ver) != indexStateVersionID {
		return IndexState{}, ErrBadIndexState
	}

	var s IndexState
	if s.NewestChapter, err = d.GetUint64(); err != nil {
		return IndexState{}, err
	}
	if s.OldestChapter, err = d.GetUint64(); err != nil {
		return IndexState{}, err
	}
	if s.LastSave, err = d.GetUint64(); err != nil {
		return IndexState{}, err
	}

	return s, nil
}
