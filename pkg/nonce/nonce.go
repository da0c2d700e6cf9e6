// Package nonce derives the tamper-evident (not cryptographic) nonces
// that bind a decoded layout record to the physical offset and volume
// identity it was written at, per spec.md §4.4.
package nonce

import (
	"encoding/binary"

	"github.com/albireo-project/uds-layout/pkg/codec"
	"github.com/spaolacci/murmur3"
)

// primarySeed is the fixed murmur3 seed input used to derive a layout's
// primary nonce from its super-block seed bytes.
const primarySeed uint64 = 0xa1b1e0fc

// hashStuff reproduces the original implementation's murmur3-128 seeding
// quirk exactly: the seed passed to murmur3 is `start XOR (start >> 27)`
// truncated to 32 bits, and the returned 64-bit value is read from bytes
// [4:12) of the 128-bit digest (not [0:8)), little-endian. Implementers
// must preserve this to stay byte-compatible with existing media.
func hashStuff(start uint64, data []byte) uint64 {
	seed := uint32(start ^ (start >> 27))
	h1, h2 := murmur3.Sum128WithSeed(data, seed)

	var digest [16]byte
	binary.LittleEndian.PutUint64(digest[0:8], h1)
	binary.LittleEndian.PutUint64(digest[8:16], h2)

	return binary.LittleEndian.Uint64(digest[4:12])
}

// Primary derives a layout's primary nonce from its 32-byte nonce_info
// seed.
func Primary(seedBytes []byte) uint64 {
	return hashStuff(primarySeed, seedBytes)
}

// Secondary derives a nonce bound to parent (typically a primary or
// sub-index nonce) and an arbitrary payload.
func Secondary(parent uint64, payload []byte) uint64 {
	return hashStuff(parent+1, payload)
}

// SubIndex derives the sub-index nonce from a layout's primary nonce, the
// sub-index's start block, and its id, re-deriving with an alternate
// parent if the result would be zero — zero is reserved to mean "unset"
// by downstream code, so it must never be produced here.
func SubIndex(primaryNonce uint64, startBlock int64, subIndexID uint16) uint64 {
	payload := subIndexPayload(startBlock, subIndexID)

	n := Secondary(primaryNonce, payload)
	if n != 0 {
		return n
	}

	altParent := ^primaryNonce + 1
	return Secondary(altParent, payload)
}

func subIndexPayload(startBlock int64, subIndexID uint16) []byte {
	b := codec.NewEncoder(10)
	b.PutUint64(uint64(startBlock))
	b.PutUint16(subIndexID)
	return b.Bytes()
}

// Save derives a save slot's per-save nonce from the sub-index nonce and
// the slot's timestamp, state version, and start block.
func Save(subIndexNonce uint64, timestamp int64, version uint32, startBlock int64) uint64 {
	b := codec.NewEncoder(32)
	b.PutUint64(uint64(timestamp))
	b.PutUint64(0)
	b.PutUint32(version)
	b.PutUint32(0)
	b.PutUint64(uint64(startBlock))

	return Secondary(subIndexNonce, b.Bytes())
}
