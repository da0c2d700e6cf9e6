package nonce

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"time"
)

// SeedBytesLen is the width of the SuperBlock's nonce_info field.
const SeedBytesLen = 32

// GenerateSeed fills a fresh 32-byte nonce_info by copying
// (realtime nanoseconds, a random value in [1, 2^30-1]) into the buffer
// and doubling it to fill the remaining bytes, the way
// pkg/vimg/partitions.go's generateUID seeds a GPT disk UID from the
// same two ingredients. rng is injectable for deterministic tests; the
// CLI wires it to crypto/rand-backed entropy.
func GenerateSeed(rng io.Reader) ([SeedBytesLen]byte, error) {
	var seed [SeedBytesLen]byte

	var half [16]byte
	binary.LittleEndian.PutUint64(half[0:8], uint64(time.Now().UnixNano()))

	r, err := randUint32(rng)
	if err != nil {
		return seed, err
	}
	binary.LittleEndian.PutUint32(half[8:12], r)

	copy(seed[0:16], half[:])
	copy(seed[16:32], half[:])

	return seed, nil
}

// randUint32 returns a random value in [1, 2^30-1], matching the
// original implementation's bound on the random component of a fresh
// nonce seed.
func randUint32(rng io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(rng, buf[:]); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(buf[:]) % (1<<30 - 1)
	return v + 1, nil
}

// DefaultRand is the entropy source CLI callers should pass to
// GenerateSeed; it is not used by anything in pkg/layout directly, which
// always takes an io.Reader explicitly so tests can supply a
// deterministic one.
var DefaultRand io.Reader = rand.Reader
