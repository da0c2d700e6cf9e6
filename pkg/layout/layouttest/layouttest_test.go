package layouttest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/geometry"
)

func TestForceConvertedRoundTrip(t *testing.T) {
	cfg := geometry.Configuration{
		BytesPerPage:      geometry.BlockSize,
		BytesPerVolume:    64 * geometry.BlockSize,
		VolumeIndexBytes:  2 * geometry.BlockSize,
		IndexPageMapBytes: 1 * geometry.BlockSize,
		OpenChapterBytes:  4 * geometry.BlockSize,
	}
	sizes, err := geometry.Compute(cfg)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "converted.bin")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate((sizes.TotalBlocks + 32) * geometry.BlockSize); err != nil {
		t.Fatal(err)
	}
	f.Close()

	factory, err := blockio.Open(path, blockio.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	const startOffset, volumeOffset = 1, 5

	l, err := ForceConverted(factory, cfg, bytes.NewReader(bytes.Repeat([]byte{0x9}, 4096)), startOffset, volumeOffset)
	if err != nil {
		t.Fatalf("ForceConverted: %v", err)
	}
	defer l.Close()

	if l.GetVolumeNonce() == 0 {
		t.Fatal("volume nonce is zero")
	}

	r, _, err := l.OpenVolumeRegion(blockio.ReadOnly)
	if err != nil {
		t.Fatalf("OpenVolumeRegion: %v", err)
	}
	defer r.Close()
}
