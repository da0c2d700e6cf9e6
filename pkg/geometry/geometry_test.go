package geometry

import (
	"errors"
	"testing"
)

// TestCreateAndReloadScenario reproduces spec.md §8's scenario 1:
// bytes_per_volume = 64 blocks, page_map = 1, volume_index = 2,
// open_chapter = 4, num_saves = 2 => total_blocks = 83.
func TestCreateAndReloadScenario(t *testing.T) {
	cfg := Configuration{
		BytesPerPage:      BlockSize,
		BytesPerVolume:    64 * BlockSize,
		VolumeIndexBytes:  2 * BlockSize,
		IndexPageMapBytes: 1 * BlockSize,
		OpenChapterBytes:  4 * BlockSize,
	}

	sizes, err := Compute(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if sizes.TotalBlocks != 83 {
		t.Errorf("total_blocks = %d, want 83", sizes.TotalBlocks)
	}
	if sizes.SaveBlocks != 1+2+1+4 {
		t.Errorf("save_blocks = %d, want 8", sizes.SaveBlocks)
	}
	if sizes.VolumeBlocks != 64 {
		t.Errorf("volume_blocks = %d, want 64", sizes.VolumeBlocks)
	}
}

func TestIncorrectAlignment(t *testing.T) {
	cfg := Configuration{
		BytesPerPage:   BlockSize + 1,
		BytesPerVolume: 64 * BlockSize,
	}

	_, err := Compute(cfg)
	if !errors.Is(err, ErrIncorrectAlignment) {
		t.Fatalf("expected ErrIncorrectAlignment, got %v", err)
	}
}
