package layout

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/geometry"
	"github.com/albireo-project/uds-layout/pkg/nonce"
)

func nonceFor(t *testing.T, l *Layout, s *SaveSlot) uint64 {
	t.Helper()
	return nonce.Save(l.GetVolumeNonce(), s.SaveData.Timestamp, s.SaveData.Version, s.StartBlock)
}

func scenarioConfig() geometry.Configuration {
	return geometry.Configuration{
		BytesPerPage:      geometry.BlockSize,
		BytesPerVolume:    64 * geometry.BlockSize,
		VolumeIndexBytes:  2 * geometry.BlockSize,
		IndexPageMapBytes: 1 * geometry.BlockSize,
		OpenChapterBytes:  4 * geometry.BlockSize,
	}
}

func openScratchFile(t *testing.T, blocks int64) (blockio.Factory, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.bin")

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(blocks * BlockSize); err != nil {
		t.Fatal(err)
	}
	f.Close()

	factory, err := blockio.Open(path, blockio.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	return factory, path
}

func TestInitFreshThenReconstitute(t *testing.T) {
	cfg := scenarioConfig()

	sizes, err := geometry.Compute(cfg)
	if err != nil {
		t.Fatal(err)
	}

	factory, path := openScratchFile(t, sizes.TotalBlocks+16)

	l, err := InitFresh(factory, cfg, bytes.NewReader(bytes.Repeat([]byte{0x42}, 4096)))
	if err != nil {
		t.Fatalf("InitFresh: %v", err)
	}

	wantNonce := l.GetVolumeNonce()
	if wantNonce == 0 {
		t.Fatal("volume nonce is zero")
	}
	if len(l.sub.Saves) != int(sizes.NumSaves) {
		t.Fatalf("got %d save slots, want %d", len(l.sub.Saves), sizes.NumSaves)
	}
	for _, s := range l.sub.Saves {
		if s.State != StateUnsaved {
			t.Errorf("fresh slot state = %v, want StateUnsaved", s.State)
		}
	}

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	factory2, err := blockio.Open(path, blockio.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	l2, err := Reconstitute(factory2)
	if err != nil {
		t.Fatalf("Reconstitute: %v", err)
	}
	defer l2.Close()

	if l2.GetVolumeNonce() != wantNonce {
		t.Errorf("reconstituted volume nonce = %d, want %d", l2.GetVolumeNonce(), wantNonce)
	}
	if l2.sub.Volume.NumBlocks != sizes.VolumeBlocks {
		t.Errorf("reconstituted volume blocks = %d, want %d", l2.sub.Volume.NumBlocks, sizes.VolumeBlocks)
	}
	if len(l2.sub.Saves) != int(sizes.NumSaves) {
		t.Fatalf("reconstituted %d save slots, want %d", len(l2.sub.Saves), sizes.NumSaves)
	}
	for i, s := range l2.sub.Saves {
		if s.NumBlocks != sizes.SaveBlocks {
			t.Errorf("slot %d blocks = %d, want %d", i, s.NumBlocks, sizes.SaveBlocks)
		}
		if s.Valid(l2.GetVolumeNonce()) {
			t.Errorf("slot %d reports valid but was never committed", i)
		}
	}
}

func TestReconstituteRejectsBadMagic(t *testing.T) {
	factory, _ := openScratchFile(t, 32)

	w, err := factory.OpenWriter(0, BlockSize)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(bytes.Repeat([]byte{0xff}, BlockSize)); err != nil {
		t.Fatal(err)
	}
	w.Close()

	_, err = Reconstitute(factory)
	if err != ErrNoIndex {
		t.Fatalf("got %v, want ErrNoIndex", err)
	}
}

func TestCommitThenDiscardIndexState(t *testing.T) {
	cfg := scenarioConfig()
	sizes, err := geometry.Compute(cfg)
	if err != nil {
		t.Fatal(err)
	}

	factory, _ := openScratchFile(t, sizes.TotalBlocks+16)
	l, err := InitFresh(factory, cfg, bytes.NewReader(bytes.Repeat([]byte{0x7}, 4096)))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	slot := l.sub.Saves[0]
	if err := l.InstantiateSlot(slot, 1); err != nil {
		t.Fatal(err)
	}
	slot.State = StateSave
	slot.SaveData.Timestamp = 1000
	slot.SaveData.Version = IndexSaveDataVersion
	slot.SaveData.Nonce = nonceFor(t, l, slot)
	copy(slot.StateBuffer, []byte("descriptor"))

	if err := l.writeSlotTable(slot); err != nil {
		t.Fatal(err)
	}

	if !slot.Valid(l.GetVolumeNonce()) {
		t.Fatal("committed slot should be valid")
	}

	if err := l.DiscardIndexState(); err != nil {
		t.Fatal(err)
	}
	for _, s := range l.sub.Saves {
		if s.Valid(l.GetVolumeNonce()) {
			t.Error("slot still valid after DiscardIndexState")
		}
	}
}
