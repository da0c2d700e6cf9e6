package saveslot

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/geometry"
	"github.com/albireo-project/uds-layout/pkg/layout"
)

// fakeIndex is a minimal, deterministic stand-in for the deduplication
// index: it writes/reads a fixed tag per region so round-trips can be
// asserted on content, not just error-free execution.
type fakeIndex struct {
	pageMap     []byte
	zones       [][]byte
	openChapter []byte
}

func (f *fakeIndex) SavePageMap(w io.Writer) error {
	_, err := w.Write(f.pageMap)
	return err
}

func (f *fakeIndex) LoadPageMap(r io.Reader) error {
	buf := make([]byte, len(f.pageMap))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if !bytes.Equal(buf, f.pageMap) {
		return errMismatch
	}
	return nil
}

func (f *fakeIndex) SaveVolumeIndexZone(zone int, w io.Writer) error {
	_, err := w.Write(f.zones[zone])
	return err
}

func (f *fakeIndex) LoadVolumeIndexZone(zone int, r io.Reader) error {
	buf := make([]byte, len(f.zones[zone]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if !bytes.Equal(buf, f.zones[zone]) {
		return errMismatch
	}
	return nil
}

func (f *fakeIndex) SaveOpenChapter(w io.Writer) error {
	_, err := w.Write(f.openChapter)
	return err
}

func (f *fakeIndex) LoadOpenChapter(r io.Reader) error {
	buf := make([]byte, len(f.openChapter))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if !bytes.Equal(buf, f.openChapter) {
		return errMismatch
	}
	return nil
}

var errMismatch = errors.New("saveslot test: region content mismatch")

func newTestLayout(t *testing.T) (*layout.Layout, geometry.Configuration) {
	t.Helper()

	cfg := geometry.Configuration{
		BytesPerPage:      geometry.BlockSize,
		BytesPerVolume:    64 * geometry.BlockSize,
		VolumeIndexBytes:  2 * geometry.BlockSize,
		IndexPageMapBytes: 1 * geometry.BlockSize,
		OpenChapterBytes:  4 * geometry.BlockSize,
	}
	sizes, err := geometry.Compute(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index.bin")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate((sizes.TotalBlocks+16)*geometry.BlockSize))
	require.NoError(t, f.Close())

	factory, err := blockio.Open(path, blockio.ReadWrite)
	require.NoError(t, err)

	l, err := layout.InitFresh(factory, cfg, bytes.NewReader(bytes.Repeat([]byte{0x3}, 4096)))
	require.NoError(t, err)
	return l, cfg
}

func TestSelectOldestPrefersUnsaved(t *testing.T) {
	l, _ := newTestLayout(t)
	defer l.Close()

	m := NewManager(l)
	oldest := m.SelectOldest()
	assert.Equal(t, layout.StateUnsaved, oldest.State)
}

func TestCommitThenLoadRoundTrips(t *testing.T) {
	l, _ := newTestLayout(t)
	defer l.Close()

	m := NewManager(l)
	idx := &fakeIndex{
		pageMap:     bytes.Repeat([]byte{0xaa}, 4096),
		zones:       [][]byte{bytes.Repeat([]byte{0xbb}, 2*4096)},
		openChapter: bytes.Repeat([]byte{0xcc}, 4*4096),
	}

	target := m.SelectOldest()
	require.NoError(t, m.Instantiate(target, 1))

	want := IndexState{NewestChapter: 7, OldestChapter: 1, LastSave: 1000}
	require.NoError(t, m.Commit(target, idx, 1000, want))

	assert.True(t, target.Valid(l.GetVolumeNonce()))

	latest, err := m.SelectLatestValid()
	require.NoError(t, err)
	assert.Same(t, target, latest)

	got, err := m.Load(latest, idx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSelectLatestValidErrorsWhenNoneValid(t *testing.T) {
	l, _ := newTestLayout(t)
	defer l.Close()

	m := NewManager(l)
	_, err := m.SelectLatestValid()
	assert.ErrorIs(t, err, layout.ErrIndexNotSavedCleanly)
}

func TestDiscardOpenChapterZeroesRegion(t *testing.T) {
	l, _ := newTestLayout(t)
	defer l.Close()

	m := NewManager(l)
	idx := &fakeIndex{
		pageMap:     bytes.Repeat([]byte{0x11}, 4096),
		zones:       [][]byte{bytes.Repeat([]byte{0x22}, 2*4096)},
		openChapter: bytes.Repeat([]byte{0x33}, 4*4096),
	}

	target := m.SelectOldest()
	require.NoError(t, m.Instantiate(target, 1))
	require.NoError(t, m.Commit(target, idx, 1, IndexState{}))
	require.NoError(t, m.DiscardOpenChapter())

	rd, _, err := l.OpenRegion(*target.OpenChapter, blockio.ReadOnly)
	require.NoError(t, err)
	defer rd.Close()

	got := make([]byte, target.OpenChapter.NumBlocks*4096)
	_, err = io.ReadFull(rd, got)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, len(got)), got)
}

func TestInvalidateDropsValidity(t *testing.T) {
	l, _ := newTestLayout(t)
	defer l.Close()

	m := NewManager(l)
	idx := &fakeIndex{
		pageMap:     bytes.Repeat([]byte{0x1}, 4096),
		zones:       [][]byte{bytes.Repeat([]byte{0x2}, 2*4096)},
		openChapter: bytes.Repeat([]byte{0x3}, 4*4096),
	}

	target := m.SelectOldest()
	require.NoError(t, m.Instantiate(target, 1))
	require.NoError(t, m.Commit(target, idx, 500, IndexState{}))
	require.NoError(t, m.Invalidate(target))
	assert.False(t, target.Valid(l.GetVolumeNonce()))
}

// TestRotationOverwritesOldestSlot exercises spec.md §8's rotation
// scenario: with max_saves=2, three successive saves must land on
// slot 0, slot 1, slot 0 again — select_oldest always hands back the
// slot select_latest_valid did not just return.
func TestRotationOverwritesOldestSlot(t *testing.T) {
	l, _ := newTestLayout(t)
	defer l.Close()

	m := NewManager(l)
	idx := &fakeIndex{
		pageMap:     bytes.Repeat([]byte{0x44}, 4096),
		zones:       [][]byte{bytes.Repeat([]byte{0x55}, 2*4096)},
		openChapter: bytes.Repeat([]byte{0x66}, 4*4096),
	}

	save := func(ts int64) *layout.SaveSlot {
		target := m.SelectOldest()
		require.NoError(t, m.Instantiate(target, 1))
		require.NoError(t, m.Commit(target, idx, ts, IndexState{LastSave: uint64(ts)}))
		return target
	}

	first := save(100)
	second := save(200)
	assert.NotSame(t, first, second)

	third := save(300)
	assert.Same(t, first, third, "with max_saves=2, the third save must reuse the first (now-oldest) slot")

	latest, err := m.SelectLatestValid()
	require.NoError(t, err)
	assert.Same(t, third, latest)
	assert.True(t, second.Valid(l.GetVolumeNonce()), "second slot was not the one rotated out, so it must still be valid")
}

// TestCrashBetweenInvalidateAndCommitKeepsPriorSave exercises spec.md
// §8's crash-mid-save scenario: invalidate runs against the slot
// select_oldest picked, but the following commit never happens (the
// process dies first). select_latest_valid must still return the
// slot that was valid before the aborted save began.
func TestCrashBetweenInvalidateAndCommitKeepsPriorSave(t *testing.T) {
	l, _ := newTestLayout(t)
	defer l.Close()

	m := NewManager(l)
	idx := &fakeIndex{
		pageMap:     bytes.Repeat([]byte{0x77}, 4096),
		zones:       [][]byte{bytes.Repeat([]byte{0x88}, 2*4096)},
		openChapter: bytes.Repeat([]byte{0x99}, 4*4096),
	}

	prior := m.SelectOldest()
	require.NoError(t, m.Instantiate(prior, 1))
	require.NoError(t, m.Commit(prior, idx, 1, IndexState{}))

	next := m.SelectOldest()
	assert.NotSame(t, prior, next)
	require.NoError(t, m.Invalidate(next))
	// The crash happens here: Instantiate/Commit for next never runs.

	latest, err := m.SelectLatestValid()
	require.NoError(t, err)
	assert.Same(t, prior, latest)
}
