package saveslot

import (
	"fmt"
	"io"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/layout"
	"github.com/albireo-project/uds-layout/pkg/nonce"
)

// Manager drives the ring of save slots beneath one layout.Layout:
// picking a write target, committing a save into it, invalidating it,
// and picking the most recent valid slot to load from. Grounded on the
// teacher's multi-phase build driver, generalized from "compile one
// filesystem image" to "rotate one ring of save slots".
type Manager struct {
	l *layout.Layout
}

// NewManager returns a Manager driving l's save-slot ring.
func NewManager(l *layout.Layout) *Manager {
	return &Manager{l: l}
}

// SelectOldest returns the save slot that should receive the next
// save: the one with the smallest SaveTime, i.e. an unsaved slot first,
// then the least-recently-saved valid one. Ties break toward the
// lowest-indexed slot, giving deterministic rotation.
func (m *Manager) SelectOldest() *layout.SaveSlot {
	volNonce := m.l.GetVolumeNonce()
	saves := m.l.Saves()

	oldest := saves[0]
	oldestTime := oldest.SaveTime(volNonce)
	for _, s := range saves[1:] {
		if t := s.SaveTime(volNonce); t < oldestTime {
			oldest, oldestTime = s, t
		}
	}
	return oldest
}

// SelectLatestValid returns the most recently saved valid slot, per
// spec.md §4.6's load path. It returns ErrIndexNotSavedCleanly if no
// slot is valid.
func (m *Manager) SelectLatestValid() (*layout.SaveSlot, error) {
	volNonce := m.l.GetVolumeNonce()

	var latest *layout.SaveSlot
	var latestTime int64
	for _, s := range m.l.Saves() {
		if !s.Valid(volNonce) {
			continue
		}
		if latest == nil || s.SaveData.Timestamp > latestTime {
			latest, latestTime = s, s.SaveData.Timestamp
		}
	}
	if latest == nil {
		return nil, layout.ErrIndexNotSavedCleanly
	}
	return latest, nil
}

// Instantiate carves slot's reserved span into numZones volume-index
// zones (and an open-chapter region, when this index keeps one) and
// writes the result to disk as unsaved immediately, so a crash between
// Instantiate and Commit leaves the slot unambiguously invalid rather
// than claiming a stale save. This is spec.md §4.6's
// instantiate(slot, num_zones) operation.
func (m *Manager) Instantiate(slot *layout.SaveSlot, numZones int) error {
	return m.l.InstantiateSlot(slot, numZones)
}

// Commit writes idx's chapter/volume-index/page-map content into
// slot's regions, then stamps and persists slot's own save data last,
// the ordering spec.md §4.6 requires for crash consistency: a reader
// that only ever sees committed save data can trust the regions it
// points at are complete.
func (m *Manager) Commit(slot *layout.SaveSlot, idx Index, timestamp int64, state IndexState) error {
	if err := m.writeRegion(slot.PageMap, func(w io.Writer) error { return idx.SavePageMap(w) }); err != nil {
		return fmt.Errorf("saveslot: save page map: %w", err)
	}

	for z, region := range slot.ZoneRegions {
		z := z
		if err := m.writeRegion(region, func(w io.Writer) error { return idx.SaveVolumeIndexZone(z, w) }); err != nil {
			return fmt.Errorf("saveslot: save volume index zone %d: %w", z, err)
		}
	}

	if slot.OpenChapter != nil {
		if err := m.writeRegion(*slot.OpenChapter, func(w io.Writer) error { return idx.SaveOpenChapter(w) }); err != nil {
			return fmt.Errorf("saveslot: save open chapter: %w", err)
		}
	}

	slot.SaveData = layout.IndexSaveData{
		Timestamp: timestamp,
		Version:   layout.IndexSaveDataVersion,
		Nonce:     nonce.Save(m.l.GetVolumeNonce(), timestamp, layout.IndexSaveDataVersion, slot.StartBlock),
	}
	slot.StateBuffer = encodeIndexState(state)
	slot.State = layout.StateSave

	return m.l.CommitSlot(slot)
}

// Load reads slot's persisted descriptor and drives idx's load
// callbacks across its regions, in the mirror order Commit writes
// them. The caller must have already confirmed slot.Valid.
func (m *Manager) Load(slot *layout.SaveSlot, idx Index) (IndexState, error) {
	state, err := decodeIndexState(slot.StateBuffer)
	if err != nil {
		return IndexState{}, err
	}

	if err := m.readRegion(slot.PageMap, func(r io.Reader) error { return idx.LoadPageMap(r) }); err != nil {
		return IndexState{}, fmt.Errorf("saveslot: load page map: %w", err)
	}

	for z, region := range slot.ZoneRegions {
		z := z
		if err := m.readRegion(region, func(r io.Reader) error { return idx.LoadVolumeIndexZone(z, r) }); err != nil {
			return IndexState{}, fmt.Errorf("saveslot: load volume index zone %d: %w", z, err)
		}
	}

	if slot.OpenChapter != nil {
		if err := m.readRegion(*slot.OpenChapter, func(r io.Reader) error { return idx.LoadOpenChapter(r) }); err != nil {
			return IndexState{}, fmt.Errorf("saveslot: load open chapter: %w", err)
		}
	}

	return state, nil
}

// Invalidate marks slot unsaved without touching any other slot, per
// spec.md §4.6's invalidate operation.
func (m *Manager) Invalidate(slot *layout.SaveSlot) error {
	return m.l.InvalidateSlot(slot)
}

// Cancel drops slot back to its in-memory NoSave state without writing
// to disk: used when a save is abandoned after Instantiate but a prior
// on-disk Invalidate (or the slot's original unsaved state) is still in
// force and need not be repeated.
func (m *Manager) Cancel(slot *layout.SaveSlot) {
	slot.State = layout.StateNoSave
}

// DiscardAll invalidates every slot in the ring, the manager-level
// entry point spec.md §6 exposes as discard_index_state.
func (m *Manager) DiscardAll() error {
	return m.l.DiscardIndexState()
}

// DiscardOpenChapter zero-fills the latest valid slot's open-chapter
// region, the discard_open_chapter entry point from spec.md §6: used
// when the deduplication index wants to drop its in-progress chapter
// without invalidating the rest of the save.
func (m *Manager) DiscardOpenChapter() error {
	slot, err := m.SelectLatestValid()
	if err != nil {
		return err
	}
	if slot.OpenChapter == nil {
		return nil
	}

	zero := make([]byte, slot.OpenChapter.NumBlocks*layout.BlockSize)
	return m.writeRegion(*slot.OpenChapter, func(w io.Writer) error {
		_, err := w.Write(zero)
		return err
	})
}

func (m *Manager) writeRegion(r layout.LayoutRegion, fn func(io.Writer) error) error {
	_, w, err := m.l.OpenRegion(r, blockio.ReadWrite)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := fn(w); err != nil {
		return err
	}
	return w.Flush()
}

func (m *Manager) readRegion(r layout.LayoutRegion, fn func(io.Reader) error) error {
	rd, _, err := m.l.OpenRegion(r, blockio.ReadOnly)
	if err != nil {
		return err
	}
	defer rd.Close()

	return fn(rd)
}
