package layout

import "github.com/albireo-project/uds-layout/pkg/nonce"

// SlotState is the save slot's own in-memory bookkeeping state,
// distinct from RegionHeaderType (what a slot's on-disk region table
// currently says). A slot moves NoSave -> Unsaved -> Save as
// invalidate/instantiate/commit run; Cancel drops it back to NoSave
// without touching disk (a prior Invalidate is assumed still in force).
type SlotState uint8

const (
	StateNoSave SlotState = iota
	StateUnsaved
	StateSave
)

// StateBufferSize is the width of the per-slot state buffer the
// deduplication index uses to persist its own descriptor (newest/oldest
// chapter, last_save) alongside the save data.
const StateBufferSize = 512

// SaveSlot is the in-memory descriptor for one save-slot area: its own
// span on disk, its sub-regions, its IndexSaveData header, and the
// state buffer the index writes its descriptor into. SaveSlot owns its
// zone/open-chapter descriptors and state buffer outright; nothing else
// holds a reference to them.
//
// Only the header and the page map are laid out at creation time. The
// span between the page map and the end of the slot is reserved but
// unassigned until a save begins: PageMap/VariableStart/VariableBlocks/
// OpenChapterCapacity are fixed for the slot's whole lifetime, while
// ZoneRegions/OpenChapter (carved by Layout.InstantiateSlot) and Scratch
// (the collapsed, not-yet-instantiated view of the same span) are
// mutually exclusive: exactly one of the two views is populated at a
// time, depending on whether the slot has been instantiated since its
// last invalidation.
type SaveSlot struct {
	StartBlock int64
	NumBlocks  int64

	State SlotState

	SaveData IndexSaveData

	PageMap             LayoutRegion // INDEX_PAGE_MAP, fixed at creation
	VariableStart       int64        // first block past the page map
	VariableBlocks      int64        // blocks available for zones + open chapter
	OpenChapterCapacity int64        // blocks an OPEN_CHAPTER region occupies when allocated

	NumZones    int
	ZoneRegions []LayoutRegion // VOLUME_INDEX, one per zone; nil until instantiated
	OpenChapter *LayoutRegion  // nil until instantiated, and only when OpenChapterCapacity > 0
	Scratch     LayoutRegion   // SCRATCH: the collapsed view when not instantiated

	StateBuffer []byte
}

// Valid reports whether s passes the save-slot validity predicate of
// spec.md §4.6 under sub-index nonce volumeNonce.
func (s *SaveSlot) Valid(volumeNonce uint64) bool {
	if s.State != StateSave {
		return false
	}
	if s.NumZones <= 0 {
		return false
	}
	if s.SaveData.Timestamp == 0 {
		return false
	}
	want := nonce.Save(volumeNonce, s.SaveData.Timestamp, s.SaveData.Version, s.StartBlock)
	return s.SaveData.Nonce == want
}

// SaveTime returns the slot's ordering key for rotation: a valid slot's
// timestamp, or zero for any invalid/free slot (spec.md §4.6's
// select_oldest/select_latest).
func (s *SaveSlot) SaveTime(volumeNonce uint64) int64 {
	if !s.Valid(volumeNonce) {
		return 0
	}
	return s.SaveData.Timestamp
}

// SubIndex is the single inner index hierarchy this layout supports. It
// owns the volume region and the array of save slots; nothing refers
// back to the Layout that owns it.
type SubIndex struct {
	StartBlock int64
	NumBlocks  int64
	ID         uint16
	Nonce      uint64

	Volume LayoutRegion
	Saves  []*SaveSlot
}
