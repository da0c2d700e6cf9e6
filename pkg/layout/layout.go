package layout

import (
	"fmt"

	"github.com/albireo-project/uds-layout/pkg/blockio"
)

// Layout is the top-level, in-memory handle on one device's complete
// persistent index geometry: its super block, its single SubIndex, and
// the seal marking the end of the managed area. Layout owns sub and
// every SaveSlot beneath it outright; nothing outside this package
// holds a reference into that tree.
type Layout struct {
	factory blockio.Factory
	dev     *device

	super SuperBlock
	sub   *SubIndex
	seal  LayoutRegion
}

// Close releases the underlying backing store. The Layout must not be
// used afterward.
func (l *Layout) Close() error {
	return l.factory.Release()
}

// GetVolumeNonce returns the nonce the deduplication index's volume
// layer must present on every read/write of its region, binding that
// I/O to this specific layout instance (spec.md §4.4/§6).
func (l *Layout) GetVolumeNonce() uint64 {
	return l.sub.Nonce
}

// OpenVolumeRegion returns a block-range reader/writer pair bounded to
// the sub-index's volume region. When this layout was reconstituted
// from a converted (version-7) super block, every address below is
// already translated by start_offset through l.dev (see device.go);
// volume_offset itself is never consulted here; it only widens the gap
// reconstitute discovers between the volume and the first save slot.
func (l *Layout) OpenVolumeRegion(access blockio.Access) (blockio.Reader, blockio.Writer, error) {
	return l.OpenRegion(l.sub.Volume, access)
}

// OpenRegion returns a block-range reader/writer pair bounded to an
// arbitrary region of this layout (a save slot's zone, page map, or
// open chapter region), translated through the version-7 convention
// the same way OpenVolumeRegion is. Callers outside this package reach
// it only through the manager built on top of Layout.Saves.
func (l *Layout) OpenRegion(r LayoutRegion, access blockio.Access) (blockio.Reader, blockio.Writer, error) {
	start := l.dev.translate(r.StartBlock)
	length := r.NumBlocks * BlockSize

	rd, err := l.factory.OpenReader(start*BlockSize, length)
	if err != nil {
		return nil, nil, err
	}

	if access != blockio.ReadWrite {
		return rd, nil, nil
	}

	w, err := l.factory.OpenWriter(start*BlockSize, length)
	if err != nil {
		rd.Close()
		return nil, nil, err
	}
	return rd, w, nil
}

// Saves returns the sub-index's save slots in on-disk order, for the
// rotation manager built on top of this package.
func (l *Layout) Saves() []*SaveSlot {
	return l.sub.Saves
}

// VolumeRegion returns the sub-index's volume region descriptor.
func (l *Layout) VolumeRegion() LayoutRegion {
	return l.sub.Volume
}

// SuperBlock returns a copy of this layout's decoded super block, for
// read-only diagnostics (layoutctl inspect).
func (l *Layout) SuperBlock() SuperBlock {
	return l.super
}

// CommitSlot persists slot's current in-memory fields (State, SaveData,
// StateBuffer, and its region list) to its on-disk table.
func (l *Layout) CommitSlot(slot *SaveSlot) error {
	return l.writeSlotTable(slot)
}

// InvalidateSlot marks slot unsaved on disk, clearing its save data and
// state buffer.
func (l *Layout) InvalidateSlot(slot *SaveSlot) error {
	return l.invalidateSlot(slot)
}

// DiscardIndexState invalidates every save slot without touching the
// volume region, the external `discard_index_state` entry point from
// spec.md §6: used when the deduplication index itself reports its
// in-memory state is unusable and the next open must start clean.
func (l *Layout) DiscardIndexState() error {
	for _, slot := range l.sub.Saves {
		if err := l.invalidateSlot(slot); err != nil {
			return err
		}
	}
	return nil
}

func outerRegions(l *Layout) []LayoutRegion {
	return []LayoutRegion{
		{StartBlock: headerStartBlock, NumBlocks: 1, Kind: RegionHeaderKind, Instance: SoleInstance},
		{StartBlock: configStartBlock, NumBlocks: 1, Kind: RegionConfig, Instance: SoleInstance},
		{StartBlock: l.sub.StartBlock, NumBlocks: l.sub.NumBlocks, Kind: RegionIndex, Instance: l.sub.ID},
		l.seal,
	}
}

func (l *Layout) writeOuterTable() error {
	sbBytes, err := EncodeSuperBlock(&l.super)
	if err != nil {
		return err
	}

	table := RegionTable{
		Header: RegionHeader{
			RegionBlocks: uint64(l.seal.StartBlock + 1),
			Type:         RegionHeaderSuper,
			Version:      1,
			Payload:      uint16(len(sbBytes)),
		},
		Regions: outerRegions(l),
	}

	combined := append(table.Encode(), sbBytes...)
	padded, err := padToBlock(combined)
	if err != nil {
		return err
	}
	return l.dev.WriteBlocks(headerStartBlock, padded)
}

func (l *Layout) writeConfigBlock() error {
	return l.dev.WriteBlocks(configStartBlock, make([]byte, BlockSize))
}

func (l *Layout) writeSeal() error {
	return l.dev.WriteBlocks(l.seal.StartBlock, make([]byte, BlockSize))
}

// slotHeaderType reports the on-disk RegionHeaderType a slot's in-memory
// State maps to. A cancelled (StateNoSave) slot is written as Unsaved:
// its on-disk table must never claim to hold a valid save.
func slotHeaderType(s SlotState) RegionHeaderType {
	if s == StateSave {
		return RegionHeaderSave
	}
	return RegionHeaderUnsaved
}

// slotRegions returns slot's region list in the fixed order its table is
// written and read back in: the page map always first, then either its
// collapsed SCRATCH view or its instantiated VOLUME_INDEX zones plus an
// optional OPEN_CHAPTER.
func slotRegions(slot *SaveSlot) []LayoutRegion {
	regions := []LayoutRegion{slot.PageMap}
	if len(slot.ZoneRegions) > 0 {
		regions = append(regions, slot.ZoneRegions...)
		if slot.OpenChapter != nil {
			regions = append(regions, *slot.OpenChapter)
		}
		return regions
	}
	return append(regions, slot.Scratch)
}

func (l *Layout) writeSlotTable(slot *SaveSlot) error {
	var payload []byte
	if slot.State == StateSave {
		payload = append(EncodeIndexSaveData(&slot.SaveData), slot.StateBuffer...)
	}

	table := RegionTable{
		Header: RegionHeader{
			RegionBlocks: uint64(slot.NumBlocks),
			Type:         slotHeaderType(slot.State),
			Version:      1,
			Payload:      uint16(len(payload)),
		},
		Regions: slotRegions(slot),
	}

	combined := append(table.Encode(), payload...)
	padded, err := padToBlock(combined)
	if err != nil {
		return err
	}
	return l.dev.WriteBlocks(slot.StartBlock, padded)
}

// invalidateSlot resets slot to its collapsed, never-instantiated shape
// (the original's reset_index_save_layout): any carved VOLUME_INDEX
// zones and OPEN_CHAPTER region are discarded in memory and folded back
// into a single SCRATCH region covering the same span, ready for the
// next InstantiateSlot call to carve again with a possibly different
// num_zones.
func (l *Layout) invalidateSlot(slot *SaveSlot) error {
	slot.State = StateUnsaved
	slot.SaveData = IndexSaveData{}
	for i := range slot.StateBuffer {
		slot.StateBuffer[i] = 0
	}

	slot.NumZones = 0
	slot.ZoneRegions = nil
	slot.OpenChapter = nil
	slot.Scratch = LayoutRegion{
		StartBlock: slot.VariableStart,
		NumBlocks:  slot.VariableBlocks,
		Kind:       RegionScratch,
		Instance:   SoleInstance,
	}

	return l.writeSlotTable(slot)
}

// InstantiateSlot carves slot's reserved variable span into numZones
// VOLUME_INDEX zones of floor(blocks_avail/num_zones) blocks each, plus
// one OPEN_CHAPTER region when this index keeps one, and persists the
// slot unsaved immediately: a crash between InstantiateSlot and a
// following Commit must leave the slot unambiguously invalid rather
// than claiming a stale save. This is spec.md §4.6's
// instantiate(slot, num_zones) operation, mirroring the original's
// populate_index_save_layout.
func (l *Layout) InstantiateSlot(slot *SaveSlot, numZones int) error {
	if numZones <= 0 {
		return fmt.Errorf("%w: num_zones must be positive", ErrInvalidArgument)
	}

	blocksAvail := slot.VariableBlocks - slot.OpenChapterCapacity
	if blocksAvail < int64(numZones) {
		return fmt.Errorf("%w: %d blocks cannot hold %d volume index zones", ErrInvalidArgument, blocksAvail, numZones)
	}
	zoneBlocks := blocksAvail / int64(numZones)

	zones := make([]LayoutRegion, numZones)
	cursor := slot.VariableStart
	for z := 0; z < numZones; z++ {
		zones[z] = LayoutRegion{StartBlock: cursor, NumBlocks: zoneBlocks, Kind: RegionVolumeIndex, Instance: uint16(z)}
		cursor += zoneBlocks
	}

	var openChapter *LayoutRegion
	if slot.OpenChapterCapacity > 0 {
		openChapter = &LayoutRegion{
			StartBlock: slot.VariableStart + slot.VariableBlocks - slot.OpenChapterCapacity,
			NumBlocks:  slot.OpenChapterCapacity,
			Kind:       RegionOpenChapter,
			Instance:   SoleInstance,
		}
	}

	slot.NumZones = numZones
	slot.ZoneRegions = zones
	slot.OpenChapter = openChapter
	slot.Scratch = LayoutRegion{}
	slot.State = StateUnsaved

	return l.writeSlotTable(slot)
}
