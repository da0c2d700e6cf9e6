package layout

import (
	"fmt"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/nonce"
)

// Reconstitute reads an existing layout back from f: the outer table
// and super block, the sub-index's volume and save-slot regions, and
// each slot's own table plus (for slots currently holding a save) its
// IndexSaveData and state buffer. It performs no validity judgement of
// individual slots; callers select a slot to load from with the
// manager this package's consumers build on top of Layout.Saves.
func Reconstitute(f blockio.Factory) (*Layout, error) {
	dev := newDevice(f)

	header, err := dev.ReadBlocks(headerStartBlock, 1)
	if err != nil {
		return nil, err
	}

	table, err := DecodeRegionTable(header)
	if err != nil {
		return nil, err
	}
	if table.Header.Type != RegionHeaderSuper {
		return nil, fmt.Errorf("%w: outer region table is not a super block table", ErrUnexpectedResult)
	}

	consumed := RegionTableEncodedSize(len(table.Regions))
	if consumed+int(table.Header.Payload) > len(header) {
		return nil, fmt.Errorf("%w: super block payload runs past its block", ErrCorruptData)
	}
	sb, err := DecodeSuperBlock(header[consumed : consumed+int(table.Header.Payload)])
	if err != nil {
		return nil, err
	}

	// Every block address from here on is logical; translate by
	// start_offset for a converted super block before touching the
	// device again (the super block itself was, necessarily, read
	// untranslated above).
	if sb.Version == VersionConverted {
		dev = dev.withOrigin(int64(sb.StartOffset))
	}

	// Walk the outer table strictly in the order writeOuterTable lays it
	// down: header, config, index, seal, and nothing after. A region
	// table forged with an injected fifth region is rejected by the
	// trailing-region check below rather than silently accepted.
	it := newRegionIterator(table)

	headerRegion, err := it.next(true)
	if err != nil {
		return nil, err
	}
	if headerRegion.Kind != RegionHeaderKind || headerRegion.Instance != SoleInstance {
		return nil, fmt.Errorf("%w: super block's first region is not the header region", ErrUnexpectedResult)
	}
	if dev.translate(headerRegion.StartBlock) != headerStartBlock {
		return nil, fmt.Errorf("%w: header region does not translate to physical block 0", ErrUnexpectedResult)
	}

	configRegion, err := it.next(true)
	if err != nil {
		return nil, err
	}
	if configRegion.Kind != RegionConfig || configRegion.Instance != SoleInstance {
		return nil, fmt.Errorf("%w: super block's second region is not the config region", ErrUnexpectedResult)
	}

	indexRegion, err := it.next(true)
	if err != nil {
		return nil, err
	}
	if indexRegion.Kind != RegionIndex || indexRegion.Instance != subIndexID {
		return nil, fmt.Errorf("%w: super block's third region is not the sub-index region", ErrUnexpectedResult)
	}

	sealRegion, err := it.next(true)
	if err != nil {
		return nil, err
	}
	if sealRegion.Kind != RegionSeal || sealRegion.Instance != SoleInstance {
		return nil, fmt.Errorf("%w: super block's fourth region is not the seal region", ErrUnexpectedResult)
	}

	if _, err := it.next(false); err != errIteratorDone {
		if err == nil {
			return nil, fmt.Errorf("%w: super block region table has trailing unexpected regions", ErrUnexpectedResult)
		}
		return nil, err
	}

	primary := sb.Nonce
	subIndexNonce := nonce.SubIndex(primary, indexRegion.StartBlock, subIndexID)

	l := &Layout{
		factory: f,
		dev:     dev,
		super:   *sb,
		seal:    *sealRegion,
	}

	sub, err := reconstituteSubIndex(dev, indexRegion, subIndexNonce, *sb)
	if err != nil {
		return nil, err
	}
	l.sub = sub

	return l, nil
}

// reconstituteSubIndex decodes the volume region and every save slot
// beneath indexRegion's span. The first region is always the volume;
// every region after it is one save slot's own span, in order.
func reconstituteSubIndex(dev *device, indexRegion *LayoutRegion, subIndexNonce uint64, sb SuperBlock) (*SubIndex, error) {
	sub := &SubIndex{
		StartBlock: indexRegion.StartBlock,
		NumBlocks:  indexRegion.NumBlocks,
		ID:         subIndexID,
		Nonce:      subIndexNonce,
	}

	cursor := indexRegion.StartBlock

	// The volume's span is whatever precedes the first save slot; since
	// every slot's own RegionHeader.RegionBlocks is self-describing, the
	// slots can be located without first knowing the volume's size.
	slotStarts, slotSpans, err := probeSlotSpans(dev, cursor, indexRegion.NumBlocks, int(sb.MaxSaves))
	if err != nil {
		return nil, err
	}

	// A converted super block's first save slot begins volume_offset
	// blocks after the volume actually ends (spec.md §4.6); recover the
	// volume's true span by backing that gap back out of the naive
	// cursor-to-first-slot distance.
	volumeSpan := slotStarts[0] - cursor
	if sb.Version == VersionConverted {
		volumeSpan -= int64(sb.VolumeOffset)
	}
	sub.Volume = LayoutRegion{StartBlock: cursor, NumBlocks: volumeSpan, Kind: RegionVolume, Instance: SoleInstance}

	for i, start := range slotStarts {
		slot, err := decodeSlot(dev, start, slotSpans[i], int64(sb.OpenChapterBlocks))
		if err != nil {
			return nil, err
		}
		sub.Saves = append(sub.Saves, slot)
	}

	return sub, nil
}

// probeSlotSpans locates sb.MaxSaves save-slot headers within
// [start, start+total) by scanning backward from the end of the
// sub-index span: each slot's own RegionHeader.RegionBlocks gives its
// exact width, so the slots can be found without first knowing the
// volume's size.
func probeSlotSpans(dev *device, start, total int64, maxSaves int) ([]int64, []int64, error) {
	starts := make([]int64, maxSaves)
	spans := make([]int64, maxSaves)

	cursor := start + total
	for i := maxSaves - 1; i >= 0; i-- {
		// A slot header's own RegionBlocks field is only known after
		// reading it, but every slot occupies at least one block, so
		// probe backward one block at a time until a valid header magic
		// is found at a block boundary and its declared span lands
		// exactly on cursor.
		found := false
		for probe := cursor - 1; probe >= start; probe-- {
			blk, err := dev.ReadBlocks(probe, 1)
			if err != nil {
				return nil, nil, err
			}
			h, err := DecodeRegionHeader(blk[:24])
			if err == ErrNoIndex {
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			if h.Type != RegionHeaderSave && h.Type != RegionHeaderUnsaved {
				continue
			}
			if probe+int64(h.RegionBlocks) != cursor {
				continue
			}
			starts[i] = probe
			spans[i] = int64(h.RegionBlocks)
			cursor = probe
			found = true
			break
		}
		if !found {
			return nil, nil, fmt.Errorf("%w: could not locate save slot %d", ErrUnexpectedResult, i)
		}
	}

	return starts, spans, nil
}

// decodeSlot reproduces the slot's own region-table walker from
// spec.md §4.5 step 4: the page map must come first, followed by
// either a single collapsed SCRATCH region or a save-time carve of one
// or more VOLUME_INDEX zones plus an optional OPEN_CHAPTER, with no
// regions left over. A table missing its page map, carrying an unknown
// region kind, or carrying trailing entries is rejected rather than
// silently accepted.
func decodeSlot(dev *device, start, span, openChapterCapacity int64) (*SaveSlot, error) {
	blk, err := dev.ReadBlocks(start, 1)
	if err != nil {
		return nil, err
	}

	table, err := DecodeRegionTable(blk)
	if err != nil {
		return nil, err
	}

	slot := &SaveSlot{
		StartBlock:          start,
		NumBlocks:           span,
		OpenChapterCapacity: openChapterCapacity,
	}

	it := newRegionIterator(table)

	pageMap, err := it.next(true)
	if err != nil {
		return nil, err
	}
	if pageMap.Kind != RegionIndexPageMap || pageMap.Instance != SoleInstance {
		return nil, fmt.Errorf("%w: save slot's first region is not the page map", ErrUnexpectedResult)
	}
	slot.PageMap = *pageMap
	slot.VariableStart = pageMap.StartBlock + pageMap.NumBlocks
	slot.VariableBlocks = span - 1 - pageMap.NumBlocks

	next, err := it.next(true)
	if err != nil {
		return nil, err
	}

	switch next.Kind {
	case RegionScratch:
		if next.Instance != SoleInstance {
			return nil, fmt.Errorf("%w: save slot scratch region has an unexpected instance", ErrUnexpectedResult)
		}
		slot.Scratch = *next

	case RegionVolumeIndex:
		slot.ZoneRegions = append(slot.ZoneRegions, *next)
		for {
			peek, err := it.next(false)
			if err == errIteratorDone {
				break
			}
			if err != nil {
				return nil, err
			}
			if peek.Kind == RegionOpenChapter {
				oc := *peek
				slot.OpenChapter = &oc
				break
			}
			if peek.Kind != RegionVolumeIndex {
				return nil, fmt.Errorf("%w: unexpected region kind %d in save slot", ErrUnexpectedResult, peek.Kind)
			}
			slot.ZoneRegions = append(slot.ZoneRegions, *peek)
		}
		slot.NumZones = len(slot.ZoneRegions)

	default:
		return nil, fmt.Errorf("%w: save slot's second region has unexpected kind %d", ErrUnexpectedResult, next.Kind)
	}

	if _, err := it.next(false); err != errIteratorDone {
		if err == nil {
			return nil, fmt.Errorf("%w: save slot table has trailing unexpected region", ErrUnexpectedResult)
		}
		return nil, err
	}

	consumed := RegionTableEncodedSize(len(table.Regions))

	switch table.Header.Type {
	case RegionHeaderUnsaved:
		slot.State = StateUnsaved
		slot.StateBuffer = make([]byte, StateBufferSize)
	case RegionHeaderSave:
		if consumed+int(table.Header.Payload) > len(blk) {
			return nil, fmt.Errorf("%w: save slot payload runs past its block", ErrCorruptData)
		}
		payload := blk[consumed : consumed+int(table.Header.Payload)]
		if len(payload) < indexSaveDataSize {
			return nil, fmt.Errorf("%w: save slot payload shorter than its save data", ErrCorruptData)
		}
		sd, err := DecodeIndexSaveData(payload[:indexSaveDataSize])
		if err != nil {
			return nil, err
		}
		slot.SaveData = *sd
		slot.State = StateSave
		slot.StateBuffer = append([]byte{}, payload[indexSaveDataSize:]...)
	default:
		return nil, fmt.Errorf("%w: save slot table has header type %d", ErrUnexpectedResult, table.Header.Type)
	}

	return slot, nil
}
