package layout

import (
	"fmt"
	"io"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/geometry"
	"github.com/albireo-project/uds-layout/pkg/nonce"
)

// Fixed positions in the outer table, named the way pkg/vimg/partitions.go
// names its fixed GPT slots.
const (
	headerStartBlock = 0
	configStartBlock = 1
	subIndexID       = uint16(0)
)

// InitFresh lays out a brand-new, empty index on f per cfg: a header
// block, a reserved config block, one sub-index (one volume region plus
// geometry.NumSaves unsaved save slots), and a seal block. It generates
// a fresh random seed with entropy, deriving every nonce from it, and
// writes the complete layout to f before returning.
func InitFresh(f blockio.Factory, cfg geometry.Configuration, entropy io.Reader) (*Layout, error) {
	sizes, err := geometry.Compute(cfg)
	if err != nil {
		return nil, err
	}

	capacity, err := f.WritableSize()
	if err != nil {
		return nil, err
	}
	if capacity/BlockSize < sizes.TotalBlocks {
		return nil, fmt.Errorf("%w: device holds %d blocks, layout needs %d", blockio.ErrNoSpace, capacity/BlockSize, sizes.TotalBlocks)
	}

	seedBytes, err := nonce.GenerateSeed(entropy)
	if err != nil {
		return nil, err
	}
	primary := nonce.Primary(seedBytes[:])

	subIndexStart := int64(configStartBlock + 1)
	subIndexNonce := nonce.SubIndex(primary, subIndexStart, subIndexID)

	sub := &SubIndex{
		StartBlock: subIndexStart,
		NumBlocks:  sizes.SubIndexBlocks,
		ID:         subIndexID,
		Nonce:      subIndexNonce,
		Volume: LayoutRegion{
			StartBlock: subIndexStart,
			NumBlocks:  sizes.VolumeBlocks,
			Kind:       RegionVolume,
			Instance:   SoleInstance,
		},
	}

	cursor := subIndexStart + sizes.VolumeBlocks
	for i := int64(0); i < sizes.NumSaves; i++ {
		slot := buildEmptySlot(cursor, sizes)
		sub.Saves = append(sub.Saves, slot)
		cursor += slot.NumBlocks
	}

	sealStart := cursor
	sb := SuperBlock{
		NonceInfo:         seedBytes,
		Nonce:             primary,
		Version:           VersionCurrent,
		BlockSize:         BlockSize,
		NumIndexes:        1,
		MaxSaves:          uint16(sizes.NumSaves),
		OpenChapterBlocks: uint64(sizes.OpenChapterBlocks),
		PageMapBlocks:     uint64(sizes.PageMapBlocks),
	}

	l := &Layout{
		factory: f,
		dev:     newDevice(f),
		super:   sb,
		sub:     sub,
		seal:    LayoutRegion{StartBlock: sealStart, NumBlocks: 1, Kind: RegionSeal, Instance: SoleInstance},
	}

	if err := l.writeOuterTable(); err != nil {
		return nil, err
	}
	if err := l.writeConfigBlock(); err != nil {
		return nil, err
	}
	for _, slot := range sub.Saves {
		if err := l.writeSlotTable(slot); err != nil {
			return nil, err
		}
	}
	if err := l.writeSeal(); err != nil {
		return nil, err
	}

	return l, nil
}

// buildEmptySlot lays out a fresh, not-yet-instantiated slot starting at
// startBlock: its header, its page map (the only sub-region that is
// fixed rather than a save-time parameter), and a single SCRATCH region
// covering the rest of its span. Per spec.md §4.5, the VOLUME_INDEX
// zones and the OPEN_CHAPTER region are allocated later, at save time,
// by Layout.InstantiateSlot.
func buildEmptySlot(startBlock int64, sizes geometry.Sizes) *SaveSlot {
	cursor := startBlock + 1 // slot's own header occupies block 0 of its span

	pageMap := LayoutRegion{
		StartBlock: cursor,
		NumBlocks:  sizes.PageMapBlocks,
		Kind:       RegionIndexPageMap,
		Instance:   SoleInstance,
	}
	cursor += sizes.PageMapBlocks

	variableStart := cursor
	variableBlocks := sizes.SaveBlocks - 1 - sizes.PageMapBlocks

	scratch := LayoutRegion{
		StartBlock: variableStart,
		NumBlocks:  variableBlocks,
		Kind:       RegionScratch,
		Instance:   SoleInstance,
	}

	return &SaveSlot{
		StartBlock:          startBlock,
		NumBlocks:           sizes.SaveBlocks,
		State:               StateUnsaved,
		PageMap:             pageMap,
		VariableStart:       variableStart,
		VariableBlocks:      variableBlocks,
		OpenChapterCapacity: sizes.OpenChapterBlocks,
		Scratch:             scratch,
		StateBuffer:         make([]byte, StateBufferSize),
	}
}
