// Package layouttest builds version-7 "converted" layouts directly,
// bypassing layout.InitFresh (which only ever produces the current,
// unconverted version). It exists because nothing in this module's
// production path ever writes a converted super block — the original
// implementation only produced one through an external migration tool
// this module does not reimplement (spec.md §9) — but reconstitute's
// start_offset/volume_offset handling still needs a way to be exercised
// against real bytes.
package layouttest

import (
	"fmt"
	"io"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/geometry"
	"github.com/albireo-project/uds-layout/pkg/layout"
	"github.com/albireo-project/uds-layout/pkg/nonce"
)

const (
	physicalHeaderBlock   = 0
	physicalConfigBlock   = 1
	physicalSubIndexStart = 2
	subIndexID            = uint16(0)
)

// ForceConverted writes a fresh layout to f as a version-7 super block
// with the given start_offset and volume_offset, per spec.md §4.6:
// start_offset renumbers every logical block by a constant without
// moving any bytes (physical = logical - start_offset, so every region
// is still written at the same physical position InitFresh would use),
// while volume_offset inserts a genuine physical gap of that many
// blocks between the volume region and the first save slot. It returns
// the layout reconstituted from what it wrote, exercising the exact
// path layout.Reconstitute takes against production bytes.
func ForceConverted(f blockio.Factory, cfg geometry.Configuration, entropy io.Reader, startOffset, volumeOffset int64) (*layout.Layout, error) {
	if volumeOffset < startOffset {
		return nil, fmt.Errorf("layouttest: volume_offset %d < start_offset %d", volumeOffset, startOffset)
	}

	sizes, err := geometry.Compute(cfg)
	if err != nil {
		return nil, err
	}

	seedBytes, err := nonce.GenerateSeed(entropy)
	if err != nil {
		return nil, err
	}
	primary := nonce.Primary(seedBytes[:])

	logical := func(physical int64) int64 { return physical + startOffset }

	physicalFirstSlot := physicalSubIndexStart + sizes.VolumeBlocks + volumeOffset
	physicalSubIndexBlocks := physicalFirstSlot - physicalSubIndexStart + sizes.NumSaves*sizes.SaveBlocks
	physicalSeal := physicalSubIndexStart + physicalSubIndexBlocks

	sb := layout.SuperBlock{
		NonceInfo:         seedBytes,
		Nonce:             primary,
		Version:           layout.VersionConverted,
		BlockSize:         layout.BlockSize,
		NumIndexes:        1,
		MaxSaves:          uint16(sizes.NumSaves),
		OpenChapterBlocks: uint64(sizes.OpenChapterBlocks),
		PageMapBlocks:     uint64(sizes.PageMapBlocks),
		VolumeOffset:      uint64(volumeOffset),
		StartOffset:       uint64(startOffset),
	}
	sbBytes, err := layout.EncodeSuperBlock(&sb)
	if err != nil {
		return nil, err
	}

	outer := layout.RegionTable{
		Header: layout.RegionHeader{
			RegionBlocks: uint64(logical(physicalSeal) + 1),
			Type:         layout.RegionHeaderSuper,
			Version:      1,
			Payload:      uint16(len(sbBytes)),
		},
		Regions: []layout.LayoutRegion{
			{StartBlock: logical(physicalHeaderBlock), NumBlocks: 1, Kind: layout.RegionHeaderKind, Instance: layout.SoleInstance},
			{StartBlock: logical(physicalConfigBlock), NumBlocks: 1, Kind: layout.RegionConfig, Instance: layout.SoleInstance},
			{StartBlock: logical(physicalSubIndexStart), NumBlocks: physicalSubIndexBlocks, Kind: layout.RegionIndex, Instance: subIndexID},
			{StartBlock: logical(physicalSeal), NumBlocks: 1, Kind: layout.RegionSeal, Instance: layout.SoleInstance},
		},
	}

	headerBlock, err := padBlock(append(outer.Encode(), sbBytes...))
	if err != nil {
		return nil, err
	}
	if err := writeBlock(f, physicalHeaderBlock, headerBlock); err != nil {
		return nil, err
	}
	if err := writeBlock(f, physicalConfigBlock, make([]byte, layout.BlockSize)); err != nil {
		return nil, err
	}

	for i := int64(0); i < sizes.NumSaves; i++ {
		physicalSlotStart := physicalFirstSlot + i*sizes.SaveBlocks

		pageMap := layout.LayoutRegion{
			StartBlock: logical(physicalSlotStart + 1),
			NumBlocks:  sizes.PageMapBlocks,
			Kind:       layout.RegionIndexPageMap,
			Instance:   layout.SoleInstance,
		}
		zone := layout.LayoutRegion{
			StartBlock: logical(physicalSlotStart + 1 + sizes.PageMapBlocks),
			NumBlocks:  sizes.VolumeIndexBlocks,
			Kind:       layout.RegionVolumeIndex,
			Instance:   0,
		}
		regions := []layout.LayoutRegion{pageMap, zone}
		if sizes.OpenChapterBlocks > 0 {
			regions = append(regions, layout.LayoutRegion{
				StartBlock: logical(physicalSlotStart + 1 + sizes.PageMapBlocks + sizes.VolumeIndexBlocks),
				NumBlocks:  sizes.OpenChapterBlocks,
				Kind:       layout.RegionOpenChapter,
				Instance:   layout.SoleInstance,
			})
		}

		slotTable := layout.RegionTable{
			Header: layout.RegionHeader{
				RegionBlocks: uint64(sizes.SaveBlocks),
				Type:         layout.RegionHeaderUnsaved,
				Version:      1,
			},
			Regions: regions,
		}
		blk, err := padBlock(slotTable.Encode())
		if err != nil {
			return nil, err
		}
		if err := writeBlock(f, physicalSlotStart, blk); err != nil {
			return nil, err
		}
	}

	if err := writeBlock(f, physicalSeal, make([]byte, layout.BlockSize)); err != nil {
		return nil, err
	}

	return layout.Reconstitute(f)
}

func padBlock(data []byte) ([]byte, error) {
	if len(data) > layout.BlockSize {
		return nil, fmt.Errorf("layouttest: encoded table of %d bytes exceeds one block", len(data))
	}
	out := make([]byte, layout.BlockSize)
	copy(out, data)
	return out, nil
}

func writeBlock(f blockio.Factory, block int64, data []byte) error {
	w, err := f.OpenWriter(block*layout.BlockSize, int64(len(data)))
	if err != nil {
		return err
	}
	defer w.Close()

	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}
