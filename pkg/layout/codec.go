package layout

import (
	"fmt"

	"github.com/albireo-project/uds-layout/pkg/codec"
)

// Fixed on-disk widths, named the way the teacher names its GPT/ext4
// struct-size constants.
const (
	superBlockBaseSize      = 32 + 32 + 8 + 4 + 4 + 2 + 2 + 4 + 8 + 8
	superBlockConvertedSize = superBlockBaseSize + 8 + 8
	regionHeaderSize        = 8 + 8 + 2 + 2 + 2 + 2
	layoutRegionSize        = 8 + 8 + 4 + 2 + 2
	indexSaveDataSize       = 8 + 8 + 4 + 4
)

// EncodeSuperBlock writes sb in the on-disk byte layout of spec.md §3.
// The version-7-only fields are only emitted when sb.Version ==
// VersionConverted, per spec.md §5/§7.
func EncodeSuperBlock(sb *SuperBlock) ([]byte, error) {
	size := superBlockBaseSize
	if sb.Version == VersionConverted {
		size = superBlockConvertedSize
	}

	b := codec.NewEncoder(size)
	b.PutBytes([]byte(SuperBlockMagic))
	b.PutBytes(sb.NonceInfo[:])
	b.PutUint64(sb.Nonce)
	b.PutUint32(sb.Version)
	b.PutUint32(sb.BlockSize)
	b.PutUint16(sb.NumIndexes)
	b.PutUint16(sb.MaxSaves)
	b.PutZeroes(4)
	b.PutUint64(sb.OpenChapterBlocks)
	b.PutUint64(sb.PageMapBlocks)

	if sb.Version == VersionConverted {
		b.PutUint64(sb.VolumeOffset)
		b.PutUint64(sb.StartOffset)
	}

	return b.Bytes(), nil
}

// DecodeSuperBlock decodes data into a SuperBlock, rejecting unsupported
// versions and malformed magics.
func DecodeSuperBlock(data []byte) (*SuperBlock, error) {
	d := codec.NewDecoder(data)

	magic, err := d.GetBytes(len(SuperBlockMagic))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if string(magic) != SuperBlockMagic {
		return nil, fmt.Errorf("%w: bad super block magic", ErrCorruptData)
	}

	sb := &SuperBlock{}

	nonceInfo, err := d.GetBytes(32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	copy(sb.NonceInfo[:], nonceInfo)

	if sb.Nonce, err = d.GetUint64(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if sb.Version, err = d.GetUint32(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	if versionRejected(sb.Version) {
		return nil, fmt.Errorf("%w: super block version %d", ErrUnsupportedVersion, sb.Version)
	}
	if sb.Version > VersionConverted {
		return nil, fmt.Errorf("%w: super block version %d is past the highest known version", ErrCorruptData, sb.Version)
	}
	if sb.Version != VersionCurrent && sb.Version != VersionConverted {
		return nil, fmt.Errorf("%w: super block version %d", ErrUnsupportedVersion, sb.Version)
	}

	if sb.BlockSize, err = d.GetUint32(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if sb.BlockSize != BlockSize {
		return nil, fmt.Errorf("%w: block_size %d, want %d", ErrCorruptData, sb.BlockSize, BlockSize)
	}

	if sb.NumIndexes, err = d.GetUint16(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if sb.NumIndexes != 1 {
		return nil, fmt.Errorf("%w: num_indexes %d, want 1", ErrCorruptData, sb.NumIndexes)
	}

	if sb.MaxSaves, err = d.GetUint16(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if sb.MaxSaves < MinSaves || sb.MaxSaves > MaxSaves {
		return nil, fmt.Errorf("%w: max_saves %d out of [%d,%d]", ErrCorruptData, sb.MaxSaves, MinSaves, MaxSaves)
	}

	if err := d.Skip(4); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	if sb.OpenChapterBlocks, err = d.GetUint64(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if sb.PageMapBlocks, err = d.GetUint64(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	wantSize := superBlockBaseSize
	if sb.Version == VersionConverted {
		wantSize = superBlockConvertedSize

		if sb.VolumeOffset, err = d.GetUint64(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		if sb.StartOffset, err = d.GetUint64(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		if sb.VolumeOffset < sb.StartOffset {
			return nil, fmt.Errorf("%w: volume_offset %d < start_offset %d", ErrCorruptData, sb.VolumeOffset, sb.StartOffset)
		}
	}

	if err := d.CheckConsumed(wantSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	return sb, nil
}

// EncodeRegionHeader writes h in its on-disk byte layout.
func EncodeRegionHeader(h *RegionHeader) []byte {
	b := codec.NewEncoder(regionHeaderSize)
	b.PutUint64(RegionMagic)
	b.PutUint64(h.RegionBlocks)
	b.PutUint16(uint16(h.Type))
	b.PutUint16(h.Version)
	b.PutUint16(h.NumRegions)
	b.PutUint16(h.Payload)
	return b.Bytes()
}

// DecodeRegionHeader decodes data into a RegionHeader. A magic mismatch
// is reported as ErrNoIndex (spec.md §7: "device is blank or foreign"),
// distinct from every other corruption, since it is the one case a
// caller must distinguish to decide whether a device holds a layout at
// all.
func DecodeRegionHeader(data []byte) (*RegionHeader, error) {
	d := codec.NewDecoder(data)

	magic, err := d.GetUint64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if magic != RegionMagic {
		return nil, ErrNoIndex
	}

	h := &RegionHeader{}
	if h.RegionBlocks, err = d.GetUint64(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	t, err := d.GetUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	h.Type = RegionHeaderType(t)

	if h.Version, err = d.GetUint16(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if h.Version != 1 {
		return nil, fmt.Errorf("%w: region header version %d", ErrUnsupportedVersion, h.Version)
	}

	if h.NumRegions, err = d.GetUint16(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if h.Payload, err = d.GetUint16(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	if err := d.CheckConsumed(regionHeaderSize); err != nil {
		return nil, err
	}

	return h, nil
}

// EncodeLayoutRegion writes r in its on-disk byte layout.
func EncodeLayoutRegion(r *LayoutRegion) []byte {
	b := codec.NewEncoder(layoutRegionSize)
	b.PutUint64(uint64(r.StartBlock))
	b.PutUint64(uint64(r.NumBlocks))
	b.PutUint32(r.Checksum)
	b.PutUint16(uint16(r.Kind))
	b.PutUint16(r.Instance)
	return b.Bytes()
}

// DecodeLayoutRegion decodes data into a LayoutRegion.
func DecodeLayoutRegion(data []byte) (*LayoutRegion, error) {
	d := codec.NewDecoder(data)
	r := &LayoutRegion{}

	start, err := d.GetUint64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	r.StartBlock = int64(start)

	num, err := d.GetUint64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	r.NumBlocks = int64(num)

	if r.Checksum, err = d.GetUint32(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	kind, err := d.GetUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	r.Kind = RegionKind(kind)

	if r.Instance, err = d.GetUint16(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	if err := d.CheckConsumed(layoutRegionSize); err != nil {
		return nil, err
	}

	return r, nil
}

// EncodeIndexSaveData writes s in its on-disk byte layout.
func EncodeIndexSaveData(s *IndexSaveData) []byte {
	b := codec.NewEncoder(indexSaveDataSize)
	b.PutUint64(uint64(s.Timestamp))
	b.PutUint64(s.Nonce)
	b.PutUint32(s.Version)
	b.PutZeroes(4)
	return b.Bytes()
}

// DecodeIndexSaveData decodes data into an IndexSaveData.
func DecodeIndexSaveData(data []byte) (*IndexSaveData, error) {
	d := codec.NewDecoder(data)
	s := &IndexSaveData{}

	ts, err := d.GetUint64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	s.Timestamp = int64(ts)

	if s.Nonce, err = d.GetUint64(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if s.Version, err = d.GetUint32(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if s.Version > IndexSaveDataVersion {
		return nil, fmt.Errorf("%w: save version %d", ErrUnsupportedVersion, s.Version)
	}

	if err := d.Skip(4); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	if err := d.CheckConsumed(indexSaveDataSize); err != nil {
		return nil, err
	}

	return s, nil
}
