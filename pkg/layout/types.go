// Package layout implements the in-memory and on-disk representation of
// a deduplication index's persistent geometry: the super block, the
// region tables that describe it, the single sub-index, and its ring of
// save slots. See spec.md §3-§4 for the data model this package is a
// direct translation of.
package layout

// BlockSize is the fixed on-disk unit every offset and length in this
// package is expressed in.
const BlockSize = 4096

// SuperBlockMagic is the fixed ASCII tag at the start of every super
// block.
const SuperBlockMagic = "*ALBIREO*SINGLE*FILE*LAYOUT*001*"

// RegionMagic is the fixed value ("AlbRgn01" read as 8 big-endian ASCII
// bytes, stored little-endian like every other multi-byte field) that
// prefixes every region table.
const RegionMagic uint64 = 0x416c6252676e3031

// Super-block versions.
const (
	VersionCurrent   uint32 = 3 // the normal, unconverted layout
	VersionConverted uint32 = 7 // offset-converted (spec.md §4.6)
)

// versionRejected reports whether v falls in the known-dead range
// (4, 5, 6) that must be rejected with ErrUnsupportedVersion rather than
// silently accepted or treated as corrupt.
func versionRejected(v uint32) bool {
	return v >= 4 && v <= 6
}

// RegionHeaderType distinguishes what kind of region table a
// RegionHeader prefixes.
type RegionHeaderType uint16

const (
	RegionHeaderSuper   RegionHeaderType = 1
	RegionHeaderSave    RegionHeaderType = 2
	RegionHeaderUnsaved RegionHeaderType = 4
)

// RegionKind identifies what a single LayoutRegion entry holds.
type RegionKind uint16

const (
	RegionHeaderKind      RegionKind = 1
	RegionConfig          RegionKind = 2
	RegionIndex           RegionKind = 3
	RegionVolume          RegionKind = 4
	RegionSave            RegionKind = 5
	RegionIndexPageMap    RegionKind = 6
	RegionVolumeIndex     RegionKind = 7
	RegionOpenChapter     RegionKind = 8
	RegionSeal            RegionKind = 9
	RegionScratch         RegionKind = 10
)

// SoleInstance is the sentinel instance number for regions that appear
// exactly once in a table.
const SoleInstance uint16 = 65535

// IndexSaveDataVersion is the only version.IndexSaveData.Version value
// this implementation accepts.
const IndexSaveDataVersion uint32 = 1

// MinSaves and MaxSaves bound the number of save slots a super block may
// declare.
const (
	MinSaves = 2
	MaxSaves = 5
)

// SuperBlock is the persisted, one-per-device record described in
// spec.md §3.
type SuperBlock struct {
	NonceInfo         [32]byte
	Nonce             uint64
	Version           uint32
	BlockSize         uint32
	NumIndexes        uint16
	MaxSaves          uint16
	OpenChapterBlocks uint64
	PageMapBlocks     uint64

	// VolumeOffset and StartOffset are only meaningful (and only
	// persisted) when Version == VersionConverted.
	VolumeOffset uint64
	StartOffset  uint64
}

// RegionHeader prefixes every region table.
type RegionHeader struct {
	RegionBlocks uint64
	Type         RegionHeaderType
	Version      uint16
	NumRegions   uint16
	Payload      uint16
}

// LayoutRegion is one entry in a region table.
type LayoutRegion struct {
	StartBlock int64
	NumBlocks  int64
	Checksum   uint32
	Kind       RegionKind
	Instance   uint16
}

// IndexSaveData is persisted once per save slot.
type IndexSaveData struct {
	Timestamp int64
	Nonce     uint64
	Version   uint32
}
