package layout

import "fmt"

// RegionTable is a RegionHeader followed by its LayoutRegion entries, as
// stored at the start of a super-block area or a save-slot area.
type RegionTable struct {
	Header  RegionHeader
	Regions []LayoutRegion
}

// Encode serializes the table: header first, then every region in
// order.
func (t *RegionTable) Encode() []byte {
	h := t.Header
	h.NumRegions = uint16(len(t.Regions))

	out := EncodeRegionHeader(&h)
	for i := range t.Regions {
		out = append(out, EncodeLayoutRegion(&t.Regions[i])...)
	}
	return out
}

// DecodeRegionTable decodes a RegionHeader followed by its declared
// number of LayoutRegion entries from data.
func DecodeRegionTable(data []byte) (*RegionTable, error) {
	if len(data) < regionHeaderSize {
		return nil, fmt.Errorf("%w: region table shorter than its header", ErrCorruptData)
	}

	h, err := DecodeRegionHeader(data[:regionHeaderSize])
	if err != nil {
		return nil, err
	}

	t := &RegionTable{Header: *h}
	offset := regionHeaderSize

	for i := 0; i < int(h.NumRegions); i++ {
		if offset+layoutRegionSize > len(data) {
			return nil, fmt.Errorf("%w: region table truncated (region %d of %d)", ErrCorruptData, i, h.NumRegions)
		}
		r, err := DecodeLayoutRegion(data[offset : offset+layoutRegionSize])
		if err != nil {
			return nil, err
		}
		t.Regions = append(t.Regions, *r)
		offset += layoutRegionSize
	}

	return t, nil
}

// RegionTableEncodedSize returns the number of bytes Encode will produce for n
// regions.
func RegionTableEncodedSize(n int) int {
	return regionHeaderSize + n*layoutRegionSize
}
