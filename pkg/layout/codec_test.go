package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSuperBlockRoundTrip(t *testing.T) {
	cases := []SuperBlock{
		{
			Nonce:             1234,
			Version:           VersionCurrent,
			BlockSize:         BlockSize,
			NumIndexes:        1,
			MaxSaves:          2,
			OpenChapterBlocks: 4,
			PageMapBlocks:     1,
		},
		{
			Nonce:             5678,
			Version:           VersionConverted,
			BlockSize:         BlockSize,
			NumIndexes:        1,
			MaxSaves:          3,
			OpenChapterBlocks: 4,
			PageMapBlocks:     1,
			VolumeOffset:      40,
			StartOffset:       8,
		},
	}

	for _, want := range cases {
		b, err := EncodeSuperBlock(&want)
		if err != nil {
			t.Fatalf("EncodeSuperBlock: %v", err)
		}

		got, err := DecodeSuperBlock(b)
		if err != nil {
			t.Fatalf("DecodeSuperBlock: %v", err)
		}

		if diff := cmp.Diff(want, *got); diff != "" {
			t.Errorf("super block round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestRegionHeaderRoundTrip(t *testing.T) {
	want := RegionHeader{
		RegionBlocks: 83,
		Type:         RegionHeaderSuper,
		Version:      1,
		NumRegions:   4,
		Payload:      96,
	}

	b := EncodeRegionHeader(&want)
	got, err := DecodeRegionHeader(b)
	if err != nil {
		t.Fatalf("DecodeRegionHeader: %v", err)
	}

	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("region header round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLayoutRegionRoundTrip(t *testing.T) {
	want := LayoutRegion{
		StartBlock: 17,
		NumBlocks:  9,
		Checksum:   0xdeadbeef,
		Kind:       RegionVolumeIndex,
		Instance:   3,
	}

	b := EncodeLayoutRegion(&want)
	got, err := DecodeLayoutRegion(b)
	if err != nil {
		t.Fatalf("DecodeLayoutRegion: %v", err)
	}

	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("layout region round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexSaveDataRoundTrip(t *testing.T) {
	want := IndexSaveData{
		Timestamp: 1700000000,
		Nonce:     0x1122334455667788,
		Version:   IndexSaveDataVersion,
	}

	b := EncodeIndexSaveData(&want)
	got, err := DecodeIndexSaveData(b)
	if err != nil {
		t.Fatalf("DecodeIndexSaveData: %v", err)
	}

	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("index save data round trip mismatch (-want +got):\n%s", diff)
	}
}
