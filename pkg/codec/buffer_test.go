package codec

import (
	"errors"
	"testing"
)

func TestRoundTripPrimitives(t *testing.T) {
	enc := NewEncoder(32)
	enc.PutUint16(0x1234)
	enc.PutUint32(0xdeadbeef)
	enc.PutUint64(0x0123456789abcdef)
	enc.PutBytes([]byte("hi"))
	enc.PutZeroes(4)

	dec := NewDecoder(enc.Bytes())

	u16, err := dec.GetUint16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("GetUint16 = %x, %v", u16, err)
	}

	u32, err := dec.GetUint32()
	if err != nil || u32 != 0xdeadbeef {
		t.Fatalf("GetUint32 = %x, %v", u32, err)
	}

	u64, err := dec.GetUint64()
	if err != nil || u64 != 0x0123456789abcdef {
		t.Fatalf("GetUint64 = %x, %v", u64, err)
	}

	raw, err := dec.GetBytes(2)
	if err != nil || string(raw) != "hi" {
		t.Fatalf("GetBytes = %q, %v", raw, err)
	}

	if err := dec.Skip(4); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	if err := dec.CheckConsumed(enc.Len()); err != nil {
		t.Fatalf("CheckConsumed: %v", err)
	}
}

func TestCheckConsumedMismatchIsCorrupt(t *testing.T) {
	enc := NewEncoder(8)
	enc.PutUint32(1)
	enc.PutUint32(2)

	dec := NewDecoder(enc.Bytes())
	if _, err := dec.GetUint32(); err != nil {
		t.Fatal(err)
	}

	if err := dec.CheckConsumed(8); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestShortReadIsCorrupt(t *testing.T) {
	dec := NewDecoder([]byte{0x01, 0x02})
	if _, err := dec.GetUint32(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
