package validator

import (
	"encoding/binary"
	"math/bits"
	"testing"
)

// wellFormedFragment builds a 64-byte buffer with the given triple encoded
// at the offsets the validator reads, plus 32 bytes of arbitrary payload.
func wellFormedFragment(ts uint64, frameNumber uint32, sourceID uint8) []byte {
	buf := make([]byte, MinFragmentBytes)
	binary.BigEndian.PutUint32(buf[28:32], Magic)
	binary.BigEndian.PutUint32(buf[36:40], uint32(sourceHeaderTypeNibble)<<8|uint32(sourceID))
	binary.BigEndian.PutUint32(buf[52:56], frameNumber)
	binary.BigEndian.PutUint32(buf[56:60], uint32(ts))
	binary.BigEndian.PutUint32(buf[60:64], uint32(ts>>32))
	return buf
}

func byteSwapWords(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	for i := 0; i+4 <= len(out); i += 4 {
		v := binary.BigEndian.Uint32(out[i : i+4])
		binary.BigEndian.PutUint32(out[i:i+4], bits.ReverseBytes32(v))
	}
	return out
}

func TestValidateRoundTrip(t *testing.T) {
	buf := wellFormedFragment(1_000_000, 42, 7)
	res, err := Validate(buf)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Timestamp != 1_000_000 || res.FrameNumber != 42 || res.SourceID != 7 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.WrongEndian {
		t.Fatalf("expected WrongEndian=false for native-order buffer")
	}
}

func TestValidateSwappedRoundTrip(t *testing.T) {
	buf := byteSwapWords(wellFormedFragment(2_000_000, 99, 3))
	res, err := Validate(buf)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Timestamp != 2_000_000 || res.FrameNumber != 99 || res.SourceID != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.WrongEndian {
		t.Fatalf("expected WrongEndian=true for byte-swapped buffer")
	}
}

func TestValidateRejectsShortBuffer(t *testing.T) {
	buf := wellFormedFragment(1, 1, 1)[:63]
	if _, err := Validate(buf); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	buf := wellFormedFragment(1, 1, 1)
	binary.BigEndian.PutUint32(buf[28:32], 0xDEADBEEF)
	if _, err := Validate(buf); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateRejectsBadSourceHeaderType(t *testing.T) {
	buf := wellFormedFragment(1, 1, 1)
	binary.BigEndian.PutUint32(buf[36:40], 0x00_00_20_01) // wrong type nibble 0x20, not 0x10
	if _, err := Validate(buf); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
