package record

import (
	"encoding/binary"
	"testing"
)

func word(buf []byte, idx int) uint32 {
	return binary.BigEndian.Uint32(buf[idx*4 : idx*4+4])
}

func TestBuildWellFormedness(t *testing.T) {
	agg := Aggregate{
		FrameNumber:  7,
		AvgTimestamp: 1000,
		ErrorFlag:    false,
		Entries: []SourceEntry{
			{SourceID: 3, Payload: make([]byte, 128)},
		},
	}
	buf := Build(agg)

	totalWords := len(buf) / 4
	if word(buf, 0) != uint32(totalWords-1) {
		t.Fatalf("word0 = %d, want %d", word(buf, 0), totalWords-1)
	}
	if word(buf, 7) != Magic {
		t.Fatalf("word7 = %#x, want magic", word(buf, 7))
	}
	if word(buf, 14) != uint32(totalWords-15) {
		t.Fatalf("agg_bank_len = %d, want %d", word(buf, 14), totalWords-15)
	}
	if word(buf, 16) != uint32(totalWords-17) {
		t.Fatalf("sib_len = %d, want %d", word(buf, 16), totalWords-17)
	}
	// Single fragment entry at word 23: high 16 bits equal source id.
	entry := word(buf, 23)
	if uint8(entry>>16) != 3 {
		t.Fatalf("entry source id = %d, want 3", entry>>16)
	}
	// Per-fragment stream_status is always 0; the 0x01 fragment count
	// lives in the bank headers' stream_status, not in the entry.
	status := uint8(entry)
	if status != 0x00 {
		t.Fatalf("entry stream_status = %#x, want 0x00", status)
	}
}

func TestBuildTimeSliceAndAggInfoHeaderDataTypes(t *testing.T) {
	agg := Aggregate{
		FrameNumber:  1,
		AvgTimestamp: 1,
		Entries: []SourceEntry{
			{SourceID: 1, Payload: []byte{1, 2, 3, 4}},
			{SourceID: 2, Payload: []byte{5, 6, 7, 8}},
		},
	}
	buf := Build(agg)

	tss := word(buf, 18)
	if top := tss >> 24; top != 0x32 {
		t.Fatalf("tss_header top byte = %#x, want 0x32", top)
	}
	if tag := (tss >> 16) & 0xFF; tag != 0x01 {
		t.Fatalf("tss_header tag byte = %#x, want 0x01", tag)
	}
	if count := tss & 0xFFFF; count != 3 {
		t.Fatalf("tss_header count = %d, want 3", count)
	}

	ais := word(buf, 22)
	if top := ais >> 24; top != 0x42 {
		t.Fatalf("ais_header top byte = %#x, want 0x42", top)
	}
	if tag := (ais >> 16) & 0xFF; tag != 0x01 {
		t.Fatalf("ais_header tag byte = %#x, want 0x01", tag)
	}
	if k := ais & 0xFFFF; k != 2 {
		t.Fatalf("ais_header K = %d, want 2", k)
	}
}

func TestBuildErrorFlagSetsStatusBit(t *testing.T) {
	agg := Aggregate{
		FrameNumber: 1,
		ErrorFlag:   true,
		Entries: []SourceEntry{
			{SourceID: 1, Payload: []byte{1, 2, 3, 4}},
			{SourceID: 2, Payload: []byte{5, 6, 7, 8}},
			{SourceID: 3, Payload: []byte{9, 10, 11, 12}},
			{SourceID: 4, Payload: []byte{13, 14, 15, 16}},
		},
	}
	buf := Build(agg)
	aggBankHeader := word(buf, 15)
	status := uint8(aggBankHeader)
	if status != 0x84 {
		t.Fatalf("stream_status = %#x, want 0x84", status)
	}
}

func TestBuildPayloadPreservedVerbatim(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC} // 3 bytes, needs 1 byte of padding
	agg := Aggregate{
		FrameNumber: 1,
		Entries: []SourceEntry{
			{SourceID: 9, Payload: payload},
		},
	}
	buf := Build(agg)
	// payload starts right after the single entry word, at word 24.
	payloadBytes := buf[24*4 : 24*4+4]
	if payloadBytes[0] != 0xAA || payloadBytes[1] != 0xBB || payloadBytes[2] != 0xCC || payloadBytes[3] != 0x00 {
		t.Fatalf("payload bytes = %v, want [AA BB CC 00]", payloadBytes)
	}
}

func TestFileHeaderMagicAndVersion(t *testing.T) {
	h := FileHeader()
	if len(h) != FileHeaderBytes {
		t.Fatalf("len(FileHeader()) = %d, want %d", len(h), FileHeaderBytes)
	}
	if word(h, 7) != Magic {
		t.Fatalf("file header word7 = %#x, want magic", word(h, 7))
	}
	if word(h, 5)&0x3F != recordVersion {
		t.Fatalf("file header version bits = %d, want %d", word(h, 5)&0x3F, recordVersion)
	}
}
