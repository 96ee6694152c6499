package sinks

import (
	"path/filepath"
	"testing"

	"frameagg/internal/record"
)

func TestReadAllRecordsRoundTripsBuiltRecords(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, "rec", "dat", 0)

	rec1 := record.Build(record.Aggregate{
		FrameNumber:  1,
		AvgTimestamp: 100,
		Entries:      []record.SourceEntry{{SourceID: 1, Payload: []byte{0x01, 0x02, 0x03, 0x04}}},
	})
	rec2 := record.Build(record.Aggregate{
		FrameNumber:  2,
		AvgTimestamp: 200,
		ErrorFlag:    true,
		Entries: []record.SourceEntry{
			{SourceID: 1, Payload: []byte{0x0A}},
			{SourceID: 2, Payload: []byte{0x0B, 0x0C}},
		},
	})

	if err := s.Write(rec1); err != nil {
		t.Fatalf("Write rec1: %v", err)
	}
	if err := s.Write(rec2); err != nil {
		t.Fatalf("Write rec2: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "rec_thread0_file0000.dat")
	got, err := ReadAllRecords(path)
	if err != nil {
		t.Fatalf("ReadAllRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if string(got[0]) != string(rec1) {
		t.Fatalf("record 0 mismatch")
	}
	if string(got[1]) != string(rec2) {
		t.Fatalf("record 1 mismatch")
	}
}

func TestReadAllRecordsSingleRecord(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, "rec", "dat", 0)
	if err := s.Write(record.Build(record.Aggregate{FrameNumber: 1, Entries: []record.SourceEntry{{SourceID: 1, Payload: []byte{1}}}})); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "rec_thread0_file0000.dat")
	got, err := ReadAllRecords(path)
	if err != nil {
		t.Fatalf("ReadAllRecords: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
}
