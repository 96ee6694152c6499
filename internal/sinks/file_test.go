package sinks

import (
	"os"
	"path/filepath"
	"testing"

	"frameagg/internal/record"
)

func TestFileSinkWritesHeaderThenRecords(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, "rec", "dat", 0)

	rec := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "rec_thread0_file0000.dat")
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := append(append([]byte(nil), record.FileHeader()...), rec...)
	if string(got) != string(want) {
		t.Fatalf("file contents mismatch: got %v, want %v", got, want)
	}
}

func TestFileSinkRollsOverAtThreshold(t *testing.T) {
	dir := t.TempDir()
	s := newFileSinkWithThreshold(dir, "rec", "dat", 2, int64(record.FileHeaderBytes+4))

	if err := s.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	if err := s.Write([]byte{5, 6, 7, 8}); err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	s.Close()

	first := filepath.Join(dir, "rec_thread2_file0000.dat")
	second := filepath.Join(dir, "rec_thread2_file0001.dat")

	if _, err := os.Stat(first); err != nil {
		t.Fatalf("expected first file to exist: %v", err)
	}
	if _, err := os.Stat(second); err != nil {
		t.Fatalf("expected second file to exist after rollover: %v", err)
	}

	secondContents, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("ReadFile second: %v", err)
	}
	if len(secondContents) != record.FileHeaderBytes+4 {
		t.Fatalf("second file size = %d, want %d", len(secondContents), record.FileHeaderBytes+4)
	}
}

func TestFileSinkRolloverHookFires(t *testing.T) {
	dir := t.TempDir()
	s := newFileSinkWithThreshold(dir, "rec", "dat", 0, int64(record.FileHeaderBytes+4))

	calls := 0
	s.SetRolloverHook(func() { calls++ })

	if err := s.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	if calls != 1 {
		t.Fatalf("rollover hook calls = %d, want 1", calls)
	}
	if err := s.Write([]byte{5, 6, 7, 8}); err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	if calls != 2 {
		t.Fatalf("rollover hook calls after second write = %d, want 2 (second write fills file0001 to the threshold too)", calls)
	}
	s.Close()
}

func TestFileSinkNameIsFile(t *testing.T) {
	s := NewFileSink(t.TempDir(), "rec", "dat", 0)
	if s.Name() != "file" {
		t.Fatalf("Name() = %q, want %q", s.Name(), "file")
	}
}
