// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sinks

import (
	"fmt"
	"os"
	"sync"

	"frameagg/internal/record"
)

// fileRolloverThreshold is the per-file byte budget; spec section 4.3
// fixes this at 2^31 bytes (2 GiB), checked after every write rather than
// pre-allocated.
const fileRolloverThreshold = 1 << 31

// FileSink appends built records to a sequence of numbered files under
// dir, writing a fresh FileHeader at the start of each and rolling over
// once the current file reaches fileRolloverThreshold. One FileSink is
// owned by exactly one shard; it is not shared.
type FileSink struct {
	mu     sync.Mutex
	dir    string
	prefix string
	ext    string
	shard  int

	fileIndex int
	f         *os.File
	written   int64
	threshold int64

	// onRollover, if set, is called once a write crosses the threshold and
	// the file has been closed. Wired by main to the rollover counter;
	// nil is fine for tests that don't care.
	onRollover func()
}

// SetRolloverHook registers a callback invoked after each rollover.
func (s *FileSink) SetRolloverHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRollover = fn
}

// NewFileSink returns a sink that writes files named
// "{dir}/{prefix}_thread{shard}_file{NNNN}.{ext}", per spec section 4.3's
// naming convention. The directory must already exist; FileSink never
// creates it (spec section 1: directory creation is a caller concern).
func NewFileSink(dir, prefix, ext string, shard int) *FileSink {
	return &FileSink{dir: dir, prefix: prefix, ext: ext, shard: shard, threshold: fileRolloverThreshold}
}

// newFileSinkWithThreshold is the same as NewFileSink but with a caller-set
// rollover threshold, so tests can exercise rollover without writing 2 GiB.
func newFileSinkWithThreshold(dir, prefix, ext string, shard int, threshold int64) *FileSink {
	return &FileSink{dir: dir, prefix: prefix, ext: ext, shard: shard, threshold: threshold}
}

func (s *FileSink) Name() string { return "file" }

// Write appends rec to the current file, opening the first file lazily
// and rolling over to the next numbered file once the threshold is
// crossed. The roll happens after the write that crosses the threshold,
// not before — a single oversized record is still written whole to the
// file it started filling.
func (s *FileSink) Write(rec []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		if err := s.openNext(); err != nil {
			return err
		}
	}

	n, err := s.f.Write(rec)
	if err != nil {
		return fmt.Errorf("sinks: file write: %w", err)
	}
	s.written += int64(n)

	if s.written >= s.threshold {
		if err := s.f.Close(); err != nil {
			return fmt.Errorf("sinks: closing rolled file: %w", err)
		}
		s.f = nil
		s.fileIndex++
		if s.onRollover != nil {
			s.onRollover()
		}
	}
	return nil
}

func (s *FileSink) openNext() error {
	path := fmt.Sprintf("%s/%s_thread%d_file%04d.%s", s.dir, s.prefix, s.shard, s.fileIndex, s.ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("sinks: opening %s: %w", path, err)
	}
	header := record.FileHeader()
	if _, err := f.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("sinks: writing file header to %s: %w", path, err)
	}
	s.f = f
	s.written = int64(len(header))
	return nil
}

// Close closes the currently open file, if any. Called by the shard
// worker during shutdown.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
