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
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"frameagg/internal/record"
)

// ReadAllRecords reads every record from a file written by FileSink,
// skipping the once-per-file header, and returns each record's raw bytes
// unparsed. Intended for demo/replay use only; it is never on the write
// path and no core operation depends on it.
func ReadAllRecords(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(int64(record.FileHeaderBytes), io.SeekStart); err != nil {
		return nil, fmt.Errorf("sinks: seeking past file header in %s: %w", path, err)
	}

	var out [][]byte
	for {
		var lenWord [4]byte
		if _, err := io.ReadFull(f, lenWord[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("sinks: reading record length in %s: %w", path, err)
		}
		recordLength := binary.BigEndian.Uint32(lenWord[:])
		totalBytes := (int64(recordLength) + 1) * 4

		rec := make([]byte, totalBytes)
		copy(rec, lenWord[:])
		if _, err := io.ReadFull(f, rec[4:]); err != nil {
			return nil, fmt.Errorf("sinks: reading record body in %s: %w", path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
