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

// Package aggregator implements the hard core of the frame aggregation
// engine: timestamp-hashed sharding, per-shard buffering, completeness and
// timeout-driven release, and dispatch to the record builder and output
// sinks. See spec sections 4.4 and 4.5.
package aggregator

import (
	"encoding/binary"
	"math/bits"

	"frameagg/internal/validator"
)

// sourceHeaderBytes is the size of the source header every fragment buffer
// carries and that must be stripped before the remainder (the source
// payload) is incorporated into an output record.
const sourceHeaderBytes = 32

// Fragment is one reassembled source payload together with the metadata
// the validator extracted from it. Header retains the raw 32-byte source
// header (pre-strip) so the shard worker can run the secondary magic
// recheck at release time without re-parsing the full buffer.
type Fragment struct {
	Timestamp   uint64
	FrameNumber uint32
	SourceID    uint8
	WrongEndian bool
	Header      [sourceHeaderBytes]byte
	Payload     []byte
}

// NewFragment validates buf and, on success, copies the source header and
// the stripped source payload into a Fragment. The caller's buf is not
// retained: the driver is free to release it immediately after this call
// returns, per spec section 3's fragment lifecycle.
func NewFragment(buf []byte) (Fragment, error) {
	res, err := validator.Validate(buf)
	if err != nil {
		return Fragment{}, err
	}
	f := Fragment{
		Timestamp:   res.Timestamp,
		FrameNumber: res.FrameNumber,
		SourceID:    res.SourceID,
		WrongEndian: res.WrongEndian,
	}
	copy(f.Header[:], buf[:sourceHeaderBytes])
	f.Payload = append([]byte(nil), buf[sourceHeaderBytes:]...)
	return f, nil
}

// passesSecondaryMagicRecheck re-verifies word 7 of the fragment's raw
// header against the magic sentinel, in either byte order, per spec
// section 4.4's per-frame error accounting.
func (f Fragment) passesSecondaryMagicRecheck() bool {
	word7 := binary.BigEndian.Uint32(f.Header[28:32])
	if word7 == magicWord {
		return true
	}
	return bits.ReverseBytes32(word7) == magicWord
}

const magicWord uint32 = 0xC0DA0100
