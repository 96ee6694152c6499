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

// Package validator parses opaque reassembled fragment buffers, verifies
// the framed binary protocol's magic sentinel, auto-corrects for
// endianness, and extracts the (timestamp, frame_number, source_id) triple
// the rest of the aggregation core dispatches and groups on.
package validator

import (
	"encoding/binary"
	"errors"
	"math/bits"
)

// MinFragmentBytes is the smallest buffer the validator will accept: 16
// words of 4 bytes each, covering every field it extracts.
const MinFragmentBytes = 64

// Magic is the framed-record sentinel in its native (big-endian) byte order.
const Magic uint32 = 0xC0DA0100

// MagicSwapped is Magic with its four bytes reversed; seeing it at the
// expected offset means the buffer was produced on a little-endian source
// and every word must be byte-swapped before use.
const MagicSwapped uint32 = 0x0001DAC0

// sourceHeaderTypeNibble is the expected high byte of the second header
// word ((word10 >> 8) & 0xFF); it identifies the buffer as a source header.
const sourceHeaderTypeNibble = 0x10

// ErrInvalid is returned for any buffer that fails validation: too short,
// bad magic, or a malformed source-header type field.
var ErrInvalid = errors.New("validator: invalid fragment")

// Result is the metadata the validator extracts from a well-formed fragment.
type Result struct {
	Timestamp   uint64
	FrameNumber uint32
	SourceID    uint8
	WrongEndian bool
}

// Validate parses buf per spec section 4.1 and returns the extracted triple,
// or ErrInvalid if the buffer fails any structural check. Validate never
// mutates buf or byte-swaps it in place — downstream code that needs the
// verbatim payload relies on that.
func Validate(buf []byte) (Result, error) {
	if len(buf) < MinFragmentBytes {
		return Result{}, ErrInvalid
	}

	magic := binary.BigEndian.Uint32(buf[28:32])
	var wrongEndian bool
	switch magic {
	case Magic:
		wrongEndian = false
	case MagicSwapped:
		wrongEndian = true
	default:
		return Result{}, ErrInvalid
	}

	read := func(word int) uint32 {
		v := binary.BigEndian.Uint32(buf[word*4 : word*4+4])
		if wrongEndian {
			v = bits.ReverseBytes32(v)
		}
		return v
	}

	w10 := read(9)
	if (w10>>8)&0xFF != sourceHeaderTypeNibble {
		return Result{}, ErrInvalid
	}

	return Result{
		SourceID:    uint8(w10 & 0xFF),
		FrameNumber: read(13),
		Timestamp:   uint64(read(15))<<32 | uint64(read(14)),
		WrongEndian: wrongEndian,
	}, nil
}
