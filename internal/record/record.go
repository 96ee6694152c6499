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

// Package record builds the hierarchical aggregated time-frame binary
// record described in spec section 4.2: a top-level record wrapping a
// single "aggregated bank", itself wrapping a "sub-info bank" that carries
// the time-slice and per-source aggregation-info segments. All multi-byte
// fields are 32-bit words in big-endian order.
package record

import (
	"encoding/binary"
)

// Magic is the framed-record sentinel written at word 7 of every record
// and at word 7 of the once-per-file header.
const Magic uint32 = 0xC0DA0100

// Tag constants from spec section 4.2. TagTopLevel, TagSubInfo and the two
// segment tags are carried here for documentation and for downstream
// parsers that want to assert on them; Build does not write them. Its
// packed header words use the literal tags 0xFF60 (aggregated bank) and
// 0xFF31 (sub-info bank), and segment tag 0x01 for both the time-slice and
// aggregation-info segments. TypeBank and TypeSegment are the only ones
// Build encodes.
const (
	TagTopLevel   = 0xFFD0
	TagSubInfo    = 0xFFD1
	SegTimeSlice  = 0x01
	SegAggInfo    = 0x02
	TypeBank      = 0x10
	TypeSegment   = 0x20
	headerLength  = 14
	recordVersion = 6

	// tssDataType and aisDataType are the data-type codes in the top byte
	// of the time-slice and aggregation-info segment headers (words 18
	// and 22). They are distinct from SegTimeSlice/SegAggInfo, which tag
	// the segment itself in the middle byte — the two segments happen to
	// share tag 0x01 there, per spec section 4.2.
	tssDataType = 0x32
	aisDataType = 0x42
)

// bitInfo encodes version 6, last-block, "this is a record header", and
// the big-endian marker, per spec word 5.
const bitInfo = recordVersion | (1 << 9) | (1 << 14) | (1 << 31)

// fileHeaderBitInfo mirrors bitInfo for the once-per-file header, minus the
// "record header" bit (bit 14): the file header precedes a sequence of
// records, it is not itself one. The spec fixes word 7 and the version-6
// marker in word 5 but leaves the rest of the file header's bits
// unspecified.
const fileHeaderBitInfo = recordVersion | (1 << 9) | (1 << 31)

// SourceEntry is one fragment's contribution to an aggregate: its source id
// and the stripped (header-removed) payload bytes, written verbatim.
type SourceEntry struct {
	SourceID uint8
	Payload  []byte
}

// Aggregate is everything the builder needs to emit one record. Callers
// (the shard worker) are responsible for computing ErrorFlag (timestamp
// slop) and AvgTimestamp (floor of the mean) and for excluding any
// fragment that fails the secondary magic recheck before constructing this.
type Aggregate struct {
	FrameNumber   uint32
	AvgTimestamp  uint64
	ErrorFlag     bool
	Entries       []SourceEntry
}

// streamStatus packs the error flag into bit 7 and the fragment count into
// the low 7 bits, per spec section 4.2.
func streamStatus(errorFlag bool, k int) uint8 {
	s := uint8(k & 0x7F)
	if errorFlag {
		s |= 0x80
	}
	return s
}

func putWord(buf []byte, idx int, v uint32) {
	binary.BigEndian.PutUint32(buf[idx*4:idx*4+4], v)
}

// Build encodes agg as a complete record, including the three length
// fields (record_length, agg_bank_len, sib_len) patched after the payload
// is laid out. len(agg.Entries) must fit in 7 bits (0..127); callers must
// enforce that before calling Build (see spec section 3's fragment_count
// invariant).
func Build(agg Aggregate) []byte {
	k := len(agg.Entries)
	status := streamStatus(agg.ErrorFlag, k)

	payloadWords := 0
	paddedPayloads := make([][]byte, k)
	for i, e := range agg.Entries {
		padded := padTo4(e.Payload)
		paddedPayloads[i] = padded
		payloadWords += len(padded) / 4
	}

	// Header words 0..22 (23 words), then K entry words, then payload words.
	const headerWords = 23
	totalWords := headerWords + k + payloadWords
	buf := make([]byte, totalWords*4)

	recordLength := uint32(totalWords - 1)
	putWord(buf, 0, recordLength)
	putWord(buf, 1, 0)              // record_number
	putWord(buf, 2, headerLength)   // header_length
	putWord(buf, 3, 1)              // event_index_count
	putWord(buf, 4, 0)              // index_array_len
	putWord(buf, 5, bitInfo)        // bit_info
	putWord(buf, 6, 0)              // user_header_len
	putWord(buf, 7, Magic)          // magic
	putWord(buf, 8, recordLength-headerLength) // uncompressed_len
	putWord(buf, 9, 0)              // compression
	putWord(buf, 10, 0)
	putWord(buf, 11, 0)
	putWord(buf, 12, 0)
	putWord(buf, 13, 0)

	aggBankLen := uint32(totalWords - 15)
	putWord(buf, 14, aggBankLen)
	putWord(buf, 15, (0xFF60<<16)|(TypeBank<<8)|uint32(status))

	sibLen := uint32(totalWords - 17)
	putWord(buf, 16, sibLen)
	putWord(buf, 17, (0xFF31<<16)|(TypeSegment<<8)|uint32(status))

	putWord(buf, 18, (tssDataType<<24)|(0x01<<16)|3)
	putWord(buf, 19, agg.FrameNumber)
	putWord(buf, 20, uint32(agg.AvgTimestamp&0xFFFFFFFF))
	putWord(buf, 21, uint32(agg.AvgTimestamp>>32))

	putWord(buf, 22, (aisDataType<<24)|(0x01<<16)|uint32(k))

	off := headerWords
	for _, e := range agg.Entries {
		// Per-fragment stream_status is always 0 in this design; only the
		// source id is meaningful here.
		putWord(buf, off, uint32(e.SourceID)<<16)
		off++
	}
	for _, padded := range paddedPayloads {
		copy(buf[off*4:], padded)
		off += len(padded) / 4
	}

	return buf
}

// padTo4 returns payload followed by enough zero bytes to reach a 4-byte
// boundary. It never mutates payload.
func padTo4(payload []byte) []byte {
	rem := len(payload) % 4
	if rem == 0 {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out
	}
	out := make([]byte, len(payload)+(4-rem))
	copy(out, payload)
	return out
}

// FileHeader returns the once-per-file 14-word header written before the
// first record of every rolling file.
func FileHeader() []byte {
	buf := make([]byte, headerLength*4)
	putWord(buf, 0, headerLength-1)
	putWord(buf, 1, 0)
	putWord(buf, 2, headerLength)
	putWord(buf, 3, 0)
	putWord(buf, 4, 0)
	putWord(buf, 5, fileHeaderBitInfo)
	putWord(buf, 6, 0)
	putWord(buf, 7, Magic)
	putWord(buf, 8, 0)
	putWord(buf, 9, 0)
	putWord(buf, 10, 0)
	putWord(buf, 11, 0)
	putWord(buf, 12, 0)
	putWord(buf, 13, 0)
	return buf
}

// FileHeaderBytes is the fixed size in bytes of FileHeader's output.
const FileHeaderBytes = headerLength * 4
