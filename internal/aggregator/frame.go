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

package aggregator

import (
	"time"

	"frameagg/internal/record"
)

// maxFragmentsPerFrame is the largest fragment_count that fits in the 7-bit
// stream_status field (spec section 3). Configurations asking for more are
// rejected at start-up (spec section 9, "open question").
const maxFragmentsPerFrame = 127

// AggregatingFrame is a pending group of fragments sharing one timestamp.
// It is owned exclusively by the shard worker holding it; see spec
// section 3.
type AggregatingFrame struct {
	Timestamp   uint64
	FrameNumber uint32
	Fragments   []Fragment
	ArrivalTime time.Time

	// FirstSourceID is the source id of the first fragment inserted for
	// this timestamp. Diagnostic only: not part of the output record,
	// logged when a frame is released incomplete by timeout so an
	// operator can tell which source arrived first and which others
	// never showed up. SPEC_FULL.md section 3; grounded on
	// original_source/e2sar_reassembler_framebuilder.cpp logging the
	// first-seen source id on an incomplete timeout release.
	FirstSourceID uint8
}

// ReleaseOutcome is what releasing an AggregatingFrame produced.
type ReleaseOutcome struct {
	Aggregate      record.Aggregate
	TimestampError bool // true if the timestamp_slop invariant was violated
	ExcludedCount  int  // fragments dropped by the secondary magic recheck
	Dropped        bool // true if every fragment was excluded; Aggregate is zero
}

// Release computes the completed aggregate per spec section 4.2/4.4:
// fragments failing the secondary magic recheck are excluded; if that
// empties the set, the whole aggregate is dropped. Otherwise avg_timestamp
// is the floor of the mean of the surviving fragments' timestamps, and the
// error flag (and timestamp_errors counter, via TimestampError) is set iff
// max(ts)-min(ts) exceeds slop.
func (af *AggregatingFrame) Release(slop uint64) ReleaseOutcome {
	kept := make([]Fragment, 0, len(af.Fragments))
	excluded := 0
	for _, f := range af.Fragments {
		if f.passesSecondaryMagicRecheck() {
			kept = append(kept, f)
		} else {
			excluded++
		}
	}
	if len(kept) == 0 {
		return ReleaseOutcome{ExcludedCount: excluded, Dropped: true}
	}

	var sum, minTS, maxTS uint64
	minTS = kept[0].Timestamp
	maxTS = kept[0].Timestamp
	entries := make([]record.SourceEntry, len(kept))
	for i, f := range kept {
		sum += f.Timestamp
		if f.Timestamp < minTS {
			minTS = f.Timestamp
		}
		if f.Timestamp > maxTS {
			maxTS = f.Timestamp
		}
		entries[i] = record.SourceEntry{SourceID: f.SourceID, Payload: f.Payload}
	}

	timestampError := maxTS-minTS > slop
	avg := sum / uint64(len(kept))

	return ReleaseOutcome{
		Aggregate: record.Aggregate{
			FrameNumber:  af.FrameNumber,
			AvgTimestamp: avg,
			ErrorFlag:    timestampError,
			Entries:      entries,
		},
		TimestampError: timestampError,
		ExcludedCount:  excluded,
	}
}

// complete reports whether af should be released now: either it has
// reached the expected fragment count, or it has aged past the frame
// timeout, per spec section 4.4's release loop.
func (af *AggregatingFrame) complete(now time.Time, expected int, timeout time.Duration) bool {
	return len(af.Fragments) >= expected || now.Sub(af.ArrivalTime) > timeout
}

// timedOutIncomplete reports whether af is being released because it aged
// past the timeout without ever reaching the expected fragment count —
// the case SPEC_FULL.md section 3's FirstSourceID diagnostic exists for.
func (af *AggregatingFrame) timedOutIncomplete(now time.Time, expected int, timeout time.Duration) bool {
	return len(af.Fragments) < expected && now.Sub(af.ArrivalTime) > timeout
}
