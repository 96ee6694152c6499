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

// Sink is the capability every output side-effect boundary implements:
// ETS slot publishing and rolling-file append both reduce to "write one
// built record, report whether it landed." Spec section 9 calls this out
// as not needing a deeper hierarchy — a shard worker holds zero, one, or
// two of these. Close releases whatever handle or attachment the sink
// owns; spec section 3 makes this the shard worker's responsibility
// during shutdown, and section 4.5 makes it the engine's responsibility
// to have every shard reach that point before Stop returns.
type Sink interface {
	Name() string
	Write(rec []byte) error
	Close() error
}

// Observer receives the per-fragment and per-frame counters spec section 7
// defines, so the shard worker and engine stay decoupled from whichever
// telemetry backend (Prometheus, logs, or both) is wired in by main.
type Observer interface {
	ValidationError()
	WrongEndian()
	TimestampError()
	BuildError(sink string)
	RecordPublished(sink string, bytes int)
	FrameDropped()
	ShutdownBudgetExceeded(shard int)
	QueueDepth(shard int, depth int)
}

// MirrorHook is the optional supplemental side-channel a shard worker
// notifies after successfully releasing an aggregate. It exists so the
// hard core can call into the Redis mirror sink (SPEC_FULL.md section
// 4.3) without importing a concrete sink implementation; main wires a
// real implementation in, or leaves it nil to disable the side-channel
// entirely.
type MirrorHook interface {
	Update(shard int, frameNumber uint32, timestamp uint64) error
}

// NoopObserver discards every event. Useful as a default and in tests that
// don't care about telemetry.
type NoopObserver struct{}

func (NoopObserver) ValidationError()            {}
func (NoopObserver) WrongEndian()                {}
func (NoopObserver) TimestampError()             {}
func (NoopObserver) BuildError(string)           {}
func (NoopObserver) RecordPublished(string, int) {}
func (NoopObserver) FrameDropped()               {}
func (NoopObserver) ShutdownBudgetExceeded(int)  {}
func (NoopObserver) QueueDepth(int, int)         {}
