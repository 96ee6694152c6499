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
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"frameagg/internal/record"
)

// ShardConfig configures one shard worker. Engine.Start constructs one per
// shard from a shared template plus the shard's own sink handles.
type ShardConfig struct {
	ID                int
	TimestampSlop     uint64
	FrameTimeout      time.Duration
	ExpectedFragments int
	Sinks             []Sink
	Observer          Observer
	Logger            zerolog.Logger

	// Mirror and MirrorEnabled wire the optional Redis side-channel
	// (SPEC_FULL.md section 4.3). Mirror may be nil, in which case the
	// side-channel is permanently disabled regardless of MirrorEnabled.
	Mirror        MirrorHook
	MirrorEnabled bool
}

// ShardStats is a point-in-time snapshot of a shard's local counters,
// spec section 2's "accumulates local counters".
type ShardStats struct {
	FramesReleased  int64
	FramesDropped   int64
	TimestampErrors int64
	BuildErrors     int64
	QueueDepth      int
}

// ShardWorker owns one bounded in-flight map (timestamp -> AggregatingFrame)
// and the single goroutine that decides when a frame is complete or timed
// out, per spec section 4.4. Concurrent callers may call Insert from any
// number of receiver goroutines; only the worker's own goroutine runs the
// release loop.
type ShardWorker struct {
	cfg ShardConfig

	mu     sync.Mutex
	buffer map[uint64]*AggregatingFrame

	// notify is a capacity-1 non-blocking signal that wakes the release
	// loop immediately on insertion, so frames that reach expected_fragments
	// don't wait for the next timeout-driven scan. This is the idiomatic Go
	// substitute for the spec's condition variable: a buffered channel
	// plays the same "wake me, but don't block the inserter" role.
	notify chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	// timestampSlop, frameTimeout, and mirrorEnabled are the knobs
	// SPEC_FULL.md's config layer hot-reloads; everything else about a
	// shard is fixed for its lifetime. Reading and writing through
	// atomics means the release loop never needs to take the buffer lock
	// just to pick up a new value.
	timestampSlop atomic.Uint64
	frameTimeout  atomic.Int64 // nanoseconds
	mirrorEnabled atomic.Bool

	framesReleased  atomic.Int64
	framesDropped   atomic.Int64
	timestampErrors atomic.Int64
	buildErrors     atomic.Int64
}

// NewShardWorker constructs a shard worker in the stopped state; call Run
// in its own goroutine to start the release loop.
func NewShardWorker(cfg ShardConfig) *ShardWorker {
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	w := &ShardWorker{
		cfg:    cfg,
		buffer: make(map[uint64]*AggregatingFrame),
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	w.timestampSlop.Store(cfg.TimestampSlop)
	w.frameTimeout.Store(int64(cfg.FrameTimeout))
	w.mirrorEnabled.Store(cfg.MirrorEnabled)
	return w
}

// SetTimestampSlop updates the slop threshold used by future releases.
// Safe to call concurrently with Run.
func (w *ShardWorker) SetTimestampSlop(slop uint64) {
	w.timestampSlop.Store(slop)
}

// SetFrameTimeout updates the completeness timeout used by future release
// scans. The release loop's scan cadence is the fixed shardScanInterval
// and does not change with the timeout, but every completeness check
// picks up the new value immediately.
func (w *ShardWorker) SetFrameTimeout(d time.Duration) {
	w.frameTimeout.Store(int64(d))
}

// SetMirrorEnabled toggles the Redis mirror side-channel. A nil
// cfg.Mirror keeps the side-channel disabled regardless of this value.
func (w *ShardWorker) SetMirrorEnabled(enabled bool) {
	w.mirrorEnabled.Store(enabled)
}

// Insert appends fragment to its aggregate, creating one if this is the
// first fragment seen for its timestamp. Safe for concurrent use by any
// number of callers.
func (w *ShardWorker) Insert(f Fragment) {
	w.mu.Lock()
	af, ok := w.buffer[f.Timestamp]
	if !ok {
		af = &AggregatingFrame{
			Timestamp:     f.Timestamp,
			FrameNumber:   f.FrameNumber,
			ArrivalTime:   time.Now(),
			FirstSourceID: f.SourceID,
		}
		w.buffer[f.Timestamp] = af
	}
	af.Fragments = append(af.Fragments, f)
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// shardScanInterval is the release loop's timeout-driven scan cadence.
// It is independent of the configured frame timeout so that hot-reloading
// FrameTimeout to a smaller value takes effect within one interval rather
// than waiting on a ticker sized for the old value.
const shardScanInterval = 50 * time.Millisecond

// Run executes the release loop until Stop is called. It must run in its
// own goroutine; Engine.Start does this for every shard.
func (w *ShardWorker) Run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(shardScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.notify:
			w.releaseCompleted()
		case <-ticker.C:
			w.releaseCompleted()
		case <-w.stopCh:
			// Entries still in the buffer are dropped, not built, per
			// spec section 4.4 step 4.
			return
		}
	}
}

// Stop signals the release loop to exit immediately. It does not wait for
// the goroutine to exit; callers join via Done().
func (w *ShardWorker) Stop() {
	close(w.stopCh)
}

// Done returns a channel closed once Run has returned.
func (w *ShardWorker) Done() <-chan struct{} {
	return w.doneCh
}

// CloseSinks releases every sink this shard owns — the file handle or ETS
// attachment acquired for it at Start. Callers must only invoke this once
// Run has returned (see Done); spec section 3 makes the shard worker the
// owner of these handles and section 4.5 makes closing them on a clean
// shutdown the engine's responsibility.
func (w *ShardWorker) CloseSinks() {
	for _, sink := range w.cfg.Sinks {
		if err := sink.Close(); err != nil {
			w.cfg.Logger.Warn().
				Int("shard", w.cfg.ID).
				Str("sink", sink.Name()).
				Err(err).
				Msg("closing sink during shutdown failed")
		}
	}
}

func (w *ShardWorker) releaseCompleted() {
	now := time.Now()

	timeout := time.Duration(w.frameTimeout.Load())
	expected := w.cfg.ExpectedFragments

	w.mu.Lock()
	var ready []*AggregatingFrame
	var timedOut []bool
	for ts, af := range w.buffer {
		if af.complete(now, expected, timeout) {
			ready = append(ready, af)
			timedOut = append(timedOut, af.timedOutIncomplete(now, expected, timeout))
			delete(w.buffer, ts)
		}
	}
	depth := len(w.buffer)
	w.mu.Unlock()

	w.cfg.Observer.QueueDepth(w.cfg.ID, depth)

	for i, af := range ready {
		w.build(af, timedOut[i])
	}
}

func (w *ShardWorker) build(af *AggregatingFrame, timedOut bool) {
	if timedOut {
		w.cfg.Logger.Debug().
			Int("shard", w.cfg.ID).
			Uint64("timestamp", af.Timestamp).
			Int("fragment_count", len(af.Fragments)).
			Uint8("first_source_id", af.FirstSourceID).
			Msg("frame released incomplete by timeout")
	}
	outcome := af.Release(w.timestampSlop.Load())
	if outcome.ExcludedCount > 0 {
		w.buildErrors.Add(int64(outcome.ExcludedCount))
		for i := 0; i < outcome.ExcludedCount; i++ {
			w.cfg.Observer.BuildError("validator")
		}
	}
	if outcome.Dropped {
		w.framesDropped.Add(1)
		w.cfg.Observer.FrameDropped()
		w.cfg.Logger.Warn().
			Int("shard", w.cfg.ID).
			Uint64("timestamp", af.Timestamp).
			Msg("aggregate dropped: every fragment failed the secondary magic recheck")
		return
	}
	if outcome.TimestampError {
		w.timestampErrors.Add(1)
		w.cfg.Observer.TimestampError()
	}

	rec := record.Build(outcome.Aggregate)
	w.publish(rec)
	w.framesReleased.Add(1)

	if w.cfg.Mirror != nil && w.mirrorEnabled.Load() {
		if err := w.cfg.Mirror.Update(w.cfg.ID, outcome.Aggregate.FrameNumber, outcome.Aggregate.AvgTimestamp); err != nil {
			w.cfg.Logger.Warn().
				Int("shard", w.cfg.ID).
				Err(err).
				Msg("redis mirror update failed; core publish already succeeded")
		}
	}
}

// publish is split out of build so tests can exercise record construction
// without going through the sink fan-out.
func (w *ShardWorker) publish(rec []byte) {
	for _, sink := range w.cfg.Sinks {
		if err := sink.Write(rec); err != nil {
			w.buildErrors.Add(1)
			w.cfg.Observer.BuildError(sink.Name())
			w.cfg.Logger.Warn().
				Int("shard", w.cfg.ID).
				Str("sink", sink.Name()).
				Err(err).
				Msg("sink write failed; record dropped for this sink only")
			continue
		}
		w.cfg.Observer.RecordPublished(sink.Name(), len(rec))
	}
}

// Stats returns a snapshot of this shard's local counters.
func (w *ShardWorker) Stats() ShardStats {
	w.mu.Lock()
	depth := len(w.buffer)
	w.mu.Unlock()

	return ShardStats{
		FramesReleased:  w.framesReleased.Load(),
		FramesDropped:   w.framesDropped.Load(),
		TimestampErrors: w.timestampErrors.Load(),
		BuildErrors:     w.buildErrors.Load(),
		QueueDepth:      depth,
	}
}
