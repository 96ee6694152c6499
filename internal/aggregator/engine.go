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
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoSinksEnabled is returned by Start when neither output sink is
// configured; spec section 6 requires at least one.
var ErrNoSinksEnabled = errors.New("aggregator: at least one sink must be enabled")

// ErrBadShardCount is returned by Start for a shard count outside [1, 32].
var ErrBadShardCount = errors.New("aggregator: shard count must be between 1 and 32")

// ErrTooManyExpectedFragments is returned by Start when expected_fragments
// exceeds the 7-bit stream_status field's range. Spec section 9 leaves
// behavior above 127 sources unspecified; this implementation rejects the
// configuration outright rather than silently truncating.
var ErrTooManyExpectedFragments = errors.New("aggregator: expected_fragments must not exceed 127")

// Config is the engine-level configuration: the knobs spec section 6 lists
// as the CLI surface's core-affecting subset.
type Config struct {
	ShardCount        int
	TimestampSlop     uint64
	FrameTimeout      time.Duration
	ExpectedFragments int

	// SinksPerShard builds the sink set for shard i. Called once per shard
	// during Start, after the output directory (if any) has been created
	// by the caller — Engine does not create directories itself (spec
	// section 1's scope note: "directory creation" is a caller concern).
	SinksPerShard func(shard int) ([]Sink, error)

	// Mirror and MirrorEnabled wire the optional Redis side-channel into
	// every shard; see ShardConfig's fields of the same name.
	Mirror        MirrorHook
	MirrorEnabled bool

	Observer Observer
	Logger   zerolog.Logger
}

// shutdownWakeCount and shutdownWakeSpacing size the grace wait Stop makes
// before the join-budget wait begins: five 50ms intervals. Stop sends no
// notification during this wait; closing each shard's stop channel is the
// only wake-up a release loop receives.
const (
	shutdownWakeCount   = 5
	shutdownWakeSpacing = 50 * time.Millisecond
	shutdownJoinBudget  = 1 * time.Second
)

// Engine owns the fixed pool of shard workers and routes validated
// fragments to them by timestamp, per spec section 4.5.
type Engine struct {
	cfg    Config
	shards []*ShardWorker
}

// NewEngine constructs an Engine. Call Start before Dispatch.
func NewEngine(cfg Config) *Engine {
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	return &Engine{cfg: cfg}
}

// Start validates configuration, builds each shard's sinks via
// cfg.SinksPerShard, and spawns one goroutine per shard running its
// release loop. It fails fast (no goroutines spawned) on any
// configuration error.
func (e *Engine) Start() error {
	if e.cfg.ShardCount < 1 || e.cfg.ShardCount > 32 {
		return ErrBadShardCount
	}
	if e.cfg.ExpectedFragments > maxFragmentsPerFrame {
		return ErrTooManyExpectedFragments
	}
	if e.cfg.SinksPerShard == nil {
		return ErrNoSinksEnabled
	}

	shards := make([]*ShardWorker, e.cfg.ShardCount)
	for i := 0; i < e.cfg.ShardCount; i++ {
		sinks, err := e.cfg.SinksPerShard(i)
		if err != nil {
			return fmt.Errorf("aggregator: building sinks for shard %d: %w", i, err)
		}
		if len(sinks) == 0 {
			return ErrNoSinksEnabled
		}
		shards[i] = NewShardWorker(ShardConfig{
			ID:                i,
			TimestampSlop:     e.cfg.TimestampSlop,
			FrameTimeout:      e.cfg.FrameTimeout,
			ExpectedFragments: e.cfg.ExpectedFragments,
			Sinks:             sinks,
			Mirror:            e.cfg.Mirror,
			MirrorEnabled:     e.cfg.MirrorEnabled,
			Observer:          e.cfg.Observer,
			Logger:            e.cfg.Logger,
		})
	}
	e.shards = shards

	for _, s := range e.shards {
		go s.Run()
	}
	return nil
}

// Dispatch routes a validated fragment to its shard by timestamp modulo
// the shard count. Spec section 8's property 3 and scenario S5 pin this
// down as the literal "shard = timestamp mod N", not a hashed
// redistribution — with N shards, two timestamps congruent mod N always
// land in the same shard, which is what makes completeness reasoning
// local per spec section 5.
func (e *Engine) Dispatch(f Fragment) {
	shard := int(f.Timestamp % uint64(len(e.shards)))
	e.shards[shard].Insert(f)
}

// Stop signals every shard to stop, sleeps through the fixed grace wait,
// then waits up to the join budget for the shards to exit before giving up
// and moving on. It never blocks longer than
// shutdownWakeCount*shutdownWakeSpacing + shutdownJoinBudget, regardless
// of a stuck sink (spec section 5). Once Stop returns, no further writes
// to any sink are attempted by this engine.
func (e *Engine) Stop() {
	for _, s := range e.shards {
		s.Stop()
	}

	// The grace wait lets a release loop that is mid-scan finish and
	// observe the closed stopCh; the loop checks stopCh on every select
	// iteration, so this is a generous margin rather than a strict
	// requirement.
	for i := 0; i < shutdownWakeCount; i++ {
		time.Sleep(shutdownWakeSpacing)
	}

	deadline := time.NewTimer(shutdownJoinBudget)
	defer deadline.Stop()

	expired := false
	for _, s := range e.shards {
		if !expired {
			select {
			case <-s.Done():
				s.CloseSinks()
				continue
			case <-deadline.C:
				expired = true
			}
		}
		// Once the budget is spent, the remaining shards are checked
		// without waiting: the overall shutdown must stay bounded even if
		// more than one shard is stuck. Stragglers are reclaimed by the OS
		// at process exit.
		select {
		case <-s.Done():
			s.CloseSinks()
		default:
			e.cfg.Logger.Warn().
				Int("shard", s.cfg.ID).
				Msg("shard did not join within shutdown budget; detaching")
			e.cfg.Observer.ShutdownBudgetExceeded(s.cfg.ID)
		}
	}
}

// SetFrameTimeout hot-reloads the completeness timeout across every
// shard. Safe to call while the engine is running. Shard count and sink
// selection are not hot-reloadable — see SPEC_FULL.md section 6.
func (e *Engine) SetFrameTimeout(d time.Duration) {
	for _, s := range e.shards {
		s.SetFrameTimeout(d)
	}
}

// SetTimestampSlop hot-reloads the slop threshold across every shard.
func (e *Engine) SetTimestampSlop(slop uint64) {
	for _, s := range e.shards {
		s.SetTimestampSlop(slop)
	}
}

// SetMirrorEnabled hot-reloads the Redis mirror side-channel's enable
// flag across every shard. Has no effect on a shard whose Mirror hook is
// nil.
func (e *Engine) SetMirrorEnabled(enabled bool) {
	for _, s := range e.shards {
		s.SetMirrorEnabled(enabled)
	}
}

// Stats aggregates every shard's local counters.
func (e *Engine) Stats() []ShardStats {
	out := make([]ShardStats, len(e.shards))
	for i, s := range e.shards {
		out[i] = s.Stats()
	}
	return out
}
