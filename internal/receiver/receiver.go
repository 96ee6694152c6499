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

// Package receiver implements the thin component spec section 2 calls the
// "receive driver": it pulls reassembled fragment buffers from the
// external UDP reassembly library, validates each one, and forwards
// what passes to the aggregation engine. The reassembler itself is out
// of scope (spec section 1) — this package only specifies the contract
// it consumes.
package receiver

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"frameagg/internal/aggregator"
	"frameagg/internal/validator"
)

// Reassembler is the external collaborator's output contract: it hands
// back one complete, opaque per-fragment buffer at a time, tagged with
// the transport-level (sequence, source tag) pair the driver ignores in
// favor of the validator's own extraction (spec section 6). Next blocks
// until a buffer is available, ctx is canceled, or the reassembler is
// exhausted (io.EOF-shaped contract: a nil buffer with a nil error never
// happens).
type Reassembler interface {
	Next(ctx context.Context) (buf []byte, seq uint64, sourceTag uint8, err error)
}

// Dispatcher is the subset of *aggregator.Engine the driver needs.
type Dispatcher interface {
	Dispatch(f aggregator.Fragment)
}

// ErrStopped is returned by Run when ctx is canceled; it is not logged
// as an error by callers that treat it as a normal shutdown signal.
var ErrStopped = errors.New("receiver: stopped")

// Driver is the thin loop described in spec section 2's data-flow line:
// reassembler -> validator -> engine.dispatch. It holds no buffering of
// its own; every accepted fragment is handed to the engine before the
// next call to Reassembler.Next.
type Driver struct {
	reassembler Reassembler
	engine      Dispatcher
	observer    aggregator.Observer
	logger      zerolog.Logger
}

// NewDriver constructs a Driver. observer may be aggregator.NoopObserver{}
// if counters are not needed.
func NewDriver(r Reassembler, engine Dispatcher, observer aggregator.Observer, logger zerolog.Logger) *Driver {
	if observer == nil {
		observer = aggregator.NoopObserver{}
	}
	return &Driver{reassembler: r, engine: engine, observer: observer, logger: logger}
}

// Run pulls fragments until ctx is canceled or the reassembler reports a
// fatal error. Each buffer is validated; a failure increments
// validation_errors and the buffer is dropped without reaching the
// engine, per spec section 4.1's error path. A diagnostic wrong_endian
// hit is counted but never drops the fragment.
//
// Per spec section 3's fragment lifecycle, the reassembler's buffer is
// never retained past this call: NewFragment copies out the header and
// payload it needs, so the buffer is eligible for reuse/release by the
// reassembler the moment Run loops back to Next.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return ErrStopped
		}

		buf, seq, sourceTag, err := d.reassembler.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ErrStopped
			}
			return err
		}

		frag, verr := aggregator.NewFragment(buf)
		if verr != nil {
			d.observer.ValidationError()
			d.logger.Debug().
				Uint64("seq", seq).
				Uint8("source_tag", sourceTag).
				Err(verr).
				Msg("dropping fragment: failed validation")
			continue
		}
		if frag.WrongEndian {
			d.observer.WrongEndian()
		}

		d.engine.Dispatch(frag)
	}
}

// ValidateOnly exposes the validator directly for callers (tests, or a
// future transport) that want the extracted triple without going
// through the Fragment/engine path.
func ValidateOnly(buf []byte) (validator.Result, error) {
	return validator.Validate(buf)
}

// NullReassembler is a dependency-free stand-in for the real E2SAR
// reassembler client, in the same spirit as sinks.LoggingEtsSession: it
// lets the binary wire a complete receive loop and be tested without the
// real UDP reassembly library the spec places out of scope (section 1).
// Next simply blocks until ctx is canceled, then returns ctx.Err().
type NullReassembler struct{}

func (NullReassembler) Next(ctx context.Context) ([]byte, uint64, uint8, error) {
	<-ctx.Done()
	return nil, 0, 0, ctx.Err()
}
