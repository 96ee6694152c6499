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

// Package sinks implements the two independent output publishers spec
// section 4.3 describes — the ETS sink and the rolling-file sink — plus a
// supplemental Redis mirror side-channel (see SPEC_FULL.md's domain
// stack). Each shard worker owns its own handles into these.
package sinks

import "context"

// EtsSlot is one acquired event slot: a fixed-capacity buffer the sink
// copies a record into before releasing it back to the system. Spec
// section 4.3/6 fixes the exact sequence: acquire, check capacity, copy,
// set length, release (or dump on failure).
type EtsSlot interface {
	Capacity() int
	CopyIn(data []byte) error
	SetLength(n int) error
	Release() error
	// Dump returns the slot unused, for the failure path (oversize record
	// or a write error after acquisition).
	Dump() error
}

// EtsAttachment is a shard's exclusive cursor into the shared ETS session.
// Spec section 5: the session is shared read-only after start(); each
// shard owns one attachment.
type EtsAttachment interface {
	AcquireSlot(ctx context.Context, minCapacity int) (EtsSlot, error)
	Close() error
}

// EtsSession is the shared, process-wide handle. main creates it once and
// its SinksPerShard callback, which Engine.Start runs, attaches to it once
// per shard when the ETS sink is enabled. The real client library is out
// of scope per spec section 1 — this interface specifies only the
// sequence of operations the core performs against it.
type EtsSession interface {
	Attach() (EtsAttachment, error)
	Close() error
}

// LoggingEtsSession is a dependency-free stand-in for a real ETS client,
// in the same spirit as persistence/clients.go's LoggingRedisEvaler and
// LoggingKafkaProducer in the teacher repo: it lets the binary run and be
// tested without a real ETS server.
type LoggingEtsSession struct {
	SlotCapacity int
}

func (s *LoggingEtsSession) Attach() (EtsAttachment, error) {
	cap := s.SlotCapacity
	if cap <= 0 {
		cap = 1 << 20 // 1 MiB default, generous for a single aggregated frame
	}
	return &loggingEtsAttachment{capacity: cap}, nil
}

func (s *LoggingEtsSession) Close() error { return nil }

type loggingEtsAttachment struct {
	capacity int
}

func (a *loggingEtsAttachment) AcquireSlot(ctx context.Context, minCapacity int) (EtsSlot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return &loggingEtsSlot{capacity: a.capacity}, nil
}

func (a *loggingEtsAttachment) Close() error { return nil }

type loggingEtsSlot struct {
	capacity int
	buf      []byte
	length   int
}

func (s *loggingEtsSlot) Capacity() int { return s.capacity }

func (s *loggingEtsSlot) CopyIn(data []byte) error {
	s.buf = append([]byte(nil), data...)
	return nil
}

func (s *loggingEtsSlot) SetLength(n int) error {
	s.length = n
	return nil
}

func (s *loggingEtsSlot) Release() error { return nil }

func (s *loggingEtsSlot) Dump() error { return nil }
