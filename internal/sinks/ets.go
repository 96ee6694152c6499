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
	"context"
	"fmt"
	"time"
)

// etsAcquireTimeout bounds how long a single Write waits for a slot, per
// spec section 4.3/6's 2-second acquisition bound.
const etsAcquireTimeout = 2 * time.Second

// EtsSink publishes built records into a shared-memory ETS ring via the
// sequence spec section 4.3 fixes: acquire a slot sized for the record,
// verify capacity, copy the bytes in, set the effective length, release.
// Any failure between acquisition and release dumps the slot rather than
// retrying — a half-written slot must never be released as if it were
// valid. A failed Release is returned as an error without a dump.
type EtsSink struct {
	attachment EtsAttachment
}

// NewEtsSink wraps an already-open attachment. Engine.Start (via
// SinksPerShard) is expected to call session.Attach() once per shard and
// hand the result here.
func NewEtsSink(attachment EtsAttachment) *EtsSink {
	return &EtsSink{attachment: attachment}
}

func (s *EtsSink) Name() string { return "ets" }

func (s *EtsSink) Write(rec []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), etsAcquireTimeout)
	defer cancel()

	slot, err := s.attachment.AcquireSlot(ctx, len(rec))
	if err != nil {
		return fmt.Errorf("sinks: ets acquire slot: %w", err)
	}

	if len(rec) > slot.Capacity() {
		_ = slot.Dump()
		return fmt.Errorf("sinks: ets slot capacity %d too small for %d-byte record", slot.Capacity(), len(rec))
	}
	if err := slot.CopyIn(rec); err != nil {
		_ = slot.Dump()
		return fmt.Errorf("sinks: ets copy in: %w", err)
	}
	if err := slot.SetLength(len(rec)); err != nil {
		_ = slot.Dump()
		return fmt.Errorf("sinks: ets set length: %w", err)
	}
	if err := slot.Release(); err != nil {
		return fmt.Errorf("sinks: ets release: %w", err)
	}
	return nil
}

// Close releases the shard's attachment. Called by the shard worker
// during shutdown.
func (s *EtsSink) Close() error {
	return s.attachment.Close()
}
