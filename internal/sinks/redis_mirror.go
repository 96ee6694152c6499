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

	redis "github.com/redis/go-redis/v9"
)

// RedisEvaler abstracts the minimal surface RedisMirror needs. A real
// client wraps github.com/redis/go-redis/v9's Cmdable.Eval.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// redisMirrorScript idempotently advances shard:<n>'s last-published
// marker. SETNX on the commit marker means a crash-and-replay of the same
// (shard, frame_number) pair is a no-op rather than a double update.
const redisMirrorScript = `
local markerKey = KEYS[1]
local stateKey = KEYS[2]
local frameNumber = ARGV[1]
local timestamp = ARGV[2]
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('HSET', stateKey, 'last_frame_number', frameNumber, 'last_timestamp', timestamp)
  redis.call('EXPIRE', markerKey, 86400)
  return 1
else
  return 0
end
`

func redisMirrorMarkerKey(shard int, frameNumber uint32) string {
	return fmt.Sprintf("frameagg:mirror:marker:%d:%d", shard, frameNumber)
}

func redisMirrorStateKey(shard int) string {
	return fmt.Sprintf("frameagg:mirror:state:%d", shard)
}

// RedisMirror is the supplemental, optional side-channel described in
// SPEC_FULL.md section 4.3: it never sits on the release path and a
// failed Update never causes a frame to be dropped or re-tried — it is
// pure observability of what the core already published elsewhere.
type RedisMirror struct {
	client RedisEvaler
}

// NewRedisMirror wraps an already-connected evaler.
func NewRedisMirror(client RedisEvaler) *RedisMirror {
	return &RedisMirror{client: client}
}

// UpdateContext records that shard most recently published frameNumber at
// timestamp. It is safe to call from the shard worker's own goroutine
// since it never blocks longer than ctx allows.
func (m *RedisMirror) UpdateContext(ctx context.Context, shard int, frameNumber uint32, timestamp uint64) error {
	keys := []string{redisMirrorMarkerKey(shard, frameNumber), redisMirrorStateKey(shard)}
	args := []interface{}{frameNumber, timestamp}
	if _, err := m.client.Eval(ctx, redisMirrorScript, keys, args...); err != nil {
		return fmt.Errorf("sinks: redis mirror eval: %w", err)
	}
	return nil
}

// LoggingRedisEvaler is a dependency-free stand-in that lets the mirror
// sink be exercised in tests without a live server. main does not use it:
// with no Redis address configured, main wires no mirror at all.
type LoggingRedisEvaler struct {
	Calls []RedisEvalCall
}

// RedisEvalCall records one Eval invocation for test assertions.
type RedisEvalCall struct {
	Script string
	Keys   []string
	Args   []interface{}
}

func (e *LoggingRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	e.Calls = append(e.Calls, RedisEvalCall{Script: script, Keys: keys, Args: args})
	return int64(1), nil
}

// GoRedisEvaler wraps a real go-redis client.
type GoRedisEvaler struct {
	c *redis.Client
}

// NewGoRedisEvaler dials addr. Use with NewRedisMirror.
func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// redisMirrorTimeout bounds one Update call so a wedged Redis never
// stalls the shard worker's publish path for long.
const redisMirrorTimeout = 2 * time.Second

// Update implements aggregator.MirrorHook by bounding the call with
// redisMirrorTimeout, so the shard worker's build path never needs to
// know about contexts at all.
func (m *RedisMirror) Update(shard int, frameNumber uint32, timestamp uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisMirrorTimeout)
	defer cancel()
	return m.UpdateContext(ctx, shard, frameNumber, timestamp)
}
