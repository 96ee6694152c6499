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

// Package config loads and validates the receiver's configuration from
// CLI flags and an optional TOML file, and watches the file for changes
// to the subset of knobs SPEC_FULL.md section 6 allows to hot-reload.
package config

import (
	"fmt"
	"time"
)

// Config is the full set of knobs the CLI surface exposes. Fields are
// grouped by whether Engine.Start treats them as fixed for the process's
// lifetime or hot-reloadable; see SPEC_FULL.md section 6.
type Config struct {
	// Hard core — fixed once Start is called.
	ShardCount        int
	ExpectedFragments int

	EtsEnabled   bool
	FileEnabled  bool
	FileDir      string
	FilePrefix   string
	FileExt      string

	RedisMirrorAddr string

	MetricsAddr string
	LogLevel    string

	// Hot-reloadable.
	TimestampSlop      uint64
	FrameTimeout       time.Duration
	RedisMirrorEnabled bool
}

// DefaultConfig returns the baseline configuration; flags and file values
// are layered on top of this.
func DefaultConfig() Config {
	return Config{
		ShardCount:        4,
		ExpectedFragments: 1,
		FileEnabled:       true,
		FileDir:           ".",
		FilePrefix:        "frame",
		FileExt:           "dat",
		MetricsAddr:       "",
		LogLevel:          "info",
		TimestampSlop:     1000,
		FrameTimeout:      2 * time.Second,
	}
}

// Validate checks the configuration for errors and for SPEC_FULL.md's
// structural invariants shared with the engine (shard count bounds,
// expected_fragments' 7-bit ceiling) so a bad config fails before any
// goroutine is spawned.
func (c *Config) Validate() error {
	if c.ShardCount < 1 || c.ShardCount > 32 {
		return fmt.Errorf("config: shard_count must be between 1 and 32, got %d", c.ShardCount)
	}
	if c.ExpectedFragments < 1 || c.ExpectedFragments > 127 {
		return fmt.Errorf("config: expected_fragments must be between 1 and 127, got %d", c.ExpectedFragments)
	}
	if c.FrameTimeout <= 0 {
		return fmt.Errorf("config: frame_timeout must be positive")
	}
	if !c.EtsEnabled && !c.FileEnabled {
		return fmt.Errorf("config: at least one of ets_enabled or file_enabled must be set")
	}
	if c.FileEnabled {
		if c.FileDir == "" {
			return fmt.Errorf("config: file_dir is required when file_enabled")
		}
		if c.FilePrefix == "" {
			return fmt.Errorf("config: file_prefix is required when file_enabled")
		}
	}
	if c.RedisMirrorEnabled && c.RedisMirrorAddr == "" {
		return fmt.Errorf("config: redis_mirror_addr is required when redis_mirror_enabled")
	}
	return nil
}

// configSetter applies file-sourced values while respecting flag
// precedence: a value is only written if the corresponding flag name is
// absent from changed, matching the CLI-overrides-file rule in
// SPEC_FULL.md section 6.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setUint64(flag string, value uint64, dst *uint64) {
	if value == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}
