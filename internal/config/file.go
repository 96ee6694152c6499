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

package config

import (
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config but uses strings for durations, the TOML-
// friendly shape, and pointers for the booleans so "absent" and "false"
// are distinguishable when layering over flag-set defaults.
type fileConfig struct {
	ShardCount        int    `toml:"shard_count"`
	ExpectedFragments int    `toml:"expected_fragments"`
	EtsEnabled        *bool  `toml:"ets_enabled"`
	FileEnabled       *bool  `toml:"file_enabled"`
	FileDir           string `toml:"file_dir"`
	FilePrefix        string `toml:"file_prefix"`
	FileExt           string `toml:"file_ext"`
	RedisMirrorAddr   string `toml:"redis_mirror_addr"`
	MetricsAddr       string `toml:"metrics_addr"`
	LogLevel          string `toml:"log_level"`

	TimestampSlop      uint64 `toml:"timestamp_slop"`
	FrameTimeout       string `toml:"frame_timeout"`
	RedisMirrorEnabled *bool  `toml:"redis_mirror_enabled"`
}

// LoadFile reads and parses a TOML config file at path.
func LoadFile(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// Apply layers fc onto cfg, skipping any field whose flag name is present
// in changed — CLI flags always win over the file.
func Apply(cfg *Config, fc fileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setInt("shard-count", fc.ShardCount, &cfg.ShardCount)
	s.setInt("expected-fragments", fc.ExpectedFragments, &cfg.ExpectedFragments)
	s.setBool("ets-enabled", fc.EtsEnabled, &cfg.EtsEnabled)
	s.setBool("file-enabled", fc.FileEnabled, &cfg.FileEnabled)
	s.setString("file-dir", fc.FileDir, &cfg.FileDir)
	s.setString("file-prefix", fc.FilePrefix, &cfg.FilePrefix)
	s.setString("file-ext", fc.FileExt, &cfg.FileExt)
	s.setString("redis-mirror-addr", fc.RedisMirrorAddr, &cfg.RedisMirrorAddr)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setUint64("timestamp-slop", fc.TimestampSlop, &cfg.TimestampSlop)
	if err := s.setDuration("frame-timeout", fc.FrameTimeout, &cfg.FrameTimeout); err != nil {
		return err
	}
	s.setBool("redis-mirror-enabled", fc.RedisMirrorEnabled, &cfg.RedisMirrorEnabled)

	return nil
}

// FileExists reports whether a file exists at p.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
