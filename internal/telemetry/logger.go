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

// Package telemetry wires the aggregation engine's counters and structured
// logs to Prometheus and zerolog, per SPEC_FULL.md section 2 (row 8).
package telemetry

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a console-writer zerolog.Logger at the given level,
// grounded on the sibling CLI repo's ZerologAdapter setup — this repo's
// components take a zerolog.Logger directly rather than going through an
// adapter interface, since every call site already imports zerolog.
func NewLogger(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}
