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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"frameagg/internal/aggregator"
	"frameagg/internal/config"
	"frameagg/internal/receiver"
	"frameagg/internal/sinks"
	"frameagg/internal/telemetry"
)

var exampleUsage = `
  frameagg --shard-count 8 --expected-fragments 40 --file-dir /data/frames
  frameagg --config /etc/frameagg/frameagg.toml --metrics-addr :9090
`

func main() {
	cfg := config.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:     "frameagg",
		Short:   "Aggregate per-source DAQ fragments into time-frame records",
		Example: exampleUsage,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &cfg, cfgPath)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to a TOML config file")
	root.Flags().IntVar(&cfg.ShardCount, "shard-count", cfg.ShardCount, "number of shard workers (1-32)")
	root.Flags().IntVar(&cfg.ExpectedFragments, "expected-fragments", cfg.ExpectedFragments, "number of sources expected per frame (1-127)")
	root.Flags().BoolVar(&cfg.EtsEnabled, "ets-enabled", cfg.EtsEnabled, "publish records to the ETS ring")
	root.Flags().BoolVar(&cfg.FileEnabled, "file-enabled", cfg.FileEnabled, "publish records to rolling files")
	root.Flags().StringVar(&cfg.FileDir, "file-dir", cfg.FileDir, "directory for rolling output files (must already exist)")
	root.Flags().StringVar(&cfg.FilePrefix, "file-prefix", cfg.FilePrefix, "filename prefix for rolling output files")
	root.Flags().StringVar(&cfg.FileExt, "file-ext", cfg.FileExt, "filename extension for rolling output files")
	root.Flags().StringVar(&cfg.RedisMirrorAddr, "redis-mirror-addr", cfg.RedisMirrorAddr, "address of the optional Redis mirror side-channel")
	root.Flags().BoolVar(&cfg.RedisMirrorEnabled, "redis-mirror-enabled", cfg.RedisMirrorEnabled, "enable the Redis mirror side-channel")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve /metrics on (empty disables it)")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "zerolog level: debug, info, warn, error")
	root.Flags().Uint64Var(&cfg.TimestampSlop, "timestamp-slop", cfg.TimestampSlop, "max allowed spread between a frame's fragment timestamps")
	root.Flags().DurationVar(&cfg.FrameTimeout, "frame-timeout", cfg.FrameTimeout, "max time an incomplete frame waits before forced release")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "frameagg:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cfg *config.Config, cfgPath string) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgPath != "" && config.FileExists(cfgPath) {
		fc, err := config.LoadFile(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.Apply(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := telemetry.NewLogger(cfg.LogLevel)
	logger.Info().Interface("config", cfg).Msg("starting frameagg")

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	var mirror *sinks.RedisMirror
	if cfg.RedisMirrorAddr != "" {
		mirror = sinks.NewRedisMirror(sinks.NewGoRedisEvaler(cfg.RedisMirrorAddr))
	}

	etsSession := &sinks.LoggingEtsSession{}

	sinksPerShard := func(shard int) ([]aggregator.Sink, error) {
		var out []aggregator.Sink
		if cfg.EtsEnabled {
			attachment, err := etsSession.Attach()
			if err != nil {
				return nil, fmt.Errorf("ets attach shard %d: %w", shard, err)
			}
			out = append(out, sinks.NewEtsSink(attachment))
		}
		if cfg.FileEnabled {
			dir := filepath.Clean(cfg.FileDir)
			fileSink := sinks.NewFileSink(dir, cfg.FilePrefix, cfg.FileExt, shard)
			fileSink.SetRolloverHook(metrics.FileRollover)
			out = append(out, fileSink)
		}
		return out, nil
	}

	engineCfg := aggregator.Config{
		ShardCount:        cfg.ShardCount,
		TimestampSlop:     cfg.TimestampSlop,
		FrameTimeout:      cfg.FrameTimeout,
		ExpectedFragments: cfg.ExpectedFragments,
		SinksPerShard:     sinksPerShard,
		MirrorEnabled:     cfg.RedisMirrorEnabled,
		Observer:          metrics,
		Logger:            logger,
	}
	if mirror != nil {
		engineCfg.Mirror = mirror
	}

	engine := aggregator.NewEngine(engineCfg)
	if err := engine.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.ServeMetrics(ctx, cfg.MetricsAddr, registry); err != nil {
				logger.Warn().Err(err).Msg("metrics server stopped with error")
			}
		}()
	}

	if cfgPath != "" {
		watcher := config.NewWatcher(cfgPath, engine, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn().Err(err).Msg("config watcher stopped with error")
			}
		}()
	}

	// The real E2SAR reassembler client is out of scope (spec section 1);
	// NullReassembler holds the receive driver's place in the process
	// lifecycle until a transport is wired in.
	driver := receiver.NewDriver(receiver.NullReassembler{}, engine, metrics, logger)
	go func() {
		if err := driver.Run(ctx); err != nil && err != receiver.ErrStopped {
			logger.Warn().Err(err).Msg("receive driver stopped with error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("received signal, shutting down")

	engine.Stop()
	logger.Info().Interface("stats", engine.Stats()).Msg("shut down")
	return nil
}
