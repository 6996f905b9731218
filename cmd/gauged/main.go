// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// gauged is the Gauge collector daemon: it samples hardware telemetry
// once per interval and serves snapshots, history, and device
// inventory over a Unix socket.
//
// Usage:
//
//	gauged [flags]
//
// Configuration comes from the YAML file named by GAUGE_CONFIG (or
// --config); the socket and hardware database paths can additionally
// be overridden by GAUGE_SOCKET / GAUGE_HWDB and their flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gaugeworks/gauge/collector"
	"github.com/gaugeworks/gauge/driver"
	"github.com/gaugeworks/gauge/feed"
	"github.com/gaugeworks/gauge/gpu"
	"github.com/gaugeworks/gauge/gpu/amdgpu"
	"github.com/gaugeworks/gauge/gpu/intel"
	"github.com/gaugeworks/gauge/gpu/nvidia"
	"github.com/gaugeworks/gauge/history"
	"github.com/gaugeworks/gauge/lib/clock"
	"github.com/gaugeworks/gauge/lib/config"
	"github.com/gaugeworks/gauge/lib/hwdb"
	"github.com/gaugeworks/gauge/lib/hwinfo"
	"github.com/gaugeworks/gauge/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("gauged", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML config file (overrides GAUGE_CONFIG)")
	socketPath := flags.String("socket", "", "feed socket path (overrides config and GAUGE_SOCKET)")
	hwdbPath := flags.String("hwdb", "", "hardware database path (overrides config and GAUGE_HWDB)")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Printf("gauged %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, *socketPath, *hwdbPath)

	logger := newLogger(cfg)
	logger.Info("gauged starting", "version", version.Short())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hardware database: a missing file is not an error, devices
	// fall back to numeric vendor:model names.
	db, err := hwdb.Load(cfg.HardwareDB.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading hardware database: %w", err)
		}
		logger.Warn("hardware database not found, using numeric device names",
			"path", cfg.HardwareDB.Path)
		db = hwdb.Empty()
	} else {
		logger.Info("hardware database loaded",
			"path", cfg.HardwareDB.Path,
			"entries", db.Len(),
			"digest", db.Digest())
	}

	// An unusable socket path is the one fatal startup class.
	if err := cfg.EnsureSocketDir(); err != nil {
		return fmt.Errorf("preparing socket directory: %w", err)
	}

	clk := clock.Real()
	drivers, cleanup, err := buildDrivers(ctx, cfg, clk, db, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store := history.NewStore(cfg.History.Capacity)
	server := feed.NewServer(feed.Options{
		SocketPath: cfg.Feed.SocketPath,
		Store:      store,
		Machine:    hwinfo.Probe(db),
		QueueDepth: cfg.Feed.SubscriberQueueDepth,
		Compress:   cfg.Feed.Compress,
		Logger:     logger,
	})

	coll := collector.New(collector.Options{
		Interval:  cfg.SamplingInterval(),
		Deadline:  cfg.DriverDeadline(),
		Drivers:   drivers,
		Processes: driver.NewProcess(cfg.Sampling.ProcessLimit),
		Store:     store,
		Publisher: server,
		Clock:     clk,
		Logger:    logger,
	})

	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(ctx) }()
	runDone := make(chan error, 1)
	go func() { runDone <- coll.Run(ctx) }()

	// Whichever side stops first takes the other down with it: a
	// feed server startup failure must not leave the collector
	// sampling into the void.
	var exitErr error
	select {
	case err := <-serveDone:
		stop()
		<-runDone
		if err != nil {
			exitErr = fmt.Errorf("feed server: %w", err)
		}
	case err := <-runDone:
		stop()
		<-serveDone
		if err != nil && !errors.Is(err, context.Canceled) {
			exitErr = fmt.Errorf("collector: %w", err)
		}
	}

	logger.Info("gauged stopped")
	return exitErr
}

// loadConfig resolves the config source: the --config flag wins over
// GAUGE_CONFIG, and with neither set gauged runs on defaults.
func loadConfig(flagPath string) (*config.Config, error) {
	if flagPath != "" {
		cfg, err := config.LoadFile(flagPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// applyOverrides layers flag and environment overrides onto the
// config: flags win over environment, environment wins over file.
func applyOverrides(cfg *config.Config, socketPath, hwdbPath string) {
	if env := os.Getenv("GAUGE_SOCKET"); env != "" {
		cfg.Feed.SocketPath = env
	}
	if env := os.Getenv("GAUGE_HWDB"); env != "" {
		cfg.HardwareDB.Path = env
	}
	if socketPath != "" {
		cfg.Feed.SocketPath = socketPath
	}
	if hwdbPath != "" {
		cfg.HardwareDB.Path = hwdbPath
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("GAUGE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// buildDrivers constructs the backend driver set. Every driver except
// CPU tolerates absent hardware by enumerating no devices; CPU is the
// one driver whose absence means the probe layer itself is broken.
func buildDrivers(ctx context.Context, cfg *config.Config, clk clock.Clock, db *hwdb.DB, logger *slog.Logger) ([]driver.Driver, func(), error) {
	cpu, err := driver.NewCPU(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing cpu driver: %w", err)
	}

	drivers := []driver.Driver{
		cpu,
		driver.NewMemory(),
		driver.NewDisk(clk),
		driver.NewNetwork(clk),
		driver.NewFan(),
	}

	var backends []gpu.Backend
	if cfg.GPU.EnableAMD {
		backends = append(backends, amdgpu.New(logger, db))
	}
	if cfg.GPU.EnableNVIDIA {
		backends = append(backends, nvidia.New(logger, db))
	}
	if cfg.GPU.EnableIntel {
		backends = append(backends, intel.New(logger, db))
	}

	if len(backends) == 0 {
		return drivers, func() {}, nil
	}

	mux := gpu.NewMux(logger, backends...)
	drivers = append(drivers, mux)
	cleanup := func() {
		if err := mux.Close(); err != nil {
			logger.Warn("closing gpu backends", "error", err)
		}
	}
	return drivers, cleanup, nil
}
