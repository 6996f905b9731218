// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// gauge is the command-line consumer of the gauged feed socket.
//
// Usage:
//
//	gauge watch [flags]
//	gauge history --metric <id> [flags]
//	gauge devices [flags]
//	gauge status [flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/gaugeworks/gauge/feed"
	"github.com/gaugeworks/gauge/lib/config"
	"github.com/gaugeworks/gauge/lib/schema"
	"github.com/gaugeworks/gauge/lib/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "watch":
		err = watchCmd(args)
	case "history":
		err = historyCmd(args)
	case "devices":
		err = devicesCmd(args)
	case "status":
		err = statusCmd(args)
	case "version", "--version", "-v":
		fmt.Printf("gauge %s\n", version.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`gauge - query the gauged telemetry daemon

USAGE
    gauge <command> [flags]

COMMANDS
    watch     Stream live snapshots
    history   Print retained samples for one metric
    devices   List monitored devices and machine inventory
    status    Show feed server counters
    version   Show version

ENVIRONMENT
    GAUGE_CONFIG  Config file resolving the socket path
    GAUGE_SOCKET  Feed socket path (overrides config)
`)
}

// socketFlag registers the shared --socket flag on a subcommand flag
// set and returns a resolver applying the flag > environment > config
// precedence.
func socketFlag(flags *pflag.FlagSet) func() (string, error) {
	socketPath := flags.String("socket", "", "feed socket path")
	return func() (string, error) {
		if *socketPath != "" {
			return *socketPath, nil
		}
		if env := os.Getenv("GAUGE_SOCKET"); env != "" {
			return env, nil
		}
		cfg, err := config.Load()
		if err != nil {
			return "", fmt.Errorf("resolving socket path: %w", err)
		}
		return cfg.Feed.SocketPath, nil
	}
}

func watchCmd(args []string) error {
	flags := pflag.NewFlagSet("gauge watch", pflag.ContinueOnError)
	socket := socketFlag(flags)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	socketPath, err := socket()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subscription, err := feed.NewClient(socketPath).Subscribe(ctx)
	if err != nil {
		return err
	}
	defer subscription.Close()

	for snapshot := range subscription.Snapshots() {
		printSnapshot(snapshot)
	}
	if err := subscription.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printSnapshot(snapshot schema.Snapshot) {
	ts := time.UnixMilli(snapshot.TimestampMillis).Format("15:04:05")
	fmt.Printf("cycle %d  %s  window %dms  devices %d  samples %d",
		snapshot.Cycle, ts, snapshot.WindowMillis, len(snapshot.Devices), len(snapshot.Samples))
	if len(snapshot.Degraded) > 0 {
		fmt.Printf("  degraded %v", snapshot.Degraded)
	}
	fmt.Println()

	for _, sample := range snapshot.Samples {
		fmt.Printf("  %-32s %s\n", sample.MetricID, formatValue(sample.Value))
	}
	for _, event := range snapshot.Events {
		fmt.Printf("  event: %s %s\n", event.Kind, event.DeviceID)
	}
}

func formatValue(value schema.Value) string {
	if !value.Available {
		return "unavailable"
	}
	return fmt.Sprintf("%.2f %s", value.Raw, value.Unit)
}

func historyCmd(args []string) error {
	flags := pflag.NewFlagSet("gauge history", pflag.ContinueOnError)
	socket := socketFlag(flags)
	metric := flags.String("metric", "", "metric ID to query (required)")
	since := flags.Duration("since", 0, "only samples newer than this age (e.g. 5m); 0 means all retained")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *metric == "" {
		return fmt.Errorf("--metric is required")
	}
	socketPath, err := socket()
	if err != nil {
		return err
	}

	var fromMillis int64
	if *since > 0 {
		fromMillis = time.Now().Add(-*since).UnixMilli()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	samples, err := feed.NewClient(socketPath).History(ctx, schema.MetricID(*metric), fromMillis, 0)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Println("no samples retained")
		return nil
	}

	for _, sample := range samples {
		ts := time.UnixMilli(sample.TimestampMillis).Format(time.RFC3339)
		fmt.Printf("%s  %s\n", ts, formatValue(sample.Value))
	}
	return nil
}

func devicesCmd(args []string) error {
	flags := pflag.NewFlagSet("gauge devices", pflag.ContinueOnError)
	socket := socketFlag(flags)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	socketPath, err := socket()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	response, err := feed.NewClient(socketPath).Devices(ctx)
	if err != nil {
		return err
	}

	machine := response.Machine
	fmt.Printf("host %s  kernel %s\n", machine.Hostname, machine.KernelVersion)
	if machine.CPUModel != "" {
		fmt.Printf("cpu %s (%d cores, %d threads)\n",
			machine.CPUModel, machine.CPUCores, machine.CPUThreads)
	}
	fmt.Printf("memory %d MB  swap %d MB\n", machine.MemoryTotalMB, machine.SwapTotalMB)
	if machine.HardwareDBVersion != "" {
		fmt.Printf("hwdb %s (%s)\n", machine.HardwareDBVersion, machine.HardwareDBDigest)
	}
	fmt.Println()

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "DEVICE\tCLASS\tNAME\tCAPABILITIES")
	for _, device := range response.Devices {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			device.DeviceID, device.Class, device.DisplayName, device.Capabilities)
	}
	return writer.Flush()
}

func statusCmd(args []string) error {
	flags := pflag.NewFlagSet("gauge status", pflag.ContinueOnError)
	socket := socketFlag(flags)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	socketPath, err := socket()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, err := feed.NewClient(socketPath).Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("gauged %s\n", status.Version)
	fmt.Printf("subscribers        %d\n", status.Subscribers)
	fmt.Printf("cycles published   %d\n", status.CyclesPublished)
	fmt.Printf("snapshots dropped  %d\n", status.DroppedSnapshots)
	return nil
}
