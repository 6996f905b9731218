// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/gaugeworks/gauge/lib/clock"
	"github.com/gaugeworks/gauge/lib/schema"
)

// virtualDiskPrefixes name block devices that are not physical disks.
var virtualDiskPrefixes = []string{"loop", "ram", "zram", "dm-", "sr", "fd"}

// partitionSuffix matches the partition part of a block device name:
// "sda1" → "1", "nvme0n1p2" → "p2".
var partitionSuffix = regexp.MustCompile(`(p?\d+)$`)

// Disk samples per-disk I/O throughput and busy time. Disks are
// discovered from the kernel's I/O counters on every cycle, so
// hot-plugged drives appear and removed drives disappear without
// restarting the daemon.
type Disk struct {
	clk     clock.Clock
	sysRoot string

	counters func(ctx context.Context, names ...string) (map[string]disk.IOCountersStat, error)

	devices []schema.DeviceDescriptor
	rates   map[string]*diskRates
}

type diskRates struct {
	read  rateTracker
	write rateTracker
	// ioTime tracks milliseconds spent doing I/O; its rate in ms per
	// second divided by ten is the busy percentage.
	ioTime rateTracker
}

// NewDisk creates the disk driver.
func NewDisk(clk clock.Clock) *Disk {
	return &Disk{
		clk:      clk,
		sysRoot:  "/sys",
		counters: disk.IOCountersWithContext,
		rates:    map[string]*diskRates{},
	}
}

func (driver *Disk) Name() string { return "disk" }

func (driver *Disk) Devices() []schema.DeviceDescriptor {
	return slices.Clone(driver.devices)
}

func (driver *Disk) Poll(ctx context.Context) ([]schema.ResourceSample, error) {
	counters, err := driver.counters(ctx)
	if err != nil {
		return nil, fmt.Errorf("disk counters: %w: %w", ErrTransient, err)
	}

	now := driver.clk.Now()

	names := make([]string, 0, len(counters))
	for name := range counters {
		if isPhysicalDisk(name, counters) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	var samples []schema.ResourceSample
	devices := make([]schema.DeviceDescriptor, 0, len(names))
	seen := map[string]bool{}

	for _, name := range names {
		stat := counters[name]
		seen[name] = true
		devices = append(devices, driver.describe(name))

		rates, ok := driver.rates[name]
		if !ok {
			rates = &diskRates{}
			driver.rates[name] = rates
		}

		deviceID := schema.DeviceID(name)
		sample := func(base schema.MetricID, value schema.Value) schema.ResourceSample {
			return schema.ResourceSample{
				MetricID: schema.PerDevice(base, deviceID),
				Value:    value,
				DeviceID: deviceID,
			}
		}
		toValue := func(rate float64, ok bool, unit schema.Unit) schema.Value {
			if !ok {
				return schema.Unavailable(unit)
			}
			return schema.Measured(rate, unit)
		}

		readRate, readOK := rates.read.update(stat.ReadBytes, now)
		writeRate, writeOK := rates.write.update(stat.WriteBytes, now)
		samples = append(samples,
			sample(schema.MetricDiskRead, toValue(readRate, readOK, schema.UnitBytesPerSecond)),
			sample(schema.MetricDiskWrite, toValue(writeRate, writeOK, schema.UnitBytesPerSecond)),
		)

		busyValue := schema.Unavailable(schema.UnitPercent)
		if ioRate, ok := rates.ioTime.update(stat.IoTime, now); ok {
			busy := min(ioRate/10, 100)
			busyValue = schema.Measured(busy, schema.UnitPercent)
		}
		samples = append(samples, sample(schema.MetricDiskBusy, busyValue))
	}

	// Forget rate state for disks that disappeared so a re-attached
	// disk does not inherit stale counters.
	for name := range driver.rates {
		if !seen[name] {
			delete(driver.rates, name)
		}
	}

	driver.devices = devices
	return samples, nil
}

// describe builds the descriptor for one disk, reading the model name
// from sysfs when the kernel exposes it.
func (driver *Disk) describe(name string) schema.DeviceDescriptor {
	displayName := name
	if model, err := os.ReadFile(filepath.Join(driver.sysRoot, "block", name, "device", "model")); err == nil {
		if trimmed := strings.TrimSpace(string(model)); trimmed != "" {
			displayName = trimmed
		}
	}
	return schema.DeviceDescriptor{
		DeviceID:     schema.DeviceID(name),
		Class:        schema.ClassDisk,
		DisplayName:  displayName,
		Capabilities: schema.CapabilitySet(0).With(schema.CapUtilization),
	}
}

// isPhysicalDisk reports whether a counter entry names a whole
// physical disk rather than a virtual device or a partition.
func isPhysicalDisk(name string, counters map[string]disk.IOCountersStat) bool {
	for _, prefix := range virtualDiskPrefixes {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	// A partition's name is its parent disk's name plus a numeric
	// suffix, and the parent shows up in the same counter map.
	if suffix := partitionSuffix.FindString(name); suffix != "" {
		parent := strings.TrimSuffix(name, suffix)
		if _, ok := counters[parent]; ok {
			return false
		}
	}
	return true
}
