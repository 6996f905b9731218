// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package amdgpu samples AMD GPUs through the amdgpu kernel driver.
// Utilization, temperature, power, and clock come from the
// AMDGPU_INFO_SENSOR ioctl on an open render node; VRAM counters come
// from sysfs because the sensor interface does not expose them.
package amdgpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gaugeworks/gauge/gpu"
	"github.com/gaugeworks/gauge/lib/hwdb"
	"github.com/gaugeworks/gauge/lib/schema"
)

// card holds the state for sampling a single GPU.
type card struct {
	descriptor schema.DeviceDescriptor

	// devicePath is the sysfs device directory, used for VRAM
	// counters and for detecting hot-unplug.
	devicePath string

	// renderFile is the open render node. Held open for the daemon's
	// lifetime to avoid per-cycle open/close. Nil when the node could
	// not be opened (missing render group membership): sensor
	// metrics are then unavailable but VRAM still reports.
	renderFile *os.File
}

// Backend implements gpu.Backend for AMD GPUs.
type Backend struct {
	cards  []*card
	logger *slog.Logger
}

// New discovers all amdgpu-bound cards and opens their render nodes.
// Cards whose render node cannot be opened still appear, with sensor
// metrics unavailable.
func New(logger *slog.Logger, db *hwdb.DB) *Backend {
	return newFrom("/sys", "/dev", logger, db)
}

// newFrom creates a Backend with custom filesystem roots for testing.
// Tests do not open render nodes; ioctl sampling requires a live GPU.
func newFrom(sysRoot, devRoot string, logger *slog.Logger, db *hwdb.DB) *Backend {
	backend := &Backend{logger: logger}

	drmBase := filepath.Join(sysRoot, "class", "drm")
	entries, err := os.ReadDir(drmBase)
	if err != nil {
		return backend
	}

	for _, entry := range entries {
		name := entry.Name()
		if !gpu.IsCardDevice(name) {
			continue
		}
		devicePath := filepath.Join(drmBase, name, "device")
		if gpu.ReadDriverName(devicePath) != "amdgpu" {
			continue
		}

		vendorID, deviceID, pciSlot := gpu.ParsePCIUevent(devicePath)
		entry := db.Resolve(vendorID, deviceID)

		c := &card{
			devicePath: devicePath,
			descriptor: schema.DeviceDescriptor{
				DeviceID:    schema.DeviceID(name),
				Class:       schema.ClassGPU,
				VendorID:    vendorID,
				ModelID:     deviceID,
				DisplayName: entry.DisplayName,
				Capabilities: schema.CapabilitySet(0).
					With(schema.CapUtilization).
					With(schema.CapVRAM).
					With(schema.CapPower).
					With(schema.CapTemperature),
			},
		}

		if renderPath := renderNodeFor(devicePath, devRoot); renderPath != "" {
			file, err := os.OpenFile(renderPath, os.O_RDWR, 0)
			if err != nil {
				logger.Warn("cannot open amdgpu render node, sensor metrics will be unavailable for this card",
					"render_node", renderPath,
					"pci_slot", pciSlot,
					"error", err)
			} else {
				c.renderFile = file
			}
		}

		backend.cards = append(backend.cards, c)
	}

	if len(backend.cards) > 0 {
		logger.Info("amdgpu backend initialized", "card_count", len(backend.cards))
	}
	return backend
}

func (backend *Backend) Vendor() string { return "amdgpu" }

func (backend *Backend) Devices() []schema.DeviceDescriptor {
	devices := make([]schema.DeviceDescriptor, 0, len(backend.cards))
	for _, c := range backend.cards {
		devices = append(devices, c.descriptor)
	}
	return devices
}

func (backend *Backend) Poll(ctx context.Context) ([]schema.ResourceSample, error) {
	var samples []schema.ResourceSample
	remaining := backend.cards[:0]

	for _, c := range backend.cards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// A vanished sysfs directory means the card was unplugged or
		// the driver unbound: drop it rather than degrade it.
		if _, err := os.Stat(c.devicePath); err != nil {
			backend.logger.Info("amdgpu card gone", "device", c.descriptor.DeviceID)
			if c.renderFile != nil {
				c.renderFile.Close()
			}
			continue
		}
		remaining = append(remaining, c)
		samples = append(samples, backend.sample(c).Samples(c.descriptor.DeviceID)...)
	}
	backend.cards = remaining
	return samples, nil
}

// sample reads one card. Individual sensor failures leave that metric
// unavailable instead of failing the card.
func (backend *Backend) sample(c *card) gpu.Reading {
	var reading gpu.Reading

	if used, err := gpu.ReadSysfsInt64(filepath.Join(c.devicePath, "mem_info_vram_used")); err == nil {
		reading.VRAMUsed = schema.Measured(float64(used), schema.UnitBytes)
	}
	if total, err := gpu.ReadSysfsInt64(filepath.Join(c.devicePath, "mem_info_vram_total")); err == nil {
		reading.VRAMTotal = schema.Measured(float64(total), schema.UnitBytes)
	}

	if c.renderFile == nil {
		return reading
	}
	fd := c.renderFile.Fd()

	query := func(sensor uint32, name string) (float64, bool) {
		value, err := querySensor(fd, sensor)
		if err != nil {
			backend.logger.Debug("amdgpu sensor query failed",
				"device", c.descriptor.DeviceID,
				"sensor", name,
				"error", err)
			return 0, false
		}
		return float64(value), true
	}

	if value, ok := query(sensorGPULoad, "GPU_LOAD"); ok {
		reading.Utilization = schema.Measured(value, schema.UnitPercent)
	}
	if value, ok := query(sensorGPUTemp, "GPU_TEMP"); ok {
		reading.Temperature = schema.Measured(value, schema.UnitMillidegreesC)
	}
	if value, ok := query(sensorGPUAvgPower, "GPU_AVG_POWER"); ok {
		reading.Power = schema.Measured(value, schema.UnitWatts)
	}
	if value, ok := query(sensorGFXSCLK, "GFX_SCLK"); ok {
		reading.Frequency = schema.Measured(value, schema.UnitMegahertz)
	}
	return reading
}

// Close releases all open render node file descriptors.
func (backend *Backend) Close() error {
	var errs []error
	for _, c := range backend.cards {
		if c.renderFile != nil {
			if err := c.renderFile.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", c.descriptor.DeviceID, err))
			}
		}
	}
	backend.cards = nil
	return errors.Join(errs...)
}

// renderNodeFor maps a sysfs device directory to its /dev/dri render
// node by listing the device's drm subdirectory.
func renderNodeFor(devicePath, devRoot string) string {
	entries, err := os.ReadDir(filepath.Join(devicePath, "drm"))
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "renderD") {
			return filepath.Join(devRoot, "dri", entry.Name())
		}
	}
	return ""
}
