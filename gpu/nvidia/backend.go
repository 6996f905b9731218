// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package nvidia enumerates NVIDIA GPUs through the proprietary
// nvidia driver or the open-source nouveau driver. Static identity
// comes from sysfs; the proprietary driver additionally names the
// card through /proc/driver/nvidia/gpus/.
//
// Dynamic metrics (utilization, VRAM, power, clocks) are not
// available without NVML (libnvidia-ml.so), which would require cgo
// or dlopen. Cards therefore report those metrics as unavailable and
// declare no sampling capabilities beyond temperature, which nouveau
// exposes through hwmon. NVIDIA's kernel ioctl interface (NV_ESC_* on
// /dev/nvidiactl) requires version negotiation and changes between
// driver versions, so direct ioctl access is not viable.
package nvidia

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gaugeworks/gauge/gpu"
	"github.com/gaugeworks/gauge/lib/hwdb"
	"github.com/gaugeworks/gauge/lib/schema"
)

type card struct {
	descriptor schema.DeviceDescriptor
	devicePath string

	// hasThermal records whether hwmon exposed a temperature at
	// enumeration (nouveau does, the proprietary driver does not).
	hasThermal bool
}

// Backend implements gpu.Backend for NVIDIA GPUs.
type Backend struct {
	cards  []*card
	logger *slog.Logger
}

// New discovers all nvidia- or nouveau-bound cards.
func New(logger *slog.Logger, db *hwdb.DB) *Backend {
	return newFrom("/sys", "/proc", logger, db)
}

// newFrom creates a Backend with custom filesystem roots for testing.
func newFrom(sysRoot, procRoot string, logger *slog.Logger, db *hwdb.DB) *Backend {
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
		driver := gpu.ReadDriverName(devicePath)
		if driver != "nvidia" && driver != "nouveau" {
			continue
		}

		vendorID, deviceID, pciSlot := gpu.ParsePCIUevent(devicePath)
		entry := db.Resolve(vendorID, deviceID)
		displayName := entry.DisplayName

		// The proprietary driver knows the marketing name even when
		// the hardware database does not.
		if driver == "nvidia" && pciSlot != "" {
			if model := readProcModel(procRoot, pciSlot); model != "" && !entry.Known {
				displayName = model
			}
		}

		_, hasThermal := gpu.ReadHwmonTemperature(devicePath)
		capabilities := schema.CapabilitySet(0)
		if hasThermal {
			capabilities = capabilities.With(schema.CapTemperature)
		}

		backend.cards = append(backend.cards, &card{
			devicePath: devicePath,
			hasThermal: hasThermal,
			descriptor: schema.DeviceDescriptor{
				DeviceID:     schema.DeviceID(name),
				Class:        schema.ClassGPU,
				VendorID:     vendorID,
				ModelID:      deviceID,
				DisplayName:  displayName,
				Capabilities: capabilities,
			},
		})
	}

	if len(backend.cards) > 0 {
		logger.Info("nvidia backend initialized: dynamic metrics limited without NVML",
			"card_count", len(backend.cards))
	}
	return backend
}

func (backend *Backend) Vendor() string { return "nvidia" }

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
		if _, err := os.Stat(c.devicePath); err != nil {
			backend.logger.Info("nvidia card gone", "device", c.descriptor.DeviceID)
			continue
		}
		remaining = append(remaining, c)

		var reading gpu.Reading
		if c.hasThermal {
			if millidegrees, ok := gpu.ReadHwmonTemperature(c.devicePath); ok {
				reading.Temperature = schema.Measured(float64(millidegrees), schema.UnitMillidegreesC)
			}
		}
		samples = append(samples, reading.Samples(c.descriptor.DeviceID)...)
	}
	backend.cards = remaining
	return samples, nil
}

func (backend *Backend) Close() error {
	backend.cards = nil
	return nil
}

// readProcModel reads the card's marketing name from
// /proc/driver/nvidia/gpus/<pci-slot>/information, which contains
// key-value lines like:
//
//	Model:           NVIDIA GeForce RTX 4090
func readProcModel(procRoot, pciSlot string) string {
	infoPath := filepath.Join(procRoot, "driver/nvidia/gpus", pciSlot, "information")
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 && strings.TrimSpace(parts[0]) == "Model" {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}
