// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package intel samples Intel integrated and discrete GPUs through
// the i915 kernel driver. Metric support starts at gen 8 (Broadwell):
// older generations predate the sysfs frequency interface this
// backend relies on, so they enumerate with an empty capability set
// and every metric unavailable.
package intel

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

// broadwellGeneration is the first supported graphics generation.
const broadwellGeneration = 8

// generationByPrefix maps the leading byte of an Intel graphics PCI
// device ID to its generation. The table is coarse on purpose: it
// only needs to separate pre-Broadwell parts from everything newer.
// IDs with an unlisted prefix are assumed to be hardware newer than
// this table and are supported.
var generationByPrefix = map[string]int{
	// Pre-Broadwell.
	"01": 7, // Ivy Bridge
	"04": 7, // Haswell
	"0a": 7, // Haswell ULT
	"0c": 7, // Haswell
	"0d": 7, // Haswell GT3e

	"16": 8,  // Broadwell
	"19": 9,  // Skylake
	"59": 9,  // Kaby Lake
	"3e": 9,  // Coffee Lake
	"9b": 9,  // Comet Lake
	"8a": 11, // Ice Lake
	"9a": 12, // Tiger Lake
	"4c": 12, // Rocket Lake
	"46": 12, // Alder Lake
	"47": 12, // Alder Lake N
	"a7": 12, // Raptor Lake
	"56": 12, // DG2 / Arc Alchemist
	"7d": 12, // Meteor Lake
}

type card struct {
	descriptor schema.DeviceDescriptor

	// cardPath is the DRM card directory holding the gt_*_freq_mhz
	// files; devicePath is its PCI device directory.
	cardPath   string
	devicePath string

	// legacy marks pre-Broadwell hardware: present, but no metric is
	// ever sampled from it.
	legacy bool
}

// Backend implements gpu.Backend for Intel GPUs.
type Backend struct {
	cards  []*card
	logger *slog.Logger
}

// New discovers all supported i915-bound cards.
func New(logger *slog.Logger, db *hwdb.DB) *Backend {
	return newFrom("/sys", logger, db)
}

func newFrom(sysRoot string, logger *slog.Logger, db *hwdb.DB) *Backend {
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
		cardPath := filepath.Join(drmBase, name)
		devicePath := filepath.Join(cardPath, "device")
		if gpu.ReadDriverName(devicePath) != "i915" {
			continue
		}

		vendorID, deviceID, _ := gpu.ParsePCIUevent(devicePath)
		legacy := false
		if generation, known := lookupGeneration(deviceID); known && generation < broadwellGeneration {
			logger.Info("pre-Broadwell intel gpu, no metrics",
				"device", name,
				"pci_id", vendorID+":"+deviceID,
				"generation", generation)
			legacy = true
		}

		entry := db.Resolve(vendorID, deviceID)

		capabilities := schema.CapabilitySet(0)
		if !legacy {
			if hasFrequencyInterface(cardPath) {
				capabilities = capabilities.With(schema.CapUtilization)
			}
			if _, ok := gpu.ReadHwmonTemperature(devicePath); ok {
				capabilities = capabilities.With(schema.CapTemperature)
			}
		}

		backend.cards = append(backend.cards, &card{
			cardPath:   cardPath,
			devicePath: devicePath,
			legacy:     legacy,
			descriptor: schema.DeviceDescriptor{
				DeviceID:     schema.DeviceID(name),
				Class:        schema.ClassGPU,
				VendorID:     vendorID,
				ModelID:      deviceID,
				DisplayName:  entry.DisplayName,
				Capabilities: capabilities,
			},
		})
	}

	if len(backend.cards) > 0 {
		logger.Info("intel backend initialized", "card_count", len(backend.cards))
	}
	return backend
}

func (backend *Backend) Vendor() string { return "intel" }

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
			backend.logger.Info("intel card gone", "device", c.descriptor.DeviceID)
			continue
		}
		remaining = append(remaining, c)

		var reading gpu.Reading
		if c.legacy {
			samples = append(samples, reading.Samples(c.descriptor.DeviceID)...)
			continue
		}

		actual, actualErr := gpu.ReadSysfsInt64(filepath.Join(c.cardPath, "gt_act_freq_mhz"))
		if actualErr == nil {
			reading.Frequency = schema.Measured(float64(actual), schema.UnitMegahertz)
		}

		// i915 exposes no busy counter in sysfs, so utilization is
		// approximated as the actual clock's share of the maximum.
		// It tracks load coarsely but is honest about idle vs busy.
		if maximum, err := gpu.ReadSysfsInt64(filepath.Join(c.cardPath, "gt_max_freq_mhz")); err == nil && actualErr == nil && maximum > 0 {
			reading.Utilization = schema.Measured(float64(actual)/float64(maximum)*100, schema.UnitPercent)
		}

		if millidegrees, ok := gpu.ReadHwmonTemperature(c.devicePath); ok {
			reading.Temperature = schema.Measured(float64(millidegrees), schema.UnitMillidegreesC)
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

// lookupGeneration resolves a PCI device ID to a graphics generation
// via its leading byte. known is false for IDs outside the table.
func lookupGeneration(deviceID string) (generation int, known bool) {
	if len(deviceID) < 2 {
		return 0, false
	}
	generation, known = generationByPrefix[strings.ToLower(deviceID[:2])]
	return generation, known
}

func hasFrequencyInterface(cardPath string) bool {
	_, err := os.Stat(filepath.Join(cardPath, "gt_act_freq_mhz"))
	return err == nil
}
