// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gaugeworks/gauge/lib/schema"
)

// Fan samples cooling fan tachometers from the kernel hwmon class.
// Every hwmon chip exposing fanN_input files contributes one device
// per fan; chips without tachometers contribute nothing.
type Fan struct {
	sysRoot string
	devices []schema.DeviceDescriptor
}

// NewFan creates the fan driver reading from /sys.
func NewFan() *Fan {
	return &Fan{sysRoot: "/sys"}
}

func (driver *Fan) Name() string { return "fan" }

func (driver *Fan) Devices() []schema.DeviceDescriptor {
	return slices.Clone(driver.devices)
}

func (driver *Fan) Poll(ctx context.Context) ([]schema.ResourceSample, error) {
	hwmonDir := filepath.Join(driver.sysRoot, "class", "hwmon")
	chips, err := os.ReadDir(hwmonDir)
	if err != nil {
		if os.IsNotExist(err) {
			// No hwmon support at all: no fans, not an error.
			driver.devices = nil
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w: %w", hwmonDir, ErrTransient, err)
	}

	var samples []schema.ResourceSample
	var devices []schema.DeviceDescriptor

	for _, chip := range chips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chipPath := filepath.Join(hwmonDir, chip.Name())
		chipName := readSysfsString(filepath.Join(chipPath, "name"))
		if chipName == "" {
			chipName = chip.Name()
		}

		entries, err := os.ReadDir(chipPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			index, ok := fanIndex(entry.Name())
			if !ok {
				continue
			}

			deviceID := schema.DeviceID(fmt.Sprintf("%s-fan%d", chipName, index))
			label := readSysfsString(filepath.Join(chipPath, fmt.Sprintf("fan%d_label", index)))
			if label == "" {
				label = fmt.Sprintf("%s fan %d", chipName, index)
			}

			capabilities := schema.CapabilitySet(0).With(schema.CapFanSpeed)

			speed := schema.Unavailable(schema.UnitRPM)
			if rpm, err := readSysfsInt(filepath.Join(chipPath, entry.Name())); err == nil {
				speed = schema.Measured(float64(rpm), schema.UnitRPM)
			}
			samples = append(samples, schema.ResourceSample{
				MetricID: schema.PerDevice(schema.MetricFanSpeed, deviceID),
				Value:    speed,
				DeviceID: deviceID,
			})

			// PWM duty is optional; only fans with a controllable
			// channel expose it.
			duty := schema.Unavailable(schema.UnitPercent)
			if pwm, err := readSysfsInt(filepath.Join(chipPath, fmt.Sprintf("pwm%d", index))); err == nil {
				duty = schema.Measured(float64(pwm)/255*100, schema.UnitPercent)
			}
			samples = append(samples, schema.ResourceSample{
				MetricID: schema.PerDevice(schema.MetricFanPWM, deviceID),
				Value:    duty,
				DeviceID: deviceID,
			})

			devices = append(devices, schema.DeviceDescriptor{
				DeviceID:     deviceID,
				Class:        schema.ClassFan,
				DisplayName:  label,
				Capabilities: capabilities,
			})
		}
	}

	slices.SortFunc(devices, func(a, b schema.DeviceDescriptor) int {
		return strings.Compare(string(a.DeviceID), string(b.DeviceID))
	})
	driver.devices = devices
	return samples, nil
}

// fanIndex extracts N from a "fanN_input" file name.
func fanIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, "fan") || !strings.HasSuffix(name, "_input") {
		return 0, false
	}
	index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "fan"), "_input"))
	if err != nil {
		return 0, false
	}
	return index, true
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readSysfsInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
