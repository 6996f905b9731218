// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/gaugeworks/gauge/lib/schema"
)

// cpuTemperatureKeys are sensor key substrings that identify the CPU
// package temperature across common platform drivers.
var cpuTemperatureKeys = []string{"coretemp", "k10temp", "zenpower", "cpu_thermal"}

// CPU samples processor utilization, frequency, and package
// temperature. Utilization deltas are computed by the probe between
// consecutive polls, so the first cycle reports utilization as
// unavailable rather than a bogus since-boot average.
type CPU struct {
	device schema.DeviceDescriptor
	cores  int

	// Probe functions, replaced in tests.
	percent      func(ctx context.Context, percpu bool) ([]float64, error)
	info         func(ctx context.Context) ([]cpu.InfoStat, error)
	temperatures func(ctx context.Context) ([]sensors.TemperatureStat, error)

	polled bool
}

// NewCPU probes the processor once to build its device descriptor.
// Failing to identify the CPU at startup is fatal: a machine without
// a readable /proc/cpuinfo cannot be monitored.
func NewCPU(ctx context.Context) (*CPU, error) {
	driver := &CPU{
		percent: func(ctx context.Context, percpu bool) ([]float64, error) {
			return cpu.PercentWithContext(ctx, 0, percpu)
		},
		info:         cpu.InfoWithContext,
		temperatures: sensors.TemperaturesWithContext,
	}

	infos, err := driver.info(ctx)
	if err != nil {
		return nil, fmt.Errorf("probing cpu info: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("probing cpu info: no processors reported")
	}

	threads, err := cpu.CountsWithContext(ctx, true)
	if err != nil || threads == 0 {
		threads = len(infos)
	}
	driver.cores = threads

	driver.device = schema.DeviceDescriptor{
		DeviceID:    "cpu",
		Class:       schema.ClassCPU,
		VendorID:    strings.ToLower(infos[0].VendorID),
		DisplayName: infos[0].ModelName,
		Capabilities: schema.CapabilitySet(0).
			With(schema.CapUtilization).
			With(schema.CapTemperature),
	}
	return driver, nil
}

func (driver *CPU) Name() string { return "cpu" }

func (driver *CPU) Devices() []schema.DeviceDescriptor {
	return []schema.DeviceDescriptor{driver.device}
}

func (driver *CPU) Poll(ctx context.Context) ([]schema.ResourceSample, error) {
	total, err := driver.percent(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("cpu utilization: %w: %w", ErrTransient, err)
	}
	perCore, err := driver.percent(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("per-core utilization: %w: %w", ErrTransient, err)
	}

	firstPoll := !driver.polled
	driver.polled = true

	samples := make([]schema.ResourceSample, 0, len(perCore)+3)

	utilization := schema.Unavailable(schema.UnitPercent)
	if !firstPoll && len(total) > 0 {
		utilization = schema.Measured(total[0], schema.UnitPercent)
	}
	samples = append(samples, schema.ResourceSample{
		MetricID: schema.MetricCPUUtilization,
		Value:    utilization,
		DeviceID: driver.device.DeviceID,
	})

	for core, percent := range perCore {
		value := schema.Unavailable(schema.UnitPercent)
		if !firstPoll {
			value = schema.Measured(percent, schema.UnitPercent)
		}
		samples = append(samples, schema.ResourceSample{
			MetricID: schema.PerDevice(schema.MetricCPUUtilization, schema.DeviceID(fmt.Sprintf("core%d", core))),
			Value:    value,
			DeviceID: driver.device.DeviceID,
		})
	}

	samples = append(samples, schema.ResourceSample{
		MetricID: schema.MetricCPUFrequency,
		Value:    driver.frequency(ctx),
		DeviceID: driver.device.DeviceID,
	})
	samples = append(samples, schema.ResourceSample{
		MetricID: schema.MetricCPUTemperature,
		Value:    driver.temperature(ctx),
		DeviceID: driver.device.DeviceID,
	})
	return samples, nil
}

// frequency averages the current clock across packages. Reported as
// unavailable when /proc/cpuinfo carries no frequency (common inside
// containers and on some ARM boards).
func (driver *CPU) frequency(ctx context.Context) schema.Value {
	infos, err := driver.info(ctx)
	if err != nil || len(infos) == 0 {
		return schema.Unavailable(schema.UnitMegahertz)
	}
	var sum float64
	counted := 0
	for _, info := range infos {
		if info.Mhz > 0 {
			sum += info.Mhz
			counted++
		}
	}
	if counted == 0 {
		return schema.Unavailable(schema.UnitMegahertz)
	}
	return schema.Measured(sum/float64(counted), schema.UnitMegahertz)
}

// temperature picks the hottest reading from a known CPU sensor.
// Machines without an exposed package sensor report unavailable.
func (driver *CPU) temperature(ctx context.Context) schema.Value {
	stats, err := driver.temperatures(ctx)
	if err != nil {
		return schema.Unavailable(schema.UnitMillidegreesC)
	}

	hottest := 0.0
	found := false
	for _, stat := range stats {
		for _, key := range cpuTemperatureKeys {
			if strings.Contains(stat.SensorKey, key) {
				if !found || stat.Temperature > hottest {
					hottest = stat.Temperature
				}
				found = true
				break
			}
		}
	}
	if !found {
		return schema.Unavailable(schema.UnitMillidegreesC)
	}
	return schema.Measured(hottest*1000, schema.UnitMillidegreesC)
}

// Threads returns the logical processor count probed at startup.
func (driver *CPU) Threads() int { return driver.cores }
