// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/gaugeworks/gauge/lib/schema"
)

// Memory samples physical memory and swap usage.
type Memory struct {
	device schema.DeviceDescriptor

	virtual func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	swap    func(ctx context.Context) (*mem.SwapMemoryStat, error)
}

// NewMemory creates the memory driver.
func NewMemory() *Memory {
	return &Memory{
		device: schema.DeviceDescriptor{
			DeviceID:     "memory",
			Class:        schema.ClassMemory,
			DisplayName:  "System memory",
			Capabilities: schema.CapabilitySet(0).With(schema.CapUtilization),
		},
		virtual: mem.VirtualMemoryWithContext,
		swap:    mem.SwapMemoryWithContext,
	}
}

func (driver *Memory) Name() string { return "memory" }

func (driver *Memory) Devices() []schema.DeviceDescriptor {
	return []schema.DeviceDescriptor{driver.device}
}

func (driver *Memory) Poll(ctx context.Context) ([]schema.ResourceSample, error) {
	virtual, err := driver.virtual(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w: %w", ErrTransient, err)
	}

	sample := func(metric schema.MetricID, value schema.Value) schema.ResourceSample {
		return schema.ResourceSample{
			MetricID: metric,
			Value:    value,
			DeviceID: driver.device.DeviceID,
		}
	}

	samples := []schema.ResourceSample{
		sample(schema.MetricMemoryTotal, schema.Measured(float64(virtual.Total), schema.UnitBytes)),
		sample(schema.MetricMemoryUsed, schema.Measured(float64(virtual.Used), schema.UnitBytes)),
		sample(schema.MetricMemoryAvailable, schema.Measured(float64(virtual.Available), schema.UnitBytes)),
		sample(schema.MetricMemoryUtilization, schema.Measured(virtual.UsedPercent, schema.UnitPercent)),
	}

	// Swap is optional hardware state: a machine without swap still
	// reports the metrics, as unavailable.
	swapUsed := schema.Unavailable(schema.UnitBytes)
	swapTotal := schema.Unavailable(schema.UnitBytes)
	if swap, err := driver.swap(ctx); err == nil && swap.Total > 0 {
		swapUsed = schema.Measured(float64(swap.Used), schema.UnitBytes)
		swapTotal = schema.Measured(float64(swap.Total), schema.UnitBytes)
	}
	samples = append(samples,
		sample(schema.MetricSwapUsed, swapUsed),
		sample(schema.MetricSwapTotal, swapTotal),
	)
	return samples, nil
}
