// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/gaugeworks/gauge/lib/schema"
)

func TestMemoryPoll(t *testing.T) {
	t.Parallel()

	driver := NewMemory()
	driver.virtual = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{
			Total:       16 << 30,
			Used:        4 << 30,
			Available:   12 << 30,
			UsedPercent: 25,
		}, nil
	}
	driver.swap = func(ctx context.Context) (*mem.SwapMemoryStat, error) {
		return &mem.SwapMemoryStat{Total: 8 << 30, Used: 1 << 30}, nil
	}

	samples, err := driver.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	used := findSample(t, samples, schema.MetricMemoryUsed)
	if got, want := used.Value.Raw, float64(4<<30); got != want {
		t.Errorf("mem.used = %v, want %v", got, want)
	}
	utilization := findSample(t, samples, schema.MetricMemoryUtilization)
	if got, want := utilization.Value.Raw, 25.0; got != want {
		t.Errorf("mem.utilization = %v, want %v", got, want)
	}
	swapUsed := findSample(t, samples, schema.MetricSwapUsed)
	if got, want := swapUsed.Value.Raw, float64(1<<30); got != want {
		t.Errorf("mem.swap.used = %v, want %v", got, want)
	}
}

func TestMemoryNoSwap(t *testing.T) {
	t.Parallel()

	driver := NewMemory()
	driver.virtual = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 1 << 30}, nil
	}
	driver.swap = func(ctx context.Context) (*mem.SwapMemoryStat, error) {
		return &mem.SwapMemoryStat{}, nil
	}

	samples, err := driver.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	// Swapless machines report the metric as unavailable, not zero.
	swapUsed := findSample(t, samples, schema.MetricSwapUsed)
	if swapUsed.Value.Available {
		t.Error("mem.swap.used available without swap, want unavailable")
	}
}

func TestMemoryPollTransientError(t *testing.T) {
	t.Parallel()

	driver := NewMemory()
	driver.virtual = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("meminfo unreadable")
	}

	_, err := driver.Poll(context.Background())
	if !errors.Is(err, ErrTransient) {
		t.Errorf("Poll error %v is not ErrTransient", err)
	}
}
