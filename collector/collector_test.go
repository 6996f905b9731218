// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gaugeworks/gauge/driver"
	"github.com/gaugeworks/gauge/history"
	"github.com/gaugeworks/gauge/lib/clock"
	"github.com/gaugeworks/gauge/lib/schema"
	"github.com/gaugeworks/gauge/lib/testutil"
)

// fakeDriver is a scriptable backend driver.
type fakeDriver struct {
	name string

	mu      sync.Mutex
	devices []schema.DeviceDescriptor
	samples []schema.ResourceSample
	err     error

	// block, when non-nil, stalls Poll until closed.
	block chan struct{}
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Devices() []schema.DeviceDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.devices)
}

func (d *fakeDriver) Poll(ctx context.Context) ([]schema.ResourceSample, error) {
	d.mu.Lock()
	block := d.block
	d.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.samples), d.err
}

func (d *fakeDriver) set(devices []schema.DeviceDescriptor, samples []schema.ResourceSample, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = devices
	d.samples = samples
	d.err = err
}

func (d *fakeDriver) stall(block chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = block
}

func cpuSample(percent float64) schema.ResourceSample {
	return schema.ResourceSample{
		MetricID: schema.MetricCPUUtilization,
		Value:    schema.Measured(percent, schema.UnitPercent),
		DeviceID: "cpu",
	}
}

func testDevice(id schema.DeviceID, class schema.DeviceClass) schema.DeviceDescriptor {
	return schema.DeviceDescriptor{DeviceID: id, Class: class, DisplayName: string(id)}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires a collector to a fake clock and a snapshot channel.
// The fake clock keeps the fast-path tests deterministic: the cycle
// deadline timer never fires unless a test advances past it.
type harness struct {
	clk       *clock.FakeClock
	snapshots chan schema.Snapshot
	store     *history.Store
	cancel    context.CancelFunc
	done      chan error

	stopOnce sync.Once
	runErr   error
}

func newHarness(t *testing.T, drivers ...driver.Driver) *harness {
	t.Helper()

	h := &harness{
		clk:       clock.Fake(time.Unix(1000, 0)),
		snapshots: make(chan schema.Snapshot, 16),
		store:     history.NewStore(16),
		done:      make(chan error, 1),
	}
	collector := New(Options{
		Interval: time.Second,
		Deadline: 500 * time.Millisecond,
		Drivers:  drivers,
		Store:    h.store,
		Publisher: PublisherFunc(func(snapshot schema.Snapshot) {
			h.snapshots <- snapshot
		}),
		Clock:  h.clk,
		Logger: discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- collector.Run(ctx) }()
	t.Cleanup(func() { h.stop() })
	return h
}

func (h *harness) stop() error {
	h.stopOnce.Do(func() {
		h.cancel()
		h.runErr = <-h.done
	})
	return h.runErr
}

// nextCycle fires the interval ticker and returns the snapshot the
// resulting cycle publishes.
func (h *harness) nextCycle(t *testing.T) schema.Snapshot {
	t.Helper()
	h.clk.WaitForTimers(1)
	h.clk.Advance(time.Second)
	return testutil.RequireReceive(t, h.snapshots, 5*time.Second, "snapshot")
}

func TestCycleMergesDrivers(t *testing.T) {
	t.Parallel()

	cpu := &fakeDriver{name: "cpu"}
	cpu.set([]schema.DeviceDescriptor{testDevice("cpu", schema.ClassCPU)}, []schema.ResourceSample{cpuSample(42)}, nil)
	mem := &fakeDriver{name: "memory"}
	mem.set([]schema.DeviceDescriptor{testDevice("memory", schema.ClassMemory)}, []schema.ResourceSample{{
		MetricID: schema.MetricMemoryUsed,
		Value:    schema.Measured(1<<30, schema.UnitBytes),
		DeviceID: "memory",
	}}, nil)

	h := newHarness(t, cpu, mem)

	snapshot := testutil.RequireReceive(t, h.snapshots, 5*time.Second, "first snapshot")
	if snapshot.Cycle != 1 {
		t.Errorf("Cycle = %d, want 1", snapshot.Cycle)
	}
	if len(snapshot.Devices) != 2 {
		t.Errorf("got %d devices, want 2", len(snapshot.Devices))
	}
	if len(snapshot.Samples) != 2 {
		t.Errorf("got %d samples, want 2", len(snapshot.Samples))
	}
	if len(snapshot.Degraded) != 0 {
		t.Errorf("Degraded = %v, want none", snapshot.Degraded)
	}

	// Every sample carries the cycle timestamp.
	for _, sample := range snapshot.Samples {
		if sample.TimestampMillis != snapshot.TimestampMillis {
			t.Errorf("sample timestamp %d != cycle timestamp %d", sample.TimestampMillis, snapshot.TimestampMillis)
		}
	}

	// Both devices produce added events on the first cycle.
	added := 0
	for _, event := range snapshot.Events {
		if event.Kind == schema.DeviceAdded {
			added++
		}
	}
	if added != 2 {
		t.Errorf("got %d added events, want 2", added)
	}

	// Samples landed in the history store.
	if got := h.store.Len(schema.MetricCPUUtilization); got != 1 {
		t.Errorf("history has %d cpu samples, want 1", got)
	}
}

func TestCycleCounterAdvances(t *testing.T) {
	t.Parallel()

	cpu := &fakeDriver{name: "cpu"}
	cpu.set([]schema.DeviceDescriptor{testDevice("cpu", schema.ClassCPU)}, []schema.ResourceSample{cpuSample(10)}, nil)

	h := newHarness(t, cpu)
	first := testutil.RequireReceive(t, h.snapshots, 5*time.Second, "first snapshot")
	second := h.nextCycle(t)

	if second.Cycle != first.Cycle+1 {
		t.Errorf("Cycle = %d after %d, want +1", second.Cycle, first.Cycle)
	}
	if second.TimestampMillis <= first.TimestampMillis {
		t.Errorf("timestamps not increasing: %d then %d", first.TimestampMillis, second.TimestampMillis)
	}
	// No repeated added events for devices that stay present.
	if len(second.Events) != 0 {
		t.Errorf("second cycle events = %v, want none", second.Events)
	}
}

func TestTransientErrorCarriesForward(t *testing.T) {
	t.Parallel()

	cpu := &fakeDriver{name: "cpu"}
	cpuDevices := []schema.DeviceDescriptor{testDevice("cpu", schema.ClassCPU)}
	cpu.set(cpuDevices, []schema.ResourceSample{cpuSample(42)}, nil)

	h := newHarness(t, cpu)
	testutil.RequireReceive(t, h.snapshots, 5*time.Second, "first snapshot")

	cpu.set(cpuDevices, nil, fmt.Errorf("proc busy: %w", driver.ErrTransient))
	second := h.nextCycle(t)

	if !slices.Contains(second.Degraded, schema.DeviceID("cpu")) {
		t.Errorf("Degraded = %v, want cpu flagged", second.Degraded)
	}
	carried := false
	for _, sample := range second.Samples {
		if sample.MetricID == schema.MetricCPUUtilization && sample.Value.Raw == 42 {
			carried = true
		}
	}
	if !carried {
		t.Error("previous samples not carried forward on transient error")
	}

	// Recovery clears the flag.
	cpu.set(cpuDevices, []schema.ResourceSample{cpuSample(17)}, nil)
	third := h.nextCycle(t)
	if len(third.Degraded) != 0 {
		t.Errorf("Degraded after recovery = %v, want none", third.Degraded)
	}
}

func TestDeviceGone(t *testing.T) {
	t.Parallel()

	net := &fakeDriver{name: "network"}
	net.set([]schema.DeviceDescriptor{testDevice("eth0", schema.ClassNetwork)}, []schema.ResourceSample{{
		MetricID: schema.PerDevice(schema.MetricNetReceived, "eth0"),
		Value:    schema.Measured(500, schema.UnitBytesPerSecond),
		DeviceID: "eth0",
	}}, nil)

	h := newHarness(t, net)
	testutil.RequireReceive(t, h.snapshots, 5*time.Second, "first snapshot")

	net.set(nil, nil, fmt.Errorf("eth0 unplugged: %w", driver.ErrDeviceGone))
	second := h.nextCycle(t)

	// The device is absent and not flagged degraded: gone is a clean
	// removal, not a failure.
	if len(second.Devices) != 0 {
		t.Errorf("Devices = %v, want empty after removal", second.Devices)
	}
	if len(second.Samples) != 0 {
		t.Errorf("Samples = %v, want none carried for a removed device", second.Samples)
	}
	if len(second.Degraded) != 0 {
		t.Errorf("Degraded = %v, want none", second.Degraded)
	}
	removals := 0
	for _, event := range second.Events {
		if event.Kind == schema.DeviceRemoved && event.DeviceID == "eth0" {
			removals++
		}
	}
	if removals != 1 {
		t.Errorf("got %d eth0 removal events, want exactly 1", removals)
	}

	// The removal event fires exactly once, not on every cycle the
	// device stays gone.
	third := h.nextCycle(t)
	if len(third.Events) != 0 {
		t.Errorf("cycle 3 events = %v, want none", third.Events)
	}
}

func TestDeviceAddedMidRun(t *testing.T) {
	t.Parallel()

	disk := &fakeDriver{name: "disk"}
	disk.set([]schema.DeviceDescriptor{testDevice("sda", schema.ClassDisk)}, nil, nil)

	h := newHarness(t, disk)
	testutil.RequireReceive(t, h.snapshots, 5*time.Second, "first snapshot")

	// A second disk appears.
	disk.set([]schema.DeviceDescriptor{
		testDevice("sda", schema.ClassDisk),
		testDevice("sdb", schema.ClassDisk),
	}, nil, nil)

	second := h.nextCycle(t)
	if len(second.Events) != 1 || second.Events[0].Kind != schema.DeviceAdded || second.Events[0].DeviceID != "sdb" {
		t.Errorf("events = %v, want single sdb added event", second.Events)
	}
}

// TestDeadlineDegradesSlowDriver runs against the real clock: the
// ordering between a fast driver's result and the deadline timer
// cannot be sequenced from outside with a fake clock, and generous
// real-time margins make the assertions reliable. A healthy CPU
// driver, a disk driver that stalls past the deadline, and a network
// driver whose device disappears all share one cycle.
func TestDeadlineDegradesSlowDriver(t *testing.T) {
	t.Parallel()

	cpu := &fakeDriver{name: "cpu"}
	cpu.set([]schema.DeviceDescriptor{testDevice("cpu", schema.ClassCPU)}, []schema.ResourceSample{cpuSample(42)}, nil)

	diskSample := schema.ResourceSample{
		MetricID: schema.PerDevice(schema.MetricDiskRead, "sda"),
		Value:    schema.Measured(1000, schema.UnitBytesPerSecond),
		DeviceID: "sda",
	}
	disk := &fakeDriver{name: "disk"}
	disk.set([]schema.DeviceDescriptor{testDevice("sda", schema.ClassDisk)}, []schema.ResourceSample{diskSample}, nil)

	net := &fakeDriver{name: "network"}
	net.set([]schema.DeviceDescriptor{testDevice("eth0", schema.ClassNetwork)}, []schema.ResourceSample{{
		MetricID: schema.PerDevice(schema.MetricNetReceived, "eth0"),
		Value:    schema.Measured(500, schema.UnitBytesPerSecond),
		DeviceID: "eth0",
	}}, nil)

	snapshots := make(chan schema.Snapshot, 16)
	collector := New(Options{
		Interval: 500 * time.Millisecond,
		Deadline: 200 * time.Millisecond,
		Drivers:  []driver.Driver{cpu, disk, net},
		Store:    history.NewStore(16),
		Publisher: PublisherFunc(func(snapshot schema.Snapshot) {
			snapshots <- snapshot
		}),
		Clock:  clock.Real(),
		Logger: discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- collector.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Cycle 1: everyone healthy.
	first := testutil.RequireReceive(t, snapshots, 5*time.Second, "first snapshot")
	if len(first.Degraded) != 0 {
		t.Fatalf("cycle 1 Degraded = %v, want none", first.Degraded)
	}

	// Cycle 2: the disk driver stalls and the network device is gone.
	block := make(chan struct{})
	disk.stall(block)
	net.set(nil, nil, fmt.Errorf("eth0 unplugged: %w", driver.ErrDeviceGone))

	second := testutil.RequireReceive(t, snapshots, 5*time.Second, "second snapshot")

	// CPU stays fresh.
	cpuOK := false
	for _, sample := range second.Samples {
		if sample.MetricID == schema.MetricCPUUtilization && sample.Value.Raw == 42 {
			cpuOK = true
		}
	}
	if !cpuOK {
		t.Error("cpu sample missing from degraded cycle")
	}

	// Disk carries last-known values and is flagged degraded.
	if !slices.Contains(second.Degraded, schema.DeviceID("sda")) {
		t.Errorf("Degraded = %v, want sda flagged", second.Degraded)
	}
	diskSeen := false
	for _, sample := range second.Samples {
		if sample.MetricID == diskSample.MetricID {
			diskSeen = true
			if sample.Value.Raw != 1000 {
				t.Errorf("carried disk sample = %v, want last-known 1000", sample.Value.Raw)
			}
		}
	}
	if !diskSeen {
		t.Error("disk samples not carried forward")
	}

	// The network device is absent from the snapshot, not degraded.
	for _, descriptor := range second.Devices {
		if descriptor.DeviceID == "eth0" {
			t.Error("eth0 still in device list after removal")
		}
	}
	if slices.Contains(second.Degraded, schema.DeviceID("eth0")) {
		t.Error("eth0 flagged degraded, want plain removal")
	}
	removals := 0
	for _, event := range second.Events {
		if event.Kind == schema.DeviceRemoved && event.DeviceID == "eth0" {
			removals++
		}
	}
	if removals != 1 {
		t.Errorf("got %d eth0 removal events, want exactly 1", removals)
	}

	// Let the straggler finish; the next cycle absorbs it and a
	// fresh poll succeeds, clearing the degraded flag.
	close(block)
	third := testutil.RequireReceive(t, snapshots, 5*time.Second, "third snapshot")
	if slices.Contains(third.Degraded, schema.DeviceID("sda")) {
		t.Errorf("cycle 3 Degraded = %v, want sda recovered", third.Degraded)
	}
	for _, event := range third.Events {
		if event.DeviceID == "eth0" {
			t.Errorf("unexpected eth0 event after removal: %v", event)
		}
	}
}

func TestSnapshotWithoutProcessDriver(t *testing.T) {
	t.Parallel()

	cpu := &fakeDriver{name: "cpu"}
	cpu.set([]schema.DeviceDescriptor{testDevice("cpu", schema.ClassCPU)}, []schema.ResourceSample{cpuSample(5)}, nil)

	h := newHarness(t, cpu)
	snapshot := testutil.RequireReceive(t, h.snapshots, 5*time.Second, "first snapshot")
	if snapshot.Processes != nil {
		t.Errorf("Processes = %v, want nil without a process driver", snapshot.Processes)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cpu := &fakeDriver{name: "cpu"}
	cpu.set([]schema.DeviceDescriptor{testDevice("cpu", schema.ClassCPU)}, []schema.ResourceSample{cpuSample(1)}, nil)

	h := newHarness(t, cpu)
	testutil.RequireReceive(t, h.snapshots, 5*time.Second, "first snapshot")

	if err := h.stop(); err != context.Canceled {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}
