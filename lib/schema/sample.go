// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// MetricID identifies one time series. The convention is
// "<class>.<field>" for system-wide metrics ("cpu.utilization",
// "mem.used_bytes") and "<class>.<field>.<device>" for per-device
// metrics ("net.rx_rate.eth0", "gpu.vram_used.card0"). Consumers
// treat the ID as opaque; the convention exists so history queries
// and dashboards stay readable.
type MetricID string

// PerDevice derives a per-device metric ID from a base metric and a
// device. PerDevice("disk.read_rate", "nvme0n1") = "disk.read_rate.nvme0n1".
func PerDevice(base MetricID, device DeviceID) MetricID {
	return base + "." + MetricID(device)
}

// Unit tags a sample value so consumers can format it without
// guessing. Units are wire constants — renaming one breaks recorded
// history.
type Unit string

const (
	UnitPercent        Unit = "percent"
	UnitBytes          Unit = "bytes"
	UnitBytesPerSecond Unit = "bytes_per_second"
	UnitMillidegreesC  Unit = "millidegrees_c"
	UnitRPM            Unit = "rpm"
	UnitWatts          Unit = "watts"
	UnitMegahertz      Unit = "mhz"
	UnitCount          Unit = "count"
)

// Value is a unit-tagged measurement. Available distinguishes "we
// measured zero" from "this backend cannot measure this" — a GPU
// without a power sensor reports Available false, never 0 watts.
type Value struct {
	Raw       float64 `cbor:"raw"`
	Unit      Unit    `cbor:"unit"`
	Available bool    `cbor:"available"`
}

// Measured returns an available Value.
func Measured(raw float64, unit Unit) Value {
	return Value{Raw: raw, Unit: unit, Available: true}
}

// Unavailable returns a Value tagged as not measurable. The unit is
// kept so consumers know what the field would have been.
func Unavailable(unit Unit) Value {
	return Value{Unit: unit}
}

// ResourceSample is one timestamped measurement of one metric.
// Timestamps are Unix milliseconds; all samples in a snapshot carry
// the snapshot's cycle timestamp, not the wall-clock instant the
// underlying counter was read (drivers finish at slightly different
// times within the cycle window).
type ResourceSample struct {
	MetricID        MetricID `cbor:"metric_id"`
	TimestampMillis int64    `cbor:"ts"`
	Value           Value    `cbor:"value"`

	// DeviceID is the producing device, empty for system-wide
	// metrics (e.g. aggregate CPU utilization).
	DeviceID DeviceID `cbor:"device_id,omitempty"`
}
