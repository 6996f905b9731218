// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// ProcessRecord describes one running process at snapshot time.
// Records are owned by their snapshot and replaced wholesale each
// cycle — there is no persistent process identity. ParentPID is a
// weak reference: the parent may already be gone. PID reuse across
// cycles is detected by comparing StartTimeMillis: same PID with a
// different start time is a different process.
type ProcessRecord struct {
	PID       int32  `cbor:"pid"`
	ParentPID int32  `cbor:"parent_pid"`
	Name      string `cbor:"name"`

	ThreadCount int32 `cbor:"threads"`

	// HandleCount is the number of open file descriptors.
	HandleCount int32 `cbor:"handles"`

	// CPUPercent is the process's share of total CPU over the last
	// sampling interval (0-100 per core, so a 4-thread busy loop on
	// 4 cores reports 400).
	CPUPercent float64 `cbor:"cpu_percent"`

	// MemoryBytes is resident set size.
	MemoryBytes uint64 `cbor:"memory_bytes"`

	StartTimeMillis int64 `cbor:"start_time"`
}

// Snapshot is the atomic unit produced per sampling cycle: everything
// the collector measured, timestamped with one cycle window. A
// snapshot is internally consistent — all samples share the cycle
// timestamp — and is never partially published.
type Snapshot struct {
	// Cycle is a monotonically increasing cycle counter, starting at
	// 1 for the first published snapshot.
	Cycle uint64 `cbor:"cycle"`

	// TimestampMillis is the cycle start time (Unix milliseconds).
	// Every sample in Samples carries this timestamp.
	TimestampMillis int64 `cbor:"ts"`

	// WindowMillis is the width of the sampling window: how long the
	// slowest contributing driver took, bounded by the per-cycle
	// deadline.
	WindowMillis int64 `cbor:"window"`

	Devices   []DeviceDescriptor `cbor:"devices"`
	Samples   []ResourceSample   `cbor:"samples"`
	Processes []ProcessRecord    `cbor:"processes,omitempty"`

	// Degraded lists devices whose driver missed the cycle deadline;
	// their Samples entries are the prior cycle's values. Consumers
	// should render these as stale/unavailable rather than fresh.
	Degraded []DeviceID `cbor:"degraded,omitempty"`

	// Events carries device lifecycle events observed this cycle.
	Events []DeviceEvent `cbor:"events,omitempty"`
}

// MachineInfo is static machine inventory, probed once at startup and
// returned with the device list. It never changes for the collector's
// lifetime.
type MachineInfo struct {
	Hostname      string `cbor:"hostname"`
	KernelVersion string `cbor:"kernel_version,omitempty"`
	CPUModel      string `cbor:"cpu_model,omitempty"`
	CPUCores      int    `cbor:"cpu_cores,omitempty"`
	CPUThreads    int    `cbor:"cpu_threads,omitempty"`
	MemoryTotalMB int    `cbor:"memory_total_mb,omitempty"`
	SwapTotalMB   int    `cbor:"swap_total_mb,omitempty"`

	// HardwareDBVersion and HardwareDBDigest describe the hardware
	// database the collector loaded: the version line from the file
	// and the BLAKE3 hex digest of its contents. Both empty when the
	// collector is running on numeric-ID fallback (no database).
	HardwareDBVersion string `cbor:"hwdb_version,omitempty"`
	HardwareDBDigest  string `cbor:"hwdb_digest,omitempty"`
}
