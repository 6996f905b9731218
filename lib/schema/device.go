// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// DeviceID identifies a physical or logical resource within one
// collector session: a CPU package, a disk, a NIC, a GPU card, a fan.
// IDs are stable for the session (derived from kernel names like
// "nvme0n1", "eth0", "card0") but carry no meaning across reboots or
// hot-plug cycles.
type DeviceID string

// DeviceClass groups devices by resource type.
type DeviceClass string

const (
	ClassCPU     DeviceClass = "cpu"
	ClassMemory  DeviceClass = "memory"
	ClassDisk    DeviceClass = "disk"
	ClassNetwork DeviceClass = "network"
	ClassGPU     DeviceClass = "gpu"
	ClassFan     DeviceClass = "fan"
)

// Capability is a declared support bit: whether a device's backend can
// supply a particular metric. Capabilities are declared by the backend
// driver, not inferred from sample presence, so a consumer can render
// "not measurable" before the first sample arrives.
type Capability uint32

const (
	CapUtilization Capability = 1 << iota
	CapVRAM
	CapEncode
	CapDecode
	CapPower
	CapTemperature
	CapFanSpeed
)

// CapabilitySet is a bitset of Capability flags.
type CapabilitySet uint32

// Has reports whether the set contains capability c.
func (s CapabilitySet) Has(c Capability) bool {
	return uint32(s)&uint32(c) != 0
}

// With returns the set extended with capability c.
func (s CapabilitySet) With(c Capability) CapabilitySet {
	return CapabilitySet(uint32(s) | uint32(c))
}

// capabilityNames is ordered to match the Capability bit positions.
var capabilityNames = []struct {
	bit  Capability
	name string
}{
	{CapUtilization, "util"},
	{CapVRAM, "vram"},
	{CapEncode, "enc"},
	{CapDecode, "dec"},
	{CapPower, "power"},
	{CapTemperature, "temp"},
	{CapFanSpeed, "fan"},
}

// String returns the comma-separated capability names, or "none".
func (s CapabilitySet) String() string {
	result := ""
	for _, entry := range capabilityNames {
		if !s.Has(entry.bit) {
			continue
		}
		if result != "" {
			result += ","
		}
		result += entry.name
	}
	if result == "" {
		return "none"
	}
	return result
}

// ParseCapability maps a capability name (as produced by String) back
// to its bit. Returns an error for unknown names — the hardware
// database loader uses this to reject malformed entries rather than
// silently dropping capabilities.
func ParseCapability(name string) (Capability, error) {
	for _, entry := range capabilityNames {
		if entry.name == name {
			return entry.bit, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// DeviceDescriptor identifies one monitored device. Descriptors are
// rebuilt from driver enumeration every cycle; a device that
// disappears is simply absent from the next snapshot's Devices list.
type DeviceDescriptor struct {
	DeviceID DeviceID    `cbor:"device_id"`
	Class    DeviceClass `cbor:"class"`

	// VendorID and ModelID are lowercase hex PCI-style identifiers
	// where the underlying interface provides them ("10de", "2684"),
	// empty otherwise.
	VendorID string `cbor:"vendor_id,omitempty"`
	ModelID  string `cbor:"model_id,omitempty"`

	// DisplayName is the human-readable name resolved through the
	// hardware database, or the deterministic fallback when the
	// database has no entry.
	DisplayName string `cbor:"display_name"`

	// Capabilities declares which metrics this device's backend can
	// supply.
	Capabilities CapabilitySet `cbor:"capabilities"`
}

// DeviceEventKind classifies device lifecycle events.
type DeviceEventKind string

const (
	// DeviceAdded is recorded when enumeration finds a device that
	// was not present in the previous cycle (including the first
	// cycle after startup).
	DeviceAdded DeviceEventKind = "added"

	// DeviceRemoved is recorded exactly once when a previously
	// enumerated device vanishes (hot-unplug).
	DeviceRemoved DeviceEventKind = "removed"
)

// DeviceEvent is an informational device lifecycle event carried in
// the snapshot that observed it.
type DeviceEvent struct {
	Kind            DeviceEventKind `cbor:"kind"`
	DeviceID        DeviceID        `cbor:"device_id"`
	TimestampMillis int64           `cbor:"ts"`
}
