// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IsCardDevice returns true for DRM card device names (card0, card1,
// ...) but not connectors (card0-DP-1) or render nodes (renderD128).
func IsCardDevice(name string) bool {
	if !strings.HasPrefix(name, "card") {
		return false
	}
	suffix := name[4:]
	if len(suffix) == 0 {
		return false
	}
	for _, character := range suffix {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}

// ReadDriverName returns the kernel driver name for a PCI device by
// reading the basename of the "driver" symlink in the device
// directory.
func ReadDriverName(devicePath string) string {
	link, err := os.Readlink(filepath.Join(devicePath, "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

// ParsePCIUevent extracts the vendor ID, device ID, and PCI slot from
// a device's uevent file. The uevent file contains lines like:
//
//	PCI_ID=1002:744A
//	PCI_SLOT_NAME=0000:c3:00.0
//
// IDs are returned as lowercase hex without a prefix, matching the
// hardware database's key format.
func ParsePCIUevent(devicePath string) (vendorID, deviceID, pciSlot string) {
	data, err := os.ReadFile(filepath.Join(devicePath, "uevent"))
	if err != nil {
		return "", "", ""
	}

	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		switch key {
		case "PCI_ID":
			ids := strings.SplitN(value, ":", 2)
			if len(ids) == 2 {
				vendorID = strings.ToLower(ids[0])
				deviceID = strings.ToLower(ids[1])
			}
		case "PCI_SLOT_NAME":
			pciSlot = value
		}
	}
	return vendorID, deviceID, pciSlot
}

// ReadHwmonTemperature finds the first hwmon directory under the
// device path and reads temp1_input, in millidegrees Celsius. Returns
// false when the device exposes no thermal sensor.
func ReadHwmonTemperature(devicePath string) (int64, bool) {
	hwmonBase := filepath.Join(devicePath, "hwmon")
	entries, err := os.ReadDir(hwmonBase)
	if err != nil {
		return 0, false
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "hwmon") {
			continue
		}
		path := filepath.Join(hwmonBase, entry.Name(), "temp1_input")
		if value, err := ReadSysfsInt64(path); err == nil {
			return value, true
		}
	}
	return 0, false
}

// ReadSysfsString reads a single-line sysfs file and returns its
// trimmed content. Returns "" on any error.
func ReadSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ReadSysfsInt64 reads a 64-bit integer from a sysfs file.
func ReadSysfsInt64(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
