// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsCardDevice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want bool
	}{
		{"card0", true},
		{"card12", true},
		{"card0-DP-1", false},
		{"renderD128", false},
		{"card", false},
		{"version", false},
	}
	for _, tc := range cases {
		if got := IsCardDevice(tc.name); got != tc.want {
			t.Errorf("IsCardDevice(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParsePCIUevent(t *testing.T) {
	t.Parallel()

	devicePath := t.TempDir()
	uevent := "DRIVER=amdgpu\nPCI_CLASS=30000\nPCI_ID=1002:744A\nPCI_SLOT_NAME=0000:c3:00.0\n"
	if err := os.WriteFile(filepath.Join(devicePath, "uevent"), []byte(uevent), 0o644); err != nil {
		t.Fatalf("writing uevent: %v", err)
	}

	vendorID, deviceID, pciSlot := ParsePCIUevent(devicePath)
	if vendorID != "1002" {
		t.Errorf("vendorID = %q, want 1002", vendorID)
	}
	// IDs are lowercased to match hardware database keys.
	if deviceID != "744a" {
		t.Errorf("deviceID = %q, want 744a", deviceID)
	}
	if pciSlot != "0000:c3:00.0" {
		t.Errorf("pciSlot = %q, want 0000:c3:00.0", pciSlot)
	}
}

func TestParsePCIUeventMissing(t *testing.T) {
	t.Parallel()

	vendorID, deviceID, pciSlot := ParsePCIUevent(t.TempDir())
	if vendorID != "" || deviceID != "" || pciSlot != "" {
		t.Errorf("got %q/%q/%q for missing uevent, want empty", vendorID, deviceID, pciSlot)
	}
}

func TestReadHwmonTemperature(t *testing.T) {
	t.Parallel()

	devicePath := t.TempDir()
	hwmonDir := filepath.Join(devicePath, "hwmon", "hwmon3")
	if err := os.MkdirAll(hwmonDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hwmonDir, "temp1_input"), []byte("54000\n"), 0o644); err != nil {
		t.Fatalf("writing temp: %v", err)
	}

	value, ok := ReadHwmonTemperature(devicePath)
	if !ok || value != 54000 {
		t.Errorf("ReadHwmonTemperature = %d, %v, want 54000, true", value, ok)
	}

	if _, ok := ReadHwmonTemperature(t.TempDir()); ok {
		t.Error("ReadHwmonTemperature reported a value without hwmon")
	}
}
