// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo probes static machine inventory: hostname, kernel
// release, CPU model and topology, and memory totals. The inventory
// never changes for the collector's lifetime, so it is probed once at
// startup and served with the device list.
package hwinfo

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gaugeworks/gauge/lib/hwdb"
	"github.com/gaugeworks/gauge/lib/schema"
)

// Probe collects static system inventory. The hardware database's
// version and digest are folded in so consumers can tell which
// identification data the collector is running on.
//
// Probe never returns an error — missing or unreadable files produce
// zero-valued fields. A minimal VM with no readable topology is a
// valid machine that should still report its hostname and memory.
func Probe(db *hwdb.DB) schema.MachineInfo {
	return probeFrom(db, "/proc", "/sys")
}

// probeFrom is the testable implementation of Probe. It accepts root
// paths for /proc and /sys so tests can point at synthetic trees.
func probeFrom(db *hwdb.DB, procRoot, sysRoot string) schema.MachineInfo {
	info := schema.MachineInfo{
		HardwareDBVersion: db.Version(),
		HardwareDBDigest:  db.Digest(),
	}

	info.Hostname, _ = os.Hostname()
	info.KernelVersion = readKernelVersion()
	info.CPUModel = readCPUModel(filepath.Join(procRoot, "cpuinfo"))
	info.CPUCores = countPhysicalCores(filepath.Join(sysRoot, "devices/system/cpu"))
	info.CPUThreads = countThreads(filepath.Join(sysRoot, "devices/system/cpu"))
	info.MemoryTotalMB, info.SwapTotalMB = probeMemory()

	return info
}

// readKernelVersion returns the kernel release string from uname(2).
func readKernelVersion() string {
	var utsname syscall.Utsname
	if err := syscall.Uname(&utsname); err != nil {
		return ""
	}
	return utsNameToString(utsname.Release)
}

// utsNameToString converts a [65]int8 from syscall.Utsname to a Go
// string, stopping at the first null byte.
func utsNameToString(field [65]int8) string {
	var buffer []byte
	for _, value := range field {
		if value == 0 {
			break
		}
		buffer = append(buffer, byte(value))
	}
	return string(buffer)
}

// readCPUModel extracts the first "model name" line from /proc/cpuinfo.
func readCPUModel(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "model name") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}

// cpuDirs returns the cpuN directory names under the cpu sysfs base,
// skipping cpufreq, cpuidle, and the other non-CPU entries.
func cpuDirs(cpuBase string) []string {
	entries, err := os.ReadDir(cpuBase)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		suffix := name[3:]
		if len(suffix) == 0 || suffix[0] < '0' || suffix[0] > '9' {
			continue
		}
		names = append(names, name)
	}
	return names
}

// countPhysicalCores counts unique (physical_package_id, core_id)
// pairs across all CPUs: the total core count across all sockets.
// Core IDs repeat across sockets, so the pair is the identity.
func countPhysicalCores(cpuBase string) int {
	type coreKey struct {
		packageID string
		coreID    string
	}
	unique := make(map[coreKey]struct{})

	for _, name := range cpuDirs(cpuBase) {
		topologyDir := filepath.Join(cpuBase, name, "topology")
		packageID := readSysfsString(filepath.Join(topologyDir, "physical_package_id"))
		coreID := readSysfsString(filepath.Join(topologyDir, "core_id"))
		if packageID != "" && coreID != "" {
			unique[coreKey{packageID, coreID}] = struct{}{}
		}
	}
	return len(unique)
}

// countThreads counts the online logical CPUs.
func countThreads(cpuBase string) int {
	return len(cpuDirs(cpuBase))
}

// probeMemory reads total RAM and swap from sysinfo(2).
func probeMemory() (memoryTotalMB, swapTotalMB int) {
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		return 0, 0
	}
	unit := uint64(info.Unit)
	memoryTotalMB = int(uint64(info.Totalram) * unit / (1024 * 1024))
	swapTotalMB = int(uint64(info.Totalswap) * unit / (1024 * 1024))
	return memoryTotalMB, swapTotalMB
}

// readSysfsString reads a sysfs attribute and trims trailing
// whitespace. Returns "" when the file is missing or unreadable.
func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
