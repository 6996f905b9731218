// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gaugeworks/gauge/lib/hwdb"
)

// writeCPU creates a synthetic cpuN topology directory.
func writeCPU(t *testing.T, cpuBase string, n int, packageID, coreID string) {
	t.Helper()
	topologyDir := filepath.Join(cpuBase, "cpu"+string(rune('0'+n)), "topology")
	if err := os.MkdirAll(topologyDir, 0o755); err != nil {
		t.Fatalf("creating topology dir: %v", err)
	}
	writeFile(t, filepath.Join(topologyDir, "physical_package_id"), packageID)
	writeFile(t, filepath.Join(topologyDir, "core_id"), coreID)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestProbeSyntheticTopology(t *testing.T) {
	t.Parallel()

	procRoot := t.TempDir()
	sysRoot := t.TempDir()

	writeFile(t, filepath.Join(procRoot, "cpuinfo"),
		"processor\t: 0\nmodel name\t: AMD Ryzen 7 5800X 8-Core Processor\nflags\t: fpu vme")

	// Two cores, two threads each: cpu0/cpu1 share core 0, cpu2/cpu3
	// share core 1.
	cpuBase := filepath.Join(sysRoot, "devices/system/cpu")
	writeCPU(t, cpuBase, 0, "0", "0")
	writeCPU(t, cpuBase, 1, "0", "0")
	writeCPU(t, cpuBase, 2, "0", "1")
	writeCPU(t, cpuBase, 3, "0", "1")
	// Non-CPU entries in the same directory are skipped.
	if err := os.MkdirAll(filepath.Join(cpuBase, "cpufreq"), 0o755); err != nil {
		t.Fatalf("creating cpufreq dir: %v", err)
	}

	info := probeFrom(hwdb.Empty(), procRoot, sysRoot)

	if info.CPUModel != "AMD Ryzen 7 5800X 8-Core Processor" {
		t.Errorf("CPUModel = %q", info.CPUModel)
	}
	if info.CPUCores != 2 {
		t.Errorf("CPUCores = %d, want 2", info.CPUCores)
	}
	if info.CPUThreads != 4 {
		t.Errorf("CPUThreads = %d, want 4", info.CPUThreads)
	}
	if info.Hostname == "" {
		t.Error("Hostname is empty")
	}
	if info.HardwareDBVersion != "" || info.HardwareDBDigest != "" {
		t.Errorf("empty database reported version %q digest %q",
			info.HardwareDBVersion, info.HardwareDBDigest)
	}
}

func TestProbeMissingFilesNonFatal(t *testing.T) {
	t.Parallel()

	// Empty roots: everything file-derived is zero-valued, nothing
	// panics or errors.
	info := probeFrom(hwdb.Empty(), t.TempDir(), t.TempDir())

	if info.CPUModel != "" {
		t.Errorf("CPUModel = %q, want empty", info.CPUModel)
	}
	if info.CPUCores != 0 || info.CPUThreads != 0 {
		t.Errorf("cores=%d threads=%d, want 0/0", info.CPUCores, info.CPUThreads)
	}
	// sysinfo(2) still works regardless of the synthetic roots.
	if info.MemoryTotalMB <= 0 {
		t.Errorf("MemoryTotalMB = %d, want positive", info.MemoryTotalMB)
	}
}

func TestProbeReportsDatabaseIdentity(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hw.db")
	writeFile(t, path, `gauge-hwdb 1
10de 2684 "NVIDIA GeForce RTX 4090" util,vram`)

	db, err := hwdb.Load(path)
	if err != nil {
		t.Fatalf("loading database: %v", err)
	}

	info := probeFrom(db, t.TempDir(), t.TempDir())
	if info.HardwareDBVersion != db.Version() {
		t.Errorf("HardwareDBVersion = %q, want %q", info.HardwareDBVersion, db.Version())
	}
	if info.HardwareDBDigest == "" {
		t.Error("HardwareDBDigest is empty for a loaded database")
	}
}
