// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package hwdb

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gaugeworks/gauge/lib/schema"
)

const sampleDB = `# Gauge hardware database (test fixture)
gauge-hwdb 1

10de 2684 "NVIDIA GeForce RTX 4090" util,vram,enc,dec,power,temp
1002 744c "AMD Radeon RX 7900 XT" util,vram,enc,dec,power,temp,fan
8086 56a0 "Intel Arc A770" util,enc,dec
1af4 1000 "Virtio network device" none
`

func writeDB(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gauge.hwdb")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing database fixture: %v", err)
	}
	return path
}

func TestLoadAndResolve(t *testing.T) {
	t.Parallel()

	db, err := Load(writeDB(t, sampleDB))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := db.Version(), "1"; got != want {
		t.Errorf("Version() = %q, want %q", got, want)
	}
	if got, want := db.Len(), 4; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
	if db.Digest() == "" {
		t.Error("Digest() is empty, want BLAKE3 hex digest")
	}

	entry := db.Resolve("10de", "2684")
	if !entry.Known {
		t.Fatal("Resolve(10de, 2684): Known = false, want true")
	}
	if got, want := entry.DisplayName, "NVIDIA GeForce RTX 4090"; got != want {
		t.Errorf("DisplayName = %q, want %q", got, want)
	}
	for _, capability := range []schema.Capability{
		schema.CapUtilization, schema.CapVRAM, schema.CapEncode,
		schema.CapDecode, schema.CapPower, schema.CapTemperature,
	} {
		if !entry.Capabilities.Has(capability) {
			t.Errorf("Capabilities missing %v", capability)
		}
	}
	if entry.Capabilities.Has(schema.CapFanSpeed) {
		t.Error("Capabilities has fan, want absent")
	}
}

func TestResolveNormalizesCase(t *testing.T) {
	t.Parallel()

	db, err := Load(writeDB(t, sampleDB))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entry := db.Resolve("10DE", "2684")
	if !entry.Known {
		t.Error("Resolve with uppercase vendor ID: Known = false, want true")
	}
}

func TestResolveNoneCapabilities(t *testing.T) {
	t.Parallel()

	db, err := Load(writeDB(t, sampleDB))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entry := db.Resolve("1af4", "1000")
	if !entry.Known {
		t.Fatal("Known = false, want true")
	}
	if entry.Capabilities != 0 {
		t.Errorf("Capabilities = %v, want none", entry.Capabilities)
	}
}

func TestResolveUnknownFallsBack(t *testing.T) {
	t.Parallel()

	db, err := Load(writeDB(t, sampleDB))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entry := db.Resolve("ABCD", "ef01")
	if entry.Known {
		t.Error("Known = true for unknown device, want false")
	}
	// The fallback must carry the raw IDs so the device stays
	// identifiable without a database entry.
	if !strings.Contains(entry.DisplayName, "abcd") || !strings.Contains(entry.DisplayName, "ef01") {
		t.Errorf("fallback DisplayName = %q, want it to contain both IDs", entry.DisplayName)
	}

	// Fallback is deterministic across calls.
	again := db.Resolve("abcd", "EF01")
	if again.DisplayName != entry.DisplayName {
		t.Errorf("fallback not deterministic: %q then %q", entry.DisplayName, again.DisplayName)
	}
}

func TestEmptyDatabase(t *testing.T) {
	t.Parallel()

	db := Empty()
	if got, want := db.Len(), 0; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
	entry := db.Resolve("8086", "56a0")
	if entry.Known {
		t.Error("Known = true on empty database, want false")
	}
	if got, want := entry.DisplayName, "Device 8086:56a0"; got != want {
		t.Errorf("DisplayName = %q, want %q", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.hwdb"))
	if err == nil {
		t.Fatal("Load on missing file: err = nil, want error")
	}
	// Callers inspect the wrapped error to decide whether the miss
	// is fatal, so it must unwrap to fs.ErrNotExist.
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load error %v does not unwrap to fs.ErrNotExist", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		contents string
	}{
		{"missing header", `10de 2684 "GPU" util` + "\n"},
		{"wrong header token", "gauge-db 1\n"},
		{"unquoted name", "gauge-hwdb 1\n10de 2684 GPU util\n"},
		{"unterminated name", "gauge-hwdb 1\n10de 2684 \"GPU util\n"},
		{"unknown capability", "gauge-hwdb 1\n10de 2684 \"GPU\" warp\n"},
		{"too few fields", "gauge-hwdb 1\n10de\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Load(writeDB(t, tc.contents)); err == nil {
				t.Errorf("Load: err = nil, want parse error")
			}
		})
	}
}

func TestDigestChangesWithContents(t *testing.T) {
	t.Parallel()

	a, err := Load(writeDB(t, sampleDB))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := Load(writeDB(t, sampleDB+"\n# trailing comment\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Digest() == b.Digest() {
		t.Error("digests equal for different file contents")
	}
}
