// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwdb implements the hardware identification layer: a static
// lookup from (vendor ID, model ID) to a human-readable device name
// and declared capability flags.
//
// The database is a versioned text file loaded once at startup and
// immutable afterwards, so concurrent reads from backend drivers need
// no locking. A missing database is not an error condition for the
// collector — every lookup falls back to a deterministic name built
// from the raw numeric IDs.
//
// # File format
//
// Line-oriented, UTF-8, "#" comments. The first non-comment line is
// the header: the literal token "gauge-hwdb" followed by the version.
// Every following non-blank line is one entry:
//
//	gauge-hwdb 1
//	# vendor model "display name" capabilities
//	10de 2684 "NVIDIA GeForce RTX 4090" util,vram,enc,dec,power,temp
//	8086 56a0 "Intel Arc A770" util,enc,dec
//	1af4 1000 "Virtio network device" none
//
// Vendor and model IDs are lowercase hex without a 0x prefix. The
// capability column is a comma-separated list of capability names, or
// "none".
package hwdb

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/gaugeworks/gauge/lib/schema"
)

// Entry is one resolved hardware database entry.
type Entry struct {
	// DisplayName is the human-readable device name, or the numeric
	// fallback when the database has no entry for the queried IDs.
	DisplayName string

	// Capabilities are the declared capability flags for the device,
	// zero for unknown devices.
	Capabilities schema.CapabilitySet

	// Known reports whether the entry came from the database (true)
	// or is a fallback (false).
	Known bool
}

type entryKey struct {
	vendorID string
	modelID  string
}

// DB is an immutable hardware database. All methods are safe for
// unsynchronized concurrent use after Load returns.
type DB struct {
	version string
	digest  string
	entries map[entryKey]Entry
}

// Empty returns a database with no entries. Every Resolve call falls
// back to numeric IDs. Used when no database file is configured or
// the configured file does not exist.
func Empty() *DB {
	return &DB{entries: map[entryKey]Entry{}}
}

// Load reads and parses a hardware database file. Returns an error if
// the file cannot be read or is malformed; callers decide whether a
// missing file is fatal (the collector treats it as fallback, not
// failure).
func Load(path string) (*DB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hardware database %s: %w", path, err)
	}

	db, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing hardware database %s: %w", path, err)
	}

	digest := blake3.Sum256(data)
	db.digest = hex.EncodeToString(digest[:])
	return db, nil
}

// parse builds a DB from raw database file contents.
func parse(data []byte) (*DB, error) {
	db := &DB{entries: map[entryKey]Entry{}}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lineNumber := 0
	sawHeader := false

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !sawHeader {
			fields := strings.Fields(line)
			if len(fields) != 2 || fields[0] != "gauge-hwdb" {
				return nil, fmt.Errorf("line %d: expected header \"gauge-hwdb <version>\", got %q", lineNumber, line)
			}
			db.version = fields[1]
			sawHeader = true
			continue
		}

		entry, key, err := parseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		db.entries[key] = entry
	}

	if !sawHeader {
		return nil, fmt.Errorf("missing \"gauge-hwdb <version>\" header")
	}
	return db, nil
}

// parseEntry parses one entry line: vendor, model, quoted display
// name, capability list.
func parseEntry(line string) (Entry, entryKey, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Entry{}, entryKey{}, fmt.Errorf("expected vendor, model, name, capabilities, got %q", line)
	}

	vendorID := strings.ToLower(fields[0])
	modelID := strings.ToLower(fields[1])

	rest := strings.TrimSpace(line[len(fields[0])+len(fields[1])+2:])
	if !strings.HasPrefix(rest, `"`) {
		return Entry{}, entryKey{}, fmt.Errorf("display name must be quoted in %q", line)
	}
	closing := strings.Index(rest[1:], `"`)
	if closing < 0 {
		return Entry{}, entryKey{}, fmt.Errorf("unterminated display name in %q", line)
	}
	displayName := rest[1 : 1+closing]
	capsField := strings.TrimSpace(rest[closing+2:])

	var capabilities schema.CapabilitySet
	if capsField != "" && capsField != "none" {
		for name := range strings.SplitSeq(capsField, ",") {
			capability, err := schema.ParseCapability(strings.TrimSpace(name))
			if err != nil {
				return Entry{}, entryKey{}, err
			}
			capabilities = capabilities.With(capability)
		}
	}

	return Entry{
			DisplayName:  displayName,
			Capabilities: capabilities,
			Known:        true,
		}, entryKey{
			vendorID: vendorID,
			modelID:  modelID,
		}, nil
}

// Resolve looks up a (vendor ID, model ID) pair. IDs are normalized
// to lowercase before lookup. Unknown pairs return a deterministic
// fallback entry whose display name contains the raw IDs — Resolve
// never fails.
func (db *DB) Resolve(vendorID, modelID string) Entry {
	key := entryKey{
		vendorID: strings.ToLower(vendorID),
		modelID:  strings.ToLower(modelID),
	}
	if entry, ok := db.entries[key]; ok {
		return entry
	}
	return Entry{
		DisplayName: FallbackName(vendorID, modelID),
	}
}

// FallbackName is the deterministic display name for devices the
// database does not know: the raw numeric IDs, so the device remains
// identifiable to a user searching vendor documentation.
func FallbackName(vendorID, modelID string) string {
	if vendorID == "" && modelID == "" {
		return "Unknown device"
	}
	return fmt.Sprintf("Device %s:%s", strings.ToLower(vendorID), strings.ToLower(modelID))
}

// Version returns the version token from the database header, or ""
// for an empty database.
func (db *DB) Version() string { return db.version }

// Digest returns the BLAKE3 hex digest of the database file contents,
// or "" for an empty database. Surfaced through MachineInfo so a
// consumer can tell which database build the collector is running.
func (db *DB) Digest() string { return db.digest }

// Len returns the number of entries.
func (db *DB) Len() int { return len(db.entries) }
