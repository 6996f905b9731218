// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Gauge's standard CBOR encoding configuration.
//
// Gauge uses CBOR for everything that crosses the collector's process
// boundary: snapshot updates on the feed socket, history and device
// queries, and the feed protocol envelopes. A compact binary encoding
// matters here because a full snapshot (per-core samples plus a
// complete process list) is pushed once per sampling cycle.
//
// This package provides the shared encoding and decoding modes so that
// every Gauge package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC
// 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
