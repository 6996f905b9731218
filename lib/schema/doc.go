// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the data model shared by the collector and
// its consumers: samples, device descriptors, process records, and
// the per-cycle snapshot.
//
// Everything here crosses the feed socket as CBOR, so the types carry
// cbor struct tags and avoid fields that only make sense inside the
// collector process. Types are plain data — behavior lives in the
// packages that produce them (driver, gpu, collector).
package schema
