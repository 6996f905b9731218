// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Gauge packages.
package testutil
