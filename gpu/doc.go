// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package gpu multiplexes vendor-specific GPU backends behind the
// common driver interface. Each backend enumerates the cards its
// kernel driver manages and samples whatever that driver exposes;
// metrics a vendor cannot supply are reported as unavailable rather
// than zero, and the device descriptor's capability flags tell
// consumers which metrics to expect.
package gpu
