// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import "time"

// rateTracker derives a per-second rate from a monotonically
// increasing kernel counter (bytes read, bytes transmitted). The
// first observation only seeds the tracker; a counter that moves
// backwards (driver reload, counter wrap) reseeds instead of
// producing a negative rate.
type rateTracker struct {
	lastValue uint64
	lastTime  time.Time
	seeded    bool
}

// update records a counter observation and returns the rate since the
// previous one in units per second. ok is false when no rate can be
// derived yet (first observation, counter reset, or zero elapsed
// time).
func (r *rateTracker) update(value uint64, now time.Time) (rate float64, ok bool) {
	defer func() {
		r.lastValue = value
		r.lastTime = now
		r.seeded = true
	}()

	if !r.seeded || value < r.lastValue {
		return 0, false
	}
	elapsed := now.Sub(r.lastTime).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	return float64(value-r.lastValue) / elapsed, true
}
