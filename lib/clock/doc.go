// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.After, time.NewTicker, or time.Sleep directly. In
// production, Real() provides the standard library behavior. In tests,
// Fake() provides a deterministic clock that advances only when Advance
// is called.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Scheduler struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	s := &Scheduler{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := &Scheduler{clock: c}
//	// ... start goroutines ...
//	c.WaitForTimers(1)         // wait for the loop to register its ticker
//	c.Advance(1 * time.Second) // fire a sampling cycle deterministically
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock, it
// registers a pending timer. Use WaitForTimers to block until a
// specific number of timers are registered before calling Advance.
// This eliminates the race between timer registration and time
// advancement that plagues tests using time.Sleep for synchronization.
package clock
