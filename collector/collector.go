// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector implements the sampling scheduler: once per
// interval it fans a poll out across every backend driver, joins the
// results under a per-driver deadline, merges them into one coherent
// snapshot, and hands the snapshot to the history store and the feed.
//
// A driver that misses its deadline does not stall the cycle. Its
// previous samples are carried forward, its devices are flagged
// degraded, and its in-flight poll is left to finish in the
// background; the collector never runs two polls of the same driver
// concurrently.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gaugeworks/gauge/driver"
	"github.com/gaugeworks/gauge/history"
	"github.com/gaugeworks/gauge/lib/clock"
	"github.com/gaugeworks/gauge/lib/schema"
)

// Publisher receives each completed snapshot. The feed server
// implements this; tests substitute a channel-backed fake.
type Publisher interface {
	Publish(snapshot schema.Snapshot)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(schema.Snapshot)

func (f PublisherFunc) Publish(snapshot schema.Snapshot) { f(snapshot) }

// Options configures a Collector.
type Options struct {
	// Interval is the delay between cycle starts.
	Interval time.Duration

	// Deadline is how long a driver may run within one cycle before
	// its devices are flagged degraded. Must be shorter than
	// Interval.
	Deadline time.Duration

	// Drivers are the backend drivers to poll each cycle.
	Drivers []driver.Driver

	// Processes optionally enumerates the process table each cycle.
	Processes *driver.Process

	// Store receives every cycle's samples.
	Store *history.Store

	// Publisher receives every completed snapshot.
	Publisher Publisher

	Clock  clock.Clock
	Logger *slog.Logger
}

// pollResult is what one driver poll goroutine delivers.
type pollResult struct {
	samples []schema.ResourceSample
	devices []schema.DeviceDescriptor
	err     error
}

// driverState is the collector's bookkeeping for one driver.
type driverState struct {
	driver driver.Driver

	// inflight is non-nil while a poll goroutine is running. The
	// channel is buffered so a poll finishing after its deadline
	// never blocks.
	inflight chan pollResult

	// lastSamples and lastDevices are the most recent successful
	// poll, carried forward when the driver misses a deadline.
	lastSamples []schema.ResourceSample
	lastDevices []schema.DeviceDescriptor

	// degraded is true while the driver is timing out or failing.
	degraded bool
}

// Collector drives the sampling loop.
type Collector struct {
	interval  time.Duration
	deadline  time.Duration
	states    []*driverState
	processes *driver.Process
	store     *history.Store
	publisher Publisher
	clk       clock.Clock
	logger    *slog.Logger

	// known is the device set published last cycle, for add/remove
	// event diffing.
	known map[schema.DeviceID]bool

	cycle        uint64
	lastProcs    []schema.ProcessRecord
	procInflight chan procResult
}

type procResult struct {
	records []schema.ProcessRecord
	err     error
}

// New creates a Collector. The first cycle runs as soon as Run is
// called; subsequent cycles run once per interval.
func New(options Options) *Collector {
	states := make([]*driverState, 0, len(options.Drivers))
	for _, d := range options.Drivers {
		states = append(states, &driverState{driver: d})
	}
	return &Collector{
		interval:  options.Interval,
		deadline:  options.Deadline,
		states:    states,
		processes: options.Processes,
		store:     options.Store,
		publisher: options.Publisher,
		clk:       options.Clock,
		logger:    options.Logger,
		known:     map[schema.DeviceID]bool{},
	}
}

// Run executes sampling cycles until ctx is cancelled. It always
// returns ctx.Err().
func (c *Collector) Run(ctx context.Context) error {
	ticker := c.clk.NewTicker(c.interval)
	defer ticker.Stop()

	c.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// runCycle performs one Sampling → Merging → Publishing pass.
func (c *Collector) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := c.clk.Now()
	c.cycle++

	// Sampling: launch one goroutine per idle driver. Drivers whose
	// previous poll is still running are skipped; they stay degraded
	// until the straggler poll returns.
	for _, state := range c.states {
		if state.inflight != nil {
			// A straggler may have delivered since last cycle.
			select {
			case result := <-state.inflight:
				state.inflight = nil
				c.absorb(state, result)
			default:
				continue
			}
		}
		state.inflight = c.launch(ctx, state.driver)
	}
	if c.processes != nil && c.procInflight == nil {
		c.procInflight = c.launchProcesses(ctx)
	}

	// Join: one shared deadline for the whole cycle.
	deadlineCh := c.clk.After(c.deadline)
	expired := false
	for _, state := range c.states {
		if state.inflight == nil {
			continue
		}
		if !expired {
			select {
			case result := <-state.inflight:
				state.inflight = nil
				c.absorb(state, result)
				continue
			case <-deadlineCh:
				expired = true
			}
		}
		// Deadline passed: take the result only if it is already
		// waiting.
		select {
		case result := <-state.inflight:
			state.inflight = nil
			c.absorb(state, result)
		default:
			if !state.degraded {
				c.logger.Warn("driver missed cycle deadline",
					"driver", state.driver.Name(),
					"deadline", c.deadline)
			}
			state.degraded = true
		}
	}
	if c.procInflight != nil {
		c.joinProcesses(deadlineCh, expired)
	}

	c.merge(started)
}

// launch starts one driver poll. The context is bounded by the
// sampling interval so an abandoned straggler cannot run forever.
func (c *Collector) launch(ctx context.Context, d driver.Driver) chan pollResult {
	resultCh := make(chan pollResult, 1)
	go func() {
		pollCtx, cancel := context.WithTimeout(ctx, c.interval)
		defer cancel()
		samples, err := d.Poll(pollCtx)
		resultCh <- pollResult{
			samples: samples,
			devices: d.Devices(),
			err:     err,
		}
	}()
	return resultCh
}

func (c *Collector) launchProcesses(ctx context.Context) chan procResult {
	resultCh := make(chan procResult, 1)
	go func() {
		pollCtx, cancel := context.WithTimeout(ctx, c.interval)
		defer cancel()
		records, err := c.processes.Snapshot(pollCtx)
		resultCh <- procResult{records: records, err: err}
	}()
	return resultCh
}

func (c *Collector) joinProcesses(deadlineCh <-chan time.Time, expired bool) {
	if !expired {
		select {
		case result := <-c.procInflight:
			c.procInflight = nil
			c.absorbProcesses(result)
			return
		case <-deadlineCh:
		}
	}
	select {
	case result := <-c.procInflight:
		c.procInflight = nil
		c.absorbProcesses(result)
	default:
		c.logger.Warn("process enumeration missed cycle deadline")
	}
}

func (c *Collector) absorbProcesses(result procResult) {
	if result.err != nil {
		c.logger.Warn("process enumeration failed", "error", result.err)
		return
	}
	c.lastProcs = result.records
}

// absorb folds one completed poll into the driver's state.
func (c *Collector) absorb(state *driverState, result pollResult) {
	switch {
	case result.err == nil:
		if state.degraded {
			c.logger.Info("driver recovered", "driver", state.driver.Name())
		}
		state.lastSamples = result.samples
		state.lastDevices = result.devices
		state.degraded = false

	case errors.Is(result.err, driver.ErrDeviceGone):
		// The hardware left. Drop it cleanly: no carry-forward, no
		// degraded flag. The device diff emits the removal event.
		c.logger.Info("driver reports device gone",
			"driver", state.driver.Name(),
			"error", result.err)
		state.lastSamples = nil
		state.lastDevices = result.devices
		state.degraded = false

	default:
		if !state.degraded {
			c.logger.Warn("driver poll failed, carrying previous samples forward",
				"driver", state.driver.Name(),
				"error", result.err)
		}
		state.degraded = true
	}
}

// merge assembles and publishes the cycle's snapshot.
func (c *Collector) merge(started time.Time) {
	timestampMillis := started.UnixMilli()

	snapshot := schema.Snapshot{
		Cycle:           c.cycle,
		TimestampMillis: timestampMillis,
		WindowMillis:    c.clk.Now().Sub(started).Milliseconds(),
		Processes:       c.lastProcs,
	}

	current := map[schema.DeviceID]bool{}
	for _, state := range c.states {
		for _, device := range state.lastDevices {
			snapshot.Devices = append(snapshot.Devices, device)
			current[device.DeviceID] = true
			if state.degraded {
				snapshot.Degraded = append(snapshot.Degraded, device.DeviceID)
			}
		}
		for _, sample := range state.lastSamples {
			sample.TimestampMillis = timestampMillis
			snapshot.Samples = append(snapshot.Samples, sample)
		}
	}

	for id := range current {
		if !c.known[id] {
			snapshot.Events = append(snapshot.Events, schema.DeviceEvent{
				Kind:            schema.DeviceAdded,
				DeviceID:        id,
				TimestampMillis: timestampMillis,
			})
		}
	}
	for id := range c.known {
		if !current[id] {
			snapshot.Events = append(snapshot.Events, schema.DeviceEvent{
				Kind:            schema.DeviceRemoved,
				DeviceID:        id,
				TimestampMillis: timestampMillis,
			})
		}
	}
	c.known = current

	c.store.Append(snapshot.Samples)
	c.publisher.Publish(snapshot)
}
