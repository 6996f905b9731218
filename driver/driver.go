// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package driver implements the hardware backend drivers: one driver
// per resource class (CPU, memory, disk, network, fan), each turning
// raw kernel interfaces into typed samples. Drivers are polled
// concurrently by the collector once per sampling cycle.
//
// Drivers never block past the context deadline the collector hands
// them, and they classify their failures: a transient error means the
// collector should carry forward the previous cycle's data and flag
// the device degraded, a device-gone error means the device should
// disappear from the snapshot entirely.
package driver

import (
	"context"
	"errors"

	"github.com/gaugeworks/gauge/lib/schema"
)

// ErrTransient marks a probe failure that is expected to clear on a
// later cycle (an EBUSY ioctl, a momentarily missing sysfs file). The
// collector keeps the device and carries its last samples forward.
var ErrTransient = errors.New("transient probe failure")

// ErrDeviceGone marks a device that is no longer present (hot-unplug,
// driver unbind). The collector drops the device from the snapshot
// and emits a removal event; it does not flag it degraded.
var ErrDeviceGone = errors.New("device no longer present")

// Driver is one hardware backend.
//
// Poll and Devices are called from the collector's cycle goroutines;
// implementations need no internal locking beyond what their own
// state requires, because the collector serializes calls per driver.
type Driver interface {
	// Name identifies the driver in logs.
	Name() string

	// Devices returns the devices currently backing this driver.
	// The set may change between cycles as hardware appears and
	// disappears; the collector diffs consecutive calls to emit
	// device added/removed events.
	Devices() []schema.DeviceDescriptor

	// Poll collects one cycle of samples. The returned samples carry
	// zero timestamps; the collector stamps them with the cycle
	// timestamp when merging. Poll must return promptly when ctx is
	// cancelled. Errors wrap ErrTransient or ErrDeviceGone when they
	// fit those classes; any other error is treated as transient.
	Poll(ctx context.Context) ([]schema.ResourceSample, error)
}
