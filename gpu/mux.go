// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaugeworks/gauge/driver"
	"github.com/gaugeworks/gauge/lib/schema"
)

// Backend is one vendor's GPU implementation. A backend manages the
// cards bound to its kernel driver and nothing else; machines with
// mixed vendors run several backends side by side.
type Backend interface {
	// Vendor names the backend in logs ("amdgpu", "nvidia", "intel").
	Vendor() string

	// Devices returns the cards this backend currently manages.
	Devices() []schema.DeviceDescriptor

	// Poll samples every managed card. Metrics the vendor cannot
	// supply are returned as unavailable values, not omitted.
	Poll(ctx context.Context) ([]schema.ResourceSample, error)

	// Close releases held file descriptors.
	Close() error
}

// Mux fans one driver poll out across all vendor backends. A single
// misbehaving vendor degrades only its own cards: the other backends'
// samples still flow.
type Mux struct {
	backends []Backend
	logger   *slog.Logger
}

var _ driver.Driver = (*Mux)(nil)

// NewMux creates a multiplexer over the given vendor backends.
// Backends that enumerate no devices are harmless to include.
func NewMux(logger *slog.Logger, backends ...Backend) *Mux {
	return &Mux{backends: backends, logger: logger}
}

func (mux *Mux) Name() string { return "gpu" }

func (mux *Mux) Devices() []schema.DeviceDescriptor {
	var devices []schema.DeviceDescriptor
	for _, backend := range mux.backends {
		devices = append(devices, backend.Devices()...)
	}
	return devices
}

// Poll samples all backends. Failures are vendor-local: the poll
// fails only when every backend with devices failed, which the
// collector treats like any other transient driver failure.
func (mux *Mux) Poll(ctx context.Context) ([]schema.ResourceSample, error) {
	var samples []schema.ResourceSample
	var failures []error
	attempted := 0
	succeeded := 0

	for _, backend := range mux.backends {
		if len(backend.Devices()) == 0 {
			continue
		}
		attempted++
		backendSamples, err := backend.Poll(ctx)
		if err != nil {
			mux.logger.Warn("gpu backend poll failed",
				"vendor", backend.Vendor(),
				"error", err)
			failures = append(failures, fmt.Errorf("%s: %w", backend.Vendor(), err))
			continue
		}
		succeeded++
		samples = append(samples, backendSamples...)
	}

	if attempted > 0 && succeeded == 0 {
		return nil, fmt.Errorf("all gpu backends failed: %w: %w", driver.ErrTransient, errors.Join(failures...))
	}
	return samples, nil
}

// Close releases every backend's resources.
func (mux *Mux) Close() error {
	var errs []error
	for _, backend := range mux.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Vendor(), err))
		}
	}
	return errors.Join(errs...)
}
