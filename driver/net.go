// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/net"

	"github.com/gaugeworks/gauge/lib/clock"
	"github.com/gaugeworks/gauge/lib/schema"
)

// virtualInterfacePrefixes name interfaces that carry no physical
// traffic worth charting.
var virtualInterfacePrefixes = []string{"lo", "veth", "docker", "br-", "virbr"}

// Network samples per-interface receive and transmit throughput.
// Interfaces are rediscovered every cycle, so links that come and go
// (USB adapters, VPN tunnels) track hardware state.
type Network struct {
	clk clock.Clock

	counters func(ctx context.Context, pernic bool) ([]net.IOCountersStat, error)

	devices []schema.DeviceDescriptor
	rates   map[string]*interfaceRates
}

type interfaceRates struct {
	received rateTracker
	sent     rateTracker
}

// NewNetwork creates the network driver.
func NewNetwork(clk clock.Clock) *Network {
	return &Network{
		clk:      clk,
		counters: net.IOCountersWithContext,
		rates:    map[string]*interfaceRates{},
	}
}

func (driver *Network) Name() string { return "network" }

func (driver *Network) Devices() []schema.DeviceDescriptor {
	return slices.Clone(driver.devices)
}

func (driver *Network) Poll(ctx context.Context) ([]schema.ResourceSample, error) {
	counters, err := driver.counters(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("interface counters: %w: %w", ErrTransient, err)
	}

	now := driver.clk.Now()

	slices.SortFunc(counters, func(a, b net.IOCountersStat) int {
		return strings.Compare(a.Name, b.Name)
	})

	var samples []schema.ResourceSample
	devices := make([]schema.DeviceDescriptor, 0, len(counters))
	seen := map[string]bool{}

	for _, stat := range counters {
		if isVirtualInterface(stat.Name) {
			continue
		}
		seen[stat.Name] = true
		deviceID := schema.DeviceID(stat.Name)
		devices = append(devices, schema.DeviceDescriptor{
			DeviceID:     deviceID,
			Class:        schema.ClassNetwork,
			DisplayName:  stat.Name,
			Capabilities: schema.CapabilitySet(0).With(schema.CapUtilization),
		})

		rates, ok := driver.rates[stat.Name]
		if !ok {
			rates = &interfaceRates{}
			driver.rates[stat.Name] = rates
		}

		sample := func(base schema.MetricID, rate float64, ok bool) schema.ResourceSample {
			value := schema.Unavailable(schema.UnitBytesPerSecond)
			if ok {
				value = schema.Measured(rate, schema.UnitBytesPerSecond)
			}
			return schema.ResourceSample{
				MetricID: schema.PerDevice(base, deviceID),
				Value:    value,
				DeviceID: deviceID,
			}
		}

		receivedRate, receivedOK := rates.received.update(stat.BytesRecv, now)
		sentRate, sentOK := rates.sent.update(stat.BytesSent, now)
		samples = append(samples,
			sample(schema.MetricNetReceived, receivedRate, receivedOK),
			sample(schema.MetricNetSent, sentRate, sentOK),
		)
	}

	for name := range driver.rates {
		if !seen[name] {
			delete(driver.rates, name)
		}
	}

	driver.devices = devices
	return samples, nil
}

func isVirtualInterface(name string) bool {
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
