// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import "github.com/gaugeworks/gauge/lib/schema"

// Reading is one card's sampled metrics. Backends fill in what their
// kernel driver exposes and leave the rest zero; Samples turns every
// zero field into an unavailable value with the right unit, so each
// card always publishes the full GPU metric set.
type Reading struct {
	Utilization schema.Value
	VRAMUsed    schema.Value
	VRAMTotal   schema.Value
	Encode      schema.Value
	Decode      schema.Value
	Power       schema.Value
	Temperature schema.Value
	Frequency   schema.Value
}

// Samples converts the reading into per-device samples for one card.
func (r Reading) Samples(device schema.DeviceID) []schema.ResourceSample {
	build := func(base schema.MetricID, value schema.Value, unit schema.Unit) schema.ResourceSample {
		if !value.Available {
			value = schema.Unavailable(unit)
		}
		return schema.ResourceSample{
			MetricID: schema.PerDevice(base, device),
			Value:    value,
			DeviceID: device,
		}
	}

	return []schema.ResourceSample{
		build(schema.MetricGPUUtilization, r.Utilization, schema.UnitPercent),
		build(schema.MetricGPUVRAMUsed, r.VRAMUsed, schema.UnitBytes),
		build(schema.MetricGPUVRAMTotal, r.VRAMTotal, schema.UnitBytes),
		build(schema.MetricGPUEncode, r.Encode, schema.UnitPercent),
		build(schema.MetricGPUDecode, r.Decode, schema.UnitPercent),
		build(schema.MetricGPUPower, r.Power, schema.UnitWatts),
		build(schema.MetricGPUTemperature, r.Temperature, schema.UnitMillidegreesC),
		build(schema.MetricGPUFrequency, r.Frequency, schema.UnitMegahertz),
	}
}
