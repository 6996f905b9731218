// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Canonical metric identifiers. Metrics that exist once per machine
// use these directly; per-device metrics append the device with
// PerDevice (for example "disk.read.nvme0n1").
const (
	MetricCPUUtilization MetricID = "cpu.utilization"
	MetricCPUFrequency   MetricID = "cpu.frequency"
	MetricCPUTemperature MetricID = "cpu.temperature"

	MetricMemoryUsed        MetricID = "mem.used"
	MetricMemoryAvailable   MetricID = "mem.available"
	MetricMemoryTotal       MetricID = "mem.total"
	MetricMemoryUtilization MetricID = "mem.utilization"
	MetricSwapUsed          MetricID = "mem.swap.used"
	MetricSwapTotal         MetricID = "mem.swap.total"

	MetricDiskRead  MetricID = "disk.read"
	MetricDiskWrite MetricID = "disk.write"
	MetricDiskBusy  MetricID = "disk.busy"

	MetricNetReceived MetricID = "net.received"
	MetricNetSent     MetricID = "net.sent"

	MetricFanSpeed MetricID = "fan.speed"
	MetricFanPWM   MetricID = "fan.pwm"

	MetricGPUUtilization MetricID = "gpu.utilization"
	MetricGPUVRAMUsed    MetricID = "gpu.vram.used"
	MetricGPUVRAMTotal   MetricID = "gpu.vram.total"
	MetricGPUEncode      MetricID = "gpu.encode"
	MetricGPUDecode      MetricID = "gpu.decode"
	MetricGPUPower       MetricID = "gpu.power"
	MetricGPUTemperature MetricID = "gpu.temperature"
	MetricGPUFrequency   MetricID = "gpu.frequency"
)
