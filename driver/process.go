// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"fmt"
	"slices"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/gaugeworks/gauge/lib/schema"
)

// procReader reads one process's attributes. The production
// implementation wraps a gopsutil process handle; tests substitute
// fakes.
type procReader interface {
	CreateTime(ctx context.Context) (int64, error)
	Name(ctx context.Context) (string, error)
	ParentPID(ctx context.Context) (int32, error)
	NumThreads(ctx context.Context) (int32, error)
	NumFDs(ctx context.Context) (int32, error)
	CPUPercent(ctx context.Context) (float64, error)
	ResidentBytes(ctx context.Context) (uint64, error)
}

type gopsutilProc struct{ proc *process.Process }

func (p gopsutilProc) CreateTime(ctx context.Context) (int64, error) {
	return p.proc.CreateTimeWithContext(ctx)
}
func (p gopsutilProc) Name(ctx context.Context) (string, error) {
	return p.proc.NameWithContext(ctx)
}
func (p gopsutilProc) ParentPID(ctx context.Context) (int32, error) {
	return p.proc.PpidWithContext(ctx)
}
func (p gopsutilProc) NumThreads(ctx context.Context) (int32, error) {
	return p.proc.NumThreadsWithContext(ctx)
}
func (p gopsutilProc) NumFDs(ctx context.Context) (int32, error) {
	return p.proc.NumFDsWithContext(ctx)
}
func (p gopsutilProc) CPUPercent(ctx context.Context) (float64, error) {
	return p.proc.CPUPercentWithContext(ctx)
}
func (p gopsutilProc) ResidentBytes(ctx context.Context) (uint64, error) {
	info, err := p.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// trackedProc is a cached process handle. Handles are reused across
// cycles so CPU percentages are deltas over the sampling interval
// rather than since-start averages.
type trackedProc struct {
	reader     procReader
	createTime int64
}

// Process enumerates running processes once per cycle. A PID whose
// start time changed between cycles belongs to a new process (the
// kernel reused the PID), so its cached handle is discarded and its
// CPU baseline restarts.
type Process struct {
	// limit caps how many records are reported, keeping the heaviest
	// CPU consumers. 0 reports everything.
	limit int

	pids func(ctx context.Context) ([]int32, error)
	open func(pid int32) (procReader, error)

	tracked map[int32]*trackedProc
}

// NewProcess creates the process driver. limit caps the number of
// reported processes (0 for all).
func NewProcess(limit int) *Process {
	return &Process{
		limit: limit,
		pids:  process.PidsWithContext,
		open: func(pid int32) (procReader, error) {
			proc, err := process.NewProcess(pid)
			if err != nil {
				return nil, err
			}
			return gopsutilProc{proc: proc}, nil
		},
		tracked: map[int32]*trackedProc{},
	}
}

// Snapshot enumerates processes and reads their attributes.
// Processes that exit mid-enumeration are skipped, not errors: the
// process table is inherently racy.
func (driver *Process) Snapshot(ctx context.Context) ([]schema.ProcessRecord, error) {
	pids, err := driver.pids(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pids: %w: %w", ErrTransient, err)
	}

	records := make([]schema.ProcessRecord, 0, len(pids))
	seen := map[int32]bool{}

	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, ok := driver.read(ctx, pid)
		if !ok {
			continue
		}
		seen[pid] = true
		records = append(records, record)
	}

	// Drop handles for processes that exited.
	for pid := range driver.tracked {
		if !seen[pid] {
			delete(driver.tracked, pid)
		}
	}

	if driver.limit > 0 && len(records) > driver.limit {
		slices.SortFunc(records, func(a, b schema.ProcessRecord) int {
			switch {
			case a.CPUPercent > b.CPUPercent:
				return -1
			case a.CPUPercent < b.CPUPercent:
				return 1
			default:
				return int(a.PID - b.PID)
			}
		})
		records = records[:driver.limit]
	}

	slices.SortFunc(records, func(a, b schema.ProcessRecord) int {
		return int(a.PID - b.PID)
	})
	return records, nil
}

// read loads one process's record, reusing the cached handle when the
// PID still belongs to the same process.
func (driver *Process) read(ctx context.Context, pid int32) (schema.ProcessRecord, bool) {
	cached := driver.tracked[pid]

	reader := (procReader)(nil)
	if cached != nil {
		reader = cached.reader
	} else {
		opened, err := driver.open(pid)
		if err != nil {
			return schema.ProcessRecord{}, false
		}
		reader = opened
	}

	createTime, err := reader.CreateTime(ctx)
	if err != nil {
		delete(driver.tracked, pid)
		return schema.ProcessRecord{}, false
	}

	if cached != nil && cached.createTime != createTime {
		// PID reuse: same number, different process.
		opened, err := driver.open(pid)
		if err != nil {
			delete(driver.tracked, pid)
			return schema.ProcessRecord{}, false
		}
		reader = opened
		cached = nil
	}
	if cached == nil {
		driver.tracked[pid] = &trackedProc{reader: reader, createTime: createTime}
	}

	record := schema.ProcessRecord{
		PID:             pid,
		StartTimeMillis: createTime,
	}
	record.Name, _ = reader.Name(ctx)
	record.ParentPID, _ = reader.ParentPID(ctx)
	record.ThreadCount, _ = reader.NumThreads(ctx)
	record.HandleCount, _ = reader.NumFDs(ctx)
	record.CPUPercent, _ = reader.CPUPercent(ctx)
	record.MemoryBytes, _ = reader.ResidentBytes(ctx)
	return record, true
}
