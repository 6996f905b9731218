// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"errors"
	"testing"
)

// fakeProc is a procReader with fixed attributes.
type fakeProc struct {
	createTime int64
	name       string
	parent     int32
	threads    int32
	fds        int32
	cpu        float64
	rss        uint64

	// cpuCalls counts CPUPercent reads, letting tests verify handle
	// reuse across cycles.
	cpuCalls int
}

func (p *fakeProc) CreateTime(ctx context.Context) (int64, error) { return p.createTime, nil }
func (p *fakeProc) Name(ctx context.Context) (string, error)      { return p.name, nil }
func (p *fakeProc) ParentPID(ctx context.Context) (int32, error)  { return p.parent, nil }
func (p *fakeProc) NumThreads(ctx context.Context) (int32, error) { return p.threads, nil }
func (p *fakeProc) NumFDs(ctx context.Context) (int32, error)     { return p.fds, nil }
func (p *fakeProc) CPUPercent(ctx context.Context) (float64, error) {
	p.cpuCalls++
	return p.cpu, nil
}
func (p *fakeProc) ResidentBytes(ctx context.Context) (uint64, error) { return p.rss, nil }

// fakeProcTable wires a Process driver to an in-memory process table.
type fakeProcTable struct {
	procs map[int32]*fakeProc
	opens int
}

func (table *fakeProcTable) install(driver *Process) {
	driver.pids = func(ctx context.Context) ([]int32, error) {
		pids := make([]int32, 0, len(table.procs))
		for pid := range table.procs {
			pids = append(pids, pid)
		}
		return pids, nil
	}
	driver.open = func(pid int32) (procReader, error) {
		proc, ok := table.procs[pid]
		if !ok {
			return nil, errors.New("no such process")
		}
		table.opens++
		return proc, nil
	}
}

func TestProcessSnapshot(t *testing.T) {
	t.Parallel()

	table := &fakeProcTable{procs: map[int32]*fakeProc{
		10: {createTime: 100, name: "init", threads: 1, fds: 4, cpu: 0.1, rss: 1 << 20},
		42: {createTime: 200, name: "gauged", parent: 10, threads: 8, fds: 12, cpu: 3.5, rss: 16 << 20},
	}}
	driver := NewProcess(0)
	table.install(driver)

	records, err := driver.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Records come back sorted by PID.
	if records[0].PID != 10 || records[1].PID != 42 {
		t.Fatalf("record order = %d, %d, want 10, 42", records[0].PID, records[1].PID)
	}
	record := records[1]
	if record.Name != "gauged" || record.ParentPID != 10 || record.ThreadCount != 8 ||
		record.HandleCount != 12 || record.MemoryBytes != 16<<20 || record.StartTimeMillis != 200 {
		t.Errorf("unexpected record: %+v", record)
	}
}

func TestProcessHandleReuse(t *testing.T) {
	t.Parallel()

	table := &fakeProcTable{procs: map[int32]*fakeProc{
		42: {createTime: 200, name: "gauged"},
	}}
	driver := NewProcess(0)
	table.install(driver)

	ctx := context.Background()
	for range 3 {
		if _, err := driver.Snapshot(ctx); err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
	}

	// One open, three CPU reads: the handle survives across cycles
	// so CPU percentages are per-interval deltas.
	if table.opens != 1 {
		t.Errorf("opened %d handles, want 1", table.opens)
	}
	if got := table.procs[42].cpuCalls; got != 3 {
		t.Errorf("CPUPercent called %d times, want 3", got)
	}
}

func TestProcessPIDReuse(t *testing.T) {
	t.Parallel()

	old := &fakeProc{createTime: 200, name: "old"}
	table := &fakeProcTable{procs: map[int32]*fakeProc{42: old}}
	driver := NewProcess(0)
	table.install(driver)

	ctx := context.Background()
	if _, err := driver.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	// The kernel hands PID 42 to a new process.
	table.procs[42] = &fakeProc{createTime: 900, name: "new"}

	records, err := driver.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot after reuse: %v", err)
	}
	if len(records) != 1 || records[0].Name != "new" {
		t.Fatalf("records = %+v, want one record named \"new\"", records)
	}
	if records[0].StartTimeMillis != 900 {
		t.Errorf("StartTimeMillis = %d, want 900", records[0].StartTimeMillis)
	}
	if table.opens != 2 {
		t.Errorf("opened %d handles, want 2 (fresh handle after reuse)", table.opens)
	}
}

func TestProcessExitMidEnumeration(t *testing.T) {
	t.Parallel()

	table := &fakeProcTable{procs: map[int32]*fakeProc{
		10: {createTime: 100, name: "init"},
	}}
	driver := NewProcess(0)
	table.install(driver)
	driver.pids = func(ctx context.Context) ([]int32, error) {
		// PID 99 exits between enumeration and open.
		return []int32{10, 99}, nil
	}

	records, err := driver.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(records) != 1 || records[0].PID != 10 {
		t.Errorf("records = %+v, want only PID 10", records)
	}
}

func TestProcessLimit(t *testing.T) {
	t.Parallel()

	table := &fakeProcTable{procs: map[int32]*fakeProc{
		1: {createTime: 1, name: "a", cpu: 1},
		2: {createTime: 1, name: "b", cpu: 50},
		3: {createTime: 1, name: "c", cpu: 10},
		4: {createTime: 1, name: "d", cpu: 25},
	}}
	driver := NewProcess(2)
	table.install(driver)

	records, err := driver.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// The two heaviest CPU consumers survive, reported in PID order.
	if records[0].PID != 2 || records[1].PID != 4 {
		t.Errorf("kept PIDs %d, %d, want 2, 4", records[0].PID, records[1].PID)
	}
}
