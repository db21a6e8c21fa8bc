package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/journal"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
	"github.com/signalsfoundry/nr-mac-scheduler/timectrl"
)

type countingRunner struct {
	mu       sync.Mutex
	cells    int
	runs     map[int]int
	ulFetch  map[int]int
	failCell int
}

func newCountingRunner(cells int) *countingRunner {
	return &countingRunner{cells: cells, runs: map[int]int{}, ulFetch: map[int]int{}, failCell: -1}
}

func (c *countingRunner) NofCells() int { return c.cells }

func (c *countingRunner) RunSlot(_ context.Context, slot slotpoint.SlotPoint, cc int) (*result.DLResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[cc]++
	if cc == c.failCell {
		return nil, sched.ErrStopped
	}
	return &result.DLResult{Slot: slot, CC: cc}, nil
}

func (c *countingRunner) ULSched(slot slotpoint.SlotPoint, cc int) (*result.ULResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ulFetch[cc]++
	return &result.ULResult{Slot: slot, CC: cc}, nil
}

type memoryJournal struct {
	mu      sync.Mutex
	entries map[[2]uint32]bool
	err     error
}

func (m *memoryJournal) Record(_ context.Context, dl *result.DLResult, ul *result.ULResult) (journal.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return journal.Digest{}, m.err
	}
	if m.entries == nil {
		m.entries = map[[2]uint32]bool{}
	}
	m.entries[[2]uint32{dl.Slot.ToUint(), uint32(dl.CC)}] = true
	return journal.Compute(dl, ul), nil
}

func TestSlotLoopRunsEveryCellEverySlot(t *testing.T) {
	runner := newCountingRunner(3)
	j := &memoryJournal{}
	loop := newSlotLoop(context.Background(), runner, logging.Noop())
	loop.journal = j

	clock := timectrl.NewSlotController(slotpoint.New(0, 0), 0, timectrl.Accelerated)
	clock.AddListener(loop.runSlot)
	if err := clock.Run(context.Background(), 10); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := loop.slots.Load(); got != 10 {
		t.Fatalf("slots = %d, want 10", got)
	}
	for cc := 0; cc < 3; cc++ {
		if runner.runs[cc] != 10 || runner.ulFetch[cc] != 10 {
			t.Fatalf("cell %d: runs=%d ul=%d, want 10 each", cc, runner.runs[cc], runner.ulFetch[cc])
		}
	}
	if len(j.entries) != 30 {
		t.Fatalf("journal entries = %d, want 30", len(j.entries))
	}
	if !j.entries[[2]uint32{10, 2}] {
		t.Fatalf("missing journal entry for slot 10 cell 2")
	}
}

func TestSlotLoopCountsFailures(t *testing.T) {
	runner := newCountingRunner(2)
	runner.failCell = 1
	j := &memoryJournal{}
	loop := newSlotLoop(context.Background(), runner, logging.Noop())
	loop.journal = j

	loop.runSlot(slotpoint.New(0, 5))

	if got := loop.failed.Load(); got != 1 {
		t.Fatalf("failed = %d, want 1", got)
	}
	if runner.ulFetch[1] != 0 {
		t.Fatalf("ul result fetched for a failed cell")
	}
	if len(j.entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(j.entries))
	}

	j.err = errors.New("disk full")
	runner.failCell = -1
	loop.runSlot(slotpoint.New(0, 6))
	if got := loop.failed.Load(); got != 3 {
		t.Fatalf("failed = %d, want 3 after journal errors", got)
	}
}
