package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/journal"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// slotRunner is the part of the scheduler driven by the slot loop.
type slotRunner interface {
	NofCells() int
	RunSlot(ctx context.Context, slot slotpoint.SlotPoint, cc int) (*result.DLResult, error)
	ULSched(slot slotpoint.SlotPoint, cc int) (*result.ULResult, error)
}

type slotRecorder interface {
	Record(ctx context.Context, dl *result.DLResult, ul *result.ULResult) (journal.Digest, error)
}

// slotLoop schedules every cell of a slot on its own goroutine and returns
// once all of them are done, so the clock never runs ahead of the cells.
type slotLoop struct {
	ctx     context.Context
	sched   slotRunner
	journal slotRecorder
	log     logging.Logger

	slots  atomic.Uint64
	failed atomic.Uint64
}

func newSlotLoop(ctx context.Context, s slotRunner, log logging.Logger) *slotLoop {
	if log == nil {
		log = logging.Noop()
	}
	return &slotLoop{ctx: ctx, sched: s, log: log}
}

func (l *slotLoop) runSlot(slot slotpoint.SlotPoint) {
	var wg sync.WaitGroup
	for cc := 0; cc < l.sched.NofCells(); cc++ {
		wg.Add(1)
		go func(cc int) {
			defer wg.Done()
			if err := l.runCell(slot, cc); err != nil {
				l.failed.Add(1)
				if !errors.Is(err, sched.ErrStopped) && !errors.Is(err, context.Canceled) {
					l.log.Warn(l.ctx, "slot failed",
						logging.String("slot", slot.String()),
						logging.Int("cc", cc),
						logging.Err(err),
					)
				}
			}
		}(cc)
	}
	wg.Wait()
	l.slots.Add(1)
}

func (l *slotLoop) runCell(slot slotpoint.SlotPoint, cc int) error {
	dl, err := l.sched.RunSlot(l.ctx, slot, cc)
	if err != nil {
		return err
	}
	ul, err := l.sched.ULSched(slot, cc)
	if err != nil {
		return err
	}
	if l.journal == nil {
		return nil
	}
	_, err = l.journal.Record(l.ctx, dl, ul)
	return err
}
