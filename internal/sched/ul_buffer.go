package sched

import (
	"sync"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

const ulBufferSize = 32

// ulBuffer keeps the UL results of the last slots of one cell until the
// lower layers fetch them.
type ulBuffer struct {
	mu    sync.Mutex
	slots [ulBufferSize]*result.ULResult
}

func (b *ulBuffer) put(r *result.ULResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[r.Slot.ToUint()%ulBufferSize] = r
}

// take returns and removes the result of slot, nil if it was never stored
// or already overwritten by a later slot.
func (b *ulBuffer) take(slot slotpoint.SlotPoint) *result.ULResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := slot.ToUint() % ulBufferSize
	r := b.slots[idx]
	if r == nil || !r.Slot.Equal(slot) {
		return nil
	}
	b.slots[idx] = nil
	return r
}
