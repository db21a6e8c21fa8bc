package sched

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// slotSync lets the cell workers of one slot share a single common update.
//
// The first worker to observe a new slot becomes the leader: it runs the
// update and publishes completion. Workers of the same slot wait for that
// publication; workers of a later slot wait until the last worker of the
// current slot has called finish.
type slotSync struct {
	nofCells int32

	mu       sync.Mutex
	current  slotpoint.SlotPoint
	updated  chan struct{}
	released chan struct{}

	remaining atomic.Int32
}

func newSlotSync(nofCells int) *slotSync {
	return &slotSync{
		nofCells: int32(nofCells),
		current:  slotpoint.Invalid(),
		released: make(chan struct{}),
	}
}

// start blocks until the caller may run its cell phase for slot. It returns
// true for the leader, which must call publish once the common update is
// done. On error the caller does not hold the slot.
func (s *slotSync) start(ctx context.Context, slot slotpoint.SlotPoint) (bool, error) {
	for {
		s.mu.Lock()
		if !s.current.Valid() {
			s.current = slot
			s.updated = make(chan struct{})
			s.released = make(chan struct{})
			s.remaining.Store(s.nofCells)
			s.mu.Unlock()
			return true, nil
		}
		if s.current.Equal(slot) {
			updated := s.updated
			s.mu.Unlock()
			select {
			case <-updated:
				return false, nil
			case <-ctx.Done():
				// Already counted in remaining; give the slot back so the
				// other workers are not stalled.
				s.finish()
				return false, ctx.Err()
			}
		}
		released := s.released
		s.mu.Unlock()
		select {
		case <-released:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// publish wakes the workers waiting for the common update of the current slot.
func (s *slotSync) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.updated)
}

// finish marks the caller's cell phase as done. The last worker releases
// the slot.
func (s *slotSync) finish() {
	if s.remaining.Add(-1) != 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = slotpoint.Invalid()
	close(s.released)
}
