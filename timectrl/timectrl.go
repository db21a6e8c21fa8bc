// Package timectrl drives the scheduler slot clock.
package timectrl

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// SlotClock exposes the current slot to components that must not depend on
// the concrete controller.
type SlotClock interface {
	Now() slotpoint.SlotPoint
}

// Mode describes how the SlotController advances slots.
type Mode int

const (
	// RealTime advances one slot per slot duration of wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners return.
	Accelerated
)

// SlotDuration returns the air-interface slot length for numerology mu.
func SlotDuration(mu uint8) time.Duration {
	return time.Millisecond / time.Duration(slotpoint.NofSlotsPerSubframe(mu))
}

// SlotController ticks slot points and notifies registered listeners.
type SlotController struct {
	mu      sync.RWMutex
	Start   slotpoint.SlotPoint
	Tick    time.Duration
	Mode    Mode
	current slotpoint.SlotPoint

	listeners []func(slotpoint.SlotPoint)
}

// NewSlotController constructs a controller starting at start. A zero tick
// defaults to the slot duration of the start numerology.
func NewSlotController(start slotpoint.SlotPoint, tick time.Duration, mode Mode) *SlotController {
	if tick <= 0 {
		tick = SlotDuration(start.Numerology())
	}
	return &SlotController{Start: start, Tick: tick, Mode: mode, current: start}
}

// Now returns the last slot announced to listeners.
func (sc *SlotController) Now() slotpoint.SlotPoint {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.current
}

// SetSlot moves the clock without notifying listeners.
func (sc *SlotController) SetSlot(s slotpoint.SlotPoint) {
	sc.mu.Lock()
	sc.current = s
	sc.mu.Unlock()
}

// AddListener registers a callback invoked on every slot.
func (sc *SlotController) AddListener(fn func(slotpoint.SlotPoint)) {
	sc.mu.Lock()
	sc.listeners = append(sc.listeners, fn)
	sc.mu.Unlock()
}

// Run announces nofSlots slots (forever when nofSlots <= 0) and returns when
// done or when ctx is cancelled.
func (sc *SlotController) Run(ctx context.Context, nofSlots int) error {
	sc.mu.RLock()
	slot := sc.current
	listeners := append([]func(slotpoint.SlotPoint){}, sc.listeners...)
	sc.mu.RUnlock()

	var ticks <-chan time.Time
	if sc.Mode == RealTime {
		ticker := time.NewTicker(sc.Tick)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for n := 0; nofSlots <= 0 || n < nofSlots; n++ {
		if ticks != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticks:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		slot = slot.Add(1)
		sc.SetSlot(slot)
		for _, fn := range listeners {
			fn(slot)
		}
	}
	return nil
}

// StartAsync runs the controller in a goroutine and returns a channel closed
// on completion.
func (sc *SlotController) StartAsync(ctx context.Context, nofSlots int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sc.Run(ctx, nofSlots)
	}()
	return done
}
