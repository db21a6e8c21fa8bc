package sched

import (
	"context"
	"sync"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
)

// commonEvent mutates state shared by every cell, such as the UE map.
type commonEvent struct {
	name string
	fn   func(ctx context.Context)
}

// ueEvent mutates the cell-independent state of one UE.
type ueEvent struct {
	name string
	rnti uint16
	fn   func(u *ue.UE)
}

// ccEvent is feedback for one UE carrier.
type ccEvent struct {
	name string
	rnti uint16
	fn   func(ctx context.Context, c *ue.Carrier)
}

type ccQueue struct {
	mu     sync.Mutex
	events []ccEvent
	next   []ccEvent
}

// eventSummary counts the events applied in one phase.
type eventSummary struct {
	common, ue, cc, unknown int
}

func (s eventSummary) empty() bool { return s.common+s.ue+s.cc+s.unknown == 0 }

// eventManager queues events from arbitrary goroutines and applies them at
// the start of a slot. Common and UE events are drained in the common phase;
// UE events of UEs without carrier aggregation are deferred to the phase of
// their primary cell, together with that cell's feedback.
type eventManager struct {
	log logging.Logger

	mu         sync.Mutex
	common     []commonEvent
	ueEvents   []ueEvent
	nextCommon []commonEvent
	nextUE     []ueEvent

	// deferred is only touched by the common phase and the owning cell phase,
	// which never overlap.
	deferred [][]ueEvent
	cells    []*ccQueue
}

func newEventManager(nofCells int, log logging.Logger) *eventManager {
	m := &eventManager{
		log:      log,
		deferred: make([][]ueEvent, nofCells),
		cells:    make([]*ccQueue, nofCells),
	}
	for cc := range m.cells {
		m.cells[cc] = &ccQueue{}
	}
	return m
}

func (m *eventManager) enqueueCommon(name string, fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.common = append(m.common, commonEvent{name: name, fn: fn})
}

func (m *eventManager) enqueueUE(name string, rnti uint16, fn func(u *ue.UE)) {
	mustValidRNTI(rnti)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ueEvents = append(m.ueEvents, ueEvent{name: name, rnti: rnti, fn: fn})
}

func (m *eventManager) enqueueCC(cc int, name string, rnti uint16, fn func(ctx context.Context, c *ue.Carrier)) {
	mustValidRNTI(rnti)
	q := m.cells[cc]
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ccEvent{name: name, rnti: rnti, fn: fn})
}

// processCommon runs in the common phase. Common events are applied first
// so UE events see the UEs created or removed in the same slot.
func (m *eventManager) processCommon(ctx context.Context, ues *ue.Map) eventSummary {
	m.mu.Lock()
	m.common, m.nextCommon = m.nextCommon[:0], m.common
	m.ueEvents, m.nextUE = m.nextUE[:0], m.ueEvents
	m.mu.Unlock()

	var sum eventSummary
	for _, ev := range m.nextCommon {
		ev.fn(ctx)
		sum.common++
	}
	for _, ev := range m.nextUE {
		u := ues.Get(ev.rnti)
		if u == nil {
			logging.FromContextOr(ctx, m.log).Warn(ctx, "event for unknown UE discarded",
				logging.String("event", ev.name), logging.RNTI(ev.rnti))
			sum.unknown++
			continue
		}
		if pcell := u.PCell(); !u.HasCA() && pcell >= 0 {
			m.deferred[pcell] = append(m.deferred[pcell], ev)
			continue
		}
		ev.fn(u)
		sum.ue++
	}
	clear(m.nextCommon)
	clear(m.nextUE)
	return sum
}

// processCell runs in the phase of cell cc and applies the deferred UE
// events and the cell feedback.
func (m *eventManager) processCell(ctx context.Context, cc int, ues *ue.Map) eventSummary {
	var sum eventSummary
	for _, ev := range m.deferred[cc] {
		u := ues.Get(ev.rnti)
		if u == nil {
			sum.unknown++
			continue
		}
		ev.fn(u)
		sum.ue++
	}
	clear(m.deferred[cc])
	m.deferred[cc] = m.deferred[cc][:0]

	q := m.cells[cc]
	q.mu.Lock()
	q.events, q.next = q.next[:0], q.events
	q.mu.Unlock()

	for _, ev := range q.next {
		var c *ue.Carrier
		if u := ues.Get(ev.rnti); u != nil {
			c = u.Carrier(cc)
		}
		if c == nil {
			logging.FromContextOr(ctx, m.log).Warn(ctx, "feedback for unknown UE carrier discarded",
				logging.String("event", ev.name), logging.RNTI(ev.rnti))
			sum.unknown++
			continue
		}
		ev.fn(ctx, c)
		sum.cc++
	}
	clear(q.next)
	return sum
}

// logEventSummary writes one debug line for the events of a slot and cell.
func logEventSummary(ctx context.Context, log logging.Logger, common, cell eventSummary) {
	if common.empty() && cell.empty() {
		return
	}
	log.Debug(ctx, "slot events processed",
		logging.Int("common", common.common),
		logging.Int("ue", common.ue+cell.ue),
		logging.Int("feedback", cell.cc),
		logging.Int("unknown", common.unknown+cell.unknown))
}

func mustValidRNTI(rnti uint16) {
	if rnti == 0 {
		panic("sched: event for RNTI 0")
	}
}
