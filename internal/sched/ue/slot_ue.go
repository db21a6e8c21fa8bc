package ue

import (
	"slices"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/harq"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// SlotUE is the view of a UE carrier while scheduling one PDCCH slot.
type SlotUE struct {
	ue      *UE
	carrier *Carrier

	RNTI uint16
	CC   int

	SlotRx    slotpoint.SlotPoint
	PDCCHSlot slotpoint.SlotPoint
	PDSCHSlot slotpoint.SlotPoint
	UCISlot   slotpoint.SlotPoint
	PUSCHSlot slotpoint.SlotPoint

	DLPendingBytes int
	ULPendingBytes int
	DLCQI          int

	// HDL and HUL are the processes usable in this slot, nil if none.
	HDL *harq.DLProc
	HUL *harq.ULProc
}

func (s *SlotUE) UE() *UE                { return s.ue }
func (s *SlotUE) Carrier() *Carrier      { return s.carrier }
func (s *SlotUE) Params() *CarrierParams { return s.carrier.params }

// SlotUEMap holds the slot UEs of a cell ordered by RNTI.
type SlotUEMap struct {
	byRNTI map[uint16]*SlotUE
	order  []uint16
}

func NewSlotUEMap() *SlotUEMap {
	return &SlotUEMap{byRNTI: make(map[uint16]*SlotUE)}
}

func (m *SlotUEMap) Add(s *SlotUE) {
	if _, ok := m.byRNTI[s.RNTI]; !ok {
		idx, _ := slices.BinarySearch(m.order, s.RNTI)
		m.order = slices.Insert(m.order, idx, s.RNTI)
	}
	m.byRNTI[s.RNTI] = s
}

// Get returns nil for an unknown RNTI.
func (m *SlotUEMap) Get(rnti uint16) *SlotUE { return m.byRNTI[rnti] }

func (m *SlotUEMap) Len() int { return len(m.order) }

// At returns the i-th UE in RNTI order.
func (m *SlotUEMap) At(i int) *SlotUE { return m.byRNTI[m.order[i]] }

// All returns the slot UEs in RNTI order.
func (m *SlotUEMap) All() []*SlotUE {
	out := make([]*SlotUE, 0, len(m.order))
	for _, r := range m.order {
		out = append(out, m.byRNTI[r])
	}
	return out
}

func (m *SlotUEMap) Clear() {
	clear(m.byRNTI)
	m.order = m.order[:0]
}
