package ue

import "slices"

// Map is the UE database keyed by RNTI. Iteration is in RNTI order so
// scheduling decisions are reproducible. Writers must be serialised against
// readers by the caller.
type Map struct {
	byRNTI map[uint16]*UE
	order  []uint16
}

func NewMap() *Map { return &Map{byRNTI: make(map[uint16]*UE)} }

func (m *Map) Insert(u *UE) {
	if _, ok := m.byRNTI[u.RNTI()]; !ok {
		idx, _ := slices.BinarySearch(m.order, u.RNTI())
		m.order = slices.Insert(m.order, idx, u.RNTI())
	}
	m.byRNTI[u.RNTI()] = u
}

// Erase removes and returns the UE, nil if absent.
func (m *Map) Erase(rnti uint16) *UE {
	u, ok := m.byRNTI[rnti]
	if !ok {
		return nil
	}
	delete(m.byRNTI, rnti)
	idx, _ := slices.BinarySearch(m.order, rnti)
	m.order = slices.Delete(m.order, idx, idx+1)
	return u
}

func (m *Map) Get(rnti uint16) *UE { return m.byRNTI[rnti] }

func (m *Map) Len() int { return len(m.order) }

// All returns the UEs in RNTI order.
func (m *Map) All() []*UE {
	out := make([]*UE, 0, len(m.order))
	for _, r := range m.order {
		out = append(out, m.byRNTI[r])
	}
	return out
}
