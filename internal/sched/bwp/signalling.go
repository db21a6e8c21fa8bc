package bwp

import (
	"slices"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// Signalling schedules the SS/PBCH block and the periodic NZP CSI-RS of the
// PDCCH slot of a. It runs before any data allocation so that the SSB PRBs
// are already reserved.
func Signalling(a *SlotAllocator) {
	cfg := a.BWP()
	s := a.PDCCHSlot()
	if !cfg.Cell.IsDL(s) {
		return
	}
	g := a.Grid(s)
	if isSSBSlot(cfg, s) {
		ssb := cfg.Cell.Cfg.SSB
		stop := min(ssb.StartRB+params.SSBPRBs, cfg.NofPRB)
		if ssb.StartRB < stop {
			g.DLPRBs.Add(rbgrid.GrantFromInterval(rbgrid.NewPRBInterval(ssb.StartRB, stop)))
		}
		g.DL.SSB = append(g.DL.SSB, result.SSB{PCI: cfg.Cell.Cfg.PCI, SlotIdx: s.SlotIdx(), StartRB: ssb.StartRB})
	}
	for _, csi := range cfg.Cell.Cfg.CSIRS {
		if csi.PeriodSlots > 0 && int(s.ToUint())%csi.PeriodSlots == csi.OffsetSlots {
			g.DL.CSIRS = append(g.DL.CSIRS, result.CSIRS{ResourceID: csi.ResourceID})
		}
	}
}

func isSSBSlot(cfg *params.BWPParams, s slotpoint.SlotPoint) bool {
	ssb := cfg.Cell.Cfg.SSB
	if ssb.PeriodMs <= 0 {
		return false
	}
	period := uint32(ssb.PeriodMs) * slotpoint.NofSlotsPerSubframe(s.Numerology())
	return slices.Contains(ssb.SlotIdx, s.ToUint()%period)
}
