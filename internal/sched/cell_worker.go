package sched

import (
	"context"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/bwp"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// cellWorker produces the results of one cell. It is driven by a single
// goroutine at a time, between slotSync.start and slotSync.finish.
type cellWorker struct {
	cc   int
	cfg  *params.CellParams
	rec  Recorder
	bwps []*bwp.Manager

	// slotUEs is indexed by BWP id and reused every slot.
	slotUEs []*ue.SlotUEMap
	ul      ulBuffer

	// seenUpdates is the number of common updates visible when the last
	// cell phase started.
	seenUpdates uint64
}

func newCellWorker(cfg *params.CellParams, pool *softbuffer.Pool, log logging.Logger, rec Recorder) *cellWorker {
	w := &cellWorker{cc: cfg.CC, cfg: cfg, rec: rec}
	for _, b := range cfg.BWPs {
		w.bwps = append(w.bwps, bwp.NewManager(b, pool, log, rec))
		w.slotUEs = append(w.slotUEs, ue.NewSlotUEMap())
	}
	return w
}

// run reserves the UEs with a carrier on this cell and lets every BWP
// schedule the slot.
func (w *cellWorker) run(ctx context.Context, slot slotpoint.SlotPoint, ues *ue.Map) (*result.DLResult, *result.ULResult) {
	for _, m := range w.slotUEs {
		m.Clear()
	}
	for _, u := range ues.All() {
		su := u.TryReserve(slot, w.cc)
		if su == nil {
			continue
		}
		w.slotUEs[su.Params().ActiveBWPID()].Add(su)
	}

	dl := &result.DLResult{Slot: slot, CC: w.cc}
	ul := &result.ULResult{Slot: slot, CC: w.cc}
	var dlPRBs, ulPRBs float64
	for i, m := range w.bwps {
		out := m.RunSlot(ctx, slot, w.slotUEs[i])
		appendDL(&dl.DLSched, &out.DL)
		ul.PUSCH = append(ul.PUSCH, out.UL.PUSCH...)
		ul.PUCCH = append(ul.PUCCH, out.UL.PUCCH...)
		n := float64(m.BWP().NofPRB)
		dlPRBs += out.Utilization.DL * n
		ulPRBs += out.Utilization.UL * n
	}
	if nofPRB := float64(w.cfg.Cfg.NofPRB); nofPRB > 0 {
		w.rec.SetPRBUtilization(w.cc, "dl", dlPRBs/nofPRB)
		w.rec.SetPRBUtilization(w.cc, "ul", ulPRBs/nofPRB)
	}
	w.ul.put(ul)
	return dl, ul
}

// dlrachInfo hands a preamble to the RA scheduler of the initial BWP.
func (w *cellWorker) dlrachInfo(ctx context.Context, info result.RARInfo) error {
	return w.bwps[0].RA().DLRACHInfo(ctx, info)
}

func appendDL(dst, src *result.DLSched) {
	dst.PDCCHDL = append(dst.PDCCHDL, src.PDCCHDL...)
	dst.PDCCHUL = append(dst.PDCCHUL, src.PDCCHUL...)
	dst.PDSCH = append(dst.PDSCH, src.PDSCH...)
	dst.SSB = append(dst.SSB, src.SSB...)
	dst.CSIRS = append(dst.CSIRS, src.CSIRS...)
	dst.RAR = append(dst.RAR, src.RAR...)
	dst.SIBIdxs = append(dst.SIBIdxs, src.SIBIdxs...)
}
