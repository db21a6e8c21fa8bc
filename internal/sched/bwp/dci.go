package bwp

import (
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/harq"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
)

var rvSequence = [4]int{0, 2, 3, 1}

func rvIdx(nofRetx int) int { return rvSequence[nofRetx%len(rvSequence)] }

// setCtx fills the DCI context around the location chosen by the PDCCH
// allocator, which may still move while later DCIs are placed.
func setCtx(c *result.DCICtx, ss model.SearchSpaceConfig, cs model.CoresetConfig, rntiType result.RNTIType, rnti uint16, format result.DCIFormat) {
	c.SSID = ss.ID
	c.SSType = ss.Type
	c.CoresetID = cs.ID
	c.CoresetStartRB = cs.StartRB
	c.RNTIType = rntiType
	c.RNTI = rnti
	c.Format = format
}

// commonPRBLimits is the PRB range a format 1_0 DCI in a common search space
// can address: it starts at the coreset and is bounded by coreset 0.
func commonPRBLimits(cfg *params.BWPParams, coresetID int) rbgrid.PRBInterval {
	start, stop := 0, cfg.NofPRB
	if cs, ok := cfg.Cfg.Coreset(coresetID); ok {
		start = cs.StartRB
	}
	if coresetID == 0 {
		if cs0, ok := cfg.Cfg.Coreset(0); ok {
			stop = min(start+cs0.NofPRB(), cfg.NofPRB)
		}
	}
	return rbgrid.NewPRBInterval(start, stop)
}

// addressable reports whether a DCI of the given format in ss can carry g.
func addressable(cfg *params.BWPParams, ss model.SearchSpaceConfig, format result.DCIFormat, g rbgrid.Grant) bool {
	if g.IsAllocType0() {
		return !ss.Type.IsCommon()
	}
	if format != result.Format1_0 || !ss.Type.IsCommon() {
		return g.Interval().Stop() <= cfg.NofPRB
	}
	lim := commonPRBLimits(cfg, ss.CoresetID)
	iv := g.Interval()
	return iv.Start() >= lim.Start() && iv.Stop() <= lim.Stop()
}

// dlFreqDomain encodes the frequency assignment of a DL DCI. Type-1 grants
// of format 1_0 in common search spaces are indexed from the coreset start.
func dlFreqDomain(cfg *params.BWPParams, c result.DCICtx, g rbgrid.Grant) uint64 {
	if g.IsAllocType0() {
		return g.RBGs().ToUint64()
	}
	lim := rbgrid.NewPRBInterval(0, cfg.NofPRB)
	if c.Format == result.Format1_0 && c.SSType.IsCommon() {
		lim = commonPRBLimits(cfg, c.CoresetID)
	}
	iv := g.Interval()
	rel := rbgrid.NewPRBInterval(iv.Start()-lim.Start(), iv.Stop()-lim.Start())
	return uint64(rbgrid.RIV(lim.Length(), rel))
}

func ulFreqDomain(cfg *params.BWPParams, g rbgrid.Grant) uint64 {
	if g.IsAllocType0() {
		return g.RBGs().ToUint64()
	}
	return uint64(rbgrid.RIV(cfg.NofPRB, g.Interval()))
}

func dlFormat(ss model.SearchSpaceConfig) result.DCIFormat {
	if ss.Type.IsCommon() {
		return result.Format1_0
	}
	return result.Format1_1
}

func ulFormat(ss model.SearchSpaceConfig) result.DCIFormat {
	if ss.Type.IsCommon() {
		return result.Format0_0
	}
	return result.Format0_1
}

func fillDLHARQ(d *result.DLDCI, h *harq.DLProc) {
	d.PID = h.PID()
	d.NDI = h.NDI()
	d.MCS = h.MCS()
	d.RV = rvIdx(h.NofRetx())
}

func fillULHARQ(d *result.ULDCI, h *harq.ULProc) {
	d.PID = h.PID()
	d.NDI = h.NDI()
	d.MCS = h.MCS()
	d.RV = rvIdx(h.NofRetx())
}

func fillDLCommon(d *result.DLDCI, cfg *params.BWPParams) {
	d.BWPID = cfg.BWPID
	d.CC = cfg.CC
	d.TPC = 1
	d.TimeDomain = 0
}

func fillULCommon(d *result.ULDCI, cfg *params.BWPParams) {
	d.BWPID = cfg.BWPID
	d.CC = cfg.CC
	d.TPC = 1
	d.TimeDomain = 0
}
