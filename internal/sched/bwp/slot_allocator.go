// Package bwp schedules one bandwidth part of a cell: its slot grids, the
// slot allocator through which every grant is committed, and the RA, SI and
// data schedulers that drive it.
package bwp

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/pdcch"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/tbs"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

const (
	// rarSubPDUBytes is one MAC RAR plus its subheader.
	rarSubPDUBytes = 8
	maxMsg3Retx    = 4
)

// SlotAllocator commits the grants of one PDCCH slot. HARQ state and the
// resource grids are only mutated together, after every check passed.
type SlotAllocator struct {
	cfg       *params.BWPParams
	grid      *ResGrid
	pdcchSlot slotpoint.SlotPoint
	ues       *ue.SlotUEMap
	log       logging.Logger
	rec       Recorder
}

// NewSlotAllocator binds the allocator to the UEs reserved for pdcchSlot.
func NewSlotAllocator(grid *ResGrid, pdcchSlot slotpoint.SlotPoint, ues *ue.SlotUEMap, log logging.Logger, rec Recorder) *SlotAllocator {
	if log == nil {
		log = logging.Noop()
	}
	if rec == nil {
		rec = noopRecorder{}
	}
	if ues == nil {
		ues = ue.NewSlotUEMap()
	}
	return &SlotAllocator{cfg: grid.BWP(), grid: grid, pdcchSlot: pdcchSlot, ues: ues, log: log, rec: rec}
}

func (a *SlotAllocator) PDCCHSlot() slotpoint.SlotPoint { return a.pdcchSlot }
func (a *SlotAllocator) BWP() *params.BWPParams         { return a.cfg }
func (a *SlotAllocator) UEs() *ue.SlotUEMap             { return a.ues }

// Grid returns the slot grid of s.
func (a *SlotAllocator) Grid(s slotpoint.SlotPoint) *SlotGrid { return a.grid.At(s) }

// AllocSI commits a system information PDSCH inside the coreset 0 bandwidth,
// scheduled from search space 0.
func (a *SlotAllocator) AllocSI(ctx context.Context, aggIdx, siIdx, siNtx int, prbs rbgrid.PRBInterval, sb *softbuffer.Tx) error {
	const coresetID, ssID = 0, 0
	g := a.grid.At(a.pdcchSlot)
	if err := a.verifyPDSCHSpace(ctx, g, g, nil); err != nil {
		return a.fail(KindSI, err)
	}
	ss, ok := a.cfg.Cfg.SearchSpace(ssID)
	if !ok || prbs.Empty() || !addressable(a.cfg, ss, result.Format1_0, rbgrid.GrantFromInterval(prbs)) {
		return a.fail(KindSI, ErrInvalidGrantParams)
	}
	grant := rbgrid.GrantFromInterval(prbs)
	if g.DLPRBs.Collides(grant) {
		return a.fail(KindSI, ErrSchCollision)
	}
	mcs := a.cfg.Args().SIMCS
	tb := tbs.Compute(prbs.Length(), a.cfg.Cfg.PDSCHSymbols, mcs)
	if tb.Bytes() < a.siLength(siIdx) || aboveCodeRate(tb.CodeRate) {
		return a.fail(KindSI, ErrInvalidCoderate)
	}
	p, err := g.PDCCH.AllocDL(ctx, pdcch.SIB, ssID, aggIdx, nil)
	if err != nil {
		a.log.Warn(ctx, "cannot allocate SI due to lack of PDCCH space", logging.Int("si_idx", siIdx))
		return a.fail(KindSI, pdcchErr(err))
	}
	cs, _ := a.cfg.Cfg.Coreset(coresetID)

	g.DLPRBs.Add(grant)
	d := &p.DCI
	setCtx(&d.Ctx, ss, cs, result.RNTITypeSI, result.SIRNTI, result.Format1_0)
	fillDLCommon(d, a.cfg)
	d.MCS = mcs
	d.RV = rvIdx(siNtx)
	d.FreqAllocType0 = false
	d.FreqDomain = dlFreqDomain(a.cfg, d.Ctx, grant)
	if siIdx > 0 {
		d.SII = 1
	}
	g.DL.PDSCH = append(g.DL.PDSCH, result.PDSCH{
		RNTI:       result.SIRNTI,
		RNTIType:   result.RNTITypeSI,
		PID:        -1,
		Grant:      grant,
		NofPRB:     prbs.Length(),
		MCS:        mcs,
		TBS:        tb.TBS,
		CodeRate:   tb.CodeRate,
		Softbuffer: sb,
		SIIdx:      siIdx,
	})
	g.DL.SIBIdxs = append(g.DL.SIBIdxs, siIdx)
	a.rec.IncGrant(a.cfg.CC, KindSI)
	return nil
}

// AllocRARAndMsg3 commits one RAR PDSCH on prbs together with a Msg3 PUSCH
// for every entry of pending. Either all of them are committed or none.
func (a *SlotAllocator) AllocRARAndMsg3(ctx context.Context, raRNTI uint16, aggIdx int, prbs rbgrid.PRBInterval, pending []result.RARInfo) error {
	g := a.grid.At(a.pdcchSlot)
	msg3Slot := a.pdcchSlot.Add(a.cfg.Msg3Delay)
	mg := a.grid.At(msg3Slot)
	if err := a.verifyPUSCHSpace(ctx, mg, nil); err != nil {
		return a.fail(KindRAR, err)
	}
	if err := a.verifyPDSCHSpace(ctx, g, g, nil); err != nil {
		return a.fail(KindRAR, err)
	}
	if len(g.DL.SSB) > 0 {
		a.log.Debug(ctx, "skipping RAR allocation, concurrent PDSCH and SSB not supported")
		return a.fail(KindRAR, ErrNoSchSpace)
	}
	if len(pending) == 0 || len(pending) > params.MaxMsg3PerRAR || prbs.Empty() {
		a.log.Error(ctx, "invalid RAR allocation request", logging.Int("nof_grants", len(pending)))
		return a.fail(KindRAR, ErrInvalidGrantParams)
	}
	if len(g.DL.RAR) >= params.MaxGrants || len(mg.UL.PUSCH)+len(pending) > params.MaxGrants {
		return a.fail(KindRAR, ErrNoGrantSpace)
	}
	for _, rach := range pending {
		u := a.ues.Get(rach.TempCRNTI)
		if u == nil {
			a.log.Info(ctx, "postponing RAR allocation, UE not yet created", logging.RNTI(rach.TempCRNTI))
			return a.fail(KindRAR, ErrNoRNTIOpportunity)
		}
		if u.Carrier().HARQ().FindEmptyULHarq() == nil {
			return a.fail(KindRAR, ErrNoRNTIOpportunity)
		}
	}
	raSS := a.cfg.RASearchSpace()
	grant := rbgrid.GrantFromInterval(prbs)
	if !addressable(a.cfg, raSS, result.Format1_0, grant) {
		return a.fail(KindRAR, ErrInvalidGrantParams)
	}
	if g.DLPRBs.Collides(grant) {
		a.log.Debug(ctx, "RAR PRBs collide with an earlier allocation", logging.String("prbs", prbs.String()))
		return a.fail(KindRAR, ErrSchCollision)
	}

	totalPRBs := params.Msg3PRBs * len(pending)
	msg3PRBs := rbgrid.FindEmptyInterval(mg.ULPRBs.PRBs(), totalPRBs, 0)
	if msg3PRBs.Length() < totalPRBs {
		a.log.Debug(ctx, "no PUSCH space for Msg3", logging.Int("nof_prbs", totalPRBs))
		return a.fail(KindRAR, ErrSchCollision)
	}

	mcs := a.cfg.Args().RARMCS
	tb := tbs.Compute(prbs.Length(), a.cfg.Cfg.PDSCHSymbols, mcs)
	if tb.Bytes() < rarSubPDUBytes*len(pending) || aboveCodeRate(tb.CodeRate) {
		return a.fail(KindRAR, ErrInvalidCoderate)
	}

	p, err := g.PDCCH.AllocDL(ctx, pdcch.RAR, raSS.ID, aggIdx, nil)
	if err != nil {
		a.log.Debug(ctx, "no PDCCH space for RAR", logging.Uint("ra_rnti", uint(raRNTI)))
		return a.fail(KindRAR, pdcchErr(err))
	}

	// Commit.
	cs, _ := a.cfg.Cfg.Coreset(raSS.CoresetID)
	g.DLPRBs.Add(grant)
	d := &p.DCI
	setCtx(&d.Ctx, raSS, cs, result.RNTITypeRA, raRNTI, result.Format1_0)
	fillDLCommon(d, a.cfg)
	d.MCS = mcs
	d.FreqDomain = dlFreqDomain(a.cfg, d.Ctx, grant)
	g.DL.PDSCH = append(g.DL.PDSCH, result.PDSCH{
		RNTI:       raRNTI,
		RNTIType:   result.RNTITypeRA,
		PID:        -1,
		Grant:      grant,
		NofPRB:     prbs.Length(),
		MCS:        mcs,
		TBS:        tb.TBS,
		CodeRate:   tb.CodeRate,
		Softbuffer: g.RARSoftbuffer,
	})

	rar := result.RAR{RARNTI: raRNTI, Grants: make([]result.Msg3Grant, 0, len(pending))}
	msg3MCS := a.cfg.Args().Msg3MCS
	last := msg3PRBs.Start()
	for _, rach := range pending {
		u := a.ues.Get(rach.TempCRNTI)
		h := u.Carrier().HARQ().FindEmptyULHarq()
		msg3Grant := rbgrid.GrantFromInterval(rbgrid.NewPRBInterval(last, last+params.Msg3PRBs))
		last += params.Msg3PRBs
		if !h.NewTx(msg3Slot, msg3Slot, msg3Grant, msg3MCS, maxMsg3Retx) {
			panic(fmt.Sprintf("bwp: failed to allocate Msg3 HARQ for rnti=0x%x", rach.TempCRNTI))
		}
		if u.HUL == h {
			u.HUL = nil
		}
		mtb := tbs.Compute(params.Msg3PRBs, a.cfg.Cfg.PUSCHSymbols, msg3MCS)
		h.SetTBS(mtb.TBS)

		var dci result.ULDCI
		dci.Ctx = result.DCICtx{
			SSID:      raSS.ID,
			SSType:    raSS.Type,
			CoresetID: raSS.CoresetID,
			RNTIType:  result.RNTITypeTC,
			RNTI:      rach.TempCRNTI,
			Format:    result.Format0_0,
		}
		fillULCommon(&dci, a.cfg)
		fillULHARQ(&dci, h)
		dci.FreqDomain = ulFreqDomain(a.cfg, msg3Grant)
		rar.Grants = append(rar.Grants, result.Msg3Grant{Info: rach, DCI: dci})

		mg.UL.PUSCH = append(mg.UL.PUSCH, result.PUSCH{
			RNTI:       rach.TempCRNTI,
			PID:        h.PID(),
			Grant:      msg3Grant,
			NofPRB:     params.Msg3PRBs,
			MCS:        msg3MCS,
			TBS:        mtb.TBS,
			Softbuffer: h.Softbuffer(),
		})
		a.rec.IncGrant(a.cfg.CC, KindMsg3)
	}
	mg.ULPRBs.Add(rbgrid.GrantFromInterval(msg3PRBs))
	g.DL.RAR = append(g.DL.RAR, rar)
	a.rec.IncGrant(a.cfg.CC, KindRAR)
	return nil
}

// AllocPDSCH commits a DL grant for u using the DL HARQ process reserved for
// the slot. A first transmission lowers its MCS while the effective code rate
// exceeds tbs.MaxCodeRate; a retransmission keeps its MCS and TBS.
func (a *SlotAllocator) AllocPDSCH(ctx context.Context, u *ue.SlotUE, grant rbgrid.Grant) error {
	pg := a.grid.At(u.PDCCHSlot)
	sg := a.grid.At(u.PDSCHSlot)
	ug := a.grid.At(u.UCISlot)
	if err := a.verifyPDSCHSpace(ctx, sg, pg, ug); err != nil {
		return a.fail(KindPDSCH, err)
	}
	if err := a.verifyUE(ctx, u.Params(), u.HDL != nil); err != nil {
		return a.fail(KindPDSCH, err)
	}
	h := u.HDL
	if !validGrant(&sg.DLPRBs, !h.Empty(), h.Grant(), grant) {
		return a.fail(KindPDSCH, ErrInvalidGrantParams)
	}
	if len(sg.DL.SSB) > 0 {
		a.log.Debug(ctx, "skipping PDSCH allocation, concurrent PDSCH and SSB not supported", logging.RNTI(u.RNTI))
		return a.fail(KindPDSCH, ErrNoSchSpace)
	}
	if sg.DLPRBs.Collides(grant) {
		return a.fail(KindPDSCH, ErrSchCollision)
	}
	nofPRB := sg.DLPRBs.NofPRBs(grant)
	symbols := a.cfg.Cfg.PDSCHSymbols
	if h.Empty() {
		if lowest := tbs.Compute(nofPRB, symbols, 0); lowest.TBS == 0 || aboveCodeRate(lowest.CodeRate) {
			return a.fail(KindPDSCH, ErrInvalidCoderate)
		}
	}

	aggIdx := a.cfg.Args().PDCCHAggrIdx
	ss, ok := a.selectSearchSpace(pg, u.Params(), aggIdx, grant, dlFormat)
	if !ok {
		return a.fail(KindPDSCH, ErrNoCCHSpace)
	}
	p, err := pg.PDCCH.AllocDL(ctx, pdcch.DLData, ss.ID, aggIdx, u.Params())
	if err != nil {
		return a.fail(KindPDSCH, pdcchErr(err))
	}

	mcs := a.cfg.Args().FixedDLMCS
	if h.Empty() {
		if !h.NewTx(u.PDSCHSlot, u.UCISlot, grant, mcs, u.Params().MaxHARQTx()) {
			panic(fmt.Sprintf("bwp: failed to allocate DL HARQ for rnti=0x%x", u.RNTI))
		}
	} else {
		if !h.NewRetx(u.PDSCHSlot, u.UCISlot, grant) {
			panic(fmt.Sprintf("bwp: failed to allocate DL HARQ retx for rnti=0x%x", u.RNTI))
		}
		mcs = h.MCS()
	}

	cs, _ := a.cfg.Cfg.Coreset(ss.CoresetID)
	format := dlFormat(ss)
	var tb tbs.Result
	for {
		d := &p.DCI
		setCtx(&d.Ctx, ss, cs, result.RNTITypeC, u.RNTI, format)
		fillDLCommon(d, a.cfg)
		fillDLHARQ(d, h)
		d.FreqAllocType0 = grant.IsAllocType0()
		d.FreqDomain = dlFreqDomain(a.cfg, d.Ctx, grant)
		if format == result.Format1_0 {
			d.HARQFeedback = u.UCISlot.Sub(u.PDSCHSlot) - 1
		} else {
			d.HARQFeedback = int(u.PDSCHSlot.SlotIdx())
		}
		d.PUCCHResource = 0
		d.DAI = countACKs(ug.PendingACKs, u.RNTI) % 4
		ug.PendingACKs = append(ug.PendingACKs, result.HARQAck{RNTI: u.RNTI, CC: a.cfg.CC, PID: h.PID(), DAI: d.DAI})

		tb = tbs.Compute(nofPRB, symbols, mcs)
		if h.NofRetx() == 0 {
			h.SetTBS(tb.TBS)
		} else if tb.TBS != h.TBS() {
			panic(fmt.Sprintf("bwp: TBS changed in retx for rnti=0x%x: %d != %d", u.RNTI, tb.TBS, h.TBS()))
		}
		if h.NofRetx() > 0 || !aboveCodeRate(tb.CodeRate) || mcs <= 0 {
			break
		}
		mcs--
		h.SetMCS(mcs)
		ug.PendingACKs = ug.PendingACKs[:len(ug.PendingACKs)-1]
	}

	sg.DLPRBs.Add(grant)
	pdsch := result.PDSCH{
		RNTI:       u.RNTI,
		RNTIType:   result.RNTITypeC,
		PID:        h.PID(),
		Grant:      grant.Clone(),
		NofPRB:     nofPRB,
		MCS:        mcs,
		TBS:        tb.TBS,
		CodeRate:   tb.CodeRate,
		NofRetx:    h.NofRetx(),
		Softbuffer: h.Softbuffer(),
	}
	if h.NofRetx() == 0 {
		pdsch.SubPDUs = u.UE().BuildSubPDUs(tb.Bytes())
	}
	sg.DL.PDSCH = append(sg.DL.PDSCH, pdsch)
	a.rec.IncGrant(a.cfg.CC, KindPDSCH)
	return nil
}

// AllocPUSCH commits an UL grant for u at the fixed UL MCS.
func (a *SlotAllocator) AllocPUSCH(ctx context.Context, u *ue.SlotUE, grant rbgrid.Grant) error {
	pg := a.grid.At(u.PDCCHSlot)
	ug := a.grid.At(u.PUSCHSlot)
	if err := a.verifyPUSCHSpace(ctx, ug, pg); err != nil {
		return a.fail(KindPUSCH, err)
	}
	if err := a.verifyUE(ctx, u.Params(), u.HUL != nil); err != nil {
		return a.fail(KindPUSCH, err)
	}
	h := u.HUL
	if !validGrant(&ug.ULPRBs, !h.Empty(), h.Grant(), grant) {
		return a.fail(KindPUSCH, ErrInvalidGrantParams)
	}
	if ug.ULPRBs.Collides(grant) {
		return a.fail(KindPUSCH, ErrSchCollision)
	}
	aggIdx := a.cfg.Args().PDCCHAggrIdx
	ss, ok := a.selectSearchSpace(pg, u.Params(), aggIdx, grant, ulFormat)
	if !ok {
		return a.fail(KindPUSCH, ErrNoCCHSpace)
	}
	p, err := pg.PDCCH.AllocUL(ctx, ss.ID, aggIdx, u.Params())
	if err != nil {
		return a.fail(KindPUSCH, pdcchErr(err))
	}

	if h.Empty() {
		if !h.NewTx(u.PUSCHSlot, u.PUSCHSlot, grant, a.cfg.Args().FixedULMCS, u.Params().MaxHARQTx()) {
			panic(fmt.Sprintf("bwp: failed to allocate UL HARQ for rnti=0x%x", u.RNTI))
		}
	} else if !h.NewRetx(u.PUSCHSlot, u.PUSCHSlot, grant) {
		panic(fmt.Sprintf("bwp: failed to allocate UL HARQ retx for rnti=0x%x", u.RNTI))
	}

	cs, _ := a.cfg.Cfg.Coreset(ss.CoresetID)
	d := &p.DCI
	setCtx(&d.Ctx, ss, cs, result.RNTITypeC, u.RNTI, ulFormat(ss))
	fillULCommon(d, a.cfg)
	fillULHARQ(d, h)
	d.FreqAllocType0 = grant.IsAllocType0()
	d.FreqDomain = ulFreqDomain(a.cfg, grant)

	nofPRB := ug.ULPRBs.NofPRBs(grant)
	tb := tbs.Compute(nofPRB, a.cfg.Cfg.PUSCHSymbols, h.MCS())
	if h.NofRetx() == 0 {
		h.SetTBS(tb.TBS)
	} else if tb.TBS != h.TBS() {
		panic(fmt.Sprintf("bwp: TBS changed in UL retx for rnti=0x%x: %d != %d", u.RNTI, tb.TBS, h.TBS()))
	}
	ug.ULPRBs.Add(grant)
	ug.UL.PUSCH = append(ug.UL.PUSCH, result.PUSCH{
		RNTI:       u.RNTI,
		PID:        h.PID(),
		Grant:      grant.Clone(),
		NofPRB:     nofPRB,
		MCS:        h.MCS(),
		TBS:        tb.TBS,
		NofRetx:    h.NofRetx(),
		Softbuffer: h.Softbuffer(),
	})
	a.rec.IncGrant(a.cfg.CC, KindPUSCH)
	return nil
}

// aboveCodeRate reports an effective code rate over the first transmission
// ceiling. A rate of exactly tbs.MaxCodeRate is accepted.
func aboveCodeRate(r float64) bool { return r > tbs.MaxCodeRate }

// validGrant reports whether grant lies inside the BWP of bm and, for a
// retransmission, occupies as many PRBs as prev so the TBS is unchanged.
func validGrant(bm *rbgrid.BWPBitmap, retx bool, prev, grant rbgrid.Grant) bool {
	if !bm.Fits(grant) {
		return false
	}
	if !retx {
		return true
	}
	return prev.SameShape(grant) && bm.NofPRBs(prev) == bm.NofPRBs(grant)
}

// selectSearchSpace picks the search space of the UE with the most free
// candidates at aggIdx that can address grant. Ties go to the UE-specific
// search space, then to the larger candidate table, then to the lower id.
func (a *SlotAllocator) selectSearchSpace(pg *SlotGrid, cp *ue.CarrierParams, aggIdx int, grant rbgrid.Grant, format func(model.SearchSpaceConfig) result.DCIFormat) (model.SearchSpaceConfig, bool) {
	var (
		best                model.SearchSpaceConfig
		found               bool
		bestFree, bestTotal int
		bestDedicated       bool
	)
	for _, id := range cp.SearchSpaceIDs() {
		ss, ok := cp.SearchSpace(id)
		if !ok || !addressable(a.cfg, ss, format(ss), grant) {
			continue
		}
		total := len(cp.CCEPositions(id, pg.SlotIdx(), aggIdx))
		if total == 0 {
			continue
		}
		free := pg.PDCCH.FreeCandidates(id, aggIdx, cp)
		dedicated := !ss.Type.IsCommon()
		better := !found ||
			free > bestFree ||
			free == bestFree && dedicated && !bestDedicated ||
			free == bestFree && dedicated == bestDedicated && total > bestTotal
		if better {
			best, found = ss, true
			bestFree, bestTotal, bestDedicated = free, total, dedicated
		}
	}
	return best, found
}

func (a *SlotAllocator) verifyPDSCHSpace(ctx context.Context, pdschGrid, pdcchGrid, uciGrid *SlotGrid) error {
	if !pdschGrid.IsDL() || !pdcchGrid.IsDL() {
		a.log.Warn(ctx, "trying to allocate PDSCH in TDD non-DL slot", logging.Uint("slot_idx", uint(pdschGrid.SlotIdx())))
		return ErrNoSchSpace
	}
	if len(pdcchGrid.DL.PDCCHDL) >= params.MaxGrants {
		a.log.Warn(ctx, "maximum number of DL PDCCH allocations reached")
		return ErrNoCCHSpace
	}
	if len(pdschGrid.DL.PDSCH) >= params.MaxGrants {
		a.log.Warn(ctx, "maximum number of DL PDSCH grants reached")
		return ErrNoSchSpace
	}
	if uciGrid != nil && len(uciGrid.PendingACKs) >= params.MaxGrants {
		a.log.Warn(ctx, "no space for HARQ-ACK")
		return ErrNoGrantSpace
	}
	return nil
}

func (a *SlotAllocator) verifyPUSCHSpace(ctx context.Context, puschGrid, pdcchGrid *SlotGrid) error {
	if !puschGrid.IsUL() {
		a.log.Warn(ctx, "trying to allocate PUSCH in TDD non-UL slot", logging.Uint("slot_idx", uint(puschGrid.SlotIdx())))
		return ErrNoSchSpace
	}
	if pdcchGrid != nil {
		if !pdcchGrid.IsDL() {
			a.log.Warn(ctx, "trying to allocate PDCCH in TDD non-DL slot", logging.Uint("slot_idx", uint(pdcchGrid.SlotIdx())))
			return ErrNoSchSpace
		}
		if len(pdcchGrid.DL.PDCCHUL) >= params.MaxGrants {
			a.log.Warn(ctx, "maximum number of UL PDCCH allocations reached")
			return ErrNoGrantSpace
		}
	}
	if len(puschGrid.UL.PUSCH) >= params.MaxGrants {
		a.log.Warn(ctx, "maximum number of PUSCH allocations reached")
		return ErrNoGrantSpace
	}
	return nil
}

func (a *SlotAllocator) verifyUE(ctx context.Context, cp *ue.CarrierParams, hasHARQ bool) error {
	if cp.ActiveBWPID() != a.cfg.BWPID || cp.CC() != a.cfg.CC {
		a.log.Warn(ctx, "trying to allocate UE in inactive BWP", logging.RNTI(cp.RNTI()), logging.Int("bwp_id", cp.ActiveBWPID()))
		return ErrNoRNTIOpportunity
	}
	if !hasHARQ {
		a.log.Warn(ctx, "trying to allocate UE with no available HARQ", logging.RNTI(cp.RNTI()))
		return ErrNoRNTIOpportunity
	}
	return nil
}

func (a *SlotAllocator) siLength(siIdx int) int {
	for _, si := range a.cfg.Cell.Cfg.SIBs {
		if si.Index == siIdx {
			return si.LenBytes
		}
	}
	return 0
}

func (a *SlotAllocator) fail(kind string, err error) error {
	a.rec.IncAllocFailure(a.cfg.CC, kind, ResultLabel(err))
	return err
}

func pdcchErr(err error) error {
	switch {
	case errors.Is(err, pdcch.ErrNoSpace):
		return ErrNoCCHSpace
	case errors.Is(err, pdcch.ErrInvalidArgs):
		return ErrInvalidGrantParams
	default:
		return ErrOtherCause
	}
}

func countACKs(acks []result.HARQAck, rnti uint16) int {
	n := 0
	for _, a := range acks {
		if a.RNTI == rnti {
			n++
		}
	}
	return n
}
