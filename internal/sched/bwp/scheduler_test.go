package bwp

import (
	"context"
	"testing"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/tbs"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

func TestSISchedOncePerWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	si := NewSISched(f.cfg, f.pool, nil)

	// SIB1: period 16 frames, offset 1, window 5 slots.
	var sent []uint32
	var rvs []int
	for n := uint32(150); n < 330; n++ {
		a := f.allocator(slotpoint.New(0, n), nil)
		si.RunSlot(ctx, a)
		g := a.Grid(a.PDCCHSlot())
		if len(g.DL.SIBIdxs) > 0 {
			sent = append(sent, n)
			rvs = append(rvs, g.DL.PDCCHDL[0].DCI.RV)
			if g.DL.PDSCH[0].RNTI != result.SIRNTI || g.DL.PDSCH[0].TBS/8 < 101 {
				t.Fatalf("slot %d: unexpected SI PDSCH %+v", n, g.DL.PDSCH[0])
			}
			if g.DL.PDCCHDL[0].DCI.Ctx.SSID != 0 || g.DL.PDCCHDL[0].DCI.SII != 0 {
				t.Fatalf("slot %d: unexpected SI DCI %+v", n, g.DL.PDCCHDL[0].DCI)
			}
		}
		g.Reset()
	}
	if len(sent) != 2 || sent[0] != 161 || sent[1] != 321 {
		t.Fatalf("SI sent in slots %v, want [161 321]", sent)
	}
	if rvs[0] != 0 || rvs[1] != 2 {
		t.Fatalf("SI redundancy versions %v, want [0 2]", rvs)
	}
}

func TestSISchedRetriesInsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	si := NewSISched(f.cfg, f.pool, nil)

	first := slotpoint.New(0, 161)
	a := f.allocator(first, nil)
	g := a.Grid(first)
	g.DLPRBs.Add(prbGrant(0, f.cfg.NofPRB))
	si.RunSlot(ctx, a)
	if len(g.DL.SIBIdxs) != 0 {
		t.Fatalf("SI allocated on a full grid")
	}

	next := first.Add(1)
	a = f.allocator(next, nil)
	si.RunSlot(ctx, a)
	if got := a.Grid(next).DL.SIBIdxs; len(got) != 1 {
		t.Fatalf("SI not retried in the next slot of the window")
	}
}

func TestTimeRRServesAllUEs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1, u2 := f.newUE(t, 0x4601), f.newUE(t, 0x4602)
	for _, u := range []*ue.UE{u1, u2} {
		u.DLBufferState(4, 1000, 0)
		u.ULSRInfo()
	}
	slot := slotpoint.New(0, 101)
	ues := reserve(ctx, slot, u1, u2)
	a := f.allocator(slot, ues)
	rr := NewTimeRR(nil)
	rr.SchedDL(ctx, a)
	rr.SchedUL(ctx, a)

	g := a.Grid(slot)
	if len(g.DL.PDSCH) != 2 {
		t.Fatalf("pdsch = %d, want 2", len(g.DL.PDSCH))
	}
	// Slot 101 with two UEs starts at the second one.
	if g.DL.PDSCH[0].RNTI != 0x4602 {
		t.Fatalf("round robin started at 0x%x", g.DL.PDSCH[0].RNTI)
	}
	want := tbs.MinPRBs(1000, f.cfg.Cfg.PDSCHSymbols, f.cfg.Args().FixedDLMCS, f.cfg.NofPRB)
	for _, p := range g.DL.PDSCH {
		if !p.Grant.IsAllocType0() || p.NofPRB < want {
			t.Fatalf("grant %s is smaller than %d PRBs", p.Grant, want)
		}
	}
	ug := a.Grid(ues.Get(0x4601).PUSCHSlot)
	if len(ug.UL.PUSCH) != 2 {
		t.Fatalf("pusch = %d, want 2", len(ug.UL.PUSCH))
	}
}

func TestTimeRRRelocatesRetx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.newUE(t, 0x4601)
	h := u.Carrier(0).HARQ().DLHarq(0)
	prev := prbGrant(20, 30)
	h.NewTx(slotpoint.New(0, 10), slotpoint.New(0, 14), prev, 10, 4)
	h.SetTBS(tbs.Compute(10, f.cfg.Cfg.PDSCHSymbols, 10).TBS)
	u.Carrier(0).DLAckInfo(ctx, 0, 0, false)

	slot := slotpoint.New(0, 14+params.TxDelay)
	a := f.allocator(slot, reserve(ctx, slot, u))
	g := a.Grid(slot)
	g.DLPRBs.Add(prbGrant(25, 26))
	NewTimeRR(nil).SchedDL(ctx, a)

	if len(g.DL.PDSCH) != 1 {
		t.Fatalf("retx not scheduled")
	}
	p := g.DL.PDSCH[0]
	if p.NofRetx != 1 || p.NofPRB != 10 || p.Grant.Equal(prev) {
		t.Fatalf("unexpected retx %+v", p)
	}
}

func TestPostprocessUCI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1, u2 := f.newUE(t, 0x4601), f.newUE(t, 0x4602)
	u1.DLBufferState(4, 500, 0)
	u1.ULSRInfo()
	u2.DLBufferState(4, 500, 0)
	slot := slotpoint.New(0, 101)
	ues := reserve(ctx, slot, u1, u2)
	a := f.allocator(slot, ues)
	nofRBG := a.Grid(slot).DLPRBs.NofRBG()
	if err := a.AllocPDSCH(ctx, ues.Get(0x4601), rbgGrant(nofRBG, 0, 2)); err != nil {
		t.Fatalf("AllocPDSCH 0x4601: %v", err)
	}
	if err := a.AllocPDSCH(ctx, ues.Get(0x4602), rbgGrant(nofRBG, 2, 4)); err != nil {
		t.Fatalf("AllocPDSCH 0x4602: %v", err)
	}
	if err := a.AllocPUSCH(ctx, ues.Get(0x4601), prbGrant(0, 5)); err != nil {
		t.Fatalf("AllocPUSCH: %v", err)
	}

	uciSlot := ues.Get(0x4601).UCISlot
	PostprocessDecisions(ctx, f.allocator(uciSlot, nil), nil)
	g := a.Grid(uciSlot)
	if len(g.UL.PUSCH) != 1 || len(g.UL.PUSCH[0].UCI.ACKs) != 1 {
		t.Fatalf("HARQ-ACK of 0x4601 must ride on its PUSCH: %+v", g.UL.PUSCH)
	}
	if len(g.UL.PUCCH) != 1 || g.UL.PUCCH[0].RNTI != 0x4602 || len(g.UL.PUCCH[0].UCI.ACKs) != 1 {
		t.Fatalf("unexpected PUCCH list %+v", g.UL.PUCCH)
	}
}

func TestPostprocessSROpportunity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.newUE(t, 0x4601)
	// SR every 40 slots at offset 0.
	slot := slotpoint.New(0, 120)
	a := f.allocator(slot, reserve(ctx, slot, u))
	PostprocessDecisions(ctx, a, nil)
	g := a.Grid(slot)
	if len(g.UL.PUCCH) != 1 || !g.UL.PUCCH[0].UCI.SR {
		t.Fatalf("expected an SR PUCCH, got %+v", g.UL.PUCCH)
	}
}

func TestManagerRunSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := NewManager(f.cfg, f.pool, nil, f.rec)

	out := m.RunSlot(ctx, slotpoint.New(0, 100), nil)
	if len(out.DL.SSB) != 1 {
		t.Fatalf("expected an SSB in slot 100")
	}
	if want := float64(params.SSBPRBs) / float64(f.cfg.NofPRB); out.Utilization.DL != want {
		t.Fatalf("DL utilization = %f, want %f", out.Utilization.DL, want)
	}
	if m.Grid().At(slotpoint.New(0, 100)).DLPRBs.PRBs().Any() {
		t.Fatalf("slot grid must be reset after RunSlot")
	}

	u := f.newUE(t, 0x4601)
	u.DLBufferState(4, 2000, 0)
	slot := slotpoint.New(0, 101)
	out = m.RunSlot(ctx, slot, reserve(ctx, slot, u))
	if len(out.DL.PDSCH) != 1 || len(out.DL.PDCCHDL) != 1 {
		t.Fatalf("pdsch=%d pdcch=%d, want 1/1", len(out.DL.PDSCH), len(out.DL.PDCCHDL))
	}
	if out.Utilization.DL <= 0 {
		t.Fatalf("DL utilization not reported")
	}
}
