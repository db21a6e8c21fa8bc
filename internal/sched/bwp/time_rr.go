package bwp

import (
	"context"
	"errors"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/tbs"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
)

// TimeRR is a round-robin data scheduler. Each slot starts at a different
// UE; retransmissions are served before new transmissions.
type TimeRR struct {
	log logging.Logger
}

func NewTimeRR(log logging.Logger) *TimeRR {
	if log == nil {
		log = logging.Noop()
	}
	return &TimeRR{log: log}
}

// stopRound reports errors after which no other UE can be served in the
// slot either.
func stopRound(err error) bool {
	return errors.Is(err, ErrNoGrantSpace) || errors.Is(err, ErrNoSchSpace)
}

func rrOrder(a *SlotAllocator) []*ue.SlotUE {
	all := a.UEs().All()
	n := len(all)
	if n == 0 {
		return nil
	}
	off := int(a.PDCCHSlot().ToUint() % uint32(n))
	return append(all[off:], all[:off]...)
}

// SchedDL allocates PDSCH for the UEs reserved in a.
func (s *TimeRR) SchedDL(ctx context.Context, a *SlotAllocator) {
	ues := rrOrder(a)
	if len(ues) == 0 || !a.BWP().Cell.IsDL(a.PDCCHSlot()) {
		return
	}

	for _, u := range ues {
		h := u.HDL
		if h == nil || h.Empty() {
			continue
		}
		bm := &a.Grid(u.PDSCHSlot).DLPRBs
		grant, ok := relocate(bm, h.Grant())
		if !ok {
			s.log.Debug(ctx, "no room for DL retx", logging.RNTI(u.RNTI), logging.Int("pid", h.PID()))
			continue
		}
		if err := a.AllocPDSCH(ctx, u, grant); err != nil && stopRound(err) {
			return
		}
	}

	mcs := a.BWP().Args().FixedDLMCS
	symbols := a.BWP().Cfg.PDSCHSymbols
	for _, u := range ues {
		h := u.HDL
		if h == nil || !h.Empty() || u.DLPendingBytes <= 0 {
			continue
		}
		bm := &a.Grid(u.PDSCHSlot).DLPRBs
		nprb := tbs.MinPRBs(u.DLPendingBytes, symbols, mcs, bm.NofPRB())
		grant, ok := freeRBGs(bm, nprb)
		if !ok {
			return
		}
		if err := a.AllocPDSCH(ctx, u, grant); err != nil && stopRound(err) {
			return
		}
	}
}

// SchedUL allocates PUSCH for the UEs reserved in a.
func (s *TimeRR) SchedUL(ctx context.Context, a *SlotAllocator) {
	ues := rrOrder(a)
	if len(ues) == 0 || !a.BWP().Cell.IsDL(a.PDCCHSlot()) {
		return
	}

	for _, u := range ues {
		h := u.HUL
		if h == nil || h.Empty() {
			continue
		}
		bm := &a.Grid(u.PUSCHSlot).ULPRBs
		grant, ok := relocate(bm, h.Grant())
		if !ok {
			s.log.Debug(ctx, "no room for UL retx", logging.RNTI(u.RNTI), logging.Int("pid", h.PID()))
			continue
		}
		if err := a.AllocPUSCH(ctx, u, grant); err != nil && stopRound(err) {
			return
		}
	}

	mcs := a.BWP().Args().FixedULMCS
	symbols := a.BWP().Cfg.PUSCHSymbols
	for _, u := range ues {
		h := u.HUL
		if h == nil || !h.Empty() || u.ULPendingBytes <= 0 {
			continue
		}
		bm := &a.Grid(u.PUSCHSlot).ULPRBs
		nprb := tbs.MinPRBs(u.ULPendingBytes, symbols, mcs, bm.NofPRB())
		iv := rbgrid.FindEmptyInterval(bm.PRBs(), nprb, 0)
		if iv.Empty() {
			return
		}
		if err := a.AllocPUSCH(ctx, u, rbgrid.GrantFromInterval(iv)); err != nil && stopRound(err) {
			return
		}
	}
}

// relocate returns prev when it is still free, otherwise a free grant of the
// same type covering the same number of PRBs, so that the TBS is preserved.
func relocate(bm *rbgrid.BWPBitmap, prev rbgrid.Grant) (rbgrid.Grant, bool) {
	if !bm.Collides(prev) {
		return prev, true
	}
	want := bm.NofPRBs(prev)
	if prev.IsAllocType1() {
		iv := rbgrid.FindEmptyInterval(bm.PRBs(), want, 0)
		if iv.Length() < want {
			return rbgrid.Grant{}, false
		}
		return rbgrid.GrantFromInterval(iv), true
	}
	n := prev.RBGs().Count()
	rbgs := bm.RBGs()
	for start := 0; start+n <= rbgs.Len(); start++ {
		if rbgs.AnyRange(start, start+n) {
			continue
		}
		cand := rbgrid.NewBitmap(rbgs.Len())
		cand.Fill(start, start+n)
		g := rbgrid.GrantFromRBGs(cand)
		if bm.NofPRBs(g) == want {
			return g, true
		}
	}
	return rbgrid.Grant{}, false
}

// freeRBGs picks the first run of free RBGs covering at least nprb PRBs, or
// the largest free run when none does.
func freeRBGs(bm *rbgrid.BWPBitmap, nprb int) (rbgrid.Grant, bool) {
	rbgs := bm.RBGs()
	n := max((nprb+bm.P()-1)/bm.P(), 1)
	for {
		iv := rbgrid.FindEmptyInterval(rbgs, n, 0)
		if iv.Empty() {
			return rbgrid.Grant{}, false
		}
		cand := rbgrid.NewBitmap(rbgs.Len())
		cand.Fill(iv.Start(), iv.Stop())
		g := rbgrid.GrantFromRBGs(cand)
		if bm.NofPRBs(g) >= nprb || iv.Length() < n {
			return g, true
		}
		n++
	}
}
