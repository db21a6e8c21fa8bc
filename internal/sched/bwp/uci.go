package bwp

import (
	"context"
	"slices"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
)

// PostprocessDecisions gathers the UCI due in the PDCCH slot of a: HARQ-ACK
// bits committed by earlier PDSCH grants plus the SR and periodic CSI
// occasions of the reserved UEs. UCI rides on the UE's PUSCH when it has one
// in the slot, otherwise a PUCCH entry is added.
func PostprocessDecisions(ctx context.Context, a *SlotAllocator, log logging.Logger) {
	if log == nil {
		log = logging.Noop()
	}
	s := a.PDCCHSlot()
	g := a.Grid(s)
	if !g.IsUL() {
		if len(g.PendingACKs) > 0 {
			log.Warn(ctx, "HARQ-ACK pending in a non-UL slot", logging.Int("nof_acks", len(g.PendingACKs)))
		}
		return
	}

	ucis := make(map[uint16]*result.UCI)
	get := func(rnti uint16) *result.UCI {
		u, ok := ucis[rnti]
		if !ok {
			u = &result.UCI{}
			ucis[rnti] = u
		}
		return u
	}
	for _, ack := range g.PendingACKs {
		u := get(ack.RNTI)
		u.ACKs = append(u.ACKs, ack)
	}
	for _, su := range a.UEs().All() {
		p := su.Params()
		if p.SROpportunity(s) {
			get(su.RNTI).SR = true
		}
		if p.CSIOpportunity(s) {
			get(su.RNTI).CSI = true
		}
	}

	rntis := make([]uint16, 0, len(ucis))
	for rnti := range ucis {
		rntis = append(rntis, rnti)
	}
	slices.Sort(rntis)

	for _, rnti := range rntis {
		uci := ucis[rnti]
		idx := slices.IndexFunc(g.UL.PUSCH, func(p result.PUSCH) bool { return p.RNTI == rnti })
		if idx >= 0 {
			g.UL.PUSCH[idx].UCI = *uci
			continue
		}
		if len(g.UL.PUCCH) >= params.MaxGrants {
			log.Warn(ctx, "no PUCCH space for UCI", logging.RNTI(rnti), logging.Int("nof_acks", len(uci.ACKs)))
			continue
		}
		g.UL.PUCCH = append(g.UL.PUCCH, result.PUCCH{RNTI: rnti, Resource: len(g.UL.PUCCH), UCI: *uci})
	}
}
