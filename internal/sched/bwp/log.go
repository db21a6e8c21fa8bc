package bwp

import (
	"context"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
)

// LogResult writes one info line per grant decided for the slot of g.
func LogResult(ctx context.Context, log logging.Logger, g *SlotGrid) {
	if log == nil {
		return
	}
	for _, p := range g.DL.PDCCHDL {
		d := p.DCI
		switch d.Ctx.RNTIType {
		case result.RNTITypeC:
			kind := "tx"
			if pdsch := findPDSCH(g.DL.PDSCH, d.Ctx.RNTI, d.PID); pdsch != nil && pdsch.NofRetx > 0 {
				kind = "retx"
			}
			log.Info(ctx, "DL "+kind,
				logging.RNTI(d.Ctx.RNTI),
				logging.Int("pid", d.PID),
				logging.Int("cce", int(d.Ctx.Location.NCCE)),
				logging.Int("agg_idx", d.Ctx.Location.AggIdx),
				logging.String("format", d.Ctx.Format.String()),
				logging.Int("mcs", d.MCS),
				logging.Bool("ndi", d.NDI),
				logging.Int("rv", d.RV),
				logging.Int("dai", d.DAI),
				logging.Int("k1", d.HARQFeedback+1))
		case result.RNTITypeRA:
			log.Info(ctx, "RAR",
				logging.Uint("ra_rnti", uint(d.Ctx.RNTI)),
				logging.Int("cce", int(d.Ctx.Location.NCCE)),
				logging.Int("mcs", d.MCS))
		case result.RNTITypeSI:
			log.Info(ctx, "SI",
				logging.Int("sii", d.SII),
				logging.Int("cce", int(d.Ctx.Location.NCCE)),
				logging.Int("rv", d.RV))
		}
	}
	for _, r := range g.DL.RAR {
		for _, m := range r.Grants {
			log.Info(ctx, "Msg3 grant",
				logging.Uint("ra_rnti", uint(r.RARNTI)),
				logging.RNTI(m.Info.TempCRNTI),
				logging.Int("preamble", m.Info.PreambleIdx),
				logging.Int("pid", m.DCI.PID),
				logging.Int("mcs", m.DCI.MCS))
		}
	}
	for _, p := range g.DL.PDCCHUL {
		d := p.DCI
		log.Info(ctx, "UL grant",
			logging.RNTI(d.Ctx.RNTI),
			logging.Int("pid", d.PID),
			logging.Int("cce", int(d.Ctx.Location.NCCE)),
			logging.String("format", d.Ctx.Format.String()),
			logging.Int("mcs", d.MCS),
			logging.Bool("ndi", d.NDI),
			logging.Int("rv", d.RV))
	}
}

func findPDSCH(list []result.PDSCH, rnti uint16, pid int) *result.PDSCH {
	for i := range list {
		if list[i].RNTI == rnti && list[i].PID == pid {
			return &list[i]
		}
	}
	return nil
}
