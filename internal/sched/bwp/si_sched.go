package bwp

import (
	"context"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/tbs"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

type siMessage struct {
	cfg        model.SIConfig
	nofPRB     int
	softbuffer *softbuffer.Tx
	// window is invalid outside the SI window.
	window slotpoint.Interval
	sent   bool
	nofTx  int
}

// SISched broadcasts SIB1 and the SI messages. Each message is sent once
// per window, retried on every DL slot of the window until it fits.
type SISched struct {
	cfg *params.BWPParams
	log logging.Logger
	sis []*siMessage
}

// NewSISched prepares one entry per configured SI message, with its own
// softbuffer from pool.
func NewSISched(cfg *params.BWPParams, pool *softbuffer.Pool, log logging.Logger) *SISched {
	if log == nil {
		log = logging.Noop()
	}
	s := &SISched{cfg: cfg, log: log}
	lim := commonPRBLimits(cfg, 0)
	for _, si := range cfg.Cell.Cfg.SIBs {
		if si.PeriodFrames <= 0 || si.WindowSlots <= 0 {
			continue
		}
		s.sis = append(s.sis, &siMessage{
			cfg:        si,
			nofPRB:     tbs.MinPRBs(si.LenBytes, cfg.Cfg.PDSCHSymbols, cfg.Args().SIMCS, lim.Length()),
			softbuffer: pool.GetTx(cfg.NofPRB),
			window:     slotpoint.Interval{Start: slotpoint.Invalid(), Stop: slotpoint.Invalid()},
		})
	}
	return s
}

// RunSlot opens the windows starting at the PDCCH slot and allocates the
// messages still due in their window.
func (s *SISched) RunSlot(ctx context.Context, a *SlotAllocator) {
	pdcchSlot := a.PDCCHSlot()
	periodBase := s.cfg.Cell.SlotsPerFrame
	for _, si := range s.sis {
		if si.window.Start.Valid() && pdcchSlot.GreaterEq(si.window.Stop) {
			if !si.sent {
				s.log.Warn(ctx, "SI window closed without transmission", logging.Int("si_idx", si.cfg.Index))
			}
			si.window = slotpoint.Interval{Start: slotpoint.Invalid(), Stop: slotpoint.Invalid()}
		}
		period := uint32(si.cfg.PeriodFrames) * periodBase
		if !si.window.Start.Valid() && pdcchSlot.ToUint()%period == uint32(si.cfg.SlotOffset)%period {
			si.window = slotpoint.NewInterval(pdcchSlot, si.cfg.WindowSlots)
			si.sent = false
		}
		if !si.window.Start.Valid() || si.sent || !s.cfg.Cell.IsDL(pdcchSlot) {
			continue
		}

		g := a.Grid(pdcchSlot)
		lim := commonPRBLimits(s.cfg, 0)
		free := g.DLPRBs.PRBs().Clone()
		free.Fill(0, lim.Start())
		free.Fill(lim.Stop(), free.Len())
		iv := rbgrid.FindEmptyInterval(free, si.nofPRB, lim.Start())
		if iv.Length() < si.nofPRB {
			s.log.Debug(ctx, "no PRBs for SI", logging.Int("si_idx", si.cfg.Index), logging.Int("nof_prbs", si.nofPRB))
			continue
		}
		if err := a.AllocSI(ctx, s.cfg.Args().PDCCHAggrIdx, si.cfg.Index, si.nofTx, iv, si.softbuffer); err != nil {
			s.log.Debug(ctx, "SI allocation postponed", logging.Int("si_idx", si.cfg.Index), logging.String("cause", ResultLabel(err)))
			continue
		}
		si.sent = true
		si.nofTx++
	}
}
