package bwp

import (
	"context"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// Utilization is the share of PRBs occupied in a slot, per direction.
type Utilization struct {
	DL, UL float64
}

// SlotOutput is what one BWP decided for one slot.
type SlotOutput struct {
	DL          result.DLSched
	UL          result.ULSched
	Utilization Utilization
}

// Manager owns the grids and schedulers of one BWP.
type Manager struct {
	cfg  *params.BWPParams
	log  logging.Logger
	rec  Recorder
	grid *ResGrid
	ra   *RASched
	si   *SISched
	rr   *TimeRR
}

func NewManager(cfg *params.BWPParams, pool *softbuffer.Pool, log logging.Logger, rec Recorder) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	if rec == nil {
		rec = noopRecorder{}
	}
	log = log.With(logging.Int("bwp_id", cfg.BWPID))
	return &Manager{
		cfg:  cfg,
		log:  log,
		rec:  rec,
		grid: NewResGrid(cfg, pool, log),
		ra:   NewRASched(cfg, log, rec),
		si:   NewSISched(cfg, pool, log),
		rr:   NewTimeRR(log),
	}
}

func (m *Manager) BWP() *params.BWPParams { return m.cfg }
func (m *Manager) RA() *RASched           { return m.ra }
func (m *Manager) Grid() *ResGrid         { return m.grid }

// RunSlot schedules pdcchSlot for the reserved UEs and returns the decisions
// of that slot. The slot grid is reset afterwards; grants already placed in
// later slots stay in the ring.
func (m *Manager) RunSlot(ctx context.Context, pdcchSlot slotpoint.SlotPoint, ues *ue.SlotUEMap) SlotOutput {
	log := logging.FromContextOr(ctx, m.log)
	a := NewSlotAllocator(m.grid, pdcchSlot, ues, log, m.rec)

	Signalling(a)
	m.si.RunSlot(ctx, a)
	m.ra.RunSlot(ctx, a)
	m.rr.SchedDL(ctx, a)
	m.rr.SchedUL(ctx, a)
	PostprocessDecisions(ctx, a, log)

	g := m.grid.At(pdcchSlot)
	LogResult(ctx, log, g)

	out := SlotOutput{
		DL: g.DL.Clone(),
		UL: g.UL.Clone(),
		Utilization: Utilization{
			DL: ratio(g.DLPRBs.PRBs().Count(), m.cfg.NofPRB),
			UL: ratio(g.ULPRBs.PRBs().Count(), m.cfg.NofPRB),
		},
	}
	g.Reset()
	return out
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
