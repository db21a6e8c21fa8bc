package bwp

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// minRARPRBs is the first RAR width tried.
const minRARPRBs = 4

type pendingRAR struct {
	raRNTI    uint16
	prachSlot slotpoint.SlotPoint
	window    slotpoint.Interval
	grants    []result.RARInfo
}

// RASched queues detected PRACH preambles and schedules their RARs, with
// the batched Msg3 grants, inside the RAR response window.
type RASched struct {
	cfg     *params.BWPParams
	log     logging.Logger
	rec     Recorder
	pending []*pendingRAR
}

func NewRASched(cfg *params.BWPParams, log logging.Logger, rec Recorder) *RASched {
	if log == nil {
		log = logging.Noop()
	}
	if rec == nil {
		rec = noopRecorder{}
	}
	return &RASched{cfg: cfg, log: log, rec: rec}
}

// RARNTI derives the RA-RNTI of a PRACH occasion. The carrier id is 0.
func RARNTI(info result.RARInfo) uint16 {
	tID := 0
	if info.PRACHSlot.Valid() {
		tID = int(info.PRACHSlot.SlotIdx())
	}
	return uint16(1 + info.OFDMSymbolIdx + 14*tID + 14*80*info.FreqIdx)
}

// PendingCount returns the number of RA-RNTIs waiting for a RAR.
func (r *RASched) PendingCount() int { return len(r.pending) }

// DLRACHInfo enqueues a detected preamble. Preambles of the same PRACH
// occasion share one RAR.
func (r *RASched) DLRACHInfo(ctx context.Context, info result.RARInfo) error {
	raRNTI := RARNTI(info)
	for _, p := range r.pending {
		if p.raRNTI != raRNTI || !p.prachSlot.Equal(info.PRACHSlot) {
			continue
		}
		if len(p.grants) >= params.MaxMsg3PerRAR {
			r.log.Warn(ctx, "PRACH ignored, maximum number of RAR grants reached",
				logging.Uint("ra_rnti", uint(raRNTI)), logging.RNTI(info.TempCRNTI))
			return fmt.Errorf("ra-rnti=0x%x: %w", raRNTI, ErrRARCapacity)
		}
		p.grants = append(p.grants, info)
		return nil
	}

	start := info.PRACHSlot.Add(1)
	for i := uint32(0); i < r.cfg.Cell.SlotsPerFrame && !r.cfg.Cell.IsDL(start); i++ {
		start = start.Add(1)
	}
	p := &pendingRAR{
		raRNTI:    raRNTI,
		prachSlot: info.PRACHSlot,
		window:    slotpoint.NewInterval(start, r.cfg.Cfg.RARWindowSize),
		grants:    []result.RARInfo{info},
	}
	r.pending = append(r.pending, p)
	r.log.Debug(ctx, "new pending RAR",
		logging.Uint("ra_rnti", uint(raRNTI)),
		logging.String("prach_slot", info.PRACHSlot.String()),
		logging.String("window", p.window.String()))
	return nil
}

// RunSlot drops expired RARs and allocates the due ones through a.
func (r *RASched) RunSlot(ctx context.Context, a *SlotAllocator) {
	pdcchSlot := a.PDCCHSlot()

	kept := r.pending[:0]
	for _, p := range r.pending {
		if pdcchSlot.GreaterEq(p.window.Stop) {
			r.log.Warn(ctx, "could not allocate RAR in the RAR window, dropping pending RAR",
				logging.Uint("ra_rnti", uint(p.raRNTI)),
				logging.String("window", p.window.String()),
				logging.Int("nof_grants", len(p.grants)))
			r.rec.IncRARDropped(r.cfg.CC)
			continue
		}
		kept = append(kept, p)
	}
	clear(r.pending[len(kept):])
	r.pending = kept

	if !r.cfg.Cell.IsDL(pdcchSlot) || !r.cfg.Cell.IsUL(pdcchSlot.Add(r.cfg.Msg3Delay)) {
		return
	}

	for i := 0; i < len(r.pending); {
		p := r.pending[i]
		if pdcchSlot.Less(p.window.Start) {
			// Entries are ordered by PRACH slot.
			break
		}
		n, err := r.allocatePendingRAR(ctx, a, p)
		if err == nil && n == len(p.grants) {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			continue
		}
		if n > 0 {
			p.grants = p.grants[n:]
			break
		}
		if errors.Is(err, ErrNoCCHSpace) {
			i++
			continue
		}
		break
	}
}

// allocatePendingRAR tries the largest Msg3 batch first. For each batch size
// the RAR width grows until the code rate fits; the batch shrinks when PDSCH
// or PUSCH space is short.
func (r *RASched) allocatePendingRAR(ctx context.Context, a *SlotAllocator, p *pendingRAR) (int, error) {
	aggIdx := r.cfg.Args().PDCCHAggrIdx
	lim := commonPRBLimits(r.cfg, r.cfg.RASearchSpace().CoresetID)

	var err error
	for n := min(len(p.grants), params.MaxMsg3PerRAR); n > 0; n-- {
		free := a.Grid(a.PDCCHSlot()).DLPRBs.PRBs().Clone()
		free.Fill(0, lim.Start())
		free.Fill(lim.Stop(), free.Len())
		err = ErrNoSchSpace
		for nprb := minRARPRBs; nprb <= lim.Length(); nprb++ {
			iv := rbgrid.FindEmptyInterval(free, nprb, lim.Start())
			if iv.Length() < nprb {
				break
			}
			err = a.AllocRARAndMsg3(ctx, p.raRNTI, aggIdx, iv, p.grants[:n])
			if !errors.Is(err, ErrInvalidCoderate) {
				break
			}
		}
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, ErrNoSchSpace) && !errors.Is(err, ErrSchCollision) && !errors.Is(err, ErrInvalidCoderate) {
			return 0, err
		}
	}
	return 0, err
}
