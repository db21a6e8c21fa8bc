// Package sched is the entry point of the MAC scheduler. A Scheduler owns
// the UE database and one worker per serving cell. Cells are scheduled in
// parallel, one goroutine per cell calling RunSlot; state shared by the
// cells of a carrier-aggregated UE is updated once per slot before any cell
// starts allocating.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/observability"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/bwp"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

var (
	// ErrUnknownCell indicates a cell index outside the configured cells.
	ErrUnknownCell = errors.New("unknown cell")
	// ErrStopped indicates the scheduler was stopped.
	ErrStopped = errors.New("scheduler stopped")
	// ErrNoULResult indicates no UL result is buffered for the slot.
	ErrNoULResult = errors.New("no UL result for slot")
)

// Recorder receives scheduler metrics. observability.SchedCollector
// implements it; a nil *SchedCollector records nothing.
type Recorder interface {
	bwp.Recorder
	ObserveSlot(cc int, d time.Duration)
	AddHARQDiscards(cc, dl, ul int)
	SetUEs(n int)
	SetPRBUtilization(cc int, dir string, ratio float64)
}

// Option customises Scheduler construction.
type Option func(*Scheduler)

// WithLogger sets the base logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.rec = r
		}
	}
}

// Scheduler schedules every configured cell.
type Scheduler struct {
	sp    *params.SchedParams
	log   logging.Logger
	rec   Recorder
	pools []*softbuffer.Pool

	// ues is mutated only in the common phase.
	ues     *ue.Map
	events  *eventManager
	barrier *slotSync
	cells   []*cellWorker
	metrics metricsManager

	// commonSummary is written by the leader before publishing the update.
	commonSummary    eventSummary
	nofCommonUpdates atomic.Uint64
	stopped          atomic.Bool
}

// New validates the configuration and builds one worker per cell.
func New(args model.SchedArgs, cells []model.CellConfig, opts ...Option) (*Scheduler, error) {
	sp, err := params.New(args, cells)
	if err != nil {
		return nil, err
	}
	for cc := range cells {
		if cells[cc].Numerology != cells[0].Numerology {
			return nil, fmt.Errorf("cell %d: numerology %d differs from cell 0: %w",
				cc, cells[cc].Numerology, params.ErrInvalidConfig)
		}
	}
	s := &Scheduler{
		sp:  sp,
		log: logging.Noop(),
		rec: (*observability.SchedCollector)(nil),
		ues: ue.NewMap(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = newEventManager(len(sp.Cells), s.log)
	s.barrier = newSlotSync(len(sp.Cells))
	for _, cell := range sp.Cells {
		pool := softbuffer.NewPool()
		s.pools = append(s.pools, pool)
		s.cells = append(s.cells, newCellWorker(cell, pool, s.log.With(logging.Int("cc", cell.CC)), s.rec))
	}
	s.log.Info(context.Background(), "scheduler configured",
		logging.Int("cells", len(s.cells)),
		logging.Int("fixed_dl_mcs", args.FixedDLMCS),
		logging.Int("fixed_ul_mcs", args.FixedULMCS))
	return s, nil
}

// Params returns the derived configuration.
func (s *Scheduler) Params() *params.SchedParams { return s.sp }

// NofCells returns the number of configured cells.
func (s *Scheduler) NofCells() int { return len(s.cells) }

// UECfg adds or reconfigures a UE. The change applies at the next slot.
func (s *Scheduler) UECfg(rnti uint16, cfg model.UEConfig) error {
	mustValidRNTI(rnti)
	for _, c := range cfg.Carriers {
		if c.CC < 0 || c.CC >= len(s.cells) {
			return fmt.Errorf("ue 0x%x: carrier %d: %w", rnti, c.CC, ErrUnknownCell)
		}
	}
	s.events.enqueueCommon("ue_cfg", func(ctx context.Context) {
		s.applyUECfg(ctx, rnti, cfg)
	})
	return nil
}

func (s *Scheduler) applyUECfg(ctx context.Context, rnti uint16, cfg model.UEConfig) {
	log := logging.FromContextOr(ctx, s.log)
	if u := s.ues.Get(rnti); u != nil {
		if err := u.SetConfig(cfg); err != nil {
			log.Warn(ctx, "UE reconfiguration rejected", logging.RNTI(rnti), logging.Err(err))
		}
		return
	}
	if limit := s.sp.Args.MaxNofUEs; limit > 0 && s.ues.Len() >= limit {
		log.Warn(ctx, "UE not added, maximum number of UEs reached",
			logging.RNTI(rnti), logging.Int("max_nof_ues", limit))
		return
	}
	u, err := ue.New(rnti, cfg, s.sp, s.pools, s.log)
	if err != nil {
		log.Warn(ctx, "UE configuration rejected", logging.RNTI(rnti), logging.Err(err))
		return
	}
	s.ues.Insert(u)
	log.Info(ctx, "UE added", logging.RNTI(rnti), logging.Int("pcell", u.PCell()))
}

// UERem removes a UE at the next slot.
func (s *Scheduler) UERem(rnti uint16) {
	mustValidRNTI(rnti)
	s.events.enqueueCommon("ue_rem", func(ctx context.Context) {
		u := s.ues.Erase(rnti)
		if u == nil {
			logging.FromContextOr(ctx, s.log).Warn(ctx, "removal of unknown UE", logging.RNTI(rnti))
			return
		}
		u.Release()
		logging.FromContextOr(ctx, s.log).Info(ctx, "UE removed", logging.RNTI(rnti))
	})
}

// DLRACHInfo reports a detected preamble. The temporary C-RNTI gets a UE
// with a default configuration on the PRACH cell if it has none yet.
func (s *Scheduler) DLRACHInfo(info result.RARInfo) error {
	if info.CC < 0 || info.CC >= len(s.cells) {
		return fmt.Errorf("prach on cell %d: %w", info.CC, ErrUnknownCell)
	}
	mustValidRNTI(info.TempCRNTI)
	s.events.enqueueCommon("dl_rach_info", func(ctx context.Context) {
		if s.ues.Get(info.TempCRNTI) == nil {
			s.applyUECfg(ctx, info.TempCRNTI, model.DefaultUEConfig(info.CC))
		}
		if err := s.cells[info.CC].dlrachInfo(ctx, info); err != nil {
			logging.FromContextOr(ctx, s.log).Warn(ctx, "PRACH discarded",
				logging.RNTI(info.TempCRNTI), logging.Err(err))
		}
	})
	return nil
}

// DLAckInfo reports HARQ-ACK feedback of a DL transport block.
func (s *Scheduler) DLAckInfo(cc int, rnti uint16, pid, tb int, ack bool) error {
	if err := s.checkCell(cc); err != nil {
		return err
	}
	s.events.enqueueCC(cc, "dl_ack_info", rnti, func(ctx context.Context, c *ue.Carrier) {
		if c.DLAckInfo(ctx, pid, tb, ack) < 0 {
			logging.FromContextOr(ctx, s.log).Warn(ctx, "HARQ-ACK for an empty DL HARQ process",
				logging.RNTI(rnti), logging.Int("pid", pid))
		}
	})
	return nil
}

// ULCRCInfo reports the CRC of a decoded PUSCH.
func (s *Scheduler) ULCRCInfo(cc int, rnti uint16, pid int, ok bool) error {
	if err := s.checkCell(cc); err != nil {
		return err
	}
	s.events.enqueueCC(cc, "ul_crc_info", rnti, func(ctx context.Context, c *ue.Carrier) {
		if c.ULCRCInfo(ctx, pid, ok) < 0 {
			logging.FromContextOr(ctx, s.log).Warn(ctx, "CRC for an empty UL HARQ process",
				logging.RNTI(rnti), logging.Int("pid", pid))
		}
	})
	return nil
}

// DLCQIInfo reports a wideband CQI.
func (s *Scheduler) DLCQIInfo(cc int, rnti uint16, cqi int) error {
	if err := s.checkCell(cc); err != nil {
		return err
	}
	s.events.enqueueCC(cc, "dl_cqi_info", rnti, func(_ context.Context, c *ue.Carrier) {
		c.SetDLCQI(cqi)
	})
	return nil
}

// ULCQIInfo reports the PUSCH SNR in dB.
func (s *Scheduler) ULCQIInfo(cc int, rnti uint16, snr float64) error {
	if err := s.checkCell(cc); err != nil {
		return err
	}
	s.events.enqueueCC(cc, "ul_cqi_info", rnti, func(_ context.Context, c *ue.Carrier) {
		c.SetULSNR(snr)
	})
	return nil
}

// ULSRInfo reports a scheduling request.
func (s *Scheduler) ULSRInfo(rnti uint16) {
	s.events.enqueueUE("ul_sr_info", rnti, func(u *ue.UE) { u.ULSRInfo() })
}

// ULBSR reports a buffer status for a logical channel group.
func (s *Scheduler) ULBSR(rnti uint16, lcg uint32, bytes int) {
	s.events.enqueueUE("ul_bsr", rnti, func(u *ue.UE) { u.ULBSR(lcg, bytes) })
}

// DLBufferState reports the RLC buffer of a bearer.
func (s *Scheduler) DLBufferState(rnti uint16, lcid uint32, newTx, retx int) {
	s.events.enqueueUE("dl_buffer_state", rnti, func(u *ue.UE) { u.DLBufferState(lcid, newTx, retx) })
}

// DLMACCE queues a MAC control element for the UE.
func (s *Scheduler) DLMACCE(rnti uint16, lcid uint32) {
	s.events.enqueueUE("dl_mac_ce", rnti, func(u *ue.UE) { u.AddDLMACCE(lcid) })
}

// RunSlot schedules slot on cell cc and returns its DL result. The UL result
// of the same slot is kept for ULSched. Every cell must run every slot, in
// order; the cells of one slot may run concurrently.
func (s *Scheduler) RunSlot(ctx context.Context, slot slotpoint.SlotPoint, cc int) (*result.DLResult, error) {
	if err := s.checkCell(cc); err != nil {
		return nil, err
	}
	if s.stopped.Load() {
		return nil, ErrStopped
	}
	start := time.Now()
	ctx, log := logging.WithSlotLogger(ctx, s.log, slot, cc)
	ctx, span := observability.StartSlotSpan(ctx, slot.String(), cc)

	leader, err := s.barrier.start(ctx, slot)
	if err != nil {
		span.End()
		return nil, err
	}
	if leader {
		s.commonUpdate(ctx, slot)
		s.barrier.publish()
	}

	w := s.cells[cc]
	w.seenUpdates = s.nofCommonUpdates.Load()
	cell := s.events.processCell(ctx, cc, s.ues)
	logEventSummary(ctx, log, s.commonSummary, cell)
	for _, u := range s.ues.All() {
		if u.HasCA() || u.PCell() != cc {
			continue
		}
		d := u.NewSlot(ctx, slot)
		s.rec.AddHARQDiscards(cc, d.DL, d.UL)
	}
	dl, ul := w.run(ctx, slot, s.ues)
	s.barrier.finish()

	s.rec.ObserveSlot(cc, time.Since(start))
	observability.EndSlotSpan(span, observability.SlotSummary{
		PDCCHDL: len(dl.PDCCHDL),
		PDCCHUL: len(dl.PDCCHUL),
		PDSCH:   len(dl.PDSCH),
		PUSCH:   len(ul.PUSCH),
		RAR:     len(dl.RAR),
		PUCCH:   len(ul.PUCCH),
	})
	return dl, nil
}

// commonUpdate runs once per slot, before any cell allocates.
func (s *Scheduler) commonUpdate(ctx context.Context, slot slotpoint.SlotPoint) {
	s.commonSummary = s.events.processCommon(ctx, s.ues)
	for _, u := range s.ues.All() {
		if !u.HasCA() {
			continue
		}
		d := u.NewSlot(ctx, slot)
		s.rec.AddHARQDiscards(u.PCell(), d.DL, d.UL)
	}
	s.metrics.apply(s.ues, len(s.cells))
	s.rec.SetUEs(s.ues.Len())
	s.nofCommonUpdates.Add(1)
}

// ULSched returns the UL result of a slot already run on cell cc. Each
// result can be fetched once.
func (s *Scheduler) ULSched(slot slotpoint.SlotPoint, cc int) (*result.ULResult, error) {
	if err := s.checkCell(cc); err != nil {
		return nil, err
	}
	r := s.cells[cc].ul.take(slot)
	if r == nil {
		return nil, fmt.Errorf("cell %d slot %s: %w", cc, slot, ErrNoULResult)
	}
	return r, nil
}

// Metrics returns the per-carrier UE counters collected at the next slot.
// It returns ErrStopped once Stop was called.
func (s *Scheduler) Metrics(ctx context.Context) ([]ue.Metrics, error) {
	return s.metrics.request(ctx)
}

// Stop rejects further slots and releases pending Metrics callers.
func (s *Scheduler) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.metrics.stop()
	s.log.Info(context.Background(), "scheduler stopped")
}

func (s *Scheduler) checkCell(cc int) error {
	if cc < 0 || cc >= len(s.cells) {
		return fmt.Errorf("cell %d: %w", cc, ErrUnknownCell)
	}
	return nil
}
