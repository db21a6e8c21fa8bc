package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/config"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/journal"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
	"github.com/signalsfoundry/nr-mac-scheduler/timectrl"
)

const (
	firstRNTI     = 0x4601
	drbLCID       = 4
	ulLCG         = 1
	prachSpacing  = 20
	csiPeriod     = 20
	defaultDLCQI  = 15
	defaultULSNR  = 20.0
	msg3SizeBytes = 7
)

type simConfig struct {
	Slots       int
	NofUEs      int
	NofCells    int
	CA          bool
	DLRate      int
	ULRate      int
	DLBLER      float64
	ULBLER      float64
	Seed        uint64
	JournalPath string
}

// simUE is the PHY and RLC side view of one UE.
type simUE struct {
	rnti      uint16
	prachSlot uint32
	attached  bool
	dlPending int
	ulPending int
}

// report sums what the scheduler granted over the run.
type report struct {
	Slots     int
	Attached  int
	RARs      int
	DLGrants  int
	ULGrants  int
	DLRetx    int
	ULRetx    int
	DLBits    int64
	ULBits    int64
	DLNacks   int
	ULCRCFail int
	Elapsed   time.Duration
}

func (r report) Print(w io.Writer) {
	secs := max(float64(r.Slots)/1000, 0.001)
	fmt.Fprintf(w, "slots=%d attached=%d rars=%d elapsed=%s\n", r.Slots, r.Attached, r.RARs, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "DL: grants=%d retx=%d nacks=%d bits=%d rate=%.2f Mbps (1 ms slots)\n",
		r.DLGrants, r.DLRetx, r.DLNacks, r.DLBits, float64(r.DLBits)/secs/1e6)
	fmt.Fprintf(w, "UL: grants=%d retx=%d crc_fail=%d bits=%d rate=%.2f Mbps (1 ms slots)\n",
		r.ULGrants, r.ULRetx, r.ULCRCFail, r.ULBits, float64(r.ULBits)/secs/1e6)
}

type harqKey struct {
	rnti    uint16
	cc, pid int
}

type simulator struct {
	cfg    simConfig
	sched  *sched.Scheduler
	log    logging.Logger
	rng    *rand.Rand
	jrnl   *journal.Journal
	ues    []*simUE
	byRNTI map[uint16]*simUE
	ccs    []int
	dlTBS  map[harqKey]int
	rep    report
}

// run simulates cfg.Slots slots. The sequence of scheduler inputs depends
// only on the seed, so two runs with the same arguments take the same
// decisions.
func run(ctx context.Context, base config.Config, cfg simConfig, log logging.Logger) (report, error) {
	if cfg.NofCells < 1 {
		cfg.NofCells = 1
	}
	cells := make([]model.CellConfig, 0, cfg.NofCells)
	for cc := 0; cc < cfg.NofCells; cc++ {
		cell := base.Cells[0]
		cell.PCI = base.Cells[0].PCI + uint32(cc)
		cells = append(cells, cell)
	}
	base.Cells = cells
	if err := base.Validate(); err != nil {
		return report{}, err
	}

	s, err := sched.New(base.Sched, base.Cells, sched.WithLogger(log))
	if err != nil {
		return report{}, err
	}
	defer s.Stop()

	sim := &simulator{
		cfg:    cfg,
		sched:  s,
		log:    log,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed)),
		byRNTI: make(map[uint16]*simUE, cfg.NofUEs),
		dlTBS:  make(map[harqKey]int),
	}
	for cc := 0; cc < cfg.NofCells; cc++ {
		sim.ccs = append(sim.ccs, cc)
	}
	if cfg.JournalPath != "" {
		j, err := journal.Open(ctx, cfg.JournalPath)
		if err != nil {
			return report{}, err
		}
		defer j.Close()
		sim.jrnl = j
	}

	start := slotpoint.New(base.Cells[0].Numerology, base.Clock.StartSlot)
	for i := 0; i < cfg.NofUEs; i++ {
		u := &simUE{rnti: uint16(firstRNTI + i), prachSlot: start.Add(1 + i*prachSpacing).ToUint()}
		sim.ues = append(sim.ues, u)
		sim.byRNTI[u.rnti] = u
	}

	clock := timectrl.NewSlotController(start, 0, timectrl.Accelerated)
	var runErr error
	clock.AddListener(func(slot slotpoint.SlotPoint) {
		if runErr != nil {
			return
		}
		runErr = sim.step(ctx, slot)
	})

	began := time.Now()
	if err := clock.Run(ctx, cfg.Slots); err != nil {
		return sim.rep, err
	}
	if runErr != nil {
		return sim.rep, runErr
	}
	sim.rep.Elapsed = time.Since(began)
	sim.rep.Slots = cfg.Slots
	for _, u := range sim.ues {
		if u.attached {
			sim.rep.Attached++
		}
	}
	log.Info(ctx, "simulation finished",
		logging.Int("slots", sim.rep.Slots),
		logging.Int("attached", sim.rep.Attached),
		logging.Int("dl_grants", sim.rep.DLGrants),
		logging.Int("ul_grants", sim.rep.ULGrants),
	)
	return sim.rep, nil
}

// step feeds the inputs due at slot, runs every cell and turns the results
// into feedback for the following slots.
func (sim *simulator) step(ctx context.Context, slot slotpoint.SlotPoint) error {
	sim.injectInputs(slot)

	dls := make([]*result.DLResult, len(sim.ccs))
	uls := make([]*result.ULResult, len(sim.ccs))
	errs := make([]error, len(sim.ccs))
	var wg sync.WaitGroup
	for _, cc := range sim.ccs {
		wg.Add(1)
		go func(cc int) {
			defer wg.Done()
			dl, err := sim.sched.RunSlot(ctx, slot, cc)
			if err != nil {
				errs[cc] = err
				return
			}
			dls[cc] = dl
			uls[cc], errs[cc] = sim.sched.ULSched(slot, cc)
		}(cc)
	}
	wg.Wait()

	for _, cc := range sim.ccs {
		if errs[cc] != nil {
			return fmt.Errorf("slot %s cell %d: %w", slot, cc, errs[cc])
		}
		sim.consumeDL(dls[cc])
		sim.consumeUL(uls[cc])
		if sim.jrnl != nil {
			if _, err := sim.jrnl.Record(ctx, dls[cc], uls[cc]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (sim *simulator) injectInputs(slot slotpoint.SlotPoint) {
	now := slot.ToUint()
	for _, u := range sim.ues {
		rnti := u.rnti
		if !u.attached {
			if now == u.prachSlot {
				err := sim.sched.DLRACHInfo(result.RARInfo{
					CC:          0,
					PreambleIdx: int(rnti-firstRNTI) % 64,
					TempCRNTI:   rnti,
					Msg3Size:    msg3SizeBytes,
					PRACHSlot:   slot,
				})
				if err != nil {
					sim.log.Warn(context.Background(), "prach dropped", logging.RNTI(rnti), logging.Err(err))
				}
			}
			continue
		}

		u.dlPending += sim.cfg.DLRate
		u.ulPending += sim.cfg.ULRate
		sim.sched.DLBufferState(rnti, drbLCID, u.dlPending, 0)
		sim.sched.ULBSR(rnti, ulLCG, u.ulPending)

		if now%csiPeriod == 0 {
			for _, cc := range sim.ueCells() {
				_ = sim.sched.DLCQIInfo(cc, rnti, defaultDLCQI)
				_ = sim.sched.ULCQIInfo(cc, rnti, defaultULSNR)
			}
		}
	}
}

func (sim *simulator) consumeDL(dl *result.DLResult) {
	sim.rep.RARs += len(dl.RAR)
	for _, p := range dl.PDSCH {
		if p.RNTIType != result.RNTITypeC {
			continue
		}
		sim.rep.DLGrants++
		sim.dlTBS[harqKey{p.RNTI, dl.CC, p.PID}] = p.TBS
		if p.NofRetx > 0 {
			sim.rep.DLRetx++
			continue
		}
		if u := sim.byRNTI[p.RNTI]; u != nil {
			u.dlPending = max(0, u.dlPending-p.TBS/8)
		}
	}
}

func (sim *simulator) consumeUL(ul *result.ULResult) {
	for _, p := range ul.PUSCH {
		sim.rep.ULGrants++
		if p.NofRetx > 0 {
			sim.rep.ULRetx++
		}
		ok := sim.rng.Float64() >= sim.cfg.ULBLER
		if err := sim.sched.ULCRCInfo(ul.CC, p.RNTI, p.PID, ok); err != nil {
			sim.log.Warn(context.Background(), "crc dropped", logging.Err(err))
		}
		if !ok {
			sim.rep.ULCRCFail++
		} else {
			sim.rep.ULBits += int64(p.TBS)
			sim.onPUSCHDecoded(p.RNTI, p.TBS)
		}
		sim.ackAll(p.UCI)
	}
	for _, p := range ul.PUCCH {
		sim.ackAll(p.UCI)
	}
}

// onPUSCHDecoded completes the attach of a UE on its first decoded PUSCH,
// which carries Msg3, and drains the UL buffer afterwards.
func (sim *simulator) onPUSCHDecoded(rnti uint16, tbs int) {
	u := sim.byRNTI[rnti]
	if u == nil {
		return
	}
	if !u.attached {
		u.attached = true
		cfg := model.DefaultUEConfig(0)
		if sim.cfg.CA {
			cfg = model.DefaultUEConfig(sim.ccs...)
		}
		if err := sim.sched.UECfg(rnti, cfg); err != nil {
			sim.log.Warn(context.Background(), "ue config rejected", logging.RNTI(rnti), logging.Err(err))
		}
		return
	}
	u.ulPending = max(0, u.ulPending-tbs/8)
}

func (sim *simulator) ackAll(uci result.UCI) {
	for _, a := range uci.ACKs {
		ack := sim.rng.Float64() >= sim.cfg.DLBLER
		if !ack {
			sim.rep.DLNacks++
		}
		if err := sim.sched.DLAckInfo(a.CC, a.RNTI, a.PID, 0, ack); err != nil {
			sim.log.Warn(context.Background(), "harq ack dropped", logging.Err(err))
			continue
		}
		if ack {
			sim.rep.DLBits += int64(sim.dlTBS[harqKey{a.RNTI, a.CC, a.PID}])
		}
	}
}

// ueCells lists the cells an attached UE is configured on.
func (sim *simulator) ueCells() []int {
	if sim.cfg.CA {
		return sim.ccs
	}
	return sim.ccs[:1]
}
