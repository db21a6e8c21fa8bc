//go:build perf || perf_large

package perf

import (
	"context"
	"sync"
	"testing"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

type perfConfig struct {
	Cells  int
	UEs    int
	NofPRB int
	CA     bool
}

const firstRNTI = 0x4601

func benchmarkSlots(b *testing.B, cfg perfConfig) {
	ctx := context.Background()
	b.ReportAllocs()

	s := newScheduler(b, cfg)
	defer s.Stop()

	ccs := make([]int, cfg.Cells)
	for cc := range ccs {
		ccs[cc] = cc
	}
	for i := 0; i < cfg.UEs; i++ {
		ueCfg := model.DefaultUEConfig(i % cfg.Cells)
		if cfg.CA {
			ueCfg = model.DefaultUEConfig(ccs...)
		}
		if err := s.UECfg(uint16(firstRNTI+i), ueCfg); err != nil {
			b.Fatalf("UECfg: %v", err)
		}
	}

	slot := slotpoint.New(0, 0)
	grants := 0
	step := func() {
		slot = slot.Add(1)
		for i := 0; i < cfg.UEs; i++ {
			s.DLBufferState(uint16(firstRNTI+i), 4, 100000, 0)
			s.ULBSR(uint16(firstRNTI+i), 1, 20000)
		}
		for _, ul := range runSlot(b, ctx, s, slot) {
			grants += len(ul.PUSCH)
			acknowledge(s, ul)
		}
	}

	// The first slot applies the UE configurations.
	step()
	grants = 0

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		step()
	}
	b.StopTimer()
	b.ReportMetric(float64(grants)/float64(b.N), "pusch/slot")
}

func newScheduler(b *testing.B, cfg perfConfig) *sched.Scheduler {
	b.Helper()
	args := model.DefaultSchedArgs()
	args.MaxNofUEs = cfg.UEs
	cells := make([]model.CellConfig, cfg.Cells)
	for cc := range cells {
		cells[cc] = model.DefaultCellConfig(cfg.NofPRB)
		cells[cc].PCI = uint32(cc + 1)
	}
	s, err := sched.New(args, cells, sched.WithLogger(logging.Noop()))
	if err != nil {
		b.Fatalf("sched.New: %v", err)
	}
	return s
}

func runSlot(b *testing.B, ctx context.Context, s *sched.Scheduler, slot slotpoint.SlotPoint) []*result.ULResult {
	uls := make([]*result.ULResult, s.NofCells())
	errs := make([]error, s.NofCells())
	var wg sync.WaitGroup
	for cc := range uls {
		wg.Add(1)
		go func(cc int) {
			defer wg.Done()
			if _, err := s.RunSlot(ctx, slot, cc); err != nil {
				errs[cc] = err
				return
			}
			uls[cc], errs[cc] = s.ULSched(slot, cc)
		}(cc)
	}
	wg.Wait()
	for cc, err := range errs {
		if err != nil {
			b.Fatalf("slot %s cell %d: %v", slot, cc, err)
		}
	}
	return uls
}

// acknowledge reports every transmission of ul as received.
func acknowledge(s *sched.Scheduler, ul *result.ULResult) {
	for _, p := range ul.PUSCH {
		_ = s.ULCRCInfo(ul.CC, p.RNTI, p.PID, true)
		for _, a := range p.UCI.ACKs {
			_ = s.DLAckInfo(a.CC, a.RNTI, a.PID, 0, true)
		}
	}
	for _, p := range ul.PUCCH {
		for _, a := range p.UCI.ACKs {
			_ = s.DLAckInfo(a.CC, a.RNTI, a.PID, 0, true)
		}
	}
}
