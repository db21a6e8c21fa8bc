package bwp

import (
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/pdcch"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// SlotGrid holds every decision already taken for one slot of a BWP.
type SlotGrid struct {
	cfg     *params.BWPParams
	slotIdx uint32
	slot    slotpoint.SlotPoint

	DLPRBs rbgrid.BWPBitmap
	ULPRBs rbgrid.BWPBitmap
	DL     result.DLSched
	UL     result.ULSched
	// PendingACKs lists the HARQ-ACK bits due in this slot.
	PendingACKs []result.HARQAck
	PDCCH       *pdcch.Allocator
	// RARSoftbuffer is shared by every RAR PDSCH of the slot.
	RARSoftbuffer *softbuffer.Tx
}

func newSlotGrid(cfg *params.BWPParams, slotIdx uint32, pool *softbuffer.Pool, log logging.Logger) *SlotGrid {
	g := &SlotGrid{
		cfg:           cfg,
		slotIdx:       slotIdx,
		slot:          slotpoint.Invalid(),
		DLPRBs:        rbgrid.NewBWPBitmap(cfg.NofPRB, cfg.Cfg.StartRB, cfg.Cfg.RBGConfig1),
		ULPRBs:        rbgrid.NewBWPBitmap(cfg.NofPRB, cfg.Cfg.StartRB, cfg.Cfg.RBGConfig1),
		RARSoftbuffer: pool.GetTx(cfg.NofPRB),
	}
	g.PDCCH = pdcch.NewAllocator(cfg, slotIdx, &g.DL.PDCCHDL, &g.DL.PDCCHUL, log)
	return g
}

func (g *SlotGrid) Slot() slotpoint.SlotPoint { return g.slot }
func (g *SlotGrid) SlotIdx() uint32           { return g.slotIdx }
func (g *SlotGrid) IsDL() bool                { return g.cfg.Cell.IsDLIdx(g.slotIdx) }
func (g *SlotGrid) IsUL() bool                { return g.cfg.Cell.IsULIdx(g.slotIdx) }

// Reset clears every decision and untags the grid.
func (g *SlotGrid) Reset() {
	g.PDCCH.Reset()
	g.DLPRBs.Reset()
	g.ULPRBs.Reset()
	g.DL.Reset()
	g.UL.Reset()
	g.PendingACKs = g.PendingACKs[:0]
	g.slot = slotpoint.Invalid()
}

// ResGrid is the ring of slot grids of a BWP. It spans two frames so that
// grants for future slots (PDSCH, PUSCH, Msg3, HARQ-ACK) survive until their
// slot is scheduled.
type ResGrid struct {
	cfg   *params.BWPParams
	slots []*SlotGrid
}

// NewResGrid allocates the ring. RAR softbuffers are taken from pool.
func NewResGrid(cfg *params.BWPParams, pool *softbuffer.Pool, log logging.Logger) *ResGrid {
	if log == nil {
		log = logging.Noop()
	}
	n := 2 * cfg.Cell.SlotsPerFrame
	r := &ResGrid{cfg: cfg, slots: make([]*SlotGrid, n)}
	for i := range r.slots {
		r.slots[i] = newSlotGrid(cfg, uint32(i)%cfg.Cell.SlotsPerFrame, pool, log)
	}
	return r
}

func (r *ResGrid) BWP() *params.BWPParams { return r.cfg }

// At returns the grid of slot s, resetting it when it still holds the
// decisions of an older slot mapped to the same ring position.
func (r *ResGrid) At(s slotpoint.SlotPoint) *SlotGrid {
	g := r.slots[s.ToUint()%uint32(len(r.slots))]
	if !g.slot.Equal(s) {
		g.Reset()
		g.slot = s
	}
	return g
}
