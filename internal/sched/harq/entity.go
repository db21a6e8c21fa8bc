package harq

import (
	"context"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// Entity holds the DL and UL HARQ processes of one UE carrier.
type Entity struct {
	rnti   uint16
	cc     int
	log    logging.Logger
	pool   *softbuffer.Pool
	slotRx slotpoint.SlotPoint
	dl     []*DLProc
	ul     []*ULProc
}

// NewEntity allocates nofProcs processes per direction, with softbuffers
// sized for nofPRB taken from pool.
func NewEntity(rnti uint16, cc, nofPRB, nofProcs int, pool *softbuffer.Pool, log logging.Logger) *Entity {
	if log == nil {
		log = logging.Noop()
	}
	e := &Entity{
		rnti:   rnti,
		cc:     cc,
		pool:   pool,
		slotRx: slotpoint.Invalid(),
		log:    log.With(logging.Int("cc", cc)),
	}
	for pid := 0; pid < nofProcs; pid++ {
		e.dl = append(e.dl, &DLProc{Proc: newProc(pid), softbuffer: pool.GetTx(nofPRB)})
		e.ul = append(e.ul, &ULProc{Proc: newProc(pid), softbuffer: pool.GetRx(nofPRB)})
	}
	return e
}

// Release hands the softbuffers back to the pool.
func (e *Entity) Release() {
	for _, h := range e.dl {
		e.pool.ReleaseTx(h.softbuffer)
		h.softbuffer = nil
	}
	for _, h := range e.ul {
		e.pool.ReleaseRx(h.softbuffer)
		h.softbuffer = nil
	}
}

// Discards counts the processes emptied by NewSlot.
type Discards struct {
	DL, UL int
}

// NewSlot drops processes that exhausted their retransmissions.
func (e *Entity) NewSlot(ctx context.Context, slotRx slotpoint.SlotPoint) Discards {
	e.slotRx = slotRx
	var d Discards
	for _, h := range e.dl {
		if h.ClearIfMaxRetx(slotRx) {
			d.DL++
			e.log.Info(ctx, "discarding DL HARQ, maximum number of retx exceeded", logging.Int("pid", h.PID()), logging.Int("nrtx", h.NofRetx()))
		}
	}
	for _, h := range e.ul {
		if h.ClearIfMaxRetx(slotRx) {
			d.UL++
			e.log.Info(ctx, "discarding UL HARQ, maximum number of retx exceeded", logging.Int("pid", h.PID()))
		}
	}
	return d
}

// DLAckInfo applies DL HARQ feedback. See Proc.AckInfo.
func (e *Entity) DLAckInfo(ctx context.Context, pid, tb int, ack bool) int {
	if pid < 0 || pid >= len(e.dl) {
		e.log.Warn(ctx, "HARQ-ACK for invalid pid", logging.Int("pid", pid))
		return -1
	}
	return e.dl[pid].AckInfo(tb, ack)
}

// ULCRCInfo applies a PUSCH CRC result. See Proc.AckInfo.
func (e *Entity) ULCRCInfo(ctx context.Context, pid int, ok bool) int {
	if pid < 0 || pid >= len(e.ul) {
		e.log.Warn(ctx, "CRC for invalid pid", logging.Int("pid", pid))
		return -1
	}
	return e.ul[pid].AckInfo(0, ok)
}

func (e *Entity) RNTI() uint16                { return e.rnti }
func (e *Entity) SlotRx() slotpoint.SlotPoint { return e.slotRx }
func (e *Entity) NofDLHarqs() int             { return len(e.dl) }
func (e *Entity) NofULHarqs() int             { return len(e.ul) }
func (e *Entity) DLHarq(pid int) *DLProc      { return e.dl[pid] }
func (e *Entity) ULHarq(pid int) *ULProc      { return e.ul[pid] }

// FindPendingDLRetx returns the lowest pid pending a DL retransmission.
func (e *Entity) FindPendingDLRetx() *DLProc {
	for _, h := range e.dl {
		if h.HasPendingRetx(e.slotRx) {
			return h
		}
	}
	return nil
}

// FindPendingULRetx returns the lowest pid pending an UL retransmission.
func (e *Entity) FindPendingULRetx() *ULProc {
	for _, h := range e.ul {
		if h.HasPendingRetx(e.slotRx) {
			return h
		}
	}
	return nil
}

func (e *Entity) FindEmptyDLHarq() *DLProc {
	for _, h := range e.dl {
		if h.Empty() {
			return h
		}
	}
	return nil
}

func (e *Entity) FindEmptyULHarq() *ULProc {
	for _, h := range e.ul {
		if h.Empty() {
			return h
		}
	}
	return nil
}
