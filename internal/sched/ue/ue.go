package ue

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/harq"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// UE is a connected UE with one Carrier per configured serving cell.
type UE struct {
	rnti     uint16
	log      logging.Logger
	sp       *params.SchedParams
	pools    []*softbuffer.Pool
	cfg      model.UEConfig
	carriers []*Carrier
	buf      bufferState

	dlPendingBytes int
	ulPendingBytes int
}

// New creates a UE. pools holds one softbuffer pool per cell.
func New(rnti uint16, cfg model.UEConfig, sp *params.SchedParams, pools []*softbuffer.Pool, log logging.Logger) (*UE, error) {
	if log == nil {
		log = logging.Noop()
	}
	u := &UE{
		rnti:     rnti,
		sp:       sp,
		pools:    pools,
		log:      log.With(logging.RNTI(rnti)),
		carriers: make([]*Carrier, len(sp.Cells)),
	}
	if err := u.SetConfig(cfg); err != nil {
		return nil, err
	}
	return u, nil
}

// SetConfig applies a (re)configuration, adding and removing carriers.
func (u *UE) SetConfig(cfg model.UEConfig) error {
	for _, c := range cfg.Carriers {
		if c.CC < 0 || c.CC >= len(u.sp.Cells) {
			return fmt.Errorf("ue 0x%x: carrier %d: %w", u.rnti, c.CC, params.ErrInvalidConfig)
		}
		if c.BWPID < 0 || c.BWPID >= len(u.sp.Cells[c.CC].BWPs) {
			return fmt.Errorf("ue 0x%x: carrier %d bwp %d: %w", u.rnti, c.CC, c.BWPID, params.ErrInvalidConfig)
		}
	}
	u.cfg = cfg
	for cc := range u.carriers {
		car, ok := u.cfg.Carrier(cc)
		active := ok && car.Active
		switch {
		case active && u.carriers[cc] == nil:
			p := NewCarrierParams(u.rnti, u.sp.Cells[cc].BWPs[car.BWPID], &u.cfg)
			u.carriers[cc] = newCarrier(u.rnti, p, u.pools[cc], u.log)
		case active:
			u.carriers[cc].params = NewCarrierParams(u.rnti, u.sp.Cells[cc].BWPs[car.BWPID], &u.cfg)
		case u.carriers[cc] != nil:
			u.carriers[cc].release()
			u.carriers[cc] = nil
		}
	}
	return nil
}

// Release frees the HARQ softbuffers of every carrier.
func (u *UE) Release() {
	for cc, c := range u.carriers {
		if c != nil {
			c.release()
			u.carriers[cc] = nil
		}
	}
}

func (u *UE) RNTI() uint16            { return u.rnti }
func (u *UE) Config() *model.UEConfig { return &u.cfg }

// Carrier returns the carrier on cell cc, nil when not configured.
func (u *UE) Carrier(cc int) *Carrier {
	if cc < 0 || cc >= len(u.carriers) {
		return nil
	}
	return u.carriers[cc]
}

// HasCA reports whether more than one carrier is active.
func (u *UE) HasCA() bool {
	n := 0
	for _, c := range u.carriers {
		if c != nil {
			n++
		}
	}
	return n > 1
}

// PCell returns the cell index of the first active carrier, or -1.
func (u *UE) PCell() int {
	for cc, c := range u.carriers {
		if c != nil {
			return cc
		}
	}
	return -1
}

// NewSlot advances the HARQ entities and snapshots the pending bytes used
// by every carrier while scheduling pdcchSlot.
func (u *UE) NewSlot(ctx context.Context, pdcchSlot slotpoint.SlotPoint) harq.Discards {
	var total harq.Discards
	slotRx := pdcchSlot.Add(-params.TxDelay)
	for _, c := range u.carriers {
		if c == nil {
			continue
		}
		d := c.newSlot(ctx, slotRx)
		total.DL += d.DL
		total.UL += d.UL
	}
	u.dlPendingBytes = u.buf.dlBytes()
	u.ulPendingBytes = u.buf.ulBytes()
	return total
}

func (u *UE) DLPendingBytes() int { return u.dlPendingBytes }
func (u *UE) ULPendingBytes() int { return u.ulPendingBytes }

// DLBufferState records the RLC buffer occupancy of a bearer.
func (u *UE) DLBufferState(lcid uint32, newTx, retx int) { u.buf.setDL(lcid, newTx, retx) }

// ULBSR records a buffer status report for a logical channel group.
func (u *UE) ULBSR(lcg uint32, bytes int) { u.buf.setBSR(lcg, bytes) }

// ULSRInfo flags a scheduling request.
func (u *UE) ULSRInfo() { u.buf.setSR() }

// AddDLMACCE queues a MAC control element.
func (u *UE) AddDLMACCE(lcid uint32) { u.buf.addCE(lcid) }

// BuildSubPDUs selects the contents of a new DL transport block.
func (u *UE) BuildSubPDUs(tbsBytes int) []uint32 { return u.buf.buildSubPDUs(tbsBytes) }

// TryReserve prepares the per-slot view of the UE on cell cc, with the HARQ
// processes it may use in this slot. It returns nil when the UE has no
// carrier on cc.
func (u *UE) TryReserve(pdcchSlot slotpoint.SlotPoint, cc int) *SlotUE {
	c := u.Carrier(cc)
	if c == nil {
		return nil
	}
	bwp := c.params.BWP()
	s := &SlotUE{
		ue:             u,
		carrier:        c,
		RNTI:           u.rnti,
		CC:             cc,
		SlotRx:         pdcchSlot.Add(-params.TxDelay),
		PDCCHSlot:      pdcchSlot,
		PDSCHSlot:      pdcchSlot.Add(bwp.Cfg.K0),
		PUSCHSlot:      pdcchSlot.Add(bwp.Cfg.K2),
		DLPendingBytes: u.dlPendingBytes,
		ULPendingBytes: u.ulPendingBytes,
		DLCQI:          c.dlCQI,
	}
	s.UCISlot = s.PDSCHSlot.Add(bwp.K1(s.PDSCHSlot))

	if bwp.Cell.IsDL(s.PDSCHSlot) {
		if h := c.harq.FindPendingDLRetx(); h != nil {
			s.HDL = h
		} else if s.DLPendingBytes > 0 {
			s.HDL = c.harq.FindEmptyDLHarq()
		}
	}
	if bwp.Cell.IsUL(s.PUSCHSlot) {
		if h := c.harq.FindPendingULRetx(); h != nil {
			s.HUL = h
		} else if s.ULPendingBytes > 0 {
			s.HUL = c.harq.FindEmptyULHarq()
		}
	}
	return s
}
