// Package harq implements the HARQ processes of a UE carrier.
package harq

import (
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// Proc is the direction-independent state of one HARQ process.
//
// A process is EMPTY until NewTx. It then waits for feedback; an ACK empties
// it, a NACK leaves it pending a retransmission once its ACK slot has passed.
type Proc struct {
	pid      int
	active   bool
	ackState bool
	ndi      bool
	mcs      int
	tbs      int
	nRetx    int
	maxRetx  int
	slotTx   slotpoint.SlotPoint
	slotAck  slotpoint.SlotPoint
	grant    rbgrid.Grant
}

func newProc(pid int) Proc {
	return Proc{pid: pid, slotTx: slotpoint.Invalid(), slotAck: slotpoint.Invalid()}
}

func (p *Proc) PID() int                     { return p.pid }
func (p *Proc) Empty() bool                  { return !p.active }
func (p *Proc) NDI() bool                    { return p.ndi }
func (p *Proc) MCS() int                     { return p.mcs }
func (p *Proc) TBS() int                     { return p.tbs }
func (p *Proc) NofRetx() int                 { return p.nRetx }
func (p *Proc) MaxNofRetx() int              { return p.maxRetx }
func (p *Proc) SlotTx() slotpoint.SlotPoint  { return p.slotTx }
func (p *Proc) SlotAck() slotpoint.SlotPoint { return p.slotAck }
func (p *Proc) Grant() rbgrid.Grant          { return p.grant }

// SetMCS is used while lowering the MCS of a first transmission.
func (p *Proc) SetMCS(mcs int) { p.mcs = mcs }

func (p *Proc) SetTBS(tbs int) { p.tbs = tbs }

// HasPendingRetx reports a NACKed (or unanswered) transport block whose
// feedback slot is not after slotRx.
func (p *Proc) HasPendingRetx(slotRx slotpoint.SlotPoint) bool {
	return p.active && !p.ackState && p.slotAck.LessEq(slotRx)
}

// AckInfo applies HARQ feedback. It returns -1 for an empty process, the TBS
// in bytes on ACK and 0 on NACK.
func (p *Proc) AckInfo(tb int, ack bool) int {
	if p.Empty() {
		return -1
	}
	p.ackState = ack
	if ack {
		p.active = false
		return p.tbs / 8
	}
	return 0
}

// ClearIfMaxRetx empties a process pending a retransmission it is not
// allowed to send.
func (p *Proc) ClearIfMaxRetx(slotRx slotpoint.SlotPoint) bool {
	if p.HasPendingRetx(slotRx) && p.nRetx+1 > p.maxRetx {
		p.Reset()
		return true
	}
	return false
}

// Reset empties the process. The NDI is kept so the next NewTx toggles it.
func (p *Proc) Reset() {
	p.active = false
	p.ackState = false
	p.nRetx = 0
	p.mcs = -1
	p.tbs = -1
	p.grant = rbgrid.Grant{}
}

func (p *Proc) newTx(slotTx, slotAck slotpoint.SlotPoint, grant rbgrid.Grant, mcs, maxRetx int) bool {
	if !p.Empty() {
		return false
	}
	p.Reset()
	p.ndi = !p.ndi
	p.slotTx = slotTx
	p.slotAck = slotAck
	p.grant = grant.Clone()
	p.mcs = mcs
	p.maxRetx = maxRetx
	p.active = true
	return true
}

func (p *Proc) newRetx(slotTx, slotAck slotpoint.SlotPoint, grant rbgrid.Grant) bool {
	if p.Empty() || !p.grant.SameShape(grant) {
		return false
	}
	p.slotTx = slotTx
	p.slotAck = slotAck
	p.grant = grant.Clone()
	p.ackState = false
	p.nRetx++
	return true
}

// DLProc is a DL HARQ process with its tx softbuffer and MAC PDU buffer.
type DLProc struct {
	Proc
	softbuffer *softbuffer.Tx
	pdu        []byte
}

func (p *DLProc) NewTx(slotTx, slotAck slotpoint.SlotPoint, grant rbgrid.Grant, mcs, maxRetx int) bool {
	if !p.newTx(slotTx, slotAck, grant, mcs, maxRetx) {
		return false
	}
	p.softbuffer.Reset()
	p.pdu = p.pdu[:0]
	return true
}

func (p *DLProc) NewRetx(slotTx, slotAck slotpoint.SlotPoint, grant rbgrid.Grant) bool {
	return p.newRetx(slotTx, slotAck, grant)
}

// SetTBS also sizes the PDU buffer.
func (p *DLProc) SetTBS(tbs int) {
	p.Proc.SetTBS(tbs)
	n := max(tbs/8, 0)
	if cap(p.pdu) < n {
		p.pdu = make([]byte, n)
	}
	p.pdu = p.pdu[:n]
}

func (p *DLProc) Softbuffer() *softbuffer.Tx { return p.softbuffer }
func (p *DLProc) PDU() []byte                { return p.pdu }

// ULProc is an UL HARQ process with its rx softbuffer.
type ULProc struct {
	Proc
	softbuffer *softbuffer.Rx
}

func (p *ULProc) NewTx(slotTx, slotAck slotpoint.SlotPoint, grant rbgrid.Grant, mcs, maxRetx int) bool {
	return p.newTx(slotTx, slotAck, grant, mcs, maxRetx)
}

func (p *ULProc) NewRetx(slotTx, slotAck slotpoint.SlotPoint, grant rbgrid.Grant) bool {
	return p.newRetx(slotTx, slotAck, grant)
}

// SetTBS also resets the softbuffer for the new transport block size.
func (p *ULProc) SetTBS(tbs int) {
	p.Proc.SetTBS(tbs)
	p.softbuffer.Reset(tbs)
}

func (p *ULProc) Softbuffer() *softbuffer.Rx { return p.softbuffer }
