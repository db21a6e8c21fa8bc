// Package result defines what the scheduler hands to the PHY for each slot.
package result

import (
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/softbuffer"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// RNTIType tells which identity scrambles a DCI.
type RNTIType uint8

const (
	RNTITypeC RNTIType = iota
	RNTITypeTC
	RNTITypeRA
	RNTITypeSI
)

func (t RNTIType) String() string {
	switch t {
	case RNTITypeC:
		return "c-rnti"
	case RNTITypeTC:
		return "tc-rnti"
	case RNTITypeRA:
		return "ra-rnti"
	case RNTITypeSI:
		return "si-rnti"
	default:
		return "unknown"
	}
}

// SIRNTI is the fixed system information RNTI.
const SIRNTI uint16 = 0xffff

// DCIFormat of a PDCCH.
type DCIFormat uint8

const (
	Format0_0 DCIFormat = iota
	Format0_1
	Format1_0
	Format1_1
)

func (f DCIFormat) String() string {
	return [...]string{"0_0", "0_1", "1_0", "1_1"}[f]
}

// PDCCHLocation is an aggregation index plus the first CCE.
type PDCCHLocation struct {
	AggIdx int
	NCCE   uint32
}

// DCICtx carries what the PHY needs to place and scramble a DCI.
type DCICtx struct {
	Location       PDCCHLocation
	SSID           int
	SSType         model.SearchSpaceType
	CoresetID      int
	CoresetStartRB int
	RNTIType       RNTIType
	RNTI           uint16
	Format         DCIFormat
}

// DLDCI holds the scheduling fields of a DL assignment.
type DLDCI struct {
	Ctx            DCICtx
	FreqAllocType0 bool
	FreqDomain     uint64
	TimeDomain     int
	MCS            int
	NDI            bool
	RV             int
	PID            int
	DAI            int
	HARQFeedback   int
	TPC            int
	PUCCHResource  int
	BWPID          int
	CC             int
	SII            int
}

// ULDCI holds the scheduling fields of an UL grant.
type ULDCI struct {
	Ctx            DCICtx
	FreqAllocType0 bool
	FreqDomain     uint64
	TimeDomain     int
	MCS            int
	NDI            bool
	RV             int
	PID            int
	TPC            int
	BWPID          int
	CC             int
}

type DLPDCCH struct{ DCI DLDCI }
type ULPDCCH struct{ DCI ULDCI }

// PDSCH is one DL transmission.
type PDSCH struct {
	RNTI       uint16
	RNTIType   RNTIType
	PID        int
	Grant      rbgrid.Grant
	NofPRB     int
	MCS        int
	TBS        int // bits
	CodeRate   float64
	NofRetx    int
	Softbuffer *softbuffer.Tx
	// SubPDUs lists the logical channels and MAC CEs carried, in order.
	SubPDUs []uint32
	SIIdx   int
}

// HARQAck is one expected HARQ-ACK bit.
type HARQAck struct {
	RNTI uint16
	CC   int
	PID  int
	DAI  int
}

// UCI bundles the uplink control information due in a slot.
type UCI struct {
	ACKs []HARQAck
	SR   bool
	CSI  bool
}

func (u UCI) Empty() bool { return len(u.ACKs) == 0 && !u.SR && !u.CSI }

// PUSCH is one UL transmission, optionally carrying UCI.
type PUSCH struct {
	RNTI       uint16
	PID        int
	Grant      rbgrid.Grant
	NofPRB     int
	MCS        int
	TBS        int
	NofRetx    int
	Softbuffer *softbuffer.Rx
	UCI        UCI
}

// PUCCH carries UCI when the UE has no PUSCH in the slot.
type PUCCH struct {
	RNTI     uint16
	Resource int
	UCI      UCI
}

// RARInfo is a detected PRACH preamble.
type RARInfo struct {
	CC            int
	PreambleIdx   int
	OFDMSymbolIdx int
	FreqIdx       int
	TempCRNTI     uint16
	TACmd         int
	Msg3Size      int
	PRACHSlot     slotpoint.SlotPoint
}

// Msg3Grant is one RAR entry with its UL grant.
type Msg3Grant struct {
	Info RARInfo
	DCI  ULDCI
}

// RAR is a random access response PDU.
type RAR struct {
	RARNTI uint16
	Grants []Msg3Grant
}

type SSB struct {
	PCI     uint32
	SlotIdx uint32
	StartRB int
}

type CSIRS struct {
	ResourceID int
}

// DLSched lists every DL decision of a slot.
type DLSched struct {
	PDCCHDL []DLPDCCH
	PDCCHUL []ULPDCCH
	PDSCH   []PDSCH
	SSB     []SSB
	CSIRS   []CSIRS
	RAR     []RAR
	SIBIdxs []int
}

// ULSched lists every UL decision of a slot.
type ULSched struct {
	PUSCH []PUSCH
	PUCCH []PUCCH
}

// DLResult is the DL output of one cell for one slot.
type DLResult struct {
	Slot slotpoint.SlotPoint
	CC   int
	DLSched
}

// ULResult is the UL output of one cell for one slot.
type ULResult struct {
	Slot slotpoint.SlotPoint
	CC   int
	ULSched
}

// Reset empties the lists, keeping capacity.
func (d *DLSched) Reset() {
	d.PDCCHDL = d.PDCCHDL[:0]
	d.PDCCHUL = d.PDCCHUL[:0]
	d.PDSCH = d.PDSCH[:0]
	d.SSB = d.SSB[:0]
	d.CSIRS = d.CSIRS[:0]
	d.RAR = d.RAR[:0]
	d.SIBIdxs = d.SIBIdxs[:0]
}

// Clone deep-copies the lists so the slot grid can be reused.
func (d *DLSched) Clone() DLSched {
	c := DLSched{
		PDCCHDL: append([]DLPDCCH(nil), d.PDCCHDL...),
		PDCCHUL: append([]ULPDCCH(nil), d.PDCCHUL...),
		SSB:     append([]SSB(nil), d.SSB...),
		CSIRS:   append([]CSIRS(nil), d.CSIRS...),
		SIBIdxs: append([]int(nil), d.SIBIdxs...),
	}
	for _, p := range d.PDSCH {
		p.Grant = p.Grant.Clone()
		p.SubPDUs = append([]uint32(nil), p.SubPDUs...)
		c.PDSCH = append(c.PDSCH, p)
	}
	for _, r := range d.RAR {
		r.Grants = append([]Msg3Grant(nil), r.Grants...)
		c.RAR = append(c.RAR, r)
	}
	return c
}

func (u *ULSched) Reset() {
	u.PUSCH = u.PUSCH[:0]
	u.PUCCH = u.PUCCH[:0]
}

func (u *ULSched) Clone() ULSched {
	var c ULSched
	for _, p := range u.PUSCH {
		p.Grant = p.Grant.Clone()
		p.UCI.ACKs = append([]HARQAck(nil), p.UCI.ACKs...)
		c.PUSCH = append(c.PUSCH, p)
	}
	for _, p := range u.PUCCH {
		p.UCI.ACKs = append([]HARQAck(nil), p.UCI.ACKs...)
		c.PUCCH = append(c.PUCCH, p)
	}
	return c
}
