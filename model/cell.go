package model

// TDDPattern describes a periodic TDD slot pattern. The first DLSlots of each
// period carry downlink, the last ULSlots carry uplink.
type TDDPattern struct {
	PeriodSlots int `json:"period_slots"`
	DLSlots     int `json:"dl_slots"`
	ULSlots     int `json:"ul_slots"`
}

// IsDL reports whether slot index slotIdx (within the frame) is downlink.
// A nil pattern means FDD.
func (p *TDDPattern) IsDL(slotIdx uint32) bool {
	if p == nil || p.PeriodSlots <= 0 {
		return true
	}
	return int(slotIdx)%p.PeriodSlots < p.DLSlots
}

// IsUL reports whether slot index slotIdx (within the frame) is uplink.
func (p *TDDPattern) IsUL(slotIdx uint32) bool {
	if p == nil || p.PeriodSlots <= 0 {
		return true
	}
	return int(slotIdx)%p.PeriodSlots >= p.PeriodSlots-p.ULSlots
}

// SSBConfig places the SS/PBCH block.
type SSBConfig struct {
	PeriodMs int `json:"period_ms"`
	// SlotIdx lists the slots of the first half frame carrying an SSB.
	SlotIdx []uint32 `json:"slot_idx"`
	StartRB int      `json:"start_rb"`
}

// SIConfig describes one broadcast system-information message. Index 0 is SIB1.
type SIConfig struct {
	Index        int `json:"index"`
	LenBytes     int `json:"len_bytes"`
	PeriodFrames int `json:"period_frames"`
	SlotOffset   int `json:"slot_offset"`
	WindowSlots  int `json:"window_slots"`
}

// CSIRSConfig is a periodic NZP CSI-RS resource.
type CSIRSConfig struct {
	ResourceID  int `json:"resource_id"`
	PeriodSlots int `json:"period_slots"`
	OffsetSlots int `json:"offset_slots"`
}

// CellConfig is the static configuration of one serving cell.
type CellConfig struct {
	PCI        uint32        `json:"pci"`
	Numerology uint8         `json:"numerology"`
	NofPRB     int           `json:"nof_prb"`
	TDD        *TDDPattern   `json:"tdd,omitempty"`
	SSB        SSBConfig     `json:"ssb"`
	SIBs       []SIConfig    `json:"sibs"`
	CSIRS      []CSIRSConfig `json:"csi_rs"`
	BWPs       []BWPConfig   `json:"bwps"`
}

// SchedArgs are cell-independent scheduling knobs.
type SchedArgs struct {
	FixedDLMCS   int  `json:"fixed_dl_mcs"`
	FixedULMCS   int  `json:"fixed_ul_mcs"`
	MaxHARQRetx  int  `json:"max_harq_retx"`
	PDCCHAggrIdx int  `json:"pdcch_aggr_idx"`
	RARMCS       int  `json:"rar_mcs"`
	SIMCS        int  `json:"si_mcs"`
	Msg3MCS      int  `json:"msg3_mcs"`
	MaxNofUEs    int  `json:"max_nof_ues"`
	PUCCHMuxing  bool `json:"pucch_muxing"`
}

// DefaultSchedArgs mirrors a conservative gNB setup.
func DefaultSchedArgs() SchedArgs {
	return SchedArgs{
		FixedDLMCS:   28,
		FixedULMCS:   10,
		MaxHARQRetx:  4,
		PDCCHAggrIdx: 2,
		RARMCS:       0,
		SIMCS:        0,
		Msg3MCS:      0,
		MaxNofUEs:    32,
	}
}

// DefaultCellConfig returns an FDD cell of nofPRB PRBs with a single BWP
// spanning the carrier.
func DefaultCellConfig(nofPRB int) CellConfig {
	return CellConfig{
		PCI:        1,
		Numerology: 0,
		NofPRB:     nofPRB,
		SSB:        SSBConfig{PeriodMs: 20, SlotIdx: []uint32{0}, StartRB: 0},
		SIBs: []SIConfig{
			{Index: 0, LenBytes: 101, PeriodFrames: 16, SlotOffset: 1, WindowSlots: 5},
		},
		CSIRS: []CSIRSConfig{{ResourceID: 0, PeriodSlots: 20, OffsetSlots: 2}},
		BWPs:  []BWPConfig{DefaultBWPConfig(nofPRB)},
	}
}

// DefaultTDDPattern is a 10-slot period with 6 DL and 3 UL slots.
func DefaultTDDPattern() *TDDPattern {
	return &TDDPattern{PeriodSlots: 10, DLSlots: 6, ULSlots: 3}
}
