// Package ue holds the scheduler state of connected UEs.
package ue

import (
	"slices"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

// CarrierParams is a UE's view of the active BWP of one cell: its search
// spaces and PDCCH candidate tables.
type CarrierParams struct {
	rnti         uint16
	cc           int
	bwp          *params.BWPParams
	cfg          *model.UEConfig
	searchSpaces map[int]model.SearchSpaceConfig
	ssIDs        []int
	cce          map[int]params.CCETable
}

// NewCarrierParams precomputes the candidate tables of every search space
// the UE monitors on bwp.
func NewCarrierParams(rnti uint16, bwp *params.BWPParams, cfg *model.UEConfig) *CarrierParams {
	p := &CarrierParams{
		rnti:         rnti,
		cc:           bwp.CC,
		bwp:          bwp,
		cfg:          cfg,
		searchSpaces: make(map[int]model.SearchSpaceConfig),
		cce:          make(map[int]params.CCETable),
	}
	all := append(slices.Clone(bwp.Cfg.SearchSpaces), cfg.SearchSpaces...)
	for _, ss := range all {
		cs, ok := bwp.Cfg.Coreset(ss.CoresetID)
		if !ok {
			continue
		}
		p.searchSpaces[ss.ID] = ss
		p.cce[ss.ID] = params.NewCCETable(cs, ss, rnti, int(bwp.Cell.SlotsPerFrame))
	}
	for id := range p.searchSpaces {
		p.ssIDs = append(p.ssIDs, id)
	}
	slices.Sort(p.ssIDs)
	return p
}

func (p *CarrierParams) RNTI() uint16                 { return p.rnti }
func (p *CarrierParams) CC() int                      { return p.cc }
func (p *CarrierParams) BWP() *params.BWPParams       { return p.bwp }
func (p *CarrierParams) ActiveBWPID() int             { return p.bwp.BWPID }
func (p *CarrierParams) SearchSpaceIDs() []int        { return p.ssIDs }
func (p *CarrierParams) K1(s slotpoint.SlotPoint) int { return p.bwp.K1(s) }

// MaxHARQTx is the number of transmissions allowed per transport block.
func (p *CarrierParams) MaxHARQTx() int {
	if p.cfg.MaxHARQTx > 0 {
		return p.cfg.MaxHARQTx
	}
	return p.bwp.Args().MaxHARQRetx
}

// CCEPositions implements pdcch.CCELocator.
func (p *CarrierParams) CCEPositions(ssID int, slotIdx uint32, aggIdx int) []uint32 {
	return p.cce[ssID].Positions(slotIdx, aggIdx)
}

// SearchSpace implements pdcch.CCELocator.
func (p *CarrierParams) SearchSpace(ssID int) (model.SearchSpaceConfig, bool) {
	ss, ok := p.searchSpaces[ssID]
	return ss, ok
}

// SROpportunity reports whether slot s carries an SR occasion.
func (p *CarrierParams) SROpportunity(s slotpoint.SlotPoint) bool {
	return p.cfg.SRPeriod > 0 && int(s.ToUint())%p.cfg.SRPeriod == p.cfg.SROffset
}

// CSIOpportunity reports whether slot s carries a periodic CSI report.
func (p *CarrierParams) CSIOpportunity(s slotpoint.SlotPoint) bool {
	return p.cfg.CSIPeriod > 0 && int(s.ToUint())%p.cfg.CSIPeriod == p.cfg.CSIOffset
}
