// Package params derives the per-cell and per-BWP constants the scheduler
// needs from the static configuration.
package params

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

const (
	// MaxGrants bounds every per-slot result list.
	MaxGrants = 16
	// MaxMsg3PerRAR is the number of Msg3 grants a single RAR PDU carries.
	MaxMsg3PerRAR = 8
	// MaxHARQ is the number of HARQ processes per direction.
	MaxHARQ = 16
	// TxDelay is the number of slots between the slot whose feedback is
	// processed and the slot being scheduled.
	TxDelay = 4
	// Msg3PRBs is the PRB width of each Msg3 grant.
	Msg3PRBs = 3
	// MaxCoresets per BWP.
	MaxCoresets = 3
	// SSBPRBs is the bandwidth of an SS/PBCH block.
	SSBPRBs = 20
)

// ErrInvalidConfig reports an inconsistent cell or BWP configuration.
var ErrInvalidConfig = errors.New("invalid scheduler configuration")

// CCETable lists the first CCE of every PDCCH candidate, indexed by slot
// index in the frame, then by aggregation index.
type CCETable [][model.NofAggregationLevels][]uint32

// Positions returns the candidate list, nil when out of range.
func (t CCETable) Positions(slotIdx uint32, aggIdx int) []uint32 {
	if int(slotIdx) >= len(t) || aggIdx < 0 || aggIdx >= model.NofAggregationLevels {
		return nil
	}
	return t[slotIdx][aggIdx]
}

// SchedParams bundles the scheduler arguments with every cell.
type SchedParams struct {
	Args  model.SchedArgs
	Cells []*CellParams
}

// CellParams is one serving cell.
type CellParams struct {
	CC            int
	Cfg           model.CellConfig
	Args          *model.SchedArgs
	SlotsPerFrame uint32
	BWPs          []*BWPParams
}

// BWPParams holds the derived constants of one BWP.
type BWPParams struct {
	Cell      *CellParams
	Cfg       model.BWPConfig
	CC        int
	BWPID     int
	NofPRB    int
	P         int
	Msg3Delay int

	raSearchSpace model.SearchSpaceConfig
	rarCCEs       CCETable
	commonCCEs    map[int]CCETable
	k1            []int
}

// New validates the configuration and precomputes all tables.
func New(args model.SchedArgs, cells []model.CellConfig) (*SchedParams, error) {
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: no cells configured", ErrInvalidConfig)
	}
	sp := &SchedParams{Args: args}
	for cc := range cells {
		cell, err := newCellParams(cc, cells[cc], &sp.Args)
		if err != nil {
			return nil, err
		}
		sp.Cells = append(sp.Cells, cell)
	}
	return sp, nil
}

func newCellParams(cc int, cfg model.CellConfig, args *model.SchedArgs) (*CellParams, error) {
	if cfg.Numerology > slotpoint.MaxNumerology {
		return nil, fmt.Errorf("%w: cell %d numerology %d", ErrInvalidConfig, cc, cfg.Numerology)
	}
	if len(cfg.BWPs) == 0 {
		return nil, fmt.Errorf("%w: cell %d has no BWP", ErrInvalidConfig, cc)
	}
	cell := &CellParams{CC: cc, Cfg: cfg, Args: args, SlotsPerFrame: slotpoint.NofSlotsPerFrame(cfg.Numerology)}
	for i := range cfg.BWPs {
		bwp, err := newBWPParams(cell, cfg.BWPs[i])
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", cc, err)
		}
		cell.BWPs = append(cell.BWPs, bwp)
	}
	return cell, nil
}

var msg3Delta = [slotpoint.MaxNumerology + 1]int{2, 3, 4, 6, 6}

func newBWPParams(cell *CellParams, cfg model.BWPConfig) (*BWPParams, error) {
	if cfg.NofPRB <= 0 || cfg.StartRB+cfg.NofPRB > cell.Cfg.NofPRB {
		return nil, fmt.Errorf("%w: BWP %d does not fit the carrier", ErrInvalidConfig, cfg.ID)
	}
	if len(cfg.Coresets) == 0 || len(cfg.Coresets) > MaxCoresets {
		return nil, fmt.Errorf("%w: BWP %d needs 1..%d coresets", ErrInvalidConfig, cfg.ID, MaxCoresets)
	}
	for _, cs := range cfg.Coresets {
		if cs.ID < 0 || cs.ID >= MaxCoresets || cs.NofCCEs() == 0 {
			return nil, fmt.Errorf("%w: coreset %d", ErrInvalidConfig, cs.ID)
		}
		if cs.StartRB+cs.NofPRB() > cfg.NofPRB {
			return nil, fmt.Errorf("%w: coreset %d exceeds BWP %d", ErrInvalidConfig, cs.ID, cfg.ID)
		}
	}
	b := &BWPParams{
		Cell:       cell,
		Cfg:        cfg,
		CC:         cell.CC,
		BWPID:      cfg.ID,
		NofPRB:     cfg.NofPRB,
		P:          rbgrid.RBGSize(cfg.NofPRB, cfg.RBGConfig1),
		Msg3Delay:  cfg.K2 + msg3Delta[cell.Cfg.Numerology],
		commonCCEs: make(map[int]CCETable),
	}
	for _, ss := range cfg.SearchSpaces {
		cs, ok := cfg.Coreset(ss.CoresetID)
		if !ok {
			return nil, fmt.Errorf("%w: search space %d references unknown coreset %d", ErrInvalidConfig, ss.ID, ss.CoresetID)
		}
		if ss.Type.IsCommon() {
			b.commonCCEs[ss.ID] = NewCCETable(cs, ss, 0, int(cell.SlotsPerFrame))
		}
	}
	ra, ok := cfg.SearchSpace(cfg.RASearchSpaceID)
	if !ok || !ra.Type.IsCommon() {
		return nil, fmt.Errorf("%w: RA search space %d must be a configured common search space", ErrInvalidConfig, cfg.RASearchSpaceID)
	}
	if cfg.RARWindowSize <= 0 {
		return nil, fmt.Errorf("%w: RAR window size %d", ErrInvalidConfig, cfg.RARWindowSize)
	}
	b.raSearchSpace = ra
	b.rarCCEs = b.commonCCEs[ra.ID]
	b.k1 = make([]int, cell.SlotsPerFrame)
	for i := range b.k1 {
		b.k1[i] = b.computeK1(uint32(i))
	}
	return b, nil
}

func (b *BWPParams) computeK1(slotIdx uint32) int {
	minK1 := max(b.Cfg.MinK1, 1)
	n := b.Cell.SlotsPerFrame
	for k := minK1; k < minK1+int(2*n); k++ {
		if b.Cell.IsULIdx((slotIdx + uint32(k)) % n) {
			return k
		}
	}
	return minK1
}

// IsDL reports whether slot s carries downlink.
func (c *CellParams) IsDL(s slotpoint.SlotPoint) bool { return c.Cfg.TDD.IsDL(s.SlotIdx()) }

// IsUL reports whether slot s carries uplink.
func (c *CellParams) IsUL(s slotpoint.SlotPoint) bool { return c.Cfg.TDD.IsUL(s.SlotIdx()) }

func (c *CellParams) IsDLIdx(idx uint32) bool { return c.Cfg.TDD.IsDL(idx) }
func (c *CellParams) IsULIdx(idx uint32) bool { return c.Cfg.TDD.IsUL(idx) }

// RASearchSpace returns the search space used for RAR.
func (b *BWPParams) RASearchSpace() model.SearchSpaceConfig { return b.raSearchSpace }

// RARPositions returns the RAR candidate CCEs.
func (b *BWPParams) RARPositions(slotIdx uint32, aggIdx int) []uint32 {
	return b.rarCCEs.Positions(slotIdx, aggIdx)
}

// CommonPositions returns the candidate CCEs of common search space ssID.
func (b *BWPParams) CommonPositions(ssID int, slotIdx uint32, aggIdx int) []uint32 {
	return b.commonCCEs[ssID].Positions(slotIdx, aggIdx)
}

// K1 returns the PDSCH-to-HARQ-ACK delay for a PDSCH in slot s.
func (b *BWPParams) K1(s slotpoint.SlotPoint) int { return b.k1[s.SlotIdx()] }

// Args returns the scheduler arguments.
func (b *BWPParams) Args() *model.SchedArgs { return b.Cell.Args }
