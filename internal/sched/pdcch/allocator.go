package pdcch

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
)

var (
	// ErrInvalidArgs reports a request that can never succeed in this slot.
	ErrInvalidArgs = errors.New("invalid PDCCH allocation arguments")
	// ErrNoSpace reports that no candidate combination fits.
	ErrNoSpace = errors.New("no PDCCH space")
)

// Allocator owns the coreset regions of one BWP slot.
type Allocator struct {
	bwp     *params.BWPParams
	slotIdx uint32
	log     logging.Logger

	dl      *[]result.DLPDCCH
	ul      *[]result.ULPDCCH
	regions [params.MaxCoresets]*CoresetRegion
}

// NewAllocator builds one region per configured coreset.
func NewAllocator(bwp *params.BWPParams, slotIdx uint32, dl *[]result.DLPDCCH, ul *[]result.ULPDCCH, log logging.Logger) *Allocator {
	if log == nil {
		log = logging.Noop()
	}
	a := &Allocator{bwp: bwp, slotIdx: slotIdx, log: log, dl: dl, ul: ul}
	for _, cs := range bwp.Cfg.Coresets {
		a.regions[cs.ID] = NewCoresetRegion(bwp, cs, slotIdx, dl, ul)
	}
	return a
}

// Region returns the region of a coreset, nil if not configured.
func (a *Allocator) Region(coresetID int) *CoresetRegion {
	if coresetID < 0 || coresetID >= len(a.regions) {
		return nil
	}
	return a.regions[coresetID]
}

// NofAllocations sums the DCIs over all coresets.
func (a *Allocator) NofAllocations() int {
	n := 0
	for _, r := range a.regions {
		if r != nil {
			n += r.NofAllocations()
		}
	}
	return n
}

func (a *Allocator) Reset() {
	for _, r := range a.regions {
		if r != nil {
			r.Reset()
		}
	}
}

// AllocDL places a DL DCI (data, RAR or SI). The returned PDCCH stays valid
// until the next allocation in this slot.
func (a *Allocator) AllocDL(ctx context.Context, gt GrantType, ssID, aggIdx int, ue CCELocator) (*result.DLPDCCH, error) {
	region, err := a.checkArgs(ctx, gt, ssID, aggIdx, ue)
	if err != nil {
		return nil, err
	}
	if !region.AllocDCI(gt, aggIdx, ssID, ue) {
		a.logFailure(ctx, gt, ssID, aggIdx, ue, "no space in coreset")
		return nil, ErrNoSpace
	}
	return &(*a.dl)[len(*a.dl)-1], nil
}

// AllocUL places an UL DCI for a UE.
func (a *Allocator) AllocUL(ctx context.Context, ssID, aggIdx int, ue CCELocator) (*result.ULPDCCH, error) {
	region, err := a.checkArgs(ctx, ULData, ssID, aggIdx, ue)
	if err != nil {
		return nil, err
	}
	if !region.AllocDCI(ULData, aggIdx, ssID, ue) {
		a.logFailure(ctx, ULData, ssID, aggIdx, ue, "no space in coreset")
		return nil, ErrNoSpace
	}
	return &(*a.ul)[len(*a.ul)-1], nil
}

// RemLast undoes the last DCI allocated in the coreset of search space ssID.
func (a *Allocator) RemLast(ssID int, ue CCELocator) {
	ss, ok := a.searchSpace(ssID, ue)
	if !ok {
		panic(fmt.Sprintf("pdcch: RemLast with unknown search space %d", ssID))
	}
	a.regions[ss.CoresetID].RemLastDCI()
}

// FreeCandidates counts the candidates of ssID at aggIdx that do not collide
// with the DCIs already placed. Without a UE only common search spaces have
// candidates.
func (a *Allocator) FreeCandidates(ssID, aggIdx int, ue CCELocator) int {
	ss, ok := a.searchSpace(ssID, ue)
	if !ok || a.regions[ss.CoresetID] == nil || aggIdx < 0 || aggIdx >= model.NofAggregationLevels {
		return 0
	}
	var cands []uint32
	switch {
	case ue != nil:
		cands = ue.CCEPositions(ssID, a.slotIdx, aggIdx)
	case ss.Type.IsCommon():
		cands = a.bwp.CommonPositions(ssID, a.slotIdx, aggIdx)
	default:
		return 0
	}
	region := a.regions[ss.CoresetID]
	mask := region.TotalMask()
	l := 1 << aggIdx
	n := 0
	for _, p := range cands {
		if int(p)+l <= region.NofCCEs() && !mask.AnyRange(int(p), int(p)+l) {
			n++
		}
	}
	return n
}

// SearchSpace resolves ssID against the UE's dedicated search spaces first,
// then against the BWP ones.
func (a *Allocator) SearchSpace(ssID int, ue CCELocator) (model.SearchSpaceConfig, bool) {
	return a.searchSpace(ssID, ue)
}

func (a *Allocator) searchSpace(ssID int, ue CCELocator) (model.SearchSpaceConfig, bool) {
	if ue != nil {
		if ss, ok := ue.SearchSpace(ssID); ok {
			return ss, true
		}
	}
	return a.bwp.Cfg.SearchSpace(ssID)
}

func (a *Allocator) checkArgs(ctx context.Context, gt GrantType, ssID, aggIdx int, ue CCELocator) (*CoresetRegion, error) {
	fail := func(reason string) (*CoresetRegion, error) {
		a.logFailure(ctx, gt, ssID, aggIdx, ue, reason)
		return nil, ErrInvalidArgs
	}
	if !a.bwp.Cell.IsDLIdx(a.slotIdx) {
		return fail("slot is not DL enabled")
	}
	if aggIdx < 0 || aggIdx >= model.NofAggregationLevels {
		return fail("invalid aggregation index")
	}
	ss, ok := a.searchSpace(ssID, ue)
	if !ok {
		return fail("search space not configured")
	}
	region := a.regions[ss.CoresetID]
	if region == nil {
		return fail("coreset not configured")
	}
	switch gt {
	case DLData, ULData:
		if ue == nil {
			return fail("UE grant without UE context")
		}
	case RAR:
		if ssID != a.bwp.RASearchSpace().ID {
			return fail("RAR outside the RA search space")
		}
	case SIB:
		if ss.Type != model.SearchSpaceCommon0 {
			return fail("SI outside search space type 0")
		}
	}
	if gt == ULData && len(*a.ul) >= params.MaxGrants || gt != ULData && len(*a.dl) >= params.MaxGrants {
		a.logFailure(ctx, gt, ssID, aggIdx, ue, "maximum number of PDCCH allocations reached")
		return nil, ErrNoSpace
	}
	var cands []uint32
	switch gt {
	case RAR:
		cands = a.bwp.RARPositions(a.slotIdx, aggIdx)
	case SIB:
		cands = a.bwp.CommonPositions(ssID, a.slotIdx, aggIdx)
	default:
		cands = ue.CCEPositions(ssID, a.slotIdx, aggIdx)
	}
	if len(cands) == 0 {
		return fail("no candidates for aggregation level")
	}
	return region, nil
}

func (a *Allocator) logFailure(ctx context.Context, gt GrantType, ssID, aggIdx int, ue CCELocator, reason string) {
	fields := []logging.Field{
		logging.String("grant", gt.String()),
		logging.Int("ss_id", ssID),
		logging.Int("aggr_level", 1<<aggIdx),
		logging.String("reason", reason),
	}
	if ue == nil {
		a.log.Warn(ctx, "failed to allocate PDCCH", fields...)
		return
	}
	fields = append(fields, logging.String("rnti", fmt.Sprintf("0x%x", ue.RNTI())))
	a.log.Debug(ctx, "failed to allocate PDCCH", fields...)
}
