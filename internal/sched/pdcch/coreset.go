// Package pdcch allocates PDCCH candidates inside the coresets of a slot.
//
// Allocation is a depth-first search over the candidate positions of every
// DCI allocated so far in the coreset. A new DCI that collides with the
// current placement triggers backtracking over the earlier decisions, so a
// request fails only when no combination of candidates fits all DCIs.
package pdcch

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/rbgrid"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
)

// GrantType is the purpose of a DCI.
type GrantType uint8

const (
	DLData GrantType = iota
	ULData
	RAR
	SIB
)

func (g GrantType) String() string {
	switch g {
	case DLData:
		return "dl"
	case ULData:
		return "ul"
	case RAR:
		return "rar"
	case SIB:
		return "si"
	default:
		return "unknown"
	}
}

// CCELocator is the UE side of a DCI allocation.
type CCELocator interface {
	RNTI() uint16
	CCEPositions(ssID int, slotIdx uint32, aggIdx int) []uint32
	SearchSpace(ssID int) (model.SearchSpaceConfig, bool)
}

type allocRecord struct {
	aggIdx    int
	ssID      int
	idx       int
	grantType GrantType
	ue        CCELocator
}

type treeNode struct {
	dciPosIdx int
	ncce      uint32
	total     rbgrid.Bitmap
}

// CoresetRegion tracks the CCE occupancy of one coreset in one slot.
type CoresetRegion struct {
	bwp     *params.BWPParams
	coreset model.CoresetConfig
	slotIdx uint32
	nofCCEs int

	dl *[]result.DLPDCCH
	ul *[]result.ULPDCCH

	dfsTree   []treeNode
	savedTree []treeNode
	dciList   []allocRecord
}

// NewCoresetRegion binds a coreset to the PDCCH lists of a slot.
func NewCoresetRegion(bwp *params.BWPParams, coreset model.CoresetConfig, slotIdx uint32, dl *[]result.DLPDCCH, ul *[]result.ULPDCCH) *CoresetRegion {
	return &CoresetRegion{
		bwp:     bwp,
		coreset: coreset,
		slotIdx: slotIdx,
		nofCCEs: coreset.NofCCEs(),
		dl:      dl,
		ul:      ul,
	}
}

func (r *CoresetRegion) NofCCEs() int                 { return r.nofCCEs }
func (r *CoresetRegion) NofAllocations() int          { return len(r.dciList) }
func (r *CoresetRegion) Coreset() model.CoresetConfig { return r.coreset }

// TotalMask returns the CCEs occupied by all committed DCIs.
func (r *CoresetRegion) TotalMask() rbgrid.Bitmap {
	if len(r.dfsTree) == 0 {
		return rbgrid.NewBitmap(r.nofCCEs)
	}
	return r.dfsTree[len(r.dfsTree)-1].total
}

// Reset drops every allocation. The PDCCH lists are owned by the caller.
func (r *CoresetRegion) Reset() {
	r.dfsTree = r.dfsTree[:0]
	r.savedTree = r.savedTree[:0]
	r.dciList = r.dciList[:0]
}

// AllocDCI appends a PDCCH for grantType to the slot lists and places it,
// moving earlier DCIs of this coreset if needed. On failure the region and
// the lists are left exactly as before the call.
func (r *CoresetRegion) AllocDCI(grantType GrantType, aggIdx, ssID int, ue CCELocator) bool {
	rec := allocRecord{aggIdx: aggIdx, ssID: ssID, grantType: grantType, ue: ue}
	if grantType == ULData {
		rec.idx = len(*r.ul)
		*r.ul = append(*r.ul, result.ULPDCCH{})
	} else {
		rec.idx = len(*r.dl)
		*r.dl = append(*r.dl, result.DLPDCCH{})
	}

	r.savedTree = append(r.savedTree[:0], r.dfsTree...)
	for {
		if r.allocDFSNode(rec, 0) {
			r.dciList = append(r.dciList, rec)
			return true
		}
		if !r.nextDFS() {
			break
		}
	}

	r.dfsTree, r.savedTree = r.savedTree, r.dfsTree
	r.restoreLocations()
	if grantType == ULData {
		*r.ul = (*r.ul)[:rec.idx]
	} else {
		*r.dl = (*r.dl)[:rec.idx]
	}
	return false
}

// RemLastDCI undoes the most recent successful AllocDCI.
func (r *CoresetRegion) RemLastDCI() {
	if len(r.dciList) == 0 {
		panic("pdcch: RemLastDCI on empty coreset region")
	}
	rec := r.dciList[len(r.dciList)-1]
	if rec.grantType == ULData {
		if rec.idx != len(*r.ul)-1 {
			panic("pdcch: RemLastDCI out of order")
		}
		*r.ul = (*r.ul)[:rec.idx]
	} else {
		if rec.idx != len(*r.dl)-1 {
			panic("pdcch: RemLastDCI out of order")
		}
		*r.dl = (*r.dl)[:rec.idx]
	}
	r.dciList = r.dciList[:len(r.dciList)-1]
	r.dfsTree = r.dfsTree[:len(r.dfsTree)-1]
}

// nextDFS advances the search to the next permutation of the already
// committed records. It returns false once the root is exhausted.
func (r *CoresetRegion) nextDFS() bool {
	for {
		if len(r.dfsTree) == 0 {
			return false
		}
		start := r.dfsTree[len(r.dfsTree)-1].dciPosIdx + 1
		r.dfsTree = r.dfsTree[:len(r.dfsTree)-1]
		for len(r.dfsTree) < len(r.dciList) && r.allocDFSNode(r.dciList[len(r.dfsTree)], start) {
			start = 0
		}
		if len(r.dfsTree) == len(r.dciList) {
			return true
		}
	}
}

func (r *CoresetRegion) allocDFSNode(rec allocRecord, startIdx int) bool {
	locs := r.positions(rec)
	var prev rbgrid.Bitmap
	if len(r.dfsTree) > 0 {
		prev = r.dfsTree[len(r.dfsTree)-1].total
	} else {
		prev = rbgrid.NewBitmap(r.nofCCEs)
	}
	l := 1 << rec.aggIdx
	for i := startIdx; i < len(locs); i++ {
		ncce := int(locs[i])
		if ncce+l > r.nofCCEs || prev.AnyRange(ncce, ncce+l) {
			continue
		}
		total := prev.Clone()
		total.Fill(ncce, ncce+l)
		r.dfsTree = append(r.dfsTree, treeNode{dciPosIdx: i, ncce: locs[i], total: total})
		r.setLocation(rec, locs[i])
		return true
	}
	return false
}

func (r *CoresetRegion) positions(rec allocRecord) []uint32 {
	switch rec.grantType {
	case RAR:
		return r.bwp.RARPositions(r.slotIdx, rec.aggIdx)
	case SIB:
		return r.bwp.CommonPositions(rec.ssID, r.slotIdx, rec.aggIdx)
	default:
		return rec.ue.CCEPositions(rec.ssID, r.slotIdx, rec.aggIdx)
	}
}

func (r *CoresetRegion) setLocation(rec allocRecord, ncce uint32) {
	loc := result.PDCCHLocation{AggIdx: rec.aggIdx, NCCE: ncce}
	if rec.grantType == ULData {
		(*r.ul)[rec.idx].DCI.Ctx.Location = loc
	} else {
		(*r.dl)[rec.idx].DCI.Ctx.Location = loc
	}
}

func (r *CoresetRegion) restoreLocations() {
	for i, rec := range r.dciList {
		r.setLocation(rec, r.dfsTree[i].ncce)
	}
}

// String lists the current placements, one per line.
func (r *CoresetRegion) String() string {
	var sb strings.Builder
	for i, rec := range r.dciList {
		rnti := uint16(0)
		if rec.ue != nil {
			rnti = rec.ue.RNTI()
		}
		fmt.Fprintf(&sb, "coreset=%d %s rnti=0x%x L=%d ncce=%d mask=%s\n",
			r.coreset.ID, rec.grantType, rnti, 1<<rec.aggIdx, r.dfsTree[i].ncce, r.dfsTree[i].total)
	}
	return sb.String()
}
