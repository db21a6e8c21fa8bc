package pdcch

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
)

type fakeUE struct {
	rnti  uint16
	pos   map[int][]uint32
	table params.CCETable
}

func (u *fakeUE) RNTI() uint16 { return u.rnti }

func (u *fakeUE) CCEPositions(ssID int, slotIdx uint32, aggIdx int) []uint32 {
	if u.table != nil {
		return u.table.Positions(slotIdx, aggIdx)
	}
	return u.pos[aggIdx]
}

func (u *fakeUE) SearchSpace(ssID int) (model.SearchSpaceConfig, bool) {
	if ssID != 2 {
		return model.SearchSpaceConfig{}, false
	}
	return model.SearchSpaceConfig{ID: 2, CoresetID: 1, Type: model.SearchSpaceUESpecific}, true
}

func testBWP(t *testing.T) *params.BWPParams {
	t.Helper()
	sp, err := params.New(model.DefaultSchedArgs(), []model.CellConfig{model.DefaultCellConfig(52)})
	if err != nil {
		t.Fatalf("params.New: %v", err)
	}
	return sp.Cells[0].BWPs[0]
}

func newRegion(t *testing.T) (*CoresetRegion, *[]result.DLPDCCH, *[]result.ULPDCCH) {
	bwp := testBWP(t)
	dl, ul := &[]result.DLPDCCH{}, &[]result.ULPDCCH{}
	cs, _ := bwp.Cfg.Coreset(1)
	return NewCoresetRegion(bwp, cs, 0, dl, ul), dl, ul
}

func TestCoresetBacktracking(t *testing.T) {
	r, dl, _ := newRegion(t)
	a := &fakeUE{rnti: 0x4601, pos: map[int][]uint32{2: {0, 4}}}
	b := &fakeUE{rnti: 0x4602, pos: map[int][]uint32{2: {0}}}

	if !r.AllocDCI(DLData, 2, 2, a) {
		t.Fatalf("first allocation failed")
	}
	if got := (*dl)[0].DCI.Ctx.Location.NCCE; got != 0 {
		t.Fatalf("greedy placement = %d, want 0", got)
	}
	if !r.AllocDCI(DLData, 2, 2, b) {
		t.Fatalf("allocation requiring backtracking failed")
	}
	if got := (*dl)[0].DCI.Ctx.Location.NCCE; got != 4 {
		t.Fatalf("first DCI moved to %d, want 4", got)
	}
	if got := (*dl)[1].DCI.Ctx.Location.NCCE; got != 0 {
		t.Fatalf("second DCI at %d, want 0", got)
	}
	if n := r.TotalMask().Count(); n != 8 {
		t.Fatalf("occupied CCEs = %d, want 8", n)
	}
}

func TestCoresetFailureRestoresState(t *testing.T) {
	r, dl, _ := newRegion(t)
	a := &fakeUE{rnti: 0x4601, pos: map[int][]uint32{2: {0, 4}}}
	b := &fakeUE{rnti: 0x4602, pos: map[int][]uint32{2: {0}}}
	c := &fakeUE{rnti: 0x4603, pos: map[int][]uint32{2: {0, 4}}}
	r.AllocDCI(DLData, 2, 2, a)
	r.AllocDCI(DLData, 2, 2, b)
	before := r.TotalMask().Clone()

	if r.AllocDCI(DLData, 2, 2, c) {
		t.Fatalf("expected allocation to fail")
	}
	if len(*dl) != 2 || r.NofAllocations() != 2 {
		t.Fatalf("failed allocation left %d PDCCHs and %d records", len(*dl), r.NofAllocations())
	}
	if !r.TotalMask().Equal(before) {
		t.Fatalf("mask changed after failure: %s != %s", r.TotalMask(), before)
	}
	if (*dl)[0].DCI.Ctx.Location.NCCE != 4 || (*dl)[1].DCI.Ctx.Location.NCCE != 0 {
		t.Fatalf("locations not restored: %+v", *dl)
	}
}

func TestCoresetRemLastDCI(t *testing.T) {
	r, dl, ul := newRegion(t)
	a := &fakeUE{rnti: 0x4601, pos: map[int][]uint32{1: {0, 2, 4}}}
	r.AllocDCI(DLData, 1, 2, a)
	r.AllocDCI(ULData, 1, 2, a)
	if len(*dl) != 1 || len(*ul) != 1 {
		t.Fatalf("unexpected list sizes dl=%d ul=%d", len(*dl), len(*ul))
	}
	r.RemLastDCI()
	if len(*ul) != 0 || r.NofAllocations() != 1 {
		t.Fatalf("RemLastDCI did not pop the UL DCI")
	}
	if r.TotalMask().Count() != 2 {
		t.Fatalf("mask after pop = %s", r.TotalMask())
	}
	r.RemLastDCI()
	if r.TotalMask().Any() || len(*dl) != 0 {
		t.Fatalf("region not empty after popping everything")
	}
}

func TestCoresetMasksDisjointAndDeterministic(t *testing.T) {
	run := func() ([]result.DLPDCCH, []result.ULPDCCH) {
		r, dl, ul := newRegion(t)
		cs := r.Coreset()
		ss := model.SearchSpaceConfig{ID: 2, CoresetID: 1, Type: model.SearchSpaceUESpecific, NofCandidates: [5]int{4, 4, 2, 1, 0}}
		for i := 0; i < 12; i++ {
			u := &fakeUE{rnti: uint16(0x4601 + i), table: params.NewCCETable(cs, ss, uint16(0x4601+i), 10)}
			gt := DLData
			if i%3 == 2 {
				gt = ULData
			}
			r.AllocDCI(gt, i%3, 2, u)
		}
		return append([]result.DLPDCCH(nil), *dl...), append([]result.ULPDCCH(nil), *ul...)
	}
	dl, ul := run()
	var locs []result.PDCCHLocation
	for _, p := range dl {
		locs = append(locs, p.DCI.Ctx.Location)
	}
	for _, p := range ul {
		locs = append(locs, p.DCI.Ctx.Location)
	}
	if len(locs) == 0 {
		t.Fatalf("no allocation succeeded")
	}
	for i := range locs {
		si, ei := locs[i].NCCE, locs[i].NCCE+uint32(1)<<locs[i].AggIdx
		if ei > 16 {
			t.Fatalf("location %+v exceeds the coreset", locs[i])
		}
		for j := i + 1; j < len(locs); j++ {
			sj, ej := locs[j].NCCE, locs[j].NCCE+uint32(1)<<locs[j].AggIdx
			if si < ej && sj < ei {
				t.Fatalf("overlapping PDCCHs %+v and %+v", locs[i], locs[j])
			}
		}
	}
	dl2, ul2 := run()
	if len(dl2) != len(dl) || len(ul2) != len(ul) {
		t.Fatalf("replay produced different allocation counts")
	}
	for i := range dl {
		if dl[i].DCI.Ctx.Location != dl2[i].DCI.Ctx.Location {
			t.Fatalf("replay diverged at DL PDCCH %d", i)
		}
	}
}

func TestAllocatorArgumentChecks(t *testing.T) {
	bwp := testBWP(t)
	dl, ul := &[]result.DLPDCCH{}, &[]result.ULPDCCH{}
	a := NewAllocator(bwp, 0, dl, ul, nil)
	ctx := context.Background()

	if _, err := a.AllocDL(ctx, RAR, 0, 2, nil); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("RAR outside RA search space: got %v", err)
	}
	if _, err := a.AllocDL(ctx, RAR, 1, 4, nil); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("RAR without candidates: got %v", err)
	}
	if _, err := a.AllocDL(ctx, DLData, 2, 2, nil); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("UE grant without UE: got %v", err)
	}
	p, err := a.AllocDL(ctx, RAR, 1, 2, nil)
	if err != nil {
		t.Fatalf("RAR allocation: %v", err)
	}
	if p.DCI.Ctx.Location.AggIdx != 2 {
		t.Fatalf("unexpected location %+v", p.DCI.Ctx.Location)
	}
	if _, err := a.AllocDL(ctx, SIB, 0, 2, nil); err != nil {
		t.Fatalf("SI allocation next to RAR: %v", err)
	}
	if _, err := a.AllocDL(ctx, SIB, 0, 2, nil); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("third L4 DCI in a 2-candidate search space: got %v", err)
	}
	if a.NofAllocations() != 2 {
		t.Fatalf("NofAllocations = %d, want 2", a.NofAllocations())
	}

	u := &fakeUE{rnti: 0x4601, pos: map[int][]uint32{2: {0, 4, 8, 12}}}
	if n := a.FreeCandidates(2, 2, u); n != 4 {
		t.Fatalf("FreeCandidates on empty coreset 1 = %d, want 4", n)
	}
	if _, err := a.AllocUL(ctx, 2, 2, u); err != nil {
		t.Fatalf("UL allocation: %v", err)
	}
	if n := a.FreeCandidates(2, 2, u); n != 3 {
		t.Fatalf("FreeCandidates after one DCI = %d, want 3", n)
	}
	a.RemLast(2, u)
	if len(*ul) != 0 {
		t.Fatalf("RemLast did not remove the UL PDCCH")
	}
}

func TestFreeCandidatesWithoutUE(t *testing.T) {
	bwp := testBWP(t)
	dl, ul := &[]result.DLPDCCH{}, &[]result.ULPDCCH{}
	a := NewAllocator(bwp, 0, dl, ul, nil)

	if n := a.FreeCandidates(2, 2, nil); n != 0 {
		t.Fatalf("UE-specific search space without UE = %d, want 0", n)
	}
	if n := a.FreeCandidates(0, -1, nil); n != 0 {
		t.Fatalf("invalid aggregation index = %d, want 0", n)
	}
	if n := a.FreeCandidates(0, 2, nil); n != 2 {
		t.Fatalf("FreeCandidates on search space 0 = %d, want 2", n)
	}
	if _, err := a.AllocDL(context.Background(), SIB, 0, 2, nil); err != nil {
		t.Fatalf("SI allocation: %v", err)
	}
	if n := a.FreeCandidates(0, 2, nil); n != 1 {
		t.Fatalf("FreeCandidates after one DCI = %d, want 1", n)
	}
}
