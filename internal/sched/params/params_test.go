package params

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/nr-mac-scheduler/model"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

func TestNewDefaultCell(t *testing.T) {
	sp, err := New(model.DefaultSchedArgs(), []model.CellConfig{model.DefaultCellConfig(52)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bwp := sp.Cells[0].BWPs[0]
	if bwp.P != 4 {
		t.Fatalf("P = %d, want 4", bwp.P)
	}
	if bwp.Msg3Delay != 6 {
		t.Fatalf("Msg3Delay = %d, want 6", bwp.Msg3Delay)
	}
	if got := bwp.K1(slotpoint.New(0, 3)); got != 4 {
		t.Fatalf("FDD K1 = %d, want 4", got)
	}
	if len(bwp.RARPositions(0, 2)) != 2 {
		t.Fatalf("expected 2 RAR candidates at aggregation index 2, got %v", bwp.RARPositions(0, 2))
	}
}

func TestTDDK1PointsToUplink(t *testing.T) {
	cell := model.DefaultCellConfig(52)
	cell.TDD = model.DefaultTDDPattern()
	sp, err := New(model.DefaultSchedArgs(), []model.CellConfig{cell})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := sp.Cells[0]
	bwp := c.BWPs[0]
	for idx := uint32(0); idx < c.SlotsPerFrame; idx++ {
		s := slotpoint.New(0, idx)
		k1 := bwp.K1(s)
		if k1 < 4 || !c.IsUL(s.Add(k1)) {
			t.Fatalf("slot %d: k1=%d does not land on an UL slot", idx, k1)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	cell := model.DefaultCellConfig(52)
	cell.BWPs[0].RASearchSpaceID = 2
	if _, err := New(model.DefaultSchedArgs(), []model.CellConfig{cell}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for UE-specific RA search space, got %v", err)
	}
	if _, err := New(model.DefaultSchedArgs(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty cell list, got %v", err)
	}
}

func TestCCETableWithinCoreset(t *testing.T) {
	cs := model.CoresetConfig{ID: 1, FreqGroups: 8, Duration: 2}
	ss := model.SearchSpaceConfig{ID: 2, CoresetID: 1, Type: model.SearchSpaceUESpecific, NofCandidates: [5]int{6, 6, 4, 2, 1}}
	table := NewCCETable(cs, ss, 0x4601, 10)
	for slot := range table {
		for agg := 0; agg < model.NofAggregationLevels; agg++ {
			l := uint32(1) << agg
			for _, p := range table[slot][agg] {
				if p%l != 0 || p+l > uint32(cs.NofCCEs()) {
					t.Fatalf("slot %d agg %d: position %d invalid", slot, agg, p)
				}
			}
		}
	}
	again := NewCCETable(cs, ss, 0x4601, 10)
	for slot := range table {
		for agg := range table[slot] {
			if len(table[slot][agg]) != len(again[slot][agg]) {
				t.Fatalf("CCE table is not deterministic")
			}
		}
	}
}
