package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/config"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/journal"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
)

func baseSimConfig() simConfig {
	return simConfig{
		Slots:    400,
		NofUEs:   3,
		NofCells: 1,
		DLRate:   1000,
		ULRate:   200,
		Seed:     7,
	}
}

// TestSimulationAttachesAndServesUEs runs a short error-free simulation.
func TestSimulationAttachesAndServesUEs(t *testing.T) {
	rep, err := run(context.Background(), config.Default(), baseSimConfig(), logging.Noop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Attached != 3 {
		t.Fatalf("attached = %d, want 3", rep.Attached)
	}
	if rep.RARs == 0 {
		t.Fatalf("expected at least one RAR")
	}
	if rep.DLGrants == 0 || rep.DLBits == 0 {
		t.Fatalf("expected DL traffic, got %+v", rep)
	}
	if rep.ULGrants <= 3 {
		t.Fatalf("expected UL data beyond Msg3, got %d grants", rep.ULGrants)
	}
	if rep.DLNacks != 0 || rep.ULCRCFail != 0 {
		t.Fatalf("errors without a BLER: %+v", rep)
	}

	var out bytes.Buffer
	rep.Print(&out)
	if !strings.Contains(out.String(), "attached=3") {
		t.Fatalf("report missing attach count:\n%s", out.String())
	}
}

func TestSimulationIsDeterministic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := baseSimConfig()
	cfg.Slots = 200
	cfg.DLBLER = 0.2
	cfg.ULBLER = 0.2

	var reps [2]report
	for i, name := range []string{"a.db", "b.db"} {
		c := cfg
		c.JournalPath = filepath.Join(dir, name)
		rep, err := run(ctx, config.Default(), c, logging.Noop())
		if err != nil {
			t.Fatalf("run %s: %v", name, err)
		}
		rep.Elapsed = 0
		reps[i] = rep
	}
	if reps[0] != reps[1] {
		t.Fatalf("reports differ:\n%+v\n%+v", reps[0], reps[1])
	}

	a, err := journal.Open(ctx, filepath.Join(dir, "a.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer a.Close()
	b, err := journal.Open(ctx, filepath.Join(dir, "b.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer b.Close()

	for slot := uint32(1); slot <= uint32(cfg.Slots); slot++ {
		da, err := a.SlotDigest(ctx, slot, 0)
		if err != nil {
			t.Fatalf("slot %d: %v", slot, err)
		}
		db, err := b.SlotDigest(ctx, slot, 0)
		if err != nil {
			t.Fatalf("slot %d: %v", slot, err)
		}
		if da != db {
			t.Fatalf("slot %d digests differ: %s vs %s", slot, da, db)
		}
	}
}

func TestSimulationWithCarrierAggregation(t *testing.T) {
	ctx := context.Background()
	cfg := baseSimConfig()
	cfg.NofCells = 2
	cfg.CA = true
	cfg.JournalPath = filepath.Join(t.TempDir(), "ca.db")

	rep, err := run(ctx, config.Default(), cfg, logging.Noop())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Attached != 3 {
		t.Fatalf("attached = %d, want 3", rep.Attached)
	}

	j, err := journal.Open(ctx, cfg.JournalPath)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer j.Close()
	if n, err := j.NofSlots(ctx); err != nil || n != 2*cfg.Slots {
		t.Fatalf("NofSlots = %d, %v; want %d", n, err, 2*cfg.Slots)
	}
	st, err := j.UEStats(ctx, firstRNTI)
	if err != nil {
		t.Fatalf("UEStats: %v", err)
	}
	if st.DLGrants == 0 || st.ULGrants == 0 {
		t.Fatalf("first UE not served: %+v", st)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	base := config.Default()
	base.Cells[0].BWPs[0].RARWindowSize = 0
	if _, err := run(context.Background(), base, baseSimConfig(), logging.Noop()); err == nil {
		t.Fatalf("expected a validation error")
	}
}
