package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
	if len(cfg.Cells) != 1 || cfg.Cells[0].NofPRB != 52 {
		t.Fatalf("unexpected default cells %+v", cfg.Cells)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched.json")
	data := []byte(`{
		"sched": {"fixed_dl_mcs": 20, "fixed_ul_mcs": 8, "max_harq_retx": 3, "pdcch_aggr_idx": 1},
		"listen": {"grpc_addr": "127.0.0.1:7000"},
		"clock": {"tick_interval": "500us", "start_slot": 10}
	}`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sched.FixedDLMCS != 20 || cfg.Sched.PDCCHAggrIdx != 1 {
		t.Fatalf("sched args not decoded: %+v", cfg.Sched)
	}
	if cfg.Listen.GRPCAddr != "127.0.0.1:7000" {
		t.Fatalf("grpc_addr = %q", cfg.Listen.GRPCAddr)
	}
	if cfg.Listen.MetricsAddr != Default().Listen.MetricsAddr {
		t.Fatalf("metrics_addr lost its default: %q", cfg.Listen.MetricsAddr)
	}
	if time.Duration(cfg.Clock.TickInterval) != 500*time.Microsecond || cfg.Clock.StartSlot != 10 {
		t.Fatalf("unexpected clock %+v", cfg.Clock)
	}
	if len(cfg.Cells) != 1 {
		t.Fatalf("cells lost their default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no cells", func(c *Config) { c.Cells = nil }},
		{"aggregation index", func(c *Config) { c.Sched.PDCCHAggrIdx = 5 }},
		{"mcs", func(c *Config) { c.Sched.FixedDLMCS = 29 }},
		{"bwp outside carrier", func(c *Config) { c.Cells[0].BWPs[0].NofPRB = 60 }},
		{"unknown coreset", func(c *Config) { c.Cells[0].BWPs[0].SearchSpaces[2].CoresetID = 7 }},
		{"ra search space", func(c *Config) { c.Cells[0].BWPs[0].RASearchSpaceID = 2 }},
		{"rar window", func(c *Config) { c.Cells[0].BWPs[0].RARWindowSize = 0 }},
		{"sib period", func(c *Config) { c.Cells[0].SIBs[0].PeriodFrames = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate = %v, want %v", err, ErrInvalidConfig)
			}
		})
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	cfg := Default()
	if err := Parse([]byte(`{"sched": `), &cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Parse = %v, want %v", err, ErrInvalidConfig)
	}
	if err := Parse([]byte(`{"clock": {"tick_interval": "soon"}}`), &cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Parse with a bad duration = %v, want %v", err, ErrInvalidConfig)
	}
}
