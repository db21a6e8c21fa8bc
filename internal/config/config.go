// Package config loads the scheduler process configuration from a JSON file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/observability"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/params"
	"github.com/signalsfoundry/nr-mac-scheduler/model"
)

// ErrInvalidConfig indicates a configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration that decodes from a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := sonnet.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return sonnet.Marshal(time.Duration(d).String())
}

// Listen holds the network endpoints of the scheduler process.
type Listen struct {
	GRPCAddr    string `json:"grpc_addr"`
	MetricsAddr string `json:"metrics_addr"`
}

// Clock drives the slot loop. A zero TickInterval runs slots back to back.
type Clock struct {
	TickInterval Duration `json:"tick_interval"`
	StartSlot    uint32   `json:"start_slot"`
}

// Config is the complete process configuration.
type Config struct {
	Sched   model.SchedArgs             `json:"sched"`
	Cells   []model.CellConfig          `json:"cells"`
	Logging logging.Config              `json:"logging"`
	Tracing observability.TracingConfig `json:"tracing"`
	Listen  Listen                      `json:"listen"`
	Clock   Clock                       `json:"clock"`
}

// Default returns a single 52-PRB FDD cell with real-time slot ticks.
func Default() Config {
	return Config{
		Sched:   model.DefaultSchedArgs(),
		Cells:   []model.CellConfig{model.DefaultCellConfig(52)},
		Logging: logging.Config{Level: "info", Format: "text"},
		Tracing: observability.DefaultTracingConfig(),
		Listen:  Listen{GRPCAddr: ":50061", MetricsAddr: ":9091"},
		Clock:   Clock{TickInterval: Duration(time.Millisecond)},
	}
}

// Load reads path over the defaults and validates the result. Sections
// missing from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data into cfg and validates it.
func Parse(data []byte, cfg *Config) error {
	if err := sonnet.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg.Validate()
}

// Validate checks the cross references between cells, BWPs, coresets and
// search spaces and the ranges of the scheduler arguments.
func (c *Config) Validate() error {
	if len(c.Cells) == 0 {
		return fmt.Errorf("%w: no cells", ErrInvalidConfig)
	}
	if c.Sched.PDCCHAggrIdx < 0 || c.Sched.PDCCHAggrIdx >= model.NofAggregationLevels {
		return fmt.Errorf("%w: pdcch_aggr_idx %d", ErrInvalidConfig, c.Sched.PDCCHAggrIdx)
	}
	for _, mcs := range []int{c.Sched.FixedDLMCS, c.Sched.FixedULMCS, c.Sched.SIMCS, c.Sched.RARMCS, c.Sched.Msg3MCS} {
		if mcs < 0 || mcs > 28 {
			return fmt.Errorf("%w: mcs %d out of range", ErrInvalidConfig, mcs)
		}
	}
	if c.Sched.MaxHARQRetx < 0 {
		return fmt.Errorf("%w: max_harq_retx %d", ErrInvalidConfig, c.Sched.MaxHARQRetx)
	}
	for cc, cell := range c.Cells {
		if err := validateCell(cell); err != nil {
			return fmt.Errorf("%w: cell %d: %v", ErrInvalidConfig, cc, err)
		}
	}
	if c.Clock.TickInterval < 0 {
		return fmt.Errorf("%w: negative tick_interval", ErrInvalidConfig)
	}
	if _, err := params.New(c.Sched, c.Cells); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func validateCell(cell model.CellConfig) error {
	if cell.NofPRB <= 0 {
		return fmt.Errorf("nof_prb %d", cell.NofPRB)
	}
	if len(cell.BWPs) == 0 {
		return errors.New("no bwps")
	}
	if t := cell.TDD; t != nil && (t.PeriodSlots <= 0 || t.DLSlots+t.ULSlots > t.PeriodSlots) {
		return fmt.Errorf("tdd pattern %+v", *t)
	}
	for _, si := range cell.SIBs {
		if si.PeriodFrames <= 0 || si.WindowSlots <= 0 || si.LenBytes <= 0 {
			return fmt.Errorf("sib %d: period, window and length must be positive", si.Index)
		}
	}
	for _, b := range cell.BWPs {
		if b.StartRB < 0 || b.NofPRB <= 0 || b.StartRB+b.NofPRB > cell.NofPRB {
			return fmt.Errorf("bwp %d: [%d, %d) outside the carrier", b.ID, b.StartRB, b.StartRB+b.NofPRB)
		}
		for _, cs := range b.Coresets {
			if cs.FreqGroups <= 0 || cs.Duration <= 0 || cs.StartRB+cs.NofPRB() > b.NofPRB {
				return fmt.Errorf("bwp %d coreset %d: invalid size", b.ID, cs.ID)
			}
		}
		for _, ss := range b.SearchSpaces {
			if _, ok := b.Coreset(ss.CoresetID); !ok {
				return fmt.Errorf("bwp %d search space %d: unknown coreset %d", b.ID, ss.ID, ss.CoresetID)
			}
		}
		if ss, ok := b.SearchSpace(b.RASearchSpaceID); !ok || !ss.Type.IsCommon() {
			return fmt.Errorf("bwp %d: ra search space %d must be a common search space", b.ID, b.RASearchSpaceID)
		}
		if b.RARWindowSize <= 0 {
			return fmt.Errorf("bwp %d: rar_window_size %d", b.ID, b.RARWindowSize)
		}
	}
	return nil
}
