// Command sched-sim drives the MAC scheduler with synthetic UEs for a fixed
// number of slots and prints the resulting throughput figures. The PHY is
// modelled as random HARQ and CRC outcomes at configurable error rates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/config"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to a JSON scheduler configuration; defaults are used when empty")
	slots := flag.Int("slots", 2000, "Number of slots to simulate")
	nofUEs := flag.Int("ues", 4, "Number of UEs attaching through PRACH")
	nofCells := flag.Int("cells", 1, "Number of cells; extra cells copy the first one")
	ca := flag.Bool("ca", false, "Configure every UE on all cells after attach")
	dlRate := flag.Int("dl-rate", 2000, "DL bytes per slot offered to each UE")
	ulRate := flag.Int("ul-rate", 500, "UL bytes per slot offered by each UE")
	dlBLER := flag.Float64("dl-bler", 0.1, "Probability of a HARQ NACK")
	ulBLER := flag.Float64("ul-bler", 0.1, "Probability of a PUSCH CRC failure")
	seed := flag.Uint64("seed", 1, "Random seed")
	journalPath := flag.String("journal", "", "Record every slot decision to this sqlite file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	log := logging.NewFromEnv(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	simCfg := simConfig{
		Slots:       *slots,
		NofUEs:      *nofUEs,
		NofCells:    *nofCells,
		CA:          *ca,
		DLRate:      *dlRate,
		ULRate:      *ulRate,
		DLBLER:      *dlBLER,
		ULBLER:      *ulBLER,
		Seed:        *seed,
		JournalPath: *journalPath,
	}
	fmt.Printf("Starting simulation: slots=%d ues=%d cells=%d ca=%v\n", simCfg.Slots, simCfg.NofUEs, simCfg.NofCells, simCfg.CA)
	rep, err := run(ctx, cfg, simCfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulation failed: %v\n", err)
		os.Exit(1)
	}
	rep.Print(os.Stdout)
	fmt.Println("Simulation complete.")
}
