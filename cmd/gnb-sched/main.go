// Command gnb-sched runs the MAC scheduler against a slot clock and serves
// Prometheus metrics and the gRPC debug service.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/config"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/debugsvc"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/journal"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/observability"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
	"github.com/signalsfoundry/nr-mac-scheduler/timectrl"
)

// runOptions are the command-line settings that are not part of the config
// file.
type runOptions struct {
	JournalPath string
	Mode        timectrl.Mode
	NofSlots    int
}

func main() {
	configPath := flag.String("config", "", "Path to a JSON scheduler configuration; defaults are used when empty")
	grpcAddr := flag.String("grpc-addr", "", "Override the debug gRPC listen address")
	metricsAddr := flag.String("metrics-addr", "", "Override the HTTP address for Prometheus /metrics")
	journalPath := flag.String("journal", "", "Record every slot decision to this sqlite file")
	accelerated := flag.Bool("accelerated", false, "Run slots back to back instead of at air-interface pace")
	nofSlots := flag.Int("slots", 0, "Stop after this many slots (0 runs until interrupted)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logging.New(logging.Config{}).Error(context.Background(), "failed to load configuration", logging.Err(err))
			os.Exit(1)
		}
	}
	if *grpcAddr != "" {
		cfg.Listen.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Listen.MetricsAddr = *metricsAddr
	}

	log := logging.NewFromEnv(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(cfg.Tracing), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.Listen.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Listen.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	opts := runOptions{JournalPath: *journalPath, Mode: timectrl.RealTime, NofSlots: *nofSlots}
	if *accelerated {
		opts.Mode = timectrl.Accelerated
	}
	if err := run(ctx, cfg, opts, log, lis); err != nil {
		log.Error(ctx, "scheduler exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the scheduler until ctx is cancelled or opts.NofSlots slots have
// been scheduled. It owns lis.
func run(ctx context.Context, cfg config.Config, opts runOptions, log logging.Logger, lis net.Listener) error {
	reg := prometheus.NewRegistry()
	schedMetrics, err := observability.NewSchedCollector(reg)
	if err != nil {
		return err
	}
	rpcMetrics, err := observability.NewRPCCollector(reg)
	if err != nil {
		return err
	}

	s, err := sched.New(cfg.Sched, cfg.Cells, sched.WithLogger(log), sched.WithRecorder(schedMetrics))
	if err != nil {
		return err
	}
	defer s.Stop()

	loop := newSlotLoop(ctx, s, log)
	svcOpts := []debugsvc.ServiceOption{debugsvc.WithServiceLogger(log)}
	if opts.JournalPath != "" {
		j, err := journal.Open(ctx, opts.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		loop.journal = j
		svcOpts = append(svcOpts, debugsvc.WithJournal(j))
		log.Info(ctx, "recording slot journal", logging.String("path", opts.JournalPath))
	}

	start := slotpoint.New(cfg.Cells[0].Numerology, cfg.Clock.StartSlot)
	clock := timectrl.NewSlotController(start, time.Duration(cfg.Clock.TickInterval), opts.Mode)
	clock.AddListener(loop.runSlot)

	server := debugsvc.NewServer(log, rpcMetrics, debugsvc.NewService(s, clock, svcOpts...))
	metricsSrv := serveMetrics(cfg.Listen.MetricsAddr, schedMetrics, log)

	log.Info(ctx, "starting scheduler debug gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "starting slot clock",
		logging.String("start", start.String()),
		logging.Int("cells", s.NofCells()),
		logging.String("tick", clock.Tick.String()),
	)
	runErr := clock.Run(ctx, opts.NofSlots)

	log.Info(context.Background(), "shutting down scheduler", logging.Uint("slots", uint(loop.slots.Load())))
	s.Stop()
	server.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func serveMetrics(addr string, collector *observability.SchedCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
