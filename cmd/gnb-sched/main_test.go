package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/config"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/debugsvc"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/journal"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/timectrl"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Listen.MetricsAddr = ""
	cfg.Logging = logging.Config{Level: "warn", Format: "text"}
	return cfg
}

func TestSchedServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := testConfig()
	log := logging.New(cfg.Logging)

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, runOptions{Mode: timectrl.Accelerated}, log, lis)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	client := debugsvc.NewClient(conn)
	st, err := client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got := st.GetFields()["cells"].GetNumberValue(); got != 1 {
		t.Fatalf("cells = %v, want 1", got)
	}

	// Served at the next slot boundary, so this also proves the clock runs.
	metrics, err := client.GetUEMetrics(ctx)
	if err != nil {
		t.Fatalf("GetUEMetrics: %v", err)
	}
	if n := len(metrics.GetFields()["ues"].GetListValue().GetValues()); n != 0 {
		t.Fatalf("got %d ue entries without any ue", n)
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestRunRecordsJournal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := testConfig()
	cfg.Cells = append(cfg.Cells, cfg.Cells[0])
	cfg.Cells[1].PCI = 2
	path := filepath.Join(t.TempDir(), "journal.db")

	opts := runOptions{JournalPath: path, Mode: timectrl.Accelerated, NofSlots: 25}
	if err := run(ctx, cfg, opts, logging.Noop(), lis); err != nil {
		t.Fatalf("run: %v", err)
	}

	j, err := journal.Open(ctx, path)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer j.Close()
	n, err := j.NofSlots(ctx)
	if err != nil {
		t.Fatalf("NofSlots: %v", err)
	}
	if n != 50 {
		t.Fatalf("journal holds %d slot entries, want 50", n)
	}
}
