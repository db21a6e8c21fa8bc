package debugsvc

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/journal"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/observability"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/result"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
)

type dlReport struct {
	rnti        uint16
	lcid        uint32
	newTx, retx int
}

type fakeSched struct {
	mu      sync.Mutex
	metrics []ue.Metrics
	err     error
	reports []dlReport
}

func (f *fakeSched) NofCells() int { return 2 }

func (f *fakeSched) Metrics(context.Context) ([]ue.Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ue.Metrics(nil), f.metrics...), f.err
}

func (f *fakeSched) DLBufferState(rnti uint16, lcid uint32, newTx, retx int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, dlReport{rnti, lcid, newTx, retx})
}

type fakeClock struct {
	mu   sync.Mutex
	slot slotpoint.SlotPoint
}

func (c *fakeClock) Now() slotpoint.SlotPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

func (c *fakeClock) set(s slotpoint.SlotPoint) {
	c.mu.Lock()
	c.slot = s
	c.mu.Unlock()
}

func startServer(t *testing.T, svc SchedDebugServer, rpc *observability.RPCCollector) *grpc.ClientConn {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	srv := NewServer(logging.Noop(), rpc, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Shutdown)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGetStatus(t *testing.T) {
	clock := &fakeClock{slot: slotpoint.New(0, 42)}
	client := NewClient(startServer(t, NewService(&fakeSched{}, clock), nil))

	st, err := client.GetStatus(testContext(t))
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	fields := st.GetFields()
	if got := fields["cells"].GetNumberValue(); got != 2 {
		t.Fatalf("cells = %v, want 2", got)
	}
	if got := fields["slot"].GetStringValue(); got != clock.Now().String() {
		t.Fatalf("slot = %q, want %q", got, clock.Now().String())
	}
}

func TestGetUEMetricsOrdersByRNTIAndCell(t *testing.T) {
	fs := &fakeSched{metrics: []ue.Metrics{
		{RNTI: 0x4602, CC: 0, DLBytes: 10},
		{RNTI: 0x4601, CC: 1, DLCQI: 9},
		{RNTI: 0x4601, CC: 0, ULSNR: 12.5},
	}}
	client := NewClient(startServer(t, NewService(fs, &fakeClock{slot: slotpoint.New(0, 0)}), nil))

	st, err := client.GetUEMetrics(testContext(t))
	if err != nil {
		t.Fatalf("GetUEMetrics: %v", err)
	}
	ues := st.GetFields()["ues"].GetListValue().GetValues()
	if len(ues) != 3 {
		t.Fatalf("got %d entries, want 3", len(ues))
	}
	want := []struct{ rnti, cc float64 }{{0x4601, 0}, {0x4601, 1}, {0x4602, 0}}
	for i, w := range want {
		f := ues[i].GetStructValue().GetFields()
		if f["rnti"].GetNumberValue() != w.rnti || f["cc"].GetNumberValue() != w.cc {
			t.Fatalf("entry %d = %v, want rnti 0x%x cc %v", i, f, int(w.rnti), w.cc)
		}
	}
	if got := ues[0].GetStructValue().GetFields()["ul_snr"].GetNumberValue(); got != 12.5 {
		t.Fatalf("ul_snr = %v, want 12.5", got)
	}
}

func TestGetUEMetricsAfterStop(t *testing.T) {
	fs := &fakeSched{err: sched.ErrStopped}
	client := NewClient(startServer(t, NewService(fs, &fakeClock{slot: slotpoint.New(0, 0)}), nil))

	_, err := client.GetUEMetrics(testContext(t))
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("GetUEMetrics = %v, want Unavailable", err)
	}
}

func TestSetDLBufferState(t *testing.T) {
	fs := &fakeSched{}
	conn := startServer(t, NewService(fs, &fakeClock{slot: slotpoint.New(0, 0)}), nil)
	client := NewClient(conn)
	ctx := testContext(t)

	if err := client.SetDLBufferState(ctx, 0x4601, 4, 1500, 0); err != nil {
		t.Fatalf("SetDLBufferState: %v", err)
	}
	if err := client.SetDLBufferState(ctx, 0, 4, 1500, 0); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("SetDLBufferState(rnti 0) = %v, want InvalidArgument", err)
	}

	bad := []map[string]any{
		{"rnti": 17},
		{"rnti": 17, "lcid": 4, "new_tx": 1.5},
		{"rnti": 17, "lcid": "four", "new_tx": 1},
		{"rnti": 17, "lcid": 40, "new_tx": 1},
	}
	for _, fields := range bad {
		in, err := structpb.NewStruct(fields)
		if err != nil {
			t.Fatalf("NewStruct: %v", err)
		}
		err = conn.Invoke(ctx, fullMethod("SetDLBufferState"), in, new(structpb.Struct))
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("SetDLBufferState(%v) = %v, want InvalidArgument", fields, err)
		}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.reports) != 1 || fs.reports[0] != (dlReport{0x4601, 4, 1500, 0}) {
		t.Fatalf("reports = %+v, want one valid report", fs.reports)
	}
}

func TestGetSlotTimeFollowsClock(t *testing.T) {
	clock := &fakeClock{slot: slotpoint.New(1, 100)}
	svc := NewService(&fakeSched{}, clock)
	client := NewClient(startServer(t, svc, nil))

	clock.set(slotpoint.New(1, 120))
	ts, err := client.GetSlotTime(testContext(t))
	if err != nil {
		t.Fatalf("GetSlotTime: %v", err)
	}
	// 20 slots of 500us at numerology 1.
	if got := ts.AsTime().Sub(svc.started); got != 10*time.Millisecond {
		t.Fatalf("slot time offset = %v, want 10ms", got)
	}
}

func TestGetSlotDigest(t *testing.T) {
	ctx := testContext(t)
	j, err := journal.Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	want, err := j.Record(ctx, &result.DLResult{Slot: slotpoint.New(0, 7), CC: 1}, nil)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	clock := &fakeClock{slot: slotpoint.New(0, 7)}
	client := NewClient(startServer(t, NewService(&fakeSched{}, clock, WithJournal(j)), nil))

	got, err := client.GetSlotDigest(ctx, 7, 1)
	if err != nil {
		t.Fatalf("GetSlotDigest: %v", err)
	}
	if got != want.String() {
		t.Fatalf("digest = %s, want %s", got, want)
	}
	if _, err := client.GetSlotDigest(ctx, 8, 1); status.Code(err) != codes.NotFound {
		t.Fatalf("GetSlotDigest(missing) = %v, want NotFound", err)
	}
	if _, err := client.GetSlotDigest(ctx, 7, 2); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("GetSlotDigest(cc 2) = %v, want InvalidArgument", err)
	}
}

func TestGetSlotDigestWithoutJournal(t *testing.T) {
	client := NewClient(startServer(t, NewService(&fakeSched{}, &fakeClock{slot: slotpoint.New(0, 0)}), nil))
	if _, err := client.GetSlotDigest(testContext(t), 0, 0); status.Code(err) != codes.Unimplemented {
		t.Fatalf("GetSlotDigest = %v, want Unimplemented", err)
	}
}

func TestHealthServing(t *testing.T) {
	conn := startServer(t, NewService(&fakeSched{}, &fakeClock{slot: slotpoint.New(0, 0)}), nil)
	resp, err := healthpb.NewHealthClient(conn).Check(testContext(t), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v, want SERVING", resp.GetStatus())
	}
}

func TestRPCMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	rpc, err := observability.NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}
	client := NewClient(startServer(t, NewService(&fakeSched{}, &fakeClock{slot: slotpoint.New(0, 0)}), rpc))

	if _, err := client.GetStatus(testContext(t)); err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got := testutil.ToFloat64(rpc.RPCRequests.WithLabelValues("SchedDebug", "GetStatus", "OK")); got != 1 {
		t.Fatalf("rpc requests = %v, want 1", got)
	}
}

func TestRequestIDFromMetadata(t *testing.T) {
	interceptor := RequestScopeUnaryServerInterceptor(logging.Noop())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "req-7"))
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("GetStatus")}

	var got string
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		got = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if got != "req-7" {
		t.Fatalf("request id = %q, want req-7", got)
	}
}

func TestRequestScopeTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	interceptor := RequestScopeUnaryServerInterceptor(logging.New(logging.Config{Level: "debug", Format: "json", Output: &buf}))
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "req-9"))
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("GetSlotDigest")}
	req, err := structpb.NewStruct(map[string]any{"rnti": 0x4601, "cc": 1, "slot": 40})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}

	_, err = interceptor(ctx, req, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		logging.LoggerFromContext(ctx).Info(ctx, "handling")
		return nil, status.Error(codes.NotFound, "no entry")
	})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("interceptor error = %v, want NotFound", err)
	}
	out := buf.String()
	for _, want := range []string{`"rpc":"GetSlotDigest"`, `"rnti":"0x4601"`, `"cc":1`, `"slot":40`, `"request_id":"req-9"`, `"code":"NotFound"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestScopeFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   requestScope
	}{
		{"full", map[string]any{"rnti": 17921, "cc": 0, "slot": 7}, requestScope{rnti: 17921, slot: 7, hasRNTI: true, hasCC: true, hasSlot: true}},
		{"rnti zero", map[string]any{"rnti": 0}, requestScope{}},
		{"fractional cell", map[string]any{"cc": 1.5}, requestScope{}},
		{"string slot", map[string]any{"slot": "7"}, requestScope{}},
		{"no scope", map[string]any{"lcid": 4}, requestScope{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := structpb.NewStruct(tc.fields)
			if err != nil {
				t.Fatalf("NewStruct: %v", err)
			}
			if got := scopeFromRequest(req); got != tc.want {
				t.Fatalf("scopeFromRequest = %+v, want %+v", got, tc.want)
			}
		})
	}
	if got := scopeFromRequest(nil); got != (requestScope{}) {
		t.Fatalf("scopeFromRequest(nil) = %+v", got)
	}
}
