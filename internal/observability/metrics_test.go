package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/nrsched.debug.v1.SchedDebug/GetMetrics"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SchedDebug", "GetMetrics", "OK")); got != 1 {
		t.Fatalf("sched_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "sched_rpc_request_duration_seconds", map[string]string{
		"service": "SchedDebug",
		"method":  "GetMetrics",
	}); count != 1 {
		t.Fatalf("sched_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/nrsched.debug.v1.SchedDebug/GetUE"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SchedDebug", "GetUE", "InvalidArgument")); got != 1 {
		t.Fatalf("sched_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestSchedCollectorExposesSlotMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSchedCollector(reg)
	if err != nil {
		t.Fatalf("NewSchedCollector: %v", err)
	}
	collector.ObserveSlot(0, 200*time.Microsecond)
	collector.IncGrant(0, "pdsch")
	collector.IncGrant(0, "pdsch")
	collector.IncAllocFailure(1, "pdsch", "sch_collision")
	collector.IncRARDropped(0)
	collector.AddHARQDiscards(0, 2, 0)
	collector.SetUEs(3)
	collector.SetPRBUtilization(0, "dl", 1.5)

	if got := testutil.ToFloat64(collector.Grants.WithLabelValues("0", "pdsch")); got != 2 {
		t.Fatalf("sched_grants_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.AllocFailures.WithLabelValues("1", "pdsch", "sch_collision")); got != 1 {
		t.Fatalf("sched_alloc_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.HARQDiscarded.WithLabelValues("0", "dl")); got != 2 {
		t.Fatalf("sched_harq_discarded_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.PRBUtilization.WithLabelValues("0", "dl")); got != 1 {
		t.Fatalf("utilization must clamp to 1, got %v", got)
	}
	if count := histogramSampleCount(t, reg, "sched_slot_duration_seconds", map[string]string{"cc": "0"}); count != 1 {
		t.Fatalf("sched_slot_duration_seconds sample_count = %d, want 1", count)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sched_slot_duration_seconds",
		"sched_grants_total",
		"sched_rar_dropped_total",
		"sched_ues 3",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSchedCollectorNilSafe(t *testing.T) {
	var collector *SchedCollector
	collector.ObserveSlot(0, time.Millisecond)
	collector.IncGrant(0, "pusch")
	collector.AddHARQDiscards(0, 1, 1)
	collector.SetUEs(1)
}

func TestSchedCollectorReusesRegisteredVectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSchedCollector(reg)
	if err != nil {
		t.Fatalf("first NewSchedCollector: %v", err)
	}
	second, err := NewSchedCollector(reg)
	if err != nil {
		t.Fatalf("second NewSchedCollector: %v", err)
	}
	first.IncRARDropped(2)
	if got := testutil.ToFloat64(second.RARDropped.WithLabelValues("2")); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("SCHED_TRACING_ENABLED", "true")
	t.Setenv("SCHED_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("SCHED_TRACING_EXPORTER", "")
	cfg := TracingConfigFromEnv(DefaultTracingConfig())
	if !cfg.Enabled || cfg.SampleRatio != 0.25 || cfg.Exporter != "stdout" || cfg.ServiceName != "gnb-sched" {
		t.Fatalf("unexpected tracing config %+v", cfg)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
