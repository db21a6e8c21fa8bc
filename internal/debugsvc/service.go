// Package debugsvc exposes the running scheduler over a small gRPC debug
// service. Messages are well-known protobuf types so clients need no
// generated code.
package debugsvc

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/journal"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/sched/ue"
	"github.com/signalsfoundry/nr-mac-scheduler/slotpoint"
	"github.com/signalsfoundry/nr-mac-scheduler/timectrl"
)

// Scheduler is the part of the scheduler the debug service reads and drives.
type Scheduler interface {
	NofCells() int
	Metrics(ctx context.Context) ([]ue.Metrics, error)
	DLBufferState(rnti uint16, lcid uint32, newTx, retx int)
}

// Journal looks up recorded slot digests.
type Journal interface {
	SlotDigest(ctx context.Context, slot uint32, cc int) (journal.Digest, error)
}

// Service implements SchedDebugServer.
type Service struct {
	sched   Scheduler
	clock   timectrl.SlotClock
	journal Journal
	log     logging.Logger

	started   time.Time
	startSlot slotpoint.SlotPoint
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithJournal enables GetSlotDigest.
func WithJournal(j Journal) ServiceOption {
	return func(s *Service) { s.journal = j }
}

// WithServiceLogger sets the fallback logger used outside request scope.
func WithServiceLogger(l logging.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService binds the debug service to a scheduler and its slot clock. The
// current clock slot is taken as the reference for GetSlotTime.
func NewService(s Scheduler, clock timectrl.SlotClock, opts ...ServiceOption) *Service {
	svc := &Service{
		sched:     s,
		clock:     clock,
		log:       logging.Noop(),
		started:   time.Now(),
		startSlot: clock.Now(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// GetStatus reports the cell count, the current slot and the uptime.
func (s *Service) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(map[string]any{
		"cells":    s.sched.NofCells(),
		"slot":     s.clock.Now().String(),
		"uptime_s": time.Since(s.started).Seconds(),
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return st, nil
}

// GetUEMetrics collects the per-carrier UE counters at the next slot
// boundary and returns them ordered by RNTI and cell.
func (s *Service) GetUEMetrics(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	metrics, err := s.sched.Metrics(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	slices.SortFunc(metrics, func(a, b ue.Metrics) int {
		if c := cmp.Compare(a.RNTI, b.RNTI); c != 0 {
			return c
		}
		return cmp.Compare(a.CC, b.CC)
	})

	ues := make([]any, 0, len(metrics))
	for _, m := range metrics {
		ues = append(ues, map[string]any{
			"rnti":      int(m.RNTI),
			"cc":        m.CC,
			"dl_bytes":  m.DLBytes,
			"dl_pkts":   m.DLPkts,
			"dl_errors": m.DLErrors,
			"ul_bytes":  m.ULBytes,
			"ul_pkts":   m.ULPkts,
			"ul_errors": m.ULErrors,
			"dl_cqi":    m.DLCQI,
			"ul_snr":    m.ULSNR,
		})
	}
	st, err := structpb.NewStruct(map[string]any{"ues": ues})
	if err != nil {
		return nil, ToStatusError(err)
	}
	logging.FromContextOr(ctx, s.log).Debug(ctx, "ue metrics collected", logging.Int("carriers", len(metrics)))
	return st, nil
}

// SetDLBufferState injects a downlink RLC buffer report. The request carries
// the numeric fields rnti, lcid, new_tx and optionally retx.
func (s *Service) SetDLBufferState(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	rnti, err := intField(req, "rnti", 1, math.MaxUint16, false)
	if err != nil {
		return nil, ToStatusError(err)
	}
	lcid, err := intField(req, "lcid", 0, 32, false)
	if err != nil {
		return nil, ToStatusError(err)
	}
	newTx, err := intField(req, "new_tx", 0, math.MaxInt32, false)
	if err != nil {
		return nil, ToStatusError(err)
	}
	retx, err := intField(req, "retx", 0, math.MaxInt32, true)
	if err != nil {
		return nil, ToStatusError(err)
	}
	s.sched.DLBufferState(uint16(rnti), uint32(lcid), newTx, retx)
	logging.FromContextOr(ctx, s.log).Info(ctx, "dl buffer state injected",
		logging.RNTI(uint16(rnti)),
		logging.Int("lcid", lcid),
		logging.Int("new_tx", newTx),
		logging.Int("retx", retx),
	)
	return &emptypb.Empty{}, nil
}

// GetSlotTime estimates the wall-clock start of the current slot from the
// slot count elapsed since the service started.
func (s *Service) GetSlotTime(ctx context.Context, _ *emptypb.Empty) (*timestamppb.Timestamp, error) {
	now := s.clock.Now()
	if !now.Valid() || !s.startSlot.Valid() || now.Numerology() != s.startSlot.Numerology() {
		return nil, status.Error(codes.FailedPrecondition, "slot clock not running")
	}
	elapsed := time.Duration(now.Sub(s.startSlot)) * timectrl.SlotDuration(now.Numerology())
	return timestamppb.New(s.started.Add(elapsed)), nil
}

// GetSlotDigest returns the journal digest of the decisions taken for a slot
// and cell. The request carries the numeric fields slot and cc.
func (s *Service) GetSlotDigest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.journal == nil {
		return nil, status.Error(codes.Unimplemented, "journal disabled")
	}
	slot, err := intField(req, "slot", 0, math.MaxUint32, false)
	if err != nil {
		return nil, ToStatusError(err)
	}
	cc, err := intField(req, "cc", 0, float64(s.sched.NofCells()-1), false)
	if err != nil {
		return nil, ToStatusError(err)
	}
	d, err := s.journal.SlotDigest(ctx, uint32(slot), cc)
	if err != nil {
		return nil, ToStatusError(err)
	}
	st, err := structpb.NewStruct(map[string]any{"slot": slot, "cc": cc, "digest": d.String()})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return st, nil
}

func intField(req *structpb.Struct, key string, lo, hi float64, optional bool) (int, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		if optional {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidRequest, key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidRequest, key)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || f < lo || f > hi {
		return 0, fmt.Errorf("%w: %q = %v outside [%v, %v]", ErrInvalidRequest, key, f, lo, hi)
	}
	return int(f), nil
}
