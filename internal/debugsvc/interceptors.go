package debugsvc

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/observability"
)

const requestIDMetadataKey = "x-request-id"

// requestScope is the scheduler context a debug request refers to. Absent
// or malformed fields are left out; the handlers validate them.
type requestScope struct {
	rnti, cc, slot          int
	hasRNTI, hasCC, hasSlot bool
}

func scopeFromRequest(req interface{}) requestScope {
	var sc requestScope
	st, ok := req.(*structpb.Struct)
	if !ok {
		return sc
	}
	sc.rnti, sc.hasRNTI = scopeField(st, "rnti", 1, math.MaxUint16)
	sc.cc, sc.hasCC = scopeField(st, "cc", 0, math.MaxInt16)
	sc.slot, sc.hasSlot = scopeField(st, "slot", 0, math.MaxUint32)
	return sc
}

func scopeField(st *structpb.Struct, key string, lo, hi float64) (int, bool) {
	n, ok := st.GetFields()[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	f := n.NumberValue
	if f != math.Trunc(f) || f < lo || f > hi {
		return 0, false
	}
	return int(f), true
}

func (sc requestScope) fields() []logging.Field {
	var fs []logging.Field
	if sc.hasRNTI {
		fs = append(fs, logging.RNTI(uint16(sc.rnti)))
	}
	if sc.hasCC {
		fs = append(fs, logging.Int("cc", sc.cc))
	}
	if sc.hasSlot {
		fs = append(fs, logging.Uint("slot", uint(sc.slot)))
	}
	return fs
}

func (sc requestScope) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if sc.hasRNTI {
		attrs = append(attrs, attribute.Int("nr.rnti", sc.rnti))
	}
	if sc.hasCC {
		attrs = append(attrs, attribute.Int("nr.cc", sc.cc))
	}
	if sc.hasSlot {
		attrs = append(attrs, attribute.Int("nr.slot", sc.slot))
	}
	return attrs
}

// RequestScopeUnaryServerInterceptor attaches a per-request logger carrying
// the request_id (from x-request-id metadata when present), the debug method
// and the UE, cell and slot the request names. Failed requests are logged at
// debug level with their gRPC code.
func RequestScopeUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if id := firstHeader(md, requestIDMetadataKey); id != "" {
				ctx = logging.ContextWithRequestID(ctx, id)
			}
		}
		_, method := observability.SplitMethod(info.FullMethod)
		fields := append([]logging.Field{logging.String("rpc", method)}, scopeFromRequest(req).fields()...)

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(fields...))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		resp, err := handler(ctx, req)
		if err != nil {
			reqLog.Debug(ctx, "debug rpc failed", logging.String("code", status.Code(err).String()), logging.Err(err))
		}
		return resp, err
	}
}

func firstHeader(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
