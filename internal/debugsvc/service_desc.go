package debugsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nrsched.debug.v1.SchedDebug"

// SchedDebugServer is the server API of the debug service.
type SchedDebugServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetUEMetrics(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetDLBufferState(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetSlotTime(context.Context, *emptypb.Empty) (*timestamppb.Timestamp, error)
	GetSlotDigest(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SchedDebugServiceDesc describes the debug service for grpc.Server.RegisterService.
var SchedDebugServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedDebugServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unaryHandler("GetStatus", newEmpty, SchedDebugServer.GetStatus)},
		{MethodName: "GetUEMetrics", Handler: unaryHandler("GetUEMetrics", newEmpty, SchedDebugServer.GetUEMetrics)},
		{MethodName: "SetDLBufferState", Handler: unaryHandler("SetDLBufferState", newStruct, SchedDebugServer.SetDLBufferState)},
		{MethodName: "GetSlotTime", Handler: unaryHandler("GetSlotTime", newEmpty, SchedDebugServer.GetSlotTime)},
		{MethodName: "GetSlotDigest", Handler: unaryHandler("GetSlotDigest", newStruct, SchedDebugServer.GetSlotDigest)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nrsched/debug/v1/debug.proto",
}

// RegisterSchedDebugServer registers srv on s.
func RegisterSchedDebugServer(s grpc.ServiceRegistrar, srv SchedDebugServer) {
	s.RegisterService(&SchedDebugServiceDesc, srv)
}

func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

func fullMethod(method string) string { return "/" + ServiceName + "/" + method }

func unaryHandler[Req, Resp proto.Message](
	method string,
	newReq func() Req,
	call func(SchedDebugServer, context.Context, Req) (Resp, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedDebugServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SchedDebugServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
