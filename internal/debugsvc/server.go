package debugsvc

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/nr-mac-scheduler/internal/logging"
	"github.com/signalsfoundry/nr-mac-scheduler/internal/observability"
)

// Server is a gRPC server carrying the debug and health services.
type Server struct {
	*grpc.Server
	Health *health.Server
}

// NewServer builds a gRPC server with the request-id, tracing and RPC metrics
// interceptors and registers svc and the standard health service on it. A
// nil collector disables RPC metrics.
func NewServer(log logging.Logger, rpc *observability.RPCCollector, svc SchedDebugServer) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestScopeUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			rpc.UnaryServerInterceptor(),
		),
	)
	RegisterSchedDebugServer(srv, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{Server: srv, Health: hs}
}

// Shutdown marks every service as not serving and stops gracefully.
func (s *Server) Shutdown() {
	s.Health.Shutdown()
	s.GracefulStop()
}
