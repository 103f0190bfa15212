package server

import (
	"log/slog"
	"net"

	grpclog "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// RelayService is the service name reported by the health endpoint
// next to the overall ("") status.
const RelayService = "chat.relay"

// HealthServer exposes grpc.health.v1.Health so orchestrators can check
// the relay. It reports NOT_SERVING until SetServing is called.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpclog.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(RelayService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{log: log, server: s, health: h}
}

// Serve blocks until Stop is called or the listener fails.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.log.Info("Health server listening", "address", lis.Addr().String())
	return s.server.Serve(lis)
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RelayService, status)
}

// Stop flips every status to NOT_SERVING, then drains in-flight health checks.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
