package api

import (
	"context"
	"fmt"
	"net"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/faultmesh/faultline/internal/config"
)

// ProbeServer is the gRPC endpoint used by orchestration platforms for
// liveness and readiness checks. It carries the standard health service
// plus reflection so probe tooling can discover it.
type ProbeServer struct {
	grpcServer *grpc.Server
	healthSrv  *health.Server
	listener   net.Listener
}

// NewProbeServer binds a gRPC health server to the configured address.
func NewProbeServer(cfg config.ServerConfig, opts ...grpc.ServerOption) (*ProbeServer, error) {
	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	grpc_prometheus.Register(grpcServer)

	// Enable server reflection in development environments.
	reflection.Register(grpcServer)

	return &ProbeServer{
		grpcServer: grpcServer,
		healthSrv:  healthSrv,
		listener:   lis,
	}, nil
}

// Start serves incoming gRPC requests until Shutdown is invoked.
func (s *ProbeServer) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// SetNotServing flips the health status, typically during shutdown so
// platforms stop routing probes here before the listener closes.
func (s *ProbeServer) SetNotServing() {
	if s.healthSrv != nil {
		s.healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Shutdown attempts a graceful stop, falling back to a hard stop when the
// context expires first.
func (s *ProbeServer) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address (useful for tests).
func (s *ProbeServer) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
