package grpc

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/config"
	pkglogger "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/logger"
)

// ServiceName is reported by the health service
const ServiceName = "payment"

// Server exposes the gRPC health protocol so orchestrators can check the
// payment service alongside the HTTP API.
type Server struct {
	config   *config.Config
	logger   *zap.Logger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		config: cfg,
		logger: logger,
		health: health.NewServer(),
	}
	s.server = grpc.NewServer(
		grpc.ChainUnaryInterceptor(pkglogger.NewGrpcUnaryServerInterceptor(logger)),
		grpc.ChainStreamInterceptor(pkglogger.NewGrpcStreamServerInterceptor(logger)),
	)
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.GRPC.Host, s.config.Server.GRPC.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve marks the service serving and blocks on lis
func (s *Server) Serve(lis net.Listener) error {
	s.listener = lis
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	s.logger.Info("Starting gRPC server", zap.String("address", lis.Addr().String()))

	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}
