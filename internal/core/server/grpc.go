// Package server provides gRPC server lifecycle management.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/solatis/mdcollate/internal/core/api"
	"github.com/solatis/mdcollate/internal/core/config"
)

// shutdownTimeout bounds GracefulStop before a forced stop.
const shutdownTimeout = 30 * time.Second

// GRPCServer manages gRPC server lifecycle.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	config   *config.Config
}

// NewGRPCServer creates the gRPC server with request interceptors, the
// aggregation service and the health service.
func NewGRPCServer(cfg *config.Config, service api.AggregationServer, logger *slog.Logger) (*GRPCServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			TimeoutInterceptor(cfg.Server.RequestTimeout),
			LoggingInterceptor(logger),
		),
	}

	server := grpc.NewServer(opts...)
	api.RegisterAggregationServer(server, service)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(api.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
	}, nil
}

// Start binds the configured address and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Addr(), err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener until Shutdown.
func (s *GRPCServer) Serve(listener net.Listener) error {
	s.listener = listener
	return s.server.Serve(listener)
}

// Shutdown marks the server not serving and stops gracefully, forcing a stop
// when ctx ends or the shutdown timeout passes.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-timer.C:
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}

// TimeoutInterceptor bounds each unary call. Zero or negative disables it.
func TimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if timeout <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs each unary call with its status code and duration.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds())
		return resp, err
	}
}
