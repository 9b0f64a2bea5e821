// Package server runs the gRPC listener that exposes the standard health
// service next to the HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall
// status.
const ServiceName = "exchangecore.Exchange"

// Health owns a gRPC server with health and reflection registered.
// It starts NOT_SERVING; the caller flips it once the exchange is ready.
type Health struct {
	addr   string
	logger *slog.Logger
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
}

// NewHealth creates a health server that will listen on addr.
func NewHealth(addr string, logger *slog.Logger) *Health {
	g := grpc.NewServer()
	h := health.NewServer()
	h.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(g, h)
	reflection.Register(g)

	return &Health{addr: addr, logger: logger, grpc: g, health: h}
}

// Listen binds the listener and returns its address.
func (s *Health) Listen() (net.Addr, error) {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}
	s.lis = lis
	return lis.Addr(), nil
}

// SetServing updates the overall and service status.
func (s *Health) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until ctx is cancelled or the server fails, then stops
// gracefully. Listen is called first if it has not been.
func (s *Health) Serve(ctx context.Context) error {
	if s.lis == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gRPC health server starting", "addr", s.lis.Addr().String())
		errCh <- s.grpc.Serve(s.lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	}

	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.logger.Info("gRPC health server stopped")
	return nil
}
