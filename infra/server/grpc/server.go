package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/webitel/im-support-service/infra/server/grpc/interceptors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service key reported next to the overall status.
const ServiceName = "im_support.v1"

// Server is the admin gRPC surface: health and reflection.
type Server struct {
	addr   string
	srv    *grpc.Server
	health *health.Server
	logger *slog.Logger
	lis    net.Listener
}

func New(addr string, logger *slog.Logger) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.Unary(logger)...),
		grpc.ChainStreamInterceptor(interceptors.Stream(logger)...),
	)

	hs := health.NewServer()
	// [NOT_SERVING_UNTIL_START]
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &Server{addr: addr, srv: srv, health: hs, logger: logger}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	s.lis = lis

	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("[GRPC] serve failed", "err", err)
		}
	}()

	s.SetServing(true)
	s.logger.Info("[GRPC] listening", slog.String("addr", lis.Addr().String()))
	return nil
}

// SetServing flips the reported health of every service key.
func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop reports NOT_SERVING, then drains in-flight calls until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.srv.Stop()
		return ctx.Err()
	}
}

// Addr is the bound address once started.
func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}
