package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server hosts the public router. Streams and sockets hold their request
// open indefinitely, so Stop cancels every request context before the
// graceful shutdown starts waiting.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
	lis    net.Listener

	base   context.Context
	cancel context.CancelFunc
}

func New(addr string, handler http.Handler, readHeaderTimeout time.Duration, logger *slog.Logger) *Server {
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext:       func(net.Listener) context.Context { return base },
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger: logger,
		base:   base,
		cancel: cancel,
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.srv.Addr, err)
	}
	s.lis = lis

	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("[HTTP] serve failed", "err", err)
		}
	}()
	s.logger.Info("[HTTP] listening", slog.String("addr", lis.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		_ = s.srv.Close()
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}
