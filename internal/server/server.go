package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mistakeknot/tapcall/internal/logging"
)

type Config struct {
	Addr    string
	Handler http.Handler
	// ReadTimeout bounds reading request headers and bodies. There is no
	// write timeout: websocket subscribers hold their response open.
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	Logger      *zap.Logger
}

type Server struct {
	cfg    Config
	http   *http.Server
	logger *zap.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr required")
	}
	h := cfg.Handler
	if h == nil {
		h = http.NewServeMux()
	}
	logger := logging.OrNop(cfg.Logger)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}
	return &Server{cfg: cfg, http: srv, logger: logger}, nil
}

// Start listens on the configured address and blocks until Shutdown.
// It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("tapcall is ready", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	return s.http.Shutdown(ctx)
}
