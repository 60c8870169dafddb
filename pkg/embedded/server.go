// Package embedded provides an embeddable TapCall server for in-process use.
package embedded

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mistakeknot/tapcall/internal/app"
	"github.com/mistakeknot/tapcall/internal/config"
	"github.com/mistakeknot/tapcall/internal/server"
)

// Config configures the embedded server
type Config struct {
	// Host is the host to bind to.
	// If empty, defaults to localhost (127.0.0.1).
	Host string

	// Port is the HTTP port to listen on.
	// If 0, a free port is chosen.
	Port int

	// BaseURL prefixes customer links in generated QR codes.
	// If empty, the server's own URL is used.
	BaseURL string

	// SQLite selects the SQLite-backed store; DSN defaults to :memory:.
	SQLite bool
	DSN    string

	// Tenants enables tenancy with the given id -> display name map.
	Tenants map[string]string

	Logger *zap.Logger
}

// Server is an embedded TapCall server
type Server struct {
	app     *app.App
	srv     *server.Server
	ln      net.Listener
	started bool
	mu      sync.Mutex
	done    chan error
}

// New builds the server and binds its listener; nothing is served until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	c := config.Defaults()
	c.Server.BaseURL = cfg.BaseURL
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://" + ln.Addr().String()
	}
	if cfg.SQLite {
		c.Store.Driver = "sqlite"
		c.Store.DSN = cfg.DSN
	}
	if len(cfg.Tenants) > 0 {
		c.Tenancy.Enabled = true
		c.Tenancy.Tenants = cfg.Tenants
	}

	a, err := app.Build(c, cfg.Logger)
	if err != nil {
		ln.Close()
		return nil, err
	}
	srv, err := server.New(server.Config{
		Addr:        ln.Addr().String(),
		Handler:     a.Handler,
		ReadTimeout: c.Server.ReadTimeout,
		IdleTimeout: c.Server.IdleTimeout,
		Logger:      cfg.Logger,
	})
	if err != nil {
		ln.Close()
		a.Close()
		return nil, err
	}
	return &Server{app: a, srv: srv, ln: ln, done: make(chan error, 1)}, nil
}

// Start starts the embedded server in a goroutine
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	go func() { s.done <- s.srv.Serve(s.ln) }()
	return nil
}

// Stop stops the embedded server gracefully
func (s *Server) Stop() error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	if !started {
		s.ln.Close()
		return s.app.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	if err := <-s.done; err != nil {
		return err
	}
	return s.app.Close()
}

// Addr returns the server's listen address
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// URL returns the base URL for the server
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Subscribers reports the number of connected websocket clients.
func (s *Server) Subscribers() int {
	return s.app.Hub.Count()
}
