package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/romano/lista/internal/identity"
	"github.com/romano/lista/internal/platform/metrics"
	"github.com/romano/lista/internal/platform/timeouts"
	"github.com/romano/lista/internal/store"
)

// Config defines the inputs for the shopping list service.
//
// Users carries the provisioning string for the fixed user table; when
// empty the default household roster is used.
type Config struct {
	HTTPAddr          string
	Users             string
	HandshakeTimeout  time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the HTTP/WebSocket process.
//
// It owns the in-memory store, the session registry, and the broadcast
// coordinator, so one process is the single source of truth for the
// shared list.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// NewServer builds a configured server with its store seeded from the
// provisioned user table.
func NewServer(config Config, m *metrics.Metrics) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, stderrors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = timeouts.Handshake
	}

	provisioning := strings.TrimSpace(config.Users)
	if provisioning == "" {
		provisioning = identity.DefaultProvisioning
	}
	table, err := identity.Parse(provisioning)
	if err != nil {
		return nil, fmt.Errorf("parse user provisioning: %w", err)
	}

	registry := newRegistry(m)
	coordinator := newCoordinator(registry, m)
	st := store.New(table.Users(), store.WithBroadcaster(coordinator))

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(table, st, registry, m, config.HandshakeTimeout),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
	}, nil
}

// Run creates and serves a server until the context ends.
//
// Operators can treat this as the lifecycle boundary for the service.
func Run(ctx context.Context, config Config, m *metrics.Metrics) error {
	server, err := NewServer(config, m)
	if err != nil {
		return fmt.Errorf("init lista server: %w", err)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve lista: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return stderrors.New("lista server is nil")
	}
	if ctx == nil {
		return stderrors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("lista server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
