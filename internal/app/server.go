// Package app assembles the wirelink daemon: a managed connection, its
// telemetry, and a local HTTP surface for health and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"wirelink/internal/config"
	"wirelink/internal/telemetry"
	"wirelink/pkg/conn"
)

// Version is the daemon version, overridable via build flags.
var Version = "dev"

// Server represents the wirelink daemon
type Server struct {
	config    *config.Config
	logger    *slog.Logger
	manager   *conn.Manager
	telemetry *telemetry.Telemetry
	http      *http.Server
}

// NewServer creates a new wirelink daemon
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	return NewBuilder(cfg, logger).Build()
}

// Manager returns the managed connection.
func (s *Server) Manager() *conn.Manager {
	return s.manager
}

// Start brings up the local HTTP surface and initiates the managed
// connection. A failed first handshake is not fatal: the manager keeps
// recovering in the background, so Start only returns an error when the
// HTTP listener cannot bind.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.http.Addr, err)
	}

	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.http.Addr)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", "error", err)
		}
	}()

	s.logConnectionEvents()

	if err := s.manager.Connect(ctx); err != nil {
		s.logger.Warn("initial connection failed, recovery continues in background",
			"endpoint", s.config.Wirelink.Client.Endpoint, "error", err)
	}

	s.logger.Info("Wirelink started", "endpoint", s.config.Wirelink.Client.Endpoint)
	return nil
}

// logConnectionEvents mirrors connection lifecycle signals into the log.
func (s *Server) logConnectionEvents() {
	s.manager.On(conn.SignalReconnectFailed, func(ev conn.Event) {
		s.logger.Error("connection gave up reconnecting", "attempts", ev.Attempt)
	})
	s.manager.On(conn.SignalStateChange, func(ev conn.Event) {
		s.logger.Debug("connection state", "from", ev.Previous, "to", ev.State)
	})
}

// Stop tears the daemon down: the managed connection closes cleanly
// first, then the HTTP surface and telemetry.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error

	if err := s.manager.Disconnect(conn.StatusNormalClosure, "shutting down"); err != nil {
		errs = append(errs, fmt.Errorf("disconnecting: %w", err))
	}

	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping HTTP server: %w", err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.telemetry.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stopping telemetry: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Info("Wirelink stopped")
	return nil
}
