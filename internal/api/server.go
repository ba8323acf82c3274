// Package api provides the read-only diagnostics HTTP server.
//
// It exposes link state, core-loop statistics, watchdog status, and
// the comm-event audit trail, plus a WebSocket feed of live events.
// The API observes the node; it never mutates link or delivery state,
// so a misbehaving client cannot affect the at-least-once guarantee.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oakfield-systems/edgelink-core/internal/audit"
	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/config"
	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/database"
	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/logging"
	"github.com/oakfield-systems/edgelink-core/internal/link"
	"github.com/oakfield-systems/edgelink-core/internal/proactor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CoreReader reads snapshots from the running core loop. Satisfied by
// *proactor.Proactor; each call is marshalled onto the loop, so
// handlers never race with it.
type CoreReader interface {
	LinkSnapshots() ([]link.Snapshot, error)
	StatsSnapshot() (proactor.StatsSnapshot, error)
	WatchdogActors() ([]proactor.ActorStatus, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	NodeName string
	Version  string

	Core  CoreReader
	Audit audit.Repository
	DB    *database.DB // optional: adds a database probe to /health

	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	nodeName string
	version  string

	core  CoreReader
	audit audit.Repository
	db    *database.DB

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
	startedAt   time.Time
}

// New creates an API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Core == nil {
		return nil, fmt.Errorf("core reader is required")
	}
	// Audit and DB are optional: without them /events returns 404 and
	// /health skips the database probe.

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		nodeName: deps.NodeName,
		version:  deps.Version,
		core:     deps.Core,
		audit:    deps.Audit,
		db:       deps.DB,
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, creating it on first use.
// The caller feeds it live events via Hub.BroadcastEvent.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections in a background
// goroutine. The server stops with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	if s.cfg.Token == "" {
		s.logger.Warn("api token not configured, diagnostics endpoints are unauthenticated")
	}

	s.startedAt = time.Now().UTC()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()

	s.logger.Info("api server listening", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts the server down, waiting for in-flight
// requests up to gracefulShutdownTimeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("api server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}
