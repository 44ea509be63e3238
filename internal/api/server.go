// Package api provides the HTTP REST API and WebSocket server for authd.
//
// It exposes the session lifecycle (register, login, refresh, logout),
// password and email flows, session management, and admin endpoints for
// account and audit trail access.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/finchsec/authd/internal/audit"
	"github.com/finchsec/authd/internal/auth"
	"github.com/finchsec/authd/internal/infrastructure/config"
	"github.com/finchsec/authd/internal/infrastructure/influxdb"
	"github.com/finchsec/authd/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Auth     *auth.Service
	Audit    audit.Repository
	Metrics  *influxdb.Client // optional: nil disables HTTP metrics
	Hub      *Hub             // if set, the server uses this hub instead of creating its own
	Version  string
}

// Server is the HTTP API server for authd.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket hub
// for the admin security event stream. The server is created with New()
// and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	auth    *auth.Service
	audit   audit.Repository
	metrics *influxdb.Client
	version string
	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	limiter *rateLimiter
	cancel  context.CancelFunc // cancels background goroutines on Close()
	started time.Time
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	// Audit is optional — admin audit queries return 404 without it.

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		auth:    deps.Auth,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		version: deps.Version,
		tickets: newTicketStore(),
	}

	if deps.Security.RateLimit.Enabled {
		s.limiter = newRateLimiter(deps.Security.RateLimit.RequestsPerMinute)
	}

	// Use an externally-provided hub if available (needed when the auth
	// service's event fan-out is wired before the server starts).
	if deps.Hub != nil {
		s.hub = deps.Hub
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and the ticket cleanup loop, then launches
// the HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Periodic ticket cleanup to prevent memory leaks
	go s.tickets.cleanLoop(srvCtx)

	s.started = time.Now()

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
