// Package api provides the HTTP REST API and WebSocket server for equipctl.
//
// The server follows the same lifecycle pattern as other infrastructure components:
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

	"github.com/nerrad567/equipctl/internal/auth"
	"github.com/nerrad567/equipctl/internal/command"
	"github.com/nerrad567/equipctl/internal/equipment"
	"github.com/nerrad567/equipctl/internal/infrastructure/config"
	"github.com/nerrad567/equipctl/internal/infrastructure/logging"
	"github.com/nerrad567/equipctl/internal/registry"
	"github.com/nerrad567/equipctl/internal/reservation"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by the database and MQTT clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Registry   *registry.Registry
	Equipment  *equipment.Directory
	Ledger     *reservation.Ledger
	Dispatcher *command.Dispatcher
	Auth       *auth.Service

	// Hub receives domain events. When nil the server creates its own.
	Hub *Hub

	// Health lists the components reported by GET /health, by name.
	Health map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for equipctl.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	registry   *registry.Registry
	equipment  *equipment.Directory
	ledger     *reservation.Ledger
	dispatcher *command.Dispatcher
	auth       *auth.Service
	health     map[string]HealthChecker
	version    string
	server     *http.Server
	hub        *Hub
	limiter    *ipRateLimiter
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("registry is required")
	case deps.Equipment == nil:
		return nil, fmt.Errorf("equipment directory is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("reservation ledger is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("command dispatcher is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("auth service is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		registry:   deps.Registry,
		equipment:  deps.Equipment,
		ledger:     deps.Ledger,
		dispatcher: deps.Dispatcher,
		auth:       deps.Auth,
		health:     deps.Health,
		version:    deps.Version,
		hub:        deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	if rl := deps.Security.RateLimit; rl.Enabled {
		s.limiter = newIPRateLimiter(rl.RequestsPerMinute, rl.Burst)
	}

	return s, nil
}

// Hub returns the WebSocket hub so producers can publish events to it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the hub and the rate limiter sweeper, then launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	if s.limiter != nil {
		go s.limiter.sweepLoop(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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
			s.logger.Info("API server starting", "address", s.server.Addr)
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
