package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each component probe of GET /health.
const healthCheckTimeout = 2 * time.Second

// defaultWSPath is used when websocket.path is empty.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.rateLimitMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Public routes
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/auth/me", s.handleMe)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Get("/{userId}", s.handleGetUser)
			r.Patch("/{userId}", s.handleUpdateUser)
			r.Delete("/{userId}", s.handleDeactivateUser)
		})

		r.Route("/equipments", func(r chi.Router) {
			r.Get("/", s.handleListEquipment)
			r.Post("/", s.handleCreateEquipment)

			r.Route("/{equipmentId}", func(r chi.Router) {
				r.Get("/", s.handleGetEquipment)
				r.Patch("/", s.handleUpdateEquipment)
				r.Delete("/", s.handleDeleteEquipment)
				r.Get("/status", s.handleGetEquipmentStatus)
			})
		})

		r.Get("/equipment-status", s.handleListEquipmentStatuses)
		r.Get("/equipment-status-logs", s.handleListStatusLogs)
		r.Get("/equipment-status-logs/{equipmentId}", s.handleListStatusLogs)

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", s.handleListReservations)
			r.Post("/", s.handleCreateReservation)
			r.Get("/status-reservation", s.handleListReservationStatuses)

			r.Route("/{reservationId}", func(r chi.Router) {
				r.Get("/", s.handleGetReservation)
				r.Patch("/", s.handleUpdateReservation)
				r.Delete("/", s.handleCancelReservation)
			})
		})

		r.Route("/commands", func(r chi.Router) {
			r.Get("/", s.handleListCommands)
			r.Post("/", s.handleSubmitCommand)
			r.Get("/available-types", s.handleListCommandTypes)
			r.Get("/{commandId}", s.handleGetCommand)
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	return s.wsCfg.Path
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
	WSClients  int               `json:"wsClients"`
}

// handleHealth reports liveness and the state of each dependency. It always
// answers 200 while the process serves HTTP; a failing dependency turns the
// status to "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   s.version,
		WSClients: s.hub.ClientCount(),
	}

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		resp.Components = make(map[string]string, len(names))
	}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()

		if err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, resp)
}
