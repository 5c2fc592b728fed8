package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	otelx "github.com/waypointhq/waypoint/internal/adapter/otel"
	"github.com/waypointhq/waypoint/internal/config"
)

// NewRouter builds the chi router with the standard middleware stack.
// wsHandler, when non-nil, is mounted at /ws outside the API prefix.
func NewRouter(cfg config.Server, h *Handlers, wsHandler http.HandlerFunc) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(SecurityHeaders)
	if cfg.CORSOrigin != "" {
		r.Use(CORS(cfg.CORSOrigin))
	}
	r.Use(otelx.HTTPMiddleware("waypoint.http"))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}

	MountRoutes(r, h)
	return r
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Instance registry
		r.Post("/instances", h.RegisterInstance)
		r.Get("/instances", h.ListInstances)
		r.Get("/instances/stale", h.ListStaleInstances)
		r.Get("/instances/{id}", h.GetInstance)
		r.Post("/instances/{id}/heartbeat", h.Heartbeat)
		r.Post("/instances/{id}/close", h.CloseInstance)

		// Event log (nested under instances)
		r.Post("/instances/{id}/events", h.EmitEvent)
		r.Get("/instances/{id}/events", h.QueryEvents)
		r.Get("/instances/{id}/events/replay", h.ReplayEvents)
		r.Get("/events/types", h.ListEventTypes)
		r.Get("/events/stats", h.EventStats)

		// Checkpoints (nested under instances + direct access)
		r.Post("/instances/{id}/checkpoints", h.CreateCheckpoint)
		r.Get("/instances/{id}/checkpoints", h.ListCheckpoints)
		r.Get("/checkpoints/{id}", h.GetCheckpoint)
		r.Post("/checkpoints/cleanup", h.CleanupCheckpoints)

		// Command log (nested under instances)
		r.Post("/instances/{id}/commands", h.LogCommand)
		r.Get("/instances/{id}/commands", h.SearchCommands)
		r.Get("/instances/{id}/commands/stats", h.CommandStats)

		// Resume
		r.Post("/resume", h.ResumeInstance)
		r.Get("/instances/{id}/resume-details", h.ResumeDetails)
	})
}

// NewServer wraps the router in an http.Server with sane timeouts.
func NewServer(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
