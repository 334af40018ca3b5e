/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/occurrences      Merged window queries
  /api/events/*         Series and instance mutations
  /api/calendars/*      ICS feed export
  /api/health           Liveness probe

SECURITY NOTE:
  Authentication is an external collaborator; handlers trust the X-User-ID
  header. Put a real authenticating proxy in front for production.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/occurrences", h.ListOccurrences)

		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.CreateEvent)
			r.Get("/{id}", h.GetEvent)
			r.Put("/{id}", h.UpdateEvent)
			r.Delete("/{id}", h.DeleteEvent)
			r.Put("/{id}/instances/{date}", h.UpdateInstance)
		})

		r.Route("/calendars", func(r chi.Router) {
			r.Get("/{id}/feed.ics", h.CalendarFeed)
		})
	})

	return r
}
