/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the review front end

ROUTE GROUPS:
  /api/documents/*      Review and edit
  /api/views            View list
  /api/statuses         Status list
  /api/ingestion/*      Ingestion trigger and history
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cli/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.ListDocuments)
			r.Post("/", h.CreateDocument)
			r.Get("/search", h.SearchDocuments)
			r.Get("/status", h.FilterByStatus)
			r.Get("/dates", h.FilterByDate)
			r.Get("/priority/{name}", h.Priority)
			r.Get("/export.csv", h.ExportCSV)
			r.Patch("/{id}", h.UpdateDocument)
		})

		r.Get("/views", h.ListViews)
		r.Get("/statuses", h.ListStatuses)

		r.Route("/ingestion", func(r chi.Router) {
			r.Post("/run", h.TriggerIngestion)
			r.Get("/runs", h.ListIngestionRuns)
		})
	})

	return r
}
