/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the panel frontend
  5. Metrics:    Request counts and latencies (when a collector is set)

ROUTE GROUPS:
  /api/players/*   Player-facing actions and status
  /api/actions/*   Action lookup and revocation
  /api/admin/*     Sweep and flush
  /metrics         Prometheus scrape endpoint
  /healthz         Ledger and persistence health

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/moderation-engine/metrics"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins []string
	Metrics     *metrics.Collector
	AccessLog   bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	if opts.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AdminHeader},
		AllowCredentials: true,
	}))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Instrument)
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Player routes
		r.Route("/players", func(r chi.Router) {
			r.Post("/actions/{action}", h.PlayerAction)
			r.Get("/status", h.PlayerStatus)
		})

		// Action routes
		r.Route("/actions", func(r chi.Router) {
			r.Get("/", h.ListActions)
			r.Get("/{id}", h.GetAction)
			r.Post("/{id}/revoke", h.RevokeAction)
			r.Post("/{id}/revoke-request", h.RequestRevoke)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
			r.Post("/flush", h.TriggerFlush)
		})
	})

	return r
}
