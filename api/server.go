/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/catalog           Active cosmetics
  /api/students/*        Balance, ownership, purchases, equip
  /api/admin/*           Grants and consistency audit
  /api/scenarios/*       Demo scenarios (when enabled)
  /metrics               Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.ListCatalog)

		r.Route("/students/{id}", func(r chi.Router) {
			r.Get("/state", h.GetState)
			r.Get("/balance", h.GetBalance)
			r.Get("/cosmetics", h.ListCosmetics)
			r.Get("/transactions", h.GetTransactions)
			r.Post("/purchases", h.Purchase)
			r.Post("/equip", h.Equip)
			r.Post("/unequip", h.Unequip)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/grants", h.Grant)
			r.Get("/audit", h.Audit)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
