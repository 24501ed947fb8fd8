/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the portal frontend

ROUTE GROUPS:
  /api/payments/*   Payment recording and history
  /api/tenants/*    Per-tenant ledger views
  /api/reports/*    Arrears reporting
  /api/admin/*      Maintenance operations
  /api/health       Liveness

SECURITY NOTE:
  No authentication middleware; the service sits behind the platform
  gateway, which owns auth.

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

	r.Route("/api", func(r chi.Router) {
		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
			r.Get("/", h.ListPayments)
			r.Get("/tenant/{tenantID}", h.GetTenantPayments)
		})

		// Ledger routes
		r.Route("/tenants", func(r chi.Router) {
			r.Get("/{tenantID}/ledger", h.GetTenantLedger)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/overdue", h.GetOverdueReport)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/ensure-periods", h.EnsurePeriods)
		})

		r.Get("/health", h.Health)
	})

	return r
}
