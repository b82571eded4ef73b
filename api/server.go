/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for internal dashboards

ROUTE GROUPS:
  /api/obligations/*    Obligation intake
  /api/payments/*       Settlement operations
  /api/accounts/*       Account lifecycle
  /api/payers/*         Balance and history reads
  /api/admin/*          Manual corrections
  /metrics              Prometheus scrape endpoint (optional)
  /healthz              Liveness probe

SECURITY NOTE:
  Authorization is capability checks inside the ledger service; there is no
  authentication middleware here. Deployments front this with the gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. metricsHandler
// may be nil when the deployment does not scrape metrics.
func NewRouter(h *Handler, metricsHandler http.Handler) *chi.Mux {
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
		r.Route("/obligations", func(r chi.Router) {
			r.Post("/", h.RecordObligation)
			r.Post("/decline", h.DeclineObligation)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/targeted", h.PayTargeted)
			r.Post("/waterfall", h.PayWaterfall)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.OpenAccount)
			r.Post("/{id}/deposits", h.Deposit)
		})

		r.Route("/payers", func(r chi.Router) {
			r.Get("/{payerID}/balance", h.GetBalance)
			r.Get("/{payerID}/transactions", h.ListTransactions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", h.Adjust)
		})
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
