/**
 * @description
 * HTTP router setup for the admin dashboard and Paystack webhook using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new Chi router and registers the admin and webhook routes.
func NewRouter(h *Handler, webhook http.Handler, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin", http.StatusFound)
	})

	r.Method(http.MethodPost, "/webhooks/paystack", webhook)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/", h.handleDashboard)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Get("/logout", h.handleLogout)

		r.Route("/api", func(r chi.Router) {
			r.Use(h.RequireAdmin)
			r.Get("/stats", h.handleStats)
			r.Get("/users", h.handleListUsers)
			r.Get("/transactions", h.handleListTransactions)
			r.Post("/broadcast", h.handleBroadcast)
		})
	})

	return r
}
