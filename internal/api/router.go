/**
 * @description
 * HTTP router for the connection service. Connection, messaging and ledger
 * routes require a Clerk session; administration and payout routes require the
 * internal API key.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and standard middleware.
 * - github.com/go-chi/cors: CORS for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the service router. userAuth authenticates end users and
// must put the Clerk user id in the request context.
func NewRouter(h *Handlers, userAuth func(http.Handler) http.Handler, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Get("/monetization-configs/active", h.ListActiveMonetizationConfigsHandler)

	r.Group(func(r chi.Router) {
		r.Use(userAuth)

		r.Route("/connections", func(r chi.Router) {
			r.Post("/", h.RequestConnectionHandler)
			r.Get("/", h.ListConnectionsHandler)
			r.Get("/{id}", h.GetConnectionHandler)
			r.Post("/{id}/complete_payment", h.CompletePaymentHandler)
			r.Put("/{id}/status", h.UpdateConnectionStatusHandler)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", h.SendMessageHandler)
			r.Get("/connections/{id}", h.ListMessagesHandler)
			r.Put("/{id}/read", h.MarkMessageReadHandler)
		})

		r.Get("/transactions/me", h.ListMyTransactionsHandler)
		r.Get("/transactions/{id}", h.GetTransactionHandler)
		r.Get("/earnings/me", h.ListMyEarningsHandler)
		r.Get("/earnings/{id}", h.GetEarningHandler)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))

		r.Route("/monetization-configs", func(r chi.Router) {
			r.Get("/", h.ListMonetizationConfigsHandler)
			r.Post("/", h.CreateMonetizationConfigHandler)
			r.Get("/{id}", h.GetMonetizationConfigHandler)
			r.Put("/{id}", h.UpdateMonetizationConfigHandler)
			r.Post("/{id}/deactivate", h.DeactivateMonetizationConfigHandler)
		})
		r.Post("/earnings/{id}/settle", h.SettleEarningHandler)
		r.Post("/earnings/{id}/cancel", h.CancelEarningHandler)
		r.Post("/refunds/complete", h.CompleteRefundHandler)
	})

	return r
}
