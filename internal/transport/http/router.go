// Package httptransport is the thin HTTP layer. It delegates to domain
// services without embedding business logic so transport concerns stay
// isolated.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all public endpoints. Everything under /bank except the
// authentication endpoints sits behind the ticket guard.
func NewRouter(h *BankHandler, guard func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/bank", func(r chi.Router) {
		r.Post("/auth/challenge", h.handleChallenge)
		r.Post("/auth/ticket", h.handleIssueTicket)

		r.Group(func(r chi.Router) {
			r.Use(guard)
			r.Get("/balance", h.handleBalance)
			r.Get("/history", h.handleHistory)
			r.Post("/transfer", h.handleTransfer)
			r.Get("/resolve/{ref}", h.handleResolve)
		})
	})

	return r
}
