/**
 * @description
 * HTTP router setup for the matching and settlement engine using go-chi/chi.
 * All engine routes are internal, server-to-server endpoints guarded by the
 * shared internal API key.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new Chi router and registers the engine routes.
func NewRouter(h *Handler, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Matching engine is healthy"))
	})

	r.Route("/internal/engine", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))

		r.Post("/matcher/run", h.handleRunMatcher)

		r.Get("/matches", h.handleListMatches)
		r.Get("/matches/{matchID}", h.handleGetMatchDetail)
		r.Post("/matches/{matchID}/accept", h.handleAcceptMatch)
		r.Post("/matches/{matchID}/decline", h.handleDeclineMatch)
		r.Post("/matches/{matchID}/expire", h.handleExpireMatch)
		r.Delete("/matches/{matchID}", h.handleDeleteMatch)

		r.Post("/rentals/{rentalID}/payouts/refresh", h.handleRefreshPayouts)
	})

	return r
}
