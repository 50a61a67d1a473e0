/**
 * @description
 * HTTP handlers for the matching and settlement engine. These are thin
 * adapters: parse, call the service, map sentinel errors to status codes.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: Engine business logic.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/app"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/store"
)

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service *app.Service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

type runMatcherRequest struct {
	DryRun    bool       `json:"dry_run"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Now       *time.Time `json:"now,omitempty"` // reference instant override, mainly for dry runs
}

func (h *Handler) handleRunMatcher(w http.ResponseWriter, r *http.Request) {
	var req runMatcherRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	opts := app.RunOptions{
		DryRun:    req.DryRun,
		BookingID: req.BookingID,
		Limit:     req.Limit,
	}
	if req.Now != nil {
		opts.Now = req.Now.UTC()
	}

	summary, err := h.service.RunMatcher(r.Context(), opts)
	if err != nil {
		h.respondWithDomainError(w, "running matcher", err)
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleListMatches(w http.ResponseWriter, r *http.Request) {
	filter, err := matchListFilterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := h.service.ListMatches(r.Context(), filter)
	if err != nil {
		h.respondWithDomainError(w, "listing matches", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"matches": rows, "count": len(rows)})
}

func (h *Handler) handleGetMatchDetail(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDFromURL(w, r)
	if !ok {
		return
	}

	detail, err := h.service.GetMatchDetail(r.Context(), matchID)
	if err != nil {
		h.respondWithDomainError(w, "loading match detail", err)
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleAcceptMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDFromURL(w, r)
	if !ok {
		return
	}

	rental, err := h.service.AcceptMatch(r.Context(), matchID)
	if err != nil {
		h.respondWithDomainError(w, "accepting match", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, rental)
}

func (h *Handler) handleDeclineMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDFromURL(w, r)
	if !ok {
		return
	}

	if err := h.service.DeclineMatch(r.Context(), matchID); err != nil {
		h.respondWithDomainError(w, "declining match", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": string(domain.MatchDeclined)})
}

func (h *Handler) handleExpireMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDFromURL(w, r)
	if !ok {
		return
	}

	if err := h.service.ExpireMatch(r.Context(), matchID); err != nil {
		h.respondWithDomainError(w, "expiring match", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": string(domain.MatchExpired)})
}

func (h *Handler) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDFromURL(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteMatch(r.Context(), matchID); err != nil {
		h.respondWithDomainError(w, "deleting match", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefreshPayouts(w http.ResponseWriter, r *http.Request) {
	rentalIDStr := chi.URLParam(r, "rentalID")
	rentalID, err := uuid.Parse(rentalIDStr)
	if err != nil {
		http.Error(w, "Invalid rental ID", http.StatusBadRequest)
		return
	}

	entries, err := h.service.RefreshPayouts(r.Context(), rentalID)
	if err != nil {
		h.respondWithDomainError(w, "refreshing payouts", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func matchIDFromURL(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	matchID, err := uuid.Parse(chi.URLParam(r, "matchID"))
	if err != nil {
		http.Error(w, "Invalid match ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return matchID, true
}

func matchListFilterFromQuery(r *http.Request) (domain.MatchListFilter, error) {
	q := r.URL.Query()
	filter := domain.MatchListFilter{
		Status:       domain.MatchStatus(q.Get("status")),
		PayoutStatus: domain.PayoutStatus(q.Get("payout_status")),
		Text:         q.Get("q"),
		Sort:         q.Get("sort"),
	}

	for name, dst := range map[string]**time.Time{
		"created_from":  &filter.CreatedFrom,
		"created_to":    &filter.CreatedTo,
		"check_in_from": &filter.CheckInFrom,
		"check_in_to":   &filter.CheckInTo,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			t, err = time.Parse("2006-01-02", raw)
		}
		if err != nil {
			return filter, errors.New("invalid " + name + ": expected RFC3339 or YYYY-MM-DD")
		}
		*dst = &t
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}

// respondWithDomainError maps the store's sentinel errors to HTTP statuses.
func (h *Handler) respondWithDomainError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, store.ErrBookingNotFound),
		errors.Is(err, store.ErrMembershipNotFound),
		errors.Is(err, store.ErrMatchNotFound),
		errors.Is(err, store.ErrRentalNotFound),
		errors.Is(err, store.ErrJurisdictionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrRentalExists),
		errors.Is(err, store.ErrActiveMatchExists),
		errors.Is(err, store.ErrStageReleased):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrInsufficientPoints):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.Printf("level=error component=api msg=\"unhandled error\" action=%q err=%v", action, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
