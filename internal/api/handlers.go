// Package api exposes HTTP handlers for the reservation service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"example.com/reservation/internal/domain"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	ledger     *domain.Service
	activities *domain.ActivityService
	users      *domain.UserService
	tokens     TokenIssuer
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID, email, role string) (string, error)
}

// NewHandler builds a Handler.
func NewHandler(ledger *domain.Service, activities *domain.ActivityService, users *domain.UserService, tokens TokenIssuer) *Handler {
	return &Handler{ledger: ledger, activities: activities, users: users, tokens: tokens}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/auth/register", h.register)
	mux.HandleFunc("/v1/auth/login", h.login)
	mux.HandleFunc("/v1/auth/me", h.me)
	mux.HandleFunc("/v1/auth/users", h.listUsers)
	mux.HandleFunc("/v1/auth/users/", h.userByID)
	mux.HandleFunc("/v1/activities", h.activitiesRoot)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/reservations", h.reservationsRoot)
	mux.HandleFunc("/v1/reservations/me", h.myReservations)
	mux.HandleFunc("/v1/reservations/", h.reservationSubroutes)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeDomainError maps the domain error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrActivityFull),
		errors.Is(err, domain.ErrDuplicateReservation),
		errors.Is(err, domain.ErrNotActive):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}
