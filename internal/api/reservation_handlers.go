package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/reservation/internal/auth"
	"example.com/reservation/internal/domain"
	"example.com/reservation/internal/observability"
	"example.com/reservation/internal/persistence"
)

func (h *Handler) reservationsRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	h.book(w, r)
}

// reservationSubroutes dispatches the nested reservation paths:
//
//	PUT /v1/reservations/{id}/cancel
//	PUT /v1/reservations/{id}/attendance
//	GET /v1/reservations/activity/{id}
func (h *Handler) reservationSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/reservations/")

	if after, ok := strings.CutPrefix(rest, "activity/"); ok {
		h.roster(w, r, after)
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not_found", "unknown path")
		return
	}
	id, action := parts[0], parts[1]

	switch action {
	case "cancel":
		h.cancel(w, r, id)
	case "attendance":
		h.attendance(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown path")
	}
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if _, err := uuid.Parse(req.ActivityID); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrInvalidID.Error())
		return
	}

	reservation, err := h.ledger.Book(r.Context(), claims.UserID, req.ActivityID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrActivityFull):
			observability.RecordBookingRejected("full")
		case errors.Is(err, domain.ErrDuplicateReservation):
			observability.RecordBookingRejected("duplicate")
		case errors.Is(err, domain.ErrActivityNotFound):
			observability.RecordBookingRejected("not_found")
		}
		writeDomainError(w, err)
		return
	}

	observability.RecordBooking()
	writeJSON(w, http.StatusCreated, toReservationView(*reservation))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrInvalidID.Error())
		return
	}

	result, err := h.ledger.Cancel(r.Context(), id, claims.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	observability.RecordCancellation(string(result.Status))
	writeJSON(w, http.StatusOK, CancelResponse{
		Status:       string(result.Status),
		SlotReleased: result.Released,
		Message:      result.Message,
	})
}

func (h *Handler) myReservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	reservations, next, err := h.ledger.ListByUser(r.Context(), claims.UserID, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ReservationView, 0, len(reservations))
	for _, res := range reservations {
		items = append(items, toReservationView(res))
	}
	writeJSON(w, http.StatusOK, ListReservationsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) roster(w http.ResponseWriter, r *http.Request, activityID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return
	}
	if _, err := uuid.Parse(activityID); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrInvalidID.Error())
		return
	}

	entries, err := h.ledger.ListByActivity(r.Context(), activityID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]RosterEntryView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, RosterEntryView{
			ReservationView: toReservationView(entry.Reservation),
			UserName:        entry.UserName,
			UserEmail:       entry.UserEmail,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) attendance(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrInvalidID.Error())
		return
	}

	var req AttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if err := h.ledger.SetAttendance(r.Context(), id, status); err != nil {
		writeDomainError(w, err)
		return
	}

	observability.RecordAttendance(string(status))
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// BookRequest is the payload for POST /v1/reservations.
type BookRequest struct {
	ActivityID string `json:"activity_id"`
}

// AttendanceRequest is the payload for the attendance endpoint.
type AttendanceRequest struct {
	Status string `json:"status"`
}

// CancelResponse reports the cancellation outcome.
type CancelResponse struct {
	Status       string `json:"status"`
	SlotReleased bool   `json:"slot_released"`
	Message      string `json:"message"`
}

// ReservationView exposes a reservation including its booking-time snapshot.
type ReservationView struct {
	ReservationID     string    `json:"reservation_id"`
	UserID            string    `json:"user_id"`
	ActivityID        string    `json:"activity_id"`
	ActivityTitle     string    `json:"activity_title"`
	ActivityStartTime time.Time `json:"activity_start_time"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// RosterEntryView is a reservation hydrated with owner details.
type RosterEntryView struct {
	ReservationView
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// ListReservationsResponse packages list results.
type ListReservationsResponse struct {
	Items      []ReservationView `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func toReservationView(res domain.Reservation) ReservationView {
	return ReservationView{
		ReservationID:     res.ID,
		UserID:            res.UserID,
		ActivityID:        res.ActivityID,
		ActivityTitle:     res.ActivityTitle,
		ActivityStartTime: res.ActivityStartTime,
		Status:            string(res.Status),
		CreatedAt:         res.CreatedAt,
	}
}
