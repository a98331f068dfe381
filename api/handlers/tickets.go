package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/urbanworks/dispatch/optimizer"
)

const storeTimeout = 10 * time.Second

// CreateTicket registers a new maintenance ticket.
func CreateTicket(w http.ResponseWriter, r *http.Request) {
	var t optimizer.Ticket
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket payload: "+err.Error())
		return
	}
	if t.Status == "" {
		t.Status = optimizer.StatusOpen
	}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t.UrgencyScore = optimizer.Score(&t)

	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	if err := store.CreateTicket(ctx, t); err != nil {
		writeError(w, http.StatusConflict, SanitizeError(err))
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetTickets lists tickets, optionally filtered by ?status=.
func GetTickets(w http.ResponseWriter, r *http.Request) {
	status := optimizer.TicketStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(status)))
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	tickets, err := store.ListTickets(ctx, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("failed to list tickets", err))
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

// GetTicket returns one ticket by id.
func GetTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	t, err := store.GetTicket(ctx, id)
	if err != nil {
		if errors.Is(err, optimizer.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		writeError(w, http.StatusInternalServerError, internalError("failed to get ticket", err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// StatusUpdateRequest is the body of a ticket status transition.
type StatusUpdateRequest struct {
	Status optimizer.TicketStatus `json:"status"`
}

// UpdateTicketStatus transitions a ticket's lifecycle state.
func UpdateTicketStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid status payload: "+err.Error())
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(req.Status)))
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	if err := store.UpdateTicketStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, optimizer.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		writeError(w, http.StatusInternalServerError, internalError("failed to update ticket status", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetNearbyTickets lists open tickets within ?radius_km of ?lat,?lon.
func GetNearbyTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	radiusKm := 1.0
	if raw := q.Get("radius_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "radius_km must be a positive number")
			return
		}
		radiusKm = v
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	tickets, err := store.ListNearbyTickets(ctx, lat, lon, radiusKm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("failed to list nearby tickets", err))
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}
