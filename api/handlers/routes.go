package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/urbanworks/dispatch/optimizer"
)

// GetRoutes lists persisted routes, optionally filtered by ?crew_type= and
// ?date=.
func GetRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	crew := optimizer.CrewType(q.Get("crew_type"))
	if crew != "" && !crew.Valid() {
		writeError(w, http.StatusBadRequest, "unknown crew type "+strconv.Quote(string(crew)))
		return
	}
	date := q.Get("date")

	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	routes, err := store.ListRoutes(ctx, crew, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, internalError("failed to list routes", err))
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

// GetRoute returns one persisted route by id.
func GetRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := contextWithTimeout(r)
	defer cancel()
	route, err := store.GetRoute(ctx, id)
	if err != nil {
		if errors.Is(err, optimizer.ErrNotFound) {
			writeError(w, http.StatusNotFound, "route not found")
			return
		}
		writeError(w, http.StatusInternalServerError, internalError("failed to get route", err))
		return
	}
	writeJSON(w, http.StatusOK, route)
}
