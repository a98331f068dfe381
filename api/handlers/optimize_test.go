package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanworks/dispatch/api/handlers"
	"github.com/urbanworks/dispatch/optimizer"
)

func TestPostOptimize(t *testing.T) {
	store, r := setupRouter(t)

	low := validTicket("low")
	low.Priority = optimizer.PriorityLow
	urgent := validTicket("urgent")
	urgent.Lat += 0.01
	urgent.Priority = optimizer.PriorityEmergency
	store.PutTickets(low, urgent)

	rec := doJSON(t, r, http.MethodPost, "/api/optimize", handlers.OptimizeRequest{
		CrewType: optimizer.CrewAsphalt,
		Date:     "2026-08-24",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var route optimizer.Route
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&route))
	assert.Equal(t, optimizer.RouteOK, route.Status)
	require.Len(t, route.Stops, 2)
	assert.Equal(t, "urgent", route.Stops[0].TicketID)
	assert.NotEmpty(t, route.ID)

	// The persisted route is retrievable through the history endpoint.
	rec = doJSON(t, r, http.MethodGet, "/api/routes/"+route.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/routes?crew_type=asphalt&date=2026-08-24", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var routes []optimizer.Route
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&routes))
	require.Len(t, routes, 1)
}

func TestPostOptimizeNoCandidates(t *testing.T) {
	_, r := setupRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/optimize", handlers.OptimizeRequest{
		CrewType: optimizer.CrewHydraulic,
		Date:     "2026-08-24",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var route optimizer.Route
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&route))
	assert.Equal(t, optimizer.RouteNoCandidates, route.Status)
	assert.Empty(t, route.Stops)
}

func TestPostOptimizeInvalidRequest(t *testing.T) {
	_, r := setupRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/optimize", handlers.OptimizeRequest{
		CrewType: "janitorial",
		Date:     "2026-08-24",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/optimize", handlers.OptimizeRequest{
		CrewType: optimizer.CrewAsphalt,
		Date:     "2026-08-24",
		Strategy: "random",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/optimize", handlers.OptimizeRequest{
		CrewType:   optimizer.CrewAsphalt,
		Date:       "2026-08-24",
		DeadlineMs: -5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRouteNotFound(t *testing.T) {
	_, r := setupRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/routes/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
