package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/urbanworks/dispatch/api/metrics"
	"github.com/urbanworks/dispatch/optimizer"
)

// optimizeTimeout bounds a whole optimize request including persistence.
const optimizeTimeout = 60 * time.Second

// OptimizeRequest is the HTTP body of an optimize call.
type OptimizeRequest struct {
	CrewType   optimizer.CrewType `json:"crew_type"`
	Date       string             `json:"date"`
	MaxHours   float64            `json:"max_hours,omitempty"`
	MaxPoints  int                `json:"max_points,omitempty"`
	Strategy   optimizer.Strategy `json:"strategy,omitempty"`
	DeadlineMs int64              `json:"deadline_ms,omitempty"`
}

// PostOptimize plans a route for one crew and date.
func PostOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid optimize payload: "+err.Error())
		return
	}
	if req.DeadlineMs < 0 {
		writeError(w, http.StatusBadRequest, "deadline_ms must be non-negative")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), optimizeTimeout)
	defer cancel()

	start := time.Now()
	route, err := engine.Optimize(ctx, optimizer.Request{
		CrewType:  req.CrewType,
		Date:      req.Date,
		MaxHours:  req.MaxHours,
		MaxPoints: req.MaxPoints,
		Strategy:  req.Strategy,
		Deadline:  time.Duration(req.DeadlineMs) * time.Millisecond,
	})
	metrics.OptimizeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, optimizer.ErrInvalidRequest):
			metrics.OptimizeRuns.WithLabelValues("invalid_request").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, optimizer.ErrDeadline):
			metrics.OptimizeRuns.WithLabelValues("deadline").Inc()
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			metrics.OptimizeRuns.WithLabelValues("error").Inc()
			writeError(w, http.StatusInternalServerError, internalError("route optimization failed", err))
		}
		return
	}

	metrics.OptimizeRuns.WithLabelValues(route.Status).Inc()
	metrics.RouteStops.Observe(float64(len(route.Stops)))
	writeJSON(w, http.StatusOK, route)
}
