package handlers

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/urbanworks/dispatch/optimizer"
)

// StatsResponse summarizes the current workload.
type StatsResponse struct {
	OpenTicketsByCrew map[string]int `json:"open_tickets_by_crew"`
	OpenTickets       int            `json:"open_tickets"`
	InProgressTickets int            `json:"in_progress_tickets"`
	DoneTickets       int            `json:"done_tickets"`
	Routes            int            `json:"routes"`
	FetchedAt         string         `json:"fetched_at"`
}

var crewTypes = []optimizer.CrewType{
	optimizer.CrewAsphalt,
	optimizer.CrewHydraulic,
	optimizer.CrewElectric,
	optimizer.CrewSanitation,
	optimizer.CrewGeneral,
}

// GetStats fans out the per-crew and per-status counts concurrently.
func GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	stats := StatsResponse{
		OpenTicketsByCrew: make(map[string]int, len(crewTypes)),
		FetchedAt:         time.Now().UTC().Format(time.RFC3339),
	}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, crew := range crewTypes {
		g.Go(func() error {
			tickets, err := store.ListOpenTickets(ctx, crew)
			if err != nil {
				return err
			}
			mu.Lock()
			stats.OpenTicketsByCrew[string(crew)] = len(tickets)
			stats.OpenTickets += len(tickets)
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		tickets, err := store.ListTickets(ctx, optimizer.StatusInProgress)
		if err != nil {
			return err
		}
		mu.Lock()
		stats.InProgressTickets = len(tickets)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		tickets, err := store.ListTickets(ctx, optimizer.StatusDone)
		if err != nil {
			return err
		}
		mu.Lock()
		stats.DoneTickets = len(tickets)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		routes, err := store.ListRoutes(ctx, "", "")
		if err != nil {
			return err
		}
		mu.Lock()
		stats.Routes = len(routes)
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		writeError(w, http.StatusInternalServerError, internalError("failed to collect stats", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
