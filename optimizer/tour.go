package optimizer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// twoOptEps is the minimum improvement a 2-opt move must achieve.
	twoOptEps = 1e-6
	// twoOptMaxPasses caps full improvement sweeps per cluster tour.
	twoOptMaxPasses = 50
)

// solveTour builds an open tour over one cluster's tickets: a seeded
// nearest-neighbor construction refined by 2-opt on travel minutes.
// Deadline expiry between 2-opt passes returns the best tour so far;
// expiry is not an error at this level.
func solveTour(ctx context.Context, c Cluster, o *Oracle, strategy Strategy, clock clockwork.Clock, deadline time.Time) []Ticket {
	if len(c.Tickets) <= 1 {
		out := make([]Ticket, len(c.Tickets))
		copy(out, c.Tickets)
		return out
	}

	tour := nearestNeighborTour(ctx, c, o, strategy)
	return twoOpt(ctx, tour, o, clock, deadline)
}

// nearestNeighborTour seeds the tour per the run strategy and greedily
// appends the unvisited ticket with the smallest travel time from the tail.
// Travel-time ties keep the earlier candidate, so equal-distance groups
// (e.g. collocated tickets) retain their urgency order.
func nearestNeighborTour(ctx context.Context, c Cluster, o *Oracle, strategy Strategy) []Ticket {
	remaining := make([]Ticket, len(c.Tickets))
	copy(remaining, c.Tickets)

	seed := seedIndex(c, remaining, strategy)
	tour := make([]Ticket, 0, len(remaining))
	tour = append(tour, remaining[seed])
	remaining = append(remaining[:seed], remaining[seed+1:]...)

	for len(remaining) > 0 {
		tail := &tour[len(tour)-1]
		best := 0
		bestMin := o.TravelMinutes(ctx, tail, &remaining[0])
		for i := 1; i < len(remaining); i++ {
			if m := o.TravelMinutes(ctx, tail, &remaining[i]); m < bestMin {
				best, bestMin = i, m
			}
		}
		tour = append(tour, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return tour
}

// seedIndex picks the first visit of a cluster tour: the most urgent ticket,
// or the ticket nearest the centroid under the geographic strategy.
func seedIndex(c Cluster, tickets []Ticket, strategy Strategy) int {
	if strategy != StrategyGeographic {
		return mostUrgent(tickets)
	}
	best := 0
	bestKm := haversineKm(c.CentroidLat, c.CentroidLon, tickets[0].Lat, tickets[0].Lon)
	for i := 1; i < len(tickets); i++ {
		km := haversineKm(c.CentroidLat, c.CentroidLon, tickets[i].Lat, tickets[i].Lon)
		if km < bestKm {
			best, bestKm = i, km
		}
	}
	return best
}

// twoOpt runs first-improvement 2-opt on an open path until a full pass finds
// no improving move, capped at twoOptMaxPasses sweeps. A move replaces edges
// (i,i+1) and (j,j+1) with (i,j) and (i+1,j+1) by reversing the segment
// [i+1..j]; it is accepted when the travel-minute delta beats twoOptEps.
// The deadline is checked between passes only, keeping the inner loop tight.
func twoOpt(ctx context.Context, tour []Ticket, o *Oracle, clock clockwork.Clock, deadline time.Time) []Ticket {
	n := len(tour)
	if n < 4 {
		return tour
	}

	for pass := 0; pass < twoOptMaxPasses; pass++ {
		if !deadline.IsZero() && clock.Now().After(deadline) {
			break
		}
		improved := false
		for i := 0; i < n-3; i++ {
			for j := i + 2; j < n-1; j++ {
				dOld := o.TravelMinutes(ctx, &tour[i], &tour[i+1]) +
					o.TravelMinutes(ctx, &tour[j], &tour[j+1])
				dNew := o.TravelMinutes(ctx, &tour[i], &tour[j]) +
					o.TravelMinutes(ctx, &tour[i+1], &tour[j+1])
				if dNew < dOld-twoOptEps {
					reverseSegment(tour, i+1, j)
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return tour
}

// reverseSegment reverses tour[lo..hi] in place.
func reverseSegment(tour []Ticket, lo, hi int) {
	for lo < hi {
		tour[lo], tour[hi] = tour[hi], tour[lo]
		lo++
		hi--
	}
}

// tourTravelMinutes sums consecutive travel minutes along an open path.
func tourTravelMinutes(ctx context.Context, tour []Ticket, o *Oracle) float64 {
	var total float64
	for i := 0; i+1 < len(tour); i++ {
		total += o.TravelMinutes(ctx, &tour[i], &tour[i+1])
	}
	return total
}
