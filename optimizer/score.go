package optimizer

import "sort"

// Urgency scoring constants. These values are load-bearing: emergencies must
// dominate every combination of bonuses a lower priority can accumulate, and
// downstream consumers (dashboards, the persisted advisory score) assume the
// exact numbers. Change them only together with the pinning tests.
var priorityBase = map[Priority]float64{
	PriorityEmergency: 1000,
	PriorityUrgent:    500,
	PriorityHigh:      200,
	PriorityMedium:    50,
	PriorityLow:       10,
}

var sizeFactor = map[ProblemSize]float64{
	SizeLarge:  1.5,
	SizeMedium: 1.0,
	SizeSmall:  0.7,
	SizeUnset:  1.0,
}

var typeBonus = map[ProblemType]float64{
	ProblemExposedWiring:      200,
	ProblemFaultyTrafficLight: 180,
	ProblemSewerLeak:          120,
	ProblemWaterLeak:          100,
	ProblemDarkLamp:           60,
	ProblemPothole:            40,
	ProblemCloggedDrain:       40,
	ProblemBrokenSidewalk:     20,
}

const (
	trafficBonus   = 150
	criticalBonus  = 100
	mainRoadBonus  = 80
	commerceBonus  = 60
	complaintUnit  = 5
	complaintsCap  = 50
	maxSwapRepairs = 10 // emergency swaps per validator run
)

// Score computes the scalar urgency of a ticket from its tags.
func Score(t *Ticket) float64 {
	score := priorityBase[t.Priority] + typeBonus[t.ProblemType]

	if t.AffectsTraffic {
		score += trafficBonus
	}
	if t.NearCriticalLocation {
		score += criticalBonus
	}
	if t.MainRoad {
		score += mainRoadBonus
	}
	if t.AffectsCommerce {
		score += commerceBonus
	}

	complaints := t.ComplaintsCount
	if complaints > complaintsCap {
		complaints = complaintsCap
	}
	score += float64(complaints) * complaintUnit

	return score * sizeFactor[t.ProblemSize]
}

// ScoreAll recomputes UrgencyScore for every ticket in place.
func ScoreAll(tickets []Ticket) {
	for i := range tickets {
		tickets[i].UrgencyScore = Score(&tickets[i])
	}
}

// lessUrgent is the total order used everywhere the engine sorts tickets:
// urgency score descending, then priority rank, then complaints descending,
// then id ascending. The final id key makes runs reproducible.
func lessUrgent(a, b *Ticket) bool {
	if a.UrgencyScore != b.UrgencyScore {
		return a.UrgencyScore > b.UrgencyScore
	}
	if ar, br := a.Priority.Rank(), b.Priority.Rank(); ar != br {
		return ar < br
	}
	if a.ComplaintsCount != b.ComplaintsCount {
		return a.ComplaintsCount > b.ComplaintsCount
	}
	return a.ID < b.ID
}

// SortByUrgency orders tickets most-urgent first, deterministically.
// UrgencyScore must already be populated (see ScoreAll).
func SortByUrgency(tickets []Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		return lessUrgent(&tickets[i], &tickets[j])
	})
}

// mostUrgent returns the index of the most urgent ticket under the engine's
// total order, or -1 for an empty slice.
func mostUrgent(tickets []Ticket) int {
	best := -1
	for i := range tickets {
		if best == -1 || lessUrgent(&tickets[i], &tickets[best]) {
			best = i
		}
	}
	return best
}
