// Package optimizer plans daily work routes for urban-maintenance crews.
//
// Given the open tickets for one crew type, it scores each ticket's urgency,
// partitions the set into geographic clusters, solves every cluster tour in
// parallel, stitches the cluster tours along a minimum spanning tree of the
// cluster centroids, and finally validates the stitched sequence against the
// shift-time budget and the declared ticket dependencies.
package optimizer

import (
	"errors"
	"fmt"
)

// ProblemType identifies the kind of defect reported by a ticket.
type ProblemType string

const (
	ProblemPothole            ProblemType = "pothole"
	ProblemWaterLeak          ProblemType = "water_leak"
	ProblemSewerLeak          ProblemType = "sewer_leak"
	ProblemDarkLamp           ProblemType = "dark_lamp"
	ProblemExposedWiring      ProblemType = "exposed_wiring"
	ProblemCloggedDrain       ProblemType = "clogged_drain"
	ProblemBrokenSidewalk     ProblemType = "broken_sidewalk"
	ProblemFaultyTrafficLight ProblemType = "faulty_traffic_light"
)

// Valid reports whether p is one of the known problem types.
func (p ProblemType) Valid() bool {
	switch p {
	case ProblemPothole, ProblemWaterLeak, ProblemSewerLeak, ProblemDarkLamp,
		ProblemExposedWiring, ProblemCloggedDrain, ProblemBrokenSidewalk,
		ProblemFaultyTrafficLight:
		return true
	}
	return false
}

// Priority is the reported severity of a ticket.
type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PriorityUrgent    Priority = "urgent"
	PriorityHigh      Priority = "high"
	PriorityMedium    Priority = "medium"
	PriorityLow       Priority = "low"
)

// Rank returns the ordinal position of the priority, emergency first.
// Unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergency:
		return 0
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	}
	return 5
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool { return p.Rank() < 5 }

// MoreUrgent reports whether p outranks q.
func (p Priority) MoreUrgent(q Priority) bool { return p.Rank() < q.Rank() }

// CrewType is the skill class required to service a ticket. A route serves
// exactly one crew type.
type CrewType string

const (
	CrewAsphalt    CrewType = "asphalt"
	CrewHydraulic  CrewType = "hydraulic"
	CrewElectric   CrewType = "electric"
	CrewSanitation CrewType = "sanitation"
	CrewGeneral    CrewType = "general"
)

// Valid reports whether c is one of the known crew types.
func (c CrewType) Valid() bool {
	switch c {
	case CrewAsphalt, CrewHydraulic, CrewElectric, CrewSanitation, CrewGeneral:
		return true
	}
	return false
}

// ProblemSize is the optional magnitude of a defect.
type ProblemSize string

const (
	SizeSmall  ProblemSize = "small"
	SizeMedium ProblemSize = "medium"
	SizeLarge  ProblemSize = "large"
	SizeUnset  ProblemSize = ""
)

// Valid reports whether s is a known size or unset.
func (s ProblemSize) Valid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge, SizeUnset:
		return true
	}
	return false
}

// TicketStatus is the lifecycle state of a ticket. Only open tickets are
// routed.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusDone       TicketStatus = "done"
	StatusCancelled  TicketStatus = "cancelled"
)

// Valid reports whether s is one of the known ticket statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Strategy selects how the engine composes the pipeline for a run.
type Strategy string

const (
	// StrategyUrgencyFirst skips clustering and routes the urgency-sorted
	// tickets as a single cluster.
	StrategyUrgencyFirst Strategy = "urgency_first"
	// StrategyGeographic seeds each cluster tour with the ticket closest to
	// the cluster centroid instead of the most urgent one.
	StrategyGeographic Strategy = "geographic"
	// StrategyMixed runs the full pipeline. Default.
	StrategyMixed Strategy = "mixed"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyUrgencyFirst, StrategyGeographic, StrategyMixed:
		return true
	}
	return false
}

// Ticket is one maintenance work item at a fixed location. Tickets are
// immutable for the duration of an optimization run.
type Ticket struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	ProblemType ProblemType `json:"problem_type"`
	Priority    Priority    `json:"priority"`
	CrewType    CrewType    `json:"crew_type"`
	ProblemSize ProblemSize `json:"problem_size,omitempty"`

	ServiceMinutes int `json:"estimated_service_minutes"`

	AffectsTraffic       bool `json:"affects_traffic"`
	AffectsCommerce      bool `json:"affects_commerce"`
	NearCriticalLocation bool `json:"near_critical_location"`
	MainRoad             bool `json:"main_road"`

	ComplaintsCount   int  `json:"complaints_count"`
	RequiresRoadBlock bool `json:"requires_road_block"`

	// Dependencies lists ticket ids that must be serviced before this one.
	// Ids referencing a missing ticket or a ticket of another crew type are
	// ignored with a warning.
	Dependencies []string `json:"dependencies,omitempty"`

	Status TicketStatus `json:"status"`

	// UrgencyScore is an advisory cache; the engine recomputes it per run.
	UrgencyScore float64 `json:"urgency_score"`
}

// Validate checks the data invariants a ticket must satisfy to be routed.
func (t *Ticket) Validate() error {
	if t.ID == "" {
		return errors.New("ticket id is required")
	}
	if t.Lat < -90 || t.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", t.Lat)
	}
	if t.Lon < -180 || t.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", t.Lon)
	}
	if !t.ProblemType.Valid() {
		return fmt.Errorf("unknown problem type %q", t.ProblemType)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", t.Priority)
	}
	if !t.CrewType.Valid() {
		return fmt.Errorf("unknown crew type %q", t.CrewType)
	}
	if !t.ProblemSize.Valid() {
		return fmt.Errorf("unknown problem size %q", t.ProblemSize)
	}
	if t.ServiceMinutes <= 0 {
		return fmt.Errorf("estimated service minutes must be positive, got %d", t.ServiceMinutes)
	}
	if t.ComplaintsCount < 0 {
		return fmt.Errorf("complaints count must be non-negative, got %d", t.ComplaintsCount)
	}
	return nil
}

// Cluster is an ephemeral geographically dense subset of one run's tickets.
type Cluster struct {
	Tickets        []Ticket
	CentroidLat    float64
	CentroidLon    float64
	Priority       Priority // most urgent priority among members
	ServiceMinutes int      // total estimated service minutes
}

// DropReason explains why the validator excluded a ticket from the route.
type DropReason string

const (
	DropBudget            DropReason = "budget"
	DropDependencyMissing DropReason = "dependency_missing"
	DropDependencyCycle   DropReason = "dependency_cycle"
)

// DroppedTicket is one manifest entry for a ticket excluded from the route.
type DroppedTicket struct {
	TicketID string     `json:"ticket_id"`
	Reason   DropReason `json:"reason"`
}

// Stop is one planned visit in the final route.
type Stop struct {
	TicketID string `json:"ticket_id"`
	// ArrivalOffsetMinutes is the planned cumulative offset from shift start
	// at which the crew arrives at the ticket (travel plus prior service).
	ArrivalOffsetMinutes float64 `json:"arrival_offset_minutes"`
}

// RouteStatistics summarizes a produced route.
type RouteStatistics struct {
	Points             int `json:"points"`
	ClustersServed     int `json:"clusters_served"`
	Emergencies        int `json:"emergencies"`
	Urgent             int `json:"urgent"`
	SkippedBudget      int `json:"skipped_budget"`
	ComplaintsResolved int `json:"complaints_resolved"`
	MainRoads          int `json:"main_roads"`
	CriticalLocations  int `json:"critical_locations"`
	RoadBlocksNeeded   int `json:"road_blocks_needed"`

	EmergencySwapsApplied    int `json:"emergency_swaps_applied"`
	EmergencySwapsInfeasible int `json:"emergency_swaps_infeasible"`
}

// Route status codes reported by the engine facade.
const (
	RouteOK           = "ok"
	RouteNoCandidates = "no_candidates"
	RoutePartial      = "partial"
)

// Route is the ordered, budget-feasible visit plan emitted by the engine.
type Route struct {
	ID       string   `json:"id,omitempty"`
	CrewType CrewType `json:"crew_type"`
	Date     string   `json:"date"`

	Stops []Stop `json:"stops"`

	// TotalDistanceKm includes the return leg from the last stop back to the
	// first, matching how dispatch historically reported tour length.
	TotalDistanceKm  float64 `json:"total_distance_km"`
	TotalTimeMinutes float64 `json:"total_time_minutes"`

	Statistics RouteStatistics `json:"statistics"`
	Dropped    []DroppedTicket `json:"dropped"`

	// ReorderedForDependencies lists tickets the validator moved later in
	// the sequence so their dependencies are serviced first.
	ReorderedForDependencies []string `json:"reordered_for_dependencies,omitempty"`

	// Status is one of RouteOK, RouteNoCandidates, RoutePartial.
	Status string `json:"status"`
}

// Sentinel errors surfaced by the engine facade.
var (
	// ErrInvalidRequest marks malformed optimize requests: unknown crew
	// type, non-positive budget, unknown strategy.
	ErrInvalidRequest = errors.New("invalid optimize request")
	// ErrDeadline is returned when the run deadline expires during
	// stitching, past the point where partial results are meaningful.
	ErrDeadline = errors.New("optimize deadline exceeded")
	// ErrInternal marks invariant violations that indicate a bug.
	ErrInternal = errors.New("internal optimizer error")
	// ErrNotFound is returned by stores for missing tickets or routes.
	ErrNotFound = errors.New("not found")
)
