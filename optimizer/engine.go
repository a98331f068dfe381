package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence surface the engine consumes. The engine pulls
// pre-filtered ticket sets and does its own spatial math; it never issues
// spatial queries against the store.
type Store interface {
	ListOpenTickets(ctx context.Context, crew CrewType) ([]Ticket, error)
	GetTicket(ctx context.Context, id string) (Ticket, error)
	SaveRoute(ctx context.Context, route *Route) (string, error)
}

// Config configures an Engine.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  Store

	// Cache is an optional external distance cache shared across runs.
	Cache CacheStore

	// Distance optionally overrides great-circle distance, e.g. with a road
	// network provider.
	Distance DistanceFunc

	// CacheStats, when set, receives the distance cache hit and miss counts
	// of each completed run, e.g. to feed metrics counters.
	CacheStats func(hits, misses uint64)

	AvgSpeedKmh float64 // default DefaultAvgSpeedKmh
	EpsKm       float64 // DBSCAN radius, default DefaultEpsKm
	MinSamples  int     // DBSCAN density threshold, default DefaultMinSamples

	// MaxConcurrency bounds the cluster-solver worker pool. Defaults to the
	// host's parallelism.
	MaxConcurrency int
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.AvgSpeedKmh <= 0 {
		c.AvgSpeedKmh = DefaultAvgSpeedKmh
	}
	if c.EpsKm <= 0 {
		c.EpsKm = DefaultEpsKm
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = runtime.GOMAXPROCS(0)
	}
	return nil
}

// Request is one optimize call.
type Request struct {
	CrewType CrewType `json:"crew_type"`
	Date     string   `json:"date"`

	MaxHours  float64  `json:"max_hours"`  // default 8
	MaxPoints int      `json:"max_points"` // default 50
	Strategy  Strategy `json:"strategy"`   // default mixed

	// Deadline bounds the wall-clock time of the run; zero means none.
	Deadline time.Duration `json:"-"`
}

const (
	defaultMaxHours  = 8
	defaultMaxPoints = 50
)

// normalize applies request defaults and validates the result.
func (r *Request) normalize() error {
	if r.MaxHours == 0 {
		r.MaxHours = defaultMaxHours
	}
	if r.MaxPoints == 0 {
		r.MaxPoints = defaultMaxPoints
	}
	if r.Strategy == "" {
		r.Strategy = StrategyMixed
	}
	if !r.CrewType.Valid() {
		return fmt.Errorf("%w: unknown crew type %q", ErrInvalidRequest, r.CrewType)
	}
	if r.Date == "" {
		return fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	if r.MaxHours < 0 {
		return fmt.Errorf("%w: max hours must be non-negative", ErrInvalidRequest)
	}
	if r.MaxPoints < 0 {
		return fmt.Errorf("%w: max points must be non-negative", ErrInvalidRequest)
	}
	if !r.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidRequest, r.Strategy)
	}
	return nil
}

// Engine orchestrates one optimize request end to end. It is stateless
// between calls; all per-run state (oracle cache included, unless an external
// cache store is configured) lives on the stack of Optimize.
type Engine struct {
	cfg Config
}

// New builds an Engine from a validated config.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Optimize plans a route for one crew and date. The returned route's Status
// is RouteOK, RouteNoCandidates or RoutePartial; malformed requests return
// ErrInvalidRequest and a deadline expiring during stitching returns
// ErrDeadline.
func (e *Engine) Optimize(ctx context.Context, req Request) (*Route, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	log := e.cfg.Logger.With("crew_type", req.CrewType, "date", req.Date, "strategy", req.Strategy)

	tickets, err := e.cfg.Store.ListOpenTickets(ctx, req.CrewType)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	tickets = e.sanitize(log, tickets, req.CrewType)
	if len(tickets) == 0 {
		log.Info("no candidate tickets, returning empty route")
		return &Route{
			CrewType: req.CrewType,
			Date:     req.Date,
			Status:   RouteNoCandidates,
		}, nil
	}

	ScoreAll(tickets)
	SortByUrgency(tickets)

	var deadline time.Time
	if req.Deadline > 0 {
		deadline = e.cfg.Clock.Now().Add(req.Deadline)
	}

	oracle := NewOracle(e.cfg.AvgSpeedKmh, e.cfg.Distance, e.cfg.Cache, log)

	var clusters []Cluster
	if req.Strategy == StrategyUrgencyFirst {
		// Single pseudo-cluster of the urgency-sorted sequence.
		clusters = []Cluster{buildClusterFromAll(tickets)}
	} else {
		clusters = ClusterTickets(tickets, e.cfg.EpsKm, e.cfg.MinSamples)
	}
	if len(clusters) == 0 {
		return nil, fmt.Errorf("%w: clusterer produced no clusters for %d tickets", ErrInternal, len(tickets))
	}
	for i := range clusters {
		if len(clusters[i].Tickets) == 0 {
			return nil, fmt.Errorf("%w: clusterer produced an empty cluster", ErrInternal)
		}
	}

	solved, partial := e.solveClusters(ctx, log, clusters, oracle, req.Strategy, deadline)

	stitchStart := e.cfg.Clock.Now()
	sequence := stitchClusters(ctx, solved, oracle)
	if !deadline.IsZero() && !stitchStart.After(deadline) && e.cfg.Clock.Now().After(deadline) {
		return nil, fmt.Errorf("%w: expired during stitching", ErrDeadline)
	}

	v := validateSequence(ctx, sequence, req.MaxHours*60, req.MaxPoints, oracle)

	route := e.assembleRoute(ctx, req, solved, v, oracle)
	if partial {
		route.Status = RoutePartial
	}

	if id, err := e.cfg.Store.SaveRoute(ctx, route); err != nil {
		// Persistence is best-effort; the computed route is still valid.
		log.Warn("failed to persist route", "error", err)
	} else {
		route.ID = id
	}

	hits, misses := oracle.Stats()
	if e.cfg.CacheStats != nil {
		e.cfg.CacheStats(hits, misses)
	}
	log.Info("route optimized",
		"status", route.Status,
		"stops", len(route.Stops),
		"dropped", len(route.Dropped),
		"clusters", len(solved),
		"total_km", route.TotalDistanceKm,
		"total_minutes", route.TotalTimeMinutes,
		"cache_hits", hits,
		"cache_misses", misses,
	)
	return route, nil
}

// sanitize drops malformed tickets and strips dependencies that point at a
// missing ticket or one of another crew type, warning for each.
func (e *Engine) sanitize(log *slog.Logger, tickets []Ticket, crew CrewType) []Ticket {
	valid := tickets[:0]
	for i := range tickets {
		t := tickets[i]
		if t.Status != StatusOpen || t.CrewType != crew {
			// The store query should have filtered these; guard anyway.
			continue
		}
		if err := t.Validate(); err != nil {
			log.Warn("skipping malformed ticket", "ticket_id", t.ID, "error", err)
			continue
		}
		valid = append(valid, t)
	}

	present := make(map[string]bool, len(valid))
	for i := range valid {
		present[valid[i].ID] = true
	}
	for i := range valid {
		// Filter into a fresh slice: the backing array is shared with the
		// ticket the store handed out, which must stay untouched.
		var deps []string
		for _, dep := range valid[i].Dependencies {
			if !present[dep] {
				log.Warn("ignoring dependency on missing or foreign-crew ticket",
					"ticket_id", valid[i].ID, "dependency_id", dep)
				continue
			}
			deps = append(deps, dep)
		}
		valid[i].Dependencies = deps
	}
	return valid
}

// solveClusters runs the intra-cluster solver across a bounded worker pool.
// Each worker owns an immutable snapshot of its cluster; results land in a
// per-index slot so completion order cannot affect the output. A worker that
// finds the deadline already expired falls back to the cluster's existing
// order and flags the run partial.
func (e *Engine) solveClusters(ctx context.Context, log *slog.Logger, clusters []Cluster, oracle *Oracle, strategy Strategy, deadline time.Time) ([]solvedCluster, bool) {
	solved := make([]solvedCluster, len(clusters))
	var partial atomic.Bool

	workers := e.cfg.MaxConcurrency
	if len(clusters) < workers {
		workers = len(clusters)
	}

	g := &errgroup.Group{}
	g.SetLimit(workers)
	for i := range clusters {
		g.Go(func() error {
			c := clusters[i]
			defer func() {
				if r := recover(); r != nil {
					// A solver bug must not sink the whole run; degrade this
					// cluster to its unrefined order.
					log.Error("cluster solver panicked, degrading to unrefined order",
						"cluster", i, "panic", r)
					solved[i] = solvedCluster{cluster: c, tour: c.Tickets}
				}
			}()

			if !deadline.IsZero() && e.cfg.Clock.Now().After(deadline) {
				partial.Store(true)
				solved[i] = solvedCluster{cluster: c, tour: c.Tickets}
				return nil
			}

			tour := solveTour(ctx, c, oracle, strategy, e.cfg.Clock, deadline)
			if !deadline.IsZero() && e.cfg.Clock.Now().After(deadline) {
				partial.Store(true)
			}
			solved[i] = solvedCluster{cluster: c, tour: tour}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures degrade per cluster

	return solved, partial.Load()
}

// assembleRoute turns the validation outcome into the final Route.
func (e *Engine) assembleRoute(ctx context.Context, req Request, solved []solvedCluster, v validation, oracle *Oracle) *Route {
	route := &Route{
		CrewType:                 req.CrewType,
		Date:                     req.Date,
		Status:                   RouteOK,
		Dropped:                  v.dropped,
		ReorderedForDependencies: v.reordered,
		TotalTimeMinutes:         v.total,
	}

	clusterOf := make(map[string]int, len(v.kept))
	for ci := range solved {
		for i := range solved[ci].tour {
			clusterOf[solved[ci].tour[i].ID] = ci
		}
	}

	stats := &route.Statistics
	served := make(map[int]bool)
	for i := range v.kept {
		t := &v.kept[i]
		route.Stops = append(route.Stops, Stop{
			TicketID:             t.ID,
			ArrivalOffsetMinutes: v.offsets[i],
		})
		served[clusterOf[t.ID]] = true

		switch t.Priority {
		case PriorityEmergency:
			stats.Emergencies++
		case PriorityUrgent:
			stats.Urgent++
		}
		stats.ComplaintsResolved += t.ComplaintsCount
		if t.MainRoad {
			stats.MainRoads++
		}
		if t.NearCriticalLocation {
			stats.CriticalLocations++
		}
		if t.RequiresRoadBlock {
			stats.RoadBlocksNeeded++
		}
	}
	stats.Points = len(v.kept)
	stats.ClustersServed = len(served)
	stats.EmergencySwapsApplied = v.swapApplied
	stats.EmergencySwapsInfeasible = v.swapInfeasible
	for _, d := range v.dropped {
		if d.Reason == DropBudget {
			stats.SkippedBudget++
		}
	}

	// Reported distance closes the loop back to the first stop, matching the
	// historical dispatch reports crews reconcile against.
	for i := 0; i+1 < len(v.kept); i++ {
		route.TotalDistanceKm += oracle.Km(ctx, &v.kept[i], &v.kept[i+1])
	}
	if len(v.kept) > 1 {
		route.TotalDistanceKm += oracle.Km(ctx, &v.kept[len(v.kept)-1], &v.kept[0])
	}

	return route
}

// buildClusterFromAll wraps the full ticket set in one cluster, used by the
// urgency_first strategy.
func buildClusterFromAll(tickets []Ticket) Cluster {
	idx := make([]int, len(tickets))
	for i := range idx {
		idx[i] = i
	}
	return buildCluster(tickets, idx)
}
