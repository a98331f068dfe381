package optimizer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultAvgSpeedKmh is the assumed crew travel speed when none is configured.
const DefaultAvgSpeedKmh = 30.0

// DistanceFunc computes the distance in kilometers between two coordinates.
// The default is great-circle; callers may plug a road-network provider.
type DistanceFunc func(aLat, aLon, bLat, bLon float64) float64

// CacheStore is an optional external distance cache (a key-value store or the
// persistent store). Entries never invalidate within a run.
type CacheStore interface {
	// GetDistance returns the cached (km, minutes) for a canonical key, with
	// ok=false on a miss.
	GetDistance(ctx context.Context, key string) (km, minutes float64, ok bool, err error)
	// PutDistance stores the computed pair under a canonical key.
	PutDistance(ctx context.Context, key string, km, minutes float64) error
}

// DistanceCacheKey returns the canonical cache key for a ticket pair: the two
// ids in lexicographic order, separated by ':'.
func DistanceCacheKey(aID, bID string) string {
	if bID < aID {
		aID, bID = bID, aID
	}
	return aID + ":" + bID
}

type distEntry struct {
	km, minutes float64
}

// Oracle returns pairwise distance (km) and travel time (minutes) between
// tickets, memoizing results in memory and, when configured, in an external
// cache store. Safe for concurrent use; duplicate computation on racing
// writers is harmless because the value for a key never changes within a run.
type Oracle struct {
	speedKmh float64
	distFn   DistanceFunc
	store    CacheStore
	log      *slog.Logger

	mu  sync.RWMutex
	mem map[string]distEntry

	hits        atomic.Uint64
	misses      atomic.Uint64
	storeFailed atomic.Bool // transient store failure: compute-only for the rest of the run
}

// NewOracle builds a distance oracle. distFn and store may be nil; speedKmh
// and log fall back to defaults when zero-valued.
func NewOracle(speedKmh float64, distFn DistanceFunc, store CacheStore, log *slog.Logger) *Oracle {
	if speedKmh <= 0 {
		speedKmh = DefaultAvgSpeedKmh
	}
	if distFn == nil {
		distFn = haversineKm
	}
	if log == nil {
		log = slog.Default()
	}
	return &Oracle{
		speedKmh: speedKmh,
		distFn:   distFn,
		store:    store,
		log:      log,
		mem:      make(map[string]distEntry),
	}
}

// Distance returns (km, minutes) between two tickets. Symmetric;
// Distance(a,a) = (0,0).
func (o *Oracle) Distance(ctx context.Context, a, b *Ticket) (float64, float64) {
	if a.ID == b.ID {
		return 0, 0
	}
	key := DistanceCacheKey(a.ID, b.ID)

	o.mu.RLock()
	e, ok := o.mem[key]
	o.mu.RUnlock()
	if ok {
		o.hits.Add(1)
		return e.km, e.minutes
	}
	o.misses.Add(1)

	if o.store != nil && !o.storeFailed.Load() {
		km, minutes, ok, err := o.store.GetDistance(ctx, key)
		if err != nil {
			o.failStore("distance cache read failed", err)
		} else if ok {
			o.remember(key, km, minutes)
			return km, minutes
		}
	}

	km := o.distFn(a.Lat, a.Lon, b.Lat, b.Lon)
	minutes := o.Minutes(km)
	o.remember(key, km, minutes)

	if o.store != nil && !o.storeFailed.Load() {
		if err := o.store.PutDistance(ctx, key, km, minutes); err != nil {
			o.failStore("distance cache write failed", err)
		}
	}
	return km, minutes
}

// Km returns only the kilometer component of Distance.
func (o *Oracle) Km(ctx context.Context, a, b *Ticket) float64 {
	km, _ := o.Distance(ctx, a, b)
	return km
}

// TravelMinutes returns only the travel-time component of Distance.
func (o *Oracle) TravelMinutes(ctx context.Context, a, b *Ticket) float64 {
	_, minutes := o.Distance(ctx, a, b)
	return minutes
}

// Minutes converts a distance in km to travel minutes at the configured
// average speed.
func (o *Oracle) Minutes(km float64) float64 {
	return km / o.speedKmh * 60
}

// Matrix returns the symmetric travel-minute matrix for a ticket set,
// computed lazily through the memoizing cache.
func (o *Oracle) Matrix(ctx context.Context, tickets []Ticket) [][]float64 {
	n := len(tickets)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			_, minutes := o.Distance(ctx, &tickets[i], &tickets[j])
			m[i][j] = minutes
			m[j][i] = minutes
		}
	}
	return m
}

// Stats returns the cumulative in-memory cache hit and miss counts.
func (o *Oracle) Stats() (hits, misses uint64) {
	return o.hits.Load(), o.misses.Load()
}

func (o *Oracle) remember(key string, km, minutes float64) {
	o.mu.Lock()
	o.mem[key] = distEntry{km: km, minutes: minutes}
	o.mu.Unlock()
}

// failStore switches the oracle to compute-only mode for the rest of the run,
// logging the cause once.
func (o *Oracle) failStore(msg string, err error) {
	if o.storeFailed.CompareAndSwap(false, true) {
		o.log.Warn(msg+", falling back to compute-only for this run", "error", err)
	}
}
