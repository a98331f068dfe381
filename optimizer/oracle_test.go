package optimizer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCacheStore is a map-backed CacheStore with an optional injected error.
type fakeCacheStore struct {
	mu      sync.Mutex
	entries map[string][2]float64
	err     error
	gets    int
	puts    int
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{entries: make(map[string][2]float64)}
}

func (f *fakeCacheStore) GetDistance(_ context.Context, key string) (float64, float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return 0, 0, false, f.err
	}
	e, ok := f.entries[key]
	return e[0], e[1], ok, nil
}

func (f *fakeCacheStore) PutDistance(_ context.Context, key string, km, minutes float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.err != nil {
		return f.err
	}
	f.entries[key] = [2]float64{km, minutes}
	return nil
}

func TestDistanceCacheKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a:b", DistanceCacheKey("a", "b"))
	assert.Equal(t, "a:b", DistanceCacheKey("b", "a"))
	assert.Equal(t, "t1:t10", DistanceCacheKey("t10", "t1"))
}

func TestOracleDistance(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	o := NewOracle(0, nil, nil, nil)
	a := testTicket("a", 0, 0)
	b := testTicket("b", 1, 1)

	km, minutes := o.Distance(ctx, &a, &a)
	assert.Zero(t, km)
	assert.Zero(t, minutes)

	km, minutes = o.Distance(ctx, &a, &b)
	assert.InDelta(t, 157.25, km, 0.05)
	assert.InDelta(t, km/DefaultAvgSpeedKmh*60, minutes, 1e-9)

	km2, minutes2 := o.Distance(ctx, &b, &a)
	assert.Equal(t, km, km2)
	assert.Equal(t, minutes, minutes2)
}

func TestOracleMemoizes(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	calls := 0
	o := NewOracle(30, func(aLat, aLon, bLat, bLon float64) float64 {
		calls++
		return haversineKm(aLat, aLon, bLat, bLon)
	}, nil, nil)

	a := testTicket("a", 0, 0)
	b := testTicket("b", 1, 1)
	o.Distance(ctx, &a, &b)
	o.Distance(ctx, &b, &a)
	o.Distance(ctx, &a, &b)
	assert.Equal(t, 1, calls)

	hits, misses := o.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestOracleExternalStore(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	store := newFakeCacheStore()
	a := testTicket("a", 0, 0)
	b := testTicket("b", 1, 1)

	first := NewOracle(30, nil, store, nil)
	km, minutes := first.Distance(ctx, &a, &b)
	assert.Equal(t, 1, store.puts)

	// A fresh oracle with an empty in-memory map hits the shared store.
	second := NewOracle(30, nil, store, nil)
	km2, minutes2 := second.Distance(ctx, &a, &b)
	assert.Equal(t, km, km2)
	assert.Equal(t, minutes, minutes2)
	assert.Equal(t, 1, store.puts, "store hit must not recompute or rewrite")
}

func TestOracleStoreFailureFallsBackToCompute(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	store := newFakeCacheStore()
	store.err = errors.New("connection refused")
	o := NewOracle(30, nil, store, nil)

	a := testTicket("a", 0, 0)
	b := testTicket("b", 1, 1)
	c := testTicket("c", 2, 2)

	km, _ := o.Distance(ctx, &a, &b)
	assert.InDelta(t, 157.25, km, 0.05)

	// After the first failure the oracle stops talking to the store.
	before := store.gets + store.puts
	o.Distance(ctx, &a, &c)
	o.Distance(ctx, &b, &c)
	assert.Equal(t, before, store.gets+store.puts)
}

func TestOracleMatrix(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	tickets := []Ticket{
		testTicket("a", 0, 0),
		testTicket("b", 0, 1),
		testTicket("c", 1, 0),
	}
	o := NewOracle(30, nil, nil, nil)
	m := o.Matrix(ctx, tickets)
	require.Len(t, m, 3)

	for i := range m {
		assert.Zero(t, m[i][i])
		for j := range m {
			assert.Equal(t, m[i][j], m[j][i])
		}
	}
	assert.Positive(t, m[0][1])
}
