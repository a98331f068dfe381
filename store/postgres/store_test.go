package postgres_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/urbanworks/dispatch/optimizer"
	"github.com/urbanworks/dispatch/store/postgres"
)

// startStore launches a throwaway PostGIS container, runs the migrations and
// returns a connected store.
func startStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed store tests in short mode")
	}
	ctx := t.Context()

	container, err := tcpostgres.Run(ctx, "postgis/postgis:16-3.4",
		tcpostgres.WithDatabase("dispatch_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(terminateCtx)
	})

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := slog.New(slog.DiscardHandler)
	require.NoError(t, postgres.RunMigrations(ctx, log, connString))

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return postgres.New(pool, log)
}

func sampleTicket(id string, lat, lon float64) optimizer.Ticket {
	return optimizer.Ticket{
		ID:             id,
		Lat:            lat,
		Lon:            lon,
		ProblemType:    optimizer.ProblemPothole,
		Priority:       optimizer.PriorityMedium,
		CrewType:       optimizer.CrewAsphalt,
		ServiceMinutes: 30,
		Status:         optimizer.StatusOpen,
	}
}

func TestTicketRoundTrip(t *testing.T) {
	store := startStore(t)
	ctx := t.Context()

	in := sampleTicket("t1", -23.55, -46.63)
	in.Priority = optimizer.PriorityUrgent
	in.Dependencies = []string{"t0"}
	in.ComplaintsCount = 7
	in.MainRoad = true
	in.UrgencyScore = 655
	require.NoError(t, store.CreateTicket(ctx, in))

	got, err := store.GetTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = store.GetTicket(ctx, "missing")
	assert.ErrorIs(t, err, optimizer.ErrNotFound)

	require.NoError(t, store.UpdateTicketStatus(ctx, "t1", optimizer.StatusDone))
	got, err = store.GetTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, optimizer.StatusDone, got.Status)

	err = store.UpdateTicketStatus(ctx, "missing", optimizer.StatusDone)
	assert.ErrorIs(t, err, optimizer.ErrNotFound)
}

func TestListOpenTicketsFiltersByCrewAndStatus(t *testing.T) {
	store := startStore(t)
	ctx := t.Context()

	open := sampleTicket("open-1", 0, 0)
	done := sampleTicket("done-1", 0, 0)
	done.Status = optimizer.StatusDone
	electric := sampleTicket("electric-1", 0, 0)
	electric.CrewType = optimizer.CrewElectric
	for _, tk := range []optimizer.Ticket{open, done, electric} {
		require.NoError(t, store.CreateTicket(ctx, tk))
	}

	tickets, err := store.ListOpenTickets(ctx, optimizer.CrewAsphalt)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "open-1", tickets[0].ID)

	all, err := store.ListTickets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListNearbyTickets(t *testing.T) {
	store := startStore(t)
	ctx := t.Context()

	near := sampleTicket("near", -23.55, -46.63)
	mid := sampleTicket("mid", -23.558, -46.63) // ~890 m south
	far := sampleTicket("far", -23.7, -46.63)   // ~17 km south
	for _, tk := range []optimizer.Ticket{far, mid, near} {
		require.NoError(t, store.CreateTicket(ctx, tk))
	}

	tickets, err := store.ListNearbyTickets(ctx, -23.55, -46.63, 2)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "near", tickets[0].ID)
	assert.Equal(t, "mid", tickets[1].ID)
}

func TestRouteRoundTrip(t *testing.T) {
	store := startStore(t)
	ctx := t.Context()

	route := &optimizer.Route{
		CrewType: optimizer.CrewAsphalt,
		Date:     "2026-08-24",
		Stops: []optimizer.Stop{
			{TicketID: "a", ArrivalOffsetMinutes: 0},
			{TicketID: "b", ArrivalOffsetMinutes: 42.5},
		},
		TotalDistanceKm:  12.3,
		TotalTimeMinutes: 72.5,
		Statistics:       optimizer.RouteStatistics{Points: 2, ClustersServed: 1},
		Dropped: []optimizer.DroppedTicket{
			{TicketID: "c", Reason: optimizer.DropBudget},
		},
		ReorderedForDependencies: []string{"b"},
		Status:                   optimizer.RouteOK,
	}
	id, err := store.SaveRoute(ctx, route)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.GetRoute(ctx, id)
	require.NoError(t, err)
	want := *route
	want.ID = id
	assert.Equal(t, want, got)

	listed, err := store.ListRoutes(ctx, optimizer.CrewAsphalt, "2026-08-24")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	listed, err = store.ListRoutes(ctx, optimizer.CrewElectric, "")
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = store.GetRoute(ctx, "missing")
	assert.ErrorIs(t, err, optimizer.ErrNotFound)
}

func TestDistanceCache(t *testing.T) {
	store := startStore(t)
	ctx := t.Context()

	key := optimizer.DistanceCacheKey("b", "a")
	_, _, ok, err := store.GetDistance(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutDistance(ctx, key, 12.5, 25))

	km, minutes, ok, err := store.GetDistance(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.5, km)
	assert.Equal(t, 25.0, minutes)

	// Conflicting writes keep the first value.
	require.NoError(t, store.PutDistance(ctx, key, 99, 99))
	km, _, _, err = store.GetDistance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 12.5, km)
}
