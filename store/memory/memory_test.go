package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanworks/dispatch/optimizer"
	"github.com/urbanworks/dispatch/store/memory"
)

func ticket(id string, lat, lon float64) optimizer.Ticket {
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

func TestCreateAndGetTicket(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := t.Context()

	require.NoError(t, s.CreateTicket(ctx, ticket("t1", 0, 0)))
	assert.Error(t, s.CreateTicket(ctx, ticket("t1", 0, 0)))

	got, err := s.GetTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)

	_, err = s.GetTicket(ctx, "missing")
	assert.ErrorIs(t, err, optimizer.ErrNotFound)
}

func TestListOpenTicketsFilters(t *testing.T) {
	t.Parallel()
	s := memory.New()

	done := ticket("done", 0, 0)
	done.Status = optimizer.StatusDone
	electric := ticket("electric", 0, 0)
	electric.CrewType = optimizer.CrewElectric
	s.PutTickets(ticket("b", 0, 0), ticket("a", 0, 0), done, electric)

	open, err := s.ListOpenTickets(t.Context(), optimizer.CrewAsphalt)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].ID)
	assert.Equal(t, "b", open[1].ID)
}

func TestListNearbyOrdersByDistance(t *testing.T) {
	t.Parallel()
	s := memory.New()
	s.PutTickets(
		ticket("far", 0.5, 0),  // ~55.6 km
		ticket("mid", 0.01, 0), // ~1.1 km
		ticket("near", 0, 0),
	)

	got, err := s.ListNearbyTickets(t.Context(), 0, 0, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)
}

func TestUpdateTicketStatus(t *testing.T) {
	t.Parallel()
	s := memory.New()
	s.PutTicket(ticket("t1", 0, 0))
	ctx := t.Context()

	require.NoError(t, s.UpdateTicketStatus(ctx, "t1", optimizer.StatusInProgress))
	got, err := s.GetTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, optimizer.StatusInProgress, got.Status)

	assert.ErrorIs(t, s.UpdateTicketStatus(ctx, "missing", optimizer.StatusDone), optimizer.ErrNotFound)
}

func TestRouteRoundTrip(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := t.Context()

	id, err := s.SaveRoute(ctx, &optimizer.Route{
		CrewType: optimizer.CrewAsphalt,
		Date:     "2026-08-24",
		Status:   optimizer.RouteOK,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetRoute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	listed, err := s.ListRoutes(ctx, optimizer.CrewAsphalt, "2026-08-24")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	listed, err = s.ListRoutes(ctx, optimizer.CrewElectric, "")
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = s.GetRoute(ctx, "missing")
	assert.ErrorIs(t, err, optimizer.ErrNotFound)
}

func TestDistanceCacheFailureToggle(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := t.Context()
	key := optimizer.DistanceCacheKey("b", "a")

	require.NoError(t, s.PutDistance(ctx, key, 10, 20))
	km, minutes, ok, err := s.GetDistance(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, km)
	assert.Equal(t, 20.0, minutes)
	assert.Equal(t, 1, s.DistanceCount())

	s.FailDistanceCache = true
	_, _, _, err = s.GetDistance(ctx, key)
	assert.Error(t, err)
	assert.Error(t, s.PutDistance(ctx, key, 1, 2))
}
