package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTicket returns a valid open asphalt ticket at the given location with
// sensible defaults; callers tweak fields directly.
func testTicket(id string, lat, lon float64) Ticket {
	return Ticket{
		ID:             id,
		Lat:            lat,
		Lon:            lon,
		ProblemType:    ProblemPothole,
		Priority:       PriorityMedium,
		CrewType:       CrewAsphalt,
		ServiceMinutes: 30,
		Status:         StatusOpen,
	}
}

func TestScorePinnedValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		ticket Ticket
		want   float64
	}{
		{
			name: "emergency pothole, no flags",
			ticket: Ticket{
				Priority:    PriorityEmergency,
				ProblemType: ProblemPothole,
			},
			want: 1040, // 1000 + 40
		},
		{
			name: "low broken sidewalk, small",
			ticket: Ticket{
				Priority:    PriorityLow,
				ProblemType: ProblemBrokenSidewalk,
				ProblemSize: SizeSmall,
			},
			want: 21, // (10 + 20) * 0.7
		},
		{
			name: "urgent water leak, every impact flag",
			ticket: Ticket{
				Priority:             PriorityUrgent,
				ProblemType:          ProblemWaterLeak,
				AffectsTraffic:       true,
				AffectsCommerce:      true,
				NearCriticalLocation: true,
				MainRoad:             true,
			},
			want: 990, // 500 + 100 + 150 + 60 + 100 + 80
		},
		{
			name: "high exposed wiring, large",
			ticket: Ticket{
				Priority:    PriorityHigh,
				ProblemType: ProblemExposedWiring,
				ProblemSize: SizeLarge,
			},
			want: 600, // (200 + 200) * 1.5
		},
		{
			name: "complaints capped at 50",
			ticket: Ticket{
				Priority:        PriorityMedium,
				ProblemType:     ProblemDarkLamp,
				ComplaintsCount: 200,
			},
			want: 360, // 50 + 60 + 50*5
		},
		{
			name: "medium size is neutral",
			ticket: Ticket{
				Priority:    PriorityMedium,
				ProblemType: ProblemCloggedDrain,
				ProblemSize: SizeMedium,
			},
			want: 90, // 50 + 40
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tc.want, Score(&tc.ticket), 1e-9)
		})
	}
}

func TestScoreEmergencyDominatesBonuses(t *testing.T) {
	t.Parallel()

	// A bare emergency must outrank the most decorated urgent ticket.
	bareEmergency := Ticket{Priority: PriorityEmergency, ProblemType: ProblemBrokenSidewalk}
	maxedUrgent := Ticket{
		Priority:             PriorityUrgent,
		ProblemType:          ProblemExposedWiring,
		AffectsTraffic:       true,
		AffectsCommerce:      true,
		NearCriticalLocation: true,
		MainRoad:             true,
		ComplaintsCount:      1000,
	}
	assert.Greater(t, Score(&bareEmergency), Score(&maxedUrgent))
}

func TestSortByUrgencyTieBreaks(t *testing.T) {
	t.Parallel()

	mk := func(id string, prio Priority, complaints int, score float64) Ticket {
		t := testTicket(id, 0, 0)
		t.Priority = prio
		t.ComplaintsCount = complaints
		t.UrgencyScore = score
		return t
	}

	tickets := []Ticket{
		mk("d", PriorityLow, 0, 100),
		mk("c", PriorityHigh, 2, 100),  // same score: priority rank wins
		mk("b", PriorityHigh, 5, 100),  // same score+rank: complaints win
		mk("a2", PriorityHigh, 5, 100), // full tie: id ascending
		mk("a1", PriorityLow, 0, 900),  // score dominates everything
	}
	SortByUrgency(tickets)

	got := make([]string, len(tickets))
	for i, tk := range tickets {
		got[i] = tk.ID
	}
	require.Equal(t, []string{"a1", "a2", "b", "c", "d"}, got)
}

func TestScoreAllPopulatesAdvisoryScore(t *testing.T) {
	t.Parallel()

	tickets := []Ticket{testTicket("t1", 0, 0), testTicket("t2", 0, 0)}
	tickets[1].Priority = PriorityEmergency
	ScoreAll(tickets)

	assert.Equal(t, Score(&tickets[0]), tickets[0].UrgencyScore)
	assert.Equal(t, Score(&tickets[1]), tickets[1].UrgencyScore)
	assert.Greater(t, tickets[1].UrgencyScore, tickets[0].UrgencyScore)
}

func TestMostUrgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, mostUrgent(nil))

	tickets := []Ticket{testTicket("t1", 0, 0), testTicket("t2", 0, 0), testTicket("t3", 0, 0)}
	tickets[2].Priority = PriorityEmergency
	ScoreAll(tickets)
	assert.Equal(t, 2, mostUrgent(tickets))
}
