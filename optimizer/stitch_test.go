package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solvedFrom(tickets ...Ticket) solvedCluster {
	idx := make([]int, len(tickets))
	for i := range idx {
		idx[i] = i
	}
	c := buildCluster(tickets, idx)
	return solvedCluster{cluster: c, tour: c.Tickets}
}

func TestStitchStartsAtMostUrgentCluster(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	// Three clusters on a line; the emergency lives in the middle one, so the
	// stitch starts there rather than at a geographic extreme.
	west := testTicket("west", 0, 0)
	mid := testTicket("mid", 0, 0.5)
	east := testTicket("east", 0, 1)
	mid.Priority = PriorityEmergency
	for _, tk := range []*Ticket{&west, &mid, &east} {
		tk.UrgencyScore = Score(tk)
	}

	o := NewOracle(30, nil, nil, nil)
	seq := stitchClusters(ctx, []solvedCluster{solvedFrom(west), solvedFrom(mid), solvedFrom(east)}, o)
	require.Len(t, seq, 3)
	assert.Equal(t, "mid", seq[0].ID)
	assert.ElementsMatch(t, []string{"west", "mid", "east"}, tourIDs(seq))
}

func TestStitchFollowsSpanningTreeProximity(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	// Urgency root at the west end; the preorder should then sweep eastward
	// because each MST edge attaches the nearest unvisited centroid.
	a := testTicket("a", 0, 0)
	b := testTicket("b", 0, 0.5)
	c := testTicket("c", 0, 1)
	d := testTicket("d", 0, 1.5)
	a.Priority = PriorityEmergency
	tickets := []*Ticket{&a, &b, &c, &d}
	for _, tk := range tickets {
		tk.UrgencyScore = Score(tk)
	}

	o := NewOracle(30, nil, nil, nil)
	seq := stitchClusters(ctx, []solvedCluster{solvedFrom(a), solvedFrom(b), solvedFrom(c), solvedFrom(d)}, o)
	require.Equal(t, []string{"a", "b", "c", "d"}, tourIDs(seq))
}

func TestStitchSmallInputs(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	o := NewOracle(30, nil, nil, nil)

	assert.Nil(t, stitchClusters(ctx, nil, o))

	only := solvedFrom(testTicket("only", 1, 1))
	seq := stitchClusters(ctx, []solvedCluster{only}, o)
	require.Equal(t, []string{"only"}, tourIDs(seq))
}

func TestRotateForEntryPicksNearestMember(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	exit := testTicket("exit", 0, 0.09)
	tour := []Ticket{
		testTicket("a", 0, 0),
		testTicket("b", 0, 0.05),
		testTicket("c", 0, 0.1),
	}
	o := NewOracle(30, nil, nil, nil)
	rotated := rotateForEntry(ctx, tour, &exit, o)
	require.Equal(t, []string{"c", "a", "b"}, tourIDs(rotated))
}

func TestRotateForEntryRespectsDependencies(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	exit := testTicket("exit", 0, 0.09)
	tour := []Ticket{
		testTicket("a", 0, 0),
		testTicket("b", 0, 0.05),
		testTicket("c", 0, 0.1),
	}
	// c depends on both others, so every rotation placing c before them is
	// rejected and the original entry point survives.
	tour[2].Dependencies = []string{"a", "b"}

	o := NewOracle(30, nil, nil, nil)
	rotated := rotateForEntry(ctx, tour, &exit, o)
	require.Equal(t, []string{"a", "b", "c"}, tourIDs(rotated))
}

func TestDepsRespected(t *testing.T) {
	t.Parallel()

	a := testTicket("a", 0, 0)
	b := testTicket("b", 0, 0)
	b.Dependencies = []string{"a"}

	assert.True(t, depsRespected([]Ticket{a, b}))
	assert.False(t, depsRespected([]Ticket{b, a}))

	// Dependencies outside the sequence are not this check's concern.
	c := testTicket("c", 0, 0)
	c.Dependencies = []string{"zz"}
	assert.True(t, depsRespected([]Ticket{c}))
}
