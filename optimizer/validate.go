package optimizer

import (
	"context"
	"sort"
)

// Feasibility validation of the stitched sequence: repair dependency order,
// drop unsatisfiable tickets, walk the shift budget forward, and give dropped
// emergencies one greedy chance to displace kept low-urgency work.

// validation is the outcome of validateSequence.
type validation struct {
	kept    []Ticket
	offsets []float64 // planned arrival offset per kept ticket, minutes
	dropped []DroppedTicket
	// reordered lists tickets moved later to satisfy a dependency.
	reordered []string
	// total is the accumulated service+travel minutes of the kept sequence.
	total          float64
	swapApplied    int
	swapInfeasible int
}

// validateSequence enforces dependency precedence and the shift budget over
// the stitched sequence. maxMinutes is the shift budget; maxPoints caps the
// number of visits (0 means no cap).
func validateSequence(ctx context.Context, seq []Ticket, maxMinutes float64, maxPoints int, o *Oracle) validation {
	var v validation
	if len(seq) == 0 {
		return v
	}

	seq, cycleDropped := breakCycles(seq)
	v.dropped = append(v.dropped, cycleDropped...)

	seq, missingDropped := dropMissingDeps(seq)
	v.dropped = append(v.dropped, missingDropped...)

	seq, v.reordered = repairOrder(seq)

	v.kept, v.offsets, v.total = walkBudget(ctx, seq, maxMinutes, maxPoints, o)
	for _, t := range seq[len(v.kept):] {
		v.dropped = append(v.dropped, DroppedTicket{TicketID: t.ID, Reason: DropBudget})
	}

	rescueEmergencies(ctx, &v, seq, maxMinutes, o)
	return v
}

// breakCycles detects dependency cycles among the sequence tickets with a
// DFS coloring pass and drops the largest ticket id in each cycle until the
// graph is acyclic. The largest-id rule is arbitrary but deterministic.
// Surviving tickets that depended on the victim have that edge forgiven, so
// one drop per cycle suffices.
func breakCycles(seq []Ticket) ([]Ticket, []DroppedTicket) {
	var dropped []DroppedTicket

	for {
		byID := make(map[string]*Ticket, len(seq))
		for i := range seq {
			byID[seq[i].ID] = &seq[i]
		}

		cycle := findCycle(seq, byID)
		if cycle == nil {
			return seq, dropped
		}

		victim := cycle[0]
		for _, id := range cycle[1:] {
			if id > victim {
				victim = id
			}
		}
		dropped = append(dropped, DroppedTicket{TicketID: victim, Reason: DropDependencyCycle})
		seq = removeTicket(seq, victim)
		for i := range seq {
			seq[i].Dependencies = stripDep(seq[i].Dependencies, victim)
		}
	}
}

// stripDep returns deps without the given id, allocating a fresh slice so the
// caller's tickets are not mutated through shared backing arrays.
func stripDep(deps []string, id string) []string {
	var out []string
	for _, d := range deps {
		if d != id {
			out = append(out, d)
		}
	}
	return out
}

// findCycle returns the ids of one dependency cycle, or nil. Edges run from
// a ticket to each of its dependencies.
func findCycle(seq []Ticket, byID map[string]*Ticket) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(seq))

	var path []string
	var dfs func(id string) []string
	dfs = func(id string) []string {
		color[id] = gray
		path = append(path, id)
		t := byID[id]
		for _, dep := range t.Dependencies {
			dt, ok := byID[dep]
			if !ok {
				continue // missing deps are handled separately
			}
			switch color[dt.ID] {
			case gray:
				// Back edge: slice the cycle out of the current path.
				for i, pid := range path {
					if pid == dt.ID {
						return append([]string(nil), path[i:]...)
					}
				}
			case white:
				if c := dfs(dt.ID); c != nil {
					return c
				}
			}
		}
		color[id] = black
		path = path[:len(path)-1]
		return nil
	}

	for i := range seq {
		if color[seq[i].ID] == white {
			path = path[:0]
			if c := dfs(seq[i].ID); c != nil {
				return c
			}
		}
	}
	return nil
}

// dropMissingDeps removes tickets depending on an id absent from the
// sequence (the dependency was filtered earlier, e.g. for bad data).
// Dropping a ticket can orphan its own dependents, so iterate to fixpoint.
func dropMissingDeps(seq []Ticket) ([]Ticket, []DroppedTicket) {
	var dropped []DroppedTicket
	for {
		present := make(map[string]bool, len(seq))
		for i := range seq {
			present[seq[i].ID] = true
		}
		victim := ""
		for i := range seq {
			for _, dep := range seq[i].Dependencies {
				if !present[dep] {
					victim = seq[i].ID
					break
				}
			}
			if victim != "" {
				break
			}
		}
		if victim == "" {
			return seq, dropped
		}
		dropped = append(dropped, DroppedTicket{TicketID: victim, Reason: DropDependencyMissing})
		seq = removeTicket(seq, victim)
	}
}

// repairOrder moves each ticket that precedes one of its dependencies to the
// earliest position after all of them, preserving relative order otherwise.
// The input must be acyclic with all dependencies present.
func repairOrder(seq []Ticket) ([]Ticket, []string) {
	pos := make(map[string]int, len(seq))
	for i := range seq {
		pos[seq[i].ID] = i
	}

	needsMove := func(t *Ticket, at int) bool {
		for _, dep := range t.Dependencies {
			if pos[dep] > at {
				return true
			}
		}
		return false
	}

	var moved []string
	movedSet := make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(seq); i++ {
			if !needsMove(&seq[i], i) {
				continue
			}
			t := seq[i]
			last := i
			for _, dep := range t.Dependencies {
				if dp := pos[dep]; dp > last {
					last = dp
				}
			}
			// Shift the window left and reinsert t right after its last dep.
			copy(seq[i:last], seq[i+1:last+1])
			seq[last] = t
			for j := i; j <= last; j++ {
				pos[seq[j].ID] = j
			}
			if !movedSet[t.ID] {
				movedSet[t.ID] = true
				moved = append(moved, t.ID)
			}
			changed = true
		}
	}
	sort.Strings(moved)
	return seq, moved
}

// walkBudget accumulates travel and service time along the sequence and
// keeps the longest prefix that fits the shift budget and the point cap.
func walkBudget(ctx context.Context, seq []Ticket, maxMinutes float64, maxPoints int, o *Oracle) ([]Ticket, []float64, float64) {
	var (
		kept    []Ticket
		offsets []float64
		total   float64
	)
	for i := range seq {
		if maxPoints > 0 && len(kept) >= maxPoints {
			break
		}
		arrival := total
		if len(kept) > 0 {
			arrival += o.TravelMinutes(ctx, &kept[len(kept)-1], &seq[i])
		}
		next := arrival + float64(seq[i].ServiceMinutes)
		if next > maxMinutes {
			break
		}
		kept = append(kept, seq[i])
		offsets = append(offsets, arrival)
		total = next
	}
	return kept, offsets, total
}

// rescueEmergencies swaps budget-dropped emergencies into the route in place
// of kept lower-urgency tickets, greedily and at most maxSwapRepairs times.
// A swap must keep the total within budget, must not break dependency
// precedence, and must leave every dependency of the rescued emergency
// (followed transitively) in the route.
func rescueEmergencies(ctx context.Context, v *validation, seq []Ticket, maxMinutes float64, o *Oracle) {
	droppedBudget := make(map[string]bool)
	for _, d := range v.dropped {
		if d.Reason == DropBudget {
			droppedBudget[d.TicketID] = true
		}
	}

	var rescue []Ticket
	for i := range seq {
		if droppedBudget[seq[i].ID] && seq[i].Priority == PriorityEmergency {
			rescue = append(rescue, seq[i])
		}
	}
	if len(rescue) == 0 {
		return
	}

	byID := make(map[string]*Ticket, len(seq))
	for i := range seq {
		byID[seq[i].ID] = &seq[i]
	}
	depsSatisfied := func(e *Ticket, trial []Ticket) bool {
		present := make(map[string]bool, len(trial))
		for i := range trial {
			present[trial[i].ID] = true
		}
		seen := make(map[string]bool)
		stack := append([]string(nil), e.Dependencies...)
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[id] {
				continue
			}
			seen[id] = true
			if !present[id] {
				return false
			}
			if dt, ok := byID[id]; ok {
				stack = append(stack, dt.Dependencies...)
			}
		}
		return true
	}

	keptDependents := func(id string) bool {
		for i := range v.kept {
			for _, dep := range v.kept[i].Dependencies {
				if dep == id {
					return true
				}
			}
		}
		return false
	}

	for _, e := range rescue {
		if v.swapApplied >= maxSwapRepairs {
			break
		}
		// Candidate victims from least urgent kept ticket upward.
		swapped := false
		for k := len(v.kept) - 1; k >= 0; k-- {
			victim := &v.kept[k]
			if victim.Priority == PriorityEmergency {
				continue
			}
			if !lessUrgent(&e, victim) {
				continue
			}
			if keptDependents(victim.ID) {
				continue
			}
			trial := make([]Ticket, len(v.kept))
			copy(trial, v.kept)
			trial[k] = e
			// Rejects both evicting the emergency's own prerequisite and
			// routing it while a prerequisite stays budget-dropped.
			if !depsSatisfied(&e, trial) {
				continue
			}
			if !depsRespected(trial) {
				continue
			}
			offsets, total, ok := sequenceWithinBudget(ctx, trial, maxMinutes, o)
			if !ok {
				continue
			}
			v.kept = trial
			v.offsets = offsets
			v.total = total
			v.swapApplied++
			v.dropped = swapManifest(v.dropped, e.ID, victim.ID)
			swapped = true
			break
		}
		if !swapped {
			v.swapInfeasible++
		}
	}
}

// sequenceWithinBudget recomputes arrival offsets for a candidate sequence
// and reports whether it fits the budget.
func sequenceWithinBudget(ctx context.Context, seq []Ticket, maxMinutes float64, o *Oracle) ([]float64, float64, bool) {
	offsets := make([]float64, len(seq))
	var total float64
	for i := range seq {
		arrival := total
		if i > 0 {
			arrival += o.TravelMinutes(ctx, &seq[i-1], &seq[i])
		}
		offsets[i] = arrival
		total = arrival + float64(seq[i].ServiceMinutes)
		if total > maxMinutes {
			return nil, 0, false
		}
	}
	return offsets, total, true
}

// swapManifest replaces the rescued ticket's budget-drop entry with one for
// the displaced victim.
func swapManifest(dropped []DroppedTicket, rescuedID, victimID string) []DroppedTicket {
	out := dropped[:0]
	for _, d := range dropped {
		if d.TicketID == rescuedID && d.Reason == DropBudget {
			continue
		}
		out = append(out, d)
	}
	return append(out, DroppedTicket{TicketID: victimID, Reason: DropBudget})
}

// removeTicket deletes the ticket with the given id, preserving order.
func removeTicket(seq []Ticket, id string) []Ticket {
	out := seq[:0]
	for i := range seq {
		if seq[i].ID != id {
			out = append(out, seq[i])
		}
	}
	return out
}
