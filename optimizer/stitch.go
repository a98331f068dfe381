package optimizer

import (
	"container/heap"
	"context"
	"sort"
)

// Inter-cluster stitching: a minimum spanning tree over cluster centroids
// gives a cheap, spatially coherent visit order; a depth-first preorder from
// the cluster holding the globally most urgent ticket turns the tree into a
// sequence; cluster tours are then concatenated, rotating each tour so it is
// entered at the member closest to the previous cluster's exit.

// solvedCluster pairs a cluster with its computed tour.
type solvedCluster struct {
	cluster Cluster
	tour    []Ticket
}

// maxUrgency is the aggregate urgency of a cluster: its best member score.
func (s *solvedCluster) maxUrgency() float64 {
	best := 0.0
	for i := range s.tour {
		if s.tour[i].UrgencyScore > best {
			best = s.tour[i].UrgencyScore
		}
	}
	return best
}

// stitchClusters concatenates cluster tours into one sequence.
func stitchClusters(ctx context.Context, clusters []solvedCluster, o *Oracle) []Ticket {
	switch len(clusters) {
	case 0:
		return nil
	case 1:
		return clusters[0].tour
	}

	weights := centroidMinutes(clusters, o)
	root := rootCluster(clusters)
	parent := primMST(weights, root)
	order := preorder(clusters, weights, parent, root)

	var out []Ticket
	for _, ci := range order {
		tour := clusters[ci].tour
		if len(out) > 0 {
			tour = rotateForEntry(ctx, tour, &out[len(out)-1], o)
		}
		out = append(out, tour...)
	}
	return out
}

// centroidMinutes builds the complete travel-minute matrix over cluster
// centroids. Centroids are not tickets, so this bypasses the id-keyed cache
// and converts great-circle km directly.
func centroidMinutes(clusters []solvedCluster, o *Oracle) [][]float64 {
	n := len(clusters)
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			km := o.distFn(
				clusters[i].cluster.CentroidLat, clusters[i].cluster.CentroidLon,
				clusters[j].cluster.CentroidLat, clusters[j].cluster.CentroidLon,
			)
			m := o.Minutes(km)
			w[i][j] = m
			w[j][i] = m
		}
	}
	return w
}

// rootCluster returns the index of the cluster containing the globally most
// urgent ticket, so emergencies are touched early even when geographically
// off-center.
func rootCluster(clusters []solvedCluster) int {
	root, bestIdx := 0, -1
	var best *Ticket
	for ci := range clusters {
		tour := clusters[ci].tour
		for i := range tour {
			if bestIdx == -1 || lessUrgent(&tour[i], best) {
				root = ci
				bestIdx = i
				best = &tour[i]
			}
		}
	}
	return root
}

// mstEdge is a candidate edge in Prim's frontier heap.
type mstEdge struct {
	from, to int
	weight   float64
}

// edgeHeap is a min-heap of MST candidate edges ordered by weight, with the
// target index as a deterministic tie-break.
type edgeHeap []mstEdge

func (h edgeHeap) Len() int { return len(h) }
func (h edgeHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}
	return h[i].to < h[j].to
}
func (h edgeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *edgeHeap) Push(x any)   { *h = append(*h, x.(mstEdge)) }
func (h *edgeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// primMST grows a minimum spanning tree over the complete weight matrix from
// root, returning parent[i] for every vertex (parent[root] = -1).
func primMST(w [][]float64, root int) []int {
	n := len(w)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = -1
	}
	visited := make([]bool, n)
	visited[root] = true

	pq := &edgeHeap{}
	heap.Init(pq)
	for j := 0; j < n; j++ {
		if j != root {
			heap.Push(pq, mstEdge{from: root, to: j, weight: w[root][j]})
		}
	}

	for added := 1; added < n && pq.Len() > 0; {
		e := heap.Pop(pq).(mstEdge)
		if visited[e.to] {
			continue
		}
		visited[e.to] = true
		parent[e.to] = e.from
		added++
		for j := 0; j < n; j++ {
			if !visited[j] {
				heap.Push(pq, mstEdge{from: e.to, to: j, weight: w[e.to][j]})
			}
		}
	}
	return parent
}

// preorder produces the depth-first preorder of the MST. At each branch,
// children are visited in ascending edge weight, ties broken by descending
// aggregate urgency of the child cluster, then by index.
func preorder(clusters []solvedCluster, w [][]float64, parent []int, root int) []int {
	children := make(map[int][]int)
	for v, p := range parent {
		if p >= 0 {
			children[p] = append(children[p], v)
		}
	}
	for p, kids := range children {
		sort.Slice(kids, func(i, j int) bool {
			wi, wj := w[p][kids[i]], w[p][kids[j]]
			if wi != wj {
				return wi < wj
			}
			ui := clusters[kids[i]].maxUrgency()
			uj := clusters[kids[j]].maxUrgency()
			if ui != uj {
				return ui > uj
			}
			return kids[i] < kids[j]
		})
	}

	order := make([]int, 0, len(clusters))
	// Iterative DFS; push children in reverse so the sorted order pops first.
	stack := []int{root}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, v)
		kids := children[v]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return order
}

// rotateForEntry rotates a cluster tour so it is entered at the member with
// the smallest travel time from the previous cluster's exit. Candidate entry
// points are tried in ascending travel time; a rotation is rejected when it
// would place a ticket before one of its intra-cluster dependencies. If no
// rotation is feasible the urgency-seeded original order is kept.
func rotateForEntry(ctx context.Context, tour []Ticket, exit *Ticket, o *Oracle) []Ticket {
	if len(tour) <= 1 {
		return tour
	}

	type candidate struct {
		idx     int
		minutes float64
	}
	cands := make([]candidate, len(tour))
	for i := range tour {
		cands[i] = candidate{idx: i, minutes: o.TravelMinutes(ctx, exit, &tour[i])}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].minutes != cands[j].minutes {
			return cands[i].minutes < cands[j].minutes
		}
		return cands[i].idx < cands[j].idx
	})

	for _, c := range cands {
		if c.idx == 0 {
			return tour // already entered at the best point
		}
		rotated := make([]Ticket, 0, len(tour))
		rotated = append(rotated, tour[c.idx:]...)
		rotated = append(rotated, tour[:c.idx]...)
		if depsRespected(rotated) {
			return rotated
		}
	}
	return tour
}

// depsRespected reports whether no ticket in seq precedes a dependency that
// is also in seq.
func depsRespected(seq []Ticket) bool {
	pos := make(map[string]int, len(seq))
	for i := range seq {
		pos[seq[i].ID] = i
	}
	for i := range seq {
		for _, dep := range seq[i].Dependencies {
			if dp, ok := pos[dep]; ok && dp > i {
				return false
			}
		}
	}
	return true
}
