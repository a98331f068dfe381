package optimizer

// Density-based clustering of one crew's tickets.
//
// Tickets are projected onto a local tangent plane so plain Euclidean
// distance approximates kilometers, then grouped by DBSCAN. Noise points are
// promoted to singleton clusters: a ticket outside every dense region still
// has to be visited.

const (
	// DefaultEpsKm is the DBSCAN neighborhood radius in kilometers.
	DefaultEpsKm = 0.5
	// DefaultMinSamples is the DBSCAN core-point density threshold.
	DefaultMinSamples = 2
)

// DBSCAN point labels.
const (
	labelUnvisited = -2
	labelNoise     = -1
)

// ClusterTickets partitions tickets into geographic clusters. The input is
// expected to be pre-filtered to a single crew type and open status, with
// urgency scores populated. Cluster order and intra-cluster ticket order
// follow input order, so the result is deterministic.
func ClusterTickets(tickets []Ticket, epsKm float64, minSamples int) []Cluster {
	if len(tickets) == 0 {
		return nil
	}
	if epsKm <= 0 {
		epsKm = DefaultEpsKm
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}

	pts := projectEquirect(tickets)
	labels := dbscan(pts, epsKm, minSamples)

	// Group members by label, preserving first-seen order. Noise points get
	// fresh singleton labels.
	next := 0
	for _, l := range labels {
		if l >= next {
			next = l + 1
		}
	}
	order := make([]int, 0)
	members := make(map[int][]int)
	for i, l := range labels {
		if l == labelNoise {
			l = next
			next++
		}
		if _, seen := members[l]; !seen {
			order = append(order, l)
		}
		members[l] = append(members[l], i)
	}

	clusters := make([]Cluster, 0, len(order))
	for _, l := range order {
		clusters = append(clusters, buildCluster(tickets, members[l]))
	}
	return clusters
}

// dbscan labels each point with a cluster id >= 0 or labelNoise. Neighbor
// queries are a linear scan; ticket sets are city-scale so the O(n²) cost is
// acceptable and keeps the implementation dependency-free.
func dbscan(pts []projected, epsKm float64, minSamples int) []int {
	n := len(pts)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = labelUnvisited
	}
	eps2 := epsKm * epsKm

	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if sqDist(pts[i], pts[j]) <= eps2 {
				out = append(out, j)
			}
		}
		return out
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != labelUnvisited {
			continue
		}
		seed := neighbors(i)
		if len(seed) < minSamples {
			labels[i] = labelNoise
			continue
		}

		labels[i] = cluster
		// Expand the cluster frontier. Border points already labeled noise
		// are claimed; points belonging to another cluster are left alone.
		for k := 0; k < len(seed); k++ {
			j := seed[k]
			if labels[j] == labelNoise {
				labels[j] = cluster
				continue
			}
			if labels[j] != labelUnvisited {
				continue
			}
			labels[j] = cluster
			jn := neighbors(j)
			if len(jn) >= minSamples {
				seed = append(seed, jn...)
			}
		}
		cluster++
	}
	return labels
}

// buildCluster assembles a Cluster from member indices: centroid as the mean
// coordinate, aggregate priority as the most urgent member priority, and the
// summed service minutes.
func buildCluster(tickets []Ticket, idx []int) Cluster {
	c := Cluster{
		Tickets:  make([]Ticket, 0, len(idx)),
		Priority: PriorityLow,
	}
	for _, i := range idx {
		t := tickets[i]
		c.Tickets = append(c.Tickets, t)
		c.CentroidLat += t.Lat
		c.CentroidLon += t.Lon
		c.ServiceMinutes += t.ServiceMinutes
		if t.Priority.MoreUrgent(c.Priority) {
			c.Priority = t.Priority
		}
	}
	c.CentroidLat /= float64(len(idx))
	c.CentroidLon /= float64(len(idx))
	return c
}
