package storage

// PageRank runs weighted PageRank over nodes for a fixed number of
// iterations. Every node starts at 1-damping and receives
//
//	(1-damping) + damping * sum(rank(u) * w(u,v) / out(u))
//
// from its in-neighbours, where out(u) is the summed weight leaving u.
// Nodes without outgoing weight do not redistribute their rank. Edges
// touching unknown nodes or with non-positive weight are ignored.
func PageRank(nodes []string, edges []WeightedEdge, iterations int, damping float64) map[string]float64 {
	index := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if _, ok := index[n]; !ok {
			index[n] = len(index)
		}
	}

	type link struct {
		to     int
		weight float64
	}
	out := make([][]link, len(index))
	outWeight := make([]float64, len(index))
	for _, e := range edges {
		from, ok := index[e.From]
		if !ok {
			continue
		}
		to, ok := index[e.To]
		if !ok || e.Weight <= 0 {
			continue
		}
		out[from] = append(out[from], link{to: to, weight: float64(e.Weight)})
		outWeight[from] += float64(e.Weight)
	}

	base := 1 - damping
	rank := make([]float64, len(index))
	for i := range rank {
		rank[i] = base
	}

	next := make([]float64, len(index))
	for it := 0; it < iterations; it++ {
		for i := range next {
			next[i] = 0
		}
		for from, links := range out {
			for _, l := range links {
				next[l.to] += rank[from] * l.weight / outWeight[from]
			}
		}
		for i := range next {
			next[i] = base + damping*next[i]
		}
		rank, next = next, rank
	}

	result := make(map[string]float64, len(index))
	for n, i := range index {
		result[n] = rank[i]
	}
	return result
}
