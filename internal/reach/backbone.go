package reach

import "math/rand"

// backboneOptions governs how much of the condensation DAG beyond the
// anchor set gets folded into the backbone (spec §4.5 step 3).
type backboneOptions struct {
	Epsilon     int     // extra non-anchor reps admitted, default 10
	Probability float64 // per-rep admission chance for that budget, default 0.02
}

func defaultBackboneOptions() backboneOptions {
	return backboneOptions{Epsilon: 10, Probability: 0.02}
}

// selectBackbone picks the sparse "backbone" subgraph of a condensation
// DAG: every anchor rep (one with a cross-component edge in either
// direction) is always included; up to opts.Epsilon additional reps are
// admitted with probability opts.Probability each, giving ε-approximate
// coverage of the remainder without indexing every rep at full cost.
func selectBackbone(reps []int, adj map[int]map[int]bool, opts backboneOptions) map[int]bool {
	backbone := make(map[int]bool)

	hasCrossEdge := make(map[int]bool)
	for from, tos := range adj {
		if len(tos) > 0 {
			hasCrossEdge[from] = true
			for to := range tos {
				hasCrossEdge[to] = true
			}
		}
	}
	for _, rep := range reps {
		if hasCrossEdge[rep] {
			backbone[rep] = true
		}
	}

	r := rand.New(rand.NewSource(1))
	admitted := 0
	for _, rep := range reps {
		if admitted >= opts.Epsilon {
			break
		}
		if backbone[rep] {
			continue
		}
		if r.Float64() < opts.Probability {
			backbone[rep] = true
			admitted++
		}
	}

	return backbone
}

// filterAdjacency restricts a condensation adjacency map to edges whose
// endpoints are both in keep.
func filterAdjacency(adj map[int]map[int]bool, keep map[int]bool) map[int]map[int]bool {
	out := make(map[int]map[int]bool)
	for from, tos := range adj {
		if !keep[from] {
			continue
		}
		for to := range tos {
			if !keep[to] {
				continue
			}
			if out[from] == nil {
				out[from] = make(map[int]bool)
			}
			out[from][to] = true
		}
	}
	return out
}
