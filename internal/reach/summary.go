package reach

import "lotus/internal/vfg"

// summaryBudget bounds the summary-edge fixpoint so a pathological module
// can't spin forever; exceeding it aborts the whole build (spec §4.5:
// "failures abort the whole build rather than yield a partial index").
const summaryBudget = 2_000_000

// summaryRelation is the matched-reachability relation R computed by
// closure: R(u, v) holds when some matched (Dyck-balanced) path leads from
// u to v. It is seeded with every label-0 edge and every node reaching
// itself (the empty path), then closed under concatenation and bracket
// matching (spec §4.5 step 1's "S -> S S | (_k S )_k | ε" grammar).
type summaryRelation struct {
	edges map[vfg.NodeID]map[vfg.NodeID]bool
}

func (r *summaryRelation) add(u, v vfg.NodeID) bool {
	if r.edges[u] == nil {
		r.edges[u] = make(map[vfg.NodeID]bool)
	}
	if r.edges[u][v] {
		return false
	}
	r.edges[u][v] = true
	return true
}

// buildSummaryRelation runs the CFL-reachability closure over g. It
// returns (relation, ok) where ok is false if the closure exceeded its
// node-pair budget — the caller must treat that as a build failure.
func buildSummaryRelation(g *vfg.Graph) (*summaryRelation, bool) {
	n := g.NumNodes()
	r := &summaryRelation{edges: make(map[vfg.NodeID]map[vfg.NodeID]bool)}

	// incomingOpen[k] / outgoingClose[k]: edges carrying call-site label k,
	// indexed so a newly witnessed (x,y) pair can find every bracket pair
	// (p -[+k]-> x, y -[-k]-> q) that it closes.
	incomingOpen := make(map[int][][2]vfg.NodeID)  // k -> list of (p, x)
	outgoingClose := make(map[int][][2]vfg.NodeID) // k -> list of (y, q)

	type pair struct{ u, v vfg.NodeID }
	var worklist []pair
	pushed := 0

	push := func(u, v vfg.NodeID) bool {
		if !r.add(u, v) {
			return true
		}
		pushed++
		if pushed > summaryBudget {
			return false
		}
		worklist = append(worklist, pair{u, v})
		return true
	}

	for i := 0; i < n; i++ {
		if !push(vfg.NodeID(i), vfg.NodeID(i)) {
			return r, false
		}
	}
	for i := 0; i < n; i++ {
		for _, e := range g.Out(vfg.NodeID(i)) {
			switch {
			case e.Label == 0:
				if !push(vfg.NodeID(i), e.To) {
					return r, false
				}
			case e.Label > 0:
				incomingOpen[e.Label] = append(incomingOpen[e.Label], [2]vfg.NodeID{vfg.NodeID(i), e.To})
			default:
				k := -e.Label
				outgoingClose[k] = append(outgoingClose[k], [2]vfg.NodeID{vfg.NodeID(i), e.To})
			}
		}
	}

	for len(worklist) > 0 {
		p := worklist[0]
		worklist = worklist[1:]
		x, y := p.u, p.v

		// Concatenation: R(u,x) & R(x,y) => R(u,y); R(x,y) & R(y,w) => R(x,w).
		for u := range r.edges {
			if r.edges[u][x] {
				if !push(u, y) {
					return r, false
				}
			}
		}
		for w := range r.edges[y] {
			if !push(x, w) {
				return r, false
			}
		}

		// Bracket matching: (p -[+k]-> x) and (y -[-k]-> q) given R(x,y)
		// witnesses R(p,q) for every k.
		for k, opens := range incomingOpen {
			closes := outgoingClose[k]
			for _, po := range opens {
				if po[1] != x {
					continue
				}
				for _, qc := range closes {
					if qc[0] != y {
						continue
					}
					if !push(po[0], qc[1]) {
						return r, false
					}
				}
			}
		}
	}

	return r, true
}
