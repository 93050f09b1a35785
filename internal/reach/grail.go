package reach

import (
	"math/rand"
	"sort"
)

// newRand gives each GRAIL tree its own deterministic source rather than
// sharing global rand state, so repeated builds over the same graph
// produce identical labelings.
func newRand(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

// grailLabeling implements the GRAIL interval-labeling reachability index:
// d randomized DFS traversals over a DAG, each giving every node an
// interval [low, rank], where rank is the node's post-order number in that
// traversal and low the smallest rank among the node and everything it
// reaches. If u reaches v, then in every tree v's low lies inside u's
// interval, so that test failing in every tree soundly certifies
// non-reachability (GRAIL's whole purpose as an index), while it
// succeeding in some tree is only a hint that still needs exact
// confirmation.
type grailLabeling struct {
	trees []grailTree
}

type grailTree struct {
	pre  map[int]int // low: smallest post-order rank reachable from the node
	post map[int]int // the node's own post-order rank
}

func buildGrailLabeling(reps []int, adj map[int]map[int]bool, d int) *grailLabeling {
	gl := &grailLabeling{}
	for i := 0; i < d; i++ {
		gl.trees = append(gl.trees, buildGrailTree(reps, adj, int64(i+1)))
	}
	return gl
}

func buildGrailTree(reps []int, adj map[int]map[int]bool, seed int64) grailTree {
	tree := grailTree{pre: make(map[int]int), post: make(map[int]int)}
	r := newRand(seed)

	roots := make([]int, len(reps))
	copy(roots, reps)
	r.Shuffle(len(roots), func(i, j int) { roots[i], roots[j] = roots[j], roots[i] })

	counter := 0
	visited := make(map[int]bool)

	var visit func(v int)
	visit = func(v int) {
		if visited[v] {
			return
		}
		visited[v] = true

		var children []int
		for w := range adj[v] {
			children = append(children, w)
		}
		sort.Ints(children)
		r.Shuffle(len(children), func(i, j int) { children[i], children[j] = children[j], children[i] })
		low := -1
		for _, w := range children {
			visit(w)
			if l := tree.pre[w]; low < 0 || l < low {
				low = l
			}
		}

		counter++
		tree.post[v] = counter
		if low < 0 || counter < low {
			low = counter
		}
		tree.pre[v] = low
	}

	for _, v := range roots {
		visit(v)
	}
	return tree
}

// mayReach reports whether some tree's intervals admit rs reaching rt. A
// false answer here is a sound proof of non-reachability in the
// all-labels condensation DAG (hence of matched-reachability too); a true
// answer is only a candidate.
func (gl *grailLabeling) mayReach(rs, rt int) bool {
	if rs == rt {
		return true
	}
	for _, tree := range gl.trees {
		ps, okps := tree.pre[rs]
		qs, okqs := tree.post[rs]
		pt, okpt := tree.pre[rt]
		if !okps || !okqs || !okpt {
			continue
		}
		if ps <= pt && pt <= qs {
			return true
		}
	}
	return false
}
