package reach

// pathTreeLabeling implements a single-spanning-tree interval labeling
// plus an "out-uncover" set per node: the extra targets reachable through
// non-tree edges that the tree's own interval containment misses. Used
// alongside GRAIL as a second, independently-derived sound-negative
// check: a node absent from both the tree interval AND the transitive
// uncover closure is definitely unreachable.
type pathTreeLabeling struct {
	top    map[int]int // preorder position
	bottom map[int]int // max preorder position in the node's subtree
	uncover map[int]map[int]bool
}

func buildPathTreeLabeling(reps []int, adj map[int]map[int]bool) *pathTreeLabeling {
	pt := &pathTreeLabeling{
		top:     make(map[int]int),
		bottom:  make(map[int]int),
		uncover: make(map[int]map[int]bool),
	}

	counter := 0
	visited := make(map[int]bool)
	treeChild := make(map[int]map[int]bool)

	var visit func(v int)
	visit = func(v int) {
		if visited[v] {
			return
		}
		visited[v] = true
		counter++
		pt.top[v] = counter
		pt.bottom[v] = counter

		for w := range adj[v] {
			if !visited[w] {
				if treeChild[v] == nil {
					treeChild[v] = make(map[int]bool)
				}
				treeChild[v][w] = true
				visit(w)
				if pt.bottom[w] > pt.bottom[v] {
					pt.bottom[v] = pt.bottom[w]
				}
			}
		}
	}
	for _, v := range reps {
		visit(v)
	}

	// Non-tree edges (cross/forward/back edges the single DFS didn't walk
	// down) are the ones tree-interval containment can't see; fold their
	// targets, and everything transitively reachable from them, into each
	// source's uncover set. reps is already handed to us in Tarjan's
	// reverse-topological order (successors before predecessors), so
	// processing it as-is guarantees a node's successors have complete
	// uncover sets before the node itself is processed.
	for _, v := range reps {
		set := make(map[int]bool)
		for w := range adj[v] {
			if treeChild[v] != nil && treeChild[v][w] {
				// covered by tree interval containment; still fold in
				// anything w could only reach via its own non-tree edges.
				for x := range pt.uncover[w] {
					set[x] = true
				}
				continue
			}
			set[w] = true
			for x := range pt.uncover[w] {
				set[x] = true
			}
		}
		if len(set) > 0 {
			pt.uncover[v] = set
		}
	}

	return pt
}

// mayReach reports whether rt is within rs's tree-subtree interval or its
// transitive uncover closure. A false result is a sound proof of
// non-reachability in the all-labels condensation DAG.
func (pt *pathTreeLabeling) mayReach(rs, rt int) bool {
	if rs == rt {
		return true
	}
	top, okTop := pt.top[rs]
	bottom, okBottom := pt.bottom[rs]
	target, okTarget := pt.top[rt]
	if okTop && okBottom && okTarget && top <= target && target <= bottom {
		return true
	}
	return pt.uncover[rs][rt]
}
