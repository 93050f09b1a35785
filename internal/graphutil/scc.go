// Package graphutil provides small generic graph algorithms (Tarjan SCC and
// condensation) shared by the reachability index (C4, over VFG nodes) and
// the task scheduler (C7, over the call graph) — both need to collapse
// cycles into a DAG before the rest of their algorithm runs.
package graphutil

// Tarjan computes the strongly connected components of a graph with n
// nodes (ids 0..n-1) given its successor function. It returns, for each
// node, the id of its SCC representative (the lowest-numbered node visited
// in that SCC), and the list of distinct representative ids in reverse
// topological order (successors before predecessors, as Tarjan produces
// them) — i.e. components earlier in the slice have no edges to components
// later in it, consistent with Tarjan's classical post-order property.
func Tarjan(n int, succ func(i int) []int) (rep []int, order []int) {
	const unvisited = -1
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	rep = make([]int, n)
	for i := range index {
		index[i] = unvisited
	}

	var stack []int
	counter := 0
	order = nil

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range succ(v) {
			if index[w] == unvisited {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			// v is the root of an SCC; pop members until v.
			var members []int
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				members = append(members, w)
				if w == v {
					break
				}
			}
			// Representative: lowest-numbered member, for determinism.
			leader := members[0]
			for _, m := range members {
				if m < leader {
					leader = m
				}
				rep[m] = -1 // placeholder, filled below
			}
			for _, m := range members {
				rep[m] = leader
			}
			order = append(order, leader)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == unvisited {
			strongconnect(v)
		}
	}
	return rep, order
}

// Condensation builds the DAG over SCC representatives: edge rep(u)->rep(v)
// exists whenever the original graph has an edge u->v with rep(u)!=rep(v).
// Returns an adjacency list indexed by representative id (a subset of
// 0..n-1; non-representative entries are nil).
func Condensation(n int, succ func(i int) []int, rep []int) map[int]map[int]bool {
	adj := make(map[int]map[int]bool)
	for v := 0; v < n; v++ {
		rv := rep[v]
		for _, w := range succ(v) {
			rw := rep[w]
			if rv == rw {
				continue
			}
			if adj[rv] == nil {
				adj[rv] = make(map[int]bool)
			}
			adj[rv][rw] = true
		}
	}
	return adj
}
