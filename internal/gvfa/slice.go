package gvfa

import (
	"golang.org/x/tools/go/ssa"

	"lotus/internal/alias"
	"lotus/internal/checker"
	"lotus/internal/vfg"
)

// extendSourceSet grows an initial source-node list per spec §4.7: every
// value in the same C1 alias class as a source, every call-site actual
// that flows into a source formal parameter, and every call result whose
// callee returns a source value — run to a fixpoint since an added source
// can itself trigger further extension. a may be nil (no alias analysis
// available), in which case only the identity set is returned.
func extendSourceSet(a *alias.Analysis, g *vfg.Graph, seeds []vfg.NodeID) []vfg.NodeID {
	in := make(map[vfg.NodeID]bool, len(seeds))
	var order []vfg.NodeID
	for _, s := range seeds {
		if !in[s] {
			in[s] = true
			order = append(order, s)
		}
	}
	if a == nil {
		return order
	}

	add := func(id vfg.NodeID) {
		if !in[id] {
			in[id] = true
			order = append(order, id)
		}
	}

	for i := 0; i < len(order); i++ {
		cur := order[i]
		v := g.Value(cur)

		aliasClassExtend(a, g, v, add)
		formalParamCallSiteExtend(g, cur, v, add)
		returnIntoCallResultExtend(g, cur, add)
	}
	return order
}

// aliasClassExtend adds every VFG-tracked value in v's C1 union-find
// class as an additional source.
func aliasClassExtend(a *alias.Analysis, g *vfg.Graph, v ssa.Value, add func(vfg.NodeID)) {
	id, ok := a.Graph.NodeOf(v)
	if !ok {
		return
	}
	rep := a.Graph.Find(id)
	for n := 0; n < g.NumNodes(); n++ {
		other := vfg.NodeID(n)
		otherID, ok := a.Graph.NodeOf(g.Value(other))
		if !ok {
			continue
		}
		if a.Graph.Find(otherID) == rep {
			add(other)
		}
	}
}

// formalParamCallSiteExtend adds the actual argument at every call site
// feeding a source formal parameter (spec §4.7 "call-site actuals that
// flow into a source argument"): if cur is a *ssa.Parameter, every
// predecessor reached by a positive-label (+k, call-argument) edge is an
// actual that should be treated as a source too.
func formalParamCallSiteExtend(g *vfg.Graph, cur vfg.NodeID, v ssa.Value, add func(vfg.NodeID)) {
	if _, ok := v.(*ssa.Parameter); !ok {
		return
	}
	for _, e := range g.In(cur) {
		if e.Label > 0 {
			add(e.To)
		}
	}
}

// returnIntoCallResultExtend adds the call result at every call site whose
// callee returns a source value (spec §4.7 "return values from calls
// whose callee returns into a source"): a forward (-k, return) edge out
// of cur names exactly that call result.
func returnIntoCallResultExtend(g *vfg.Graph, cur vfg.NodeID, add func(vfg.NodeID)) {
	for _, e := range g.Out(cur) {
		if e.Label < 0 {
			add(e.To)
		}
	}
}

// forwardMasksOptimized runs the Optimized-mode forward slice: a
// multi-source BFS that ORs a per-source bit into every node it reaches,
// vetoing edges the checker flags as passing through a sanitizer. Sources
// beyond the 32-bit budget are silently dropped from the mask (still
// present in Engine.Sources() for reporting) — spec §4.7's declared
// "up to 32 distinct source roots" limit.
func forwardMasksOptimized(g *vfg.Graph, chk *checker.Checker, sources []Source) map[vfg.NodeID]uint32 {
	masks := make(map[vfg.NodeID]uint32)
	type item struct {
		id  vfg.NodeID
		bit uint32
	}
	var queue []item
	for i, s := range sources {
		if i >= maxOptimizedSources {
			break
		}
		bit := uint32(1) << uint(i)
		if masks[s.Node]&bit == 0 {
			masks[s.Node] |= bit
			queue = append(queue, item{s.Node, bit})
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		fromVal := g.Value(cur.id)
		for _, e := range g.Out(cur.id) {
			if !chk.IsValidTransfer(fromVal, g.Value(e.To)) {
				continue
			}
			if masks[e.To]&cur.bit != 0 {
				continue
			}
			masks[e.To] |= cur.bit
			queue = append(queue, item{e.To, cur.bit})
		}
	}
	return masks
}

// forwardSetComprehensive is forwardMasksOptimized's Comprehensive-mode
// counterpart: no 32-source cap, per-node full source-index sets instead
// of a bitmask (spec §4.7's "memory O(|V| × |sources|)").
func forwardSetComprehensive(g *vfg.Graph, chk *checker.Checker, sources []Source) map[vfg.NodeID]map[int]bool {
	sets := make(map[vfg.NodeID]map[int]bool)
	type item struct {
		id  vfg.NodeID
		idx int
	}
	var queue []item
	mark := func(id vfg.NodeID, idx int) bool {
		s := sets[id]
		if s == nil {
			s = make(map[int]bool)
			sets[id] = s
		}
		if s[idx] {
			return false
		}
		s[idx] = true
		return true
	}
	for i, s := range sources {
		if mark(s.Node, i) {
			queue = append(queue, item{s.Node, i})
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		fromVal := g.Value(cur.id)
		for _, e := range g.Out(cur.id) {
			if !chk.IsValidTransfer(fromVal, g.Value(e.To)) {
				continue
			}
			if mark(e.To, cur.idx) {
				queue = append(queue, item{e.To, cur.idx})
			}
		}
	}
	return sets
}

// backwardReachableSet computes, over the reverse VFG starting from every
// sink together, the set of nodes that can forward-reach at least one
// sink — the precomputed half of backward_reachable_all_sinks.
func backwardReachableSet(g *vfg.Graph, chk *checker.Checker, sinks []vfg.NodeID) map[vfg.NodeID]bool {
	visited := make(map[vfg.NodeID]bool, len(sinks))
	var queue []vfg.NodeID
	for _, s := range sinks {
		if !visited[s] {
			visited[s] = true
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curVal := g.Value(cur)
		for _, e := range g.In(cur) {
			predVal := g.Value(e.To)
			if !chk.IsValidTransfer(predVal, curVal) {
				continue
			}
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return visited
}
