// Package vfg builds the Value Flow Graph (C3): a labeled directed
// multigraph of may-value-flow edges between IR values across the whole
// module, consumed by the reachability index (C4) and global value-flow
// analysis (C6).
//
// Grounded on the teacher's ExtractCFGAndDFG (ssa_cfg.go): the same
// "def -> every referrer" traversal over ssa.Value.Referrers(), retargeted
// from CPG dfg-edge emission to labeled VFG edges, plus call-site and
// mod/ref cross edges the teacher's CPG doesn't need (it has no
// interprocedural summary concept).
package vfg

import (
	"go/constant"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/alias"
	"lotus/internal/callgraph"
	"lotus/internal/progress"
)

// NodeID identifies one IR value in the graph.
type NodeID int

// Edge is a single labeled value-flow edge. Label 0 is an intraprocedural
// edge; a positive label k marks a "call k" crossing (flow into a callee at
// call-site k); a negative label -k marks the matching "return k" crossing.
type Edge struct {
	To    NodeID
	Label int
}

// Graph is the built, frozen VFG.
type Graph struct {
	values  []ssa.Value
	index   map[ssa.Value]NodeID
	forward [][]Edge
	reverse [][]Edge
}

// New returns an empty graph pre-populated with one node per value, in
// slice order, so id i corresponds to values[i]. Used by internal/serialize
// to reconstruct a Graph from a persisted edge list once the original IR
// values are back in hand.
func New(values []ssa.Value) *Graph {
	g := &Graph{index: make(map[ssa.Value]NodeID, len(values))}
	for _, v := range values {
		g.internNode(v)
	}
	return g
}

// NumNodes returns how many distinct IR values are tracked.
func (g *Graph) NumNodes() int { return len(g.values) }

// NodeOf returns the id assigned to v, if any.
func (g *Graph) NodeOf(v ssa.Value) (NodeID, bool) {
	id, ok := g.index[v]
	return id, ok
}

// Value returns the IR value behind id.
func (g *Graph) Value(id NodeID) ssa.Value { return g.values[id] }

// Out returns the outgoing edges of id (may flow from id to Edge.To).
func (g *Graph) Out(id NodeID) []Edge { return g.forward[id] }

// In returns the incoming edges of id: Edge.To holds the predecessor's id,
// Label the original (unnegated) edge label.
func (g *Graph) In(id NodeID) []Edge { return g.reverse[id] }

type builder struct {
	g    *Graph
	a    *alias.Analysis
	cg   *callgraph.Graph
	seen map[[2]NodeID]map[int]bool // dedup (from,to)->label set
}

func (g *Graph) internNode(v ssa.Value) NodeID {
	if id, ok := g.index[v]; ok {
		return id
	}
	id := NodeID(len(g.values))
	g.values = append(g.values, v)
	g.index[v] = id
	g.forward = append(g.forward, nil)
	g.reverse = append(g.reverse, nil)
	return id
}

func (b *builder) addEdge(from, to ssa.Value, label int) {
	if from == nil || to == nil {
		return
	}
	fid := b.g.internNode(from)
	tid := b.g.internNode(to)
	key := [2]NodeID{fid, tid}
	if b.seen[key] == nil {
		b.seen[key] = make(map[int]bool)
	}
	if b.seen[key][label] {
		return
	}
	b.seen[key][label] = true
	b.g.forward[fid] = append(b.g.forward[fid], Edge{To: tid, Label: label})
	// reverse[to] records the predecessor id under the SAME label (not
	// negated): +k/-k call-site polarity is already explicit per edge
	// (callAndCrossEdges adds both directions as distinct edges), so
	// walking the reverse adjacency must preserve the original label for
	// C5/C6's call-string bracket matching to see it correctly.
	b.g.reverse[tid] = append(b.g.reverse[tid], Edge{To: fid, Label: label})
}

// AddEdge inserts an additional labeled edge into an already-built graph,
// interning from/to if either is not yet tracked. Used by internal/checker
// to splice PIPE-directive edges in before C6 slicing runs (spec §12) —
// the one supported way to grow a Graph after Build returns.
func (g *Graph) AddEdge(from, to ssa.Value, label int) {
	if from == nil || to == nil {
		return
	}
	fid := g.internNode(from)
	tid := g.internNode(to)
	for _, e := range g.forward[fid] {
		if e.To == tid && e.Label == label {
			return
		}
	}
	g.forward[fid] = append(g.forward[fid], Edge{To: tid, Label: label})
	g.reverse[tid] = append(g.reverse[tid], Edge{To: fid, Label: label})
}

// Build constructs the VFG for every function in allFuncs, given the
// module's alias analysis (for load-store matching and mod/ref cross
// edges) and call graph (for call-site assignment and indirect/invoke
// callee resolution — C3 reuses C7's already-resolved call sites rather
// than re-deriving callees from StaticCallee alone).
func Build(allFuncs map[*ssa.Function]bool, a *alias.Analysis, cg *callgraph.Graph, prog *progress.Reporter) *Graph {
	g := &Graph{index: make(map[ssa.Value]NodeID)}
	b := &builder{g: g, a: a, cg: cg, seen: make(map[[2]NodeID]map[int]bool)}

	var funcs []*ssa.Function
	for fn := range allFuncs {
		if fn != nil {
			funcs = append(funcs, fn)
		}
	}

	for _, fn := range funcs {
		b.intraproceduralEdges(fn)
	}
	for _, fn := range funcs {
		b.loadStoreMatchEdges(fn)
	}
	if b.cg != nil {
		for _, fn := range funcs {
			b.callAndCrossEdges(fn)
		}
	}

	if prog != nil {
		prog.Count("VFG nodes", g.NumNodes())
	}
	return g
}

// intraproceduralEdges emits label-0 edges for direct value flow: casts,
// Phi, zero-offset structural access, interface wrapping.
func (b *builder) intraproceduralEdges(fn *ssa.Function) {
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			switch v := instr.(type) {
			case *ssa.Convert:
				b.addEdge(v.X, v, 0)
			case *ssa.ChangeType:
				b.addEdge(v.X, v, 0)
			case *ssa.MakeInterface:
				b.addEdge(v.X, v, 0)
			case *ssa.ChangeInterface:
				b.addEdge(v.X, v, 0)
			case *ssa.TypeAssert:
				b.addEdge(v.X, v, 0)
			case *ssa.Phi:
				for _, e := range v.Edges {
					b.addEdge(e, v, 0)
				}
			case *ssa.FieldAddr:
				if v.Field == 0 {
					b.addEdge(v.X, v, 0)
				}
			case *ssa.IndexAddr:
				b.addEdge(v.X, v, 0)
			case *ssa.Field:
				b.addEdge(v.X, v, 0)
			case *ssa.Index:
				b.addEdge(v.X, v, 0)
			case *ssa.UnOp:
				if v.Op.String() == "*" {
					b.addEdge(v.X, v, 0)
				}
			case *ssa.Store:
				// direct store-value edge (also matched indirectly below).
				b.addEdge(v.Val, v.Addr, 0)
			}
		}
	}
}

// loadStoreMatchEdges adds an edge Store.Val -> Load.result for every load
// L and store S whose pointer operands may-alias AND S can reach L in the
// CFG of their common function (spec §4.4).
func (b *builder) loadStoreMatchEdges(fn *ssa.Function) {
	if b.a == nil {
		return
	}
	var loads []*ssa.UnOp
	var stores []*ssa.Store
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			switch v := instr.(type) {
			case *ssa.UnOp:
				if v.Op.String() == "*" {
					loads = append(loads, v)
				}
			case *ssa.Store:
				stores = append(stores, v)
			}
		}
	}
	if len(loads) == 0 || len(stores) == 0 {
		return
	}

	reach := newBlockReach(fn)
	for _, s := range stores {
		for _, l := range loads {
			if b.a.MayAlias(s.Addr, l.X) == alias.NoAlias {
				continue
			}
			if !reach.canReach(s, l) {
				continue
			}
			b.addEdge(s.Val, l, 0)
		}
	}
}

// callAndCrossEdges walks fn's call graph entries (every concrete callee
// C7's VTA-based resolution assigned to each call instruction, including
// resolved indirect and invoke-mode calls) and adds argument->param (+k),
// return->result (-k), and ref/mod cross edges for each one, using the
// call site's own id as k (spec §4.4).
func (b *builder) callAndCrossEdges(fn *ssa.Function) {
	for _, site := range b.cg.CallSites(fn) {
		callee := site.Callee
		if callee == nil || callee.Blocks == nil || site.Instr == nil {
			continue // external or otherwise bodyless: no formal params/returns to couple
		}
		common := site.Instr.Common()
		k := site.ID

		for i, arg := range common.Args {
			if i < len(callee.Params) {
				b.addEdge(arg, callee.Params[i], k)
			}
		}
		if site.Invoke && len(callee.Params) > 0 {
			// The receiver becomes the callee's first formal parameter
			// under invoke-mode dispatch.
			b.addEdge(common.Value, callee.Params[0], k)
		}

		val := site.Instr.Value()
		if val != nil {
			for _, cblk := range callee.Blocks {
				for _, cinstr := range cblk.Instrs {
					if ret, ok := cinstr.(*ssa.Return); ok {
						for _, r := range ret.Results {
							b.addEdge(r, val, -k)
						}
					}
				}
			}
		}

		if b.a != nil {
			b.crossEdges(fn, site.Instr, callee, k)
		}
	}
}

// crossEdges adds ref/mod cross edges at call site k: for every Dyck class
// the callee may reference, a caller-visible value in that class whose
// definition can reach the call gets a +k edge into the call (models the
// callee observing it on entry); for every class the callee may modify, a
// caller-visible value in that class reachable from the call gets a -k
// edge out of the call (models the callee's write becoming visible after
// return).
func (b *builder) crossEdges(caller *ssa.Function, call ssa.Instruction, callee *ssa.Function, k int) {
	callVal := callSiteValue(call)

	reach := newBlockReach(caller)
	for _, blk := range caller.Blocks {
		for _, instr := range blk.Instrs {
			v, ok := instr.(ssa.Value)
			if !ok {
				continue
			}
			id, ok := b.a.Graph.NodeOf(v)
			if !ok {
				continue
			}
			rep := b.a.Graph.Find(id)

			if b.a.MayRef(callee, rep) && reach.canReachInstr(instr, call) {
				b.addEdge(v, callVal, k)
			}
			if b.a.MayMod(callee, rep) && reach.canReachInstr(call, instr) {
				b.addEdge(callVal, v, -k)
			}
		}
	}
}

// callSiteValue returns the ssa.Value identity crossEdges anchors a call
// site's ref/mod cross edges to: the call instruction itself when it is
// already one (*ssa.Call), or a fresh sentinel node when it isn't
// (*ssa.Go, *ssa.Defer — goroutine launches and deferred calls carry no
// result value of their own, but still need a node for the +k/-k edges).
func callSiteValue(call ssa.Instruction) ssa.Value {
	if v, ok := call.(ssa.Value); ok {
		return v
	}
	return ssa.NewConst(constant.MakeBool(true), types.Typ[types.Bool])
}
