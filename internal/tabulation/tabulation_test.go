package tabulation

import (
	"context"
	"go/constant"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/vfg"
)

func newConstNode() ssa.Value {
	return ssa.NewConst(constant.MakeInt64(0), types.Typ[types.Int])
}

func TestAdvanceLabelZeroCarriesStackUnchanged(t *testing.T) {
	cur := state{v: 0, stack: []int{1, 2}}
	next := advance(cur, vfg.Edge{To: 1, Label: 0})
	if next == nil || next.v != 1 || len(next.stack) != 2 || next.stack[0] != 1 || next.stack[1] != 2 {
		t.Fatalf("label-0 edge should carry the stack unchanged, got %+v", next)
	}
}

func TestAdvancePositiveLabelPushes(t *testing.T) {
	cur := state{v: 0, stack: []int{1}}
	next := advance(cur, vfg.Edge{To: 1, Label: 5})
	if next == nil || len(next.stack) != 2 || next.stack[1] != 5 {
		t.Fatalf("call edge should push its label, got %+v", next)
	}
}

func TestAdvanceNegativeLabelPopsMatchingTop(t *testing.T) {
	cur := state{v: 0, stack: []int{1, 5}}
	next := advance(cur, vfg.Edge{To: 1, Label: -5})
	if next == nil || len(next.stack) != 1 || next.stack[0] != 1 {
		t.Fatalf("matching return edge should pop the top, got %+v", next)
	}
}

func TestAdvanceNegativeLabelRejectsMismatchedTop(t *testing.T) {
	cur := state{v: 0, stack: []int{1, 5}}
	if next := advance(cur, vfg.Edge{To: 1, Label: -9}); next != nil {
		t.Fatalf("return edge with a mismatched call id must be rejected, got %+v", next)
	}
}

func TestAdvanceNegativeLabelRejectsEmptyStack(t *testing.T) {
	cur := state{v: 0, stack: nil}
	if next := advance(cur, vfg.Edge{To: 1, Label: -1}); next != nil {
		t.Fatalf("return edge with no open call must be rejected, got %+v", next)
	}
}

// buildGraph wires edges directly over synthetic ssa.Const nodes via
// vfg.Graph.AddEdge, the one documented way to grow a graph outside of
// vfg.Build — standing in here for a full SSA-derived VFG, since
// tabulation operates purely on NodeID/Edge and never touches a node's
// underlying ssa.Value (see internal/gvfa for the one package that does).
func buildGraph(edges [][3]int) *vfg.Graph {
	nodes := map[int]ssa.Value{}
	need := func(i int) ssa.Value {
		if v, ok := nodes[i]; ok {
			return v
		}
		v := newConstNode()
		nodes[i] = v
		return v
	}
	g := vfg.New(nil)
	for _, e := range edges {
		g.AddEdge(need(e[0]), need(e[1]), e[2])
	}
	return g
}

func nodeID(g *vfg.Graph, v ssa.Value) vfg.NodeID {
	id, _ := g.NodeOf(v)
	return id
}

func TestReachFollowsMatchedCallReturnBracket(t *testing.T) {
	// 0 --(+1)--> 1 --(-1)--> 2 : a call into and return out of call-site 1.
	g := buildGraph([][3]int{{0, 1, 1}, {1, 2, -1}})
	s, tg := vfg.NodeID(0), vfg.NodeID(2)

	ok, err := Reach(context.Background(), g, s, tg)
	if err != nil {
		t.Fatalf("Reach: %v", err)
	}
	if !ok {
		t.Fatalf("expected a matched call/return bracket to reach")
	}
}

func TestReachRejectsMismatchedCallReturnBracket(t *testing.T) {
	// 0 --(+1)--> 1 --(-2)--> 2 : a return for a call-site that was never opened.
	g := buildGraph([][3]int{{0, 1, 1}, {1, 2, -2}})
	s, tg := vfg.NodeID(0), vfg.NodeID(2)

	ok, err := Reach(context.Background(), g, s, tg)
	if err != nil {
		t.Fatalf("Reach: %v", err)
	}
	if ok {
		t.Fatalf("a call/return bracket mismatch must not be reachable")
	}
}

func TestReachRejectsUnmatchedOpenCall(t *testing.T) {
	// 0 --(+1)--> 1 : t is reached with an open call still on the stack.
	g := buildGraph([][3]int{{0, 1, 1}})
	s, tg := vfg.NodeID(0), vfg.NodeID(1)

	ok, err := Reach(context.Background(), g, s, tg)
	if err != nil {
		t.Fatalf("Reach: %v", err)
	}
	if ok {
		t.Fatalf("reaching t with an open, unreturned call must not count as matched-reachable")
	}
}

func TestReachSetEnumeratesAllEmptyStackTargets(t *testing.T) {
	// 0 --0--> 1, 0 --(+1)--> 2 --(-1)--> 3 : 1 and 3 are empty-stack
	// reachable from 0; 2 is only reachable with an open call.
	g := buildGraph([][3]int{{0, 1, 0}, {0, 2, 1}, {2, 3, -1}})
	set, err := ReachSet(context.Background(), g, vfg.NodeID(0))
	if err != nil {
		t.Fatalf("ReachSet: %v", err)
	}
	if !set[0] || !set[1] || !set[3] {
		t.Fatalf("expected {0,1,3} reachable with an empty stack, got %+v", set)
	}
	if set[2] {
		t.Fatalf("node 2 is only reachable with an open call and must not appear")
	}
}

func TestDefaultWorkerCountIsAtLeastOne(t *testing.T) {
	if DefaultWorkerCount() < 1 {
		t.Fatalf("DefaultWorkerCount must never return less than 1")
	}
}

func TestParallelReachSetsComputesEverySource(t *testing.T) {
	g := buildGraph([][3]int{{0, 1, 0}, {1, 2, 0}})
	results := ParallelReachSets(context.Background(), g, []vfg.NodeID{0, 1, 2}, 2)
	if len(results) != 3 {
		t.Fatalf("expected a result for every source, got %d", len(results))
	}
	if !results[0][2] {
		t.Fatalf("node 0 should reach node 2 through the label-0 chain")
	}
}

// TestParallelReachSetsDropsCanceledSourceEntirely builds one long label-0
// chain (long enough to cross Reach/ReachSet's every-4096-steps cancellation
// poll before finishing) alongside one single-step source, cancels the
// context up front, and checks that the long source has no entry at all in
// the result — not a partially-populated one — while the short source
// still completes and is committed.
func TestParallelReachSetsDropsCanceledSourceEntirely(t *testing.T) {
	const chainLen = 6000
	edges := make([][3]int, 0, chainLen+1)
	for i := 0; i < chainLen; i++ {
		edges = append(edges, [3]int{i, i + 1, 0})
	}
	// A disjoint single node, numbered past the chain, is its own trivial
	// one-step source.
	short := chainLen + 100
	edges = append(edges, [3]int{short, short, 0})
	g := buildGraph(edges)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := ParallelReachSets(ctx, g, []vfg.NodeID{vfg.NodeID(0), vfg.NodeID(short)}, 2)

	if _, ok := results[vfg.NodeID(short)]; !ok {
		t.Fatalf("a source whose traversal never hit the cancellation poll must still be committed")
	}
	if set, ok := results[vfg.NodeID(0)]; ok {
		t.Fatalf("a canceled in-flight source must have no entry at all, got partial set %+v", set)
	}
}
