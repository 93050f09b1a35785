package reach

import (
	"context"
	"testing"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/alias"
	"lotus/internal/callgraph"
	"lotus/internal/vfg"
)

func TestIndexAnswersNodeReachesItself(t *testing.T) {
	src := `package p

func f(x int32) int64 {
	return int64(x)
}
`
	funcs, a, cg, pkg := buildAllForReach(t, src)
	g := vfg.Build(funcs, a, cg, nil)

	ix, err := Build(context.Background(), g, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !ix.Complete() {
		t.Fatalf("expected a complete index")
	}

	fn := pkg.Members["f"].(*ssa.Function)
	xid, _ := g.NodeOf(fn.Params[0])

	ok, err := ix.Reach(context.Background(), xid, xid)
	if err != nil || !ok {
		t.Fatalf("expected a node to reach itself, got ok=%v err=%v", ok, err)
	}
}

func TestUnrelatedFunctionsDoNotReachEachOther(t *testing.T) {
	src := `package p

func f(x int) int64 {
	return int64(x)
}

func g(y int) int64 {
	return int64(y)
}
`
	funcs, a, cg, pkg := buildAllForReach(t, src)
	graph := vfg.Build(funcs, a, cg, nil)

	ix, err := Build(context.Background(), graph, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	fFn := pkg.Members["f"].(*ssa.Function)
	gFn := pkg.Members["g"].(*ssa.Function)
	fid, ok := graph.NodeOf(fFn.Params[0])
	if !ok {
		t.Fatalf("f's param not in VFG")
	}
	gid, ok := graph.NodeOf(gFn.Params[0])
	if !ok {
		t.Fatalf("g's param not in VFG")
	}

	reached, err := ix.Reach(context.Background(), fid, gid)
	if err != nil {
		t.Fatalf("Reach: %v", err)
	}
	if reached {
		t.Fatalf("two unrelated functions' params should not be matched-reachable")
	}
}

func TestCallerArgDoesNotMatchedReachCalleeParamWhileCallIsOpen(t *testing.T) {
	src := `package p

func callee(a int) int {
	return a + 1
}

func caller(x int) int {
	return callee(x)
}
`
	funcs, a, cg, pkg := buildAllForReach(t, src)
	graph := vfg.Build(funcs, a, cg, nil)

	ix, err := Build(context.Background(), graph, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	callerFn := pkg.Members["caller"].(*ssa.Function)
	calleeFn := pkg.Members["callee"].(*ssa.Function)

	xid, ok := graph.NodeOf(callerFn.Params[0])
	if !ok {
		t.Fatalf("caller param not in VFG")
	}
	paramID, ok := graph.NodeOf(calleeFn.Params[0])
	if !ok {
		t.Fatalf("callee param not in VFG")
	}

	reached, err := ix.Reach(context.Background(), xid, paramID)
	if err != nil {
		t.Fatalf("Reach: %v", err)
	}
	if reached {
		t.Fatalf("caller's argument reaches callee's param only with the call still open, which is not a matched path")
	}
}

func TestIncompleteIndexAnswersConservatively(t *testing.T) {
	src := `package p

func f(x int) int { return x }
`
	funcs, a, cg, _ := buildAllForReach(t, src)
	graph := vfg.Build(funcs, a, cg, nil)

	ix := &Index{g: graph} // complete is left false

	reached, err := ix.Reach(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Reach on incomplete index should not error: %v", err)
	}
	if !reached {
		t.Fatalf("an incomplete index must answer conservatively (may-reach)")
	}
}

func TestBuildRespectsVariantSelection(t *testing.T) {
	src := `package p

func callee(a int) int {
	return a + 1
}

func caller(x int) int {
	return callee(x)
}
`
	funcs, a, cg, _ := buildAllForReach(t, src)
	graph := vfg.Build(funcs, a, cg, nil)

	both, err := Build(context.Background(), graph, Options{Variant: VariantBoth})
	if err != nil {
		t.Fatalf("Build(VariantBoth): %v", err)
	}
	if both.pathTree == nil || both.grail == nil {
		t.Fatalf("VariantBoth must build both labelings, got pathTree=%v grail=%v", both.pathTree, both.grail)
	}

	pt, err := Build(context.Background(), graph, Options{Variant: VariantPathTree})
	if err != nil {
		t.Fatalf("Build(VariantPathTree): %v", err)
	}
	if pt.pathTree == nil {
		t.Fatalf("VariantPathTree must build the path-tree labeling")
	}
	if pt.grail != nil {
		t.Fatalf("VariantPathTree must not build the GRAIL labeling")
	}

	gr, err := Build(context.Background(), graph, Options{Variant: VariantGrail})
	if err != nil {
		t.Fatalf("Build(VariantGrail): %v", err)
	}
	if gr.grail == nil {
		t.Fatalf("VariantGrail must build the GRAIL labeling")
	}
	if gr.pathTree != nil {
		t.Fatalf("VariantGrail must not build the path-tree labeling")
	}
}

func TestReachAgreesAcrossVariantsOnBackboneQueries(t *testing.T) {
	src := `package p

func callee(a int) int {
	return a + 1
}

func caller(x int) int {
	return callee(x)
}
`
	funcs, a, cg, pkg := buildAllForReach(t, src)
	graph := vfg.Build(funcs, a, cg, nil)

	callerFn := pkg.Members["caller"].(*ssa.Function)
	calleeFn := pkg.Members["callee"].(*ssa.Function)
	xid, _ := graph.NodeOf(callerFn.Params[0])
	paramID, _ := graph.NodeOf(calleeFn.Params[0])

	for _, variant := range []Variant{VariantBoth, VariantPathTree, VariantGrail} {
		ix, err := Build(context.Background(), graph, Options{Variant: variant})
		if err != nil {
			t.Fatalf("Build(%v): %v", variant, err)
		}
		reached, err := ix.Reach(context.Background(), xid, paramID)
		if err != nil {
			t.Fatalf("Reach(%v): %v", variant, err)
		}
		if !reached {
			t.Fatalf("variant %v: caller's argument should be matched-reachable to callee's param", variant)
		}
	}
}

func buildAllForReach(t *testing.T, src string) (map[*ssa.Function]bool, *alias.Analysis, *callgraph.Graph, *ssa.Package) {
	t.Helper()
	pkg := mustBuildSSA(t, src)

	funcs := make(map[*ssa.Function]bool)
	for _, mem := range pkg.Members {
		if fn, ok := mem.(*ssa.Function); ok {
			funcs[fn] = true
			for _, anon := range fn.AnonFuncs {
				funcs[anon] = true
			}
		}
	}

	cg := callgraph.Build(funcs)
	a, err := alias.Build(context.Background(), funcs, cg, nil)
	if err != nil {
		t.Fatalf("alias.Build: %v", err)
	}
	return funcs, a, cg, pkg
}
