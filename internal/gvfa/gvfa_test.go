package gvfa

import (
	"context"
	"testing"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/checker"
	"lotus/internal/taintspec"
)

func taintedFlowSrc() string {
	return `package p

func getenv(name string) string { return name }
func wrap(s string) string { return s }
func sink(s string) {}

func run(name string) {
	v := getenv(name)
	w := wrap(v)
	sink(w)
}
`
}

func TestForwardSliceReachesSinkThroughUnsanitizedFlow(t *testing.T) {
	_, cg, a, g := buildAllForGvfa(t, taintedFlowSrc())
	spec := &taintspec.Spec{
		Ignored: map[string]bool{},
		Sources: []taintspec.Source{{
			Func:  "getenv",
			Slots: []taintspec.Slot{{Loc: taintspec.Location{Kind: "Ret"}, Access: taintspec.AccessValue, Kind: taintspec.Tainted}},
		}},
		Sinks: []taintspec.Sink{{
			Func:  "sink",
			Slots: []taintspec.Slot{{Loc: taintspec.Location{Kind: "Arg", Arg: 0}, Access: taintspec.AccessValue, Kind: taintspec.Tainted}},
		}},
	}
	chk := checker.NewTaintChecker(spec)

	e, err := Build(context.Background(), g, chk, cg, a, Optimized, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(e.Sources()) == 0 {
		t.Fatalf("expected at least one source")
	}
	if len(e.Sinks()) != 1 {
		t.Fatalf("expected exactly one sink, got %+v", e.Sinks())
	}

	sourceNode := e.Sources()[0].Node
	if !e.BackwardReachableAllSinks(sourceNode) {
		t.Fatalf("expected source to backward-reach the sink through an unsanitized flow")
	}

	reached, err := e.BackwardReachable(context.Background(), sourceNode)
	if err != nil {
		t.Fatalf("BackwardReachable: %v", err)
	}
	if !reached {
		t.Fatalf("expected BackwardReachable to agree with the precomputed slice")
	}
}

func TestSanitizerVetoBlocksForwardSlice(t *testing.T) {
	_, cg, a, g := buildAllForGvfa(t, taintedFlowSrc())
	spec := &taintspec.Spec{
		Ignored: map[string]bool{},
		Sources: []taintspec.Source{{
			Func:  "getenv",
			Slots: []taintspec.Slot{{Loc: taintspec.Location{Kind: "Ret"}, Access: taintspec.AccessValue, Kind: taintspec.Tainted}},
		}},
		Sinks: []taintspec.Sink{{
			Func:  "sink",
			Slots: []taintspec.Slot{{Loc: taintspec.Location{Kind: "Arg", Arg: 0}, Access: taintspec.AccessValue, Kind: taintspec.Tainted}},
		}},
	}
	// a Custom checker reusing the taint source/sink discovery but vetoing
	// every single transfer, modeling a blanket sanitizer.
	taintChk := checker.NewTaintChecker(spec)
	vetoAll := checker.NewCustomChecker(checker.CustomFuncs{
		GetSources:      taintChk.GetSources,
		GetSinks:        taintChk.GetSinks,
		IsValidTransfer: func(from, to ssa.Value) bool { return false },
	})

	e, err := Build(context.Background(), g, vetoAll, cg, a, Optimized, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(e.Sources()) == 0 {
		t.Fatalf("expected at least one source")
	}
	sourceNode := e.Sources()[0].Node
	if e.BackwardReachableAllSinks(sourceNode) {
		t.Fatalf("expected the blanket sanitizer veto to block the slice entirely")
	}
}

func TestComprehensiveModeTracksReachableSourceIndices(t *testing.T) {
	_, cg, a, g := buildAllForGvfa(t, taintedFlowSrc())
	spec := &taintspec.Spec{
		Ignored: map[string]bool{},
		Sources: []taintspec.Source{{
			Func:  "getenv",
			Slots: []taintspec.Slot{{Loc: taintspec.Location{Kind: "Ret"}, Access: taintspec.AccessValue, Kind: taintspec.Tainted}},
		}},
	}
	chk := checker.NewTaintChecker(spec)

	e, err := Build(context.Background(), g, chk, cg, a, Comprehensive, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sourceNode := e.Sources()[0].Node
	reachable := e.ReachableSources(sourceNode)
	if !reachable[0] {
		t.Fatalf("expected source 0 to reach itself, got %+v", reachable)
	}
}

func TestCFLStackQueryAgreesNodeReachesItself(t *testing.T) {
	_, cg, a, g := buildAllForGvfa(t, taintedFlowSrc())
	chk := checker.NewNullPointerChecker(nil)
	e, err := Build(context.Background(), g, chk, cg, a, Optimized, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.NumNodes() == 0 {
		t.Fatalf("expected a non-empty VFG")
	}
	ok, err := e.CFLStackQuery(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("CFLStackQuery: %v", err)
	}
	if !ok {
		t.Fatalf("a node should always reach itself")
	}
}
