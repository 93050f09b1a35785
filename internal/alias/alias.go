// Package alias implements Alias & Mod-Ref Analysis (C2): it translates SSA
// IR into pointer constraints, saturates them into a dyck.Graph, and answers
// may-alias / may-null / points-to queries plus per-function mod/ref sets.
//
// Grounded on the teacher's SSA-walking style (ssa_cfg.go, callgraph.go):
// constraint generation walks *ssa.Function bodies the same way the teacher
// walks them to build CFG/DFG edges, but emits alias constraints instead of
// CPG nodes.
package alias

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/alias/mustalias"
	"lotus/internal/dyck"
	"lotus/internal/lotuserr"
)

// Result is the three-valued (plus internal Universal) outcome of an alias
// query. Universal collapses to MayAlias at this package's public API, per
// spec §9's "Universal object sentinel" note.
type Result int

const (
	NoAlias Result = iota
	MayAlias
	MustAlias
)

func (r Result) String() string {
	switch r {
	case NoAlias:
		return "NoAlias"
	case MustAlias:
		return "MustAlias"
	default:
		return "MayAlias"
	}
}

// Analysis is the built, frozen C2 artifact: a saturated Dyck graph plus
// per-function mod/ref sets and indirect-call resolution.
type Analysis struct {
	Graph *dyck.Graph

	// universal is the reserved node id that must-alias every pointer once
	// a model-missing fallback has fired (spec §9).
	universal dyck.ID

	// addressTaken holds every *ssa.Function whose address is observably
	// taken (passed as a call argument, returned, or closed over by a
	// MakeClosure) — the candidate
	// set for indirect-call resolution (spec §4.2).
	addressTaken []*ssa.Function

	modRef map[*ssa.Function]*ModRef

	// mustDeciders caches §4.3 per-function must-alias union-finds, built
	// lazily since most functions never have a MustAlias query issued
	// against them.
	mustDeciders map[*ssa.Function]*mustalias.Decider

	// nullValues holds values syntactically known to be a null/nil literal.
	nullValues map[ssa.Value]bool
	// allocLike holds values that are the result of an allocation-like call
	// with no registered model (may be null per spec §4.2's may_null rule).
	allocLike map[ssa.Value]bool

	Counters lotuserr.Counters
}

// ModRef holds per-function may-mod/may-ref sets, keyed by Dyck class
// representative.
type ModRef struct {
	Mod map[dyck.ID]bool
	Ref map[dyck.ID]bool
}

// nodeOf returns (creating if needed) the Dyck node for v.
func (a *Analysis) nodeOf(v ssa.Value) dyck.ID {
	return a.Graph.MakeNode(v)
}

// Universal returns the reserved sentinel node id.
func (a *Analysis) Universal() dyck.ID { return a.universal }

// MayAlias answers the alias query for two IR values: NoAlias when the
// Dyck roots differ, MustAlias when the two values are syntactically
// identical after stripping no-op casts or proven equal by the §4.3
// must-alias rule set, MayAlias otherwise.
func (a *Analysis) MayAlias(v1, v2 ssa.Value) Result {
	id1, ok1 := a.Graph.NodeOf(v1)
	id2, ok2 := a.Graph.NodeOf(v2)
	if !ok1 || !ok2 {
		return NoAlias
	}
	if a.Graph.Find(id1) != a.Graph.Find(id2) {
		return NoAlias
	}
	if v1 == v2 || a.mustAlias(v1, v2) {
		return MustAlias
	}
	return MayAlias
}

// mustAlias consults the §4.3 decider for the function both values belong
// to. Values from different functions, or without an enclosing function
// (e.g. package-level globals), are never reported MustAlias here — the
// rule set only reasons about a single function's instructions.
func (a *Analysis) mustAlias(v1, v2 ssa.Value) bool {
	i1, ok1 := v1.(ssa.Instruction)
	i2, ok2 := v2.(ssa.Instruction)
	if !ok1 || !ok2 {
		return false
	}
	fn := i1.Parent()
	if fn == nil || fn != i2.Parent() {
		return false
	}
	if a.mustDeciders == nil {
		a.mustDeciders = make(map[*ssa.Function]*mustalias.Decider)
	}
	d, ok := a.mustDeciders[fn]
	if !ok {
		d = mustalias.Build(fn)
		a.mustDeciders[fn] = d
	}
	return d.Must(v1, v2)
}

// MayNull reports whether v may be nil: a null literal, a member of a class
// containing a null literal, or the result of an unmodeled allocation-like
// external call. A nil v, or a value of a type that can never hold nil (an
// int, a struct, an array), are the only cases where false is returned;
// otherwise the safe default when in doubt is true.
func (a *Analysis) MayNull(v ssa.Value) bool {
	if v == nil || !isNilableType(v.Type()) {
		return false
	}
	if isNilConst(v) {
		return true
	}
	if a.nullValues[v] || a.allocLike[v] {
		return true
	}
	if id, ok := a.Graph.NodeOf(v); ok {
		rep := a.Graph.Find(id)
		for nv := range a.nullValues {
			if nid, ok := a.Graph.NodeOf(nv); ok && a.Graph.Find(nid) == rep {
				return true
			}
		}
	}
	return true // safe default: "otherwise the safe answer true is returned"
}

// PointsToSet returns the IR values in v's equivalence class.
func (a *Analysis) PointsToSet(v ssa.Value) []ssa.Value {
	id, ok := a.Graph.NodeOf(v)
	if !ok {
		return nil
	}
	return a.Graph.PointsToSet(id)
}

// MayMod reports whether fn may write through a value in class id, directly
// or via any reachable callee.
func (a *Analysis) MayMod(fn *ssa.Function, id dyck.ID) bool {
	mr := a.modRef[fn]
	if mr == nil {
		return true // unknown function: conservative
	}
	return mr.Mod[a.Graph.Find(id)]
}

// MayRef reports whether fn may read through a value in class id, directly
// or via any reachable callee.
func (a *Analysis) MayRef(fn *ssa.Function, id dyck.ID) bool {
	mr := a.modRef[fn]
	if mr == nil {
		return true
	}
	return mr.Ref[a.Graph.Find(id)]
}

// AddressTakenFunctions returns every function whose address is observably
// taken, the candidate pool for indirect-call resolution.
func (a *Analysis) AddressTakenFunctions() []*ssa.Function {
	return a.addressTaken
}

func isNilConst(v ssa.Value) bool {
	c, ok := v.(*ssa.Const)
	if !ok {
		return false
	}
	return c.Value == nil && isNilableType(c.Type())
}

func isNilableType(t types.Type) bool {
	switch t.Underlying().(type) {
	case *types.Pointer, *types.Interface, *types.Slice, *types.Map, *types.Chan, *types.Signature:
		return true
	}
	return false
}
