// Package checker implements the vulnerability checker contract C6
// consumes (spec §4.7, §9): get_sources, get_sinks, and a
// is_valid_transfer sanitizer veto, polymorphic over a tagged Kind
// (NullPointer | Taint | Custom) rather than an interface hierarchy, per
// spec §9's explicit "avoid deep class hierarchies" decision.
//
// Grounded on: no pack example implements a vulnerability checker, so the
// call-site walk here follows internal/vfg's own instruction-and-call-site
// traversal idiom (callAndCrossEdges) rather than a borrowed shape. The
// IGNORE-as-suppression and PIPE-as-injected-edge behaviors are grounded
// on original_source/include/Checker/TaintConfigManager.h's pipe/ignore
// handling (spec §12 supplemented features).
package checker

import (
	"go/types"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/alias"
	"lotus/internal/callgraph"
	"lotus/internal/taintspec"
	"lotus/internal/vfg"
)

// Kind tags which checker variant a *Checker carries.
type Kind int

const (
	// NullPointer flags values that may be nil reaching a dereference.
	NullPointer Kind = iota
	// Taint flags tainted values (per a taintspec.Spec) reaching a sink.
	Taint
	// Custom defers entirely to user-supplied functions.
	Custom
)

func (k Kind) String() string {
	switch k {
	case NullPointer:
		return "NullPointer"
	case Taint:
		return "Taint"
	case Custom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// SourceOccurrence is one concrete VFG node a checker considers a taint/
// nil-ness source, with a human-readable label for reporting.
type SourceOccurrence struct {
	Node  vfg.NodeID
	Label string
}

// SinkOccurrence is one concrete VFG node a checker considers dangerous to
// reach from a source.
type SinkOccurrence struct {
	Node  vfg.NodeID
	Label string
}

// CustomFuncs backs the Custom variant: three function values standing in
// for the checker contract (spec §9 "Custom{fns}").
type CustomFuncs struct {
	GetSources      func(cg *callgraph.Graph, g *vfg.Graph) []SourceOccurrence
	GetSinks        func(cg *callgraph.Graph, g *vfg.Graph) []SinkOccurrence
	IsValidTransfer func(from, to ssa.Value) bool
}

// Checker is the tagged-variant vulnerability checker. Exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type Checker struct {
	Kind   Kind
	taint  *taintspec.Spec
	custom CustomFuncs
	alias  *alias.Analysis
}

// NewNullPointerChecker returns a Checker that treats explicit nil
// constants and the results of external (bodiless) calls that may be nil as
// sources, and pointer/interface dereferences as sinks. a is consulted only
// to judge an external call's result (via a.MayNull); a may be nil, in
// which case a bare nilable-type check is used instead.
func NewNullPointerChecker(a *alias.Analysis) *Checker {
	return &Checker{Kind: NullPointer, alias: a}
}

// NewTaintChecker returns a Checker driven by a parsed taint spec file.
func NewTaintChecker(spec *taintspec.Spec) *Checker {
	return &Checker{Kind: Taint, taint: spec}
}

// NewCustomChecker returns a Checker that defers entirely to fns.
func NewCustomChecker(fns CustomFuncs) *Checker {
	return &Checker{Kind: Custom, custom: fns}
}

// GetSources returns every source occurrence this checker identifies
// across the module's call sites and function bodies.
func (c *Checker) GetSources(cg *callgraph.Graph, g *vfg.Graph) []SourceOccurrence {
	switch c.Kind {
	case Taint:
		return c.taintSources(cg, g)
	case NullPointer:
		return c.nilSources(cg, g)
	case Custom:
		if c.custom.GetSources == nil {
			return nil
		}
		return c.custom.GetSources(cg, g)
	default:
		return nil
	}
}

// GetSinks returns every sink occurrence this checker identifies.
func (c *Checker) GetSinks(cg *callgraph.Graph, g *vfg.Graph) []SinkOccurrence {
	switch c.Kind {
	case Taint:
		return c.taintSinks(cg, g)
	case NullPointer:
		return c.nilSinks(cg, g)
	case Custom:
		if c.custom.GetSinks == nil {
			return nil
		}
		return c.custom.GetSinks(cg, g)
	default:
		return nil
	}
}

// IsValidTransfer reports whether flow from `from` to `to` should be
// allowed to propagate, or vetoed as passing through a sanitizer/
// validator (spec §4.7). NullPointer and the Taint variant's default have
// no sanitizer concept and always allow the transfer; Custom defers to
// the user hook.
func (c *Checker) IsValidTransfer(from, to ssa.Value) bool {
	if c.Kind == Custom && c.custom.IsValidTransfer != nil {
		return c.custom.IsValidTransfer(from, to)
	}
	return true
}

// InjectPipeEdges splices an additional VFG edge for every PIPE directive
// in the checker's taint spec, connecting the call's "from" slot value to
// its "to" slot value at every matching call site — modeling flow through
// an external function with no visible body to analyze (spec §12). A
// no-op for non-Taint checkers.
func (c *Checker) InjectPipeEdges(cg *callgraph.Graph, g *vfg.Graph) {
	if c.Kind != Taint || c.taint == nil {
		return
	}
	for _, site := range cg.AllSites() {
		if site.Instr == nil || site.Callee == nil {
			continue
		}
		for _, p := range c.taint.Pipes {
			if !functionMatches(site.Callee, p.Func) {
				continue
			}
			from, ok := resolveLocation(site, p.From)
			if !ok {
				continue
			}
			to, ok := resolveLocation(site, p.To)
			if !ok {
				continue
			}
			g.AddEdge(from, to, 0)
		}
	}
}

func (c *Checker) taintSources(cg *callgraph.Graph, g *vfg.Graph) []SourceOccurrence {
	var out []SourceOccurrence
	for _, site := range cg.AllSites() {
		if site.Instr == nil || site.Callee == nil {
			continue
		}
		name := qualifiedName(site.Callee)
		if c.taint.IsIgnored(name) || c.taint.IsIgnored(site.Callee.Name()) {
			continue
		}
		for _, src := range c.taint.Sources {
			if !functionMatches(site.Callee, src.Func) {
				continue
			}
			for _, slot := range src.Slots {
				if slot.Kind != taintspec.Tainted {
					continue
				}
				v, ok := resolveLocation(site, slot.Loc)
				if !ok {
					continue
				}
				id, ok := g.NodeOf(v)
				if !ok {
					continue
				}
				out = append(out, SourceOccurrence{
					Node:  id,
					Label: src.Func + "/" + slot.Loc.String(),
				})
			}
		}
	}
	return out
}

func (c *Checker) taintSinks(cg *callgraph.Graph, g *vfg.Graph) []SinkOccurrence {
	var out []SinkOccurrence
	for _, site := range cg.AllSites() {
		if site.Instr == nil || site.Callee == nil {
			continue
		}
		name := qualifiedName(site.Callee)
		if c.taint.IsIgnored(name) || c.taint.IsIgnored(site.Callee.Name()) {
			continue
		}
		for _, snk := range c.taint.Sinks {
			if !functionMatches(site.Callee, snk.Func) {
				continue
			}
			for _, slot := range snk.Slots {
				if slot.Kind != taintspec.Tainted {
					continue
				}
				v, ok := resolveLocation(site, slot.Loc)
				if !ok {
					continue
				}
				id, ok := g.NodeOf(v)
				if !ok {
					continue
				}
				out = append(out, SinkOccurrence{
					Node:  id,
					Label: snk.Func + "/" + slot.Loc.String(),
				})
			}
		}
	}
	return out
}

// nilSources treats every explicit nil constant reaching a tracked VFG
// node, plus every result of a call to a function with no body that mayNull
// accepts, as a potential null source.
func (c *Checker) nilSources(cg *callgraph.Graph, g *vfg.Graph) []SourceOccurrence {
	var out []SourceOccurrence
	for n := 0; n < g.NumNodes(); n++ {
		v := g.Value(vfg.NodeID(n))
		if isNilConst(v) {
			out = append(out, SourceOccurrence{Node: vfg.NodeID(n), Label: "nil literal"})
		}
	}
	for _, site := range cg.AllSites() {
		if site.Callee == nil || site.Callee.Blocks != nil || site.Instr == nil {
			continue // only externally-defined callees are treated as conservatively nilable
		}
		val := site.Instr.Value()
		if val == nil || !c.mayNull(val) {
			continue
		}
		id, ok := g.NodeOf(val)
		if !ok {
			continue
		}
		out = append(out, SourceOccurrence{Node: id, Label: "external call result: " + site.Callee.Name()})
	}
	return out
}

// mayNull reports whether v should be treated as a possible nil source: the
// alias analysis's conservative MayNull when one was supplied, else a bare
// type check.
func (c *Checker) mayNull(v ssa.Value) bool {
	if c.alias != nil {
		return c.alias.MayNull(v)
	}
	return isNilableType(v.Type())
}

// nilSinks treats every pointer/interface dereference, every interface
// method dispatch, and every call through a dynamic function value as a
// potential nil-deref sink.
func (c *Checker) nilSinks(cg *callgraph.Graph, g *vfg.Graph) []SinkOccurrence {
	var out []SinkOccurrence
	for _, fn := range cg.Functions() {
		if fn.Blocks == nil {
			continue
		}
		for _, blk := range fn.Blocks {
			for _, instr := range blk.Instrs {
				var deref ssa.Value
				var label string
				switch v := instr.(type) {
				case *ssa.UnOp:
					if v.Op.String() == "*" {
						deref, label = v.X, "pointer dereference"
					}
				case *ssa.FieldAddr:
					deref, label = v.X, "field access"
				case *ssa.IndexAddr:
					deref, label = v.X, "index access"
				case *ssa.Call:
					if v.Call.IsInvoke() {
						deref, label = v.Call.Value, "interface method dispatch"
					} else if v.Call.Value != nil && v.Call.StaticCallee() == nil {
						deref, label = v.Call.Value, "dynamic call through function value"
					}
				}
				if deref == nil {
					continue
				}
				id, ok := g.NodeOf(deref)
				if !ok {
					continue
				}
				out = append(out, SinkOccurrence{Node: id, Label: label})
			}
		}
	}
	return out
}

func isNilConst(v ssa.Value) bool {
	c, ok := v.(*ssa.Const)
	return ok && c.IsNil()
}

func isNilableType(t types.Type) bool {
	switch t.Underlying().(type) {
	case *types.Pointer, *types.Interface, *types.Map, *types.Slice, *types.Chan, *types.Signature:
		return true
	default:
		return false
	}
}

func functionMatches(fn *ssa.Function, name string) bool {
	if fn.Name() == name {
		return true
	}
	return qualifiedName(fn) == name
}

func qualifiedName(fn *ssa.Function) string {
	if fn.Pkg != nil && fn.Pkg.Pkg != nil {
		return fn.Pkg.Pkg.Path() + "." + fn.Name()
	}
	return fn.Name()
}

func resolveLocation(site callgraph.CallSite, loc taintspec.Location) (ssa.Value, bool) {
	switch loc.Kind {
	case "Ret":
		val := site.Instr.Value()
		if val == nil {
			return nil, false
		}
		return val, true
	case "Arg", "AfterArg":
		args := site.Instr.Common().Args
		if loc.Arg < 0 || loc.Arg >= len(args) {
			return nil, false
		}
		// AfterArg resolves to the same argument value as Arg: the
		// pointee's post-call content is reached through the VFG's own
		// load/store-match edges once the pointer itself is marked, so a
		// distinct post-call node is unnecessary (deliberate precision
		// cut, mirrors Open Question 1's style of approximation).
		return args[loc.Arg], true
	default:
		return nil, false
	}
}
