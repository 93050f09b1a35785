package alias

import (
	"context"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/callgraph"
	"lotus/internal/dyck"
	"lotus/internal/lotuserr"
	"lotus/internal/progress"
)

// builder accumulates constraints while walking SSA, then saturates them
// into the Dyck graph in one worklist pass — mirroring the teacher's
// two-phase "walk, then resolve" style in ast_visitor.go (collect first,
// emit edges second) rather than emitting Dyck edges inline, since a
// constraint may reference a value not yet visited (forward Phi/FreeVar
// references).
type builder struct {
	g            *dyck.Graph
	cg           *callgraph.Graph
	constraints  []Constraint
	addressTaken map[*ssa.Function]bool
	nullValues   map[ssa.Value]bool
	allocLike    map[ssa.Value]bool
	universal    dyck.ID
	counters     lotuserr.Counters
}

// allocLikeNames lists external function names treated as allocators whose
// result may be null absent a more precise model (spec §4.2 may_null rule).
var allocLikeNames = map[string]bool{
	"malloc": true, "calloc": true, "realloc": true,
}

// Build walks every function in allFuncs, generates pointer constraints from
// its instructions, saturates them into a Dyck graph, and computes per-
// function mod/ref sets and indirect-call resolution, producing a frozen
// Analysis. cg is the module's call graph (internal/callgraph), used to
// propagate mod/ref sets along callee edges and to resolve indirect calls.
// ctx is checked between saturation rounds and between functions so a
// caller-imposed deadline surfaces as lotuserr.Timeout instead of the build
// running to completion regardless.
func Build(ctx context.Context, allFuncs map[*ssa.Function]bool, cg *callgraph.Graph, prog *progress.Reporter) (*Analysis, error) {
	b := &builder{
		g:            dyck.New(),
		cg:           cg,
		addressTaken: make(map[*ssa.Function]bool),
		nullValues:   make(map[ssa.Value]bool),
		allocLike:    make(map[ssa.Value]bool),
	}
	b.universal = b.g.MakeNode(nil)

	n := 0
	for fn := range allFuncs {
		if fn == nil {
			continue
		}
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, lotuserr.New(lotuserr.Timeout, "alias: constraint generation canceled")
			}
		}
		b.visitFunction(fn)
		n++
	}
	if prog != nil {
		prog.Count("functions visited for alias constraints", n)
	}

	if err := b.saturate(ctx); err != nil {
		return nil, err
	}

	modRef := b.computeModRef(allFuncs)

	a := &Analysis{
		Graph:        b.g,
		universal:    b.universal,
		addressTaken: addressTakenSlice(b.addressTaken),
		modRef:       modRef,
		nullValues:   b.nullValues,
		allocLike:    b.allocLike,
		Counters:     b.counters,
	}
	return a, nil
}

func addressTakenSlice(m map[*ssa.Function]bool) []*ssa.Function {
	out := make([]*ssa.Function, 0, len(m))
	for fn := range m {
		out = append(out, fn)
	}
	return out
}

// visitFunction walks one function's instructions, emitting one constraint
// per pointer-relevant instruction kind (spec §3's four constraint shapes).
func (b *builder) visitFunction(fn *ssa.Function) {
	for _, param := range fn.Params {
		b.g.MakeNode(param)
	}
	for _, fv := range fn.FreeVars {
		b.g.MakeNode(fv)
	}

	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			b.visitInstr(fn, instr)
		}
	}
}

func (b *builder) visitInstr(fn *ssa.Function, instr ssa.Instruction) {
	switch v := instr.(type) {
	case *ssa.Alloc:
		b.emitAddrOf(v, v)

	case *ssa.Global:
		// Globals are visited as operands where referenced; nothing to do
		// at definition site beyond node creation, handled lazily by nodeOf.

	case *ssa.FieldAddr:
		b.emitField(v, v.X, v.Field)

	case *ssa.IndexAddr:
		b.emitField(v, v.X, 0) // arrays/slices collapse to field 0 (field-insensitive element)

	case *ssa.Field:
		b.emitField(v, v.X, v.Field)

	case *ssa.Index:
		b.emitField(v, v.X, 0)

	case *ssa.UnOp:
		if v.Op.String() == "*" {
			b.emitLoad(v, v.X)
		}

	case *ssa.Store:
		b.emitStore(v.Addr, v.Val)

	case *ssa.Phi:
		for _, edge := range v.Edges {
			b.emitCopy(v, edge)
		}

	case *ssa.MakeClosure:
		b.addressTaken[v.Fn.(*ssa.Function)] = true
		for i, binding := range v.Bindings {
			fv := v.Fn.(*ssa.Function).FreeVars[i]
			b.emitCopy(fv, binding)
		}

	case *ssa.MakeInterface:
		b.emitCopy(v, v.X)

	case *ssa.ChangeInterface:
		b.emitCopy(v, v.X)

	case *ssa.TypeAssert:
		b.emitCopy(v, v.X)

	case *ssa.Convert:
		b.emitCopy(v, v.X)

	case *ssa.Return:
		for _, r := range v.Results {
			b.markAddressTaken(r)
		}

	case ssa.CallInstruction:
		b.visitCall(fn, v)
	}
}

// emitAddrOf records that p points to object (p ⊇ {object}).
func (b *builder) emitAddrOf(p, object ssa.Value) {
	b.constraints = append(b.constraints, Constraint{
		Kind: AddrOf, P: b.g.MakeNode(p), Object: b.g.MakeNode(object),
	})
}

// emitCopy records p ⊇ q.
func (b *builder) emitCopy(p, q ssa.Value) {
	b.constraints = append(b.constraints, Constraint{
		Kind: Copy, P: b.g.MakeNode(p), Q: b.g.MakeNode(q),
	})
}

// emitLoad records p ⊇ *q.
func (b *builder) emitLoad(p, q ssa.Value) {
	b.constraints = append(b.constraints, Constraint{
		Kind: Load, P: b.g.MakeNode(p), Q: b.g.MakeNode(q),
	})
}

// emitStore records *p ⊇ q.
func (b *builder) emitStore(p, q ssa.Value) {
	b.constraints = append(b.constraints, Constraint{
		Kind: Store, P: b.g.MakeNode(p), Q: b.g.MakeNode(q),
	})
}

// emitField treats a structural field/element access as a dedicated labeled
// edge rather than a generic constraint, since its target is deterministic
// (spec §4.1's Field label) rather than saturation-derived.
func (b *builder) emitField(result, base ssa.Value, index int) {
	baseID := b.g.MakeNode(base)
	resultID := b.g.MakeNode(result)
	b.g.SetSucc(baseID, dyck.FieldLabel(index), resultID)
}

func (b *builder) markAddressTaken(v ssa.Value) {
	if mc, ok := v.(*ssa.MakeClosure); ok {
		b.addressTaken[mc.Fn.(*ssa.Function)] = true
		return
	}
	if fn, ok := v.(*ssa.Function); ok {
		b.addressTaken[fn] = true
	}
}

// visitCall couples call arguments/results to the callee's params/return,
// taints the universal node on unmodeled external calls, and records
// allocation-like results as possibly null (spec §4.2).
func (b *builder) visitCall(caller *ssa.Function, instr ssa.CallInstruction) {
	common := instr.Common()
	val := instr.Value()

	for _, arg := range common.Args {
		b.markAddressTaken(arg)
	}

	if common.IsInvoke() {
		// Interface method dispatch: conservatively couple the receiver and
		// arguments to the universal node, since concrete receivers aren't
		// resolved until mod/ref propagation runs over the call graph.
		b.emitCopyToUniversal(common.Value)
		for _, arg := range common.Args {
			b.emitCopyToUniversal(arg)
		}
		if val != nil {
			b.emitUniversalToCopy(val)
		}
		return
	}

	callee := common.StaticCallee()
	if callee == nil {
		// Indirect call through a function value: couple args/result to the
		// universal node too; resolution to concrete targets happens via
		// b.cg (built independently via VTA) for mod/ref propagation, not
		// here — constraint generation stays conservative for soundness.
		b.emitCopyToUniversal(common.Value)
		if val != nil {
			b.emitUniversalToCopy(val)
		}
		return
	}

	if isExternalNoBody(callee) {
		b.visitExternalCall(callee, common, val)
		return
	}

	for i, arg := range common.Args {
		if i < len(callee.Params) {
			b.emitCopy(callee.Params[i], arg)
		}
	}
	if val != nil {
		for _, blk := range callee.Blocks {
			for _, i := range blk.Instrs {
				if ret, ok := i.(*ssa.Return); ok {
					for _, r := range ret.Results {
						b.emitCopy(val, r)
					}
				}
			}
		}
	}
}

// visitExternalCall handles calls to functions with no SSA body: known
// allocators get an allocLike marking (possibly-null result); anything else
// taints the universal node, per spec §4.2's "unknown external call"
// fallback, and is counted under lotuserr.ModelMissing.
func (b *builder) visitExternalCall(callee *ssa.Function, common *ssa.CallCommon, val ssa.Value) {
	if val != nil && allocLikeNames[callee.Name()] {
		b.allocLike[val] = true
		return
	}
	b.counters.Inc(lotuserr.ModelMissing)
	for _, arg := range common.Args {
		b.emitCopyToUniversal(arg)
	}
	if val != nil {
		b.emitUniversalToCopy(val)
	}
}

func isExternalNoBody(fn *ssa.Function) bool {
	return fn.Blocks == nil
}

// emitCopyToUniversal records p ⊇ universal, coupling p to the sentinel
// class directly by id rather than through the ssa.Value-keyed constructors
// (the Universal node has no real IR value backing it).
func (b *builder) emitCopyToUniversal(p ssa.Value) {
	b.constraints = append(b.constraints, Constraint{
		Kind: Copy, P: b.g.MakeNode(p), Q: b.universal,
	})
}

// emitUniversalToCopy records result ⊇ universal, i.e. the call result may
// alias anything the universal node reaches.
func (b *builder) emitUniversalToCopy(result ssa.Value) {
	b.constraints = append(b.constraints, Constraint{
		Kind: Copy, P: b.g.MakeNode(result), Q: b.universal,
	})
}

// saturate applies constraints to a fixpoint: AddrOf/Copy/Load/Store edges
// can each expose new Copy-equivalent work once Dyck classes merge, so the
// worklist loops until no constraint changes the graph (general Andersen-
// style fixpoint).
func (b *builder) saturate(ctx context.Context) error {
	changed := true
	for changed {
		if err := ctx.Err(); err != nil {
			return lotuserr.New(lotuserr.Timeout, "alias: constraint saturation canceled")
		}
		changed = false
		for _, c := range b.constraints {
			if b.apply(c) {
				changed = true
			}
		}
	}
	return nil
}

// apply applies one constraint and reports whether it changed the graph.
func (b *builder) apply(c Constraint) bool {
	switch c.Kind {
	case AddrOf:
		before := b.g.Find(c.P)
		b.g.SetSucc(c.P, dyck.DerefLabel, c.Object)
		return b.g.Find(c.P) != before || b.succMismatch(c.P, c.Object)

	case Copy:
		if b.g.Find(c.P) == b.g.Find(c.Q) {
			return false
		}
		b.g.Unite(c.P, c.Q)
		return true

	case Load:
		tgt, ok := b.g.Succ(c.Q, dyck.DerefLabel)
		if !ok {
			// *q has no known pointee yet; materialize one so later AddrOf
			// constraints on q can unify with it instead of silently
			// diverging (Andersen's classic "on-demand deref node").
			tgt = b.g.MakeNode(nil)
			b.g.SetSucc(c.Q, dyck.DerefLabel, tgt)
			b.g.Unite(c.P, tgt)
			return true
		}
		if b.g.Find(c.P) == b.g.Find(tgt) {
			return false
		}
		b.g.Unite(c.P, tgt)
		return true

	case Store:
		tgt, ok := b.g.Succ(c.P, dyck.DerefLabel)
		if !ok {
			b.g.SetSucc(c.P, dyck.DerefLabel, c.Q)
			return true
		}
		if b.g.Find(tgt) == b.g.Find(c.Q) {
			return false
		}
		b.g.Unite(tgt, c.Q)
		return true
	}
	return false
}

func (b *builder) succMismatch(p, object dyck.ID) bool {
	tgt, ok := b.g.Succ(p, dyck.DerefLabel)
	return ok && b.g.Find(tgt) != b.g.Find(object)
}

// computeModRef propagates per-function mod/ref sets over the call graph,
// bottom-up: a function's set is its direct Store/Load targets unioned with
// every reachable callee's set (spec §4.2). Cycles (mutual recursion) are
// cut by a depth-first walk that, on reaching a function already on its
// stack, uses that function's direct set instead of recursing.
func (b *builder) computeModRef(allFuncs map[*ssa.Function]bool) map[*ssa.Function]*ModRef {
	var funcs []*ssa.Function
	index := make(map[*ssa.Function]int)
	for fn := range allFuncs {
		if fn == nil {
			continue
		}
		index[fn] = len(funcs)
		funcs = append(funcs, fn)
	}

	direct := make([]*ModRef, len(funcs))
	for i, fn := range funcs {
		direct[i] = &ModRef{Mod: make(map[dyck.ID]bool), Ref: make(map[dyck.ID]bool)}
		b.collectDirectModRef(fn, direct[i])
	}

	succ := func(i int) []int {
		var out []int
		if b.cg == nil {
			return out
		}
		for _, callee := range b.cg.Callees(funcs[i]) {
			if j, ok := index[callee]; ok {
				out = append(out, j)
			}
		}
		return out
	}

	result := make(map[*ssa.Function]*ModRef, len(funcs))
	visited := make([]bool, len(funcs))

	var resolve func(i int, stack []int) *ModRef
	resolve = func(i int, stack []int) *ModRef {
		if visited[i] {
			return result[funcs[i]]
		}
		for _, s := range stack {
			if s == i {
				// Already on the stack: mutual recursion. Return the direct
				// set for now; the caller higher up the stack that closes
				// the cycle will merge it in once it finishes.
				return direct[i]
			}
		}
		mr := &ModRef{Mod: copyIDSet(direct[i].Mod), Ref: copyIDSet(direct[i].Ref)}
		for _, j := range succ(i) {
			callee := resolve(j, append(stack, i))
			for id := range callee.Mod {
				mr.Mod[id] = true
			}
			for id := range callee.Ref {
				mr.Ref[id] = true
			}
		}
		visited[i] = true
		result[funcs[i]] = mr
		return mr
	}

	for i := range funcs {
		if !visited[i] {
			resolve(i, nil)
		}
	}
	return result
}

func copyIDSet(m map[dyck.ID]bool) map[dyck.ID]bool {
	out := make(map[dyck.ID]bool, len(m))
	for id := range m {
		out[id] = true
	}
	return out
}

func (b *builder) collectDirectModRef(fn *ssa.Function, mr *ModRef) {
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			switch v := instr.(type) {
			case *ssa.Store:
				if id, ok := b.g.NodeOf(v.Addr); ok {
					mr.Mod[b.g.Find(id)] = true
				}
			case *ssa.UnOp:
				if v.Op.String() == "*" {
					if id, ok := b.g.NodeOf(v.X); ok {
						mr.Ref[b.g.Find(id)] = true
					}
				}
			}
		}
	}
}
