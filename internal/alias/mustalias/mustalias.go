// Package mustalias implements the under-approximate must-alias decider
// (auxiliary to C2): a conservative, per-function union-find seeded by a
// fixed disjunctive rule set, used where the saturated Dyck graph's
// may-alias answer is too imprecise for a caller that needs a definite
// verdict.
//
// Grounded on the teacher's escape.go (a small, single-purpose SSA scan
// building a per-function decision set) rather than the bigger ast_visitor
// walker, since this is exactly that shape: one pass, one union-find, no
// cross-function state.
package mustalias

import (
	"go/constant"

	"golang.org/x/tools/go/ssa"
)

// ID indexes a value's must-alias class within one function's Decider.
type ID int

// Decider answers must-alias queries for values within a single function,
// computed once and then reused (spec §4.3: "classes are computed once per
// function; query is union-find find").
type Decider struct {
	parent []ID
	index  map[ssa.Value]ID
}

// Build computes the must-alias classes for every instruction-produced
// value in fn, seeding the union-find with the structural rules of
// candidatesFor and then closing it under "operand-wise must-aliased
// operands of the same opcode must-alias" (FieldAddr, IndexAddr, Convert).
func Build(fn *ssa.Function) *Decider {
	d := &Decider{index: make(map[ssa.Value]ID)}

	register := func(v ssa.Value) ID {
		if id, ok := d.index[v]; ok {
			return id
		}
		id := ID(len(d.parent))
		d.parent = append(d.parent, id)
		d.index[v] = id
		return id
	}

	for _, p := range fn.Params {
		register(p)
	}
	for _, fv := range fn.FreeVars {
		register(fv)
	}
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if v, ok := instr.(ssa.Value); ok {
				register(v)
			}
		}
	}

	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			v, ok := instr.(ssa.Value)
			if !ok {
				continue
			}
			for _, other := range candidatesFor(v, d) {
				if other != nil {
					d.union(register(v), register(other))
				}
			}
		}
	}

	// Opcode-congruence closure: any two values computed by the same kind
	// of instruction over already-must-aliased operands also must-alias
	// (rule 7's "reached via casts/zero-GEPs" generalized into a closure
	// pass, mirroring the Dyck graph's congruence step in spirit).
	changed := true
	for changed {
		changed = false
		for _, blk := range fn.Blocks {
			for _, instr := range blk.Instrs {
				v, ok := instr.(ssa.Value)
				if !ok {
					continue
				}
				for _, blk2 := range fn.Blocks {
					for _, instr2 := range blk2.Instrs {
						w, ok := instr2.(ssa.Value)
						if !ok || v == w {
							continue
						}
						if d.find(register(v)) == d.find(register(w)) {
							continue
						}
						if sameOpcodeCongruent(v, w, d) {
							d.union(register(v), register(w))
							changed = true
						}
					}
				}
			}
		}
	}

	return d
}

// Must reports whether a and b are in the same must-alias class. Values
// never registered (e.g. from a different function) are never must-aliased.
func (d *Decider) Must(a, b ssa.Value) bool {
	ia, ok1 := d.index[a]
	ib, ok2 := d.index[b]
	if !ok1 || !ok2 {
		return false
	}
	return d.find(ia) == d.find(ib)
}

func (d *Decider) find(id ID) ID {
	root := id
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for d.parent[id] != root {
		next := d.parent[id]
		d.parent[id] = root
		id = next
	}
	return root
}

func (d *Decider) union(a, b ID) {
	ra, rb := d.find(a), d.find(b)
	if ra != rb {
		d.parent[rb] = ra
	}
}

// candidatesFor returns, for v, every other value that one of the seeding
// rules proves must-alias v — direct structural matches, checked without
// needing the union-find (the closure pass above handles the transitive
// opcode rule). The rules applied are: no-op Convert/ChangeType strips to
// its operand, a zero-offset FieldAddr/IndexAddr aliases its base, and a Phi
// whose incoming values all strip to one value aliases that value. There is
// no null-literal rule and no pointer/integer round-trip rule, and values
// that are not instructions, parameters or free variables (constants,
// globals) are never registered, so they never must-alias anything.
func candidatesFor(v ssa.Value, d *Decider) []ssa.Value {
	switch x := v.(type) {
	case *ssa.Convert:
		// Rule 1: bitcast / no-op conversions (e.g. through unsafe.Pointer)
		// strip to their operand.
		return []ssa.Value{strip(x.X)}

	case *ssa.ChangeType:
		// Identity-preserving type change: same rule family as Convert.
		return []ssa.Value{strip(x.X)}

	case *ssa.FieldAddr:
		// Rule 2/3: a zero-offset field access must-aliases its base.
		if x.Field == 0 {
			return []ssa.Value{strip(x.X)}
		}

	case *ssa.IndexAddr:
		if isZeroConst(x.Index) {
			return []ssa.Value{strip(x.X)}
		}

	case *ssa.Phi:
		// Rule 6: every incoming value strips to the same other value.
		if len(x.Edges) == 0 {
			return nil
		}
		first := strip(x.Edges[0])
		for _, e := range x.Edges[1:] {
			if strip(e) != first {
				return nil
			}
		}
		return []ssa.Value{first}
	}
	return nil
}

// strip unwraps no-op Convert/ChangeType wrappers, rule 1's "after
// stripping no-op casts" normalization.
func strip(v ssa.Value) ssa.Value {
	for {
		switch x := v.(type) {
		case *ssa.Convert:
			v = x.X
		case *ssa.ChangeType:
			v = x.X
		default:
			return v
		}
	}
}

func isZeroConst(v ssa.Value) bool {
	c, ok := v.(*ssa.Const)
	if !ok || c.Value == nil {
		return false
	}
	return c.Value.Kind() == constant.Int && constant.Sign(c.Value) == 0
}

// sameOpcodeCongruent reports whether v and w are produced by the same
// instruction kind over pairwise must-aliased operands (the rule set's
// closure condition).
func sameOpcodeCongruent(v, w ssa.Value, d *Decider) bool {
	switch a := v.(type) {
	case *ssa.FieldAddr:
		b, ok := w.(*ssa.FieldAddr)
		return ok && a.Field == b.Field && d.Must(a.X, b.X)
	case *ssa.IndexAddr:
		b, ok := w.(*ssa.IndexAddr)
		return ok && d.Must(a.X, b.X) && d.Must(a.Index, b.Index)
	case *ssa.Convert:
		b, ok := w.(*ssa.Convert)
		return ok && d.Must(a.X, b.X)
	}
	return false
}
