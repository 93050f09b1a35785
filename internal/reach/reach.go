// Package reach builds the Reachability Index (C4): a precomputed
// structure over the Value Flow Graph that answers matched (Dyck/CFL)
// reachability queries without a full tabulation pass in the common case,
// falling back to exact online tabulation (C5) only when its cheaper
// filters can't settle the query.
//
// Grounded on the teacher's condensation-before-traversal habit in
// cdg.go (it collapses control-dependence cycles before walking them) for
// the general shape of "condense, then index the DAG, then fall back to
// an exact walk" — generalized here from a single SCC pass into the
// five-step build and four-level query spec §4.5 describes.
package reach

import (
	"context"

	"lotus/internal/graphutil"
	"lotus/internal/lotuserr"
	"lotus/internal/tabulation"
	"lotus/internal/vfg"
)

// Variant selects which of the two independent backbone index schemes
// Build constructs — matching csr.cpp's indexing switch, which builds
// and queries only Grail, only the path-tree ("Pathtree"), or both,
// so their construction cost, size, and pruning power can be compared
// per-scheme. The zero value, VariantBoth, is the production default.
type Variant int

const (
	VariantBoth Variant = iota
	VariantPathTree
	VariantGrail
)

// Options tunes backbone extraction (spec §4.5 step 3) and which index
// scheme(s) Build constructs. Epsilon bounds how many non-anchor nodes are
// admitted into the backbone beyond the anchor set; Probability is each
// one's independent admission chance. Zero values are replaced with the
// spec's defaults (10, 0.02).
type Options struct {
	Epsilon     int
	Probability float64
	Variant     Variant
}

func (o Options) normalized() backboneOptions {
	d := defaultBackboneOptions()
	if o.Epsilon > 0 {
		d.Epsilon = o.Epsilon
	}
	if o.Probability > 0 {
		d.Probability = o.Probability
	}
	return d
}

// Index is the built, queryable reachability structure.
type Index struct {
	g *vfg.Graph

	// rep groups nodes that are mutually matched-reachable: members of one
	// SCC computed over the *matched* graph (label-0 edges union the
	// summary edges produced by step 1's CFL closure). Every edge in that
	// graph represents a witnessed matched path — including label-0 edges,
	// trivially — so shared SCC membership is a sound unconditional
	// "true": unlike an SCC computed over the raw VFG (which would also
	// include un-summarized +k/-k edges and could cycle without any
	// matched path existing), this one only closes over edges already
	// proven matched.
	rep []int

	// repAll/condAll group and condense the graph ignoring bracket
	// polarity entirely — every raw edge, regardless of label, is treated
	// as traversable. Matched-reachability is a subset of this relation,
	// so "unreachable in condAll" soundly implies "unreachable" overall;
	// the converse does not hold, which is why it may only ever rule a
	// query OUT, never confirm it.
	repAll  []int
	condAll map[int]map[int]bool

	backbone map[int]bool
	grail    *grailLabeling
	pathTree *pathTreeLabeling

	complete bool // false if Build was canceled or exceeded its budget
}

// Complete reports whether the index finished building. Per spec §4.5,
// construction failure is monotone: a canceled, errored, or
// budget-exceeded build is discarded wholesale rather than used partially.
func (ix *Index) Complete() bool { return ix.complete }

const numGrailTrees = 2

// Build constructs the reachability index for g. Construction can be
// canceled via ctx; a canceled or budget-exceeded build returns a non-nil,
// incomplete Index (Complete() == false) alongside an error, per §4.5's
// "queries against an incomplete index return conservative may-reach."
func Build(ctx context.Context, g *vfg.Graph, opts Options) (*Index, error) {
	n := g.NumNodes()
	ix := &Index{g: g}
	bbOpts := opts.normalized()

	// Step 1: summary-edge construction (CFL matched-parenthesis closure).
	summary, ok := buildSummaryRelation(g)
	if !ok {
		return ix, lotuserr.New(lotuserr.BuildIncomplete, "reach: summary-edge closure exceeded its budget")
	}
	if err := ctx.Err(); err != nil {
		return ix, lotuserr.Wrap(lotuserr.Timeout, "reach: build canceled after summary-edge closure", err)
	}

	// Step 2: SCC/condensation of the matched graph (label-0 edges union
	// the witnessed summary edges) — the sound basis for the level-1
	// unconditional "true" shortcut.
	succMatched := func(i int) []int {
		var out []int
		for _, e := range g.Out(vfg.NodeID(i)) {
			if e.Label == 0 {
				out = append(out, int(e.To))
			}
		}
		for v := range summary.edges[vfg.NodeID(i)] {
			out = append(out, int(v))
		}
		return out
	}
	ix.rep, _ = graphutil.Tarjan(n, succMatched)

	if err := ctx.Err(); err != nil {
		return ix, lotuserr.Wrap(lotuserr.Timeout, "reach: build canceled before all-label condensation", err)
	}

	// All-labels condensation: the sound over-approximation used only for
	// negative pruning (GRAIL/path-tree).
	succAll := func(i int) []int {
		var out []int
		for _, e := range g.Out(vfg.NodeID(i)) {
			out = append(out, int(e.To))
		}
		return out
	}
	var order []int
	ix.repAll, order = graphutil.Tarjan(n, succAll)
	ix.condAll = graphutil.Condensation(n, succAll, ix.repAll)

	if err := ctx.Err(); err != nil {
		return ix, lotuserr.Wrap(lotuserr.Timeout, "reach: build canceled before backbone extraction", err)
	}

	// Step 3: backbone extraction.
	ix.backbone = selectBackbone(order, ix.condAll, bbOpts)
	backboneAdj := filterAdjacency(ix.condAll, ix.backbone)
	var backboneOrder []int
	for _, rep := range order {
		if ix.backbone[rep] {
			backboneOrder = append(backboneOrder, rep)
		}
	}

	if err := ctx.Err(); err != nil {
		return ix, lotuserr.Wrap(lotuserr.Timeout, "reach: build canceled before labeling", err)
	}

	// Steps 4 & 5: path-tree and GRAIL labeling, both scoped to the
	// backbone — built only when opts.Variant selects them, so a
	// single-scheme run pays only that scheme's construction cost.
	if opts.Variant != VariantGrail {
		ix.pathTree = buildPathTreeLabeling(backboneOrder, backboneAdj)
	}
	if opts.Variant != VariantPathTree {
		ix.grail = buildGrailLabeling(backboneOrder, backboneAdj, numGrailTrees)
	}

	if err := ctx.Err(); err != nil {
		return ix, lotuserr.Wrap(lotuserr.Timeout, "reach: build canceled before completion", err)
	}

	ix.complete = true
	return ix, nil
}

// Reach answers whether t is matched-reachable from s, per spec §4.5's
// four-level filter: an unconditional SCC shortcut, two independent
// sound-negative index checks (scoped to the backbone), and an exact
// tabulation fallback. If the index never finished building it answers
// conservatively (true, "may reach") rather than risk a false negative
// from partial state.
func (ix *Index) Reach(ctx context.Context, s, t vfg.NodeID) (bool, error) {
	if !ix.complete {
		return true, nil
	}
	if s == t {
		return true, nil
	}

	// Level 1: matched-graph SCC membership — sound unconditional "true".
	if ix.rep[s] == ix.rep[t] {
		return true, nil
	}

	rs, rt := ix.repAll[s], ix.repAll[t]
	if ix.backbone[rs] && ix.backbone[rt] {
		// Level 2: GRAIL interval pruning — sound "false" only. Absent
		// when Build's Variant excluded it.
		if ix.grail != nil && !ix.grail.mayReach(rs, rt) {
			return false, nil
		}
		// Level 3: path-tree / out-uncover pruning — sound "false" only.
		// Absent when Build's Variant excluded it.
		if ix.pathTree != nil && !ix.pathTree.mayReach(rs, rt) {
			return false, nil
		}
	}

	// Level 4: exact fallback (neither index level settled the query, or
	// one of the two representatives falls outside the ε-approximate
	// backbone coverage).
	return tabulation.Reach(ctx, ix.g, s, t)
}
