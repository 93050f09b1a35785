// Package gvfa implements Global Value-Flow Analysis (C6): source/sink
// slicing over the value-flow graph (C3), driven by a
// lotus/internal/checker's source/sink/sanitizer contract and optionally
// accelerated by a lotus/internal/reach.Index (C4).
//
// Grounded on go-flow-levee earpointer's SourcesToSinks bounded-depth
// traversal for the overall "slice forward from sources, slice backward
// from sinks" shape; the REDESIGN FLAG in spec §9 applies here — slicing
// is plain functions over explicit worklists and parameters rather than coroutine-style
// captured-mutable-state closures.
package gvfa

import (
	"context"
	"sync"
	"time"

	"lotus/internal/alias"
	"lotus/internal/callgraph"
	"lotus/internal/checker"
	"lotus/internal/reach"
	"lotus/internal/tabulation"
	"lotus/internal/vfg"
)

// Mode selects the memory/precision tradeoff of the built slice (spec
// §4.7): Optimized tracks only a 32-bit OR'd source mask per node,
// Comprehensive tracks the full per-node source-index set.
type Mode int

const (
	Optimized Mode = iota
	Comprehensive
)

// maxOptimizedSources is the bit width of Optimized mode's per-node mask
// (spec §4.7: "up to 32 distinct source roots that share an entry point").
const maxOptimizedSources = 32

// Source names one extended source occurrence, carrying its originating
// checker label for reporting.
type Source struct {
	Node  vfg.NodeID
	Label string
}

// Engine is the built C6 artifact: the extended source/sink sets, their
// precomputed forward/backward slices, and an optional C4 index for exact
// per-pair queries.
type Engine struct {
	g   *vfg.Graph
	chk *checker.Checker
	idx *reach.Index // nil if no index was built or indexing is disabled
	mode Mode

	sources []Source
	sinks   []Source

	// Optimized mode: per-node OR of source bits.
	fwdMask map[vfg.NodeID]uint32
	// Comprehensive mode: per-node set of source indices.
	fwdSet map[vfg.NodeID]map[int]bool

	// backward-reachable-from-any-sink set, computed once over every sink
	// together (the cheap, precomputed half of backward_reachable_*).
	bwdAny map[vfg.NodeID]bool

	onlineMu      sync.Mutex
	onlineElapsed time.Duration
}

// Build constructs a C6 engine: it asks chk for the module's sources and
// sinks, extends the source set via alias (spec §4.7), then computes the
// forward slice (respecting chk.IsValidTransfer on every edge) and the
// backward-reachable-from-any-sink set. idx may be nil — Query then
// always takes the online ad hoc path.
func Build(ctx context.Context, g *vfg.Graph, chk *checker.Checker, cg *callgraph.Graph, a *alias.Analysis, mode Mode, idx *reach.Index) (*Engine, error) {
	rawSources := chk.GetSources(cg, g)
	rawSinks := chk.GetSinks(cg, g)

	sourceNodes := make([]vfg.NodeID, len(rawSources))
	sourceLabels := make([]string, len(rawSources))
	for i, s := range rawSources {
		sourceNodes[i] = s.Node
		sourceLabels[i] = s.Label
	}
	extended := extendSourceSet(a, g, sourceNodes)

	e := &Engine{g: g, chk: chk, idx: idx, mode: mode}
	e.sources = mergeLabeled(sourceNodes, sourceLabels, extended)
	for _, s := range rawSinks {
		e.sinks = append(e.sinks, Source{Node: s.Node, Label: s.Label})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch mode {
	case Optimized:
		e.fwdMask = forwardMasksOptimized(g, chk, e.sources)
	default:
		e.fwdSet = forwardSetComprehensive(g, chk, e.sources)
	}

	sinkNodes := make([]vfg.NodeID, len(e.sinks))
	for i, s := range e.sinks {
		sinkNodes[i] = s.Node
	}
	e.bwdAny = backwardReachableSet(g, chk, sinkNodes)

	return e, nil
}

// Sources returns every extended source occurrence the engine tracks,
// indexed identically to the bits of an Optimized-mode mask (bit i
// corresponds to Sources()[i] when i < 32).
func (e *Engine) Sources() []Source { return e.sources }

// Sinks returns every sink occurrence the engine tracks.
func (e *Engine) Sinks() []Source { return e.sinks }

// Reachable returns the subset of mask whose corresponding source bits
// reach v by forward value flow (spec §4.7 "reachable(v, mask)"). Only
// meaningful in Optimized mode; Comprehensive-mode callers should use
// ReachableSources instead.
func (e *Engine) Reachable(v vfg.NodeID, mask uint32) uint32 {
	if e.mode != Optimized {
		return 0
	}
	return e.fwdMask[v] & mask
}

// ReachableSources returns the indices of every source that reaches v by
// forward value flow. Only meaningful in Comprehensive mode.
func (e *Engine) ReachableSources(v vfg.NodeID) map[int]bool {
	if e.mode != Comprehensive {
		return nil
	}
	return e.fwdSet[v]
}

// BackwardReachable reports whether v can reach any registered sink,
// using the exact per-pair query path (the C4 index when one is built and
// complete, otherwise an online ad hoc bidirectional BFS) — spec §4.7's
// "backward_reachable(v) → bool (to any sink)".
func (e *Engine) BackwardReachable(ctx context.Context, v vfg.NodeID) (bool, error) {
	for _, s := range e.sinks {
		ok, err := e.Query(ctx, v, s.Node)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// BackwardReachableAllSinks reports whether v is in the engine's
// precomputed backward-reachable-from-any-sink set — spec §4.7's
// "backward_reachable_all_sinks(v) → bool", the cheap O(1) counterpart to
// BackwardReachable's exact per-pair query.
func (e *Engine) BackwardReachableAllSinks(v vfg.NodeID) bool {
	return e.bwdAny[v]
}

// Query answers a single (s, t) reachability question using the C4 index
// when available and complete; otherwise it falls back to an ad hoc
// online bidirectional BFS over the VFG and accumulates the elapsed time
// under a shared mutex (spec §4.7's "Online query mode").
func (e *Engine) Query(ctx context.Context, s, t vfg.NodeID) (bool, error) {
	if e.idx != nil && e.idx.Complete() {
		return e.idx.Reach(ctx, s, t)
	}
	start := time.Now()
	ok, err := onlineBidirectionalBFS(ctx, e.g, s, t)
	elapsed := time.Since(start)
	e.onlineMu.Lock()
	e.onlineElapsed += elapsed
	e.onlineMu.Unlock()
	return ok, err
}

// OnlineElapsed returns the cumulative wall-clock time spent in the
// online ad hoc BFS path, for diagnostics.
func (e *Engine) OnlineElapsed() time.Duration {
	e.onlineMu.Lock()
	defer e.onlineMu.Unlock()
	return e.onlineElapsed
}

// CFLStackQuery answers (s, t) reachability using the matched-parenthesis
// discipline directly (lotus/internal/tabulation), independent of the C4
// index, for cross-validating the index's answer (spec §4.7's "CFL-stack
// query"). It operates on the raw VFG and does not consult the checker's
// sanitizer veto — it validates the index's graph-level soundness, not
// the checker's taint semantics.
func (e *Engine) CFLStackQuery(ctx context.Context, s, t vfg.NodeID) (bool, error) {
	return tabulation.Reach(ctx, e.g, s, t)
}

func mergeLabeled(nodes []vfg.NodeID, labels []string, extra []vfg.NodeID) []Source {
	seen := make(map[vfg.NodeID]bool, len(nodes)+len(extra))
	out := make([]Source, 0, len(nodes)+len(extra))
	for i, n := range nodes {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, Source{Node: n, Label: labels[i]})
	}
	for _, n := range extra {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, Source{Node: n, Label: "alias-extended"})
	}
	return out
}
