// Package tabulation implements the exactly-matched reachability solver
// (C5): depth-first traversal of the Value Flow Graph respecting the
// Dyck-matching discipline on call/return edge labels, both sequentially
// and in parallel across many sources.
//
// Grounded on the teacher's worklist-style traversals (ast_visitor.go uses
// an explicit stack rather than recursion when walking deeply nested AST
// structures) for the sequential solver's shape, and on
// aclements-go-misc/gopool's fixed worker-pool-over-a-channel pattern —
// generalized here to golang.org/x/sync/errgroup — for the parallel
// variant (spec §4.6's "worker pool of nworkers threads").
package tabulation

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"lotus/internal/vfg"
)

// state is one DFS frame: the current vertex plus the stack of still-open
// call-site ids (spec §4.6: "stack of open call-site ids").
type state struct {
	v     vfg.NodeID
	stack []int
}

func (s state) key() string {
	// A simple, allocation-light encoding: vertex id followed by the open
	// stack, joined by separators that can't collide with int digits.
	b := make([]byte, 0, 8+4*len(s.stack))
	b = appendInt(b, int(s.v))
	for _, k := range s.stack {
		b = append(b, '|')
		b = appendInt(b, k)
	}
	return string(b)
}

func appendInt(b []byte, n int) []byte {
	if n < 0 {
		b = append(b, '-')
		n = -n
	}
	if n == 0 {
		return append(b, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
	}
	return append(b, tmp[i:]...)
}

// Reach reports whether t is exactly-matched-reachable from s in g: a DFS
// with a visited set keyed by (vertex, call-stack) that follows label-0
// edges unconditionally, pushes on +k edges, and only follows a −k edge
// when k is the top of the open-call stack (spec §4.6's sequential
// algorithm). ctx is polled between dequeues; a canceled context makes
// Reach return false along with ctx.Err().
func Reach(ctx context.Context, g *vfg.Graph, s, t vfg.NodeID) (bool, error) {
	if s == t {
		return true, nil
	}
	visited := make(map[string]bool)
	stack := []state{{v: s}}
	steps := 0
	for len(stack) > 0 {
		steps++
		if steps%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		k := cur.key()
		if visited[k] {
			continue
		}
		visited[k] = true

		if cur.v == t && len(cur.stack) == 0 {
			return true, nil
		}

		for _, e := range g.Out(cur.v) {
			next := advance(cur, e)
			if next != nil {
				stack = append(stack, *next)
			}
		}
	}
	return false, nil
}

// advance applies one VFG edge to a DFS state, returning the successor
// state or nil if the edge's label is incompatible with the open stack
// (a −k return with a mismatched or empty stack top).
func advance(cur state, e vfg.Edge) *state {
	switch {
	case e.Label == 0:
		ns := append(append([]int(nil), cur.stack...))
		return &state{v: e.To, stack: ns}
	case e.Label > 0:
		ns := append(append([]int(nil), cur.stack...), e.Label)
		return &state{v: e.To, stack: ns}
	default:
		want := -e.Label
		if len(cur.stack) == 0 || cur.stack[len(cur.stack)-1] != want {
			return nil
		}
		ns := append([]int(nil), cur.stack[:len(cur.stack)-1]...)
		return &state{v: e.To, stack: ns}
	}
}

// ReachSet computes, for a single source s, every t reachable from s by
// one traversal (this is what the seed scenarios and I4 round-trip test
// exercise directly; it shares the same DFS core as Reach but records
// every (vertex, empty-stack) state it lands in instead of stopping at a
// single target).
func ReachSet(ctx context.Context, g *vfg.Graph, s vfg.NodeID) (map[vfg.NodeID]bool, error) {
	visited := make(map[string]bool)
	result := make(map[vfg.NodeID]bool)
	stack := []state{{v: s}}
	steps := 0
	for len(stack) > 0 {
		steps++
		if steps%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return result, err
			}
		}
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		k := cur.key()
		if visited[k] {
			continue
		}
		visited[k] = true

		if len(cur.stack) == 0 {
			result[cur.v] = true
		}

		for _, e := range g.Out(cur.v) {
			next := advance(cur, e)
			if next != nil {
				stack = append(stack, *next)
			}
		}
	}
	return result, nil
}

// DefaultWorkerCount returns min(hardware concurrency - 1, 10), per spec
// §4.6's default nworkers formula; never less than 1.
func DefaultWorkerCount() int {
	n := runtime.NumCPU() - 1
	if n > 10 {
		n = 10
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ParallelReachSets computes ReachSet for every source in sources
// concurrently, using an errgroup-managed pool bounded at nworkers (spec
// §4.6's parallel variant). A source's result is committed to the
// returned map only once its whole traversal completes without error —
// the spec's "per-source closures committed atomically" guarantee — so
// partial per-source state is never observable by a caller. If ctx is
// canceled mid-flight, sources whose traversal had already finished still
// appear in the result; any source still in flight at cancellation has no
// entry at all, rather than the partial set accumulated so far.
func ParallelReachSets(ctx context.Context, g *vfg.Graph, sources []vfg.NodeID, nworkers int) map[vfg.NodeID]map[vfg.NodeID]bool {
	if nworkers < 1 {
		nworkers = 1
	}
	results := make(map[vfg.NodeID]map[vfg.NodeID]bool, len(sources))
	var mu sync.Mutex

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(nworkers)

	for _, s := range sources {
		s := s
		grp.Go(func() error {
			set, err := ReachSet(gctx, g, s)
			if err != nil {
				return nil // canceled mid-traversal: this source's result is dropped, not partially committed
			}
			mu.Lock()
			results[s] = set
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait() // errors are per-source cancellations, already handled above

	return results
}

// sortedNodeIDs is a small helper used by callers that need deterministic
// iteration order over a reach-set (e.g. serialization, tests) — sequential
// tabulation is deterministic in vertex-id order per spec §4.6.
func sortedNodeIDs(set map[vfg.NodeID]bool) []vfg.NodeID {
	out := make([]vfg.NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
