package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"lotus/internal/progress"
	"lotus/internal/reach"
	"lotus/internal/tabulation"
	"lotus/internal/vfg"
)

// benchQuery is one sampled (source,target) pair and its outcome.
type benchQuery struct {
	S, T     vfg.NodeID
	Index    bool
	CFLStack bool          // only populated when -g is set
	Elapsed  time.Duration // only populated when -t is set
}

type benchResult struct {
	Variant     string           `json:"variant"`
	NumNodes    int              `json:"numNodes"`
	Queries     int              `json:"queries"`
	Mismatches  int              `json:"mismatches"`
	QueryDetail []benchQueryJSON `json:"queryDetail,omitempty"`
}

type benchQueryJSON struct {
	S         vfg.NodeID `json:"s"`
	T         vfg.NodeID `json:"t"`
	Index     bool       `json:"index"`
	CFLStack  *bool      `json:"cflStack,omitempty"`
	ElapsedMS float64    `json:"elapsedMs,omitempty"`
}

// runBenchmark is the -m query-benchmark mode (spec §6): build the
// reachability index under the requested variant, sample -n random node
// pairs, query both the index and (with -g) the exact CFL-stack
// tabulation solver, and report mismatches — exit code 3 if any survive
// (or on the very first one, with -e).
func runBenchmark(ctx context.Context, g *vfg.Graph, f cliFlags, prog *progress.Reporter) int {
	opts, err := benchmarkOptions(f.m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitInputError
	}

	idx, err := reach.Build(ctx, g, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitBuildError
	}
	if !f.q {
		prog.Log("Built %s index over %d nodes (complete=%v)", f.m, g.NumNodes(), idx.Complete())
	}

	if g.NumNodes() == 0 {
		fmt.Fprintln(os.Stderr, "error: empty VFG, nothing to query")
		return exitInputError
	}

	rng := rand.New(rand.NewSource(f.r))
	pairs := make([][2]vfg.NodeID, f.n)
	for i := range pairs {
		pairs[i] = [2]vfg.NodeID{
			vfg.NodeID(rng.Intn(g.NumNodes())),
			vfg.NodeID(rng.Intn(g.NumNodes())),
		}
	}

	queries := make([]benchQuery, f.n)
	mismatches := 0
	var mu sync.Mutex
	exitEarly := false

	workers := f.p
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, pair := range pairs {
		mu.Lock()
		if exitEarly {
			mu.Unlock()
			break
		}
		mu.Unlock()

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, s, t vfg.NodeID) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			ok, qerr := idx.Reach(ctx, s, t)
			elapsed := time.Since(start)
			if qerr != nil {
				ok = true // index fallback on error: conservative "may reach"
			}

			bq := benchQuery{S: s, T: t, Index: ok}
			if f.t {
				bq.Elapsed = elapsed
			}
			if f.g {
				cflOK, cerr := tabulation.Reach(ctx, g, s, t)
				if cerr == nil {
					bq.CFLStack = cflOK
					if ok != cflOK {
						mu.Lock()
						mismatches++
						if f.e {
							exitEarly = true
						}
						mu.Unlock()
					}
				}
			}
			queries[i] = bq
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	return reportBenchmark(f, g, queries, mismatches)
}

func benchmarkOptions(variant string) (reach.Options, error) {
	switch variant {
	case "pathtree":
		return reach.Options{Variant: reach.VariantPathTree}, nil
	case "grail":
		return reach.Options{Variant: reach.VariantGrail}, nil
	case "pathtree+grail":
		return reach.Options{Variant: reach.VariantBoth}, nil
	default:
		return reach.Options{}, fmt.Errorf("unknown index variant %q: want pathtree, grail, or pathtree+grail", variant)
	}
}

func reportBenchmark(f cliFlags, g *vfg.Graph, queries []benchQuery, mismatches int) int {
	if f.j {
		res := benchResult{Variant: f.m, NumNodes: g.NumNodes(), Queries: len(queries), Mismatches: mismatches}
		if f.t || f.g {
			for _, q := range queries {
				jq := benchQueryJSON{S: q.S, T: q.T, Index: q.Index}
				if f.g {
					v := q.CFLStack
					jq.CFLStack = &v
				}
				if f.t {
					jq.ElapsedMS = float64(q.Elapsed) / float64(time.Millisecond)
				}
				res.QueryDetail = append(res.QueryDetail, jq)
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
	} else if !f.q {
		fmt.Printf("ran %d queries over %d nodes: %d mismatch(es)\n", len(queries), g.NumNodes(), mismatches)
		if f.t {
			var total time.Duration
			for _, q := range queries {
				total += q.Elapsed
			}
			if len(queries) > 0 {
				fmt.Printf("average query time: %v\n", total/time.Duration(len(queries)))
			}
		}
	}

	if mismatches > 0 {
		return exitQueryMismatch
	}
	return exitOK
}
