// Command lotus is the CLI driver for the alias/value-flow/reachability
// pipeline (spec §6): it loads a Go program, builds C1-C4, optionally runs
// a taint or null-pointer check over C6, persists the run to SQLite, and
// emits a report. Passing -m runs the query-benchmark mode instead of that
// analysis: sampling random node-pair queries and cross-validating the
// reachability index against the exact online tabulation solver.
//
// Structured the way the teacher's main.go is: a thin main() delegating to
// run(), which does everything and returns the process exit code, so
// deferred cleanup always executes even on an error path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"lotus/internal/alias"
	"lotus/internal/callgraph"
	"lotus/internal/pkgload"
	"lotus/internal/progress"
	"lotus/internal/vfg"
)

const (
	exitOK           = 0
	exitInputError   = 1
	exitBuildError   = 2
	exitQueryMismatch = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

type cliFlags struct {
	nworkers     int
	numFunctions int
	maxPointers  int

	// query-benchmark flags (spec §6)
	n int    // number of random query pairs
	g bool   // cross-validate each pair against the CFL-stack tabulation path
	q bool   // quiet: suppress progress logging during the benchmark
	t bool   // print per-query timing statistics
	r int64  // random seed
	p int    // parallel query workers
	j bool   // emit benchmark results as JSON
	m string // index variant: pathtree | grail | pathtree+grail
	d string // dump the serialized VFG to this path before benchmarking
	e bool   // exit on first query mismatch instead of reporting all

	taintSpecPath string
	dbPath        string
	sarifPath     string
	verbose       bool
}

func run(args []string) int {
	fs := flag.NewFlagSet("lotus", flag.ContinueOnError)
	var f cliFlags
	fs.IntVar(&f.nworkers, "nworkers", 0, "worker count for tabulation/scheduler (0 = main-thread only); accepted but not read by the analysis or benchmark pipeline")
	fs.IntVar(&f.numFunctions, "num-functions", 0, "cap on functions loaded, 0 = no cap (comparison tool)")
	fs.IntVar(&f.maxPointers, "max-pointers", 0, "cap on alias-graph nodes (comparison tool); accepted but not applied, the alias graph is never capped")
	fs.IntVar(&f.n, "n", 1000, "number of random query pairs to benchmark")
	fs.BoolVar(&f.g, "g", false, "cross-validate each benchmark pair against the CFL-stack tabulation path")
	fs.BoolVar(&f.q, "q", false, "quiet: suppress progress logging during the benchmark")
	fs.BoolVar(&f.t, "t", false, "print per-query timing statistics")
	fs.Int64Var(&f.r, "r", 1, "random seed for query sampling")
	fs.IntVar(&f.p, "p", 1, "parallel query workers for the benchmark phase")
	fs.BoolVar(&f.j, "j", false, "emit benchmark results as JSON")
	fs.StringVar(&f.m, "m", "", "run query-benchmark mode, building this index variant: pathtree, grail, or pathtree+grail")
	fs.StringVar(&f.d, "d", "", "dump the serialized VFG to this path before benchmarking")
	fs.BoolVar(&f.e, "e", false, "exit with code 3 on the first query mismatch")
	fs.StringVar(&f.taintSpecPath, "taintspec", "", "taint spec file (enables the taint checker instead of null-pointer)")
	fs.StringVar(&f.dbPath, "db", "", "path to write the SQLite run store, empty to skip persistence")
	fs.StringVar(&f.sarifPath, "sarif", "", "path to write a SARIF report, empty to skip")
	fs.BoolVar(&f.verbose, "verbose", false, "print detailed progress")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lotus [flags] <package-pattern>\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitInputError
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitInputError
	}
	pattern := fs.Arg(0)

	prog := progress.New(f.verbose)
	ctx := context.Background()

	dir, err := filepath.Abs(pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitInputError
	}
	modPath := pkgload.ReadModulePath(dir)
	if modPath == "" {
		fmt.Fprintf(os.Stderr, "error: no module found at %s\n", dir)
		return exitInputError
	}
	ms := pkgload.New(pkgload.Module{ModPath: modPath, Dir: dir}, nil)

	loaded, err := pkgload.Load(ms, prog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitInputError
	}

	funcs := knownFuncs(loaded.AllFuncs, ms)
	if f.numFunctions > 0 && len(funcs) > f.numFunctions {
		funcs = capFuncs(funcs, f.numFunctions)
	}

	cg := callgraph.Build(funcs)

	a, err := alias.Build(ctx, funcs, cg, prog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitBuildError
	}

	g := vfg.Build(funcs, a, cg, prog)
	prog.Count("built VFG with", g.NumNodes())

	if f.d != "" {
		if err := dumpVFG(f.d, g); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitBuildError
		}
	}

	if f.m != "" {
		return runBenchmark(ctx, g, f, prog)
	}

	return runAnalysis(ctx, f, modPath, g, cg, a, prog)
}
