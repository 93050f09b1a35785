package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/alias"
	"lotus/internal/callgraph"
	"lotus/internal/checker"
	"lotus/internal/gvfa"
	"lotus/internal/pkgload"
	"lotus/internal/progress"
	"lotus/internal/reach"
	"lotus/internal/report"
	"lotus/internal/serialize"
	"lotus/internal/store"
	"lotus/internal/taintspec"
	"lotus/internal/vfg"
)

// knownFuncs filters funcs down to the ones pkgload.KnownFunc accepts:
// non-synthetic functions belonging to a package inside ms. ssautil.AllFunctions
// returns every function in the loaded program's dependency closure,
// including stdlib and third-party packages C1-C7 have no business walking
// into; this is the filter applied before any of them see the set.
func knownFuncs(funcs map[*ssa.Function]bool, ms *pkgload.ModuleSet) map[*ssa.Function]bool {
	out := make(map[*ssa.Function]bool, len(funcs))
	for fn := range funcs {
		if pkgload.KnownFunc(fn, ms) {
			out[fn] = true
		}
	}
	return out
}

// capFuncs deterministically trims funcs down to limit, used by
// --num-functions for the comparison tool (spec §6): functions are sorted
// by qualified name first so the cap is reproducible across runs.
func capFuncs(funcs map[*ssa.Function]bool, limit int) map[*ssa.Function]bool {
	names := make([]*ssa.Function, 0, len(funcs))
	for fn := range funcs {
		names = append(names, fn)
	}
	sort.Slice(names, func(i, j int) bool {
		return names[i].String() < names[j].String()
	})
	if limit > len(names) {
		limit = len(names)
	}
	capped := make(map[*ssa.Function]bool, limit)
	for _, fn := range names[:limit] {
		capped[fn] = true
	}
	return capped
}

func dumpVFG(path string, g *vfg.Graph) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dump vfg: %w", err)
	}
	defer out.Close()
	_, err = serialize.WriteVFG(out, g)
	return err
}

// runAnalysis is the default (non-benchmark) pipeline: build the
// reachability index, run a checker over C6 if a taint spec was given
// (otherwise the null-pointer checker), persist the run, and emit reports.
func runAnalysis(ctx context.Context, f cliFlags, modPath string, g *vfg.Graph, cg *callgraph.Graph, a *alias.Analysis, prog *progress.Reporter) int {
	chk, err := resolveChecker(f.taintSpecPath, a)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitInputError
	}
	chk.InjectPipeEdges(cg, g)

	idx, err := reach.Build(ctx, g, reach.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitBuildError
	}
	prog.Log("Reachability index built (complete=%v)", idx.Complete())

	eng, err := gvfa.Build(ctx, g, chk, cg, a, gvfa.Optimized, idx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitBuildError
	}

	findings := collectFindings(eng, g, chk.Kind)
	prog.Log("Found %d finding(s)", len(findings))

	reportFindings := make([]report.Finding, len(findings))
	for i, fd := range findings {
		reportFindings[i] = fd.Finding
	}

	if f.sarifPath != "" {
		if err := writeSARIF(f.sarifPath, reportFindings); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitBuildError
		}
	} else {
		_ = report.WriteHuman(os.Stdout, reportFindings)
	}

	if f.dbPath != "" {
		if err := persistRun(f.dbPath, modPath, g, findings); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitBuildError
		}
	}

	return exitOK
}

func resolveChecker(taintSpecPath string, a *alias.Analysis) (*checker.Checker, error) {
	if taintSpecPath == "" {
		return checker.NewNullPointerChecker(a), nil
	}
	f, err := os.Open(taintSpecPath)
	if err != nil {
		return nil, fmt.Errorf("open taint spec: %w", err)
	}
	defer f.Close()
	spec, err := taintspec.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse taint spec: %w", err)
	}
	return checker.NewTaintChecker(spec), nil
}

type finding struct {
	report.Finding
	sourceNode, sinkNode vfg.NodeID
}

func collectFindings(eng *gvfa.Engine, g *vfg.Graph, kind checker.Kind) []finding {
	var findings []finding
	for _, src := range eng.Sources() {
		if !eng.BackwardReachableAllSinks(src.Node) {
			continue
		}
		for _, sink := range eng.Sinks() {
			findings = append(findings, finding{
				Finding: report.Finding{
					Kind:    kind.String(),
					Message: fmt.Sprintf("%s source reaches a %s sink", kind, kind),
					Source:  nodeLocation(g, src.Node),
					Sink:    nodeLocation(g, sink.Node),
				},
				sourceNode: src.Node,
				sinkNode:   sink.Node,
			})
		}
	}
	return findings
}

func nodeLocation(g *vfg.Graph, id vfg.NodeID) report.Location {
	v := g.Value(id)
	loc := report.Location{}
	if p, ok := v.(interface{ Parent() *ssa.Function }); ok && p.Parent() != nil {
		loc.Func = p.Parent().String()
	}
	return loc
}

func writeSARIF(path string, findings []report.Finding) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write sarif: %w", err)
	}
	defer out.Close()
	return report.WriteSARIF(out, "v0.1.0", findings)
}

func persistRun(path, modPath string, g *vfg.Graph, findings []finding) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	var buf bytes.Buffer
	if _, err := serialize.WriteVFG(&buf, g); err != nil {
		return err
	}

	numEdges := 0
	for id := 0; id < g.NumNodes(); id++ {
		numEdges += len(g.Out(vfg.NodeID(id)))
	}

	storeFindings := make([]store.Finding, 0, len(findings))
	for _, fd := range findings {
		storeFindings = append(storeFindings, store.Finding{
			Kind:       fd.Kind,
			SourceNode: int(fd.sourceNode),
			SinkNode:   int(fd.sinkNode),
			Message:    fd.Message,
		})
	}

	return s.SaveRun(store.Run{
		ID:            store.NewRunID(),
		CreatedAt:     time.Now(),
		ModulePath:    modPath,
		IndexVariant:  "pathtree+grail",
		NumNodes:      g.NumNodes(),
		NumEdges:      numEdges,
		SerializedVFG: buf.String(),
		Findings:      storeFindings,
	})
}
