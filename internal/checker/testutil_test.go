package checker

import (
	"context"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"lotus/internal/alias"
	"lotus/internal/callgraph"
	"lotus/internal/vfg"
)

func mustBuildSSA(t *testing.T, src string) *ssa.Package {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "input.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pkg, _, err := ssautil.BuildPackage(
		&types.Config{Importer: importer.Default()},
		fset, types.NewPackage("p", ""), []*ast.File{f}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("build ssa: %v", err)
	}
	return pkg
}

func buildAllForChecker(t *testing.T, src string) (*ssa.Package, *callgraph.Graph, *vfg.Graph) {
	t.Helper()
	pkg := mustBuildSSA(t, src)

	funcs := make(map[*ssa.Function]bool)
	for _, mem := range pkg.Members {
		if fn, ok := mem.(*ssa.Function); ok {
			funcs[fn] = true
			for _, anon := range fn.AnonFuncs {
				funcs[anon] = true
			}
		}
	}

	cg := callgraph.Build(funcs)
	a, err := alias.Build(context.Background(), funcs, cg, nil)
	if err != nil {
		t.Fatalf("alias.Build: %v", err)
	}
	g := vfg.Build(funcs, a, cg, nil)
	return pkg, cg, g
}

// buildAllForCheckerWithAlias is buildAllForChecker plus the alias analysis
// itself, for tests exercising NewNullPointerChecker's alias-aware path.
func buildAllForCheckerWithAlias(t *testing.T, src string) (*ssa.Package, *callgraph.Graph, *alias.Analysis, *vfg.Graph) {
	t.Helper()
	pkg := mustBuildSSA(t, src)

	funcs := make(map[*ssa.Function]bool)
	for _, mem := range pkg.Members {
		if fn, ok := mem.(*ssa.Function); ok {
			funcs[fn] = true
			for _, anon := range fn.AnonFuncs {
				funcs[anon] = true
			}
		}
	}

	cg := callgraph.Build(funcs)
	a, err := alias.Build(context.Background(), funcs, cg, nil)
	if err != nil {
		t.Fatalf("alias.Build: %v", err)
	}
	g := vfg.Build(funcs, a, cg, nil)
	return pkg, cg, a, g
}
