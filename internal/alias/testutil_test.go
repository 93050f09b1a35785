package alias

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// buildSSA compiles a single-file Go source string to SSA form for use in
// tests — the same approach x/tools' own ssa/pointer packages use to test
// in isolation, without a full go/packages load from disk.
func buildSSA(t *testing.T, src string) *ssa.Package {
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

func allFuncs(pkg *ssa.Package) map[*ssa.Function]bool {
	out := make(map[*ssa.Function]bool)
	for _, mem := range pkg.Members {
		if fn, ok := mem.(*ssa.Function); ok {
			out[fn] = true
			for _, anon := range fn.AnonFuncs {
				out[anon] = true
			}
		}
	}
	return out
}

func findFunc(pkg *ssa.Package, name string) *ssa.Function {
	fn, _ := pkg.Members[name].(*ssa.Function)
	return fn
}

// allocs returns every *ssa.Alloc instruction in fn, in instruction order —
// a stable way to pick out local variables without depending on debug-info
// variable names surviving SSA construction.
func allocs(fn *ssa.Function) []*ssa.Alloc {
	var out []*ssa.Alloc
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if a, ok := instr.(*ssa.Alloc); ok {
				out = append(out, a)
			}
		}
	}
	return out
}
