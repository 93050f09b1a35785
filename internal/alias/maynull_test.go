package alias

import (
	"context"
	"testing"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/callgraph"
)

func TestMayNullRejectsNonNilableType(t *testing.T) {
	src := `package p

func f() int {
	return 5
}
`
	pkg := buildSSA(t, src)
	funcs := allFuncs(pkg)
	cg := callgraph.Build(funcs)
	a, err := Build(context.Background(), funcs, cg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	fn := findFunc(pkg, "f")
	var ret ssa.Value
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if r, ok := instr.(*ssa.Return); ok {
				ret = r.Results[0]
			}
		}
	}
	if ret == nil {
		t.Fatalf("expected a return value")
	}
	if a.MayNull(ret) {
		t.Fatalf("an int-typed value can never be nil")
	}
}

func TestMayNullAcceptsExplicitNilLiteral(t *testing.T) {
	src := `package p

func f() *int {
	return nil
}
`
	pkg := buildSSA(t, src)
	funcs := allFuncs(pkg)
	cg := callgraph.Build(funcs)
	a, err := Build(context.Background(), funcs, cg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	fn := findFunc(pkg, "f")
	var ret ssa.Value
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if r, ok := instr.(*ssa.Return); ok {
				ret = r.Results[0]
			}
		}
	}
	if ret == nil {
		t.Fatalf("expected a return value")
	}
	if !a.MayNull(ret) {
		t.Fatalf("an explicit nil literal must be reported as possibly null")
	}
}

func TestMayNullConservativelyAcceptsUnknownPointer(t *testing.T) {
	src := `package p

func f(x *int) *int {
	return x
}
`
	pkg := buildSSA(t, src)
	funcs := allFuncs(pkg)
	cg := callgraph.Build(funcs)
	a, err := Build(context.Background(), funcs, cg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	fn := findFunc(pkg, "f")
	if !a.MayNull(fn.Params[0]) {
		t.Fatalf("a parameter with no proof of non-nilness must conservatively be treated as possibly null")
	}
}

func TestMayNullRejectsNilValue(t *testing.T) {
	var a Analysis
	if a.MayNull(nil) {
		t.Fatalf("a nil ssa.Value must not be reported as possibly null")
	}
}
