package mustalias

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

func buildFunc(t *testing.T, src, name string) *ssa.Function {
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
	fn, ok := pkg.Members[name].(*ssa.Function)
	if !ok {
		t.Fatalf("no function %q", name)
	}
	return fn
}

func fieldAddrs(fn *ssa.Function) []*ssa.FieldAddr {
	var out []*ssa.FieldAddr
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			if fa, ok := instr.(*ssa.FieldAddr); ok {
				out = append(out, fa)
			}
		}
	}
	return out
}

func TestZeroOffsetFieldAddrMustAliasesBase(t *testing.T) {
	src := `package p

type S struct{ A, B int }

func f(s *S) *int {
	return &s.A
}
`
	fn := buildFunc(t, src, "f")
	d := Build(fn)

	fas := fieldAddrs(fn)
	if len(fas) != 1 {
		t.Fatalf("expected one FieldAddr, got %d", len(fas))
	}
	if !d.Must(fas[0], fas[0].X) {
		t.Fatalf("zero-offset FieldAddr should must-alias its base")
	}
}

func TestNonZeroOffsetFieldAddrDoesNotMustAliasBase(t *testing.T) {
	src := `package p

type S struct{ A, B int }

func f(s *S) *int {
	return &s.B
}
`
	fn := buildFunc(t, src, "f")
	d := Build(fn)

	fas := fieldAddrs(fn)
	if len(fas) != 1 {
		t.Fatalf("expected one FieldAddr, got %d", len(fas))
	}
	if d.Must(fas[0], fas[0].X) {
		t.Fatalf("non-zero-offset FieldAddr should not must-alias its base")
	}
}

func TestConvertOrChangeTypeStripsToOperand(t *testing.T) {
	src := `package p

import "unsafe"

func f(p *int) unsafe.Pointer {
	return unsafe.Pointer(p)
}
`
	fn := buildFunc(t, src, "f")
	d := Build(fn)

	var wrapped, operand ssa.Value
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			switch v := instr.(type) {
			case *ssa.Convert:
				wrapped, operand = v, v.X
			case *ssa.ChangeType:
				wrapped, operand = v, v.X
			}
		}
	}
	if wrapped == nil {
		t.Skipf("no-op pointer conversion compiled away entirely; nothing to check")
	}
	if !d.Must(wrapped, operand) {
		t.Fatalf("a bitcast-style conversion should must-alias its operand")
	}
}

func TestUnrelatedParamsDoNotMustAlias(t *testing.T) {
	src := `package p

func f(a, b *int) {
	_ = a
	_ = b
}
`
	fn := buildFunc(t, src, "f")
	d := Build(fn)

	if d.Must(fn.Params[0], fn.Params[1]) {
		t.Fatalf("independent parameters should not must-alias")
	}
}
