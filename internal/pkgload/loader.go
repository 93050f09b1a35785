package pkgload

import (
	"fmt"
	"go/token"
	"os"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"lotus/internal/lotuserr"
	"lotus/internal/progress"
)

// Result holds everything downstream components need from package loading.
type Result struct {
	Packages []*packages.Package
	Fset     *token.FileSet
	Prog     *ssa.Program
	AllFuncs map[*ssa.Function]bool
}

// Load loads every package reachable from ms's modules, filters to packages
// that belong to a known module, and builds SSA for the whole program.
func Load(ms *ModuleSet, prog *progress.Reporter) (*Result, error) {
	prog.Log("Loading packages (%d modules)...", len(ms.Modules()))

	fset := token.NewFileSet()
	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedCompiledGoFiles |
			packages.NeedImports |
			packages.NeedDeps |
			packages.NeedTypes |
			packages.NeedSyntax |
			packages.NeedTypesInfo |
			packages.NeedTypesSizes,
		Dir:  ms.PrimaryDir(),
		Fset: fset,
	}

	// A single module resolves fine on its own; go/packages only needs a
	// workspace once extra modules are in play, so only those loads pay for
	// the temp go.work file.
	if len(ms.Modules()) > 1 {
		goworkPath, err := createTempGoWork(ms)
		if err != nil {
			return nil, lotuserr.Wrap(lotuserr.InputInvalid, "prepare multi-module workspace", err)
		}
		defer os.Remove(goworkPath)
		cfg.Env = ReplaceEnv(os.Environ(), "GOWORK", goworkPath)
	}

	initial, err := packages.Load(cfg, ms.LoadPatterns()...)
	if err != nil {
		return nil, lotuserr.Wrap(lotuserr.InputInvalid, "packages.Load", err)
	}

	filtered := make([]*packages.Package, 0, len(initial))
	var errCount int
	for _, pkg := range initial {
		if !ms.IsKnownPkg(pkg.PkgPath) {
			continue
		}
		if len(pkg.Errors) > 0 {
			errCount++
			prog.Verbose("  warning: %s has %d errors: %v", pkg.PkgPath, len(pkg.Errors), pkg.Errors[0])
		}
		filtered = append(filtered, pkg)
	}
	if len(filtered) == 0 {
		return nil, lotuserr.New(lotuserr.InputInvalid, "no packages matched the requested modules")
	}
	if errCount > 0 {
		prog.Log("  %d packages had type-check errors (continuing)", errCount)
	}

	prog.Log("Building SSA...")
	ssaProg, ssaPkgs := ssautil.AllPackages(filtered, ssa.InstantiateGenerics)
	var ssaFailed int
	for i, sp := range ssaPkgs {
		if sp == nil && i < len(filtered) {
			prog.Verbose("SSA build skipped package: %s", filtered[i].PkgPath)
			ssaFailed++
		}
	}
	if ssaFailed > 0 {
		prog.Log("Warning: %d packages failed SSA construction", ssaFailed)
	}
	ssaProg.Build()
	allFuncs := ssautil.AllFunctions(ssaProg)

	prog.Log("Loaded %d packages, built SSA for %d functions", len(filtered), len(allFuncs))

	return &Result{
		Packages: filtered,
		Fset:     fset,
		Prog:     ssaProg,
		AllFuncs: allFuncs,
	}, nil
}

// createTempGoWork writes a temporary go.work file listing every module in
// ms, so a multi-module Load resolves packages across all of them together
// instead of only the one rooted at cfg.Dir. Mirrors the teacher's
// CreateTempGoWork, trimmed of its nested-submodule filesystem walk: ms's
// modules are supplied explicitly by the caller rather than crawled.
func createTempGoWork(ms *ModuleSet) (string, error) {
	var buf strings.Builder
	buf.WriteString("go 1.21\n\nuse (\n")
	for _, m := range ms.Modules() {
		fmt.Fprintf(&buf, "\t%s\n", m.Dir)
	}
	buf.WriteString(")\n")

	f, err := os.CreateTemp("", "lotus-workspace-*.work")
	if err != nil {
		return "", fmt.Errorf("create temp go.work: %w", err)
	}
	if _, err := f.WriteString(buf.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write go.work: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// ReplaceEnv returns a copy of environ with key set to val, replacing any
// existing entry for key, avoiding platform-dependent duplicate-env
// behavior.
func ReplaceEnv(environ []string, key, val string) []string {
	prefix := key + "="
	result := make([]string, 0, len(environ)+1)
	for _, e := range environ {
		if !strings.HasPrefix(e, prefix) {
			result = append(result, e)
		}
	}
	return append(result, prefix+val)
}

// ReadModulePath returns the module path from dir/go.mod, or "" if unreadable.
func ReadModulePath(dir string) string {
	data, err := os.ReadFile(dir + "/go.mod")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module "))
		}
	}
	return ""
}

// KnownFunc reports whether fn is a non-synthetic function whose package
// belongs to a known module, the filter every downstream pass over
// ssa.Function applies first. Functions without a body are not excluded.
func KnownFunc(fn *ssa.Function, ms *ModuleSet) bool {
	if fn == nil || fn.Pkg == nil || fn.Synthetic != "" {
		return false
	}
	return ms.IsKnownPkg(fn.Pkg.Pkg.Path())
}
