// Package pkgload loads a Go program's packages and SSA form, and is the
// only non-test code in this repository that calls go/packages or builds
// the SSA program — the
// "IR loader" external collaborator of spec §6. It exposes nothing the core
// components (C1-C7) cannot get from an *ssa.Function / *ssa.Value directly.
package pkgload

import (
	"path/filepath"
	"strings"
)

// Module describes one Go module in the analysis set.
type Module struct {
	ModPath string // e.g. "github.com/example/foo"
	Dir     string // absolute path to module root
	Prefix  string // node-id prefix: "" for the primary module
}

// ModuleSet holds all modules under analysis and resolves package/file paths
// to their owning module. Mirrors the teacher's ModuleSet, generalized away
// from a single hard-coded primary module.
type ModuleSet struct {
	modules []Module
}

// New builds a ModuleSet from a primary module and optional extras.
func New(primary Module, extras []Module) *ModuleSet {
	ms := &ModuleSet{modules: make([]Module, 0, 1+len(extras))}
	ms.modules = append(ms.modules, primary)
	ms.modules = append(ms.modules, extras...)
	return ms
}

// IsKnownPkg returns true if pkgPath belongs to any module in the set.
func (ms *ModuleSet) IsKnownPkg(pkgPath string) bool {
	for _, m := range ms.modules {
		if pkgPath == m.ModPath || strings.HasPrefix(pkgPath, m.ModPath+"/") {
			return true
		}
	}
	return false
}

// RelFile converts an absolute file path to a module-relative path prefixed
// by the owning module's Prefix. Returns "" for files outside every known
// module. When module directories nest, the most specific (longest Dir)
// match wins.
func (ms *ModuleSet) RelFile(absPath string) string {
	bestRel := ""
	bestPrefix := ""
	bestDirLen := -1

	for _, m := range ms.modules {
		rel, err := filepath.Rel(m.Dir, absPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if len(m.Dir) > bestDirLen {
			bestDirLen = len(m.Dir)
			bestRel = rel
			bestPrefix = m.Prefix
		}
	}
	if bestDirLen < 0 {
		return ""
	}
	if bestPrefix == "" {
		return bestRel
	}
	return bestPrefix + "/" + bestRel
}

// RelPkg strips the module prefix from a full import path and prepends the
// owning module's Prefix, preferring the longest-matching ModPath.
func (ms *ModuleSet) RelPkg(fullPath string) string {
	best := ""
	bestLen := -1
	matched := false

	for _, m := range ms.modules {
		if fullPath == m.ModPath && len(m.ModPath) > bestLen {
			bestLen, matched = len(m.ModPath), true
			if m.Prefix == "" {
				best = "main"
			} else {
				best = m.Prefix
			}
		} else if rel, ok := strings.CutPrefix(fullPath, m.ModPath+"/"); ok && len(m.ModPath) > bestLen {
			bestLen, matched = len(m.ModPath), true
			if m.Prefix == "" {
				best = rel
			} else {
				best = m.Prefix + "/" + rel
			}
		}
	}
	if matched {
		return best
	}
	return fullPath
}

// PrimaryDir returns the first (primary) module's directory.
func (ms *ModuleSet) PrimaryDir() string { return ms.modules[0].Dir }

// Modules returns all module infos.
func (ms *ModuleSet) Modules() []Module { return ms.modules }

// LoadPatterns returns the "modpath/..." patterns for packages.Load.
func (ms *ModuleSet) LoadPatterns() []string {
	patterns := make([]string, len(ms.modules))
	for i, m := range ms.modules {
		patterns[i] = m.ModPath + "/..."
	}
	return patterns
}
