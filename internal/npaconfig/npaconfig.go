// Package npaconfig parses the abstract-interpretation sub-module's
// `module.key = value` config files (spec §6). The sub-module itself
// (NPA/FPSolve/bit-vector dataflow) is out of core scope per spec.md §1;
// this package is a pass-through contract type so a config file can be
// read and validated without implementing the analyzer it configures.
//
// Grounded on the teacher's readModulePath (loader.go): a bufio.Scanner
// over trimmed lines, generalized from a single "module " prefix match to
// a general "key = value" split.
package npaconfig

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// AnalyzerVariant selects the abstract-interpretation strategy.
type AnalyzerVariant string

const (
	UnilateralAnalyzer AnalyzerVariant = "UnilateralAnalyzer"
	BilateralAnalyzer  AnalyzerVariant = "BilateralAnalyzer"
)

// Config holds the recognized keys of an NPA config file. Unrecognized
// keys are preserved verbatim in Extra so a caller can surface them
// without the parser needing to know every sub-module's full key space.
type Config struct {
	AnalyzerVariant               AnalyzerVariant
	AnalyzerIncremental           bool
	AnalyzerWideningDelay         int
	AnalyzerWideningFrequency     int
	FragmentDecompositionStrategy string
	MemoryModelVariant            string
	MemoryModelAddressBits        int

	Extra map[string]string
}

// Parse reads an npaconfig file from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{Extra: make(map[string]string)}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("npaconfig: line %d: expected key = value, got %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])

		var err error
		switch key {
		case "Analyzer.Variant":
			cfg.AnalyzerVariant = AnalyzerVariant(val)
		case "Analyzer.Incremental":
			cfg.AnalyzerIncremental, err = strconv.ParseBool(val)
		case "Analyzer.WideningDelay":
			cfg.AnalyzerWideningDelay, err = strconv.Atoi(val)
		case "Analyzer.WideningFrequency":
			cfg.AnalyzerWideningFrequency, err = strconv.Atoi(val)
		case "FragmentDecomposition.Strategy":
			cfg.FragmentDecompositionStrategy = val
		case "MemoryModel.Variant":
			cfg.MemoryModelVariant = val
		case "MemoryModel.AddressBits":
			cfg.MemoryModelAddressBits, err = strconv.Atoi(val)
		default:
			cfg.Extra[key] = val
		}
		if err != nil {
			return nil, fmt.Errorf("npaconfig: line %d: key %q: %w", lineNo, key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("npaconfig: %w", err)
	}
	return cfg, nil
}
