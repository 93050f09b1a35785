package main

import (
	"testing"

	"lotus/internal/reach"
)

func TestBenchmarkOptionsAcceptsKnownVariants(t *testing.T) {
	for _, variant := range []string{"pathtree", "grail", "pathtree+grail"} {
		if _, err := benchmarkOptions(variant); err != nil {
			t.Fatalf("variant %q: unexpected error: %v", variant, err)
		}
	}
}

func TestBenchmarkOptionsSelectsDistinctVariant(t *testing.T) {
	cases := map[string]reach.Variant{
		"pathtree":       reach.VariantPathTree,
		"grail":          reach.VariantGrail,
		"pathtree+grail": reach.VariantBoth,
	}
	for name, want := range cases {
		opts, err := benchmarkOptions(name)
		if err != nil {
			t.Fatalf("variant %q: unexpected error: %v", name, err)
		}
		if opts.Variant != want {
			t.Fatalf("variant %q: want Options.Variant=%v, got %v", name, want, opts.Variant)
		}
	}
}

func TestBenchmarkOptionsRejectsUnknownVariant(t *testing.T) {
	if _, err := benchmarkOptions("bogus"); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}

func TestReportBenchmarkReturnsQueryMismatchExitCode(t *testing.T) {
	code := reportBenchmark(cliFlags{q: true}, nil, nil, 1)
	if code != exitQueryMismatch {
		t.Fatalf("expected exitQueryMismatch, got %d", code)
	}
}

func TestReportBenchmarkReturnsOKWithNoMismatches(t *testing.T) {
	code := reportBenchmark(cliFlags{q: true}, nil, nil, 0)
	if code != exitOK {
		t.Fatalf("expected exitOK, got %d", code)
	}
}
