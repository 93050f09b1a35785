package taintspec

import (
	"strings"
	"testing"
)

func TestParseSourceSinkIgnorePipe(t *testing.T) {
	input := `
# comment line
SOURCE getenv Ret V T
SINK   strcpy Arg1 D T
IGNORE memcpy
PIPE   wrapper Arg0 V Ret V
`
	spec, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(spec.Sources) != 1 || spec.Sources[0].Func != "getenv" {
		t.Fatalf("expected one SOURCE getenv, got %+v", spec.Sources)
	}
	if spec.Sources[0].Slots[0].Loc.Kind != "Ret" {
		t.Fatalf("expected Ret location, got %+v", spec.Sources[0].Slots[0].Loc)
	}

	if len(spec.Sinks) != 1 || spec.Sinks[0].Func != "strcpy" {
		t.Fatalf("expected one SINK strcpy, got %+v", spec.Sinks)
	}
	if spec.Sinks[0].Slots[0].Loc != (Location{Kind: "Arg", Arg: 1}) {
		t.Fatalf("expected Arg1, got %+v", spec.Sinks[0].Slots[0].Loc)
	}

	if !spec.IsIgnored("memcpy") {
		t.Fatalf("expected memcpy to be ignored")
	}
	if spec.IsIgnored("strcpy") {
		t.Fatalf("strcpy should not be ignored")
	}

	if len(spec.Pipes) != 1 || spec.Pipes[0].Func != "wrapper" {
		t.Fatalf("expected one PIPE wrapper, got %+v", spec.Pipes)
	}
}

func TestParseRejectsUnknownDirective(t *testing.T) {
	_, err := Parse(strings.NewReader("BOGUS foo\n"))
	if err == nil {
		t.Fatalf("expected an error for an unknown directive")
	}
}

func TestParseRejectsMalformedLocation(t *testing.T) {
	_, err := Parse(strings.NewReader("SOURCE foo NotALocation V T\n"))
	if err == nil {
		t.Fatalf("expected an error for a malformed location")
	}
}
