// Package report formats checker findings two ways: SARIF 2.1.0 JSON for
// tool consumption and a short human-readable text summary — the dual
// machine/human report modes spec §6 names as in-scope despite being out
// of the distilled spec's core, grounded on original_source/tools/
// pdg-query's dual print/query modes.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
)

// Location pins a finding's source or sink to a position in the analyzed
// program, when one is available (a checker occurrence not backed by a
// real ssa.Value — a synthetic or external node — leaves File empty).
type Location struct {
	Func string
	File string
	Line int
}

// Finding is one checker hit, ready for either report formatter.
type Finding struct {
	Kind    string // "NullPointer", "Taint", "Custom"
	Message string
	Source  Location
	Sink    Location
}

const toolName = "lotus"

// sarifLog mirrors the subset of the SARIF 2.1.0 schema this tool emits;
// see https://json.schemastore.org/sarif-2.1.0.json. encoding/json is used
// directly rather than a generator library — no SARIF library appears
// anywhere in the retrieved example pack, and the schema subset needed
// here (tool name/version, rule ids, one-location results) is small
// enough that json.MarshalIndent over plain structs, the same approach
// the pack's own static-analysis CLI (cmd/deadcode, in the "-json" mode)
// takes for its own findings, is the natural fit.
type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool      `json:"tool"`
	Results []sarifResult  `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID string `json:"id"`
}

type sarifResult struct {
	RuleID    string           `json:"ruleId"`
	Message   sarifMessage     `json:"message"`
	Locations []sarifLocation  `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

// WriteSARIF encodes findings as a SARIF 2.1.0 log with one result per
// finding, locating it at the source occurrence (the sink is folded into
// the message text, since SARIF results carry a single primary location).
func WriteSARIF(w io.Writer, toolVersion string, findings []Finding) error {
	ruleSeen := map[string]bool{}
	var rules []sarifRule
	results := make([]sarifResult, 0, len(findings))
	for _, f := range findings {
		if !ruleSeen[f.Kind] {
			ruleSeen[f.Kind] = true
			rules = append(rules, sarifRule{ID: f.Kind})
		}
		results = append(results, sarifResult{
			RuleID:  f.Kind,
			Message: sarifMessage{Text: sinkAnnotatedMessage(f)},
			Locations: locationsFor(f.Source),
		})
	}

	log := sarifLog{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: toolName, Version: toolVersion, Rules: rules}},
			Results: results,
		}},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

func sinkAnnotatedMessage(f Finding) string {
	if f.Sink.File == "" {
		return f.Message
	}
	return fmt.Sprintf("%s (sink: %s:%d in %s)", f.Message, f.Sink.File, f.Sink.Line, f.Sink.Func)
}

func locationsFor(loc Location) []sarifLocation {
	if loc.File == "" {
		return nil
	}
	return []sarifLocation{{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: loc.File},
			Region:           sarifRegion{StartLine: loc.Line},
		},
	}}
}

const humanTemplate = `[{{.Kind}}] {{.Message}}
  source: {{.Source.Func}} ({{.Source.File}}:{{.Source.Line}})
  sink:   {{.Sink.Func}} ({{.Sink.File}}:{{.Sink.Line}})
`

var humanTmpl = template.Must(template.New("finding").Parse(humanTemplate))

// WriteHuman renders findings as short per-finding text blocks, in the
// manner cmd/deadcode's non-JSON -f=template mode renders its own
// objects: one text/template executed once per record.
func WriteHuman(w io.Writer, findings []Finding) error {
	if len(findings) == 0 {
		_, err := fmt.Fprintln(w, "no findings")
		return err
	}
	for _, f := range findings {
		if err := humanTmpl.Execute(w, f); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d finding(s)\n", len(findings))
	return err
}
