// Package serialize implements the dot-like text persistence format for a
// value-flow graph (spec §6): one node line per tracked id and one edge
// line per labeled edge, with the label's sign carrying the Dyck bracket
// polarity ('o' for an open/call-argument edge, 'c' for a close/return
// edge, 'n' for the unlabeled intraprocedural edges C3 also emits).
//
// Reloading cannot recover ssa.Value identity on its own — the format only
// names node ids — so Graph.ToVFG takes the original IR's values back in
// and re-associates them positionally, exactly as spec §6 calls out.
package serialize

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ssa"

	"lotus/internal/vfg"
)

// Sign is the Dyck bracket polarity carried by a serialized edge label.
type Sign byte

const (
	Open    Sign = 'o' // positive label: call-argument (formal-in) edge
	Close   Sign = 'c' // negative label: return-value (formal-out) edge
	Neutral Sign = 'n' // label 0: ordinary intraprocedural edge
)

// Edge is one parsed "<from>-><to>[label=\"<sign><id>\"]" line.
type Edge struct {
	From, To int
	Sign     Sign
	ID       int
}

// Graph is the structural skeleton recovered from a serialized VFG: node
// ids and edges, with no IR attached. Call ToVFG to re-associate it with
// the original ssa.Values and get back a usable *vfg.Graph.
type Graph struct {
	NumNodes int
	Edges    []Edge
}

// WriteVFG serializes g to w in the spec §6 dot-like format and reports
// the number of bytes written, mirroring the io.WriterTo convention other
// tooling in this tree uses for its own persisted profiles.
func WriteVFG(w io.Writer, g *vfg.Graph) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64

	for id := 0; id < g.NumNodes(); id++ {
		n, err := fmt.Fprintf(bw, "%d[]\n", id)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	for id := 0; id < g.NumNodes(); id++ {
		for _, e := range g.Out(vfg.NodeID(id)) {
			sign, ident := signOf(e.Label)
			n, err := fmt.Fprintf(bw, "%d->%d[label=\"%c%d\"]\n", id, e.To, sign, ident)
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return written, err
	}
	return written, nil
}

func signOf(label int) (Sign, int) {
	switch {
	case label > 0:
		return Open, label
	case label < 0:
		return Close, -label
	default:
		return Neutral, 0
	}
}

func labelOf(sign Sign, id int) int {
	switch sign {
	case Open:
		return id
	case Close:
		return -id
	default:
		return 0
	}
}

// ReadGraph parses the spec §6 dot-like format back into a Graph skeleton.
func ReadGraph(r io.Reader) (*Graph, error) {
	sc := bufio.NewScanner(r)
	g := &Graph{}
	maxNode := -1
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if arrow := strings.Index(line, "->"); arrow >= 0 {
			e, err := parseEdgeLine(line, arrow)
			if err != nil {
				return nil, fmt.Errorf("serialize: line %d: %w", lineNo, err)
			}
			g.Edges = append(g.Edges, e)
			if e.From > maxNode {
				maxNode = e.From
			}
			if e.To > maxNode {
				maxNode = e.To
			}
			continue
		}

		id, err := parseNodeLine(line)
		if err != nil {
			return nil, fmt.Errorf("serialize: line %d: %w", lineNo, err)
		}
		if id > maxNode {
			maxNode = id
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	g.NumNodes = maxNode + 1
	return g, nil
}

func parseNodeLine(line string) (int, error) {
	br := strings.IndexByte(line, '[')
	if br < 0 {
		return 0, fmt.Errorf("malformed node line %q", line)
	}
	return strconv.Atoi(line[:br])
}

func parseEdgeLine(line string, arrow int) (Edge, error) {
	fromStr := line[:arrow]
	rest := line[arrow+2:]
	br := strings.IndexByte(rest, '[')
	if br < 0 {
		return Edge{}, fmt.Errorf("missing edge attributes in %q", line)
	}
	toStr := rest[:br]
	from, err := strconv.Atoi(fromStr)
	if err != nil {
		return Edge{}, fmt.Errorf("bad from id: %w", err)
	}
	to, err := strconv.Atoi(toStr)
	if err != nil {
		return Edge{}, fmt.Errorf("bad to id: %w", err)
	}
	sign, ident, err := parseLabelAttr(rest[br:])
	if err != nil {
		return Edge{}, err
	}
	return Edge{From: from, To: to, Sign: sign, ID: ident}, nil
}

func parseLabelAttr(attrs string) (Sign, int, error) {
	start := strings.IndexByte(attrs, '"')
	end := strings.LastIndexByte(attrs, '"')
	if start < 0 || end <= start {
		return 0, 0, fmt.Errorf("malformed label attribute %q", attrs)
	}
	body := attrs[start+1 : end]
	if body == "" {
		return 0, 0, fmt.Errorf("empty label")
	}
	sign := Sign(body[0])
	switch sign {
	case Open, Close, Neutral:
	default:
		return 0, 0, fmt.Errorf("unknown sign %q in label %q", string(sign), body)
	}
	idPart := body[1:]
	if idPart == "" && sign == Neutral {
		idPart = "0"
	}
	ident, err := strconv.Atoi(idPart)
	if err != nil {
		return 0, 0, fmt.Errorf("bad label id %q: %w", idPart, err)
	}
	return sign, ident, nil
}

// ToVFG re-associates the skeleton with the original IR's values, which
// the caller must supply in the same order the values were interned when
// the graph was first built (spec §6: "re-loading requires the original
// IR to re-associate node ids with values"). len(values) must be at least
// g.NumNodes.
func (g *Graph) ToVFG(values []ssa.Value) (*vfg.Graph, error) {
	if len(values) < g.NumNodes {
		return nil, fmt.Errorf("serialize: need %d IR values to re-associate %d nodes, got %d", g.NumNodes, g.NumNodes, len(values))
	}
	out := vfg.New(values[:g.NumNodes])
	for _, e := range g.Edges {
		if e.From < 0 || e.From >= g.NumNodes || e.To < 0 || e.To >= g.NumNodes {
			return nil, fmt.Errorf("serialize: edge %d->%d references an out-of-range node id", e.From, e.To)
		}
		out.AddEdge(values[e.From], values[e.To], labelOf(e.Sign, e.ID))
	}
	return out, nil
}
