// Package dyck implements the Dyck Graph (C1): a unification-based,
// field-insensitive-beyond-a-cap, labeled union-find graph over IR values.
// Two IR values alias iff their classes have the same representative.
//
// Grounded on the teacher's arena/id style (model.go, ids.go), generalized
// into a union-find arena per spec §9: a node arena indexed by uint32 id
// with a parallel parent slice for path compression, no pointer cycles.
package dyck

import "golang.org/x/tools/go/ssa"

// LabelKind distinguishes the fixed, small tag set of outgoing edges.
type LabelKind uint8

const (
	// Deref labels the edge from a pointer class to its pointee class.
	Deref LabelKind = iota
	// Field labels a structural offset edge (GEP-with-constant-index
	// equivalent: a field access at a known index).
	Field
)

// MaxFieldTag bounds how many distinct field indices get their own label;
// beyond this, field accesses collapse into a single "other" tag — the
// field-insensitivity fallback spec §4.1 requires.
const MaxFieldTag = 64

// Label is a single outgoing-edge tag on a Dyck node.
type Label struct {
	Kind  LabelKind
	Field int // meaningful only when Kind == Field; clamped to MaxFieldTag
}

func fieldLabel(index int) Label {
	if index < 0 || index >= MaxFieldTag {
		return Label{Kind: Field, Field: MaxFieldTag} // "other" tag
	}
	return Label{Kind: Field, Field: index}
}

// FieldLabel returns the Label for field index, collapsing indices beyond
// MaxFieldTag into the shared "other" tag.
func FieldLabel(index int) Label { return fieldLabel(index) }

// DerefLabel is the single dereference-edge label.
var DerefLabel = Label{Kind: Deref}

// ID is a node identifier: an index into the Graph's arena.
type ID uint32

type node struct {
	rank  uint8
	edges map[Label]ID
}

// Graph is the Dyck union-find graph. Not safe for concurrent use during
// construction (it is built single-threaded and frozen, like C1-C4 in the
// teacher's pipeline — see spec §5).
type Graph struct {
	nodes  []node
	parent []ID
	ids    map[ssa.Value]ID
	// pending holds unification work so unite() never recurses unboundedly
	// deep on long chains of shared labels.
	pending [][2]ID
}

// New creates an empty Dyck graph.
func New() *Graph {
	return &Graph{ids: make(map[ssa.Value]ID)}
}

// MakeNode returns the node id for v, creating one if v hasn't been seen.
// Idempotent on v.
func (g *Graph) MakeNode(v ssa.Value) ID {
	if id, ok := g.ids[v]; ok {
		return id
	}
	id := ID(len(g.nodes))
	g.nodes = append(g.nodes, node{edges: nil})
	g.parent = append(g.parent, id)
	g.ids[v] = id
	return id
}

// NodeOf returns the id already assigned to v, and whether one exists.
func (g *Graph) NodeOf(v ssa.Value) (ID, bool) {
	id, ok := g.ids[v]
	return id, ok
}

// NumNodes returns the number of distinct nodes ever created (pre-union;
// this is arena size, not equivalence-class count).
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Find returns the representative id of id's equivalence class, compressing
// the path as it walks up. Idempotent: Find(Find(i)) == Find(i).
func (g *Graph) Find(id ID) ID {
	root := id
	for g.parent[root] != root {
		root = g.parent[root]
	}
	// Path compression.
	for g.parent[id] != root {
		next := g.parent[id]
		g.parent[id] = root
		id = next
	}
	return root
}

// MayAlias reports whether a and b have been unified into the same class.
func (g *Graph) MayAlias(a, b ID) bool {
	return g.Find(a) == g.Find(b)
}

// Succ returns the successor class for (id, label) if one has been recorded
// on id's representative.
func (g *Graph) Succ(id ID, label Label) (ID, bool) {
	root := g.Find(id)
	tgt, ok := g.nodes[root].edges[label]
	if !ok {
		return 0, false
	}
	return g.Find(tgt), true
}

// SetSucc records an outgoing labeled edge from id to tgt. If id's class
// already has an edge for label, the existing target and tgt are unified
// instead of overwriting (spec §4.1: "if edge present, unites targets").
func (g *Graph) SetSucc(id ID, label Label, tgt ID) {
	root := g.Find(id)
	if g.nodes[root].edges == nil {
		g.nodes[root].edges = make(map[Label]ID)
	}
	if existing, ok := g.nodes[root].edges[label]; ok {
		g.Unite(existing, tgt)
		return
	}
	g.nodes[root].edges[label] = tgt
}

// Unite merges a's and b's classes by rank, then recursively unifies any
// label shared by both old roots' edge maps onto the new root — the
// congruence-closure step required by spec §4.1.
func (g *Graph) Unite(a, b ID) {
	g.pending = append(g.pending, [2]ID{a, b})
	for len(g.pending) > 0 {
		n := len(g.pending) - 1
		pair := g.pending[n]
		g.pending = g.pending[:n]
		g.uniteOne(pair[0], pair[1])
	}
}

func (g *Graph) uniteOne(a, b ID) {
	ra, rb := g.Find(a), g.Find(b)
	if ra == rb {
		return
	}
	if g.nodes[ra].rank < g.nodes[rb].rank {
		ra, rb = rb, ra
	}
	// rb becomes a child of ra.
	oldRB := g.nodes[rb]
	g.parent[rb] = ra
	if g.nodes[ra].rank == g.nodes[rb].rank {
		g.nodes[ra].rank++
	}

	// Merge edge maps: every label on rb either introduces a new edge on ra,
	// or — if ra already has that label — the two old targets must be
	// unified (queued, not recursed, to bound stack depth on long chains).
	if g.nodes[ra].edges == nil && len(oldRB.edges) > 0 {
		g.nodes[ra].edges = make(map[Label]ID, len(oldRB.edges))
	}
	for label, tgt := range oldRB.edges {
		if existing, ok := g.nodes[ra].edges[label]; ok {
			if g.Find(existing) != g.Find(tgt) {
				g.pending = append(g.pending, [2]ID{existing, tgt})
			}
		} else {
			g.nodes[ra].edges[label] = tgt
		}
	}
}

// PointsToSet returns the set of IR values sharing id's equivalence class.
// Linear in the number of distinct values ever registered; callers needing
// this repeatedly should invert g.ids once.
func (g *Graph) PointsToSet(id ID) []ssa.Value {
	rep := g.Find(id)
	var out []ssa.Value
	for v, vid := range g.ids {
		if g.Find(vid) == rep {
			out = append(out, v)
		}
	}
	return out
}
