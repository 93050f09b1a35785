// Package queryserver is the read-side HTTP API for runs persisted by
// internal/store: it answers queries about already-computed alias,
// reachability, and taint results without re-running the analysis
// pipeline, and additionally serves an ad-hoc "may node s flow to node
// t" query by replaying the persisted value-flow graph's edges
// directly.
//
// Adapted from the teacher's server/: same database/sql +
// modernc.org/sqlite read-only connection, same DB-wrapper-plus-
// handlers-plus-chi-router split, retargeted from CPG dashboard tables
// (nodes/edges/dashboard_*) to internal/store's much smaller runs/
// findings schema.
package queryserver

import (
	"database/sql"
	"fmt"
	"strings"

	"lotus/internal/serialize"
)

// RunSummary is one persisted run's metadata, without its VFG text or
// findings (cheap to list).
type RunSummary struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	ModulePath   string `json:"module_path"`
	IndexVariant string `json:"index_variant"`
	NumNodes     int    `json:"num_nodes"`
	NumEdges     int    `json:"num_edges"`
}

// Finding is one persisted checker hit.
type Finding struct {
	Kind       string `json:"kind"`
	SourceNode int    `json:"source_node"`
	SinkNode   int    `json:"sink_node"`
	Message    string `json:"message"`
}

// Run is a full persisted run, findings included.
type Run struct {
	RunSummary
	Findings []Finding `json:"findings"`
}

// DB wraps a read-only *sql.DB over a store-produced SQLite file.
type DB struct {
	*sql.DB
}

// NewDB returns a DB wrapper.
func NewDB(db *sql.DB) *DB { return &DB{DB: db} }

const queryListRuns = `
SELECT id, created_at, module_path, index_variant, num_nodes, num_edges
FROM runs ORDER BY created_at DESC
`

const queryRunByID = `
SELECT id, created_at, module_path, index_variant, num_nodes, num_edges
FROM runs WHERE id = ?
`

const queryFindingsByRun = `
SELECT kind, source_node, sink_node, message FROM findings WHERE run_id = ?
ORDER BY kind, source_node
`

const queryFindingsSearch = `
SELECT kind, source_node, sink_node, message FROM findings
WHERE run_id = ? AND (kind LIKE ? OR message LIKE ?)
ORDER BY kind, source_node
`

const queryVFGTextByRun = `SELECT vfg_text FROM runs WHERE id = ?`

// ListRuns returns every run's metadata, most recent first.
func (db *DB) ListRuns() ([]RunSummary, error) {
	rows, err := db.Query(queryListRuns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RunSummary{}
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.ModulePath, &s.IndexVariant, &s.NumNodes, &s.NumEdges); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Run loads one run's metadata plus its findings.
func (db *DB) Run(id string) (*Run, error) {
	var run Run
	err := db.QueryRow(queryRunByID, id).Scan(
		&run.ID, &run.CreatedAt, &run.ModulePath, &run.IndexVariant, &run.NumNodes, &run.NumEdges)
	if err != nil {
		return nil, err
	}
	findings, err := db.findings(queryFindingsByRun, id)
	if err != nil {
		return nil, err
	}
	run.Findings = findings
	return &run, nil
}

// SearchFindings returns the findings of run id whose kind or message
// contains q (a LIKE substring match, which SQLite applies
// case-insensitively to ASCII letters, matching the teacher's own search
// handler's substring convention).
func (db *DB) SearchFindings(id, q string) ([]Finding, error) {
	like := "%" + q + "%"
	return db.findings(queryFindingsSearch, id, like, like)
}

func (db *DB) findings(query string, args ...interface{}) ([]Finding, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Finding{}
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.Kind, &f.SourceNode, &f.SinkNode, &f.Message); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// VFGText returns the raw serialized VFG text for run id.
func (db *DB) VFGText(id string) (string, error) {
	var text string
	err := db.QueryRow(queryVFGTextByRun, id).Scan(&text)
	return text, err
}

// Reachable answers an ad-hoc "may s flow to t" query against run id's
// persisted value-flow graph, ignoring call/return bracket matching —
// a deliberately loose over-approximation (plain edge-reachability, no
// Dyck-path constraint) since the query server has no loaded IR to
// rebuild a real *vfg.Graph and re-run the exact tabulation solver
// (internal/tabulation.Reach needs live ssa.Value nodes). Good enough
// for "is this even plausible" triage; cmd/lotus itself remains the
// source of truth for precise reachability.
func (db *DB) Reachable(id string, s, t int) (bool, int, error) {
	text, err := db.VFGText(id)
	if err != nil {
		return false, 0, err
	}
	g, err := serialize.ReadGraph(strings.NewReader(text))
	if err != nil {
		return false, 0, fmt.Errorf("parse persisted vfg: %w", err)
	}
	if s < 0 || s >= g.NumNodes || t < 0 || t >= g.NumNodes {
		return false, g.NumNodes, fmt.Errorf("node id out of range [0,%d)", g.NumNodes)
	}

	adj := make(map[int][]int, g.NumNodes)
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	visited := make(map[int]bool)
	queue := []int{s}
	visited[s] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == t {
			return true, g.NumNodes, nil
		}
		for _, next := range adj[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false, g.NumNodes, nil
}
