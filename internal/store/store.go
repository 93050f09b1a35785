// Package store persists one analysis run — its serialized VFG (internal/
// serialize's dot-like text), the reachability-index build parameters, and
// the checker findings it produced — to a SQLite file, so a later
// cmd/lotus-query invocation can serve queries without re-running the
// whole pipeline.
//
// Adapted in style, at a much smaller scope, from the teacher's db.go:
// the same zombiezen.com/go/sqlite writer-side binding, the same
// performance pragmas, the same ExecuteScript-for-DDL /
// prepared-statement-for-bulk-insert split.
package store

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"lotus/internal/lotuserr"
)

// Finding is one checker hit recorded against a run: a source node that
// reaches a sink node, with the checker kind and a human-readable message.
type Finding struct {
	Kind       string
	SourceNode int
	SinkNode   int
	Message    string
}

// Run is everything one analysis invocation persists.
type Run struct {
	ID           string
	CreatedAt    time.Time
	ModulePath   string
	IndexVariant string // "pathtree", "grail", or "pathtree+grail"
	NumNodes     int
	NumEdges     int
	SerializedVFG string
	Findings     []Finding
}

// NewRunID mints a fresh run identifier, stable across a save/load
// round-trip and safe to stamp into a report alongside the SQLite path.
func NewRunID() string { return uuid.NewString() }

// Store is an open handle onto a run-persistence SQLite file.
type Store struct {
	conn *sqlite.Conn
}

// Open creates (or replaces) the SQLite file at path and prepares its
// schema. Callers own the returned Store and must Close it.
func Open(path string) (*Store, error) {
	_ = os.Remove(path)

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return nil, lotuserr.Wrap(lotuserr.InputInvalid, "open store", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA journal_mode = WAL",
	}
	for _, p := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, p, nil); err != nil {
			_ = conn.Close()
			return nil, lotuserr.Wrap(lotuserr.InputInvalid, p, err)
		}
	}

	if err := sqlitex.ExecuteScript(conn, schemaDDL, nil); err != nil {
		_ = conn.Close()
		return nil, lotuserr.Wrap(lotuserr.InputInvalid, "create schema", err)
	}

	return &Store{conn: conn}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

const schemaDDL = `
CREATE TABLE runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    module_path TEXT NOT NULL,
    index_variant TEXT NOT NULL,
    num_nodes INTEGER NOT NULL,
    num_edges INTEGER NOT NULL,
    vfg_text TEXT NOT NULL
);

CREATE TABLE findings (
    run_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    source_node INTEGER NOT NULL,
    sink_node INTEGER NOT NULL,
    message TEXT NOT NULL
);

CREATE INDEX idx_findings_run ON findings(run_id);
`

// SaveRun writes run and its findings in a single transaction.
func (s *Store) SaveRun(run Run) (err error) {
	endFn, err := sqlitex.ImmediateTransaction(s.conn)
	if err != nil {
		return lotuserr.Wrap(lotuserr.InputInvalid, "begin tx", err)
	}
	defer endFn(&err)

	stmt, err := s.conn.Prepare(`INSERT INTO runs (id, created_at, module_path, index_variant, num_nodes, num_edges, vfg_text) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return lotuserr.Wrap(lotuserr.InputInvalid, "prepare run insert", err)
	}
	stmt.BindText(1, run.ID)
	stmt.BindText(2, run.CreatedAt.UTC().Format(time.RFC3339))
	stmt.BindText(3, run.ModulePath)
	stmt.BindText(4, run.IndexVariant)
	stmt.BindInt64(5, int64(run.NumNodes))
	stmt.BindInt64(6, int64(run.NumEdges))
	stmt.BindText(7, run.SerializedVFG)
	if _, stepErr := stmt.Step(); stepErr != nil {
		_ = stmt.Finalize()
		return lotuserr.Wrap(lotuserr.InputInvalid, fmt.Sprintf("insert run %s", run.ID), stepErr)
	}
	if finErr := stmt.Finalize(); finErr != nil {
		return lotuserr.Wrap(lotuserr.InputInvalid, "finalize run insert", finErr)
	}

	if err := s.insertFindings(run.ID, run.Findings); err != nil {
		return err
	}
	return nil
}

func (s *Store) insertFindings(runID string, findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}
	stmt, err := s.conn.Prepare(`INSERT INTO findings (run_id, kind, source_node, sink_node, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return lotuserr.Wrap(lotuserr.InputInvalid, "prepare finding insert", err)
	}
	defer func() { _ = stmt.Finalize() }()

	for _, f := range findings {
		stmt.BindText(1, runID)
		stmt.BindText(2, f.Kind)
		stmt.BindInt64(3, int64(f.SourceNode))
		stmt.BindInt64(4, int64(f.SinkNode))
		stmt.BindText(5, f.Message)
		if _, err := stmt.Step(); err != nil {
			return lotuserr.Wrap(lotuserr.InputInvalid, "insert finding", err)
		}
		if err := stmt.Reset(); err != nil {
			return lotuserr.Wrap(lotuserr.InputInvalid, "reset finding stmt", err)
		}
	}
	return nil
}

// LoadRun reads back a persisted run by id, including its findings.
func (s *Store) LoadRun(id string) (*Run, error) {
	var run *Run
	err := sqlitex.ExecuteTransient(s.conn,
		`SELECT id, created_at, module_path, index_variant, num_nodes, num_edges, vfg_text FROM runs WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				createdAt, perr := time.Parse(time.RFC3339, stmt.ColumnText(1))
				if perr != nil {
					return perr
				}
				run = &Run{
					ID:            stmt.ColumnText(0),
					CreatedAt:     createdAt,
					ModulePath:    stmt.ColumnText(2),
					IndexVariant:  stmt.ColumnText(3),
					NumNodes:      int(stmt.ColumnInt64(4)),
					NumEdges:      int(stmt.ColumnInt64(5)),
					SerializedVFG: stmt.ColumnText(6),
				}
				return nil
			},
		})
	if err != nil {
		return nil, lotuserr.Wrap(lotuserr.InputInvalid, fmt.Sprintf("load run %s", id), err)
	}
	if run == nil {
		return nil, lotuserr.New(lotuserr.InputInvalid, fmt.Sprintf("no such run: %s", id))
	}

	err = sqlitex.ExecuteTransient(s.conn,
		`SELECT kind, source_node, sink_node, message FROM findings WHERE run_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				run.Findings = append(run.Findings, Finding{
					Kind:       stmt.ColumnText(0),
					SourceNode: int(stmt.ColumnInt64(1)),
					SinkNode:   int(stmt.ColumnInt64(2)),
					Message:    stmt.ColumnText(3),
				})
				return nil
			},
		})
	if err != nil {
		return nil, lotuserr.Wrap(lotuserr.InputInvalid, fmt.Sprintf("load findings for run %s", id), err)
	}
	return run, nil
}

// ListRuns returns every persisted run's metadata, most recent first, for
// cmd/lotus-query's index page.
func (s *Store) ListRuns() ([]Run, error) {
	var runs []Run
	err := sqlitex.ExecuteTransient(s.conn,
		`SELECT id, created_at, module_path, index_variant, num_nodes, num_edges FROM runs ORDER BY created_at DESC`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				createdAt, perr := time.Parse(time.RFC3339, stmt.ColumnText(1))
				if perr != nil {
					return perr
				}
				runs = append(runs, Run{
					ID:           stmt.ColumnText(0),
					CreatedAt:    createdAt,
					ModulePath:   stmt.ColumnText(2),
					IndexVariant: stmt.ColumnText(3),
					NumNodes:     int(stmt.ColumnInt64(4)),
					NumEdges:     int(stmt.ColumnInt64(5)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, lotuserr.Wrap(lotuserr.InputInvalid, "list runs", err)
	}
	return runs, nil
}
