package queryserver

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"
)

// setupTestDB creates an in-memory SQLite DB matching internal/store's
// schema and seeds it with one run and one finding, mirroring the
// teacher's own setupTestDB pattern for its dashboard API tests.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
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
	`)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}

	vfgText := "0[]\n1[]\n2[]\n0->1[label=\"o1\"]\n1->2[label=\"c1\"]\n"
	_, err = db.Exec(`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"run-1", "2026-07-29T00:00:00Z", "example.com/fixture", "pathtree+grail", 3, 2, vfgText)
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}
	_, err = db.Exec(`INSERT INTO findings VALUES (?, ?, ?, ?, ?)`, "run-1", "Taint", 0, 2, "tainted value reaches sink")
	if err != nil {
		t.Fatalf("seed finding: %v", err)
	}
	return db
}

func TestHandleListRunsReturnsSeededRun(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/runs: want 200, got %d", rec.Code)
	}
	var runs []RunSummary
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestHandleRunReturnsFindings(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/runs/run-1: want 200, got %d", rec.Code)
	}
	var run Run
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(run.Findings) != 1 || run.Findings[0].Kind != "Taint" {
		t.Fatalf("unexpected findings: %+v", run.Findings)
	}
}

func TestHandleRunNotFound(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestHandleFindingsFiltersByQuery(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/findings?q=nothing-matches", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	var findings []Finding
	if err := json.NewDecoder(rec.Body).Decode(&findings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no matches, got %+v", findings)
	}
}

func TestHandleVFGTextReturnsSeededText(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/vfg", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty vfg text")
	}
}

func TestHandleReachableFindsPathAcrossCallReturn(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/reachable?source=0&target=2", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["reachable"] != true {
		t.Fatalf("expected reachable=true, got %+v", resp)
	}
}

func TestHandleReachableReportsUnreachablePair(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/reachable?source=2&target=0", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["reachable"] != false {
		t.Fatalf("expected reachable=false, got %+v", resp)
	}
}

func TestHandleReachableMissingParams(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/reachable", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestHandleReachableOutOfRangeNode(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1/reachable?source=0&target=99", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for out-of-range node id, got %d", rec.Code)
	}
}

func TestCORSHeadersPresent(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header on response")
	}
}
