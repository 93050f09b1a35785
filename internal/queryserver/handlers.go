package queryserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (a *App) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.db.ListRuns()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := a.db.Run(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "no such run", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}

func (a *App) handleFindings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query().Get("q")
	var (
		findings []Finding
		err      error
	)
	if q != "" {
		findings, err = a.db.SearchFindings(id, q)
	} else {
		findings, err = a.db.findings(queryFindingsByRun, id)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, findings)
}

func (a *App) handleVFGText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	text, err := a.db.VFGText(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "no such run", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func (a *App) handleReachable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sStr := r.URL.Query().Get("source")
	tStr := r.URL.Query().Get("target")
	if sStr == "" || tStr == "" {
		http.Error(w, "missing query parameter source or target", http.StatusBadRequest)
		return
	}
	s, err := strconv.Atoi(sStr)
	if err != nil {
		http.Error(w, "source must be an integer node id", http.StatusBadRequest)
		return
	}
	t, err := strconv.Atoi(tStr)
	if err != nil {
		http.Error(w, "target must be an integer node id", http.StatusBadRequest)
		return
	}

	reach, numNodes, err := a.db.Reachable(id, s, t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "no such run", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"source":     s,
		"target":     t,
		"reachable":  reach,
		"num_nodes":  numNodes,
		"approximate": true, // no bracket-matching: see DB.Reachable
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
