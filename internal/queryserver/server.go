package queryserver

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// App holds the query server's dependencies.
type App struct {
	db        *DB
	staticDir string
}

// NewApp creates an App over an already-open SQLite connection (a run
// store produced by internal/store), plus an optional directory of
// static assets for a dashboard SPA.
func NewApp(db *sql.DB, staticDir string) *App {
	return &App{db: NewDB(db), staticDir: staticDir}
}

// Handler returns the full HTTP handler: CORS-enabled JSON API under
// /api, and (if staticDir is set) a catch-all static file server.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", a.handleListRuns)
		r.Get("/runs/{id}", a.handleRun)
		r.Get("/runs/{id}/findings", a.handleFindings)
		r.Get("/runs/{id}/vfg", a.handleVFGText)
		r.Get("/runs/{id}/reachable", a.handleReachable)
	})

	if a.staticDir != "" {
		fs := http.FileServer(http.Dir(a.staticDir))
		r.Get("/*", fs.ServeHTTP)
	} else {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no static dir configured (set -static or STATIC_DIR)", http.StatusNotFound)
		})
	}

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
