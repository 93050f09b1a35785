// Command lotus-query serves the read-side HTTP API over a SQLite file
// produced by `lotus -db`: persisted run metadata, findings, serialized
// value-flow graphs, and ad-hoc reachability queries.
//
// Structured like the teacher's server/main.go: flag-configured db/port/
// static paths (each overridable by an env var), a graceful-shutdown
// http.Server, generalized here to the query-server's own App/Handler.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"lotus/internal/queryserver"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := newFlagSet(args)
	cfg, err := parseConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	db, err := sql.Open("sqlite", cfg.dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 1
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "ping db: %v\n", err)
		return 1
	}

	app := queryserver.NewApp(db, cfg.staticDir)
	srv := &http.Server{
		Addr:         ":" + cfg.port,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("lotus-query listening on http://localhost:%s (db=%s)", cfg.port, cfg.dbPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		return 1
	case <-quit:
		log.Println("shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		return 1
	}
	return 0
}
