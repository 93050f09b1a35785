package main

import (
	"flag"
	"fmt"
	"os"
)

type config struct {
	dbPath    string
	port      string
	staticDir string
}

func newFlagSet(args []string) *flag.FlagSet {
	fs := flag.NewFlagSet("lotus-query", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lotus-query -db <path> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	return fs
}

// parseConfig parses args and fills in DB_PATH/PORT/STATIC_DIR from the
// environment wherever the matching flag was left unset, exactly the
// teacher's server/main.go precedence (flag wins, env is the fallback).
func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var c config
	fs.StringVar(&c.dbPath, "db", "", "path to the SQLite run store written by `lotus -db`")
	fs.StringVar(&c.port, "port", "8080", "HTTP port")
	fs.StringVar(&c.staticDir, "static", "", "directory of static dashboard assets to serve")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if c.dbPath == "" {
		c.dbPath = os.Getenv("DB_PATH")
	}
	if c.dbPath == "" {
		return config{}, fmt.Errorf("db path required: set -db or DB_PATH")
	}
	if c.port == "8080" {
		if p := os.Getenv("PORT"); p != "" {
			c.port = p
		}
	}
	if c.staticDir == "" {
		c.staticDir = os.Getenv("STATIC_DIR")
	}
	return c, nil
}
