// Package db opens the workspace SQLite store. All trackfit state lives
// in a .trackfit directory beside the config file.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".trackfit"
	dbName       = "trackfit.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the .trackfit state directory under the given
// workspace and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, dbName)
}

// Open ensures the workspace exists and opens its database with foreign
// keys enforced and a busy timeout, so the CLI and the server can share
// one store.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", Path(cfg.Workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer at a time; a single pooled connection
	// keeps concurrent writers queued instead of failing with SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	return conn, nil
}
