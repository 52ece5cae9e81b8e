// Package migrate versions the trackfit schema. Every change is an
// embedded SQL file registered in apply order; schema_version records
// the last applied step.
package migrate

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed sql/1_init.sql
var initSQL string

type step struct {
	version int
	name    string
	up      string
}

// steps is the schema changelog. A new change adds a numbered sql file
// under sql/ and an entry here; versions must stay strictly increasing.
var steps = []step{
	{1, "init", initSQL},
}

// Migrate brings the database up to the latest schema version, applying
// all outstanding steps in one transaction.
func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, s := range steps {
		if s.version <= current {
			continue
		}
		if _, err := tx.Exec(s.up); err != nil {
			return fmt.Errorf("apply %d_%s: %w", s.version, s.name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, s.version); err != nil {
			return fmt.Errorf("record version %d: %w", s.version, err)
		}
		current = s.version
	}
	return tx.Commit()
}
