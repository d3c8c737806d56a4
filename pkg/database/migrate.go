package database

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the embedded schema. Every statement is IF NOT EXISTS,
// so calling it on an already-initialized database is a no-op.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Drop removes all charthub tables. Association tables go first so the
// drop order never trips a foreign key.
func Drop(db *sql.DB) error {
	stmts := []string{
		`DROP TABLE IF EXISTS movie_genres`,
		`DROP TABLE IF EXISTS movie_countries`,
		`DROP TABLE IF EXISTS genres`,
		`DROP TABLE IF EXISTS countries`,
		`DROP TABLE IF EXISTS movies`,
		`DROP TABLE IF EXISTS users`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	return nil
}
