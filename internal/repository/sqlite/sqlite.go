// Package sqlite implements the repository interfaces on an in-memory SQLite
// database (modernc.org/sqlite, pure Go).
//
// The catalog index is rebuilt from the bundled books at every start and is
// never written to after Load, so there is nothing to persist and nothing to
// migrate across versions.
//
// A ":memory:" database exists per connection. The pool is capped at one
// connection so every query sees the same tables.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the catalog connection pool.
type DB struct {
	conn *sql.DB
}

// New opens an empty in-memory catalog and creates its schema.
func New() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: creating schema: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the readiness check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			slug          TEXT PRIMARY KEY,
			position      INTEGER NOT NULL,
			id            TEXT NOT NULL,
			title         TEXT NOT NULL,
			title_en      TEXT NOT NULL DEFAULT '',
			author        TEXT NOT NULL DEFAULT '',
			cover_url     TEXT NOT NULL DEFAULT '',
			read_date     TEXT NOT NULL DEFAULT '',
			read_at       TEXT,
			summary       TEXT NOT NULL DEFAULT '',
			summary_en    TEXT NOT NULL DEFAULT '',
			publisher_url TEXT NOT NULL DEFAULT '',
			notes_url     TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_books_read_at ON books(read_at);
	`)
	if err != nil {
		return fmt.Errorf("creating books table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS book_tags (
			slug     TEXT NOT NULL REFERENCES books(slug) ON DELETE CASCADE,
			tag      TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (slug, tag)
		);
		CREATE INDEX IF NOT EXISTS idx_book_tags_tag ON book_tags(tag);
	`)
	if err != nil {
		return fmt.Errorf("creating book_tags table: %w", err)
	}
	return nil
}
