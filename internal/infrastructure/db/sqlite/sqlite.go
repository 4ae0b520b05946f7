// Package sqlite implements the persistence ports on an embedded SQLite
// database. Ownership is enforced in SQL: updates and deletes filter on both
// id and owner_id, so a row owned by someone else is simply never matched.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schema uses AUTOINCREMENT for worker ids on purpose: SQLite then guarantees
// ids are never reused, which the collection's id invariant depends on.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workers (
	id                           INTEGER PRIMARY KEY AUTOINCREMENT,
	name                         TEXT NOT NULL,
	coordinates_x                REAL NOT NULL,
	coordinates_y                REAL NOT NULL CHECK (coordinates_y > -72),
	creation_date                TEXT NOT NULL,
	salary                       INTEGER CHECK (salary IS NULL OR salary > 0),
	start_date                   TEXT NOT NULL,
	end_date                     TEXT,
	position                     TEXT,
	organization_annual_turnover INTEGER CHECK (organization_annual_turnover IS NULL OR organization_annual_turnover > 0),
	organization_type            TEXT NOT NULL,
	owner_id                     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_workers_owner ON workers(owner_id);
`

// Open opens (creating if needed) the database at path, applies the schema,
// and configures the connection for embedded use.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway, and one connection
	// keeps transactions and PRAGMAs predictable.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
