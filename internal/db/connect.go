package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:evaluator-portal.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/evaluator_portal?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer keeps ":memory:" databases coherent across the pool
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS draft_kv (
  k TEXT PRIMARY KEY,
  v TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  expires_at INTEGER
);

CREATE TABLE IF NOT EXISTS review_events (
  id TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  typ TEXT NOT NULL,             -- DraftSaved | ScoresSubmitted
  application_id TEXT NOT NULL,
  round_id TEXT NOT NULL DEFAULT '',
  edition_id TEXT NOT NULL DEFAULT '',
  total REAL NOT NULL DEFAULT 0,
  total_max REAL NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS review_events_owner ON review_events (owner, created_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS draft_kv (
  k TEXT PRIMARY KEY,
  v TEXT NOT NULL,
  updated_at BIGINT NOT NULL,
  expires_at BIGINT
);

CREATE TABLE IF NOT EXISTS review_events (
  id TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  typ TEXT NOT NULL,
  application_id TEXT NOT NULL,
  round_id TEXT NOT NULL DEFAULT '',
  edition_id TEXT NOT NULL DEFAULT '',
  total DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_max DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS review_events_owner ON review_events (owner, created_at);
`
