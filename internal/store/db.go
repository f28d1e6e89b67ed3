// Package store is the Postgres persistence layer: API keys/users,
// historical index fixings, and run metadata (spec §6's control-plane
// API needs somewhere to keep all three). Grounded on the teacher's
// db/sqlc Store/Queries/execTx convention, reconstructed by hand since
// the sqlc-generated model/query files were absent from the retrieved
// fragment — this package hand-writes the same shape sqlc would have
// generated, against this repository's own tables.
package store

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, letting Queries run
// against either a bare connection or an open transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries is the generated-style query handle: one method per statement.
type Queries struct {
	db DBTX
}

// New wraps db (a *sql.DB or *sql.Tx) in a Queries handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Open connects to a Postgres DSN and pings it.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
