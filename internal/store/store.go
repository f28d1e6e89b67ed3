package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/banachtech/orex/internal/apperr"
)

// Querier is the set of single-statement operations Queries implements,
// factored out so tests can substitute a hand-written fake for *Queries
// (see the mock subpackage) without dragging in a live database.
type Querier interface {
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetUserByAPIKeyHash(ctx context.Context, hash string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	CreateRun(ctx context.Context, id, configPath string) (Run, error)
	GetRun(ctx context.Context, id string) (Run, error)
	UpdateRunStatus(ctx context.Context, arg UpdateRunStatusParams) (Run, error)
}

// Store is the full persistence API the control-plane API depends on:
// every Querier statement plus RegisterUser, a transactional operation
// that needs more than one statement to stay atomic.
type Store interface {
	Querier
	RegisterUser(ctx context.Context, username, apiKeyHash string) (User, error)
}

// SQLStore is the Postgres-backed Store, following the teacher's
// Store/SQLStore/execTx convention.
type SQLStore struct {
	db *sql.DB
	*Queries
}

// NewStore wraps an open *sql.DB in a Store.
func NewStore(db *sql.DB) Store {
	return &SQLStore{db: db, Queries: New(db)}
}

// execTx runs fn inside a transaction, rolling back on error or panic and
// committing otherwise.
func (s *SQLStore) execTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.NewIOError("store.execTx", err)
	}
	q := New(tx)
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return apperr.NewIOError("store.execTx", fmt.Errorf("rollback after %v: %w", err, rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.NewIOError("store.execTx", err)
	}
	return nil
}

// RegisterUser creates a new user inside its own transaction, rejecting
// the insert if the username is already taken — a read-then-write pair
// that needs transactional isolation, unlike the single-statement
// Querier methods.
func (s *SQLStore) RegisterUser(ctx context.Context, username, apiKeyHash string) (User, error) {
	var out User
	err := s.execTx(ctx, func(q *Queries) error {
		row := q.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username = $1`, username)
		var exists int
		if err := row.Scan(&exists); err == nil {
			return apperr.NewIOError("store.RegisterUser", fmt.Errorf("username %q already registered", username))
		} else if err != sql.ErrNoRows {
			return apperr.NewIOError("store.RegisterUser", err)
		}
		u, err := q.CreateUser(ctx, CreateUserParams{Username: username, APIKeyHash: apiKeyHash})
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}
