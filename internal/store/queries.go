package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/banachtech/orex/internal/apperr"
)

// CreateUserParams are the fields needed to register a new API consumer.
type CreateUserParams struct {
	Username   string
	APIKeyHash string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO users (username, api_key_hash, created_at) VALUES ($1, $2, now())
		 RETURNING id, username, api_key_hash, created_at`,
		arg.Username, arg.APIKeyHash)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.APIKeyHash, &u.CreatedAt); err != nil {
		return User{}, apperr.NewIOError("store.CreateUser", err)
	}
	return u, nil
}

func (q *Queries) GetUserByAPIKeyHash(ctx context.Context, hash string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, username, api_key_hash, created_at FROM users WHERE api_key_hash = $1`, hash)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.APIKeyHash, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return User{}, apperr.NewIOError("store.GetUserByAPIKeyHash", errNotFound)
		}
		return User{}, apperr.NewIOError("store.GetUserByAPIKeyHash", err)
	}
	return u, nil
}

// GetUserByUsername looks a user up by their plaintext username, the
// non-secret half of the "<username>.<secret>" API key scheme the
// control-plane API's authentication middleware uses: the secret half is
// never stored or looked up directly, only bcrypt-compared against
// APIKeyHash (see internal/apiserver/middleware.go).
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, username, api_key_hash, created_at FROM users WHERE username = $1`, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.APIKeyHash, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return User{}, apperr.NewIOError("store.GetUserByUsername", errNotFound)
		}
		return User{}, apperr.NewIOError("store.GetUserByUsername", err)
	}
	return u, nil
}

func (q *Queries) UpsertFixing(ctx context.Context, f Fixing) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO fixings (index_name, fixing_date, value) VALUES ($1, $2, $3)
		 ON CONFLICT (index_name, fixing_date) DO UPDATE SET value = EXCLUDED.value`,
		f.Index, f.Date, f.Value)
	if err != nil {
		return apperr.NewIOError("store.UpsertFixing", err)
	}
	return nil
}

func (q *Queries) GetFixing(ctx context.Context, index string, date time.Time) (Fixing, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT index_name, fixing_date, value FROM fixings WHERE index_name = $1 AND fixing_date = $2`,
		index, date)
	var f Fixing
	if err := row.Scan(&f.Index, &f.Date, &f.Value); err != nil {
		if err == sql.ErrNoRows {
			return Fixing{}, apperr.NewIOError("store.GetFixing", errNotFound)
		}
		return Fixing{}, apperr.NewIOError("store.GetFixing", err)
	}
	return f, nil
}

func (q *Queries) CreateRun(ctx context.Context, id, configPath string) (Run, error) {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO runs (id, config_path, status, submitted_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 RETURNING id, config_path, status, report_dir, error, submitted_at, updated_at`,
		id, configPath, RunPending)
	return scanRun(row)
}

func (q *Queries) GetRun(ctx context.Context, id string) (Run, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, config_path, status, report_dir, error, submitted_at, updated_at FROM runs WHERE id = $1`, id)
	return scanRun(row)
}

// UpdateRunStatusParams updates a run's lifecycle fields.
type UpdateRunStatusParams struct {
	ID        string
	Status    RunStatus
	ReportDir string
	Error     string
}

func (q *Queries) UpdateRunStatus(ctx context.Context, arg UpdateRunStatusParams) (Run, error) {
	row := q.db.QueryRowContext(ctx,
		`UPDATE runs SET status = $2, report_dir = $3, error = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING id, config_path, status, report_dir, error, submitted_at, updated_at`,
		arg.ID, arg.Status, arg.ReportDir, arg.Error)
	return scanRun(row)
}

func scanRun(row *sql.Row) (Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.ConfigPath, &r.Status, &r.ReportDir, &r.Error, &r.SubmittedAt, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, apperr.NewIOError("store.Run", errNotFound)
		}
		return Run{}, apperr.NewIOError("store.Run", err)
	}
	return r, nil
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var errNotFound = notFoundError{}
