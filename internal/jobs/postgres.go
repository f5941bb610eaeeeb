package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_jobs (
	id           UUID PRIMARY KEY,
	name         TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	fetched      INT NOT NULL DEFAULT 0,
	created      INT NOT NULL DEFAULT 0,
	updated      INT NOT NULL DEFAULT 0,
	exported     INT NOT NULL DEFAULT 0,
	skipped      INT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_sync_jobs_status ON sync_jobs (status);
CREATE INDEX IF NOT EXISTS idx_sync_jobs_created ON sync_jobs (created_at DESC);
`

const jobColumns = `id, name, status, error, fetched, created, updated, exported, skipped, created_at, started_at, completed_at`

// PostgresStore persists jobs in the sync_jobs table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the sync_jobs table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *PostgresStore) Enqueue(ctx context.Context, name string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sync_jobs (id, name, status) VALUES ($1, $2, $3)
		RETURNING `+jobColumns, uuid.NewString(), name, StatusPending)
	return scanJob(row)
}

func (s *PostgresStore) Start(ctx context.Context, name string, at time.Time) (Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE sync_jobs SET status = $2, started_at = $3
		WHERE id = (
			SELECT id FROM sync_jobs WHERE name = $1 AND status = 'pending'
			ORDER BY created_at LIMIT 1
		)
		RETURNING `+jobColumns, name, StatusProcessing, at)
	j, err := scanJob(row)
	if err == nil || !errors.Is(err, sql.ErrNoRows) {
		return j, err
	}
	row = s.db.QueryRowContext(ctx, `
		INSERT INTO sync_jobs (id, name, status, created_at, started_at) VALUES ($1, $2, $3, $4, $4)
		RETURNING `+jobColumns, uuid.NewString(), name, StatusProcessing, at)
	return scanJob(row)
}

func (s *PostgresStore) Finish(ctx context.Context, id string, status Status, stats Stats, errMsg string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $2, error = $3, fetched = $4, created = $5, updated = $6, exported = $7, skipped = $8, completed_at = $9
		WHERE id = $1
	`, id, status, errMsg, stats.Fetched, stats.Created, stats.Updated, stats.Exported, stats.Skipped, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_jobs WHERE status = $1`, status).Scan(&n)
	return n, err
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecoverInterrupted(ctx context.Context, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = $1, error = 'interrupted by restart', completed_at = $2
		WHERE status IN ('pending', 'processing')
	`, StatusFailed, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var (
		j         Job
		status    string
		started   sql.NullTime
		completed sql.NullTime
	)
	if err := row.Scan(&j.ID, &j.Name, &status, &j.Error,
		&j.Stats.Fetched, &j.Stats.Created, &j.Stats.Updated, &j.Stats.Exported, &j.Stats.Skipped,
		&j.CreatedAt, &started, &completed); err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	if started.Valid {
		j.StartedAt = &started.Time
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	return j, nil
}
