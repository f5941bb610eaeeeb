// Package mirror persists the local copy of the student roster.
package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"campusgate/internal/roster"
)

const schema = `
CREATE TABLE IF NOT EXISTS student_mirror (
	student_id   TEXT PRIMARY KEY,
	card_id      TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	lived_name   TEXT NOT NULL DEFAULT '',
	remarks      TEXT NOT NULL DEFAULT '',
	campus_entry TEXT NOT NULL DEFAULT '',
	photo        TEXT NOT NULL DEFAULT '',
	archived     BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_student_mirror_archived ON student_mirror (archived);
`

// rows per multi-row statement; 9 params each stays under the Postgres limit.
const batchSize = 500

const columns = `student_id, card_id, name, lived_name, remarks, campus_entry, photo, archived, updated_at`

// Filter narrows Find. Zero value returns every row.
type Filter struct {
	IDs             []string
	ExcludeArchived bool
}

// Repository stores MirrorRecords in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the mirror table if needed.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Find returns mirror rows ordered by student id.
func (r *Repository) Find(ctx context.Context, f Filter) ([]roster.MirrorRecord, error) {
	query := `SELECT ` + columns + ` FROM student_mirror`
	var (
		args    []any
		clauses []string
	)
	if len(f.IDs) > 0 {
		args = append(args, f.IDs)
		clauses = append(clauses, fmt.Sprintf("student_id = ANY($%d)", len(args)))
	}
	if f.ExcludeArchived {
		clauses = append(clauses, "archived = FALSE")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY student_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []roster.MirrorRecord
	for rows.Next() {
		var m roster.MirrorRecord
		if err := rows.Scan(&m.StudentID, &m.CardID, &m.Name, &m.LivedName, &m.Remarks, &m.CampusEntry, &m.Photo, &m.Archived, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Insert bulk-inserts new rows in one transaction.
func (r *Repository) Insert(ctx context.Context, records []roster.MirrorRecord) error {
	return r.write(ctx, records, "")
}

// Save bulk-upserts rows by primary key.
func (r *Repository) Save(ctx context.Context, records []roster.MirrorRecord) error {
	return r.write(ctx, records, ` ON CONFLICT (student_id) DO UPDATE SET
		card_id = EXCLUDED.card_id,
		name = EXCLUDED.name,
		lived_name = EXCLUDED.lived_name,
		remarks = EXCLUDED.remarks,
		campus_entry = EXCLUDED.campus_entry,
		photo = EXCLUDED.photo,
		archived = EXCLUDED.archived,
		updated_at = EXCLUDED.updated_at`)
}

func (r *Repository) write(ctx context.Context, records []roster.MirrorRecord, suffix string) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		query, args := insertStatement(records[start:end])
		if _, err := tx.ExecContext(ctx, query+suffix, args...); err != nil {
			return fmt.Errorf("mirror: write rows %d-%d: %w", start, end, err)
		}
	}
	return tx.Commit()
}

func insertStatement(batch []roster.MirrorRecord) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO student_mirror (` + columns + `) VALUES `)
	args := make([]any, 0, len(batch)*9)
	for i, m := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9)
		updated := m.UpdatedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		args = append(args, m.StudentID, m.CardID, m.Name, m.LivedName, m.Remarks, m.CampusEntry, m.Photo, m.Archived, updated)
	}
	return sb.String(), args
}

// Archive flags the given students as archived and returns the affected rows.
func (r *Repository) Archive(ctx context.Context, ids []string) ([]roster.MirrorRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		UPDATE student_mirror SET archived = TRUE, updated_at = NOW()
		WHERE student_id = ANY($1)
		RETURNING `+columns, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []roster.MirrorRecord
	for rows.Next() {
		var m roster.MirrorRecord
		if err := rows.Scan(&m.StudentID, &m.CardID, &m.Name, &m.LivedName, &m.Remarks, &m.CampusEntry, &m.Photo, &m.Archived, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
