// Package source reads the student roster from the external campus database.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"campusgate/internal/logging"
	"campusgate/internal/roster"
	"campusgate/internal/store"
)

// PageSize is the fixed number of rows fetched per query.
const PageSize = 1000

// Roster column names in the source table.
const (
	ColStudentID   = "StudentID"
	ColCardID      = "CardID"
	ColName        = "Name"
	ColLivedName   = "LivedName"
	ColRemarks     = "Remarks"
	ColCampusEntry = "CampusEntry"
	ColPhoto       = "Photo"
	ColArchived    = "IsArchived"
)

// Capabilities describes optional features of the source schema.
// It is checked once per run and threaded through the fetch.
type Capabilities struct {
	HasArchiveColumn bool
}

// Connector is a paginated reader over the roster table.
type Connector struct {
	db       *sql.DB
	dialect  Dialect
	table    string
	photos   *roster.PhotoNormalizer
	pageSize int
}

// Connect opens the roster database for one sync run.
func Connect(ctx context.Context, driver, dsn, table string, photos *roster.PhotoNormalizer) (*Connector, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, driver, dsn, 4)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	return New(db, dialect, table, photos), nil
}

// New wraps an already open database.
func New(db *sql.DB, dialect Dialect, table string, photos *roster.PhotoNormalizer) *Connector {
	return &Connector{db: db, dialect: dialect, table: table, photos: photos, pageSize: PageSize}
}

// Ping checks connectivity without reading data.
func (c *Connector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the source connection.
func (c *Connector) Close() error {
	return c.db.Close()
}

// Capabilities inspects the schema for optional columns.
func (c *Connector) Capabilities(ctx context.Context) (Capabilities, error) {
	query, args := c.dialect.HasColumn(c.table, ColArchived)
	var n int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return Capabilities{}, fmt.Errorf("source: inspect schema: %w", err)
	}
	return Capabilities{HasArchiveColumn: n > 0}, nil
}

// FetchAll reads every active roster row ordered by student id. Any query
// error aborts the whole fetch.
func (c *Connector) FetchAll(ctx context.Context) ([]roster.SourceRecord, error) {
	caps, err := c.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	base := c.baseQuery(caps)

	var out []roster.SourceRecord
	for offset := 0; ; offset += c.pageSize {
		page, err := c.fetchPage(ctx, base, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < c.pageSize {
			break
		}
	}
	logging.Info().Int("records", len(out)).Bool("archive_filter", caps.HasArchiveColumn).Msg("source roster fetched")
	return out, nil
}

func (c *Connector) baseQuery(caps Capabilities) string {
	cols := []string{ColStudentID, ColCardID, ColName, ColLivedName, ColRemarks, ColCampusEntry, ColPhoto}
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = c.dialect.Quote(col)
	}
	q := "SELECT " + strings.Join(quoted, ", ") + " FROM " + c.dialect.Quote(c.table)
	if caps.HasArchiveColumn {
		arch := c.dialect.Quote(ColArchived)
		q += " WHERE (" + arch + " IS NULL OR " + arch + " = 0)"
	}
	return q + " ORDER BY " + c.dialect.Quote(ColStudentID)
}

func (c *Connector) fetchPage(ctx context.Context, base string, offset int) ([]roster.SourceRecord, error) {
	query, args := c.dialect.Paginate(base, offset, c.pageSize)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("source: query page at %d: %w", offset, err)
	}
	defer rows.Close()

	var page []roster.SourceRecord
	for rows.Next() {
		var (
			id                                      string
			card, name, lived, remarks, campusEntry sql.NullString
			photo                                   []byte
		)
		if err := rows.Scan(&id, &card, &name, &lived, &remarks, &campusEntry, &photo); err != nil {
			return nil, fmt.Errorf("source: scan row: %w", err)
		}
		page = append(page, roster.SourceRecord{
			StudentID:   strings.TrimSpace(id),
			CardID:      strings.TrimSpace(card.String),
			Name:        strings.TrimSpace(name.String),
			LivedName:   lived.String,
			Remarks:     remarks.String,
			CampusEntry: strings.TrimSpace(campusEntry.String),
			Photo:       c.photos.Normalize(roster.DetectPhoto(photo)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: iterate page at %d: %w", offset, err)
	}
	return page, nil
}
