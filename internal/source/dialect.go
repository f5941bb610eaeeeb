package source

import (
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

// Dialect covers the SQL differences between the roster databases we read.
type Dialect interface {
	Name() string
	Quote(ident string) string
	// Paginate appends the paging clause to an ordered query.
	Paginate(query string, offset, limit int) (string, []any)
	// HasColumn returns a query yielding the count of matching columns.
	HasColumn(table, column string) (string, []any)
}

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlserver", "mssql":
		return SQLServer{}, nil
	case "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("source: unsupported driver %q", driver)
	}
}

// SQLServer is the production roster dialect (go-mssqldb, @pN parameters).
type SQLServer struct{}

func (SQLServer) Name() string { return "sqlserver" }

func (SQLServer) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (SQLServer) Paginate(query string, offset, limit int) (string, []any) {
	return query + " OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY", []any{offset, limit}
}

func (SQLServer) HasColumn(table, column string) (string, []any) {
	return `SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1 AND COLUMN_NAME = @p2`,
		[]any{table, column}
}

// SQLite is used for local fixtures and tests.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite3" }

func (SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLite) Paginate(query string, offset, limit int) (string, []any) {
	return query + " LIMIT ? OFFSET ?", []any{limit, offset}
}

func (SQLite) HasColumn(table, column string) (string, []any) {
	return `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, []any{table, column}
}
