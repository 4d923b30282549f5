// Package sqlite stores derived tables in SQLite via modernc.org/sqlite
// (pure Go, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"reltab/internal/flatten"
	"reltab/internal/storage"
)

// SQLite's historical parameter ceiling is 999; stay under it so multi-row
// inserts work on every build.
const maxParams = 999

// Repo implements storage.Repository for SQLite.
//
// SQLite has no dedicated timestamp type, so time values are stored as
// RFC3339Nano TEXT for reliable round-trip behavior and easy debugging.
// Booleans are stored as INTEGER 0/1.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", Open)
}

func Open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableDef) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) InsertRows(ctx context.Context, table storage.TableDef, rows []flatten.Row) (int64, error) {
	if len(rows) == 0 || len(table.Columns) == 0 {
		return 0, nil
	}

	rowsPerChunk := maxParams / len(table.Columns)
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	colList := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		colList = append(colList, sqlIdent(c.Name))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(table.Columns)), ",") + ")"

	var total int64
	for start := 0; start < len(rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		var b strings.Builder
		b.WriteString("INSERT INTO ")
		b.WriteString(sqlIdent(table.Name))
		b.WriteString(" (")
		b.WriteString(strings.Join(colList, ", "))
		b.WriteString(") VALUES ")

		args := make([]any, 0, len(chunk)*len(table.Columns))
		for i, row := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholders)
			for _, v := range storage.BindRow(table, row) {
				args = append(args, bindLocal(v))
			}
		}

		res, err := r.db.ExecContext(ctx, b.String(), args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table.Name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// bindLocal applies the SQLite-specific representation on top of the
// generic binding.
func bindLocal(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func buildCreateTableSQL(t storage.TableDef) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), ddlType(c.Type)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

func ddlType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "INTEGER"
	case storage.TypeReal:
		return "REAL"
	case storage.TypeBool:
		return "INTEGER"
	case storage.TypeTime:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
