// Package mssql stores derived tables in SQL Server via go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"reltab/internal/flatten"
	"reltab/internal/storage"
)

// SQL Server limits a statement to 2100 parameters; keep headroom.
const maxParams = 2000

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", Open)
}

func Open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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

// EnsureTables creates missing tables. SQL Server has no CREATE TABLE IF
// NOT EXISTS, so existence is checked through OBJECT_ID.
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

	var total int64
	for start := 0; start < len(rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		q, args := buildInsertSQL(table, colList, chunk)
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table.Name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// buildInsertSQL renders a multi-row insert with @pN placeholders, the
// positional form go-mssqldb binds.
func buildInsertSQL(table storage.TableDef, colList []string, rows []flatten.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table.Name))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(table.Columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range table.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", n)
			n++
		}
		b.WriteString(")")
		args = append(args, storage.BindRow(table, row)...)
	}
	return b.String(), args
}

func buildCreateTableSQL(t storage.TableDef) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), ddlType(c.Type)))
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n  %s\n);",
		strings.ReplaceAll(t.Name, "'", "''"),
		sqlIdent(t.Name),
		strings.Join(parts, ",\n  "),
	), nil
}

func ddlType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeReal:
		return "FLOAT"
	case storage.TypeBool:
		return "BIT"
	case storage.TypeTime:
		return "DATETIMEOFFSET"
	default:
		return "NVARCHAR(MAX)"
	}
}

func sqlIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
