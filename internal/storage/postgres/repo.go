// Package postgres stores derived tables in PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"reltab/internal/flatten"
	"reltab/internal/storage"
)

// Postgres caps bind parameters per statement at 65535; stay well under it.
const maxParams = 60000

type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", Open)
}

func Open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableDef) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
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
		tag, err := r.pool.Exec(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table.Name, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// buildInsertSQL renders a multi-row insert with $n placeholders.
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
			fmt.Fprintf(&b, "$%d", n)
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

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

func ddlType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeReal:
		return "DOUBLE PRECISION"
	case storage.TypeBool:
		return "BOOLEAN"
	case storage.TypeTime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
