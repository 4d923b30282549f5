// Package mysql stores derived tables in MySQL/MariaDB via go-sql-driver.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"reltab/internal/flatten"
	"reltab/internal/storage"
)

// max_allowed_packet is the practical bound on MySQL multi-row inserts;
// a parameter cap keeps statements comfortably below it.
const maxParams = 10000

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mysql", Open)
}

func Open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("mysql", cfg.DSN)
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
			args = append(args, storage.BindRow(table, row)...)
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
		return "DOUBLE"
	case storage.TypeBool:
		return "TINYINT(1)"
	case storage.TypeTime:
		return "DATETIME(6)"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}
