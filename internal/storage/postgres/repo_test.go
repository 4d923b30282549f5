package postgres

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"reltab/internal/flatten"
	"reltab/internal/storage"
)

func TestBuildCreateTableSQL(t *testing.T) {
	def := storage.TableDef{
		Name: "order",
		Columns: []storage.ColumnDef{
			{Name: "id", Type: storage.TypeInteger},
			{Name: "total", Type: storage.TypeReal},
			{Name: "active", Type: storage.TypeBool},
			{Name: "seen_at", Type: storage.TypeTime},
			{Name: "status", Type: storage.TypeText},
		},
	}

	got, err := buildCreateTableSQL(def)
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}

	want := `CREATE TABLE IF NOT EXISTS "order" (
  "id" BIGINT,
  "total" DOUBLE PRECISION,
  "active" BOOLEAN,
  "seen_at" TIMESTAMPTZ,
  "status" TEXT
);`
	if got != want {
		t.Fatalf("ddl mismatch:\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	def := storage.TableDef{
		Name: "order",
		Columns: []storage.ColumnDef{
			{Name: "id", Type: storage.TypeInteger},
			{Name: "status", Type: storage.TypeText},
		},
	}
	rows := []flatten.Row{
		{"id": 1, "status": "open"},
		{"id": 2},
	}

	q, args := buildInsertSQL(def, []string{`"id"`, `"status"`}, rows)

	wantQ := `INSERT INTO "order" ("id", "status") VALUES ($1, $2), ($3, $4)`
	if q != wantQ {
		t.Fatalf("query mismatch:\n got: %s\nwant: %s", q, wantQ)
	}
	wantArgs := []any{1, "open", 2, nil}
	if diff := cmp.Diff(wantArgs, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}
