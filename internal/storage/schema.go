package storage

import (
	"encoding/json"
	"sort"
	"time"

	"reltab/internal/flatten"
)

// ColumnType is the backend-independent type of a derived column. Each
// backend maps it to its own DDL type.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeInteger ColumnType = "integer"
	TypeReal    ColumnType = "real"
	TypeBool    ColumnType = "bool"
	TypeTime    ColumnType = "time"
)

// ColumnDef describes one column of a derived table.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// TableDef describes a destination table: its name and the union of the
// columns observed across its rows, sorted by name.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// ColumnNames returns the column names in definition order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// DeriveTableDefs computes table definitions from transformed tables.
//
// Tables with the same name are merged into one definition (a document can
// emit the same child table from several branches). Columns are the union
// over every row, sorted by name so DDL is deterministic. A column's type
// is inferred from all of its non-nil values; columns with no values at all
// default to text.
func DeriveTableDefs(tables []flatten.Table) []TableDef {
	byName := map[string][]flatten.Row{}
	var order []string
	for _, t := range tables {
		if _, seen := byName[t.Name]; !seen {
			order = append(order, t.Name)
		}
		byName[t.Name] = append(byName[t.Name], t.Rows...)
	}

	out := make([]TableDef, 0, len(order))
	for _, name := range order {
		rows := byName[name]

		colSet := map[string]bool{}
		for _, row := range rows {
			for k := range row {
				colSet[k] = true
			}
		}
		names := make([]string, 0, len(colSet))
		for k := range colSet {
			names = append(names, k)
		}
		sort.Strings(names)

		def := TableDef{Name: name, Columns: make([]ColumnDef, 0, len(names))}
		for _, col := range names {
			def.Columns = append(def.Columns, ColumnDef{
				Name: col,
				Type: inferColumnType(rows, col),
			})
		}
		out = append(out, def)
	}
	return out
}

// inferColumnType widens across observed values: integers stay integer until
// a float appears, any type conflict collapses to text.
func inferColumnType(rows []flatten.Row, col string) ColumnType {
	current := ColumnType("")
	for _, row := range rows {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		vt := valueType(v)
		switch {
		case current == "":
			current = vt
		case current == vt:
		case current == TypeInteger && vt == TypeReal,
			current == TypeReal && vt == TypeInteger:
			current = TypeReal
		default:
			return TypeText
		}
	}
	if current == "" {
		return TypeText
	}
	return current
}

func valueType(v any) ColumnType {
	switch t := v.(type) {
	case bool:
		return TypeBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32, float64:
		return TypeReal
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return TypeInteger
		}
		if _, err := t.Float64(); err == nil {
			return TypeReal
		}
		return TypeText
	case time.Time:
		return TypeTime
	default:
		return TypeText
	}
}

// BindValue converts a row cell into a value every database/sql driver can
// bind. Containers (scalar-sequence cells and unexpanded maps) are rendered
// as JSON text; json.Number resolves to int64 or float64 when it parses,
// falling back to its string form.
func BindValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// BindRow projects a row onto a table definition's columns, in column
// order, binding each value. Missing columns bind as nil.
func BindRow(def TableDef, row flatten.Row) []any {
	out := make([]any, len(def.Columns))
	for i, c := range def.Columns {
		out[i] = BindValue(row[c.Name])
	}
	return out
}
