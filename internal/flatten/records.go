package flatten

import (
	"fmt"
	"strings"
)

// findPaths discovers every path (ordered key list) from the record root to a
// non-empty sequence-of-maps, recursing into nested maps but not into
// sequences. Paths are returned in pre-order over sorted keys.
//
// Only the first record of a batch is ever inspected; the engine assumes
// homogeneous batches. A nested list that exists only in a later record is
// not discovered and survives flattening as a raw cell.
func findPaths(sample map[string]any) [][]string {
	var out [][]string
	var walk func(m map[string]any, prefix []string)
	walk = func(m map[string]any, prefix []string) {
		for _, k := range sortedKeys(m) {
			switch t := m[k].(type) {
			case []any:
				if classifySequence(t) == seqObject {
					p := make([]string, 0, len(prefix)+1)
					p = append(p, prefix...)
					p = append(p, k)
					out = append(out, p)
				}
			case map[string]any:
				next := make([]string, 0, len(prefix)+1)
				next = append(next, prefix...)
				next = append(next, k)
				walk(t, next)
			}
		}
	}
	walk(sample, nil)
	return out
}

// extractNestedLists projects every sequence-of-maps discovered in
// records[0] into its own child table and returns the records rebuilt
// without the extracted keys.
//
// Child rows carry, as join columns, the strictly-scalar top-level fields of
// the parent record they came from, prefixed with the parent table name
// (meta columns). Meta columns win on name collision with element fields.
//
// The caller's records are never mutated: stripped records are fresh maps
// built by selective copy.
func extractNestedLists(records []map[string]any, parentTable string) ([]map[string]any, []Table, error) {
	if len(records) == 0 {
		return records, nil, nil
	}

	paths := findPaths(records[0])
	if len(paths) == 0 {
		return records, nil, nil
	}

	// Meta columns come from the first record's shape: top-level keys whose
	// values are scalars (not maps, not sequences).
	var metaKeys []string
	for _, k := range sortedKeys(records[0]) {
		if kindOf(records[0][k]) == kindScalar {
			metaKeys = append(metaKeys, k)
		}
	}

	children := make([]Table, 0, len(paths))
	for _, path := range paths {
		name := sanitizeName(parentTable + "_" + strings.Join(path, "_"))

		var rows []Row
		for _, rec := range records {
			seq, ok := sequenceAt(rec, path)
			if !ok {
				// Heterogeneous batch: this record lacks the path. Skip.
				continue
			}
			for _, e := range seq {
				em, ok := e.(map[string]any)
				if !ok {
					// Element shape diverged from the sample record; only
					// map elements become child rows.
					continue
				}
				row, err := flattenRecord(em)
				if err != nil {
					return nil, nil, err
				}
				for _, mk := range metaKeys {
					mv, ok := rec[mk]
					if !ok {
						continue
					}
					row[sanitizeName(parentTable+"_"+mk)] = mv
				}
				rows = append(rows, row)
			}
		}

		children = append(children, Table{Name: name, Rows: rows})
	}

	stripped := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out := rec
		for _, path := range paths {
			out = withoutPath(out, path)
		}
		stripped = append(stripped, out)
	}

	return stripped, children, nil
}

// sequenceAt descends maps along path and returns the sequence at its end.
func sequenceAt(rec map[string]any, path []string) ([]any, bool) {
	cur := rec
	for i, k := range path {
		v, ok := cur[k]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			seq, ok := v.([]any)
			return seq, ok
		}
		cur, ok = v.(map[string]any)
		if !ok {
			return nil, false
		}
	}
	return nil, false
}

// withoutPath returns a copy of m with the terminal key of path removed.
// Maps along the path are copied; untouched values are shared. If an
// intermediate key is missing or not a map, m is returned copied but intact.
func withoutPath(m map[string]any, path []string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	k := path[0]
	if len(path) == 1 {
		delete(out, k)
		return out
	}
	if child, ok := out[k].(map[string]any); ok {
		out[k] = withoutPath(child, path[1:])
	}
	return out
}

// flattenRecord inlines nested maps into a single flat row using
// underscore-joined key paths ("order.customer.name" -> order_customer_name
// after sanitization). Scalar and empty sequences stay as cells; object
// sequences left behind by extraction stay as raw cells; mixed sequences are
// an error, as are distinct keys that sanitize to the same column name.
func flattenRecord(rec map[string]any) (Row, error) {
	row := make(Row, len(rec))
	if err := flattenInto(row, "", rec, make(map[string]string, len(rec))); err != nil {
		return nil, err
	}
	return row, nil
}

func flattenInto(row Row, prefix string, m map[string]any, origins map[string]string) error {
	for _, k := range sortedKeys(m) {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch t := m[k].(type) {
		case map[string]any:
			if err := flattenInto(row, key, t, origins); err != nil {
				return err
			}
		case []any:
			if classifySequence(t) == seqMixed {
				return &UnsupportedStructureError{
					Path:   sanitizeName(key),
					Reason: "sequence mixes map elements with other kinds",
				}
			}
			if err := claimColumn(origins, key); err != nil {
				return err
			}
			row[sanitizeName(key)] = t
		default:
			if err := claimColumn(origins, key); err != nil {
				return err
			}
			row[sanitizeName(key)] = t
		}
	}
	return nil
}

// claimColumn records which raw key path produced a sanitized column and
// rejects a second claim on the same column. Without this, sibling keys
// like "a b" and "a.b" would silently overwrite one another in the row.
func claimColumn(origins map[string]string, rawKey string) error {
	col := sanitizeName(rawKey)
	if prev, ok := origins[col]; ok {
		return &UnsupportedStructureError{
			Path:   col,
			Reason: fmt.Sprintf("keys %q and %q collide on the same column after name sanitization", prev, rawKey),
		}
	}
	origins[col] = rawKey
	return nil
}

// normalizeRecords flattens a batch of records into one rectangular parent
// table plus any child tables extracted from nested sequences-of-maps.
//
// Pipeline: stringify scalar sequences, extract nested lists (with parent
// meta columns), flatten what remains, sanitize column names. The parent
// table is omitted when it would carry no data at all; extracted child
// tables are always returned.
func normalizeRecords(tableName string, records []map[string]any) ([]Table, error) {
	tableName = sanitizeName(tableName)

	prepared := make([]map[string]any, 0, len(records))
	for _, r := range records {
		prepared = append(prepared, stringifyScalarLists(r).(map[string]any))
	}

	stripped, children, err := extractNestedLists(prepared, tableName)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(stripped))
	hasData := false
	for _, r := range stripped {
		row, err := flattenRecord(r)
		if err != nil {
			return nil, err
		}
		if len(row) > 0 {
			hasData = true
		}
		rows = append(rows, row)
	}

	var out []Table
	if hasData {
		out = append(out, Table{Name: tableName, Rows: rows})
	}
	out = append(out, children...)
	return out, nil
}
