package flatten

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// copyValue deep-copies a document tree so tests can snapshot inputs without
// going through JSON (which would rewrite ints as float64).
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

func mustTransform(t *testing.T, doc any, opts Options) []Table {
	t.Helper()
	tables, err := Transform(doc, opts)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	return tables
}

func findTable(t *testing.T, tables []Table, name string) Table {
	t.Helper()
	for _, tb := range tables {
		if tb.Name == name {
			return tb
		}
	}
	t.Fatalf("table %q not found in %v", name, tableNames(tables))
	return Table{}
}

func hasTable(tables []Table, name string) bool {
	for _, tb := range tables {
		if tb.Name == name {
			return true
		}
	}
	return false
}

func tableNames(tables []Table) []string {
	out := make([]string, 0, len(tables))
	for _, tb := range tables {
		out = append(out, tb.Name)
	}
	return out
}

func TestTransformEmptyMap(t *testing.T) {
	tables := mustTransform(t, map[string]any{}, DefaultOptions())
	if len(tables) != 0 {
		t.Fatalf("expected no tables for empty document, got %v", tableNames(tables))
	}
}

func TestTransformRootScalarSequence(t *testing.T) {
	tables := mustTransform(t, []any{1, 2, 3}, DefaultOptions())

	want := []Table{{
		Name: "root",
		Rows: []Row{{"value": "1"}, {"value": "2"}, {"value": "3"}},
	}}
	if diff := cmp.Diff(want, tables); diff != "" {
		t.Fatalf("root scalar sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestTransformRootScalar(t *testing.T) {
	tables := mustTransform(t, 42, DefaultOptions())

	want := []Table{{Name: "root", Rows: []Row{{"value": "42"}}}}
	if diff := cmp.Diff(want, tables); diff != "" {
		t.Fatalf("root scalar mismatch (-want +got):\n%s", diff)
	}
}

func TestTransformWrapperUnwrapEquivalence(t *testing.T) {
	wrapped := map[string]any{
		"document": map[string]any{
			"title": "t",
			"tags":  []any{"a", "b"},
		},
	}
	bare := map[string]any{
		"title": "t",
		"tags":  []any{"a", "b"},
	}

	got := mustTransform(t, wrapped, DefaultOptions())
	want := mustTransform(t, bare, DefaultOptions())

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wrapped and bare documents diverged (-bare +wrapped):\n%s", diff)
	}

	if len(got) != 1 || got[0].Name != "data" {
		t.Fatalf("expected a single data table, got %v", tableNames(got))
	}
	row := got[0].Rows[0]
	if row["title"] != "t" {
		t.Fatalf("title = %v, want t", row["title"])
	}
	if diff := cmp.Diff([]any{"a", "b"}, row["tags"]); diff != "" {
		t.Fatalf("tags cell mismatch (-want +got):\n%s", diff)
	}
}

func TestTransformNestedObjectListExtraction(t *testing.T) {
	doc := map[string]any{
		"order": map[string]any{
			"id": 1,
			"items": []any{
				map[string]any{"sku": "A", "qty": 2},
				map[string]any{"sku": "B", "qty": 1},
			},
		},
	}

	tables := mustTransform(t, doc, DefaultOptions())

	want := []Table{
		{Name: "order", Rows: []Row{{"id": 1}}},
		{Name: "order_items", Rows: []Row{
			{"sku": "A", "qty": 2, "order_id": 1},
			{"sku": "B", "qty": 1, "order_id": 1},
		}},
	}
	if diff := cmp.Diff(want, tables); diff != "" {
		t.Fatalf("order extraction mismatch (-want +got):\n%s", diff)
	}
}

func TestTransformDepthLimitDisablesPromotion(t *testing.T) {
	doc := map[string]any{
		"user": map[string]any{
			"id": 1,
			"profile": map[string]any{
				"age":  3,
				"city": "x",
			},
		},
	}

	opts := DefaultOptions()
	opts.MaxDepth = 0

	tables := mustTransform(t, doc, opts)
	if hasTable(tables, "user_profile") {
		t.Fatalf("max_depth=0 must not promote nested maps, got %v", tableNames(tables))
	}

	row := findTable(t, tables, "user").Rows[0]
	if row["profile_age"] != 3 || row["profile_city"] != "x" {
		t.Fatalf("nested map leaves must still inline into the parent row, got %+v", row)
	}
}

// A promoted map's scalar fields appear both inlined in the parent row and
// in the promoted table. That denormalization is intentional (the data stays
// queryable from either side), so pin it down.
func TestTransformDualEmission(t *testing.T) {
	doc := map[string]any{
		"user": map[string]any{
			"id": 1,
			"profile": map[string]any{
				"age":  3,
				"city": "x",
			},
		},
	}

	tables := mustTransform(t, doc, DefaultOptions())

	parent := findTable(t, tables, "user").Rows[0]
	if parent["profile_age"] != 3 || parent["profile_city"] != "x" {
		t.Fatalf("promoted map leaves missing from parent row: %+v", parent)
	}

	child := findTable(t, tables, "user_profile").Rows[0]
	if child["age"] != 3 || child["city"] != "x" {
		t.Fatalf("promoted table missing its own fields: %+v", child)
	}
}

func TestTransformMinDictSizeGate(t *testing.T) {
	doc := map[string]any{
		"user": map[string]any{
			"id":      1,
			"profile": map[string]any{"age": 3},
		},
	}

	tables := mustTransform(t, doc, DefaultOptions()) // MinDictSize=2
	if hasTable(tables, "user_profile") {
		t.Fatalf("single-key map must not be promoted with min_dict_size=2, got %v", tableNames(tables))
	}

	opts := DefaultOptions()
	opts.MinDictSize = 1
	tables = mustTransform(t, doc, opts)
	if !hasTable(tables, "user_profile") {
		t.Fatalf("min_dict_size=1 must promote the nested map, got %v", tableNames(tables))
	}
}

func TestTransformRootScalarsAndBranches(t *testing.T) {
	doc := map[string]any{
		"version": "1.0",
		"servers": []any{
			map[string]any{"host": "a", "port": 1},
			map[string]any{"host": "b", "port": 2},
		},
	}

	tables := mustTransform(t, doc, DefaultOptions())

	if tables[0].Name != "root" {
		t.Fatalf("root table must come first, got %v", tableNames(tables))
	}
	if got := tables[0].Rows[0]["version"]; got != "1.0" {
		t.Fatalf("root.version = %v, want 1.0", got)
	}

	servers := findTable(t, tables, "servers")
	if len(servers.Rows) != 2 {
		t.Fatalf("servers rows = %d, want 2", len(servers.Rows))
	}
}

func TestTransformChildRowConservation(t *testing.T) {
	doc := map[string]any{
		"orders": []any{
			map[string]any{"id": 1, "items": []any{
				map[string]any{"sku": "A"},
				map[string]any{"sku": "B"},
			}},
			map[string]any{"id": 2, "items": []any{
				map[string]any{"sku": "C"},
			}},
		},
	}

	tables := mustTransform(t, doc, DefaultOptions())

	child := findTable(t, tables, "orders_items")
	if len(child.Rows) != 3 {
		t.Fatalf("child rows = %d, want total element count 3", len(child.Rows))
	}
	byParent := map[any]int{}
	for _, r := range child.Rows {
		byParent[r["orders_id"]]++
	}
	if byParent[1] != 2 || byParent[2] != 1 {
		t.Fatalf("join columns miscounted: %+v", byParent)
	}

	parent := findTable(t, tables, "orders")
	for _, r := range parent.Rows {
		if _, ok := r["items"]; ok {
			t.Fatalf("extracted key must be removed from parent rows: %+v", r)
		}
	}
}

// Path discovery inspects only the first record of a batch. A nested list
// that exists only in a later record is not extracted; it survives as a raw
// cell. Documented limitation, not a bug.
func TestTransformHeterogeneousBatchFirstRecordOnly(t *testing.T) {
	doc := map[string]any{
		"orders": []any{
			map[string]any{"id": 1},
			map[string]any{"id": 2, "items": []any{map[string]any{"sku": "A"}}},
		},
	}

	tables := mustTransform(t, doc, DefaultOptions())
	if hasTable(tables, "orders_items") {
		t.Fatalf("paths absent from the first record must not be extracted, got %v", tableNames(tables))
	}

	rows := findTable(t, tables, "orders").Rows
	if _, ok := rows[1]["items"].([]any); !ok {
		t.Fatalf("undiscovered nested list must survive as a raw cell, got %+v", rows[1])
	}
}

func TestTransformDeterminism(t *testing.T) {
	doc := map[string]any{
		"version": 2,
		"order": map[string]any{
			"id":     7,
			"flags":  []any{true, false},
			"items":  []any{map[string]any{"sku": "A", "meta": map[string]any{"w": 1}}},
			"totals": map[string]any{"net": 10, "gross": 12},
		},
	}

	first := mustTransform(t, copyValue(doc).(map[string]any), DefaultOptions())
	second := mustTransform(t, copyValue(doc).(map[string]any), DefaultOptions())

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("transform is not deterministic (-first +second):\n%s", diff)
	}
}

func TestTransformDoesNotMutateInput(t *testing.T) {
	doc := map[string]any{
		"order": map[string]any{
			"id":    1,
			"tags":  []any{1, true, "a"},
			"items": []any{map[string]any{"sku": "A", "qty": 2}},
			"totals": map[string]any{
				"net": 10, "gross": 12,
			},
		},
	}
	snapshot := copyValue(doc)

	if _, err := Transform(doc, DefaultOptions()); err != nil {
		t.Fatalf("Transform: %v", err)
	}

	if diff := cmp.Diff(snapshot, doc); diff != "" {
		t.Fatalf("input document was mutated (-before +after):\n%s", diff)
	}
}

func TestTransformMixedSequenceIsRejected(t *testing.T) {
	doc := map[string]any{
		"entries": []any{map[string]any{"a": 1}, "loose scalar"},
	}

	_, err := Transform(doc, DefaultOptions())
	var ue *UnsupportedStructureError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnsupportedStructureError, got %v", err)
	}
	if ue.Path != "entries" {
		t.Fatalf("error path = %q, want entries", ue.Path)
	}
}

func TestTransformOptionValidation(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"negative max_depth", Options{MaxDepth: -1, MinDictSize: 2, Strategy: StrategyDepth}},
		{"zero min_dict_size", Options{MaxDepth: 5, MinDictSize: 0, Strategy: StrategyDepth}},
		{"unknown strategy", Options{MaxDepth: 5, MinDictSize: 2, Strategy: "bogus"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Transform(map[string]any{"a": 1}, tc.opts)
			var ce *InvalidConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected InvalidConfigurationError, got %v", err)
			}
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("default options must validate, got %v", err)
	}

	empty := DefaultOptions()
	empty.Strategy = ""
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty strategy must validate, got %v", err)
	}

	bad := Options{MaxDepth: -1, MinDictSize: 2, Strategy: StrategyDepth}
	var ce *InvalidConfigurationError
	if err := bad.Validate(); !errors.As(err, &ce) {
		t.Fatalf("expected InvalidConfigurationError, got %v", err)
	}
}

func TestTransformEmptyStrategyDefaultsToDepth(t *testing.T) {
	opts := DefaultOptions()
	opts.Strategy = ""
	tables := mustTransform(t, map[string]any{"a": 1, "b": 2}, opts)
	if len(tables) != 1 || tables[0].Name != "data" {
		t.Fatalf("unexpected tables %v", tableNames(tables))
	}
}

func TestTransformAdaptiveStrategy(t *testing.T) {
	doc := map[string]any{
		"user": map[string]any{
			"id":      1,
			"tags":    []any{"x", "y"},
			"profile": map[string]any{"age": 3},
			"items": []any{
				map[string]any{"sku": "A", "qty": 1},
			},
		},
	}

	opts := DefaultOptions()
	opts.Strategy = StrategyAdaptive

	tables := mustTransform(t, doc, opts)

	// Single-key maps are promoted too: adaptive has no size gate.
	child := findTable(t, tables, "user_profile")
	if child.Rows[0]["age"] != 3 {
		t.Fatalf("user_profile row = %+v", child.Rows[0])
	}

	// No dual emission: nothing of the promoted map stays in the parent.
	parent := findTable(t, tables, "user").Rows[0]
	if _, ok := parent["profile_age"]; ok {
		t.Fatalf("adaptive must not inline promoted map leaves, got %+v", parent)
	}
	if diff := cmp.Diff([]any{"x", "y"}, parent["tags"]); diff != "" {
		t.Fatalf("scalar sequence must stay a cell (-want +got):\n%s", diff)
	}

	// Object sequences flatten generically: no parent join columns.
	items := findTable(t, tables, "user_items")
	if _, ok := items.Rows[0]["user_id"]; ok {
		t.Fatalf("adaptive object sequences must not carry meta columns, got %+v", items.Rows[0])
	}
	if items.Rows[0]["sku"] != "A" {
		t.Fatalf("user_items row = %+v", items.Rows[0])
	}
}

func TestTransformKeySanitization(t *testing.T) {
	doc := map[string]any{
		"report-data": map[string]any{
			"Total Price": 9,
			"sub.section": map[string]any{"a": 1, "b": 2},
		},
	}

	tables := mustTransform(t, doc, DefaultOptions())

	parent := findTable(t, tables, "report_data")
	if _, ok := parent.Rows[0]["total_price"]; !ok {
		t.Fatalf("column names must be sanitized, got %+v", parent.Rows[0])
	}
	if !hasTable(tables, "report_data_sub_section") {
		t.Fatalf("promoted table names must be sanitized, got %v", tableNames(tables))
	}
}
