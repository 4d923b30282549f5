// Package flatten converts an arbitrarily nested tree of maps, sequences,
// and scalars (as produced by parsing YAML or JSON) into a set of flat
// relational tables, preserving parent/child linkage through join columns.
//
// The engine is a pure, synchronous function over the input document:
//   - no I/O, no shared state between calls
//   - deterministic output (all map traversal is over sorted keys)
//   - the caller's document is never mutated; containers that need
//     restructuring are rebuilt by selective copy
//
// Sequences that mix map elements with scalars or sequences have no sane
// tabular rendering and are rejected with UnsupportedStructureError rather
// than silently dropped.
package flatten

// Row is a flat record: sanitized column name to scalar value. Cells that
// originate in scalar sequences hold the stringified-element []any; the
// storage layer renders those as JSON text.
type Row map[string]any

// Table is the emitted unit of output: a named, ordered list of rows.
type Table struct {
	Name string
	Rows []Row
}

// Transform converts a parsed document into an ordered list of named tables.
//
// Root dispatch:
//   - a sequence or bare scalar at the root is processed under the table
//     name "root"
//   - an empty map yields no tables
//   - a single-key map wrapping another map is unwrapped transparently for
//     the all-scalar check (the common "document wrapper" pattern)
//   - a map whose values are all scalars or scalar sequences becomes a
//     single-row "data" table
//   - otherwise, root-level scalar keys are collected into a single-row
//     "root" table (emitted first) and every other top-level key is
//     dispatched to the node processor under its own name
//
// Errors: InvalidConfigurationError for out-of-range options,
// UnsupportedStructureError for mixed-type sequences and for sibling keys
// that sanitize to the same column name. Nothing else fails; the transform
// is total over well-formed map/sequence/scalar trees.
func Transform(doc any, opts Options) ([]Table, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyDepth
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m, ok := doc.(map[string]any)
	if !ok {
		return processNode(doc, "root", 0, opts)
	}
	if len(m) == 0 {
		return nil, nil
	}

	// Single "document wrapper" unwrap: exactly one key holding a map.
	source := m
	if len(m) == 1 {
		for _, v := range m {
			if inner, ok := v.(map[string]any); ok {
				source = inner
			}
		}
	}

	if allScalarish(source) {
		return normalizeRecords("data", []map[string]any{source})
	}

	var tables []Table

	rootData := make(map[string]any)
	for _, k := range sortedKeys(m) {
		if kindOf(m[k]) == kindScalar {
			rootData[k] = m[k]
		}
	}
	if len(rootData) > 0 {
		rootTables, err := normalizeRecords("root", []map[string]any{rootData})
		if err != nil {
			return nil, err
		}
		tables = append(tables, rootTables...)
	}

	for _, k := range sortedKeys(m) {
		v := m[k]
		if kindOf(v) == kindScalar {
			continue
		}
		sub, err := processNode(v, sanitizeName(k), 0, opts)
		if err != nil {
			return nil, err
		}
		tables = append(tables, sub...)
	}

	return tables, nil
}

// allScalarish reports whether every value of the map is a scalar or a
// scalar/empty sequence, i.e. the map flattens to a single row with no
// child tables.
func allScalarish(m map[string]any) bool {
	for _, v := range m {
		switch kindOf(v) {
		case kindMap:
			return false
		case kindSequence:
			switch classifySequence(v.([]any)) {
			case seqScalar, seqEmpty:
			default:
				return false
			}
		}
	}
	return true
}
