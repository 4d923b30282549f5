package flatten

// processNode walks one value (map, sequence, or scalar) and emits tables
// according to the configured strategy.
func processNode(v any, tableName string, depth int, opts Options) ([]Table, error) {
	if opts.Strategy == StrategyAdaptive {
		return processNodeAdaptive(v, tableName, opts)
	}

	switch t := v.(type) {
	case []any:
		return processSequence(t, tableName)
	case map[string]any:
		return processMapDepth(t, tableName, depth, opts)
	default:
		return []Table{{Name: tableName, Rows: []Row{{"value": stringifyScalar(v)}}}}, nil
	}
}

// processSequence handles a bare sequence node. Object sequences go through
// normalizeRecords (child extraction included); scalar sequences become a
// single-column "value" table; mixed sequences are refused.
func processSequence(seq []any, tableName string) ([]Table, error) {
	switch classifySequence(seq) {
	case seqEmpty:
		return nil, nil
	case seqObject:
		records := make([]map[string]any, 0, len(seq))
		for _, e := range seq {
			records = append(records, e.(map[string]any))
		}
		return normalizeRecords(tableName, records)
	case seqScalar:
		rows := make([]Row, 0, len(seq))
		for _, e := range seq {
			rows = append(rows, Row{"value": stringifyScalar(e)})
		}
		return []Table{{Name: tableName, Rows: rows}}, nil
	default:
		return nil, &UnsupportedStructureError{
			Path:   tableName,
			Reason: "sequence mixes map elements with other kinds",
		}
	}
}

// processMapDepth assembles a residual record for this level and recurses
// into promoted children.
//
// Scalar and sequence values stay in the record: normalizeRecords performs
// the child extraction for object sequences, which is what carries the
// parent's scalar fields into child rows as join columns.
//
// A map value with at least MinDictSize keys is promoted to its own table
// while the recursion is above MaxDepth. Promotion is deliberately dual:
// the promoted map's scalar leaves remain inlined in this level's row AND
// appear in the promoted child table, so the data stays queryable from
// either side. The inlined copy is pruned to scalar leaves so the promoted
// map's own object sequences are extracted only under the child's name.
func processMapDepth(m map[string]any, tableName string, depth int, opts Options) ([]Table, error) {
	rec := make(map[string]any, len(m))
	var promoted []Table

	for _, k := range sortedKeys(m) {
		switch t := m[k].(type) {
		case map[string]any:
			if len(t) >= opts.MinDictSize && depth < opts.MaxDepth {
				child, err := processNode(t, tableName+"_"+sanitizeName(k), depth+1, opts)
				if err != nil {
					return nil, err
				}
				promoted = append(promoted, child...)
				if pruned := pruneToScalarLeaves(t); len(pruned) > 0 {
					rec[k] = pruned
				}
			} else {
				rec[k] = t
			}
		default:
			rec[k] = m[k]
		}
	}

	var out []Table
	if len(rec) > 0 {
		tables, err := normalizeRecords(tableName, []map[string]any{rec})
		if err != nil {
			return nil, err
		}
		out = append(out, tables...)
	}
	out = append(out, promoted...)
	return out, nil
}

// pruneToScalarLeaves copies a map keeping only scalar values, scalar or
// empty sequences, and nested maps reduced the same way. Object and mixed
// sequences are dropped; they belong to the promoted child table.
func pruneToScalarLeaves(m map[string]any) map[string]any {
	out := make(map[string]any)
	for _, k := range sortedKeys(m) {
		switch t := m[k].(type) {
		case map[string]any:
			if p := pruneToScalarLeaves(t); len(p) > 0 {
				out[k] = p
			}
		case []any:
			switch classifySequence(t) {
			case seqScalar, seqEmpty:
				out[k] = t
			}
		default:
			out[k] = m[k]
		}
	}
	return out
}

// processNodeAdaptive is the "adaptive" strategy walker: every map value is
// promoted to its own table (no size gate, no depth gate, no dual emission)
// and object sequences are rendered by generic per-element flattening with
// no parent-meta join columns.
func processNodeAdaptive(v any, tableName string, opts Options) ([]Table, error) {
	switch t := v.(type) {
	case []any:
		switch classifySequence(t) {
		case seqEmpty:
			return nil, nil
		case seqScalar:
			rows := make([]Row, 0, len(t))
			for _, e := range t {
				rows = append(rows, Row{"value": stringifyScalar(e)})
			}
			return []Table{{Name: tableName, Rows: rows}}, nil
		case seqObject:
			return flattenObjectSequence(tableName, t)
		default:
			return nil, &UnsupportedStructureError{
				Path:   tableName,
				Reason: "sequence mixes map elements with other kinds",
			}
		}

	case map[string]any:
		rec := make(map[string]any, len(t))
		var children []Table
		for _, k := range sortedKeys(t) {
			switch val := t[k].(type) {
			case map[string]any:
				sub, err := processNodeAdaptive(val, tableName+"_"+sanitizeName(k), opts)
				if err != nil {
					return nil, err
				}
				children = append(children, sub...)
			case []any:
				switch classifySequence(val) {
				case seqScalar, seqEmpty:
					rec[k] = val
				default:
					sub, err := processNodeAdaptive(val, tableName+"_"+sanitizeName(k), opts)
					if err != nil {
						return nil, err
					}
					children = append(children, sub...)
				}
			default:
				rec[k] = t[k]
			}
		}

		var out []Table
		if len(rec) > 0 {
			row, err := flattenRecord(stringifyScalarLists(rec).(map[string]any))
			if err != nil {
				return nil, err
			}
			out = append(out, Table{Name: sanitizeName(tableName), Rows: []Row{row}})
		}
		out = append(out, children...)
		return out, nil

	default:
		return []Table{{Name: tableName, Rows: []Row{{"value": stringifyScalar(v)}}}}, nil
	}
}

// flattenObjectSequence renders an object sequence as one table, one row per
// element, nested maps inlined. No extraction, no meta columns.
func flattenObjectSequence(tableName string, seq []any) ([]Table, error) {
	rows := make([]Row, 0, len(seq))
	for _, e := range seq {
		m := stringifyScalarLists(e).(map[string]any)
		row, err := flattenRecord(m)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return []Table{{Name: sanitizeName(tableName), Rows: rows}}, nil
}
