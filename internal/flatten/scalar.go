package flatten

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Node kinds. Anything that is not a map or a sequence is a scalar
// (string, bool, nil, numeric types, json.Number, time.Time).
type kind int

const (
	kindScalar kind = iota
	kindMap
	kindSequence
)

func kindOf(v any) kind {
	switch v.(type) {
	case map[string]any:
		return kindMap
	case []any:
		return kindSequence
	default:
		return kindScalar
	}
}

// Sequence sub-classification. A sequence that mixes map elements with
// anything else is seqMixed and is rejected by the callers that must
// interpret it.
type seqClass int

const (
	seqEmpty seqClass = iota
	seqScalar
	seqObject
	seqMixed
)

func classifySequence(s []any) seqClass {
	if len(s) == 0 {
		return seqEmpty
	}
	scalars, objects := 0, 0
	for _, e := range s {
		switch kindOf(e) {
		case kindMap:
			objects++
		case kindScalar:
			scalars++
		}
	}
	switch {
	case scalars == len(s):
		return seqScalar
	case objects == len(s):
		return seqObject
	default:
		return seqMixed
	}
}

// stringifyScalarLists recursively rewrites every all-scalar sequence into a
// fresh sequence of string elements, so downstream flattening never has to
// special-case numeric or boolean sequences. Maps and non-scalar sequences
// are rebuilt with recursion applied to their values.
//
// The input is never mutated; every container in the result is newly
// allocated. Total over the document value space, no error conditions.
func stringifyScalarLists(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = stringifyScalarLists(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		if classifySequence(t) == seqScalar {
			for i, e := range t {
				out[i] = stringifyScalar(e)
			}
			return out
		}
		for i, e := range t {
			out[i] = stringifyScalarLists(e)
		}
		return out
	default:
		return v
	}
}

// stringifyScalar renders a scalar in its natural string form.
// nil becomes the empty string.
func stringifyScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// foldMarks strips combining marks so accented input still yields a plain
// [a-z0-9_] identifier ("Café" -> "Cafe").
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// sanitizeName converts an arbitrary key into a safe, lowercase column or
// table identifier: diacritics folded, separators (space . - / \ : ;)
// replaced with a single underscore, everything outside [a-z0-9_] dropped,
// leading/trailing underscores trimmed.
//
// Idempotent: sanitizeName(sanitizeName(x)) == sanitizeName(x).
func sanitizeName(s string) string {
	if folded, _, err := transform.String(foldMarks, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '.' || r == '-' || r == '/' || r == '\\' || r == ':' || r == ';':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		}
		// Drop everything else.
	}

	return strings.Trim(b.String(), "_")
}

// sortedKeys returns the map keys in lexicographic order. Go maps are
// unordered, so every traversal in this package iterates sorted keys to keep
// the output deterministic.
func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
