package flatten

import "fmt"

// Strategy selects the heuristic that decides when a nested map is promoted
// to its own table.
type Strategy string

const (
	// StrategyDepth promotes nested maps only when they are large enough
	// (MinDictSize) and the recursion is still above MaxDepth. Promoted maps
	// keep their scalar leaves inlined in the parent row as well.
	StrategyDepth Strategy = "depth"

	// StrategyAdaptive promotes every nested map unconditionally and renders
	// object sequences by generic per-element flattening, without parent-meta
	// join columns.
	StrategyAdaptive Strategy = "adaptive"
)

// Options controls a single Transform call.
//
// The zero value is not usable as-is (MinDictSize must be >= 1); start from
// DefaultOptions and override what you need. An empty Strategy is treated as
// StrategyDepth.
type Options struct {
	// MaxDepth is the maximum map-nesting depth eligible for table promotion
	// under StrategyDepth. 0 disables promotion entirely. Must be >= 0.
	MaxDepth int

	// MinDictSize is the minimum key count for a nested map to be promoted
	// under StrategyDepth. Must be >= 1. Ignored by StrategyAdaptive.
	MinDictSize int

	// Strategy selects the promotion heuristic. Empty means StrategyDepth.
	Strategy Strategy
}

// DefaultOptions returns the default transform configuration.
func DefaultOptions() Options {
	return Options{
		MaxDepth:    5,
		MinDictSize: 2,
		Strategy:    StrategyDepth,
	}
}

// Validate reports the first out-of-range field as an
// *InvalidConfigurationError. An empty Strategy is accepted and means
// StrategyDepth.
func (o Options) Validate() error {
	if o.MaxDepth < 0 {
		return &InvalidConfigurationError{Option: "max_depth", Value: o.MaxDepth, Reason: "must be >= 0"}
	}
	if o.MinDictSize < 1 {
		return &InvalidConfigurationError{Option: "min_dict_size", Value: o.MinDictSize, Reason: "must be >= 1"}
	}
	switch o.Strategy {
	case StrategyDepth, StrategyAdaptive, "":
	default:
		return &InvalidConfigurationError{Option: "strategy", Value: string(o.Strategy), Reason: `must be "depth" or "adaptive"`}
	}
	return nil
}

// InvalidConfigurationError reports an Options field that is out of range.
type InvalidConfigurationError struct {
	Option string
	Value  any
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("flatten: invalid option %s=%v: %s", e.Option, e.Value, e.Reason)
}

// UnsupportedStructureError reports input the engine refuses instead of
// silently dropping data: a sequence that mixes map elements with scalar or
// sequence elements at the same position, or a record whose keys collide on
// the same column name after sanitization.
type UnsupportedStructureError struct {
	// Path is the table name or underscore-joined column path at which the
	// problem was found.
	Path   string
	Reason string
}

func (e *UnsupportedStructureError) Error() string {
	return fmt.Sprintf("flatten: unsupported structure at %q: %s", e.Path, e.Reason)
}
