package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/bioviz/bioviz/internal/dataset"
)

// Filter is one row-level condition on a named column.
type Filter struct {
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// applyFilters returns a frame with only the rows matching every filter.
// Conditions on unknown columns are skipped, matching the upload API's
// forgiving contract.
func applyFilters(f *dataset.Frame, filters map[string]Filter) *dataset.Frame {
	out := f
	for column, cond := range filters {
		col, ok := out.Column(column)
		if !ok {
			continue
		}
		keep := make([]bool, out.RowCount())
		for i, v := range col.Values {
			keep[i] = matches(v, cond)
		}
		out = out.FilterRows(keep)
	}
	return out
}

func matches(cell any, cond Filter) bool {
	switch cond.Operator {
	case "is null":
		return cell == nil
	case "is not null":
		return cell != nil
	}
	if cell == nil {
		return false
	}

	switch cond.Operator {
	case "==":
		return compare(cell, cond.Value) == 0
	case "!=":
		return compare(cell, cond.Value) != 0
	case ">":
		return compare(cell, cond.Value) > 0
	case "<":
		return compare(cell, cond.Value) < 0
	case ">=":
		return compare(cell, cond.Value) >= 0
	case "<=":
		return compare(cell, cond.Value) <= 0
	case "in":
		return contains(cond.Value, cell)
	case "not in":
		return !contains(cond.Value, cell)
	case "contains":
		return strings.Contains(asString(cell), asString(cond.Value))
	case "not contains":
		return !strings.Contains(asString(cell), asString(cond.Value))
	case "between":
		bounds, ok := cond.Value.([]any)
		if !ok || len(bounds) != 2 {
			return false
		}
		return compare(cell, bounds[0]) >= 0 && compare(cell, bounds[1]) <= 0
	}
	return false
}

// compare orders two cells. Numbers compare numerically regardless of
// int/float representation; everything else compares as strings.
// Returns -1, 0 or 1; incomparable values compare as unequal strings.
func compare(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(asString(a), asString(b))
}

func contains(set any, cell any) bool {
	items, ok := set.([]any)
	if !ok {
		return false
	}
	for _, it := range items {
		if compare(cell, it) == 0 {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
