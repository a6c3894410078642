// Package classify determines which columns of a longitudinal dataset are
// time-invariant (constant per entity across observations) versus
// time-variant, the schema-design decision behind splitting a denormalized
// table into a dimension table and a fact table.
//
// Two strategies are provided: ClassifyColumns streams rows from any
// RowSource in one pass, and Pushdown delegates the grouped aggregation to
// PostgreSQL so large tables never leave the database.
package classify

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Class is the classification of a single column.
type Class string

const (
	// TimeInvariant means every pair of rows sharing an entity key agrees
	// (or is jointly null) in this column.
	TimeInvariant Class = "time_invariant"
	// TimeVariant means at least one entity has two observations that
	// disagree in this column.
	TimeVariant Class = "time_variant"
	// Indeterminate means there was no basis for comparison: the column is
	// entirely null, or no entity has more than one row.
	Indeterminate Class = "indeterminate"
)

// Classification maps each non-key column to its class.
type Classification map[string]Class

// Invariant returns the time-invariant column names in dataset order.
func (c Classification) Invariant(order []string) []string {
	return c.pick(order, TimeInvariant)
}

// Variant returns the time-variant column names in dataset order.
func (c Classification) Variant(order []string) []string {
	return c.pick(order, TimeVariant)
}

func (c Classification) pick(order []string, class Class) []string {
	var out []string
	for _, col := range order {
		if c[col] == class {
			out = append(out, col)
		}
	}
	return out
}

// UnknownColumnError reports an entity key column absent from the dataset.
type UnknownColumnError struct {
	Name string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Name)
}

// RowSource is a streaming cursor over a rectangular dataset. Table
// satisfies it in memory; PgxRows adapts a live pgx result set.
type RowSource interface {
	// Columns returns the column names in order.
	Columns() []string
	// Next advances to the next row, reporting false at the end.
	Next() bool
	// Row returns the current row's values, one per column.
	Row() ([]any, error)
	// Err returns the first error encountered while iterating.
	Err() error
}

// columnState tracks per-column evidence for one entity group: the first
// observed value and whether any later observation disagreed with it.
// Equality is transitive, so one counterexample against the first value is
// enough to falsify invariance.
type columnState struct {
	first any
}

type groupState struct {
	size int
	cols []columnState
}

// ClassifyColumns classifies every non-key column of src under the given
// entity key. Pure and read-only: calling it twice over the same data yields
// identical results.
//
// Null policy: two nulls within a group never count as a disagreement, but a
// null next to a non-null value does; grouping treats null key components as
// equal to each other.
func ClassifyColumns(src RowSource, entityKey []string) (Classification, error) {
	if len(entityKey) == 0 {
		return nil, fmt.Errorf("entity key is required")
	}

	columns := src.Columns()
	colIndex := make(map[string]int, len(columns))
	for i, col := range columns {
		colIndex[col] = i
	}

	keyIdx := make([]int, 0, len(entityKey))
	isKey := make(map[string]bool, len(entityKey))
	for _, k := range entityKey {
		i, ok := colIndex[k]
		if !ok {
			return nil, &UnknownColumnError{Name: k}
		}
		keyIdx = append(keyIdx, i)
		isKey[k] = true
	}

	valueIdx := make([]int, 0, len(columns))
	valueCols := make([]string, 0, len(columns))
	for i, col := range columns {
		if !isKey[col] {
			valueIdx = append(valueIdx, i)
			valueCols = append(valueCols, col)
		}
	}

	groups := make(map[string]*groupState)
	variant := make([]bool, len(valueCols))
	nonNull := make([]bool, len(valueCols))
	haveMultiRowGroup := false

	for src.Next() {
		row, err := src.Row()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row has %d values, expected %d", len(row), len(columns))
		}

		key := groupKey(row, keyIdx)
		g, ok := groups[key]
		if !ok {
			g = &groupState{cols: make([]columnState, len(valueCols))}
			groups[key] = g
		}
		g.size++
		if g.size == 2 {
			haveMultiRowGroup = true
		}

		for ci, ri := range valueIdx {
			v := row[ri]
			if v != nil {
				nonNull[ci] = true
			}
			if g.size == 1 {
				g.cols[ci].first = v
				continue
			}
			if variant[ci] {
				continue
			}
			if !equalValues(g.cols[ci].first, v) {
				variant[ci] = true
			}
		}
	}
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	result := make(Classification, len(valueCols))
	for ci, col := range valueCols {
		switch {
		case !nonNull[ci]:
			result[col] = Indeterminate
		case variant[ci]:
			result[col] = TimeVariant
		case !haveMultiRowGroup:
			result[col] = Indeterminate
		default:
			result[col] = TimeInvariant
		}
	}
	return result, nil
}

// groupKey builds a grouping key from the entity key components. Nulls are
// encoded with a dedicated marker so that null key components group together
// (three-valued-logic-safe equality, for grouping only).
func groupKey(row []any, keyIdx []int) string {
	var b strings.Builder
	for _, i := range keyIdx {
		v := row[i]
		if v == nil {
			b.WriteString("\x00")
		} else {
			fmt.Fprintf(&b, "%T:%v", v, v)
		}
		b.WriteString("\x1f")
	}
	return b.String()
}

// equalValues compares two scalar observations. Both nil is equal; nil next
// to non-nil is not. Numeric values compare across integer and float widths
// since drivers are inconsistent about scan types.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av == bv
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return string(av) == string(bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Equal(bv)
		}
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf || (math.IsNaN(af) && math.IsNaN(bf))
		}
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
