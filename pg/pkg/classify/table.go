package classify

import (
	"fmt"

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/ident"
)

// Table is an in-memory rectangular dataset: an ordered list of uniquely
// named columns and rows of scalar values (nil allowed). It is a plain
// value; classification never mutates it.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// NewTable creates a table with the given column order. Column names must be
// valid identifiers and unique within the table.
func NewTable(columns ...string) (*Table, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}
	if err := ident.ValidateAll(columns...); err != nil {
		return nil, err
	}
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, ok := index[col]; ok {
			return nil, fmt.Errorf("duplicate column %q", col)
		}
		index[col] = i
	}
	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
	}, nil
}

// AppendRow adds a row; the value count must match the column count.
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}
	t.rows = append(t.rows, append([]any(nil), values...))
	return nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// ColumnIndex returns the position of a column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	i, ok := t.index[name]
	if !ok {
		return -1
	}
	return i
}

// Value returns the value at (row, column name).
func (t *Table) Value(row int, column string) (any, error) {
	i, ok := t.index[column]
	if !ok {
		return nil, &UnknownColumnError{Name: column}
	}
	if row < 0 || row >= len(t.rows) {
		return nil, fmt.Errorf("row %d out of range", row)
	}
	return t.rows[row][i], nil
}

// Rows returns a cursor over the table satisfying RowSource.
func (t *Table) Rows() *TableRows {
	return &TableRows{table: t, pos: -1}
}

// TableRows is a RowSource over an in-memory Table.
type TableRows struct {
	table *Table
	pos   int
}

func (r *TableRows) Columns() []string {
	return r.table.Columns()
}

func (r *TableRows) Next() bool {
	r.pos++
	return r.pos < len(r.table.rows)
}

func (r *TableRows) Row() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.table.rows) {
		return nil, fmt.Errorf("no current row")
	}
	return r.table.rows[r.pos], nil
}

func (r *TableRows) Err() error { return nil }
