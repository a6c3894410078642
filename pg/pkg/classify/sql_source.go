package classify

import (
	"database/sql"
	"fmt"
)

// SQLRows adapts a database/sql result set to RowSource. Works with any
// driver (DuckDB staging tables, pgx stdlib), streaming one row at a time.
type SQLRows struct {
	rows    *sql.Rows
	columns []string
	current []any
	err     error
}

// NewSQLRows wraps an open *sql.Rows. Callers retain ownership and must
// close rows afterwards.
func NewSQLRows(rows *sql.Rows) (*SQLRows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	return &SQLRows{rows: rows, columns: columns}, nil
}

func (r *SQLRows) Columns() []string {
	return append([]string(nil), r.columns...)
}

func (r *SQLRows) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.rows.Next() {
		return false
	}
	values := make([]any, len(r.columns))
	ptrs := make([]any, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = fmt.Errorf("failed to scan row: %w", err)
		return false
	}
	// Text columns scan as []byte under some drivers; normalize so values
	// compare as strings.
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	r.current = values
	return true
}

func (r *SQLRows) Row() ([]any, error) {
	if r.current == nil {
		return nil, fmt.Errorf("no current row")
	}
	return r.current, nil
}

func (r *SQLRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}
