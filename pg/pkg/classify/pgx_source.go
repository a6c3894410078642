package classify

import (
	"github.com/jackc/pgx/v5"
)

// PgxRows adapts a pgx result set to RowSource so rows streamed from a live
// query can be classified without loading the table into memory. Callers
// retain ownership of rows and must close it afterwards.
type PgxRows struct {
	rows    pgx.Rows
	columns []string
}

// NewPgxRows wraps an open pgx.Rows.
func NewPgxRows(rows pgx.Rows) *PgxRows {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	return &PgxRows{rows: rows, columns: columns}
}

func (r *PgxRows) Columns() []string {
	return append([]string(nil), r.columns...)
}

func (r *PgxRows) Next() bool {
	return r.rows.Next()
}

func (r *PgxRows) Row() ([]any, error) {
	return r.rows.Values()
}

func (r *PgxRows) Err() error {
	return r.rows.Err()
}
