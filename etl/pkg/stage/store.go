// Package stage ingests raw CSV files into a local DuckDB database, the
// analytical staging area between Drive downloads and the PostgreSQL load.
// Headers are normalized to PostgreSQL conventions and column types are
// inferred from the data so the downstream load can create typed tables.
package stage

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // Register duckdb driver with database/sql

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/ident"
)

// Column is a staged column: its cleaned name and inferred SQL type.
type Column struct {
	Name    string
	SQLType string
}

// IngestResult summarizes one CSV ingest.
type IngestResult struct {
	Table   string
	Columns []Column
	Rows    int64
}

// Store is a DuckDB staging database.
type Store struct {
	log  *slog.Logger
	path string
	db   *sql.DB
}

// Open opens (or creates) a DuckDB database at path. An empty path opens an
// in-memory database, which tests use.
func Open(ctx context.Context, log *slog.Logger, path string) (*Store, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb at %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return &Store{log: log, path: path, db: db}, nil
}

// DB exposes the underlying handle for querying staged tables.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the staging database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IngestCSV reads a CSV file into a staging table. Headers are cleaned to
// PostgreSQL conventions and validated; column types are inferred from the
// data; empty fields load as NULL. The table is replaced if it exists, so
// re-running an ingest is safe.
func (s *Store) IngestCSV(ctx context.Context, table, csvPath string) (*IngestResult, error) {
	if err := ident.Validate(table); err != nil {
		return nil, err
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", csvPath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header of %q: %w", csvPath, err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = ident.Clean(h)
	}
	if err := ident.ValidateAll(columns...); err != nil {
		return nil, fmt.Errorf("unusable headers in %q: %w", csvPath, err)
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, fmt.Errorf("duplicate column %q after cleaning headers of %q", c, csvPath)
		}
		seen[c] = true
	}

	// Whole-file read mirrors the frame-based ingest this replaces; staging
	// inputs are per-file CSV exports, not unbounded streams.
	records, err := reader.ReadAll()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read CSV rows of %q: %w", csvPath, err)
	}

	cols := make([]Column, len(columns))
	for i, name := range columns {
		samples := make([]string, len(records))
		for j, rec := range records {
			samples[j] = rec[i]
		}
		cols[i] = Column{Name: name, SQLType: InferSQLType(samples)}
	}

	if err := s.createTable(ctx, table, cols); err != nil {
		return nil, err
	}
	n, err := s.insertRows(ctx, table, cols, records)
	if err != nil {
		return nil, err
	}

	s.log.Info("ingested CSV into staging table",
		"file", csvPath,
		"table", table,
		"columns", len(cols),
		"rows", n)
	return &IngestResult{Table: table, Columns: cols, Rows: n}, nil
}

// TableColumns returns the column names of a staged table in order.
func (s *Store) TableColumns(ctx context.Context, table string) ([]string, error) {
	if err := ident.Validate(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position`,
		table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %q: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns: %w", err)
	}
	return columns, nil
}

// ReadTable streams a staged table. The caller must close the rows.
func (s *Store) ReadTable(ctx context.Context, table string) (*sql.Rows, error) {
	if err := ident.Validate(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %q`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to read table %q: %w", table, err)
	}
	return rows, nil
}

func (s *Store) createTable(ctx context.Context, table string, cols []Column) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf("%q %s", c.Name, c.SQLType)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table)); err != nil {
		return fmt.Errorf("failed to drop stale table %q: %w", table, err)
	}
	query := fmt.Sprintf(`CREATE TABLE %q (%s)`, table, strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %q: %w", table, err)
	}
	return nil
}

func (s *Store) insertRows(ctx context.Context, table string, cols []Column, records [][]string) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		names[i] = fmt.Sprintf("%q", c.Name)
		placeholders[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		table, strings.Join(names, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for rowNum, rec := range records {
		if len(rec) != len(cols) {
			return 0, fmt.Errorf("row %d has %d fields, expected %d", rowNum+1, len(rec), len(cols))
		}
		values := make([]any, len(cols))
		for i, raw := range rec {
			v, err := convertValue(raw, cols[i].SQLType)
			if err != nil {
				return 0, fmt.Errorf("row %d column %q: failed to parse %q as %s: %w",
					rowNum+1, cols[i].Name, raw, cols[i].SQLType, err)
			}
			values[i] = v
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d: %w", rowNum+1, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert: %w", err)
	}
	return n, nil
}
