// Package pipeline runs the end-to-end ETL flow: download source CSVs,
// stage them in DuckDB with inferred SQL types, then bulk-load each staged
// table into PostgreSQL.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/weston-ai/cloud-etl-postgres-ml/etl/pkg/extract"
	"github.com/weston-ai/cloud-etl-postgres-ml/etl/pkg/load"
	"github.com/weston-ai/cloud-etl-postgres-ml/etl/pkg/stage"
	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/classify"
	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/ident"
)

// Fetcher downloads source files into a destination directory.
type Fetcher interface {
	FetchAll(ctx context.Context, destDir string, files []extract.FileSpec) ([]string, error)
}

// Loader writes staged tables into PostgreSQL.
type Loader interface {
	EnsureTable(ctx context.Context, table string, cols []stage.Column) error
	CopyRows(ctx context.Context, table string, columns []string, src classify.RowSource) (int64, error)
	RecordRun(ctx context.Context, run load.Run) error
	Now() time.Time
}

// Config configures a pipeline Runner.
type Config struct {
	Logger  *slog.Logger
	Fetcher Fetcher
	Store   *stage.Store
	Loader  Loader

	// WorkDir is where downloaded files are written.
	WorkDir string

	// Files is the source manifest.
	Files []extract.FileSpec

	// RecordRuns writes a bookkeeping row per loaded table. Requires the
	// etl_runs migrations to have been applied on the target database.
	RecordRuns bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Loader == nil {
		return errors.New("loader is required")
	}
	if cfg.WorkDir == "" {
		return errors.New("work directory is required")
	}
	if len(cfg.Files) == 0 {
		return errors.New("at least one file is required")
	}
	return nil
}

// TableReport summarizes one loaded table.
type TableReport struct {
	SourceFile string
	Table      string
	Rows       int64
}

// Report summarizes a pipeline run.
type Report struct {
	Tables     []TableReport
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner executes the extract, stage and load steps in order.
type Runner struct {
	log     *slog.Logger
	fetcher Fetcher
	store   *stage.Store
	loader  Loader
	cfg     Config
}

// New creates a Runner.
func New(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		log:     cfg.Logger,
		fetcher: cfg.Fetcher,
		store:   cfg.Store,
		loader:  cfg.Loader,
		cfg:     cfg,
	}, nil
}

// Run downloads every file in the manifest, stages each one as a DuckDB
// table named after the cleaned file name, and copies the staged rows into
// PostgreSQL. Files are processed sequentially so a failure names the file
// it happened on.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: r.loader.Now()}

	r.log.Info("fetching source files", "count", len(r.cfg.Files), "dest", r.cfg.WorkDir)
	paths, err := r.fetcher.FetchAll(ctx, r.cfg.WorkDir, r.cfg.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source files: %w", err)
	}

	for i, file := range r.cfg.Files {
		table, err := TableName(file.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to derive table name from %q: %w", file.Name, err)
		}
		rows, err := r.processFile(ctx, file, paths[i], table)
		if err != nil {
			return nil, fmt.Errorf("failed to process %q: %w", file.Name, err)
		}
		report.Tables = append(report.Tables, TableReport{
			SourceFile: file.Name,
			Table:      table,
			Rows:       rows,
		})
	}

	report.FinishedAt = r.loader.Now()
	r.log.Info("pipeline run complete",
		"tables", len(report.Tables),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

func (r *Runner) processFile(ctx context.Context, file extract.FileSpec, path, table string) (int64, error) {
	startedAt := r.loader.Now()

	res, err := r.store.IngestCSV(ctx, table, path)
	if err != nil {
		return 0, fmt.Errorf("failed to stage: %w", err)
	}
	r.log.Info("staged table", "table", table, "rows", res.Rows, "columns", len(res.Columns))

	if err := r.loader.EnsureTable(ctx, table, res.Columns); err != nil {
		return 0, fmt.Errorf("failed to create target table: %w", err)
	}

	sqlRows, err := r.store.ReadTable(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("failed to read staged table: %w", err)
	}
	defer sqlRows.Close()

	src, err := classify.NewSQLRows(sqlRows)
	if err != nil {
		return 0, fmt.Errorf("failed to wrap staged rows: %w", err)
	}

	columns := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		columns[i] = c.Name
	}
	rows, err := r.loader.CopyRows(ctx, table, columns, src)
	if err != nil {
		return 0, fmt.Errorf("failed to load: %w", err)
	}

	if r.cfg.RecordRuns {
		run := load.Run{
			ID:          uuid.New(),
			SourceFile:  file.Name,
			TargetTable: table,
			RowCount:    rows,
			StartedAt:   startedAt,
			FinishedAt:  r.loader.Now(),
		}
		if err := r.loader.RecordRun(ctx, run); err != nil {
			return 0, err
		}
	}
	return rows, nil
}

// TableName derives a safe table name from a source file name by dropping
// the extension and cleaning the rest.
func TableName(fileName string) (string, error) {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	name := ident.Clean(base)
	if err := ident.Validate(name); err != nil {
		return "", err
	}
	return name, nil
}
