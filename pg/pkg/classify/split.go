package classify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/ident"
)

// Execer is the subset of database/sql used by the splitter.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SplitConfig describes how to materialize a classification as two tables:
// {table}_time_invariant holds one row per entity with the invariant
// columns, {table}_time_variant holds every observation with the variant
// columns.
type SplitConfig struct {
	Logger *slog.Logger
	DB     Execer

	Table          string
	EntityKey      []string
	Classification Classification
	// ColumnOrder preserves the source table's column order in the outputs.
	ColumnOrder []string
}

func (cfg *SplitConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.Table == "" {
		return errors.New("table is required")
	}
	if len(cfg.EntityKey) == 0 {
		return errors.New("entity key is required")
	}
	if cfg.Classification == nil {
		return errors.New("classification is required")
	}
	if len(cfg.ColumnOrder) == 0 {
		return errors.New("column order is required")
	}
	return nil
}

// SplitResult reports which of the two tables were created.
type SplitResult struct {
	InvariantTable string
	VariantTable   string
	Invariant      []string
	Variant        []string
}

// SplitTable creates the time-invariant and time-variant tables for a
// previously classified source table. Indeterminate columns are carried into
// the variant table so no data is dropped. Uses CREATE TABLE IF NOT EXISTS;
// rerunning against an unchanged source is safe.
func SplitTable(ctx context.Context, cfg SplitConfig) (*SplitResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger

	names := append([]string{cfg.Table}, cfg.EntityKey...)
	names = append(names, cfg.ColumnOrder...)
	if err := ident.ValidateAll(names...); err != nil {
		return nil, err
	}

	invariant := cfg.Classification.Invariant(cfg.ColumnOrder)
	variant := cfg.Classification.Variant(cfg.ColumnOrder)
	// Indeterminate columns ride along with the observations.
	for _, col := range cfg.ColumnOrder {
		if cfg.Classification[col] == Indeterminate {
			variant = append(variant, col)
		}
	}

	result := &SplitResult{
		Invariant: invariant,
		Variant:   variant,
	}
	keyList := quoteJoin(cfg.EntityKey)

	if len(invariant) > 0 {
		name := cfg.Table + "_time_invariant"
		if err := ident.Validate(name); err != nil {
			return nil, fmt.Errorf("derived table name is invalid: %w", err)
		}
		// DISTINCT ON keeps one observation per entity; invariant columns
		// agree across observations so any row works.
		query := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q AS SELECT DISTINCT ON (%s) %s, %s FROM %q ORDER BY %s`,
			name, keyList, keyList, quoteJoin(invariant), cfg.Table, keyList)
		if _, err := cfg.DB.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("failed to create %q: %w", name, err)
		}
		result.InvariantTable = name
		log.Info("created time-invariant table", "table", name, "columns", len(invariant))
	} else {
		log.Warn("no time-invariant columns identified, skipping invariant table", "table", cfg.Table)
	}

	if len(variant) > 0 {
		name := cfg.Table + "_time_variant"
		if err := ident.Validate(name); err != nil {
			return nil, fmt.Errorf("derived table name is invalid: %w", err)
		}
		query := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q AS SELECT %s, %s FROM %q`,
			name, keyList, quoteJoin(variant), cfg.Table)
		if _, err := cfg.DB.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("failed to create %q: %w", name, err)
		}
		result.VariantTable = name
		log.Info("created time-variant table", "table", name, "columns", len(variant))
	} else {
		log.Warn("no time-variant columns identified, skipping variant table", "table", cfg.Table)
	}

	return result, nil
}
