package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/classify"
)

// SplitTableConfig holds configuration for splitting a table into its
// time-invariant and time-variant parts.
type SplitTableConfig struct {
	DatabaseURL    string
	Table          string
	EntityKey      []string
	ErrorTolerance float64
}

// SplitTable classifies a table's columns and materializes the result as
// {table}_time_invariant (one row per entity) and {table}_time_variant
// (every observation).
func SplitTable(ctx context.Context, log *slog.Logger, cfg SplitTableConfig) error {
	db, err := openPgDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	pushdown, err := classify.NewPushdown(classify.PushdownConfig{
		Logger:         log,
		DB:             db,
		ErrorTolerance: cfg.ErrorTolerance,
	})
	if err != nil {
		return err
	}

	classification, err := pushdown.Classify(ctx, cfg.Table, cfg.EntityKey)
	if err != nil {
		return fmt.Errorf("failed to classify %q: %w", cfg.Table, err)
	}

	columns, err := classify.TableColumns(ctx, db, cfg.Table)
	if err != nil {
		return err
	}

	result, err := classify.SplitTable(ctx, classify.SplitConfig{
		Logger:         log,
		DB:             db,
		Table:          cfg.Table,
		EntityKey:      cfg.EntityKey,
		Classification: classification,
		ColumnOrder:    columns,
	})
	if err != nil {
		return fmt.Errorf("failed to split %q: %w", cfg.Table, err)
	}

	if result.InvariantTable != "" {
		fmt.Printf("Created %s with columns %v\n", result.InvariantTable, result.Invariant)
	}
	if result.VariantTable != "" {
		fmt.Printf("Created %s with columns %v\n", result.VariantTable, result.Variant)
	}
	return nil
}
