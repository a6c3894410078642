package admin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/classify"
)

// ClassifyTableConfig holds configuration for classifying a table's columns.
type ClassifyTableConfig struct {
	DatabaseURL string
	Table       string
	EntityKey   []string

	// ErrorTolerance is the fraction of entities allowed to show conflicting
	// values before a column is considered time-variant.
	ErrorTolerance float64
}

// ClassifyTable classifies every non-key column of a table as time-invariant,
// time-variant or indeterminate with respect to the entity key, and prints
// the result.
func ClassifyTable(ctx context.Context, log *slog.Logger, cfg ClassifyTableConfig) (classify.Classification, error) {
	db, err := openPgDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	pushdown, err := classify.NewPushdown(classify.PushdownConfig{
		Logger:         log,
		DB:             db,
		ErrorTolerance: cfg.ErrorTolerance,
	})
	if err != nil {
		return nil, err
	}

	result, err := pushdown.Classify(ctx, cfg.Table, cfg.EntityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to classify %q: %w", cfg.Table, err)
	}

	cols := make([]string, 0, len(result))
	for col := range result {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	fmt.Printf("Classification of %s (entity key: %v):\n", cfg.Table, cfg.EntityKey)
	for _, col := range cols {
		fmt.Printf("  %-32s %s\n", col, result[col])
	}

	return result, nil
}
