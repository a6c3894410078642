package classify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/ident"
)

// Querier is the subset of database/sql used by the pushdown classifier.
// *sql.DB, *sql.Conn, and *sql.Tx all satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PushdownConfig configures a classifier that delegates grouped aggregation
// to PostgreSQL, so the table never leaves the database.
type PushdownConfig struct {
	Logger *slog.Logger
	DB     Querier

	// ErrorTolerance is the fraction of entities allowed to violate
	// invariance before a column counts as time-variant. Zero means exact.
	ErrorTolerance float64
}

func (cfg *PushdownConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.ErrorTolerance < 0 || cfg.ErrorTolerance >= 1 {
		return fmt.Errorf("error tolerance must be in [0, 1), got %g", cfg.ErrorTolerance)
	}
	return nil
}

// Pushdown classifies columns of a live PostgreSQL table.
type Pushdown struct {
	log *slog.Logger
	cfg PushdownConfig
}

// NewPushdown creates a pushdown classifier.
func NewPushdown(cfg PushdownConfig) (*Pushdown, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pushdown{log: cfg.Logger, cfg: cfg}, nil
}

// Classify classifies every non-key column of table under entityKey. All
// identifiers are validated before any statement is issued; the table itself
// is never modified.
func (p *Pushdown) Classify(ctx context.Context, table string, entityKey []string) (Classification, error) {
	if len(entityKey) == 0 {
		return nil, errors.New("entity key is required")
	}
	if err := ident.ValidateAll(append([]string{table}, entityKey...)...); err != nil {
		return nil, err
	}

	columns, err := p.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	colSet := make(map[string]bool, len(columns))
	for _, c := range columns {
		colSet[c] = true
	}
	isKey := make(map[string]bool, len(entityKey))
	for _, k := range entityKey {
		if !colSet[k] {
			return nil, &UnknownColumnError{Name: k}
		}
		isKey[k] = true
	}

	keyList := quoteJoin(entityKey)

	// Entity and multi-row-entity counts are shared across columns.
	// GROUP BY treats nulls as equal, matching the in-memory grouping.
	var totalEntities, multiRowEntities int64
	countSQL := fmt.Sprintf(
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE n > 1) FROM (SELECT COUNT(*) AS n FROM %q GROUP BY %s) AS g`,
		table, keyList)
	if err := p.cfg.DB.QueryRowContext(ctx, countSQL).Scan(&totalEntities, &multiRowEntities); err != nil {
		return nil, fmt.Errorf("failed to count entities in %q: %w", table, err)
	}
	p.log.Debug("counted entities", "table", table, "entities", totalEntities, "multi_row_entities", multiRowEntities)

	result := make(Classification)
	for _, col := range columns {
		if isKey[col] {
			continue
		}
		class, err := p.classifyColumn(ctx, table, keyList, col, totalEntities, multiRowEntities)
		if err != nil {
			return nil, err
		}
		result[col] = class
	}
	return result, nil
}

// classifyColumn runs the grouped aggregation for one column. A group
// disagrees when it holds two distinct non-null values, or a null next to a
// non-null value (COUNT(col) counts only non-nulls).
func (p *Pushdown) classifyColumn(ctx context.Context, table, keyList, col string, totalEntities, multiRowEntities int64) (Class, error) {
	query := fmt.Sprintf(`
		SELECT
			(SELECT COUNT(%[3]q) FROM %[1]q),
			COUNT(*)
		FROM (
			SELECT 1
			FROM %[1]q
			GROUP BY %[2]s
			HAVING COUNT(*) > 1
			   AND (COUNT(DISTINCT %[3]q) > 1
			        OR (COUNT(%[3]q) > 0 AND COUNT(%[3]q) < COUNT(*)))
		) AS variant_groups`,
		table, keyList, col)

	var nonNullValues, variantEntities int64
	if err := p.cfg.DB.QueryRowContext(ctx, query).Scan(&nonNullValues, &variantEntities); err != nil {
		return "", fmt.Errorf("failed to analyze column %q: %w", col, err)
	}

	switch {
	case nonNullValues == 0:
		return Indeterminate, nil
	case multiRowEntities == 0:
		return Indeterminate, nil
	}

	outlierFraction := float64(variantEntities) / float64(totalEntities)
	if outlierFraction > p.cfg.ErrorTolerance {
		return TimeVariant, nil
	}
	if variantEntities > 0 {
		p.log.Warn("column has entities below the variance tolerance, marked time-invariant",
			"column", col,
			"variant_entities", variantEntities,
			"outlier_fraction", outlierFraction)
	}
	return TimeInvariant, nil
}

func (p *Pushdown) tableColumns(ctx context.Context, table string) ([]string, error) {
	return TableColumns(ctx, p.cfg.DB, table)
}

// TableColumns lists a table's column names in ordinal order and verifies
// they are all safe identifiers.
func TableColumns(ctx context.Context, db Querier, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`,
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
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q has no columns or does not exist", table)
	}

	if err := ident.ValidateAll(columns...); err != nil {
		return nil, fmt.Errorf("table %q has unsafe column names: %w", table, err)
	}
	return columns, nil
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
