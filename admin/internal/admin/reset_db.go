package admin

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/ident"
)

// ResetDB drops the tables the ETL produces: staged loads recorded in
// etl_runs and the derived *_time_invariant / *_time_variant tables.
func ResetDB(ctx context.Context, log *slog.Logger, databaseURL string, dryRun, skipConfirm bool) error {
	db, err := openPgDB(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	var haveRunLog bool
	if err := db.QueryRowContext(ctx,
		`SELECT to_regclass('public.etl_runs') IS NOT NULL`).Scan(&haveRunLog); err != nil {
		return fmt.Errorf("failed to check for run log: %w", err)
	}

	// Derived split tables by suffix, loaded tables via the run log.
	tableQuery := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND (table_name LIKE '%_time_invariant'
		    OR table_name LIKE '%_time_variant')
		ORDER BY table_name
	`
	if haveRunLog {
		tableQuery = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND (table_name LIKE '%_time_invariant'
		    OR table_name LIKE '%_time_variant'
		    OR table_name IN (SELECT target_table FROM etl_runs))
		ORDER BY table_name
	`
	}

	rows, err := db.QueryContext(ctx, tableQuery)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate tables: %w", err)
	}

	if len(tables) == 0 {
		fmt.Println("No ETL tables found")
		return nil
	}

	if err := ident.ValidateAll(tables...); err != nil {
		return fmt.Errorf("refusing to drop tables with unsafe names: %w", err)
	}

	fmt.Printf("WARNING: This will DROP %d table(s):\n\n", len(tables))
	for _, table := range tables {
		fmt.Printf("  - %s\n", table)
	}

	if dryRun {
		fmt.Println("\n[DRY RUN] Would drop the above tables")
		return nil
	}

	if !skipConfirm {
		fmt.Printf("\nThis is a DESTRUCTIVE operation that cannot be undone!\n")
		fmt.Printf("Type 'yes' to confirm: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" {
			fmt.Printf("\nConfirmation failed. Operation cancelled.\n")
			return nil
		}
		fmt.Println()
	}

	for _, table := range tables {
		dropQuery := fmt.Sprintf("DROP TABLE IF EXISTS %q", table)
		if _, err := db.ExecContext(ctx, dropQuery); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Info("dropped table", "table", table)
	}
	if haveRunLog {
		if _, err := db.ExecContext(ctx, "DELETE FROM etl_runs"); err != nil {
			return fmt.Errorf("failed to clear run log: %w", err)
		}
	}

	fmt.Printf("\nSuccessfully dropped %d table(s)\n", len(tables))
	return nil
}
