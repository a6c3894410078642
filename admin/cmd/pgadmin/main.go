package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/weston-ai/cloud-etl-postgres-ml/admin/internal/admin"
	"github.com/weston-ai/cloud-etl-postgres-ml/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	envFileFlag := flag.String("env-file", "", "load environment variables from this file before reading them")

	// PostgreSQL configuration
	adminURLFlag := flag.String("admin-url", "", "PostgreSQL URL with CREATEDB privileges (or set PG_ADMIN_URL env var)")
	databaseURLFlag := flag.String("database-url", "", "PostgreSQL URL of the target database (or set DATABASE_URL env var)")

	// Commands
	createDatabaseFlag := flag.Bool("create-database", false, "Create a database and grant its owner full privileges")
	grantPrivilegesFlag := flag.Bool("grant-privileges", false, "Re-run the privilege grant for an existing database")
	classifyTableFlag := flag.Bool("classify-table", false, "Classify a table's columns as time-invariant or time-variant")
	splitTableFlag := flag.Bool("split-table", false, "Classify a table and materialize its invariant/variant split")
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run PostgreSQL migrations using goose")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last PostgreSQL migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show PostgreSQL migration status")
	resetDBFlag := flag.Bool("reset-db", false, "Drop all ETL-produced tables (loaded, *_time_invariant, *_time_variant)")
	writeEnvFlag := flag.Bool("write-env", false, "Derive a database URL and write it to an env file")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	// Provisioning options
	dbNameFlag := flag.String("name", "", "Database name to create")
	dbOwnerFlag := flag.String("owner", "", "Role granted full privileges on the new database")
	dbTemplateFlag := flag.String("template", "", "Template database (default template1)")
	dbEncodingFlag := flag.String("encoding", "", "Database encoding (default UTF8)")

	// Classification options
	tableFlag := flag.String("table", "", "Table to classify or split")
	entityKeyFlag := flag.StringSlice("entity-key", nil, "Entity key column(s), comma separated")
	toleranceFlag := flag.Float64("error-tolerance", 0.01, "Fraction of entities allowed to disagree before a column is time-variant")

	// Env file options
	envPathFlag := flag.String("env-path", "", "Env file to write the derived database URL into")
	envKeyFlag := flag.String("env-key", "DATABASE_URL", "Env file key for the derived database URL")

	flag.Parse()

	if *envFileFlag != "" {
		if err := godotenv.Load(*envFileFlag); err != nil {
			return fmt.Errorf("failed to load env file %q: %w", *envFileFlag, err)
		}
	}

	log := logger.New(*verboseFlag)

	// Override connection flags with environment variables if set
	if envAdminURL := os.Getenv("PG_ADMIN_URL"); envAdminURL != "" && *adminURLFlag == "" {
		*adminURLFlag = envAdminURL
	}
	if envDatabaseURL := os.Getenv("DATABASE_URL"); envDatabaseURL != "" && *databaseURLFlag == "" {
		*databaseURLFlag = envDatabaseURL
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("SENTRY_ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Environment: environment}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()

	if *createDatabaseFlag {
		if *adminURLFlag == "" {
			return fmt.Errorf("--admin-url is required for --create-database")
		}
		if *dbNameFlag == "" || *dbOwnerFlag == "" {
			return fmt.Errorf("--name and --owner are required for --create-database")
		}
		return admin.CreateDatabase(ctx, log, admin.CreateDatabaseConfig{
			AdminURL: *adminURLFlag,
			Name:     *dbNameFlag,
			Owner:    *dbOwnerFlag,
			Template: *dbTemplateFlag,
			Encoding: *dbEncodingFlag,
			EnvPath:  *envPathFlag,
			EnvKey:   *envKeyFlag,
		})
	}

	if *grantPrivilegesFlag {
		if *adminURLFlag == "" {
			return fmt.Errorf("--admin-url is required for --grant-privileges")
		}
		if *dbNameFlag == "" || *dbOwnerFlag == "" {
			return fmt.Errorf("--name and --owner are required for --grant-privileges")
		}
		return admin.GrantPrivileges(ctx, log, admin.CreateDatabaseConfig{
			AdminURL: *adminURLFlag,
			Name:     *dbNameFlag,
			Owner:    *dbOwnerFlag,
		})
	}

	if *classifyTableFlag {
		if *databaseURLFlag == "" {
			return fmt.Errorf("--database-url is required for --classify-table")
		}
		if *tableFlag == "" || len(*entityKeyFlag) == 0 {
			return fmt.Errorf("--table and --entity-key are required for --classify-table")
		}
		_, err := admin.ClassifyTable(ctx, log, admin.ClassifyTableConfig{
			DatabaseURL:    *databaseURLFlag,
			Table:          *tableFlag,
			EntityKey:      *entityKeyFlag,
			ErrorTolerance: *toleranceFlag,
		})
		return err
	}

	if *splitTableFlag {
		if *databaseURLFlag == "" {
			return fmt.Errorf("--database-url is required for --split-table")
		}
		if *tableFlag == "" || len(*entityKeyFlag) == 0 {
			return fmt.Errorf("--table and --entity-key are required for --split-table")
		}
		return admin.SplitTable(ctx, log, admin.SplitTableConfig{
			DatabaseURL:    *databaseURLFlag,
			Table:          *tableFlag,
			EntityKey:      *entityKeyFlag,
			ErrorTolerance: *toleranceFlag,
		})
	}

	if *pgMigrateFlag {
		if *databaseURLFlag == "" {
			return fmt.Errorf("--database-url is required for --pg-migrate")
		}
		return admin.PgMigrateUp(log, admin.PgMigrateConfig{DatabaseURL: *databaseURLFlag})
	}

	if *pgMigrateDownFlag {
		if *databaseURLFlag == "" {
			return fmt.Errorf("--database-url is required for --pg-migrate-down")
		}
		return admin.PgMigrateDown(log, admin.PgMigrateConfig{DatabaseURL: *databaseURLFlag})
	}

	if *pgMigrateStatusFlag {
		if *databaseURLFlag == "" {
			return fmt.Errorf("--database-url is required for --pg-migrate-status")
		}
		return admin.PgMigrateStatus(log, admin.PgMigrateConfig{DatabaseURL: *databaseURLFlag})
	}

	if *resetDBFlag {
		if *databaseURLFlag == "" {
			return fmt.Errorf("--database-url is required for --reset-db")
		}
		return admin.ResetDB(ctx, log, *databaseURLFlag, *dryRunFlag, *yesFlag)
	}

	if *writeEnvFlag {
		if *adminURLFlag == "" {
			return fmt.Errorf("--admin-url is required for --write-env")
		}
		if *dbNameFlag == "" || *envPathFlag == "" {
			return fmt.Errorf("--name and --env-path are required for --write-env")
		}
		return admin.WriteEnv(log, admin.WriteEnvConfig{
			BaseURL:  *adminURLFlag,
			Database: *dbNameFlag,
			EnvPath:  *envPathFlag,
			EnvKey:   *envKeyFlag,
		})
	}

	flag.Usage()
	return nil
}
