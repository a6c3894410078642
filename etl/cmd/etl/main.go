package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/weston-ai/cloud-etl-postgres-ml/etl/pkg/extract"
	"github.com/weston-ai/cloud-etl-postgres-ml/etl/pkg/load"
	"github.com/weston-ai/cloud-etl-postgres-ml/etl/pkg/pipeline"
	"github.com/weston-ai/cloud-etl-postgres-ml/etl/pkg/stage"
	"github.com/weston-ai/cloud-etl-postgres-ml/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFileFlag := flag.String("env-file", "", "load environment variables from this file before reading them")

	// Logging configuration
	logDirFlag := flag.String("log-dir", "logs", "directory for log files")
	logFileFlag := flag.String("log-file", "etl", "log file base name (without extension)")
	logLevelFlag := flag.String("log-level", "info", "log level (debug, info, warning, error)")

	// Source configuration
	filesFlag := flag.StringSlice("file", nil, "source file as id=name (e.g. 1AbC...=visits.csv); repeatable")
	workDirFlag := flag.String("work-dir", "", "directory for downloaded files (default: a temp directory)")

	// Staging and target configuration
	duckdbPathFlag := flag.String("duckdb-path", "", "DuckDB database path for staging (empty = in-memory)")
	databaseURLFlag := flag.String("database-url", "", "PostgreSQL URL of the target database (or set DATABASE_URL env var)")
	recordRunsFlag := flag.Bool("record-runs", false, "record each table load in the etl_runs table")

	flag.Parse()

	if *envFileFlag != "" {
		if err := godotenv.Load(*envFileFlag); err != nil {
			return fmt.Errorf("failed to load env file %q: %w", *envFileFlag, err)
		}
	}

	log, _, err := logger.NewWithFile(logger.FileConfig{
		Dir:   *logDirFlag,
		File:  *logFileFlag,
		Level: *logLevelFlag,
	})
	if err != nil {
		return err
	}

	if envDatabaseURL := os.Getenv("DATABASE_URL"); envDatabaseURL != "" && *databaseURLFlag == "" {
		*databaseURLFlag = envDatabaseURL
	}
	if *databaseURLFlag == "" {
		return fmt.Errorf("--database-url (or DATABASE_URL) is required")
	}

	files, err := parseFileSpecs(*filesFlag)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("at least one --file id=name is required")
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

	workDir := *workDirFlag
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "etl-*")
		if err != nil {
			return fmt.Errorf("failed to create work directory: %w", err)
		}
		defer os.RemoveAll(workDir)
	}

	ctx := context.Background()

	fetcher, err := extract.NewFetcher(extract.Config{Logger: log})
	if err != nil {
		return err
	}

	store, err := stage.Open(ctx, log, *duckdbPathFlag)
	if err != nil {
		return err
	}
	defer store.Close()

	pool, err := load.Connect(ctx, log, *databaseURLFlag)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader, err := load.New(load.Config{Logger: log, Pool: pool})
	if err != nil {
		return err
	}

	runner, err := pipeline.New(pipeline.Config{
		Logger:     log,
		Fetcher:    fetcher,
		Store:      store,
		Loader:     loader,
		WorkDir:    workDir,
		Files:      files,
		RecordRuns: *recordRunsFlag,
	})
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}

	for _, t := range report.Tables {
		fmt.Printf("%s -> %s (%d rows)\n", t.SourceFile, t.Table, t.Rows)
	}
	return nil
}

func parseFileSpecs(raw []string) ([]extract.FileSpec, error) {
	files := make([]extract.FileSpec, 0, len(raw))
	for _, spec := range raw {
		id, name, ok := strings.Cut(spec, "=")
		if !ok || id == "" || name == "" {
			return nil, fmt.Errorf("invalid --file %q: expected id=name", spec)
		}
		files = append(files, extract.FileSpec{ID: id, Name: name})
	}
	return files, nil
}
