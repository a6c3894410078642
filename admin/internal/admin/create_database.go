package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/provision"
)

// CreateDatabaseConfig holds configuration for provisioning a database.
type CreateDatabaseConfig struct {
	// AdminURL is a PostgreSQL URL with CREATEDB privileges, pointed at an
	// existing database (typically postgres).
	AdminURL string

	Name     string
	Owner    string
	Template string
	Encoding string

	// EnvPath, when set, receives a connection URL for the new database
	// under EnvKey, derived from AdminURL.
	EnvPath string
	EnvKey  string
}

// CreateDatabase provisions a database and grants its owner full privileges
// on it. If the grant step fails after the database was created, the partial
// state is reported so the operator can re-run the grant alone.
func CreateDatabase(ctx context.Context, log *slog.Logger, cfg CreateDatabaseConfig) error {
	db, err := openPgDB(cfg.AdminURL)
	if err != nil {
		return err
	}
	defer db.Close()

	err = provision.CreateDatabaseWithPrivileges(ctx, log, db, provision.Options{
		Name:     cfg.Name,
		Owner:    cfg.Owner,
		Template: cfg.Template,
		Encoding: cfg.Encoding,
	})
	if err != nil {
		var partial *provision.PartialError
		if errors.As(err, &partial) && partial.DatabaseCreated {
			log.Error("database created but privileges not granted; re-run with --grant-privileges",
				"database", cfg.Name, "owner", cfg.Owner)
		}
		return err
	}

	if cfg.EnvPath != "" {
		if err := writeDatabaseEnv(log, cfg.AdminURL, cfg.Name, cfg.EnvPath, cfg.EnvKey); err != nil {
			return err
		}
	}

	log.Info("database provisioned", "database", cfg.Name, "owner", cfg.Owner)
	return nil
}

// GrantPrivileges re-runs the grant step for an already-created database.
func GrantPrivileges(ctx context.Context, log *slog.Logger, cfg CreateDatabaseConfig) error {
	db, err := openPgDB(cfg.AdminURL)
	if err != nil {
		return err
	}
	defer db.Close()

	return provision.GrantAllPrivileges(ctx, log, db, cfg.Name, cfg.Owner)
}

func writeDatabaseEnv(log *slog.Logger, adminURL, dbname, envPath, envKey string) error {
	if envKey == "" {
		return fmt.Errorf("env key is required when writing an env file")
	}
	url, err := provision.DeriveDatabaseURL(adminURL, dbname)
	if err != nil {
		return fmt.Errorf("failed to derive database URL: %w", err)
	}
	if err := provision.WriteDatabaseURLToEnv(envPath, envKey, url); err != nil {
		return err
	}
	log.Info("wrote database URL to env file", "path", envPath, "key", envKey)
	return nil
}
