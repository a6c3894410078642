package admin

import (
	"log/slog"
)

// WriteEnvConfig holds configuration for writing a database URL to an env
// file local to a project checkout.
type WriteEnvConfig struct {
	BaseURL  string
	Database string
	EnvPath  string
	EnvKey   string
}

// WriteEnv derives a connection URL for Database from BaseURL and upserts it
// into the env file under EnvKey. Other keys in the file are preserved.
func WriteEnv(log *slog.Logger, cfg WriteEnvConfig) error {
	return writeDatabaseEnv(log, cfg.BaseURL, cfg.Database, cfg.EnvPath, cfg.EnvKey)
}
