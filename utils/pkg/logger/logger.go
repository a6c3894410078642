package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

func New(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(newConsoleHandler(os.Stdout, logLevel))
}

// FileConfig configures a logger that writes to both the console and a log
// file. Dir is created if it does not exist; File is the base name and gets a
// ".log" extension appended.
type FileConfig struct {
	Dir   string
	File  string
	Level string // debug, info, warn, error (default info)
}

func (cfg *FileConfig) Validate() error {
	if cfg.Dir == "" {
		return fmt.Errorf("log dir is required")
	}
	if cfg.File == "" {
		return fmt.Errorf("log file is required")
	}
	return nil
}

func (cfg *FileConfig) level() (slog.Level, error) {
	switch strings.ToLower(cfg.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", cfg.Level)
	}
}

// NewWithFile builds a logger that fans out to the tinted console handler and
// a plain text file handler. Intended to be called once per process in main;
// everything else receives the logger as an argument. Returns the resolved
// log file path alongside the logger.
func NewWithFile(cfg FileConfig) (*slog.Logger, string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	level, err := cfg.level()
	if err != nil {
		return nil, "", err
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create log dir: %w", err)
	}
	path := filepath.Join(cfg.Dir, cfg.File+".log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}

	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
	log := slog.New(fanoutHandler{newConsoleHandler(os.Stdout, level), fileHandler})
	slog.SetDefault(log)
	log.Info("logging to file", "path", path)
	return log, path, nil
}

func newConsoleHandler(w *os.File, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	})
}

// fanoutHandler duplicates every record to all wrapped handlers.
type fanoutHandler []slog.Handler

func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, hh := range h {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(h))
	for i, hh := range h {
		out[i] = hh.WithAttrs(attrs)
	}
	return out
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(h))
	for i, hh := range h {
		out[i] = hh.WithGroup(name)
	}
	return out
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
