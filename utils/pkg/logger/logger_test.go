package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPgkit_Logger_NewWithFile(t *testing.T) {
	t.Parallel()

	t.Run("writes records to the log file", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "logs")
		log, path, err := NewWithFile(FileConfig{Dir: dir, File: "create_db", Level: "debug"})
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "create_db.log"), path)

		log.Info("database created", "name", "healthdb")
		log.Debug("debug detail")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "database created")
		require.Contains(t, string(data), "debug detail")
	})

	t.Run("creates the log directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "a", "b", "c")
		_, path, err := NewWithFile(FileConfig{Dir: dir, File: "etl"})
		require.NoError(t, err)
		_, err = os.Stat(path)
		require.NoError(t, err)
	})

	t.Run("rejects missing dir or file", func(t *testing.T) {
		t.Parallel()

		_, _, err := NewWithFile(FileConfig{File: "x"})
		require.Error(t, err)
		_, _, err = NewWithFile(FileConfig{Dir: t.TempDir()})
		require.Error(t, err)
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		t.Parallel()

		_, _, err := NewWithFile(FileConfig{Dir: t.TempDir(), File: "x", Level: "loud"})
		require.Error(t, err)
	})
}
