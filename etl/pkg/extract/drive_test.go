package extract

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weston-ai/cloud-etl-postgres-ml/utils/pkg/retry"
	pgkittesting "github.com/weston-ai/cloud-etl-postgres-ml/utils/pkg/testing"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestPgkit_Extract_FetchAll(t *testing.T) {
	t.Parallel()

	log := pgkittesting.NewLogger()

	t.Run("downloads files by id", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		served := map[string]int{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "download", r.URL.Query().Get("export"))
			id := r.URL.Query().Get("id")
			mu.Lock()
			served[id]++
			mu.Unlock()
			w.Write([]byte("id,value\n1,a\n"))
		}))
		defer srv.Close()

		f, err := NewFetcher(Config{
			Logger:            log,
			BaseURL:           srv.URL,
			RequestsPerSecond: 1000,
			Retry:             fastRetry(),
		})
		require.NoError(t, err)

		dir := t.TempDir()
		paths, err := f.FetchAll(t.Context(), dir, []FileSpec{
			{ID: "abc123", Name: "patients.csv"},
			{ID: "def456", Name: "visits.csv"},
		})
		require.NoError(t, err)
		require.Equal(t, []string{
			filepath.Join(dir, "patients.csv"),
			filepath.Join(dir, "visits.csv"),
		}, paths)

		for _, p := range paths {
			data, err := os.ReadFile(p)
			require.NoError(t, err)
			require.Equal(t, "id,value\n1,a\n", string(data))
		}
		require.Equal(t, map[string]int{"abc123": 1, "def456": 1}, served)
	})

	t.Run("retries transient server errors", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer srv.Close()

		f, err := NewFetcher(Config{
			Logger:            log,
			BaseURL:           srv.URL,
			RequestsPerSecond: 1000,
			Retry:             fastRetry(),
		})
		require.NoError(t, err)

		paths, err := f.FetchAll(t.Context(), t.TempDir(), []FileSpec{{ID: "x", Name: "f.csv"}})
		require.NoError(t, err)
		data, err := os.ReadFile(paths[0])
		require.NoError(t, err)
		require.Equal(t, "ok", string(data))
		require.Equal(t, 3, calls)
	})

	t.Run("does not retry 404", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			calls++
			mu.Unlock()
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		f, err := NewFetcher(Config{
			Logger:            log,
			BaseURL:           srv.URL,
			RequestsPerSecond: 1000,
			Retry:             fastRetry(),
		})
		require.NoError(t, err)

		_, err = f.FetchAll(t.Context(), t.TempDir(), []FileSpec{{ID: "x", Name: "f.csv"}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "404")
		require.Equal(t, 1, calls)
	})

	t.Run("rejects path traversal in file names", func(t *testing.T) {
		t.Parallel()

		f, err := NewFetcher(Config{Logger: log, BaseURL: "http://unused.invalid"})
		require.NoError(t, err)

		_, err = f.FetchAll(t.Context(), t.TempDir(), []FileSpec{{ID: "x", Name: "../escape.csv"}})
		require.Error(t, err)
	})

	t.Run("rejects empty file list", func(t *testing.T) {
		t.Parallel()

		f, err := NewFetcher(Config{Logger: log})
		require.NoError(t, err)
		_, err = f.FetchAll(t.Context(), t.TempDir(), nil)
		require.Error(t, err)
	})
}
