// Package extract downloads shared Google Drive CSV exports over HTTP.
// Drive is treated as a dumb file host: files shared by ID are fetched via
// the uc?export=download endpoint, with bounded concurrency, polite rate
// limiting, and retry on transient network failures.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/weston-ai/cloud-etl-postgres-ml/utils/pkg/retry"
)

// DefaultBaseURL is the public Drive download endpoint.
const DefaultBaseURL = "https://drive.google.com/uc"

// FileSpec names one file to fetch: the Drive file ID and the local file
// name it lands under.
type FileSpec struct {
	ID   string
	Name string
}

func (f FileSpec) validate() error {
	if f.ID == "" {
		return errors.New("file id is required")
	}
	if f.Name == "" || f.Name != filepath.Base(f.Name) {
		return fmt.Errorf("file name %q must be a bare file name", f.Name)
	}
	return nil
}

// Config configures a Fetcher.
type Config struct {
	Logger *slog.Logger

	// HTTPClient defaults to a client with a 5 minute timeout.
	HTTPClient *http.Client
	// BaseURL defaults to DefaultBaseURL; tests point it at a local server.
	BaseURL string
	// MaxConcurrency bounds parallel downloads (default 4).
	MaxConcurrency int
	// RequestsPerSecond rate-limits requests to Drive (default 2).
	RequestsPerSecond float64
	// Retry controls transient-failure retries (default retry.DefaultConfig).
	Retry retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Fetcher downloads Drive files to a local directory.
type Fetcher struct {
	log     *slog.Logger
	cfg     Config
	limiter *rate.Limiter
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Fetcher{
		log:     cfg.Logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// FetchAll downloads every file into destDir and returns the local paths in
// input order. The first failure cancels the remaining downloads.
func (f *Fetcher) FetchAll(ctx context.Context, destDir string, files []FileSpec) ([]string, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to fetch")
	}
	for _, file := range files {
		if err := file.validate(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dest dir: %w", err)
	}

	paths := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrency)

	for i, file := range files {
		g.Go(func() error {
			path := filepath.Join(destDir, file.Name)
			err := retry.Do(gctx, f.cfg.Retry, func() error {
				return f.fetchOne(gctx, file, path)
			})
			if err != nil {
				return fmt.Errorf("failed to fetch %q: %w", file.Name, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// statusError carries the HTTP status so retry.IsRetryable can distinguish
// 5xx/429 from permanent failures.
type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.status, e.url)
}

func (e *statusError) StatusCode() int { return e.status }

func (f *Fetcher) fetchOne(ctx context.Context, file FileSpec, destPath string) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}

	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("export", "download")
	q.Set("id", file.ID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := f.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{status: resp.StatusCode, url: u.String()}
	}

	// Download to a temp file first so a partial body never lands under the
	// final name.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", destPath, err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("failed to move %q into place: %w", destPath, err)
	}

	f.log.Debug("fetched file",
		"id", file.ID,
		"name", file.Name,
		"bytes", n,
		"duration", time.Since(start))
	return nil
}
