package importer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/padron/pkg/source"
)

// Fetcher downloads dataset files into a local directory and records their
// content hash in the catalog.
type Fetcher struct {
	catalog *Catalog
	dir     string
	logger  *slog.Logger
	client  *http.Client

	// Attempts per download, with exponential backoff between them.
	Attempts int
	Backoff  time.Duration
}

// NewFetcher returns a fetcher writing under dir.
func NewFetcher(catalog *Catalog, dir string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		catalog:  catalog,
		dir:      dir,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Minute},
		Attempts: 3,
		Backoff:  time.Second,
	}
}

// ErrNoURL is returned for datasets without a download URL.
var ErrNoURL = errors.New("dataset has no source url")

// Fetch downloads one dataset. URLs ending in .zip are unpacked and the
// member named like the dataset file is kept.
func (f *Fetcher) Fetch(ctx context.Context, d *source.Dataset) error {
	url, err := f.catalog.GetURL(d.ID)
	if err != nil {
		return err
	}
	if url == "" {
		return fmt.Errorf("%s: %w", d.ID, ErrNoURL)
	}

	dest := d.Path(f.dir)
	if err := ensureDir(filepath.Dir(dest)); err != nil {
		return fmt.Errorf("%s: %w", d.ID, err)
	}

	tmp := dest + ".part"
	defer os.Remove(tmp)
	if err := f.download(ctx, url, tmp); err != nil {
		return fmt.Errorf("%s: %w", d.ID, err)
	}

	if strings.EqualFold(path.Ext(strings.SplitN(url, "?", 2)[0]), ".zip") {
		if err := extractMember(tmp, filepath.Base(d.File), dest); err != nil {
			return fmt.Errorf("%s: %w", d.ID, err)
		}
	} else if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("%s: %w", d.ID, err)
	}

	hash, err := source.HashFile(dest)
	if err != nil {
		return fmt.Errorf("%s: %w", d.ID, err)
	}
	if err := f.catalog.RecordFetch(d.ID, hash); err != nil {
		return err
	}
	f.logger.Info("dataset fetched", "dataset", d.ID, "file", dest, "sha256", hash[:12])
	return nil
}

// FetchAll downloads every dataset that has a URL and returns the joined
// errors of the ones that failed.
func (f *Fetcher) FetchAll(ctx context.Context, datasets []source.Dataset) error {
	var errs []error
	for i := range datasets {
		d := &datasets[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := f.Fetch(ctx, d)
		if errors.Is(err, ErrNoURL) {
			f.logger.Info("dataset has no url, skipped", "dataset", d.ID)
			continue
		}
		if err != nil {
			f.logger.Warn("dataset fetch failed", "dataset", d.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// download fetches url to dest with retries.
func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	attempts := max(f.Attempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := f.Backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
			continue
		}

		out, err := os.Create(dest)
		if err != nil {
			resp.Body.Close()
			return fmt.Errorf("create file: %w", err)
		}

		_, copyErr := io.Copy(out, resp.Body)
		resp.Body.Close()
		closeErr := out.Close()

		if copyErr != nil {
			lastErr = copyErr
			continue
		}
		if closeErr != nil {
			return closeErr
		}
		return nil
	}
	return fmt.Errorf("download %s failed after %d attempts: %w", url, attempts, lastErr)
}

// extractMember copies the archive member whose base name is name to dest.
func extractMember(src, name, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Base(f.Name), name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		defer rc.Close()

		out, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
		return out.Close()
	}
	return fmt.Errorf("zip has no member %q", name)
}

// ensureDir creates a directory if it doesn't exist.
func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
