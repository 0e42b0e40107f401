package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Checker performs periodic HEAD requests against every dataset URL in the
// catalog and records their availability.
type Checker struct {
	catalog  *Catalog
	logger   *slog.Logger
	interval time.Duration
	client   *http.Client

	// OnResult, if set, is called after each check (metrics).
	OnResult func(datasetID string, ok bool)
}

// NewChecker creates a Checker that will verify dataset URLs every interval.
func NewChecker(catalog *Catalog, logger *slog.Logger, interval time.Duration) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		catalog:  catalog,
		logger:   logger,
		interval: interval,
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Start runs an immediate check then repeats every interval until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	c.CheckAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// CheckAll performs a HEAD request on every dataset URL and persists the result.
// Datasets without a URL are skipped.
func (c *Checker) CheckAll(ctx context.Context) {
	entries, err := c.catalog.List()
	if err != nil {
		c.logger.Error("source check: cannot list datasets", "error", err)
		return
	}

	var ok, failed int
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.SourceURL == "" {
			continue
		}

		status, checkErr := c.checkOne(ctx, e.SourceURL)
		errMsg := ""
		if checkErr != nil {
			errMsg = checkErr.Error()
		}

		if err := c.catalog.UpdateCheck(e.DatasetID, status, errMsg); err != nil {
			c.logger.Error("source check: update failed", "dataset", e.DatasetID, "error", err)
		}

		up := status >= 200 && status < 400
		if c.OnResult != nil {
			c.OnResult(e.DatasetID, up)
		}
		if up {
			ok++
		} else {
			failed++
			c.logger.Warn("source unavailable",
				"dataset", e.DatasetID,
				"url", e.SourceURL,
				"status", status,
				"error", errMsg,
			)
		}
	}

	if ok+failed > 0 {
		c.logger.Info("source check complete", "total", ok+failed, "ok", ok, "failed", failed)
	}
}

// checkOne performs a single HEAD request and returns the HTTP status code.
// On network error, status is 0.
func (c *Checker) checkOne(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
