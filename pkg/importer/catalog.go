package importer

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/padron/pkg/source"
)

// Load statuses recorded after a pipeline run.
const (
	StatusOK            = "ok"
	StatusStructural    = "structural"
	StatusNormalization = "normalization"
	StatusIO            = "io"
)

// Entry is a row of the datasets catalog.
type Entry struct {
	DatasetID   string  `json:"dataset_id"`
	File        string  `json:"file"`
	Description string  `json:"description"`
	SourceURL   string  `json:"source_url"`
	License     string  `json:"license"`
	ContentHash *string `json:"content_hash,omitempty"`
	LastFetch   *int64  `json:"last_fetch,omitempty"`
	LastCheck   *int64  `json:"last_check,omitempty"`
	LastStatus  *int    `json:"last_status,omitempty"`
	LastError   *string `json:"last_error,omitempty"`
	LoadStatus  *string `json:"load_status,omitempty"`
	LoadError   *string `json:"load_error,omitempty"`
	LoadedAt    *int64  `json:"loaded_at,omitempty"`
	UpdatedAt   int64   `json:"updated_at"`
}

// Catalog tracks where each dataset comes from and how its last download,
// availability check and load went.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (or creates) the SQLite catalog at path.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	const ddl = `CREATE TABLE IF NOT EXISTS datasets (
		dataset_id   TEXT PRIMARY KEY,
		file         TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		source_url   TEXT NOT NULL DEFAULT '',
		license      TEXT NOT NULL DEFAULT '',
		content_hash TEXT,
		last_fetch   INTEGER,
		last_check   INTEGER,
		last_status  INTEGER,
		last_error   TEXT,
		load_status  TEXT,
		load_error   TEXT,
		loaded_at    INTEGER,
		updated_at   INTEGER NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create datasets table: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Seed inserts one row per manifest dataset. Existing rows are left alone so
// URL overrides survive restarts.
func (c *Catalog) Seed(datasets []source.Dataset) error {
	const q = `INSERT OR IGNORE INTO datasets
		(dataset_id, file, description, source_url, license, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now().Unix()
	for _, d := range datasets {
		if _, err := c.db.Exec(q, d.ID, d.File, d.Description, d.URL, d.License, now); err != nil {
			return fmt.Errorf("seed %s: %w", d.ID, err)
		}
	}
	return nil
}

// GetURL returns the current download URL of a dataset.
func (c *Catalog) GetURL(datasetID string) (string, error) {
	var url string
	err := c.db.QueryRow(`SELECT source_url FROM datasets WHERE dataset_id = ?`, datasetID).Scan(&url)
	if err != nil {
		return "", fmt.Errorf("get url for %s: %w", datasetID, err)
	}
	return url, nil
}

// SetURL overrides the download URL of a dataset.
func (c *Catalog) SetURL(datasetID, url string) error {
	return c.update(datasetID, "set url",
		`UPDATE datasets SET source_url = ?, updated_at = ? WHERE dataset_id = ?`,
		url, time.Now().Unix(), datasetID)
}

// RecordFetch stores the content hash of a fresh download.
func (c *Catalog) RecordFetch(datasetID, contentHash string) error {
	return c.update(datasetID, "record fetch",
		`UPDATE datasets SET content_hash = ?, last_fetch = ? WHERE dataset_id = ?`,
		contentHash, time.Now().Unix(), datasetID)
}

// UpdateCheck persists the result of an availability check.
func (c *Catalog) UpdateCheck(datasetID string, status int, checkErr string) error {
	return c.update(datasetID, "update check",
		`UPDATE datasets SET last_check = ?, last_status = ?, last_error = ? WHERE dataset_id = ?`,
		time.Now().Unix(), status, nullable(checkErr), datasetID)
}

// RecordLoad persists the outcome of loading a dataset through the pipeline.
func (c *Catalog) RecordLoad(datasetID, status, loadErr string) error {
	return c.update(datasetID, "record load",
		`UPDATE datasets SET load_status = ?, load_error = ?, loaded_at = ? WHERE dataset_id = ?`,
		status, nullable(loadErr), time.Now().Unix(), datasetID)
}

func (c *Catalog) update(datasetID, what, q string, args ...any) error {
	res, err := c.db.Exec(q, args...)
	if err != nil {
		return fmt.Errorf("%s for %s: %w", what, datasetID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("dataset %s not found in catalog", datasetID)
	}
	return nil
}

// Get returns one catalog row.
func (c *Catalog) Get(datasetID string) (*Entry, error) {
	row := c.db.QueryRow(selectEntry+` WHERE dataset_id = ?`, datasetID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", datasetID, err)
	}
	return e, nil
}

// List returns all catalog rows ordered by dataset id.
func (c *Catalog) List() ([]Entry, error) {
	rows, err := c.db.Query(selectEntry + ` ORDER BY dataset_id`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

const selectEntry = `SELECT dataset_id, file, description, source_url, license,
	content_hash, last_fetch, last_check, last_status, last_error,
	load_status, load_error, loaded_at, updated_at FROM datasets`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	err := s.Scan(&e.DatasetID, &e.File, &e.Description, &e.SourceURL, &e.License,
		&e.ContentHash, &e.LastFetch, &e.LastCheck, &e.LastStatus, &e.LastError,
		&e.LoadStatus, &e.LoadError, &e.LoadedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
