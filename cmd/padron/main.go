package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/padron/pkg/cache"
	"github.com/hazyhaar/padron/pkg/importer"
	"github.com/hazyhaar/padron/pkg/metrics"
	"github.com/hazyhaar/padron/pkg/pipeline"
	"github.com/hazyhaar/padron/pkg/province"
	"github.com/hazyhaar/padron/pkg/source"
)

const version = "0.3.0"

type config struct {
	Addr          string        `yaml:"addr"`
	Manifest      string        `yaml:"manifest"`
	DatasetsDir   string        `yaml:"datasets_dir"`
	CacheDir      string        `yaml:"cache_dir"`
	CatalogDB     string        `yaml:"catalog_db"`
	ProvincesFile string        `yaml:"provinces_file"`
	FloorYear     int           `yaml:"floor_year"`
	LogLevel      string        `yaml:"log_level"`
	CheckInterval time.Duration `yaml:"check_interval"`
	TLS           tlsConfig     `yaml:"tls"`
}

type tlsConfig struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	SelfSigned bool   `yaml:"self_signed"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "fetch":
		cmdFetch(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "export":
		cmdExport(os.Args[2:])
	case "version":
		fmt.Println("padron", version)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: padron <command> [flags]

Commands:
  serve    Start the HTTP server (/v1 routes, /mcp and /metrics)
  mcp      Serve the MCP tools over stdio
  fetch    Download dataset files listed in the manifest
  check    Check that dataset source URLs are reachable
  export   Write a pipeline result to a CSV, JSON or Parquet file
  version  Print the version

Every command accepts -config (default config.yaml).
`)
}

func loadConfig(path string, logger *slog.Logger) config {
	cfg := config{
		Addr:          ":8421",
		Manifest:      "datasets.yaml",
		DatasetsDir:   "data",
		CacheDir:      "cache",
		CatalogDB:     "data/catalog.db",
		LogLevel:      "info",
		CheckInterval: 24 * time.Hour,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no config file, using defaults", "path", path)
			return cfg
		}
		logger.Error("read config", "error", err)
		os.Exit(1)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Error("parse config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// app is the state shared by the subcommands.
type app struct {
	cfg      config
	logger   *slog.Logger
	manifest *source.Manifest
	catalog  *importer.Catalog
	cache    *cache.Cache
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
}

// setup loads the config and manifest, opens and seeds the catalog, and
// builds the pipeline. Any failure is fatal.
func setup(cfgPath string) *app {
	boot := newLogger("info")
	cfg := loadConfig(cfgPath, boot)
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	m, err := source.LoadManifest(cfg.Manifest)
	if err != nil {
		logger.Error("failed to load manifest", "error", err)
		os.Exit(1)
	}
	if cfg.FloorYear > 0 && m.Unified != nil {
		m.Unified.FloorYear = cfg.FloorYear
	}

	reg := province.Default()
	if cfg.ProvincesFile != "" {
		reg, err = province.LoadRegistry(cfg.ProvincesFile, province.LoadOptions{})
		if err != nil {
			logger.Error("failed to load province list", "error", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CatalogDB), 0o755); err != nil {
		logger.Error("create catalog dir", "error", err)
		os.Exit(1)
	}
	cat, err := importer.OpenCatalog(cfg.CatalogDB)
	if err != nil {
		logger.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}
	if err := cat.Seed(m.Datasets); err != nil {
		logger.Error("failed to seed catalog", "error", err)
		os.Exit(1)
	}

	c, err := cache.New(cfg.CacheDir, logger)
	if err != nil {
		logger.Error("failed to open cache", "error", err)
		os.Exit(1)
	}
	met := metrics.New()
	met.WatchCache(c)

	p := pipeline.New(m, cfg.DatasetsDir,
		pipeline.WithRegistry(reg),
		pipeline.WithCache(c),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(met),
		pipeline.WithRecorder(cat),
	)
	logger.Info("manifest loaded", "datasets", len(m.Datasets), "provinces", reg.Len())

	return &app{cfg: cfg, logger: logger, manifest: m, catalog: cat, cache: c, metrics: met, pipeline: p}
}

func (a *app) close() {
	a.catalog.Close()
}
