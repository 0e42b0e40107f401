package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hazyhaar/padron/pkg/importer"
)

func cmdFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	dataset := fs.String("dataset", "", "dataset id to download")
	all := fs.Bool("all", false, "download every dataset that has a URL")
	setURL := fs.String("set-url", "", "override the source URL of -dataset")
	fs.Parse(args)

	a := setup(*cfgPath)
	defer a.close()

	if *setURL != "" {
		if *dataset == "" {
			fmt.Fprintln(os.Stderr, "-set-url needs -dataset")
			os.Exit(1)
		}
		if err := a.catalog.SetURL(*dataset, *setURL); err != nil {
			fmt.Fprintf(os.Stderr, "[%s] ERROR: %v\n", *dataset, err)
			os.Exit(1)
		}
		fmt.Printf("[%s] url -> %s\n", *dataset, *setURL)
		return
	}

	if !*all && *dataset == "" {
		listSources(a.catalog)
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  padron fetch -dataset <id>")
		fmt.Println("  padron fetch -all")
		fmt.Println("  padron fetch -dataset <id> -set-url <url>")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Hour)
	defer cancel()

	f := importer.NewFetcher(a.catalog, a.cfg.DatasetsDir, a.logger)
	if *all {
		if err := f.FetchAll(ctx, a.manifest.Datasets); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		return
	}

	d, ok := a.manifest.Get(*dataset)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown dataset %q\n\nDatasets:\n", *dataset)
		for _, d := range a.manifest.Datasets {
			fmt.Fprintf(os.Stderr, "  %s\n", d.ID)
		}
		os.Exit(1)
	}
	fmt.Printf("[%s] downloading...\n", d.ID)
	if err := f.Fetch(ctx, d); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] ERROR: %v\n", d.ID, err)
		os.Exit(1)
	}
	fmt.Printf("[%s] OK -> %s\n", d.ID, d.Path(a.cfg.DatasetsDir))
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	a := setup(*cfgPath)
	defer a.close()

	importer.NewChecker(a.catalog, a.logger, a.cfg.CheckInterval).CheckAll(context.Background())
	listSources(a.catalog)
}

func listSources(cat *importer.Catalog) {
	entries, err := cat.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list catalog: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Datasets:")
	fmt.Println()
	for _, e := range entries {
		var notes []string
		if e.LastStatus != nil {
			notes = append(notes, fmt.Sprintf("http %d", *e.LastStatus))
		}
		if e.LoadStatus != nil {
			notes = append(notes, "load "+*e.LoadStatus)
		}
		if e.SourceURL == "" {
			notes = append(notes, "no url")
		}
		fmt.Printf("  %-20s  %-40s  %s\n", e.DatasetID, e.File, strings.Join(notes, ", "))
	}
}
