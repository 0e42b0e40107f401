package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hazyhaar/padron/pkg/export"
	"github.com/hazyhaar/padron/pkg/pipeline"
	"github.com/hazyhaar/padron/pkg/source"
)

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	what := fs.String("what", "yearly", "yearly, summaries, provincial or pyramid")
	dataset := fs.String("dataset", "", "dataset id (provincial and pyramid)")
	out := fs.String("out", "", "output file; the extension (.csv, .json, .parquet) picks the format")
	fs.Parse(args)

	if *out == "" {
		fmt.Fprintln(os.Stderr, "-out is required")
		os.Exit(1)
	}

	a := setup(*cfgPath)
	defer a.close()

	t, err := buildExport(a.pipeline, *what, *dataset)
	if err != nil {
		a.logger.Error("export failed", "what", *what, "error", err)
		os.Exit(1)
	}
	if err := t.WriteFile(*out); err != nil {
		a.logger.Error("export failed", "what", *what, "error", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d rows -> %s\n", t.Name, t.Len(), *out)
}

func buildExport(p *pipeline.Pipeline, what, dataset string) (export.Table, error) {
	switch what {
	case "yearly":
		r, err := p.Yearly()
		if err != nil {
			return export.Table{}, err
		}
		return export.Yearly(r), nil
	case "summaries":
		s, err := p.Summaries()
		if err != nil {
			return export.Table{}, err
		}
		return export.Summaries(s), nil
	case "provincial", "pyramid":
		if dataset == "" {
			dataset = firstOfKind(p.Manifest(), source.Kind(what))
		}
		if what == "pyramid" {
			pyr, err := p.Pyramid(dataset)
			if err != nil {
				return export.Table{}, err
			}
			return export.Bands(pyr.Bands), nil
		}
		t, err := p.Provincial(dataset)
		if err != nil {
			return export.Table{}, err
		}
		return export.Provincial(t), nil
	}
	return export.Table{}, fmt.Errorf("unknown export %q", what)
}

func firstOfKind(m *source.Manifest, k source.Kind) string {
	if ds := m.ByKind(k); len(ds) > 0 {
		return ds[0].ID
	}
	return ""
}
