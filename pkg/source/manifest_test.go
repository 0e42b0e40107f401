package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/padron/pkg/table"
)

const testManifest = `
datasets:
  - id: pob-tot
    file: PobTot.xlsx
    skip_rows: 6
    kind: provincial
    measure: population
    ignore_labels: ["Total Nacional"]
  - id: pob-homb
    file: PobHomb.xlsx
    skip_rows: 6
    kind: provincial
    measure: population
    gender: male
    artifact_prefix: 3
  - id: defun
    file: Defunciones1975.xlsx
    skip_rows: 6
    kind: category
    max_columns: 50
    category_names: [total]
  - id: pob-edad
    file: pob.csv
    encoding: iso-8859-1
    number_format: european
    kind: category
    periods: spanish_date
    skip_after_header: 1
    category_rows: [0, 1, 2]
  - id: piramide-1971
    file: EdadPob1971.xlsx
    skip_rows: 8
    kind: pyramid
    year: 1971
unified:
  births: {dataset: defun, category: total}
  deaths: {dataset: defun, category: total}
  immigrants: {dataset: defun, category: total}
  population: {dataset: pob-edad, category: Ambos sexos}
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if len(m.Datasets) != 5 {
		t.Fatalf("datasets = %d", len(m.Datasets))
	}

	d, ok := m.Get("pob-tot")
	if !ok {
		t.Fatal("pob-tot not found")
	}
	if d.Format != FormatXLSX || d.Gender != table.GenderTotal || d.Periods != table.PeriodYear || d.NumberFormat != NumbersPlain {
		t.Errorf("defaults not applied: %+v", d)
	}
	csvDS, _ := m.Get("pob-edad")
	if csvDS.Format != FormatCSV || csvDS.Delimiter != ";" {
		t.Errorf("csv defaults: format=%q delimiter=%q", csvDS.Format, csvDS.Delimiter)
	}
	if m.Unified.FloorYear != 1975 || m.Unified.SummaryFrom != 2005 {
		t.Errorf("unified defaults = %+v", m.Unified)
	}

	male, ok := m.Variant("population", table.GenderMale)
	if !ok || male.ID != "pob-homb" {
		t.Errorf("Variant(population, male) = %v, %v", male, ok)
	}
	if got := m.Measures(); len(got) != 1 || got[0] != "population" {
		t.Errorf("Measures = %v", got)
	}
	if got := m.ByKind(KindPyramid); len(got) != 1 || got[0].Year != 1971 {
		t.Errorf("ByKind(pyramid) = %v", got)
	}

	opts := csvDS.CategoryOptions()
	if opts.Dataset != "pob-edad" || opts.SkipAfterHeader != 1 || len(opts.CategoryRows) != 3 {
		t.Errorf("CategoryOptions = %+v", opts)
	}
	if n := male.Normalizer(nil); n.ArtifactPrefix != 3 {
		t.Errorf("Normalizer prefix = %d", n.ArtifactPrefix)
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing id", "datasets:\n  - file: a.xlsx\n    kind: pyramid\n", "missing id"},
		{"duplicate id", "datasets:\n  - {id: a, file: a.xlsx, kind: pyramid}\n  - {id: a, file: b.xlsx, kind: pyramid}\n", "duplicate"},
		{"missing file", "datasets:\n  - {id: a, kind: pyramid}\n", "missing file"},
		{"bad kind", "datasets:\n  - {id: a, file: a.xlsx, kind: map}\n", "unknown kind"},
		{"bad format", "datasets:\n  - {id: a, file: a.xlsx, format: ods, kind: pyramid}\n", "unknown format"},
		{"bad periods", "datasets:\n  - {id: a, file: a.xlsx, kind: category, periods: quarter}\n", "period"},
		{"bad gender", "datasets:\n  - {id: a, file: a.xlsx, kind: provincial, gender: x}\n", "gender"},
		{"duplicate variant", "datasets:\n  - {id: a, file: a.xlsx, kind: provincial, measure: m}\n  - {id: b, file: b.xlsx, kind: provincial, measure: m}\n", "already has"},
		{"names mismatch", "datasets:\n  - {id: a, file: a.xlsx, kind: category, category_names: [x, y]}\n", "category names"},
		{"unknown unified", "datasets:\n  - {id: a, file: a.xlsx, kind: category}\nunified:\n  births: {dataset: zz}\n", "unknown dataset"},
		{"unified not category", "datasets:\n  - {id: a, file: a.xlsx, kind: pyramid}\nunified:\n  births: {dataset: a}\n  deaths: {dataset: a}\n  immigrants: {dataset: a}\n  population: {dataset: a}\n", "want category"},
		{"bad yaml", "datasets: [", "parse"},
	}
	for _, tt := range tests {
		_, err := ParseManifest([]byte(tt.yaml))
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error %q does not contain %q", tt.name, err, tt.want)
		}
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	os.WriteFile(path, []byte(testManifest), 0o644)
	if _, err := LoadManifest(path); err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFingerprint(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := m.Get("pob-tot")
	b := *a
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical datasets should share a fingerprint")
	}
	b.SkipRows = 5
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("skip_rows change should alter the fingerprint")
	}
}

func TestShippedManifest(t *testing.T) {
	m, err := LoadManifest(filepath.Join("..", "..", "datasets.yaml"))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	for _, measure := range []string{"population", "births", "deaths"} {
		for _, g := range []table.Gender{table.GenderTotal, table.GenderMale, table.GenderFemale} {
			if _, ok := m.Variant(measure, g); !ok {
				t.Errorf("missing %s/%s variant", measure, g)
			}
		}
	}
	for _, id := range []string{"pob-tot", "pob-homb", "pob-muj"} {
		d, ok := m.Get(id)
		if !ok {
			t.Errorf("%s missing", id)
			continue
		}
		if d.ArtifactPrefix != 3 || d.Periods != table.PeriodSpanishDate {
			t.Errorf("%s: artifact_prefix=%d periods=%s", id, d.ArtifactPrefix, d.Periods)
		}
	}
	for _, id := range []string{"naci-tot", "defun-tot"} {
		if d, _ := m.Get(id); d.ArtifactPrefix != 0 || d.Periods != table.PeriodYear {
			t.Errorf("%s: artifact_prefix=%d periods=%s", id, d.ArtifactPrefix, d.Periods)
		}
	}
	if m.Unified == nil || m.Unified.Population.Category != "Ambos sexos" {
		t.Errorf("unified = %+v", m.Unified)
	}
	if got := len(m.ByKind(KindPyramid)); got != 2 {
		t.Errorf("pyramids = %d, want 2", got)
	}
}
