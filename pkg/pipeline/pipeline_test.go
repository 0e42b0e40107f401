package pipeline

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hazyhaar/padron/pkg/cache"
	"github.com/hazyhaar/padron/pkg/importer"
	"github.com/hazyhaar/padron/pkg/province"
	"github.com/hazyhaar/padron/pkg/series"
	"github.com/hazyhaar/padron/pkg/source"
	"github.com/hazyhaar/padron/pkg/table"
)

const testManifest = `
datasets:
  - id: pob-tot
    file: PobTot.xlsx
    skip_rows: 2
    kind: provincial
    measure: population
    ignore_labels: ["Total Nacional"]
  - id: pob-homb
    file: PobHomb.xlsx
    skip_rows: 2
    kind: provincial
    measure: population
    gender: male
  - id: res-tot
    file: ResTot.xlsx
    kind: provincial
    measure: residents
    periods: spanish_date
    artifact_prefix: 3
  - id: res-year
    file: ResTot.xlsx
    kind: provincial
    measure: residents-by-year
    artifact_prefix: 3
  - id: broken
    file: Broken.xlsx
    kind: provincial
  - id: absent
    file: Absent.xlsx
    kind: provincial
  - id: nacim
    file: Nacimientos.xlsx
    skip_rows: 1
    kind: category
    category_names: [total]
  - id: defun
    file: Defunciones.xlsx
    kind: category
    category_names: [total]
  - id: inmig
    file: Inmigracion.xlsx
    kind: category
    category_names: [total]
  - id: pob-fecha
    file: pob.csv
    number_format: european
    kind: category
    periods: spanish_date
  - id: piramide
    file: Edad.xlsx
    skip_rows: 2
    kind: pyramid
    year: 1971
unified:
  births: {dataset: nacim, category: total}
  deaths: {dataset: defun, category: total}
  immigrants: {dataset: inmig, category: total}
  population: {dataset: pob-fecha, category: Ambos sexos}
  floor_year: 2005
  summary_from: 2005
`

func writeXLSX(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
}

func writeFixtures(t *testing.T, dir string) {
	t.Helper()
	writeXLSX(t, filepath.Join(dir, "PobTot.xlsx"), [][]any{
		{"Población por provincias"},
		{"Unidades: personas"},
		{"", 2021, 2020},
		{"Total Nacional", 47400000, 47450000},
		{"02 Albacete", 386000, 388000},
		{"15 Coruña, A", 1120000, ".."},
		{"46 Valencia/València", 2590000, 2580000},
		{"", "Notas"},
		{"Notas: fuente INE"},
	})
	writeXLSX(t, filepath.Join(dir, "PobHomb.xlsx"), [][]any{
		{"Hombres"},
		{"Unidades: personas"},
		{"", 2021},
		{"02 Albacete", 193000},
		{"46 Valencia/València", 1270000},
	})
	writeXLSX(t, filepath.Join(dir, "ResTot.xlsx"), [][]any{
		{"", "1 de enero de 2021", "1 de enero de 2020", "Notas"},
		{"02 -- Albacete", 386000, 388000},
		{"46 -- Valencia/València", 2590000, 2580000},
	})
	writeXLSX(t, filepath.Join(dir, "Broken.xlsx"), [][]any{
		{"", 2021},
		{"02 Albacete", 1},
		{"99 Atlántida", 2},
	})
	writeXLSX(t, filepath.Join(dir, "Nacimientos.xlsx"), [][]any{
		{"Nacimientos"},
		{"", 2006, 2005, "Notas"},
		{"Total", 480000, 470000},
	})
	writeXLSX(t, filepath.Join(dir, "Defunciones.xlsx"), [][]any{
		{"", 2006, 2005, 2004},
		{"Total", 370000, 380000, 375000},
	})
	writeXLSX(t, filepath.Join(dir, "Inmigracion.xlsx"), [][]any{
		{"", 2006},
		{"Total", 800000},
	})
	csv := "Periodo;1 de enero de 2006;1 de julio de 2005;1 de enero de 2005\n" +
		"Ambos sexos;;44.200.000;44.108.530\n"
	if err := os.WriteFile(filepath.Join(dir, "pob.csv"), []byte(csv), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	writeXLSX(t, filepath.Join(dir, "Edad.xlsx"), [][]any{
		{"Población por edad"},
		{"", "Hombres", "Mujeres"},
		{"Total", 99, 99},
		{"0 años", 10, 11},
		{"4 años", 5, 5},
		{"12 años", 3, ".."},
	})
}

type fakeRecorder struct {
	mu     sync.Mutex
	status map[string]string
	calls  int
}

func (r *fakeRecorder) RecordLoad(id, status, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == nil {
		r.status = make(map[string]string)
	}
	r.status[id] = status
	r.calls++
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setup(t *testing.T, opts ...Option) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	writeFixtures(t, dir)
	m, err := source.ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	return New(m, dir, append([]Option{WithLogger(quietLogger())}, opts...)...), dir
}

func TestProvincial(t *testing.T) {
	rec := &fakeRecorder{}
	c, _ := cache.New("", nil)
	p, _ := setup(t, WithRecorder(rec), WithCache(c))

	tbl, err := p.Provincial("pob-tot")
	if err != nil {
		t.Fatalf("Provincial: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("provinces = %d, want 3 (Total Nacional ignored, notes after blank row)", tbl.Len())
	}
	v, ok := tbl.Get("A Coruña", "2021")
	if !ok || !v.Valid || v.Float != 1120000 {
		t.Errorf("A Coruña 2021 = %v, %v", v, ok)
	}
	if v, _ := tbl.Get("A Coruña", "2020"); v.Valid {
		t.Errorf(`".." should be missing, got %v`, v)
	}
	if _, ok := tbl.Get("València/Valencia", "2020"); !ok {
		t.Error("bilingual label not normalized")
	}

	if _, err := p.Provincial("pob-tot"); err != nil {
		t.Fatalf("Provincial (cached): %v", err)
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("cache stats = %+v", s)
	}
	if rec.calls != 1 || rec.status["pob-tot"] != importer.StatusOK {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestProvincialFailures(t *testing.T) {
	rec := &fakeRecorder{}
	p, _ := setup(t, WithRecorder(rec))

	tests := []struct {
		id     string
		status string
		is     error
	}{
		{"broken", importer.StatusNormalization, province.ErrUnknownProvince},
		{"absent", importer.StatusIO, os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := p.Provincial(tt.id)
			if !errors.Is(err, tt.is) {
				t.Fatalf("err = %v, want %v", err, tt.is)
			}
			var de *DatasetError
			if !errors.As(err, &de) || de.Dataset != tt.id {
				t.Fatalf("err %T is not a *DatasetError for %s", err, tt.id)
			}
			if !IsHard(err) {
				t.Error("IsHard = false")
			}
			if got := Classify(err); got != tt.status {
				t.Errorf("Classify = %q, want %q", got, tt.status)
			}
			if rec.status[tt.id] != tt.status {
				t.Errorf("recorded %q, want %q", rec.status[tt.id], tt.status)
			}
		})
	}
}

func TestLookupErrors(t *testing.T) {
	p, _ := setup(t)

	if _, err := p.Provincial("nope"); !errors.Is(err, ErrUnknownDataset) || IsHard(err) {
		t.Errorf("unknown id: %v", err)
	}
	if _, err := p.Provincial("nacim"); !errors.Is(err, ErrWrongKind) {
		t.Errorf("wrong kind: %v", err)
	}
	if _, err := p.Variants("births"); !errors.Is(err, ErrUnknownMeasure) {
		t.Errorf("unknown measure: %v", err)
	}
	if _, err := p.Series(source.SeriesRef{Dataset: "nacim", Category: "male"}); !errors.Is(err, ErrNoCategory) {
		t.Errorf("unknown category: %v", err)
	}
}

func TestVariantsAndNational(t *testing.T) {
	p, _ := setup(t)

	v, err := p.Variants("population")
	if err != nil {
		t.Fatalf("Variants: %v", err)
	}
	if v.Total == nil || v.Male == nil || v.Female != nil {
		t.Fatalf("variants = %+v", v)
	}
	missing, _ := table.CompareColumns(v.Total, v.Male)
	if len(missing) != 1 || missing[0] != "2020" {
		t.Errorf("missing columns = %v", missing)
	}

	s, err := p.National("population", table.GenderTotal)
	if err != nil {
		t.Fatalf("National: %v", err)
	}
	got, ok := s.At(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if !ok || got.Float != 388000+2580000 {
		t.Errorf("2020 total = %v (missing cell should be skipped)", got)
	}
	got, _ = s.At(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	if got.Float != 386000+1120000+2590000 {
		t.Errorf("2021 total = %v", got)
	}

	if _, err := p.National("population", table.GenderFemale); !errors.Is(err, ErrNoVariant) {
		t.Errorf("unloaded variant: %v", err)
	}
}

func TestNationalSpanishDatePeriods(t *testing.T) {
	var logs bytes.Buffer
	p, _ := setup(t, WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))))

	s, err := p.National("residents", table.GenderTotal)
	if err != nil {
		t.Fatalf("National: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	got, ok := s.At(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	if !ok || got.Float != 386000+2590000 {
		t.Errorf("2021 total = %v, %v", got, ok)
	}
	if out := logs.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "Notas") {
		t.Errorf("dropped column not logged at warn: %q", out)
	}

	// Same file read with year periods: no column survives.
	_, err = p.National("residents-by-year", table.GenderTotal)
	if !errors.Is(err, table.ErrStructural) {
		t.Fatalf("err = %v, want structural", err)
	}
	var de *DatasetError
	if !errors.As(err, &de) || de.Dataset != "res-year" {
		t.Errorf("err %T does not name res-year", err)
	}
	if Classify(err) != importer.StatusStructural {
		t.Errorf("Classify = %q", Classify(err))
	}
}

func TestMap(t *testing.T) {
	p, _ := setup(t)

	m, err := p.Map("population", table.GenderMale, "")
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if m.Dataset != "pob-homb" || m.Column != "2021" || len(m.Values) != 2 {
		t.Errorf("map = %+v", m)
	}
	if len(m.Mismatches) != 1 || m.Mismatches[0].Variant != table.GenderMale ||
		len(m.Mismatches[0].Missing) != 1 || m.Mismatches[0].Missing[0] != "2020" {
		t.Errorf("mismatches = %+v", m.Mismatches)
	}

	if _, err := p.Map("population", table.GenderMale, "2020"); !errors.Is(err, table.ErrColumnNotFound) {
		t.Errorf("column absent from male variant: %v", err)
	}

	m, err = p.Map("population", table.GenderTotal, "2020")
	if err != nil {
		t.Fatalf("Map total: %v", err)
	}
	want := []MapValue{
		{"Albacete", series.Some(388000)},
		{"A Coruña", series.Missing},
		{"València/Valencia", series.Some(2580000)},
	}
	if len(m.Values) != len(want) {
		t.Fatalf("values = %+v", m.Values)
	}
	for i, w := range want {
		if m.Values[i] != w {
			t.Errorf("values[%d] = %+v, want %+v", i, m.Values[i], w)
		}
	}

	if _, err := p.Map("population", table.GenderFemale, ""); !errors.Is(err, ErrNoVariant) {
		t.Errorf("unloaded variant: %v", err)
	}
}

func TestCategoriesDroppedColumns(t *testing.T) {
	p, _ := setup(t)
	res, err := p.Categories("nacim")
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(res.DroppedColumns) != 1 || res.DroppedColumns[0] != "Notas" {
		t.Errorf("dropped = %v", res.DroppedColumns)
	}
	s, ok := res.Get("total")
	if !ok || s.Len() != 2 {
		t.Fatalf("series = %v, %v", s, ok)
	}
}

func TestYearly(t *testing.T) {
	p, _ := setup(t)
	records, err := p.Yearly()
	if err != nil {
		t.Fatalf("Yearly: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (2004 below floor)", len(records))
	}

	jan05, jul05, jan06 := records[0], records[1], records[2]
	if jan05.Immigrants.Float != 0 || !jan05.Immigrants.Valid {
		t.Errorf("missing immigration should be 0, got %v", jan05.Immigrants)
	}
	if jul05.Date.Month() != time.July || jul05.Births.Float != 470000 || jul05.Deaths.Float != 380000 {
		t.Errorf("July record not filled: %+v", jul05)
	}
	if jul05.Population.Float != 44200000 {
		t.Errorf("July population = %v", jul05.Population)
	}
	if jan06.Population.Float != 44200000 {
		t.Errorf("trailing population = %v, want carried 44200000", jan06.Population)
	}
	if jan06.Immigrants.Float != 800000 {
		t.Errorf("2006 immigration = %v", jan06.Immigrants)
	}

	sums, err := p.Summaries()
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(sums) != 2 || sums[0].Year != 2005 {
		t.Fatalf("summaries = %+v", sums)
	}
	if sums[0].NaturalBalance.Float != 90000 || sums[1].NaturalBalance.Float != 110000 {
		t.Errorf("natural balance = %v, %v", sums[0].NaturalBalance, sums[1].NaturalBalance)
	}
	if math.Abs(sums[0].Population.Float-44154265) > 1e-6 {
		t.Errorf("2005 mean population = %v", sums[0].Population)
	}

	hm, err := p.Heatmap()
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	if len(hm.Years) != 2 || len(hm.Rows) == 0 {
		t.Errorf("heatmap = %+v", hm)
	}
}

func TestYearlyWithoutUnified(t *testing.T) {
	m, err := source.ParseManifest([]byte("datasets:\n  - id: a\n    file: a.xlsx\n    kind: pyramid\n"))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	p := New(m, t.TempDir(), WithLogger(quietLogger()))
	if _, err := p.Yearly(); !errors.Is(err, ErrNoUnified) {
		t.Errorf("err = %v, want ErrNoUnified", err)
	}
	if _, err := p.Heatmap(); !errors.Is(err, ErrNoUnified) {
		t.Errorf("err = %v, want ErrNoUnified", err)
	}
}

func TestPyramid(t *testing.T) {
	p, _ := setup(t)
	pyr, err := p.Pyramid("piramide")
	if err != nil {
		t.Fatalf("Pyramid: %v", err)
	}
	if pyr.Year != 1971 {
		t.Errorf("year = %d", pyr.Year)
	}
	want := []struct {
		label  string
		male   float64
		female float64
	}{
		{"0-4", 15, 16},
		{"5-9", 0, 0},
		{"10-14", 3, 0},
	}
	if len(pyr.Bands) != len(want) {
		t.Fatalf("bands = %+v", pyr.Bands)
	}
	for i, w := range want {
		b := pyr.Bands[i]
		if b.Label != w.label || b.Male != w.male || b.Female != w.female {
			t.Errorf("band %d = %+v, want %+v", i, b, w)
		}
	}
	if pyr.Male != 18 || pyr.Female != 16 {
		t.Errorf("totals = %v/%v", pyr.Male, pyr.Female)
	}
}

func TestDiskCacheAcrossPipelines(t *testing.T) {
	cacheDir := t.TempDir()
	c1, err := cache.New(cacheDir, quietLogger())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	p1, dataDir := setup(t, WithCache(c1))
	if _, err := p1.Provincial("pob-tot"); err != nil {
		t.Fatalf("Provincial: %v", err)
	}

	c2, _ := cache.New(cacheDir, quietLogger())
	rec := &fakeRecorder{}
	p2 := New(p1.Manifest(), dataDir, WithCache(c2), WithRecorder(rec), WithLogger(quietLogger()))
	tbl, err := p2.Provincial("pob-tot")
	if err != nil {
		t.Fatalf("Provincial from disk: %v", err)
	}
	if tbl.Len() != 3 {
		t.Errorf("provinces = %d", tbl.Len())
	}
	if s := c2.Stats(); s.DiskHits != 1 || s.Misses != 0 {
		t.Errorf("stats = %+v", s)
	}
	if rec.calls != 0 {
		t.Error("a disk hit should not record a load")
	}

	// Changed content means a new key.
	writeXLSX(t, filepath.Join(dataDir, "PobTot.xlsx"), [][]any{
		{"Población"}, {"Unidades"},
		{"", 2021},
		{"02 Albacete", 1},
	})
	tbl, err = p2.Provincial("pob-tot")
	if err != nil {
		t.Fatalf("Provincial after change: %v", err)
	}
	if tbl.Len() != 1 || c2.Stats().Misses != 1 {
		t.Errorf("changed file not rebuilt: len=%d stats=%+v", tbl.Len(), c2.Stats())
	}
}

func TestDatasets(t *testing.T) {
	p, _ := setup(t)
	infos := p.Datasets()
	if len(infos) != 11 {
		t.Fatalf("datasets = %d", len(infos))
	}
	for _, info := range infos {
		want := info.ID != "absent"
		if info.Available != want {
			t.Errorf("%s available = %v", info.ID, info.Available)
		}
		if info.Fingerprint == "" {
			t.Errorf("%s has no fingerprint", info.ID)
		}
	}
}
