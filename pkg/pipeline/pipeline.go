// Package pipeline turns the datasets of a manifest into analysis-ready
// tables: provincial tables and their gender variants, category series, the
// unified yearly table and its summaries, and age pyramids. Results are
// memoized in a cache keyed by file content and reshaping instructions, so a
// changed file or manifest entry is picked up without a restart.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/padron/pkg/cache"
	"github.com/hazyhaar/padron/pkg/metrics"
	"github.com/hazyhaar/padron/pkg/province"
	"github.com/hazyhaar/padron/pkg/pyramid"
	"github.com/hazyhaar/padron/pkg/series"
	"github.com/hazyhaar/padron/pkg/source"
	"github.com/hazyhaar/padron/pkg/table"
)

// Recorder persists the outcome of each dataset load (see importer.Catalog).
type Recorder interface {
	RecordLoad(datasetID, status, msg string) error
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	manifest *source.Manifest
	baseDir  string
	registry *province.Registry
	cache    *cache.Cache
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRegistry sets the province reference set. Default: province.Default().
func WithRegistry(r *province.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// WithCache sets the result cache. Default: an in-memory cache.
func WithCache(c *cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRecorder stores load outcomes, typically in the catalog.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// New returns a pipeline reading the files of m under baseDir.
func New(m *source.Manifest, baseDir string, opts ...Option) *Pipeline {
	p := &Pipeline{manifest: m, baseDir: baseDir}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.registry == nil {
		p.registry = province.Default()
	}
	if p.cache == nil {
		p.cache, _ = cache.New("", p.logger)
	}
	return p
}

// Manifest returns the dataset descriptions the pipeline was built with.
func (p *Pipeline) Manifest() *source.Manifest { return p.manifest }

// Registry returns the province reference set.
func (p *Pipeline) Registry() *province.Registry { return p.registry }

// Provincial loads a provincial dataset.
func (p *Pipeline) Provincial(id string) (*table.ProvincialTable, error) {
	return load(p, id, source.KindProvincial, func(d *source.Dataset, raw table.Raw) (*table.ProvincialTable, error) {
		return table.ReshapeProvincial(raw, d.ProvincialOptions(), d.Normalizer(p.registry))
	})
}

// Variants loads the total, male and female tables of measure. Variants
// absent from the manifest stay nil; column differences between them are
// logged, not returned.
func (p *Pipeline) Variants(measure string) (table.Variants, error) {
	var (
		v     table.Variants
		found bool
	)
	for _, c := range []struct {
		g   table.Gender
		dst **table.ProvincialTable
	}{
		{table.GenderTotal, &v.Total},
		{table.GenderMale, &v.Male},
		{table.GenderFemale, &v.Female},
	} {
		d, ok := p.manifest.Variant(measure, c.g)
		if !ok {
			continue
		}
		found = true
		t, err := p.Provincial(d.ID)
		if err != nil {
			return table.Variants{}, err
		}
		*c.dst = t
	}
	if !found {
		return table.Variants{}, fmt.Errorf("%w %q", ErrUnknownMeasure, measure)
	}
	if err := v.Check(); err != nil {
		p.logger.Warn("gender variants differ", "measure", measure, "error", err)
	}
	return v, nil
}

// National sums a provincial variant across provinces into a dated series.
// Column labels are read with the variant dataset's period kind.
func (p *Pipeline) National(measure string, g table.Gender) (*series.Series, error) {
	v, err := p.Variants(measure)
	if err != nil {
		return nil, err
	}
	t, d, err := p.variant(v, measure, g)
	if err != nil {
		return nil, err
	}
	s, dropped, err := t.Totals(measure, d.Periods)
	if err != nil {
		p.logger.Error("national totals failed", "measure", measure, "dataset", d.ID, "error", err)
		return nil, &DatasetError{Dataset: d.ID, File: d.File, Err: err}
	}
	if len(dropped) > 0 {
		p.logger.Warn("non-period columns left out of national totals", "measure", measure, "dataset", d.ID, "columns", dropped)
	}
	return s, nil
}

// MapView is one period column of a provincial variant, with the column
// differences between the gender variants of its measure.
type MapView struct {
	Measure    string                       `json:"measure"`
	Gender     table.Gender                 `json:"gender"`
	Dataset    string                       `json:"dataset"`
	Column     string                       `json:"column"`
	Values     []MapValue                   `json:"values"`
	Mismatches []*table.ColumnMismatchError `json:"mismatches,omitempty"`
}

// MapValue is the value of one province.
type MapValue struct {
	Province province.Key `json:"province"`
	Value    series.Value `json:"value"`
}

// Map returns column of the g variant of measure for every province. An
// empty column selects the first one in header order, the most recent in INE
// exports. A column absent from the variant wraps table.ErrColumnNotFound.
func (p *Pipeline) Map(measure string, g table.Gender, column string) (*MapView, error) {
	v, err := p.Variants(measure)
	if err != nil {
		return nil, err
	}
	t, d, err := p.variant(v, measure, g)
	if err != nil {
		return nil, err
	}
	if column == "" {
		cols := t.Columns()
		if len(cols) == 0 {
			return nil, fmt.Errorf("%s: %w: table has no columns", d.ID, table.ErrColumnNotFound)
		}
		column = cols[0]
	}
	values, err := t.Column(column)
	if err != nil {
		return nil, fmt.Errorf("%s %s variant: %w", measure, d.Gender, err)
	}

	out := &MapView{
		Measure:    measure,
		Gender:     d.Gender,
		Dataset:    d.ID,
		Column:     column,
		Values:     make([]MapValue, 0, len(values)),
		Mismatches: v.Mismatches(),
	}
	for _, k := range t.Keys() {
		out.Values = append(out.Values, MapValue{Province: k, Value: values[k]})
	}
	return out, nil
}

// variant selects the g table of measure together with its dataset.
func (p *Pipeline) variant(v table.Variants, measure string, g table.Gender) (*table.ProvincialTable, *source.Dataset, error) {
	t, err := v.Select(g)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %v", measure, ErrNoVariant, err)
	}
	if g == "" {
		g = table.GenderTotal
	}
	d, ok := p.manifest.Variant(measure, g)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w: %s", measure, ErrNoVariant, g)
	}
	return t, d, nil
}

// Categories loads a category dataset.
func (p *Pipeline) Categories(id string) (*table.Result, error) {
	return load(p, id, source.KindCategory, func(d *source.Dataset, raw table.Raw) (*table.Result, error) {
		res, err := table.ReshapeCategory(raw, d.CategoryOptions())
		if err != nil {
			return nil, err
		}
		if n := len(res.DroppedColumns); n > 0 {
			p.logger.Warn("period columns dropped", "dataset", d.ID, "count", n, "columns", res.DroppedColumns)
			p.metrics.AddDropped(d.ID, n)
		}
		return res, nil
	})
}

// Series returns one category of a category dataset.
func (p *Pipeline) Series(ref source.SeriesRef) (*series.Series, error) {
	res, err := p.Categories(ref.Dataset)
	if err != nil {
		return nil, err
	}
	s, ok := res.Get(ref.Category)
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w: %q (have %v)", ref.Dataset, ErrNoCategory, ref.Category, res.Categories)
	}
	return s, nil
}

// Yearly merges the four series of the manifest's unified section.
func (p *Pipeline) Yearly() ([]series.YearlyRecord, error) {
	u := p.manifest.Unified
	if u == nil {
		return nil, ErrNoUnified
	}
	var all [4]*series.Series
	for i, ref := range []source.SeriesRef{u.Births, u.Deaths, u.Immigrants, u.Population} {
		s, err := p.Series(ref)
		if err != nil {
			return nil, err
		}
		all[i] = s
	}
	return series.Merge(all[0], all[1], all[2], all[3], u.FloorYear), nil
}

// Summaries averages the yearly table per calendar year from the unified
// summary_from year on.
func (p *Pipeline) Summaries() ([]series.YearSummary, error) {
	records, err := p.Yearly()
	if err != nil {
		return nil, err
	}
	return series.Summarize(records, p.manifest.Unified.SummaryFrom), nil
}

// Heatmap min-max scales the yearly summaries.
func (p *Pipeline) Heatmap() (series.Heatmap, error) {
	s, err := p.Summaries()
	if err != nil {
		return series.Heatmap{}, err
	}
	return series.Normalize(s), nil
}

// Pyramid is the banded age distribution of one snapshot.
type Pyramid struct {
	Dataset string         `json:"dataset"`
	Year    int            `json:"year,omitempty"`
	Bands   []pyramid.Band `json:"bands"`
	Male    float64        `json:"male_total"`
	Female  float64        `json:"female_total"`
}

// Pyramid loads a pyramid dataset and aggregates it into five-year bands.
func (p *Pipeline) Pyramid(id string) (*Pyramid, error) {
	bands, err := load(p, id, source.KindPyramid, func(_ *source.Dataset, raw table.Raw) ([]pyramid.Band, error) {
		return pyramid.Aggregate(pyramid.RowsFromRaw(raw)), nil
	})
	if err != nil {
		return nil, err
	}
	d, _ := p.manifest.Get(id)
	m, f := pyramid.Totals(bands)
	return &Pyramid{Dataset: id, Year: d.Year, Bands: bands, Male: m, Female: f}, nil
}

// DatasetInfo describes a manifest entry and whether its file is present.
type DatasetInfo struct {
	source.Dataset
	Fingerprint string `json:"fingerprint"`
	Available   bool   `json:"available"`
}

// Datasets lists the manifest entries in manifest order.
func (p *Pipeline) Datasets() []DatasetInfo {
	out := make([]DatasetInfo, 0, len(p.manifest.Datasets))
	for i := range p.manifest.Datasets {
		d := &p.manifest.Datasets[i]
		_, err := os.Stat(d.Path(p.baseDir))
		out = append(out, DatasetInfo{Dataset: *d, Fingerprint: d.Fingerprint(), Available: err == nil})
	}
	return out
}

// load reads the dataset file, and on a cache miss decodes and reshapes it
// with build. Failures are wrapped in *DatasetError and recorded.
func load[T any](p *Pipeline, id string, kind source.Kind, build func(*source.Dataset, table.Raw) (T, error)) (T, error) {
	var zero T
	d, ok := p.manifest.Get(id)
	if !ok {
		return zero, fmt.Errorf("%w %q", ErrUnknownDataset, id)
	}
	if d.Kind != kind {
		return zero, fmt.Errorf("%w: %s is %s, not %s", ErrWrongKind, id, d.Kind, kind)
	}

	path := d.Path(p.baseDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, p.fail(d, path, time.Now(), err)
	}

	key := cache.Key(source.HashBytes(data), d.Fingerprint(), string(kind))
	return cache.Memo(p.cache, key, func() (T, error) {
		start := time.Now()
		raw, err := source.Decode(d, data)
		if err != nil {
			return zero, p.fail(d, path, start, err)
		}
		v, err := build(d, raw)
		if err != nil {
			return zero, p.fail(d, path, start, err)
		}
		p.metrics.ObserveLoad(d.ID, string(kind), Classify(nil), time.Since(start))
		p.record(d.ID, Classify(nil), "")
		p.logger.Info("dataset loaded", "dataset", d.ID, "kind", kind, "duration", time.Since(start))
		return v, nil
	})
}

func (p *Pipeline) fail(d *source.Dataset, path string, start time.Time, err error) error {
	status := Classify(err)
	p.metrics.ObserveLoad(d.ID, string(d.Kind), status, time.Since(start))
	p.record(d.ID, status, err.Error())
	p.logger.Error("dataset load failed", "dataset", d.ID, "status", status, "error", err)
	return &DatasetError{Dataset: d.ID, File: path, Err: err}
}

func (p *Pipeline) record(id, status, msg string) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordLoad(id, status, msg); err != nil {
		p.logger.Warn("load status not recorded", "dataset", id, "error", err)
	}
}

// IsHard reports whether err aborted a dataset, as opposed to a lookup error
// such as an unknown dataset id.
func IsHard(err error) bool {
	var de *DatasetError
	return errors.As(err, &de)
}
