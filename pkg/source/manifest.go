// Package source describes the INE datasets in a YAML manifest and reads
// their spreadsheets into raw tables.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/padron/pkg/province"
	"github.com/hazyhaar/padron/pkg/table"
)

// Kind is the layout of a dataset.
type Kind string

const (
	KindProvincial Kind = "provincial"
	KindCategory   Kind = "category"
	KindPyramid    Kind = "pyramid"
)

// File formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// Number formats for CSV cells.
const (
	NumbersPlain    = "plain"
	NumbersEuropean = "european"
)

// Dataset describes one source file and how to reshape it.
type Dataset struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description,omitempty"`
	URL         string `yaml:"url" json:"url,omitempty"`
	License     string `yaml:"license" json:"license,omitempty"`

	File         string `yaml:"file" json:"file"`
	Format       string `yaml:"format" json:"format"`
	Sheet        string `yaml:"sheet" json:"sheet,omitempty"`
	SkipRows     int    `yaml:"skip_rows" json:"skip_rows"`
	Encoding     string `yaml:"encoding" json:"encoding,omitempty"`
	Delimiter    string `yaml:"delimiter" json:"delimiter,omitempty"`
	NumberFormat string `yaml:"number_format" json:"number_format,omitempty"`

	Kind Kind `yaml:"kind" json:"kind"`

	// Provincial datasets sharing a Measure are variants of one another.
	Measure string       `yaml:"measure" json:"measure,omitempty"`
	Gender  table.Gender `yaml:"gender" json:"gender,omitempty"`

	// Year labels a pyramid snapshot.
	Year int `yaml:"year" json:"year,omitempty"`

	HeaderRow       int              `yaml:"header_row" json:"header_row"`
	SkipAfterHeader int              `yaml:"skip_after_header" json:"skip_after_header,omitempty"`
	CategoryRows    []int            `yaml:"category_rows" json:"category_rows,omitempty"`
	CategoryNames   []string         `yaml:"category_names" json:"category_names,omitempty"`
	MaxColumns      int              `yaml:"max_columns" json:"max_columns,omitempty"`
	Periods         table.PeriodKind `yaml:"periods" json:"periods,omitempty"`
	ArtifactPrefix  int              `yaml:"artifact_prefix" json:"artifact_prefix,omitempty"`
	IgnoreLabels    []string         `yaml:"ignore_labels" json:"ignore_labels,omitempty"`
}

// SeriesRef points at one category of a category dataset.
type SeriesRef struct {
	Dataset  string `yaml:"dataset" json:"dataset"`
	Category string `yaml:"category" json:"category"`
}

// Unified names the four series merged into the yearly table.
type Unified struct {
	Births      SeriesRef `yaml:"births" json:"births"`
	Deaths      SeriesRef `yaml:"deaths" json:"deaths"`
	Immigrants  SeriesRef `yaml:"immigrants" json:"immigrants"`
	Population  SeriesRef `yaml:"population" json:"population"`
	FloorYear   int       `yaml:"floor_year" json:"floor_year"`
	SummaryFrom int       `yaml:"summary_from" json:"summary_from"`
}

// Manifest is the full list of datasets.
type Manifest struct {
	Datasets []Dataset `yaml:"datasets" json:"datasets"`
	Unified  *Unified  `yaml:"unified" json:"unified,omitempty"`
}

// LoadManifest reads and validates a manifest YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes a manifest, fills defaults and validates it.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	for i := range m.Datasets {
		m.Datasets[i].applyDefaults()
	}
	if u := m.Unified; u != nil {
		if u.FloorYear == 0 {
			u.FloorYear = 1975
		}
		if u.SummaryFrom == 0 {
			u.SummaryFrom = 2005
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (d *Dataset) applyDefaults() {
	if d.Format == "" {
		switch strings.ToLower(filepath.Ext(d.File)) {
		case ".csv", ".txt":
			d.Format = FormatCSV
		default:
			d.Format = FormatXLSX
		}
	}
	if d.Format == FormatCSV && d.Delimiter == "" {
		d.Delimiter = ";"
	}
	if d.NumberFormat == "" {
		d.NumberFormat = NumbersPlain
	}
	if d.Kind == KindProvincial && d.Gender == "" {
		d.Gender = table.GenderTotal
	}
	if d.Periods == "" {
		d.Periods = table.PeriodYear
	}
}

// Validate checks ids, enumerations and unified references.
func (m *Manifest) Validate() error {
	seen := make(map[string]*Dataset, len(m.Datasets))
	variants := make(map[string]bool)
	for i := range m.Datasets {
		d := &m.Datasets[i]
		if d.ID == "" {
			return fmt.Errorf("dataset %d: missing id", i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("dataset %s: duplicate id", d.ID)
		}
		seen[d.ID] = d
		if d.File == "" {
			return fmt.Errorf("dataset %s: missing file", d.ID)
		}
		switch d.Format {
		case FormatXLSX, FormatCSV:
		default:
			return fmt.Errorf("dataset %s: unknown format %q", d.ID, d.Format)
		}
		switch d.NumberFormat {
		case NumbersPlain, NumbersEuropean:
		default:
			return fmt.Errorf("dataset %s: unknown number format %q", d.ID, d.NumberFormat)
		}
		if err := d.Periods.Validate(); err != nil {
			return fmt.Errorf("dataset %s: %w", d.ID, err)
		}
		if d.SkipRows < 0 || d.HeaderRow < 0 || d.ArtifactPrefix < 0 {
			return fmt.Errorf("dataset %s: negative row offset", d.ID)
		}
		switch d.Kind {
		case KindProvincial:
			if _, err := table.ParseGender(string(d.Gender)); err != nil {
				return fmt.Errorf("dataset %s: %w", d.ID, err)
			}
			if d.Measure != "" {
				vk := d.Measure + "/" + string(d.Gender)
				if variants[vk] {
					return fmt.Errorf("dataset %s: measure %s already has a %s variant", d.ID, d.Measure, d.Gender)
				}
				variants[vk] = true
			}
		case KindCategory:
			if len(d.CategoryNames) > 0 && len(d.CategoryNames) != max(len(d.CategoryRows), 1) {
				return fmt.Errorf("dataset %s: %d category names for %d category rows", d.ID, len(d.CategoryNames), max(len(d.CategoryRows), 1))
			}
		case KindPyramid:
		default:
			return fmt.Errorf("dataset %s: unknown kind %q", d.ID, d.Kind)
		}
	}

	if u := m.Unified; u != nil {
		for name, ref := range map[string]SeriesRef{
			"births": u.Births, "deaths": u.Deaths, "immigrants": u.Immigrants, "population": u.Population,
		} {
			d, ok := seen[ref.Dataset]
			if !ok {
				return fmt.Errorf("unified %s: unknown dataset %q", name, ref.Dataset)
			}
			if d.Kind != KindCategory {
				return fmt.Errorf("unified %s: dataset %s is %s, want category", name, d.ID, d.Kind)
			}
		}
	}
	return nil
}

// Get returns the dataset with the given id.
func (m *Manifest) Get(id string) (*Dataset, bool) {
	for i := range m.Datasets {
		if m.Datasets[i].ID == id {
			return &m.Datasets[i], true
		}
	}
	return nil, false
}

// ByKind returns the datasets of one kind in manifest order.
func (m *Manifest) ByKind(k Kind) []*Dataset {
	var out []*Dataset
	for i := range m.Datasets {
		if m.Datasets[i].Kind == k {
			out = append(out, &m.Datasets[i])
		}
	}
	return out
}

// Variant returns the provincial dataset of measure for gender g.
func (m *Manifest) Variant(measure string, g table.Gender) (*Dataset, bool) {
	for i := range m.Datasets {
		d := &m.Datasets[i]
		if d.Kind == KindProvincial && d.Measure == measure && d.Gender == g {
			return d, true
		}
	}
	return nil, false
}

// Measures returns the distinct measures of provincial datasets.
func (m *Manifest) Measures() []string {
	var out []string
	seen := make(map[string]bool)
	for _, d := range m.ByKind(KindProvincial) {
		if d.Measure != "" && !seen[d.Measure] {
			seen[d.Measure] = true
			out = append(out, d.Measure)
		}
	}
	return out
}

// Fingerprint identifies the reshaping instructions of a dataset. Two
// datasets with the same fingerprint and the same file content produce the
// same tables.
func (d *Dataset) Fingerprint() string {
	b, _ := json.Marshal(d)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// Path resolves the dataset file against baseDir.
func (d *Dataset) Path(baseDir string) string {
	if filepath.IsAbs(d.File) {
		return d.File
	}
	return filepath.Join(baseDir, d.File)
}

// ProvincialOptions converts the dataset description for table.ReshapeProvincial.
func (d *Dataset) ProvincialOptions() table.ProvincialOptions {
	return table.ProvincialOptions{
		Dataset:      d.ID,
		HeaderRow:    d.HeaderRow,
		IgnoreLabels: d.IgnoreLabels,
	}
}

// CategoryOptions converts the dataset description for table.ReshapeCategory.
func (d *Dataset) CategoryOptions() table.CategoryOptions {
	return table.CategoryOptions{
		Dataset:         d.ID,
		HeaderRow:       d.HeaderRow,
		SkipAfterHeader: d.SkipAfterHeader,
		CategoryRows:    d.CategoryRows,
		CategoryNames:   d.CategoryNames,
		MaxColumns:      d.MaxColumns,
		Periods:         d.Periods,
	}
}

// Normalizer returns the province normalizer for this dataset's label variant.
func (d *Dataset) Normalizer(ref *province.Registry) *province.Normalizer {
	return province.NewNormalizer(ref, d.ArtifactPrefix)
}
