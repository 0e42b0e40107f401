package table

import (
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/padron/pkg/series"
)

// CategoryOptions locates the data in a per-category export, where one row
// holds period labels and selected rows below it hold one category each.
type CategoryOptions struct {
	Dataset string

	HeaderRow int

	// SkipAfterHeader rows between the header and the first category row
	// (INE leaves a units row there in some exports).
	SkipAfterHeader int

	// CategoryRows are positions counted from the first category row.
	// Defaults to {0}.
	CategoryRows []int

	// CategoryNames override the labels found in the first column.
	CategoryNames []string

	// MaxColumns truncates every row, label column included. 0 keeps all.
	MaxColumns int

	Periods PeriodKind
}

// Result is the transposed table: one dated series per category.
type Result struct {
	Categories []string         `json:"categories"`
	Series     []*series.Series `json:"series"`

	// DroppedColumns are header labels that did not parse as periods.
	DroppedColumns []string `json:"dropped_columns,omitempty"`
}

// Get returns the series for a category name.
func (r *Result) Get(name string) (*series.Series, bool) {
	for i, c := range r.Categories {
		if c == name {
			return r.Series[i], true
		}
	}
	return nil, false
}

// ReshapeCategory transposes the selected category rows so periods become
// the index. Header cells that do not parse as periods are dropped and
// reported in DroppedColumns; if none parses the table is unusable.
func ReshapeCategory(raw Raw, opts CategoryOptions) (*Result, error) {
	if err := opts.Periods.Validate(); err != nil {
		return nil, err
	}
	rows := opts.CategoryRows
	if len(rows) == 0 {
		rows = []int{0}
	}
	if len(opts.CategoryNames) > 0 && len(opts.CategoryNames) != len(rows) {
		return nil, fmt.Errorf("dataset %s: %d category names for %d category rows", opts.Dataset, len(opts.CategoryNames), len(rows))
	}
	if opts.HeaderRow < 0 || opts.HeaderRow >= len(raw) {
		return nil, structural(opts.Dataset, opts.HeaderRow, -1, "header row missing (table has %d rows)", len(raw))
	}

	header := raw[opts.HeaderRow]
	width := len(header)
	if opts.MaxColumns > 0 && width > opts.MaxColumns {
		width = opts.MaxColumns
	}

	res := &Result{}
	type period struct {
		col  int
		date time.Time
	}
	var periods []period
	for c := 1; c < width; c++ {
		if header[c].IsBlank() {
			continue
		}
		label := strings.TrimSpace(header[c].String())
		date, ok := ParsePeriod(opts.Periods, label)
		if !ok {
			res.DroppedColumns = append(res.DroppedColumns, label)
			continue
		}
		periods = append(periods, period{col: c, date: date})
	}
	if len(periods) == 0 {
		return nil, structural(opts.Dataset, opts.HeaderRow, -1, "no valid period columns in header (%d dropped)", len(res.DroppedColumns))
	}

	base := opts.HeaderRow + 1 + opts.SkipAfterHeader
	seen := make(map[string]bool, len(rows))
	for i, pos := range rows {
		r := base + pos
		if pos < 0 || r >= len(raw) {
			return nil, structural(opts.Dataset, r, -1, "category row %d missing (table has %d rows)", pos, len(raw))
		}
		var name string
		if len(opts.CategoryNames) > 0 {
			name = opts.CategoryNames[i]
		} else {
			name = strings.TrimSpace(raw.At(r, 0).String())
		}
		if name == "" {
			return nil, structural(opts.Dataset, r, 0, "category row has no label")
		}
		if seen[name] {
			return nil, structural(opts.Dataset, r, 0, "duplicate category %q", name)
		}
		seen[name] = true

		points := make([]series.Point, len(periods))
		for j, p := range periods {
			points[j] = series.Point{Date: p.date, Value: raw.At(r, p.col).Value()}
		}
		s, err := series.New(name, points)
		if err != nil {
			return nil, structural(opts.Dataset, opts.HeaderRow, -1, "%v", err)
		}
		res.Categories = append(res.Categories, name)
		res.Series = append(res.Series, s)
	}
	return res, nil
}
