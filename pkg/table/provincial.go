package table

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hazyhaar/padron/pkg/province"
	"github.com/hazyhaar/padron/pkg/series"
)

// ProvincialOptions locates the data in a per-province export.
type ProvincialOptions struct {
	Dataset string

	// HeaderRow is the row holding period labels, counted after the
	// source's skip rows. The first column holds province labels.
	HeaderRow int

	// IgnoreLabels are row labels skipped before normalization
	// (e.g. "Total Nacional"). Compared case-insensitively.
	IgnoreLabels []string
}

// ProvincialTable maps province keys to one value per period column.
type ProvincialTable struct {
	columns []string
	index   map[string]int
	keys    []province.Key
	rows    map[province.Key][]series.Value
}

// ReshapeProvincial reads a per-province wide table. Data rows start after
// the header row and end at the first row with an empty label.
//
// Unknown province labels abort with the *province.NormalizationError
// wrapped with its row; layout problems return a *StructuralError.
func ReshapeProvincial(raw Raw, opts ProvincialOptions, n *province.Normalizer) (*ProvincialTable, error) {
	if n == nil {
		n = province.NewNormalizer(nil, 0)
	}
	if opts.HeaderRow < 0 || opts.HeaderRow >= len(raw) {
		return nil, structural(opts.Dataset, opts.HeaderRow, -1, "header row missing (table has %d rows)", len(raw))
	}

	t := &ProvincialTable{
		index: make(map[string]int),
		rows:  make(map[province.Key][]series.Value),
	}
	var cols []int
	header := raw[opts.HeaderRow]
	for c := 1; c < len(header); c++ {
		if header[c].IsBlank() {
			continue
		}
		label := strings.TrimSpace(header[c].String())
		if _, dup := t.index[label]; dup {
			return nil, structural(opts.Dataset, opts.HeaderRow, c, "duplicate column %q", label)
		}
		t.index[label] = len(t.columns)
		t.columns = append(t.columns, label)
		cols = append(cols, c)
	}
	if len(t.columns) == 0 {
		return nil, structural(opts.Dataset, opts.HeaderRow, -1, "no period columns in header")
	}

	ignore := make(map[string]bool, len(opts.IgnoreLabels))
	for _, l := range opts.IgnoreLabels {
		ignore[strings.ToLower(strings.TrimSpace(l))] = true
	}

	for r := opts.HeaderRow + 1; r < len(raw); r++ {
		cell := raw.At(r, 0)
		if cell.IsBlank() {
			break
		}
		label := cell.String()
		if ignore[strings.ToLower(strings.TrimSpace(label))] {
			continue
		}
		key, err := n.Normalize(label)
		if err != nil {
			if opts.Dataset != "" {
				return nil, fmt.Errorf("dataset %s: row %d: %w", opts.Dataset, r, err)
			}
			return nil, fmt.Errorf("row %d: %w", r, err)
		}
		if _, dup := t.rows[key]; dup {
			return nil, structural(opts.Dataset, r, 0, "province %q appears twice", key)
		}
		values := make([]series.Value, len(cols))
		for i, c := range cols {
			values[i] = raw.At(r, c).Value()
		}
		t.keys = append(t.keys, key)
		t.rows[key] = values
	}
	if len(t.keys) == 0 {
		return nil, structural(opts.Dataset, opts.HeaderRow+1, -1, "no province rows after header")
	}
	return t, nil
}

// Columns returns the period labels in header order.
func (t *ProvincialTable) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Keys returns the provinces in source order.
func (t *ProvincialTable) Keys() []province.Key {
	return append([]province.Key(nil), t.keys...)
}

// Len returns the number of provinces.
func (t *ProvincialTable) Len() int { return len(t.keys) }

// HasColumn reports whether the period column exists.
func (t *ProvincialTable) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Get returns one cell. ok is false if the province or the column is absent.
func (t *ProvincialTable) Get(key province.Key, column string) (v series.Value, ok bool) {
	row, found := t.rows[key]
	if !found {
		return series.Missing, false
	}
	i, found := t.index[column]
	if !found {
		return series.Missing, false
	}
	return row[i], true
}

// Row returns a copy of the values of key in column order.
func (t *ProvincialTable) Row(key province.Key) ([]series.Value, bool) {
	row, ok := t.rows[key]
	if !ok {
		return nil, false
	}
	return append([]series.Value(nil), row...), true
}

// Column returns the value of every province for one period.
func (t *ProvincialTable) Column(name string) (map[province.Key]series.Value, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrColumnNotFound)
	}
	out := make(map[province.Key]series.Value, len(t.keys))
	for _, k := range t.keys {
		out[k] = t.rows[k][i]
	}
	return out, nil
}

// Totals sums every column across provinces into a dated series. Missing
// cells are skipped; a column with no value at all is missing. Columns whose
// label does not parse as a period of kind are left out and returned as
// dropped. A table where no column parses is a *StructuralError.
func (t *ProvincialTable) Totals(name string, kind PeriodKind) (*series.Series, []string, error) {
	var (
		points  []series.Point
		dropped []string
	)
	for i, col := range t.columns {
		date, ok := ParsePeriod(kind, col)
		if !ok {
			dropped = append(dropped, col)
			continue
		}
		var sum float64
		n := 0
		for _, k := range t.keys {
			if v := t.rows[k][i]; v.Valid {
				sum += v.Float
				n++
			}
		}
		v := series.Missing
		if n > 0 {
			v = series.Some(sum)
		}
		points = append(points, series.Point{Date: date, Value: v})
	}
	if len(points) == 0 {
		if kind == "" {
			kind = PeriodYear
		}
		return nil, dropped, structural(name, -1, -1, "no column parses as a %s period (%d dropped)", kind, len(dropped))
	}
	s, err := series.New(name, points)
	if err != nil {
		return nil, dropped, err
	}
	return s, dropped, nil
}

// LongRow is one province/period value in long form.
type LongRow struct {
	Province province.Key `json:"province"`
	Column   string       `json:"column"`
	Value    series.Value `json:"value"`
}

// Long flattens the table to one row per province and column, in source
// order then column order.
func (t *ProvincialTable) Long() []LongRow {
	out := make([]LongRow, 0, len(t.keys)*len(t.columns))
	for _, k := range t.keys {
		for i, col := range t.columns {
			out = append(out, LongRow{Province: k, Column: col, Value: t.rows[k][i]})
		}
	}
	return out
}

type provincialJSON struct {
	Columns []string            `json:"columns"`
	Rows    []provincialRowJSON `json:"rows"`
}

type provincialRowJSON struct {
	Province province.Key   `json:"province"`
	Values   []series.Value `json:"values"`
}

func (t *ProvincialTable) snapshot() provincialJSON {
	out := provincialJSON{Columns: t.columns, Rows: make([]provincialRowJSON, len(t.keys))}
	for i, k := range t.keys {
		out.Rows[i] = provincialRowJSON{Province: k, Values: t.rows[k]}
	}
	return out
}

func (t *ProvincialTable) restore(in provincialJSON) {
	t.columns = in.Columns
	t.index = make(map[string]int, len(in.Columns))
	for i, c := range in.Columns {
		t.index[c] = i
	}
	t.keys = make([]province.Key, len(in.Rows))
	t.rows = make(map[province.Key][]series.Value, len(in.Rows))
	for i, r := range in.Rows {
		t.keys[i] = r.Province
		t.rows[r.Province] = r.Values
	}
}

func (t *ProvincialTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.snapshot())
}

func (t *ProvincialTable) UnmarshalJSON(b []byte) error {
	var in provincialJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	t.restore(in)
	return nil
}

// GobEncode lets cached tables be persisted with encoding/gob.
func (t *ProvincialTable) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t.snapshot()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *ProvincialTable) GobDecode(b []byte) error {
	var in provincialJSON
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&in); err != nil {
		return err
	}
	t.restore(in)
	return nil
}
