// Package export writes pipeline results as CSV, JSON or Parquet files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/jszwec/csvutil"

	"github.com/hazyhaar/padron/pkg/pyramid"
	"github.com/hazyhaar/padron/pkg/series"
	"github.com/hazyhaar/padron/pkg/table"
)

// Format is an output file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts a format name or a file extension (".parquet").
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	case "pq":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv, json or parquet)", s)
}

// Table is an exportable result: flat rows for CSV and JSON, and an Arrow
// record builder for Parquet.
type Table struct {
	Name   string
	rows   any
	n      int
	record func() arrow.Record
}

// Len returns the number of rows.
func (t Table) Len() int { return t.n }

// Rows returns the flat rows ([]YearlyRow, []SummaryRow, []BandRow or []LongRow).
func (t Table) Rows() any { return t.rows }

func Yearly(records []series.YearlyRecord) Table {
	rows := yearlyRows(records)
	return Table{Name: "yearly", rows: rows, n: len(rows), record: func() arrow.Record { return yearlyRecord(rows) }}
}

func Summaries(summaries []series.YearSummary) Table {
	rows := summaryRows(summaries)
	return Table{Name: "summaries", rows: rows, n: len(rows), record: func() arrow.Record { return summaryRecord(rows) }}
}

func Bands(bands []pyramid.Band) Table {
	rows := bandRows(bands)
	return Table{Name: "pyramid", rows: rows, n: len(rows), record: func() arrow.Record { return bandRecord(rows) }}
}

// Provincial exports a provincial table in long form.
func Provincial(t *table.ProvincialTable) Table {
	rows := longRows(t)
	return Table{Name: "provincial", rows: rows, n: len(rows), record: func() arrow.Record { return longRecord(rows) }}
}

// MarshalJSON encodes the rows, so a Table can be returned as a JSON value.
func (t Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.rows)
}

// Write encodes the table to w.
func (t Table) Write(w io.Writer, f Format) error {
	switch f {
	case FormatCSV:
		return t.WriteCSV(w)
	case FormatJSON:
		return t.WriteJSON(w)
	case FormatParquet:
		return t.WriteParquet(w)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// WriteFile creates path and writes the table in the format named by its
// extension.
func (t Table) WriteFile(path string) error {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := t.Write(out, f); err != nil {
		out.Close()
		return fmt.Errorf("export %s to %s: %w", t.Name, path, err)
	}
	return out.Close()
}

// WriteCSV writes a header line then one line per row. Missing values are
// empty cells.
func (t Table) WriteCSV(w io.Writer) error {
	data, err := csvutil.Marshal(t.rows)
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteJSON writes the rows as an indented JSON array.
func (t Table) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t.rows)
}

// WriteParquet writes the rows as one Snappy-compressed row group with the
// Arrow schema stored in the file metadata.
func (t Table) WriteParquet(w io.Writer) error {
	rec := t.record()
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(rec.Schema(), w, props, arrowProps)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("write parquet: %w", err)
	}
	return writer.Close()
}
