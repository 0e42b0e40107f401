package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/hazyhaar/padron/pkg/table"
)

// ReadRaw loads the dataset file under baseDir and drops its skip rows.
func ReadRaw(d *Dataset, baseDir string) (table.Raw, error) {
	data, err := os.ReadFile(d.Path(baseDir))
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.ID, err)
	}
	return Decode(d, data)
}

// Decode parses file content according to the dataset format.
func Decode(d *Dataset, data []byte) (table.Raw, error) {
	var (
		raw table.Raw
		err error
	)
	switch d.Format {
	case FormatCSV:
		raw, err = decodeCSV(d, bytes.NewReader(data))
	default:
		raw, err = decodeXLSX(d, bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.ID, err)
	}
	return raw.Skip(d.SkipRows), nil
}

// HashFile returns the hex SHA-256 of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func decodeXLSX(d *Dataset, r io.Reader) (table.Raw, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := d.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("xlsx has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return toRaw(rows, d.NumberFormat), nil
}

func decodeCSV(d *Dataset, src io.Reader) (table.Raw, error) {
	reader := src
	if enc := d.Encoding; enc != "" && !isUTF8(enc) {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", enc, err)
		}
		reader = transform.NewReader(src, e.NewDecoder())
	}

	r := csv.NewReader(reader)
	if d.Delimiter != "" {
		r.Comma = []rune(d.Delimiter)[0]
	}
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return toRaw(rows, d.NumberFormat), nil
}

func toRaw(rows [][]string, numbers string) table.Raw {
	if numbers != NumbersEuropean {
		return table.FromStrings(rows)
	}
	raw := make(table.Raw, len(rows))
	for i, row := range rows {
		cells := make([]table.Cell, len(row))
		for j, s := range row {
			if f, ok := ParseEuropean(s); ok {
				cells[j] = table.Number(f)
			} else {
				cells[j] = table.ParseCell(s)
			}
		}
		raw[i] = cells
	}
	return raw
}

var europeanNumber = regexp.MustCompile(`^-?(\d{1,3}(\.\d{3})+|\d+)(,\d+)?$`)

// ParseEuropean reads numbers written with "." thousands and "," decimals
// ("1.234.567", "12,5"). A bare integer is accepted; "12.5" is not.
func ParseEuropean(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !europeanNumber.MatchString(s) {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func isUTF8(enc string) bool {
	e := strings.ToLower(strings.ReplaceAll(enc, "-", ""))
	return e == "utf8" || e == ""
}
