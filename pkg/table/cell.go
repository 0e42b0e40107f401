// Package table reshapes the wide, header-in-row tables exported by INE
// into province-keyed tables and dated category series.
package table

import (
	"math"
	"strconv"
	"strings"

	"github.com/hazyhaar/padron/pkg/series"
)

// Kind tells what a Cell holds.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
)

// Cell is one spreadsheet cell: empty, text or number.
type Cell struct {
	Kind Kind
	Str  string
	Num  float64
}

// Text returns a text cell.
func Text(s string) Cell { return Cell{Kind: KindString, Str: s} }

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{Kind: KindNumber, Num: f} }

// Empty is the empty cell.
var Empty = Cell{}

// String renders the cell as text. Numbers use the shortest exact form
// ("1975", "12.5").
func (c Cell) String() string {
	switch c.Kind {
	case KindNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case KindString:
		return c.Str
	default:
		return ""
	}
}

// IsBlank reports an empty cell or one holding only whitespace.
func (c Cell) IsBlank() bool {
	return c.Kind == KindEmpty || (c.Kind == KindString && strings.TrimSpace(c.Str) == "")
}

// Value converts the cell to a number. INE marks unavailable figures with
// ".." or "-"; those and any other non-numeric text are missing.
func (c Cell) Value() series.Value {
	switch c.Kind {
	case KindNumber:
		return series.Some(c.Num)
	case KindString:
		f, ok := parseNumber(c.Str)
		if !ok {
			return series.Missing
		}
		return series.Some(f)
	default:
		return series.Missing
	}
}

// Raw is a materialized sheet: rows of cells, possibly ragged.
type Raw [][]Cell

// At returns the cell at (row, col), or Empty when out of range.
func (r Raw) At(row, col int) Cell {
	if row < 0 || row >= len(r) || col < 0 || col >= len(r[row]) {
		return Empty
	}
	return r[row][col]
}

// Width returns the length of the longest row.
func (r Raw) Width() int {
	w := 0
	for _, row := range r {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// Skip drops the first n rows.
func (r Raw) Skip(n int) Raw {
	if n <= 0 {
		return r
	}
	if n >= len(r) {
		return Raw{}
	}
	return r[n:]
}

// FromStrings builds a raw table from text cells: blanks become Empty,
// numeric text becomes a Number, anything else stays text.
func FromStrings(rows [][]string) Raw {
	raw := make(Raw, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, s := range row {
			cells[j] = ParseCell(s)
		}
		raw[i] = cells
	}
	return raw
}

// ParseCell classifies a single text cell.
func ParseCell(s string) Cell {
	t := strings.TrimSpace(s)
	if t == "" {
		return Empty
	}
	if f, ok := parseNumber(t); ok {
		return Number(f)
	}
	return Text(s)
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
