// Package pyramid buckets single-year-of-age population counts into
// five-year bands by sex.
package pyramid

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/hazyhaar/padron/pkg/table"
)

// Width of every band in years.
const Width = 5

// Row is one line of an age-distribution table.
type Row struct {
	Label  string  `json:"label"`
	Male   float64 `json:"male"`
	Female float64 `json:"female"`
}

// Band is the aggregate of one five-year age group.
type Band struct {
	Start  int     `json:"start"`
	Label  string  `json:"label"`
	Male   float64 `json:"male"`
	Female float64 `json:"female"`
}

// BandStart returns floor(age/5)*5.
func BandStart(age int) int {
	return age / Width * Width
}

// BandLabel returns "start-end" for the band starting at start.
func BandLabel(start int) string {
	return strconv.Itoa(start) + "-" + strconv.Itoa(start+Width-1)
}

// singleAge matches "0 años", "1 año", "57 años". Open-ended rows
// ("100 y más años") and subtotals ("De 0 a 4 años", "Total") do not match.
var singleAge = regexp.MustCompile(`^(\d+)\s*años?$`)

// Age returns the single year of age a label denotes.
func Age(label string) (int, bool) {
	m := singleAge.FindStringSubmatch(cases.Fold().String(norm.NFC.String(strings.TrimSpace(label))))
	if m == nil {
		return 0, false
	}
	age, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return age, true
}

// Aggregate sums male and female counts per band over the single-age rows,
// sorted by band start. Bands between the youngest and oldest observed band
// are all present; a band without rows has zero totals.
func Aggregate(rows []Row) []Band {
	sums := make(map[int]*Band)
	lo, hi := -1, -1
	for _, r := range rows {
		age, ok := Age(r.Label)
		if !ok {
			continue
		}
		start := BandStart(age)
		b := sums[start]
		if b == nil {
			b = &Band{Start: start, Label: BandLabel(start)}
			sums[start] = b
		}
		b.Male += r.Male
		b.Female += r.Female
		if lo < 0 || start < lo {
			lo = start
		}
		if start > hi {
			hi = start
		}
	}
	if lo < 0 {
		return []Band{}
	}

	out := make([]Band, 0, (hi-lo)/Width+1)
	for start := lo; start <= hi; start += Width {
		if b, ok := sums[start]; ok {
			out = append(out, *b)
		} else {
			out = append(out, Band{Start: start, Label: BandLabel(start)})
		}
	}
	return out
}

// RowsFromRaw reads an age table whose first three columns are age label,
// males and females. Counts that are missing or not numeric read as zero.
func RowsFromRaw(raw table.Raw) []Row {
	rows := make([]Row, 0, len(raw))
	for r := range raw {
		label := raw.At(r, 0)
		if label.IsBlank() {
			continue
		}
		rows = append(rows, Row{
			Label:  label.String(),
			Male:   raw.At(r, 1).Value().Or(0),
			Female: raw.At(r, 2).Value().Or(0),
		})
	}
	return rows
}

// Totals returns the overall male and female population of bands.
func Totals(bands []Band) (male, female float64) {
	for _, b := range bands {
		male += b.Male
		female += b.Female
	}
	return male, female
}
