package export

import (
	"strconv"

	"github.com/hazyhaar/padron/pkg/pyramid"
	"github.com/hazyhaar/padron/pkg/series"
	"github.com/hazyhaar/padron/pkg/table"
)

const dateLayout = "2006-01-02"

// Number is a float written in plain decimal notation in CSV cells.
type Number float64

func (n Number) MarshalCSV() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(n), 'f', -1, 64), nil
}

func (n *Number) UnmarshalCSV(b []byte) error {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

func num(v series.Value) *Number {
	if !v.Valid {
		return nil
	}
	n := Number(v.Float)
	return &n
}

// YearlyRow is a flat YearlyRecord. Missing values are nil and export as
// empty CSV cells, JSON null and Parquet null.
type YearlyRow struct {
	Date       string  `csv:"date" json:"date"`
	Births     *Number `csv:"births" json:"births"`
	Deaths     *Number `csv:"deaths" json:"deaths"`
	Immigrants *Number `csv:"immigrants" json:"immigrants"`
	Population *Number `csv:"population" json:"population"`
}

type SummaryRow struct {
	Year           int     `csv:"year" json:"year"`
	Births         *Number `csv:"births" json:"births"`
	Deaths         *Number `csv:"deaths" json:"deaths"`
	Immigrants     *Number `csv:"immigrants" json:"immigrants"`
	Population     *Number `csv:"population" json:"population"`
	NaturalBalance *Number `csv:"natural_balance" json:"natural_balance"`
}

type BandRow struct {
	Start  int    `csv:"start" json:"start"`
	Label  string `csv:"band" json:"band"`
	Male   Number `csv:"male" json:"male"`
	Female Number `csv:"female" json:"female"`
}

// LongRow is one province/column cell of a provincial table.
type LongRow struct {
	Province string  `csv:"province" json:"province"`
	Column   string  `csv:"column" json:"column"`
	Value    *Number `csv:"value" json:"value"`
}

func yearlyRows(records []series.YearlyRecord) []YearlyRow {
	out := make([]YearlyRow, len(records))
	for i, r := range records {
		out[i] = YearlyRow{
			Date:       r.Date.Format(dateLayout),
			Births:     num(r.Births),
			Deaths:     num(r.Deaths),
			Immigrants: num(r.Immigrants),
			Population: num(r.Population),
		}
	}
	return out
}

func summaryRows(summaries []series.YearSummary) []SummaryRow {
	out := make([]SummaryRow, len(summaries))
	for i, s := range summaries {
		out[i] = SummaryRow{
			Year:           s.Year,
			Births:         num(s.Births),
			Deaths:         num(s.Deaths),
			Immigrants:     num(s.Immigrants),
			Population:     num(s.Population),
			NaturalBalance: num(s.NaturalBalance),
		}
	}
	return out
}

func bandRows(bands []pyramid.Band) []BandRow {
	out := make([]BandRow, len(bands))
	for i, b := range bands {
		out[i] = BandRow{Start: b.Start, Label: b.Label, Male: Number(b.Male), Female: Number(b.Female)}
	}
	return out
}

func longRows(t *table.ProvincialTable) []LongRow {
	long := t.Long()
	out := make([]LongRow, len(long))
	for i, r := range long {
		out[i] = LongRow{Province: string(r.Province), Column: r.Column, Value: num(r.Value)}
	}
	return out
}
