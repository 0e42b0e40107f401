package series

import (
	"sort"
	"time"
)

// YearlyRecord is one row of the unified table.
type YearlyRecord struct {
	Date       time.Time `json:"date"`
	Births     Value     `json:"births"`
	Deaths     Value     `json:"deaths"`
	Immigrants Value     `json:"immigrants"`
	Population Value     `json:"population"`
}

// Merge outer-joins the four series on their dates and keeps dates on or
// after 1 January of floorYear. Nil series are empty.
//
// Two gap-fill rules apply and nothing else is filled:
//   - a July record takes births and deaths from the preceding record, since
//     the population source reports a mid-year snapshot the others lack;
//   - a missing population on the final record is taken from the one before.
//
// Immigration without a record is zero: that series starts in 2008 and
// absence means no recorded inflow.
func Merge(births, deaths, immigrants, population *Series, floorYear int) []YearlyRecord {
	floor := time.Date(floorYear, time.January, 1, 0, 0, 0, 0, time.UTC)

	seen := make(map[int64]time.Time)
	for _, s := range []*Series{births, deaths, immigrants, population} {
		for _, d := range s.Dates() {
			if d.Before(floor) {
				continue
			}
			seen[d.Unix()] = d
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	records := make([]YearlyRecord, len(dates))
	for i, d := range dates {
		rec := YearlyRecord{Date: d}
		rec.Births, _ = births.At(d)
		rec.Deaths, _ = deaths.At(d)
		rec.Immigrants, _ = immigrants.At(d)
		rec.Population, _ = population.At(d)
		if !rec.Immigrants.Valid {
			rec.Immigrants = Some(0)
		}
		records[i] = rec
	}

	fillJuly(records)

	if n := len(records); n >= 2 && !records[n-1].Population.Valid {
		records[n-1].Population = records[n-2].Population
	}
	return records
}

// fillJuly copies births and deaths into July records from the preceding
// record as it was before any filling.
func fillJuly(records []YearlyRecord) {
	prevBirths, prevDeaths := Missing, Missing
	for i := range records {
		b, d := records[i].Births, records[i].Deaths
		if records[i].Date.Month() == time.July {
			records[i].Births, records[i].Deaths = prevBirths, prevDeaths
		}
		prevBirths, prevDeaths = b, d
	}
}
