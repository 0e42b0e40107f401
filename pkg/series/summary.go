package series

import "sort"

// YearSummary is the per-year mean of each metric of the unified table.
type YearSummary struct {
	Year           int   `json:"year"`
	Births         Value `json:"births"`
	Deaths         Value `json:"deaths"`
	Immigrants     Value `json:"immigrants"`
	Population     Value `json:"population"`
	NaturalBalance Value `json:"natural_balance"`
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v Value) {
	if v.Valid {
		m.sum += v.Float
		m.n++
	}
}

func (m mean) value() Value {
	if m.n == 0 {
		return Missing
	}
	return Some(m.sum / float64(m.n))
}

// Summarize groups records by calendar year (years before fromYear are
// skipped) and averages every metric over its valid values. NaturalBalance
// is births minus deaths when both are present.
func Summarize(records []YearlyRecord, fromYear int) []YearSummary {
	type acc struct{ b, d, i, p mean }
	byYear := make(map[int]*acc)
	for _, r := range records {
		y := r.Date.Year()
		if y < fromYear {
			continue
		}
		a := byYear[y]
		if a == nil {
			a = &acc{}
			byYear[y] = a
		}
		a.b.add(r.Births)
		a.d.add(r.Deaths)
		a.i.add(r.Immigrants)
		a.p.add(r.Population)
	}

	out := make([]YearSummary, 0, len(byYear))
	for y, a := range byYear {
		s := YearSummary{
			Year:       y,
			Births:     a.b.value(),
			Deaths:     a.d.value(),
			Immigrants: a.i.value(),
			Population: a.p.value(),
		}
		if s.Births.Valid && s.Deaths.Valid {
			s.NaturalBalance = Some(s.Births.Float - s.Deaths.Float)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// HeatmapRow holds one metric scaled to [0,1] across years.
type HeatmapRow struct {
	Metric string  `json:"metric"`
	Values []Value `json:"values"`
}

// Heatmap is a metric × year grid of min-max scaled values.
type Heatmap struct {
	Years []int        `json:"years"`
	Rows  []HeatmapRow `json:"rows"`
}

// Normalize min-max scales each metric of summaries independently. A flat
// metric scales to 0; a metric with no valid value is dropped. Missing cells
// stay missing.
func Normalize(summaries []YearSummary) Heatmap {
	h := Heatmap{Years: make([]int, len(summaries))}
	for i, s := range summaries {
		h.Years[i] = s.Year
	}

	metrics := []struct {
		name string
		get  func(YearSummary) Value
	}{
		{Births, func(s YearSummary) Value { return s.Births }},
		{Deaths, func(s YearSummary) Value { return s.Deaths }},
		{Immigrants, func(s YearSummary) Value { return s.Immigrants }},
		{Population, func(s YearSummary) Value { return s.Population }},
	}
	for _, m := range metrics {
		var lo, hi float64
		found := false
		for _, s := range summaries {
			v := m.get(s)
			if !v.Valid {
				continue
			}
			if !found || v.Float < lo {
				lo = v.Float
			}
			if !found || v.Float > hi {
				hi = v.Float
			}
			found = true
		}
		if !found {
			continue
		}
		row := HeatmapRow{Metric: m.name, Values: make([]Value, len(summaries))}
		for i, s := range summaries {
			v := m.get(s)
			switch {
			case !v.Valid:
			case hi == lo:
				row.Values[i] = Some(0)
			default:
				row.Values[i] = Some((v.Float - lo) / (hi - lo))
			}
		}
		h.Rows = append(h.Rows, row)
	}
	return h
}
