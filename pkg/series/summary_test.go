package series

import "testing"

func TestSummarize(t *testing.T) {
	records := []YearlyRecord{
		{Date: date(2004, 1, 1), Births: Some(1)},
		{Date: date(2005, 1, 1), Births: Some(100), Deaths: Some(40), Population: Some(10)},
		{Date: date(2005, 7, 1), Births: Some(200), Deaths: Some(60), Population: Some(20)},
		{Date: date(2006, 1, 1), Births: Some(50), Immigrants: Some(5)},
	}
	got := Summarize(records, 2005)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	y := got[0]
	if y.Year != 2005 || y.Births != Some(150) || y.Deaths != Some(50) || y.Population != Some(15) {
		t.Errorf("2005 = %+v", y)
	}
	if y.NaturalBalance != Some(100) {
		t.Errorf("2005 natural balance = %v, want 100", y.NaturalBalance)
	}
	if got[1].NaturalBalance.Valid {
		t.Errorf("2006 natural balance should be missing, got %v", got[1].NaturalBalance)
	}
	if got[1].Immigrants != Some(5) {
		t.Errorf("2006 immigrants = %v", got[1].Immigrants)
	}
}

func TestNormalizeHeatmap(t *testing.T) {
	summaries := []YearSummary{
		{Year: 2000, Births: Some(10), Deaths: Some(7), Immigrants: Some(0)},
		{Year: 2001, Births: Some(20), Deaths: Some(7), Immigrants: Some(0)},
		{Year: 2002, Births: Some(30), Immigrants: Some(0)},
	}
	h := Normalize(summaries)
	if len(h.Years) != 3 || h.Years[2] != 2002 {
		t.Fatalf("years = %v", h.Years)
	}
	// population has no valid value and is dropped
	if len(h.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(h.Rows))
	}
	want := map[string][]Value{
		Births:     {Some(0), Some(0.5), Some(1)},
		Deaths:     {Some(0), Some(0), Missing},
		Immigrants: {Some(0), Some(0), Some(0)},
	}
	for _, row := range h.Rows {
		w, ok := want[row.Metric]
		if !ok {
			t.Errorf("unexpected metric %q", row.Metric)
			continue
		}
		for i := range w {
			if row.Values[i] != w[i] {
				t.Errorf("%s[%d] = %v, want %v", row.Metric, i, row.Values[i], w[i])
			}
		}
	}
}
