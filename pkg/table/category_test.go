package table

import (
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/padron/pkg/series"
)

func TestYearHeader(t *testing.T) {
	tests := []struct {
		label string
		want  int
		ok    bool
	}{
		{"1975.0", 1975, true},
		{"2020", 2020, true},
		{" 2020 ", 2020, true},
		{"Total", 0, false},
		{"", 0, false},
		{"197", 0, false},
		{"19750", 0, false},
		{"2020.5", 0, false},
		{"2020.0.0", 0, false},
		{"20a0", 0, false},
	}
	for _, tt := range tests {
		got, ok := YearHeader(tt.label)
		if ok != tt.ok || got != tt.want {
			t.Errorf("YearHeader(%q) = %d, %v; want %d, %v", tt.label, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReshapeCategoryYears(t *testing.T) {
	raw := Raw{
		{Empty, Number(2023), Text("2022.0"), Text("Total"), Number(1975)},
		{Text("Total"), Number(436124), Number(464417), Text("x"), Number(298192)},
		{Text("Hombres"), Number(1), Number(2), Empty, Number(3)},
	}
	res, err := ReshapeCategory(raw, CategoryOptions{Dataset: "defun"})
	if err != nil {
		t.Fatalf("ReshapeCategory: %v", err)
	}
	if len(res.DroppedColumns) != 1 || res.DroppedColumns[0] != "Total" {
		t.Errorf("DroppedColumns = %v", res.DroppedColumns)
	}
	s, ok := res.Get("Total")
	if !ok {
		t.Fatalf("category Total missing: %v", res.Categories)
	}
	want := []struct {
		year int
		v    float64
	}{{1975, 298192}, {2022, 464417}, {2023, 436124}}
	if s.Len() != len(want) {
		t.Fatalf("Len = %d", s.Len())
	}
	for i, w := range want {
		p := s.Points[i]
		if !p.Date.Equal(time.Date(w.year, 1, 1, 0, 0, 0, 0, time.UTC)) || p.Value != series.Some(w.v) {
			t.Errorf("point %d = %+v, want %d=%v", i, p, w.year, w.v)
		}
	}
}

func TestReshapeCategorySpanishDates(t *testing.T) {
	raw := FromStrings([][]string{
		{"", "1 de enero de 2024", "1 de julio de 2023", "1 de enero de 2023", "Fuente"},
		{"Unidades: personas"},
		{"Ambos sexos", "48619695", "48345223", "48085361", ""},
		{"Hombres", "23811939", "23671429", "23546339", ""},
		{"Mujeres", "24807756", "24673794", "24539022", ""},
	})
	res, err := ReshapeCategory(raw, CategoryOptions{
		SkipAfterHeader: 1,
		CategoryRows:    []int{0, 1, 2},
		CategoryNames:   []string{"total", "male", "female"},
		Periods:         PeriodSpanishDate,
	})
	if err != nil {
		t.Fatalf("ReshapeCategory: %v", err)
	}
	if len(res.Series) != 3 {
		t.Fatalf("series = %d", len(res.Series))
	}
	if len(res.DroppedColumns) != 1 || res.DroppedColumns[0] != "Fuente" {
		t.Errorf("DroppedColumns = %v", res.DroppedColumns)
	}
	male, _ := res.Get("male")
	v, ok := male.At(time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC))
	if !ok || v != series.Some(23671429) {
		t.Errorf("male July 2023 = %v, %v", v, ok)
	}
	if !male.Points[0].Date.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first date = %v", male.Points[0].Date)
	}
}

func TestReshapeCategoryMaxColumns(t *testing.T) {
	raw := FromStrings([][]string{
		{"", "2001", "2002", "2003"},
		{"Total", "1", "2", "3"},
	})
	res, err := ReshapeCategory(raw, CategoryOptions{MaxColumns: 3})
	if err != nil {
		t.Fatalf("ReshapeCategory: %v", err)
	}
	if res.Series[0].Len() != 2 {
		t.Errorf("Len = %d, want 2", res.Series[0].Len())
	}
}

func TestReshapeCategoryErrors(t *testing.T) {
	good := FromStrings([][]string{{"", "2001"}, {"Total", "1"}})
	tests := []struct {
		name       string
		raw        Raw
		opts       CategoryOptions
		structural bool
	}{
		{"no header", Raw{}, CategoryOptions{}, true},
		{"no valid columns", FromStrings([][]string{{"", "Total", "Notas"}, {"Total", "1", "2"}}), CategoryOptions{}, true},
		{"category row missing", good, CategoryOptions{CategoryRows: []int{0, 1}}, true},
		{"negative category row", good, CategoryOptions{CategoryRows: []int{-1}}, true},
		{"duplicate year", FromStrings([][]string{{"", "2001", "2001.0"}, {"Total", "1", "2"}}), CategoryOptions{}, true},
		{"unlabeled category", FromStrings([][]string{{"", "2001"}, {"", "1"}}), CategoryOptions{}, true},
		{"names mismatch", good, CategoryOptions{CategoryNames: []string{"a", "b"}}, false},
		{"bad period kind", good, CategoryOptions{Periods: "quarter"}, false},
	}
	for _, tt := range tests {
		_, err := ReshapeCategory(tt.raw, tt.opts)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if got := errors.Is(err, ErrStructural); got != tt.structural {
			t.Errorf("%s: structural = %v, want %v (%v)", tt.name, got, tt.structural, err)
		}
	}
}

func TestCells(t *testing.T) {
	tests := []struct {
		in   string
		text string
		val  series.Value
	}{
		{"1975.0", "1975", series.Some(1975)},
		{"12.5", "12.5", series.Some(12.5)},
		{"..", "..", series.Missing},
		{"-", "-", series.Missing},
		{"NaN", "NaN", series.Missing},
		{"  ", "", series.Missing},
	}
	for _, tt := range tests {
		c := ParseCell(tt.in)
		if c.String() != tt.text {
			t.Errorf("ParseCell(%q).String() = %q, want %q", tt.in, c.String(), tt.text)
		}
		if c.Value() != tt.val {
			t.Errorf("ParseCell(%q).Value() = %v, want %v", tt.in, c.Value(), tt.val)
		}
	}
	if (Raw{{Number(1)}}).At(5, 5) != Empty {
		t.Error("out of range At should be Empty")
	}
}
