package series

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustSeries(t *testing.T, name string, points ...Point) *Series {
	t.Helper()
	s, err := New(name, points)
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	return s
}

func TestNewSortsAndTruncates(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	s := mustSeries(t, "x",
		Point{date(2001, 1, 1), Some(2)},
		Point{time.Date(2000, 1, 1, 15, 30, 0, 0, loc), Some(1)},
	)
	if s.Len() != 2 {
		t.Fatalf("Len = %d", s.Len())
	}
	if !s.Points[0].Date.Equal(date(2000, 1, 1)) || s.Points[0].Value.Float != 1 {
		t.Errorf("first point = %+v", s.Points[0])
	}
	if v, ok := s.At(date(2001, 1, 1)); !ok || v.Float != 2 {
		t.Errorf("At(2001-01-01) = %v, %v", v, ok)
	}
	if _, ok := s.At(date(2002, 1, 1)); ok {
		t.Error("At(2002-01-01) should not be found")
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New("x", []Point{{date(2000, 1, 1), Some(1)}, {date(2000, 1, 1), Some(2)}})
	if !errors.Is(err, ErrDuplicateDate) {
		t.Fatalf("err = %v, want ErrDuplicateDate", err)
	}
}

func TestNilSeries(t *testing.T) {
	var s *Series
	if s.Len() != 0 || s.Dates() != nil {
		t.Error("nil series should be empty")
	}
	if _, ok := s.At(date(2000, 1, 1)); ok {
		t.Error("nil series At should miss")
	}
}

func TestValueJSON(t *testing.T) {
	b, _ := json.Marshal(struct {
		A, B Value
	}{Some(1.5), Missing})
	if string(b) != `{"A":1.5,"B":null}` {
		t.Errorf("marshal = %s", b)
	}
	var v Value
	if err := json.Unmarshal([]byte("null"), &v); err != nil || v.Valid {
		t.Errorf("unmarshal null = %+v, %v", v, err)
	}
	if err := json.Unmarshal([]byte("42"), &v); err != nil || !v.Valid || v.Float != 42 {
		t.Errorf("unmarshal 42 = %+v, %v", v, err)
	}
}
