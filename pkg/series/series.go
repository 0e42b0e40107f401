// Package series holds dated numeric series and the alignment of the
// national births, deaths, immigration and population series into one
// yearly table.
package series

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Metric names used for the unified table.
const (
	Births     = "births"
	Deaths     = "deaths"
	Immigrants = "immigrants"
	Population = "population"
)

// ErrDuplicateDate is returned by New when two points share a calendar date.
var ErrDuplicateDate = errors.New("duplicate date in series")

// Point is one observation. Date is a calendar date at UTC midnight.
type Point struct {
	Date  time.Time `json:"date"`
	Value Value     `json:"value"`
}

// Series is a named sequence of points with strictly increasing dates.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// New copies points, truncates their dates to calendar days, sorts them and
// rejects duplicates.
func New(name string, points []Point) (*Series, error) {
	ps := make([]Point, len(points))
	for i, p := range points {
		ps[i] = Point{Date: Day(p.Date), Value: p.Value}
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Date.Before(ps[j].Date) })
	for i := 1; i < len(ps); i++ {
		if ps[i].Date.Equal(ps[i-1].Date) {
			return nil, fmt.Errorf("series %q: %w: %s", name, ErrDuplicateDate, ps[i].Date.Format(time.DateOnly))
		}
	}
	return &Series{Name: name, Points: ps}, nil
}

// Day returns the calendar date of t at UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Len returns the number of points; a nil series is empty.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// At returns the value recorded on the calendar date of t.
func (s *Series) At(t time.Time) (Value, bool) {
	if s == nil {
		return Missing, false
	}
	d := Day(t)
	i := sort.Search(len(s.Points), func(i int) bool { return !s.Points[i].Date.Before(d) })
	if i < len(s.Points) && s.Points[i].Date.Equal(d) {
		return s.Points[i].Value, true
	}
	return Missing, false
}

// Dates returns the dates of the series in order.
func (s *Series) Dates() []time.Time {
	if s == nil {
		return nil
	}
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Date
	}
	return out
}
