package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/padron/pkg/esdate"
)

// PeriodKind tells how header labels are read as dates.
type PeriodKind string

const (
	// PeriodYear headers are 4-digit years, possibly written as floats ("1975.0").
	PeriodYear PeriodKind = "year"
	// PeriodSpanishDate headers are long Spanish dates ("1 de enero de 2022").
	PeriodSpanishDate PeriodKind = "spanish_date"
)

// Validate rejects unknown kinds. The empty kind means PeriodYear.
func (k PeriodKind) Validate() error {
	switch k {
	case "", PeriodYear, PeriodSpanishDate:
		return nil
	}
	return fmt.Errorf("unknown period kind %q", string(k))
}

// YearHeader keeps a header only if, after stripping a trailing ".0", it is
// exactly four ASCII digits.
func YearHeader(label string) (int, bool) {
	s := strings.TrimSuffix(strings.TrimSpace(label), ".0")
	if len(s) != 4 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	y, err := strconv.Atoi(s)
	return y, err == nil
}

// ParsePeriod converts a header label to a date. Years map to 1 January.
func ParsePeriod(kind PeriodKind, label string) (time.Time, bool) {
	switch kind {
	case "", PeriodYear:
		y, ok := YearHeader(label)
		if !ok {
			return time.Time{}, false
		}
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), true
	case PeriodSpanishDate:
		return esdate.Parse(label)
	}
	return time.Time{}, false
}
