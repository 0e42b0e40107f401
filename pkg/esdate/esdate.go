// Package esdate parses and formats Spanish long-form dates such as
// "1 de enero de 2020" from a fixed month table, independent of the
// process locale.
package esdate

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

const sep = " de "

var monthNames = [12]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var months = func() map[string]time.Month {
	m := make(map[string]time.Month, len(monthNames))
	for i, name := range monthNames {
		m[name] = time.Month(i + 1)
	}
	return m
}()

// Parse converts "<day> de <month> de <year>" into a UTC calendar date.
// The second result is false for anything malformed: wrong number of parts,
// unknown month, non-numeric day or year, or a day the month does not have.
func Parse(raw string) (time.Time, bool) {
	s := cases.Fold().String(strings.TrimSpace(raw))
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return time.Time{}, false
	}

	day, ok := number(parts[0])
	if !ok {
		return time.Time{}, false
	}
	month, ok := months[strings.TrimSpace(parts[1])]
	if !ok {
		return time.Time{}, false
	}
	year, ok := number(parts[2])
	if !ok || year < 1 || year > 9999 {
		return time.Time{}, false
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(raw string) time.Time {
	t, ok := Parse(raw)
	if !ok {
		panic("esdate: invalid date " + strconv.Quote(raw))
	}
	return t
}

// Format renders t as "<day> de <month> de <year>", the inverse of Parse.
func Format(t time.Time) string {
	return strconv.Itoa(t.Day()) + sep + MonthName(t.Month()) + sep + strconv.Itoa(t.Year())
}

// MonthName returns the lowercase Spanish name of m, or "" if m is out of range.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

func number(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 4 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
